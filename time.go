package songbook

import "time"

// IsWithinThresholdPeriod checks if the given time is within the threshold,
// measured back from ref.
func IsWithinThresholdPeriod(ref, t time.Time, pattern string) (bool, error) {
	duration, err := time.ParseDuration(pattern)
	if err != nil {
		return false, err
	}

	threshold := ref.Add(-duration)
	if t.After(threshold) {
		return true, nil
	}

	return false, nil
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(ref, t time.Time, pattern string) (bool, error) {
	valid, err := IsWithinThresholdPeriod(ref, t, pattern)
	if err != nil {
		return false, err
	}

	return !valid, nil
}
