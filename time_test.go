package songbook_test

import (
	"testing"
	"time"

	songbook "github.com/songbook/go-songbook"
	"github.com/stretchr/testify/assert"
)

func TestIsWithinThresholdPeriod(t *testing.T) {
	ref := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		inputTime     time.Time
		thresholdExpr string
		expected      bool
		expectErr     bool
	}{
		{
			name:          "Within 1 hour threshold",
			inputTime:     ref.Add(-30 * time.Minute),
			thresholdExpr: "1h",
			expected:      true,
		},
		{
			name:          "Outside 1 hour threshold",
			inputTime:     ref.Add(-90 * time.Minute),
			thresholdExpr: "1h",
			expected:      false,
		},
		{
			name:          "At exact threshold",
			inputTime:     ref.Add(-1 * time.Hour),
			thresholdExpr: "1h",
			expected:      false, // we check if time is AFTER threshold
		},
		{
			name:          "Complex threshold (2h30m)",
			inputTime:     ref.Add(-2 * time.Hour),
			thresholdExpr: "2h30m",
			expected:      true,
		},
		{
			name:          "Future time",
			inputTime:     ref.Add(1 * time.Hour),
			thresholdExpr: "1h",
			expected:      true,
		},
		{
			name:          "Invalid threshold expression",
			inputTime:     ref,
			thresholdExpr: "not-a-duration",
			expectErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := songbook.IsWithinThresholdPeriod(ref, tt.inputTime, tt.thresholdExpr)

			if tt.expectErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIsOutsideThresholdPeriod(t *testing.T) {
	ref := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	within, err := songbook.IsOutsideThresholdPeriod(ref, ref.Add(-30*time.Minute), "1h")
	assert.NoError(t, err)
	assert.False(t, within)

	outside, err := songbook.IsOutsideThresholdPeriod(ref, ref.Add(-2*time.Hour), "1h")
	assert.NoError(t, err)
	assert.True(t, outside)

	_, err = songbook.IsOutsideThresholdPeriod(ref, ref, "bogus")
	assert.Error(t, err)
}
