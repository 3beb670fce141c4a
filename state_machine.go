package songbook

import (
	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_DELETION_TRANSITION"

// ErrInvalidTransition is returned when a requested deletion state change is
// not allowed.
var ErrInvalidTransition = goerrors.New("invalid deletion state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// deletionTransitions holds the allowed moves between deletion states.
//
//	active     -> requested            (RequestDeletion)
//	requested  -> scheduled            (ConfirmDeletion)
//	requested  -> active               (CancelDeletion / login / cleanup)
//	scheduled  -> active               (CancelDeletion / login)
//
// Deleted is terminal: the row is gone, so it has no outgoing edges and no
// entry here.
var deletionTransitions = map[DeletionState][]DeletionState{
	DeletionStateActive:    {DeletionStateRequested},
	DeletionStateRequested: {DeletionStateScheduled, DeletionStateActive},
	DeletionStateScheduled: {DeletionStateActive},
}

// CanTransitionDeletion reports whether moving from one deletion state to
// another is allowed.
func CanTransitionDeletion(from, to DeletionState) bool {
	for _, allowed := range deletionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateDeletionTransition returns ErrInvalidTransition, annotated with the
// attempted edge, when the move is not allowed.
func ValidateDeletionTransition(from, to DeletionState) error {
	if CanTransitionDeletion(from, to) {
		return nil
	}

	return ErrInvalidTransition.WithMetadata(map[string]any{
		"from": string(from),
		"to":   string(to),
	})
}
