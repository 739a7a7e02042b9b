package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConcertNotFound = errors.New("concert not found")

	// ErrInvalidPerformer means the registry answered and does not know the performer.
	ErrInvalidPerformer = errors.New("invalid performer")

	// ErrPerformerRegistryUnavailable means the registry could not be asked.
	// Callers must treat it as a rejection.
	ErrPerformerRegistryUnavailable = errors.New("performer registry unavailable")

	ErrConcertHasReviews        = errors.New("concert has reviews")
	ErrReviewServiceUnavailable = errors.New("review service unavailable")
	ErrPartialCascade           = errors.New("partial review cascade")
)

// ValidationError reports a request field that failed a local rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// PartialCascadeError is returned by a concert deletion whose concert was
// removed while one or more review deletions failed.
type PartialCascadeError struct {
	ConcertID int64
	Failures  []ReviewDeletionFailure
}

func (e *PartialCascadeError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.ReviewID)
	}
	return fmt.Sprintf("concert %d deleted but %d review deletion(s) failed: %s",
		e.ConcertID, len(e.Failures), strings.Join(ids, ", "))
}

func (e *PartialCascadeError) Is(target error) bool {
	return target == ErrPartialCascade
}
