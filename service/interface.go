package service

import "context"

// PerformerStatus is the answer of the performer registry for one id.
type PerformerStatus int

const (
	// PerformerUnreachable means the registry could not give an answer.
	PerformerUnreachable PerformerStatus = iota
	PerformerValid
	PerformerInvalid
)

func (s PerformerStatus) String() string {
	switch s {
	case PerformerValid:
		return "valid"
	case PerformerInvalid:
		return "invalid"
	default:
		return "unreachable"
	}
}

// PerformerService defines the interface for communicating with the Performer registry
type PerformerService interface {
	// CheckPerformer asks whether the performer exists. A non-nil error is
	// returned only together with PerformerUnreachable.
	CheckPerformer(ctx context.Context, performerID int64) (PerformerStatus, error)
}

// ReviewService defines the interface for communicating with the Review store
type ReviewService interface {
	// HasReviews reports whether at least one review references the concert.
	HasReviews(ctx context.Context, concertID int64) (bool, error)

	// ListReviewIDsForPerformer returns the opaque ids of every review of the
	// performer. The slice is empty, never nil, when there are none.
	ListReviewIDsForPerformer(ctx context.Context, performerID int64) ([]string, error)

	// DeleteReview removes one review. A review that is already gone counts as deleted.
	DeleteReview(ctx context.Context, reviewID string) error
}
