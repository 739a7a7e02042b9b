package model

import "time"

// ReviewCleanupRequest is published for every review a cascade failed to
// delete. The worker consumes it and retries the deletion.
type ReviewCleanupRequest struct {
	ReviewID    string    `json:"review_id"`
	ConcertID   int64     `json:"concert_id"`
	PerformerID int64     `json:"performer_id"`
	Attempt     int       `json:"attempt"`
	LastError   string    `json:"last_error"`
	FailedAt    time.Time `json:"failed_at"`
}

// NextAttempt returns a copy for redelivery after another failure.
func (r ReviewCleanupRequest) NextAttempt(err error, at time.Time) ReviewCleanupRequest {
	next := r
	next.Attempt++
	next.FailedAt = at
	if err != nil {
		next.LastError = err.Error()
	}
	return next
}
