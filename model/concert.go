package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of a concert day.
const DateLayout = "2006-01-02"

// ===============================
// Value Types
// ===============================

// TimeOfDay is a wall-clock time without a date, stored in a postgres time column.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS". Seconds are discarded.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", t.Hour, t.Minute), nil
}

// Scan implements sql.Scanner. pgx hands back strings for time columns,
// other drivers use time.Time or microseconds since midnight.
func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = TimeOfDay{}
		return nil
	case string:
		parsed, err := ParseTimeOfDay(trimFraction(v))
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	case time.Time:
		*t = TimeOfDay{Hour: v.Hour(), Minute: v.Minute()}
		return nil
	case int64:
		minutes := v / int64(time.Minute/time.Microsecond)
		*t = TimeOfDay{Hour: int(minutes / 60), Minute: int(minutes % 60)}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

// GormDataType tells AutoMigrate to create a time column.
func (TimeOfDay) GormDataType() string {
	return "time"
}

func trimFraction(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// NormalizeDay truncates t to midnight UTC of its calendar date.
func NormalizeDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a "2006-01-02" calendar date.
func ParseDay(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// ===============================
// Database Entities (Internal)
// ===============================

// Concert represents the concert entity in the database
type Concert struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	PerformerID int64     `gorm:"not null;index"`
	Day         time.Time `gorm:"type:date;not null;index"`
	Stage       string    `gorm:"not null"`
	BeginTime   TimeOfDay `gorm:"not null"`
	EndTime     TimeOfDay `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Conversion methods to API DTOs
func (c *Concert) ToConcertResponse() *ConcertResponse {
	return &ConcertResponse{
		ConcertID:   c.ID,
		PerformerID: c.PerformerID,
		Day:         c.Day.Format(DateLayout),
		Stage:       c.Stage,
		BeginTime:   c.BeginTime.String(),
		EndTime:     c.EndTime.String(),
	}
}

func ToConcertResponses(concerts []Concert) []ConcertResponse {
	responses := make([]ConcertResponse, 0, len(concerts))
	for i := range concerts {
		responses = append(responses, *concerts[i].ToConcertResponse())
	}
	return responses
}

// ===============================
// Repository DTOs (Internal)
// ===============================

// CreateConcertRequest represents input for creating a concert
type CreateConcertRequest struct {
	PerformerID int64
	Day         time.Time
	Stage       string
	BeginTime   TimeOfDay
	EndTime     TimeOfDay
}

// Validate checks the field-level rules that do not need the performer registry.
// EndTime may be earlier than BeginTime for a set that runs past midnight.
func (r CreateConcertRequest) Validate() error {
	if r.PerformerID <= 0 {
		return &ValidationError{Field: "performer_id", Message: "must be a positive integer"}
	}
	if r.Day.IsZero() {
		return &ValidationError{Field: "day", Message: "is required"}
	}
	if strings.TrimSpace(r.Stage) == "" {
		return &ValidationError{Field: "stage", Message: "must not be empty"}
	}
	return nil
}

// UpdateConcertRequest carries the fields to change; nil means unchanged.
type UpdateConcertRequest struct {
	ConcertID   int64
	PerformerID *int64
	Day         *time.Time
	Stage       *string
	BeginTime   *TimeOfDay
	EndTime     *TimeOfDay
}

func (r UpdateConcertRequest) Validate() error {
	if r.Stage != nil && strings.TrimSpace(*r.Stage) == "" {
		return &ValidationError{Field: "stage", Message: "must not be empty"}
	}
	return nil
}

// ===============================
// API DTOs (External)
// ===============================

// CreateConcertAPIRequest represents the API request for creating a concert
type CreateConcertAPIRequest struct {
	PerformerID int64      `json:"performer_id" binding:"required,min=1"`
	Day         string     `json:"day" binding:"required"`
	Stage       string     `json:"stage" binding:"required"`
	BeginTime   *TimeOfDay `json:"begin_time" binding:"required"`
	EndTime     *TimeOfDay `json:"end_time" binding:"required"`
}

// ToCreateConcertRequest converts API request to repository request
func (r *CreateConcertAPIRequest) ToCreateConcertRequest() (CreateConcertRequest, error) {
	day, err := ParseDay(r.Day)
	if err != nil {
		return CreateConcertRequest{}, &ValidationError{Field: "day", Message: err.Error()}
	}
	if r.BeginTime == nil {
		return CreateConcertRequest{}, &ValidationError{Field: "begin_time", Message: "is required"}
	}
	if r.EndTime == nil {
		return CreateConcertRequest{}, &ValidationError{Field: "end_time", Message: "is required"}
	}
	return CreateConcertRequest{
		PerformerID: r.PerformerID,
		Day:         NormalizeDay(day),
		Stage:       r.Stage,
		BeginTime:   *r.BeginTime,
		EndTime:     *r.EndTime,
	}, nil
}

// UpdateConcertAPIRequest represents the API request for updating a concert
type UpdateConcertAPIRequest struct {
	PerformerID *int64     `json:"performer_id"`
	Day         *string    `json:"day"`
	Stage       *string    `json:"stage"`
	BeginTime   *TimeOfDay `json:"begin_time"`
	EndTime     *TimeOfDay `json:"end_time"`
}

func (r *UpdateConcertAPIRequest) ToUpdateConcertRequest(concertID int64) (UpdateConcertRequest, error) {
	req := UpdateConcertRequest{
		ConcertID:   concertID,
		PerformerID: r.PerformerID,
		Stage:       r.Stage,
		BeginTime:   r.BeginTime,
		EndTime:     r.EndTime,
	}
	if r.Day != nil {
		day, err := ParseDay(*r.Day)
		if err != nil {
			return UpdateConcertRequest{}, &ValidationError{Field: "day", Message: err.Error()}
		}
		normalized := NormalizeDay(day)
		req.Day = &normalized
	}
	return req, nil
}

// ConcertResponse represents concert data in API responses
type ConcertResponse struct {
	ConcertID   int64  `json:"concert_id"`
	PerformerID int64  `json:"performer_id"`
	Day         string `json:"day"`
	Stage       string `json:"stage"`
	BeginTime   string `json:"begin_time"`
	EndTime     string `json:"end_time"`
}

// ConcertListResponse represents the response for listing concerts
type ConcertListResponse struct {
	Concerts []ConcertResponse `json:"concerts"`
	Total    int               `json:"total"`
}

// ReviewEligibility is the answer to "may this concert be reviewed now".
type ReviewEligibility struct {
	Eligible    bool  `json:"valid"`
	PerformerID int64 `json:"performer_id,omitempty"`
}

// PerformerDeletableResponse answers whether a performer has no concerts left.
type PerformerDeletableResponse struct {
	PerformerID int64 `json:"performer_id"`
	Deletable   bool  `json:"deletable"`
}

// ReviewDeletionFailure records one review the cascade could not remove.
type ReviewDeletionFailure struct {
	ReviewID string `json:"review_id"`
	Error    string `json:"error"`
}

// CascadeReport summarises the review cascade of a concert deletion.
type CascadeReport struct {
	ConcertID      int64                   `json:"concert_id"`
	PerformerID    int64                   `json:"performer_id"`
	ReviewsFound   int                     `json:"reviews_found"`
	ReviewsDeleted []string                `json:"reviews_deleted"`
	Failures       []ReviewDeletionFailure `json:"failures,omitempty"`
	Requeued       int                     `json:"requeued"`
}

// Complete reports whether every review of the cascade was deleted.
func (r *CascadeReport) Complete() bool {
	return len(r.Failures) == 0
}

// ErrorResponse represents error responses
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
