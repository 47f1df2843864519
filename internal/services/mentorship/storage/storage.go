// Package storage defines persistence contracts for mentorship request state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested mentorship record is missing.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateActive indicates the requester/mentor pair already has a
// pending or accepted request.
var ErrDuplicateActive = errors.New("active request already exists for pair")

// ErrStatusConflict indicates the request status changed between read and
// write, so the compare-and-set update did not apply.
var ErrStatusConflict = errors.New("request status changed concurrently")

// Request stores one mentorship request row.
type Request struct {
	ID                string
	RequesterID       string
	MentorID          string
	Status            string
	SuggestedMentorID string
	RequesterFeedback string
	MentorFeedback    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	RespondedAt       *time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
}

// RequestPage stores a page of mentorship requests.
type RequestPage struct {
	Requests      []Request
	NextPageToken string
}

// RequestStore persists mentorship requests. Create enforces the
// one-active-request-per-pair rule; Update applies only when the stored
// status still matches expectedStatus.
type RequestStore interface {
	CreateRequest(ctx context.Context, request Request) error
	GetRequest(ctx context.Context, id string) (Request, error)
	UpdateRequest(ctx context.Context, request Request, expectedStatus string) error
	ListRequestsForUser(ctx context.Context, userID string, pageSize int, pageToken string) (RequestPage, error)
}
