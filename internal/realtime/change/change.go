// Package change defines the typed change notifications delivered over the
// push transport. Wire frames are decoded exactly once, at the transport
// boundary, into a closed set of per-collection event variants so downstream
// consumers never dispatch on raw strings.
package change

import (
	"fmt"
	"time"
)

// Operation identifies the kind of row mutation a change event describes.
type Operation int

const (
	OperationUnknown Operation = iota
	OperationInsert
	OperationUpdate
	OperationDelete
)

// String returns the wire name of the operation.
func (o Operation) String() string {
	switch o {
	case OperationInsert:
		return "insert"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

func operationFromWire(value string) (Operation, error) {
	switch value {
	case "insert":
		return OperationInsert, nil
	case "update":
		return OperationUpdate, nil
	case "delete":
		return OperationDelete, nil
	default:
		return OperationUnknown, fmt.Errorf("unknown change operation %q", value)
	}
}

// Collection names used on the wire.
const (
	CollectionProfiles           = "profiles"
	CollectionMentorshipRequests = "mentorship_requests"
)

// ProfileRecord is the profile row shape carried in profile change events.
type ProfileRecord struct {
	UserID             string    `json:"user_id"`
	Email              string    `json:"email"`
	CollegeDomain      string    `json:"college_domain"`
	Role               string    `json:"role"`
	Source             string    `json:"source"`
	IsVerified         bool      `json:"is_verified"`
	OnboardingComplete bool      `json:"onboarding_complete"`
	DisplayName        string    `json:"display_name"`
	LastActiveAt       time.Time `json:"last_active_at"`
}

// RequestRecord is the mentorship request row shape carried in request change
// events.
type RequestRecord struct {
	ID                string     `json:"id"`
	RequesterID       string     `json:"requester_id"`
	MentorID          string     `json:"mentor_id"`
	Status            string     `json:"status"`
	SuggestedMentorID string     `json:"suggested_mentor_id,omitempty"`
	RequesterFeedback string     `json:"requester_feedback,omitempty"`
	MentorFeedback    string     `json:"mentor_feedback,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	RespondedAt       *time.Time `json:"responded_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
}

// Event is the closed set of decoded change notifications. Exactly the types
// in this package implement it.
type Event interface {
	// Op reports the row operation the event describes.
	Op() Operation
	// Scope reports the channel scope key the event was published under.
	Scope() string

	isEvent()
}

// ProfileEvent is a change to one row in the profiles collection.
type ProfileEvent struct {
	Operation Operation
	ScopeKey  string
	Before    *ProfileRecord
	After     *ProfileRecord
}

func (e ProfileEvent) Op() Operation { return e.Operation }
func (e ProfileEvent) Scope() string { return e.ScopeKey }
func (e ProfileEvent) isEvent()      {}

// RequestEvent is a change to one row in the mentorship_requests collection.
type RequestEvent struct {
	Operation Operation
	ScopeKey  string
	Before    *RequestRecord
	After     *RequestRecord
}

func (e RequestEvent) Op() Operation { return e.Operation }
func (e RequestEvent) Scope() string { return e.ScopeKey }
func (e RequestEvent) isEvent()      {}
