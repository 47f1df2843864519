// Package domain implements the mentorship request lifecycle: a guarded
// multi-party state machine whose transition table is the single source of
// truth for both this authoritative service and the client-side pre-check.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/platform/id"
	"github.com/campuslink/campuslink/internal/services/mentorship/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// RoleStudent is the profile role allowed to create mentorship requests.
// Creation is the only role-gated action; every later transition checks the
// recorded parties instead.
const RoleStudent = "student"

// FeedbackField selects which side's feedback column a write targets.
type FeedbackField string

const (
	FeedbackFieldRequester FeedbackField = "requester_feedback"
	FeedbackFieldMentor    FeedbackField = "mentor_feedback"
)

// Request is one mentorship request with its lifecycle state.
type Request struct {
	ID                string
	RequesterID       string
	MentorID          string
	Status            Status
	SuggestedMentorID string
	RequesterFeedback string
	MentorFeedback    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	RespondedAt       *time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
}

// RequestPage is a paged view of a user's requests.
type RequestPage struct {
	Requests      []Request
	NextPageToken string
}

// Publisher receives request change notifications after successful writes.
// A nil before means the request was just created.
type Publisher interface {
	PublishRequestChange(ctx context.Context, before, after *Request)
}

// CreateRequestInput describes a student asking a mentor for mentorship.
type CreateRequestInput struct {
	RequesterID   string
	RequesterRole string
	MentorID      string
}

// RespondInput identifies one request and the acting user.
type RespondInput struct {
	RequestID string
	ActorID   string
}

// RejectInput optionally carries an alternative mentor suggestion.
type RejectInput struct {
	RequestID         string
	ActorID           string
	SuggestedMentorID string
}

// FeedbackInput targets one feedback field of a completed request.
type FeedbackInput struct {
	RequestID string
	ActorID   string
	Field     FeedbackField
	Feedback  string
}

// ListRequestsInput configures per-user request listing.
type ListRequestsInput struct {
	UserID    string
	PageSize  int
	PageToken string
}

// Service orchestrates the mentorship request lifecycle.
type Service struct {
	store     storage.RequestStore
	publisher Publisher
	clock     func() time.Time
	newID     func() (string, error)
}

// NewService constructs mentorship domain use-cases. publisher may be nil
// when change fanout is not wired.
func NewService(store storage.RequestStore, publisher Publisher, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:     store,
		publisher: publisher,
		clock:     clock,
		newID:     newID,
	}
}

// CreateRequest records a new pending request. Exactly one pending or
// accepted request may exist per party pair; a race that loses to a
// concurrent creation surfaces as a domain conflict, never as a duplicate.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (Request, error) {
	if s == nil || s.store == nil {
		return Request{}, errors.New("mentorship store is not configured")
	}
	requesterID := strings.TrimSpace(input.RequesterID)
	if requesterID == "" {
		return Request{}, apperrors.New(apperrors.CodeRequestRequesterRequired, "requester id is required")
	}
	mentorID := strings.TrimSpace(input.MentorID)
	if mentorID == "" {
		return Request{}, apperrors.New(apperrors.CodeRequestMentorRequired, "mentor id is required")
	}
	if requesterID == mentorID {
		return Request{}, apperrors.New(apperrors.CodeRequestSelfNotAllowed, "cannot request mentorship from yourself")
	}
	if strings.TrimSpace(input.RequesterRole) != RoleStudent {
		return Request{}, apperrors.WithMetadata(
			apperrors.CodeRequestRoleNotAllowed,
			"only students can create mentorship requests",
			map[string]string{"Role": strings.TrimSpace(input.RequesterRole)},
		)
	}

	requestID, err := s.newID()
	if err != nil {
		return Request{}, err
	}
	now := s.nowUTC()
	request := Request{
		ID:          requestID,
		RequesterID: requesterID,
		MentorID:    mentorID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateRequest(ctx, toStorage(request)); err != nil {
		if errors.Is(err, storage.ErrDuplicateActive) {
			return Request{}, apperrors.Wrap(apperrors.CodeRequestAlreadyActive, "an active request already exists for this pair", err)
		}
		return Request{}, err
	}
	s.publish(ctx, nil, &request)
	return request, nil
}

// Accept transitions pending→accepted; only the recorded mentor may accept.
func (s *Service) Accept(ctx context.Context, input RespondInput) (Request, error) {
	return s.transition(ctx, input.RequestID, input.ActorID, StatusAccepted, func(request *Request, now time.Time) {
		request.RespondedAt = &now
	})
}

// Reject transitions pending→rejected; only the recorded mentor may reject,
// optionally pointing the requester at another mentor.
func (s *Service) Reject(ctx context.Context, input RejectInput) (Request, error) {
	suggested := strings.TrimSpace(input.SuggestedMentorID)
	return s.transition(ctx, input.RequestID, input.ActorID, StatusRejected, func(request *Request, now time.Time) {
		request.RespondedAt = &now
		request.SuggestedMentorID = suggested
	})
}

// Cancel transitions pending→cancelled or accepted→cancelled; only the
// recorded requester may cancel.
func (s *Service) Cancel(ctx context.Context, input RespondInput) (Request, error) {
	return s.transition(ctx, input.RequestID, input.ActorID, StatusCancelled, func(request *Request, now time.Time) {
		request.CancelledAt = &now
	})
}

// Complete transitions accepted→completed; only the recorded mentor may mark
// a mentorship complete. Completion unlocks feedback submission.
func (s *Service) Complete(ctx context.Context, input RespondInput) (Request, error) {
	return s.transition(ctx, input.RequestID, input.ActorID, StatusCompleted, func(request *Request, now time.Time) {
		request.CompletedAt = &now
	})
}

// SubmitFeedback writes one side's feedback on a completed request. Each
// party owns exactly one field; writing the other party's field is rejected
// regardless of request status.
func (s *Service) SubmitFeedback(ctx context.Context, input FeedbackInput) (Request, error) {
	if s == nil || s.store == nil {
		return Request{}, errors.New("mentorship store is not configured")
	}
	requestID := strings.TrimSpace(input.RequestID)
	if requestID == "" {
		return Request{}, apperrors.New(apperrors.CodeNotFound, "request id is required")
	}
	actorID := strings.TrimSpace(input.ActorID)
	if actorID == "" {
		return Request{}, apperrors.New(apperrors.CodeRequestPartyMismatch, "actor id is required")
	}
	feedback := strings.TrimSpace(input.Feedback)
	if feedback == "" {
		return Request{}, apperrors.New(apperrors.CodeFeedbackEmpty, "feedback text is required")
	}

	stored, err := s.getStored(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	request := fromStorage(stored)

	if actorID != request.RequesterID && actorID != request.MentorID {
		return Request{}, apperrors.New(apperrors.CodeRequestPartyMismatch, "actor is not a party to this request")
	}
	owner := PartyRequester
	if input.Field == FeedbackFieldMentor {
		owner = PartyMentor
	} else if input.Field != FeedbackFieldRequester {
		return Request{}, apperrors.WithMetadata(
			apperrors.CodeFeedbackFieldNotOwned,
			"unknown feedback field",
			map[string]string{"Field": string(input.Field)},
		)
	}
	// Field ownership is checked before status so a cross-party write is
	// rejected for the same reason no matter when it happens.
	if (owner == PartyRequester && actorID != request.RequesterID) ||
		(owner == PartyMentor && actorID != request.MentorID) {
		return Request{}, apperrors.WithMetadata(
			apperrors.CodeFeedbackFieldNotOwned,
			"feedback field belongs to the other party",
			map[string]string{"Field": string(input.Field)},
		)
	}
	if request.Status != StatusCompleted {
		return Request{}, apperrors.New(apperrors.CodeFeedbackNotCompleted, "feedback requires a completed request")
	}

	before := request
	if owner == PartyRequester {
		request.RequesterFeedback = feedback
	} else {
		request.MentorFeedback = feedback
	}
	request.UpdatedAt = s.nowUTC()

	if err := s.store.UpdateRequest(ctx, toStorage(request), string(StatusCompleted)); err != nil {
		return Request{}, s.mapUpdateErr(err)
	}
	s.publish(ctx, &before, &request)
	return request, nil
}

// GetRequest returns one request by id.
func (s *Service) GetRequest(ctx context.Context, requestID string) (Request, error) {
	if s == nil || s.store == nil {
		return Request{}, errors.New("mentorship store is not configured")
	}
	stored, err := s.getStored(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return Request{}, err
	}
	return fromStorage(stored), nil
}

// ListRequests lists requests where the user is either party.
func (s *Service) ListRequests(ctx context.Context, input ListRequestsInput) (RequestPage, error) {
	if s == nil || s.store == nil {
		return RequestPage{}, errors.New("mentorship store is not configured")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return RequestPage{}, apperrors.New(apperrors.CodeRequestRequesterRequired, "user id is required")
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	stored, err := s.store.ListRequestsForUser(ctx, userID, pageSize, strings.TrimSpace(input.PageToken))
	if err != nil {
		return RequestPage{}, err
	}
	page := RequestPage{
		Requests:      make([]Request, 0, len(stored.Requests)),
		NextPageToken: stored.NextPageToken,
	}
	for _, record := range stored.Requests {
		page.Requests = append(page.Requests, fromStorage(record))
	}
	return page, nil
}

// transition loads the request, enforces the party and edge guards, and
// applies the status change with a compare-and-set write.
func (s *Service) transition(ctx context.Context, requestID, actorID string, to Status, apply func(*Request, time.Time)) (Request, error) {
	if s == nil || s.store == nil {
		return Request{}, errors.New("mentorship store is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return Request{}, apperrors.New(apperrors.CodeNotFound, "request id is required")
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Request{}, apperrors.New(apperrors.CodeRequestPartyMismatch, "actor id is required")
	}

	stored, err := s.getStored(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	request := fromStorage(stored)
	from := request.Status

	if actorID != request.RequesterID && actorID != request.MentorID {
		return Request{}, apperrors.New(apperrors.CodeRequestPartyMismatch, "actor is not a party to this request")
	}
	if from.Terminal() {
		return Request{}, apperrors.WithMetadata(
			apperrors.CodeRequestTerminalState,
			"request is already in a terminal state",
			map[string]string{"Status": string(from)},
		)
	}
	party, ok := ActorFor(from, to)
	if !ok {
		return Request{}, apperrors.WithMetadata(
			apperrors.CodeRequestInvalidTransition,
			"transition is not allowed from the current status",
			map[string]string{"From": string(from), "To": string(to)},
		)
	}
	if (party == PartyRequester && actorID != request.RequesterID) ||
		(party == PartyMentor && actorID != request.MentorID) {
		return Request{}, apperrors.New(apperrors.CodeRequestPartyMismatch, "transition belongs to the other party")
	}

	before := request
	now := s.nowUTC()
	request.Status = to
	request.UpdatedAt = now
	apply(&request, now)

	if err := s.store.UpdateRequest(ctx, toStorage(request), string(from)); err != nil {
		return Request{}, s.mapUpdateErr(err)
	}
	s.publish(ctx, &before, &request)
	return request, nil
}

func (s *Service) getStored(ctx context.Context, requestID string) (storage.Request, error) {
	stored, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Request{}, apperrors.Wrap(apperrors.CodeNotFound, "request not found", err)
		}
		return storage.Request{}, err
	}
	return stored, nil
}

func (s *Service) mapUpdateErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.Wrap(apperrors.CodeNotFound, "request not found", err)
	case errors.Is(err, storage.ErrStatusConflict):
		return apperrors.Wrap(apperrors.CodeRequestInvalidTransition, "request status changed concurrently", err)
	case errors.Is(err, storage.ErrDuplicateActive):
		return apperrors.Wrap(apperrors.CodeRequestAlreadyActive, "an active request already exists for this pair", err)
	default:
		return err
	}
}

func (s *Service) publish(ctx context.Context, before, after *Request) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishRequestChange(ctx, before, after)
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func toStorage(request Request) storage.Request {
	return storage.Request{
		ID:                request.ID,
		RequesterID:       request.RequesterID,
		MentorID:          request.MentorID,
		Status:            string(request.Status),
		SuggestedMentorID: request.SuggestedMentorID,
		RequesterFeedback: request.RequesterFeedback,
		MentorFeedback:    request.MentorFeedback,
		CreatedAt:         request.CreatedAt,
		UpdatedAt:         request.UpdatedAt,
		RespondedAt:       request.RespondedAt,
		CompletedAt:       request.CompletedAt,
		CancelledAt:       request.CancelledAt,
	}
}

func fromStorage(record storage.Request) Request {
	return Request{
		ID:                record.ID,
		RequesterID:       record.RequesterID,
		MentorID:          record.MentorID,
		Status:            Status(record.Status),
		SuggestedMentorID: record.SuggestedMentorID,
		RequesterFeedback: record.RequesterFeedback,
		MentorFeedback:    record.MentorFeedback,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
		RespondedAt:       record.RespondedAt,
		CompletedAt:       record.CompletedAt,
		CancelledAt:       record.CancelledAt,
	}
}
