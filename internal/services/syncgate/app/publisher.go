package server

import (
	"context"
	"log"
	"time"

	"github.com/campuslink/campuslink/internal/realtime/change"
	"github.com/campuslink/campuslink/internal/realtime/transport/ws"
	mentorshipdomain "github.com/campuslink/campuslink/internal/services/mentorship/domain"
	profilesdomain "github.com/campuslink/campuslink/internal/services/profiles/domain"
)

// Broadcaster converts domain change notifications into wire frames and fans
// them out to the hub. It implements the Publisher interfaces of the profiles
// and mentorship domain services.
type Broadcaster struct {
	hub *channelHub
}

// PublishProfileChange fans a profile change out to the user's own identity
// channel and to the mentor directory channel of every college domain the
// change touches.
func (b *Broadcaster) PublishProfileChange(_ context.Context, before, after *profilesdomain.Profile) {
	if b == nil || b.hub == nil {
		return
	}
	operation, ok := operationFor(before == nil, after == nil)
	if !ok {
		return
	}

	beforeRecord := profileRecord(before)
	afterRecord := profileRecord(after)

	scopes := make([]string, 0, 3)
	if userID := recordUserID(beforeRecord, afterRecord); userID != "" {
		scopes = append(scopes, userID)
	}
	for _, domain := range profileDomains(beforeRecord, afterRecord) {
		scopes = append(scopes, domain)
	}

	for _, scope := range scopes {
		b.send(change.ProfileEvent{
			Operation: operation,
			ScopeKey:  scope,
			Before:    beforeRecord,
			After:     afterRecord,
		}, change.CollectionProfiles, scope)
	}
}

// PublishRequestChange fans a mentorship request change out to both recorded
// parties' request channels.
func (b *Broadcaster) PublishRequestChange(_ context.Context, before, after *mentorshipdomain.Request) {
	if b == nil || b.hub == nil {
		return
	}
	operation, ok := operationFor(before == nil, after == nil)
	if !ok {
		return
	}

	beforeRecord := requestRecord(before)
	afterRecord := requestRecord(after)

	current := afterRecord
	if current == nil {
		current = beforeRecord
	}
	if current == nil {
		return
	}

	for _, scope := range []string{current.RequesterID, current.MentorID} {
		if scope == "" {
			continue
		}
		b.send(change.RequestEvent{
			Operation: operation,
			ScopeKey:  scope,
			Before:    beforeRecord,
			After:     afterRecord,
		}, change.CollectionMentorshipRequests, scope)
	}
}

func (b *Broadcaster) send(event change.Event, collection, scope string) {
	frame, err := change.Encode(event)
	if err != nil {
		log.Printf("syncgate: encode change frame collection=%q scope=%q: %v", collection, scope, err)
		return
	}
	payload := mustJSON(frame)
	wireFrame := ws.Frame{
		Type:    ws.FrameTypeChange,
		Payload: payload,
	}
	for _, peer := range b.hub.subscribers(collection, scope) {
		_ = peer.writeFrame(wireFrame)
	}
}

func operationFor(beforeNil, afterNil bool) (change.Operation, bool) {
	switch {
	case beforeNil && afterNil:
		return change.OperationUnknown, false
	case beforeNil:
		return change.OperationInsert, true
	case afterNil:
		return change.OperationDelete, true
	default:
		return change.OperationUpdate, true
	}
}

func recordUserID(before, after *change.ProfileRecord) string {
	if after != nil {
		return after.UserID
	}
	if before != nil {
		return before.UserID
	}
	return ""
}

// profileDomains returns the college domain scopes a profile change touches.
// A domain move touches both the old and new directory.
func profileDomains(before, after *change.ProfileRecord) []string {
	var domains []string
	if after != nil && after.CollegeDomain != "" {
		domains = append(domains, after.CollegeDomain)
	}
	if before != nil && before.CollegeDomain != "" {
		if len(domains) == 0 || domains[0] != before.CollegeDomain {
			domains = append(domains, before.CollegeDomain)
		}
	}
	return domains
}

func profileRecord(profile *profilesdomain.Profile) *change.ProfileRecord {
	if profile == nil {
		return nil
	}
	return &change.ProfileRecord{
		UserID:             profile.UserID,
		Email:              profile.Email,
		CollegeDomain:      profile.CollegeDomain,
		Role:               profile.Role,
		Source:             profile.Source,
		IsVerified:         profile.IsVerified,
		OnboardingComplete: profile.OnboardingComplete,
		DisplayName:        profile.DisplayName,
		LastActiveAt:       profile.LastActiveAt,
	}
}

func requestRecord(request *mentorshipdomain.Request) *change.RequestRecord {
	if request == nil {
		return nil
	}
	return &change.RequestRecord{
		ID:                request.ID,
		RequesterID:       request.RequesterID,
		MentorID:          request.MentorID,
		Status:            string(request.Status),
		SuggestedMentorID: request.SuggestedMentorID,
		RequesterFeedback: request.RequesterFeedback,
		MentorFeedback:    request.MentorFeedback,
		CreatedAt:         request.CreatedAt,
		RespondedAt:       cloneTime(request.RespondedAt),
		CompletedAt:       cloneTime(request.CompletedAt),
		CancelledAt:       cloneTime(request.CancelledAt),
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
