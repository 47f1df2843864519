// Package requests is the client-side view of the mentorship request
// lifecycle: a lazily refreshed list of the viewer's requests plus an
// optimistic pre-check that mirrors the server's transition guards.
package requests

import (
	"strings"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/services/mentorship/domain"
)

// GuardTransition is an optimistic pre-check only. It mirrors the server's
// guards to avoid needless round-trips; the authoritative answer always comes
// from the mutation response, and a server rejection after a passing guard is
// the normal conflict path, not a defect.
func GuardTransition(request domain.Request, actorID string, to domain.Status) error {
	actorID = strings.TrimSpace(actorID)
	if actorID != request.RequesterID && actorID != request.MentorID {
		return apperrors.New(apperrors.CodeRequestPartyMismatch, "actor is not a party to this request")
	}
	from := request.Status
	if from.Terminal() {
		return apperrors.WithMetadata(
			apperrors.CodeRequestTerminalState,
			"request is already in a terminal state",
			map[string]string{"Status": string(from)},
		)
	}
	party, ok := domain.ActorFor(from, to)
	if !ok {
		return apperrors.WithMetadata(
			apperrors.CodeRequestInvalidTransition,
			"transition is not allowed from the current status",
			map[string]string{"From": string(from), "To": string(to)},
		)
	}
	if (party == domain.PartyRequester && actorID != request.RequesterID) ||
		(party == domain.PartyMentor && actorID != request.MentorID) {
		return apperrors.New(apperrors.CodeRequestPartyMismatch, "transition belongs to the other party")
	}
	return nil
}

// GuardFeedback mirrors the server-side feedback guards: field ownership is
// checked before status so both sides reject a cross-party write for the same
// reason.
func GuardFeedback(request domain.Request, actorID string, field domain.FeedbackField) error {
	actorID = strings.TrimSpace(actorID)
	if actorID != request.RequesterID && actorID != request.MentorID {
		return apperrors.New(apperrors.CodeRequestPartyMismatch, "actor is not a party to this request")
	}
	var owner domain.Party
	switch field {
	case domain.FeedbackFieldRequester:
		owner = domain.PartyRequester
	case domain.FeedbackFieldMentor:
		owner = domain.PartyMentor
	default:
		return apperrors.WithMetadata(
			apperrors.CodeFeedbackFieldNotOwned,
			"unknown feedback field",
			map[string]string{"Field": string(field)},
		)
	}
	if (owner == domain.PartyRequester && actorID != request.RequesterID) ||
		(owner == domain.PartyMentor && actorID != request.MentorID) {
		return apperrors.WithMetadata(
			apperrors.CodeFeedbackFieldNotOwned,
			"feedback field belongs to the other party",
			map[string]string{"Field": string(field)},
		)
	}
	if request.Status != domain.StatusCompleted {
		return apperrors.New(apperrors.CodeFeedbackNotCompleted, "feedback requires a completed request")
	}
	return nil
}

// GuardCreate pre-checks a creation against the locally known request list.
// The one-active-request-per-pair rule is enforced authoritatively by the
// server; this check only catches the conflicts the client can already see.
func GuardCreate(known []domain.Request, requesterID, requesterRole, mentorID string) error {
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return apperrors.New(apperrors.CodeRequestRequesterRequired, "requester id is required")
	}
	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		return apperrors.New(apperrors.CodeRequestMentorRequired, "mentor id is required")
	}
	if requesterID == mentorID {
		return apperrors.New(apperrors.CodeRequestSelfNotAllowed, "cannot request mentorship from yourself")
	}
	if strings.TrimSpace(requesterRole) != domain.RoleStudent {
		return apperrors.WithMetadata(
			apperrors.CodeRequestRoleNotAllowed,
			"only students can create mentorship requests",
			map[string]string{"Role": strings.TrimSpace(requesterRole)},
		)
	}
	for _, request := range known {
		if request.Status != domain.StatusPending && request.Status != domain.StatusAccepted {
			continue
		}
		samePair := (request.RequesterID == requesterID && request.MentorID == mentorID) ||
			(request.RequesterID == mentorID && request.MentorID == requesterID)
		if samePair {
			return apperrors.New(apperrors.CodeRequestAlreadyActive, "an active request already exists for this pair")
		}
	}
	return nil
}
