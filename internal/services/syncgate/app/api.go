package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/platform/errors/i18n"
	mentorshipdomain "github.com/campuslink/campuslink/internal/services/mentorship/domain"
	profilesdomain "github.com/campuslink/campuslink/internal/services/profiles/domain"
)

// Services are the domain services the gateway hosts behind its JSON API.
// Writes flow through them, which publishes every change to the Broadcaster
// and from there to the subscribed websocket channels.
type Services struct {
	Profiles   *profilesdomain.Service
	Mentorship *mentorshipdomain.Service
}

type apiHandler struct {
	authenticator wsAuthenticator
	services      Services
}

func mountAPI(mux *http.ServeMux, authenticator wsAuthenticator, services Services) {
	api := &apiHandler{authenticator: authenticator, services: services}

	mux.HandleFunc("GET /api/identity", api.getIdentity)
	mux.HandleFunc("GET /api/profile", api.getProfile)
	mux.HandleFunc("POST /api/profile", api.createProfile)
	mux.HandleFunc("PATCH /api/profile", api.updateProfile)
	mux.HandleFunc("POST /api/profile/active", api.touchLastActive)
	mux.HandleFunc("GET /api/mentors", api.listMentors)
	mux.HandleFunc("GET /api/requests", api.listRequests)
	mux.HandleFunc("POST /api/requests", api.createRequest)
	mux.HandleFunc("POST /api/requests/{id}/accept", api.acceptRequest)
	mux.HandleFunc("POST /api/requests/{id}/reject", api.rejectRequest)
	mux.HandleFunc("POST /api/requests/{id}/cancel", api.cancelRequest)
	mux.HandleFunc("POST /api/requests/{id}/complete", api.completeRequest)
	mux.HandleFunc("POST /api/requests/{id}/feedback", api.submitFeedback)
}

// user resolves the acting user from the request's access token cookie.
func (a *apiHandler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	if a.authenticator == nil {
		writeAPIError(w, r, apperrors.New(apperrors.CodeIdentityNotSignedIn, "authentication is not configured"))
		return "", false
	}
	token := accessTokenFromRequest(r)
	if token == "" {
		writeAPIError(w, r, apperrors.New(apperrors.CodeIdentityNotSignedIn, "missing access token"))
		return "", false
	}
	userID, err := a.authenticator.Authenticate(r.Context(), token)
	if err != nil {
		writeAPIError(w, r, apperrors.Wrap(apperrors.CodeIdentityTokenInvalid, "verify access token", err))
		return "", false
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		writeAPIError(w, r, apperrors.New(apperrors.CodeIdentityTokenInvalid, "token carries no subject"))
		return "", false
	}
	return userID, true
}

func (a *apiHandler) getIdentity(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	snapshot, err := a.services.Profiles.GetIdentitySnapshot(r.Context(), userID)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identityJSONFrom(snapshot))
}

func (a *apiHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	profile, err := a.services.Profiles.GetProfile(r.Context(), userID)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileJSONFrom(profile))
}

func (a *apiHandler) createProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	var body struct {
		Email         string `json:"email"`
		CollegeDomain string `json:"college_domain"`
		Role          string `json:"role"`
		Source        string `json:"source"`
		DisplayName   string `json:"display_name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	profile, err := a.services.Profiles.CreateProfile(r.Context(), profilesdomain.CreateProfileInput{
		UserID:        userID,
		Email:         body.Email,
		CollegeDomain: body.CollegeDomain,
		Role:          body.Role,
		Source:        body.Source,
		DisplayName:   body.DisplayName,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profileJSONFrom(profile))
}

func (a *apiHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	var body struct {
		Email              *string `json:"email"`
		CollegeDomain      *string `json:"college_domain"`
		Role               *string `json:"role"`
		DisplayName        *string `json:"display_name"`
		IsVerified         *bool   `json:"is_verified"`
		OnboardingComplete *bool   `json:"onboarding_complete"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	profile, err := a.services.Profiles.UpdateProfile(r.Context(), profilesdomain.UpdateProfileInput{
		UserID:             userID,
		Email:              body.Email,
		CollegeDomain:      body.CollegeDomain,
		Role:               body.Role,
		DisplayName:        body.DisplayName,
		IsVerified:         body.IsVerified,
		OnboardingComplete: body.OnboardingComplete,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileJSONFrom(profile))
}

func (a *apiHandler) touchLastActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	profile, err := a.services.Profiles.TouchLastActive(r.Context(), userID)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileJSONFrom(profile))
}

func (a *apiHandler) listMentors(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.user(w, r); !ok {
		return
	}
	page, err := a.services.Profiles.ListMentors(r.Context(), profilesdomain.ListMentorsInput{
		CollegeDomain: r.URL.Query().Get("domain"),
		PageSize:      queryInt(r, "page_size"),
		PageToken:     r.URL.Query().Get("page_token"),
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	mentors := make([]profileJSON, 0, len(page.Profiles))
	for _, profile := range page.Profiles {
		mentors = append(mentors, profileJSONFrom(profile))
	}
	writeJSON(w, http.StatusOK, struct {
		Mentors       []profileJSON `json:"mentors"`
		NextPageToken string        `json:"next_page_token,omitempty"`
	}{Mentors: mentors, NextPageToken: page.NextPageToken})
}

func (a *apiHandler) listRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	page, err := a.services.Mentorship.ListRequests(r.Context(), mentorshipdomain.ListRequestsInput{
		UserID:    userID,
		PageSize:  queryInt(r, "page_size"),
		PageToken: r.URL.Query().Get("page_token"),
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	requests := make([]requestJSON, 0, len(page.Requests))
	for _, request := range page.Requests {
		requests = append(requests, requestJSONFrom(request))
	}
	writeJSON(w, http.StatusOK, struct {
		Requests      []requestJSON `json:"requests"`
		NextPageToken string        `json:"next_page_token,omitempty"`
	}{Requests: requests, NextPageToken: page.NextPageToken})
}

func (a *apiHandler) createRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	var body struct {
		MentorID string `json:"mentor_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	// The requester's role comes from their own profile, never the payload.
	snapshot, err := a.services.Profiles.GetIdentitySnapshot(r.Context(), userID)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	request, err := a.services.Mentorship.CreateRequest(r.Context(), mentorshipdomain.CreateRequestInput{
		RequesterID:   userID,
		RequesterRole: snapshot.Role,
		MentorID:      body.MentorID,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, requestJSONFrom(request))
}

func (a *apiHandler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, a.services.Mentorship.Accept)
}

func (a *apiHandler) cancelRequest(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, a.services.Mentorship.Cancel)
}

func (a *apiHandler) completeRequest(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, a.services.Mentorship.Complete)
}

func (a *apiHandler) respond(w http.ResponseWriter, r *http.Request, transition func(ctx context.Context, input mentorshipdomain.RespondInput) (mentorshipdomain.Request, error)) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	request, err := transition(r.Context(), mentorshipdomain.RespondInput{
		RequestID: r.PathValue("id"),
		ActorID:   userID,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestJSONFrom(request))
}

func (a *apiHandler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	var body struct {
		SuggestedMentorID string `json:"suggested_mentor_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	request, err := a.services.Mentorship.Reject(r.Context(), mentorshipdomain.RejectInput{
		RequestID:         r.PathValue("id"),
		ActorID:           userID,
		SuggestedMentorID: body.SuggestedMentorID,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestJSONFrom(request))
}

func (a *apiHandler) submitFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.user(w, r)
	if !ok {
		return
	}
	var body struct {
		Field    string `json:"field"`
		Feedback string `json:"feedback"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	request, err := a.services.Mentorship.SubmitFeedback(r.Context(), mentorshipdomain.FeedbackInput{
		RequestID: r.PathValue("id"),
		ActorID:   userID,
		Field:     mentorshipdomain.FeedbackField(body.Field),
		Feedback:  body.Feedback,
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestJSONFrom(request))
}

type identityJSON struct {
	UserID             string `json:"user_id"`
	CollegeDomain      string `json:"college_domain"`
	Role               string `json:"role"`
	Source             string `json:"source"`
	IsVerified         bool   `json:"is_verified"`
	OnboardingComplete bool   `json:"onboarding_complete"`
}

func identityJSONFrom(snapshot profilesdomain.IdentitySnapshot) identityJSON {
	return identityJSON{
		UserID:             snapshot.UserID,
		CollegeDomain:      snapshot.CollegeDomain,
		Role:               snapshot.Role,
		Source:             snapshot.Source,
		IsVerified:         snapshot.IsVerified,
		OnboardingComplete: snapshot.OnboardingComplete,
	}
}

type profileJSON struct {
	UserID             string `json:"user_id"`
	Email              string `json:"email"`
	CollegeDomain      string `json:"college_domain"`
	Role               string `json:"role"`
	Source             string `json:"source"`
	IsVerified         bool   `json:"is_verified"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	DisplayName        string `json:"display_name,omitempty"`
	LastActiveAt       string `json:"last_active_at"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

func profileJSONFrom(profile profilesdomain.Profile) profileJSON {
	return profileJSON{
		UserID:             profile.UserID,
		Email:              profile.Email,
		CollegeDomain:      profile.CollegeDomain,
		Role:               profile.Role,
		Source:             profile.Source,
		IsVerified:         profile.IsVerified,
		OnboardingComplete: profile.OnboardingComplete,
		DisplayName:        profile.DisplayName,
		LastActiveAt:       profile.LastActiveAt.UTC().Format(time.RFC3339),
		CreatedAt:          profile.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          profile.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type requestJSON struct {
	ID                string  `json:"id"`
	RequesterID       string  `json:"requester_id"`
	MentorID          string  `json:"mentor_id"`
	Status            string  `json:"status"`
	SuggestedMentorID string  `json:"suggested_mentor_id,omitempty"`
	RequesterFeedback string  `json:"requester_feedback,omitempty"`
	MentorFeedback    string  `json:"mentor_feedback,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
	RespondedAt       *string `json:"responded_at,omitempty"`
	CompletedAt       *string `json:"completed_at,omitempty"`
	CancelledAt       *string `json:"cancelled_at,omitempty"`
}

func requestJSONFrom(request mentorshipdomain.Request) requestJSON {
	return requestJSON{
		ID:                request.ID,
		RequesterID:       request.RequesterID,
		MentorID:          request.MentorID,
		Status:            string(request.Status),
		SuggestedMentorID: request.SuggestedMentorID,
		RequesterFeedback: request.RequesterFeedback,
		MentorFeedback:    request.MentorFeedback,
		CreatedAt:         request.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         request.UpdatedAt.UTC().Format(time.RFC3339),
		RespondedAt:       formatOptionalTime(request.RespondedAt),
		CompletedAt:       formatOptionalTime(request.CompletedAt),
		CancelledAt:       formatOptionalTime(request.CancelledAt),
	}
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

func queryInt(r *http.Request, name string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return value
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("syncgate: encode api response: %v", err)
	}
}

// writeAPIError renders a domain error as a JSON body carrying the machine
// code and a message localized for the request's Accept-Language.
func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	catalog := i18n.GetCatalog(localeFromHeader(r.Header.Get("Accept-Language")))
	writeJSON(w, httpStatusOf(code), struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{
		Code:    string(code),
		Message: catalog.Format(string(code), apperrors.MetadataOf(err)),
	})
}

func httpStatusOf(code apperrors.Code) int {
	switch code {
	case apperrors.CodeProfileUserIDRequired,
		apperrors.CodeProfileEmailInvalid,
		apperrors.CodeProfileDomainRequired,
		apperrors.CodeProfileRoleInvalid,
		apperrors.CodeProfileSourceInvalid,
		apperrors.CodeProfileDisplayNameLong,
		apperrors.CodeRequestRequesterRequired,
		apperrors.CodeRequestMentorRequired,
		apperrors.CodeRequestSelfNotAllowed,
		apperrors.CodeFeedbackEmpty,
		apperrors.CodeChannelNameRequired,
		apperrors.CodeSyncFrameInvalid,
		apperrors.CodeSyncPayloadTooLarge:
		return http.StatusBadRequest
	case apperrors.CodeRequestRoleNotAllowed,
		apperrors.CodeRequestPartyMismatch,
		apperrors.CodeFeedbackFieldNotOwned,
		apperrors.CodeSyncScopeDenied:
		return http.StatusForbidden
	case apperrors.CodeRequestAlreadyActive,
		apperrors.CodeRequestInvalidTransition,
		apperrors.CodeRequestTerminalState,
		apperrors.CodeFeedbackNotCompleted:
		return http.StatusConflict
	case apperrors.CodeIdentityNotSignedIn,
		apperrors.CodeIdentityTokenInvalid,
		apperrors.CodeIdentityTokenExpired:
		return http.StatusUnauthorized
	case apperrors.CodeSyncRateLimited:
		return http.StatusTooManyRequests
	case apperrors.CodeIdentityFetchFailed,
		apperrors.CodeChannelOpenFailed:
		return http.StatusServiceUnavailable
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
