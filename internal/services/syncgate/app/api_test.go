package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/realtime/change"
	mentorshipdomain "github.com/campuslink/campuslink/internal/services/mentorship/domain"
	mentorshipsqlite "github.com/campuslink/campuslink/internal/services/mentorship/storage/sqlite"
	profilesdomain "github.com/campuslink/campuslink/internal/services/profiles/domain"
	profilesqlite "github.com/campuslink/campuslink/internal/services/profiles/storage/sqlite"
)

// tokenMapAuthenticator resolves fixed tokens to user ids so tests can act as
// several users against one gateway.
type tokenMapAuthenticator map[string]string

func (m tokenMapAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	userID, ok := m[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return userID, nil
}

func newAPITestServer(t *testing.T, tokens map[string]string) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	profileStore, err := profilesqlite.Open(filepath.Join(dir, "profiles.db"))
	if err != nil {
		t.Fatalf("open profiles store: %v", err)
	}
	t.Cleanup(func() { _ = profileStore.Close() })

	requestStore, err := mentorshipsqlite.Open(filepath.Join(dir, "mentorship.db"))
	if err != nil {
		t.Fatalf("open mentorship store: %v", err)
	}
	t.Cleanup(func() { _ = requestStore.Close() })

	authenticator := tokenMapAuthenticator(tokens)
	mux, broadcaster := newHandler(authenticator, true)
	mountAPI(mux, authenticator, Services{
		Profiles:   profilesdomain.NewService(profileStore, broadcaster, nil),
		Mentorship: mentorshipdomain.NewService(requestStore, broadcaster, nil, nil),
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func apiDo(t *testing.T, srv *httptest.Server, method, path, token string, body any, header http.Header) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for name, values := range header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	if token != "" {
		req.Header.Set("Cookie", tokenCookieName+"="+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp.StatusCode, data
}

func createAPIProfile(t *testing.T, srv *httptest.Server, token, email, role string) {
	t.Helper()
	status, body := apiDo(t, srv, http.MethodPost, "/api/profile", token, map[string]any{
		"email":          email,
		"college_domain": "state.edu",
		"role":           role,
		"source":         "email",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create profile status = %d, body %s", status, body)
	}
}

func TestAPIRequestLifecycleFansOutToChannels(t *testing.T) {
	tokens := map[string]string{"tok-student": "student-1", "tok-mentor": "mentor-1"}
	srv := newAPITestServer(t, tokens)

	createAPIProfile(t, srv, "tok-student", "jo@state.edu", "student")
	createAPIProfile(t, srv, "tok-mentor", "ana@state.edu", "mentor")

	mentorConn, err := dialWSWithServerURL(srv.URL, tokenCookieName+"=tok-mentor")
	if err != nil {
		t.Fatalf("dial mentor channel: %v", err)
	}
	t.Cleanup(func() { _ = mentorConn.Close() })
	subscribe(t, mentorConn, change.CollectionMentorshipRequests, "mentor-1")

	status, body := apiDo(t, srv, http.MethodPost, "/api/requests", "tok-student", map[string]any{
		"mentor_id": "mentor-1",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create request status = %d, body %s", status, body)
	}
	var created requestJSON
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode created request: %v", err)
	}
	if created.Status != "pending" || created.RequesterID != "student-1" {
		t.Fatalf("unexpected created request %+v", created)
	}

	event := readChangeEvent(t, mentorConn)
	requestEvent, ok := event.(change.RequestEvent)
	if !ok {
		t.Fatalf("expected request event on mentor channel, got %T", event)
	}
	if requestEvent.Op() != change.OperationInsert || requestEvent.After == nil || requestEvent.After.ID != created.ID {
		t.Fatalf("unexpected change event %+v", requestEvent)
	}

	status, body = apiDo(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/accept", "tok-mentor", map[string]any{}, nil)
	if status != http.StatusOK {
		t.Fatalf("accept status = %d, body %s", status, body)
	}
	var accepted requestJSON
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("decode accepted request: %v", err)
	}
	if accepted.Status != "accepted" {
		t.Fatalf("status after accept = %q", accepted.Status)
	}

	event = readChangeEvent(t, mentorConn)
	if updateEvent, ok := event.(change.RequestEvent); !ok || updateEvent.Op() != change.OperationUpdate {
		t.Fatalf("expected update event after accept, got %+v", event)
	}

	// Accepting again is an invalid transition and must surface as a coded
	// conflict, not a duplicate write.
	status, body = apiDo(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/accept", "tok-mentor", map[string]any{}, nil)
	if status != http.StatusConflict {
		t.Fatalf("second accept status = %d, body %s", status, body)
	}
	var apiErr struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != string(apperrors.CodeRequestInvalidTransition) {
		t.Fatalf("error code = %q, want %q", apiErr.Code, apperrors.CodeRequestInvalidTransition)
	}
}

func TestAPIIdentityServesSnapshot(t *testing.T) {
	srv := newAPITestServer(t, map[string]string{"tok-student": "student-1"})
	createAPIProfile(t, srv, "tok-student", "jo@state.edu", "student")

	status, body := apiDo(t, srv, http.MethodGet, "/api/identity", "tok-student", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("identity status = %d, body %s", status, body)
	}
	var snapshot identityJSON
	if err := json.Unmarshal(body, &snapshot); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if snapshot.UserID != "student-1" || snapshot.CollegeDomain != "state.edu" || snapshot.Role != "student" {
		t.Fatalf("unexpected identity snapshot %+v", snapshot)
	}
}

func TestAPIWithoutTokenIsUnauthorized(t *testing.T) {
	srv := newAPITestServer(t, map[string]string{})

	status, body := apiDo(t, srv, http.MethodGet, "/api/identity", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", status, body)
	}
	var apiErr struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != string(apperrors.CodeIdentityNotSignedIn) {
		t.Fatalf("error code = %q, want %q", apiErr.Code, apperrors.CodeIdentityNotSignedIn)
	}
}

func TestAPIErrorsAreLocalized(t *testing.T) {
	srv := newAPITestServer(t, map[string]string{"tok-student": "student-1"})
	createAPIProfile(t, srv, "tok-student", "jo@state.edu", "student")

	header := make(http.Header)
	header.Set("Accept-Language", "pt-BR,pt;q=0.9")
	status, body := apiDo(t, srv, http.MethodPost, "/api/requests", "tok-student", map[string]any{
		"mentor_id": "student-1",
	}, header)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", status, body)
	}
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != string(apperrors.CodeRequestSelfNotAllowed) {
		t.Fatalf("error code = %q, want %q", apiErr.Code, apperrors.CodeRequestSelfNotAllowed)
	}
	if apiErr.Message != "Você não pode enviar um pedido de mentoria para si mesmo." {
		t.Fatalf("error message = %q, want the pt-BR catalog message", apiErr.Message)
	}
}
