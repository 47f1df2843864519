package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/realtime/change"
	"github.com/campuslink/campuslink/internal/realtime/transport/ws"
	mentorshipdomain "github.com/campuslink/campuslink/internal/services/mentorship/domain"
	profilesdomain "github.com/campuslink/campuslink/internal/services/profiles/domain"
)

type fakeAuthenticator struct {
	userID  string
	authErr error
}

func (f fakeAuthenticator) Authenticate(_ context.Context, _ string) (string, error) {
	if f.authErr != nil {
		return "", f.authErr
	}
	return f.userID, nil
}

func dialWS(t *testing.T, handler http.Handler, cookie string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conn, err := dialWSWithServerURL(srv.URL, cookie)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func dialWSErr(t *testing.T, handler http.Handler, cookie string) error {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conn, err := dialWSWithServerURL(srv.URL, cookie)
	if conn != nil {
		_ = conn.Close()
	}
	return err
}

func dialWSWithServerURL(httpURL string, cookie string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	if strings.TrimSpace(cookie) == "" {
		return websocket.Dial(wsURL, "", httpURL)
	}
	cfg, err := websocket.NewConfig(wsURL, httpURL)
	if err != nil {
		return nil, err
	}
	cfg.Header = make(http.Header)
	cfg.Header.Set("Cookie", cookie)
	return websocket.DialConfig(cfg)
}

func dialWSWithLocale(t *testing.T, handler http.Handler, cookie, acceptLanguage string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, srv.URL)
	if err != nil {
		t.Fatalf("websocket config: %v", err)
	}
	cfg.Header = make(http.Header)
	if cookie != "" {
		cfg.Header.Set("Cookie", cookie)
	}
	cfg.Header.Set("Accept-Language", acceptLanguage)
	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) ws.Frame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got ws.Frame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func subscribe(t *testing.T, conn *websocket.Conn, collection, scopeKey string) {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":       ws.FrameTypeSubscribe,
		"request_id": "req-sub-1",
		"payload": map[string]any{
			"collection": collection,
			"scope_key":  scopeKey,
		},
	})
	got := readFrame(t, conn)
	if got.Type != ws.FrameTypeSubscribed {
		t.Fatalf("frame type = %q, want %q", got.Type, ws.FrameTypeSubscribed)
	}
}

func readChangeEvent(t *testing.T, conn *websocket.Conn) change.Event {
	t.Helper()
	got := readFrame(t, conn)
	if got.Type != ws.FrameTypeChange {
		t.Fatalf("frame type = %q, want %q", got.Type, ws.FrameTypeChange)
	}
	event, err := change.DecodeBytes(got.Payload)
	if err != nil {
		t.Fatalf("decode change payload: %v", err)
	}
	return event
}

func TestWebSocketSubscribeReturnsSubscribedFrame(t *testing.T) {
	handler, _ := NewHandler()
	conn := dialWS(t, handler, "")

	writeFrame(t, conn, map[string]any{
		"type":       ws.FrameTypeSubscribe,
		"request_id": "req-1",
		"payload": map[string]any{
			"collection": change.CollectionMentorshipRequests,
			"scope_key":  "user-1",
		},
	})

	got := readFrame(t, conn)
	if got.Type != ws.FrameTypeSubscribed {
		t.Fatalf("frame type = %q, want %q", got.Type, ws.FrameTypeSubscribed)
	}
	if got.RequestID != "req-1" {
		t.Fatalf("request id = %q, want %q", got.RequestID, "req-1")
	}

	var payload ws.SubscribedPayload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode subscribed payload: %v", err)
	}
	if payload.Collection != change.CollectionMentorshipRequests || payload.ScopeKey != "user-1" {
		t.Fatalf("unexpected subscribed payload %+v", payload)
	}
}

func TestWebSocketSubscribeRequiresCollectionAndScope(t *testing.T) {
	handler, _ := NewHandler()
	conn := dialWS(t, handler, "")

	writeFrame(t, conn, map[string]any{
		"type":       ws.FrameTypeSubscribe,
		"request_id": "req-1",
		"payload":    map[string]any{"collection": ""},
	})

	got := readFrame(t, conn)
	if got.Type != ws.FrameTypeError {
		t.Fatalf("frame type = %q, want %q", got.Type, ws.FrameTypeError)
	}
	var payload ws.ErrorPayload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Code != string(apperrors.CodeChannelNameRequired) {
		t.Fatalf("error code = %q, want %q", payload.Code, apperrors.CodeChannelNameRequired)
	}
}

func TestWebSocketUnsupportedFrameTypeReturnsError(t *testing.T) {
	handler, _ := NewHandler()
	conn := dialWS(t, handler, "")

	writeFrame(t, conn, map[string]any{
		"type":       "sync.bogus",
		"request_id": "req-1",
		"payload":    map[string]any{},
	})

	got := readFrame(t, conn)
	if got.Type != ws.FrameTypeError {
		t.Fatalf("frame type = %q, want %q", got.Type, ws.FrameTypeError)
	}
}

func TestWebSocketDialWithoutTokenIsRejected(t *testing.T) {
	handler, _ := NewHandlerWithAuthenticator(fakeAuthenticator{userID: "user-1"})
	if err := dialWSErr(t, handler, ""); err == nil {
		t.Fatal("expected dial to fail without access token")
	}
}

func TestWebSocketDialWithInvalidTokenIsRejected(t *testing.T) {
	handler, _ := NewHandlerWithAuthenticator(fakeAuthenticator{authErr: errors.New("bad token")})
	if err := dialWSErr(t, handler, "cl_token=not-a-token"); err == nil {
		t.Fatal("expected dial to fail with invalid access token")
	}
}

func TestWebSocketForeignRequestScopeIsDenied(t *testing.T) {
	handler, _ := NewHandlerWithAuthenticator(fakeAuthenticator{userID: "user-1"})
	conn := dialWS(t, handler, "cl_token=token-1")

	writeFrame(t, conn, map[string]any{
		"type":       ws.FrameTypeSubscribe,
		"request_id": "req-1",
		"payload": map[string]any{
			"collection": change.CollectionMentorshipRequests,
			"scope_key":  "user-2",
		},
	})

	got := readFrame(t, conn)
	if got.Type != ws.FrameTypeError {
		t.Fatalf("frame type = %q, want %q", got.Type, ws.FrameTypeError)
	}
	var payload ws.ErrorPayload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Code != string(apperrors.CodeSyncScopeDenied) {
		t.Fatalf("error code = %q, want %q", payload.Code, apperrors.CodeSyncScopeDenied)
	}
	if payload.Message != "You do not have access to this channel." {
		t.Fatalf("error message = %q, want the en-US catalog message", payload.Message)
	}
}

func TestWebSocketErrorMessagesFollowAcceptLanguage(t *testing.T) {
	handler, _ := NewHandlerWithAuthenticator(fakeAuthenticator{userID: "user-1"})
	conn := dialWSWithLocale(t, handler, "cl_token=token-1", "pt-BR,pt;q=0.9,en;q=0.8")

	writeFrame(t, conn, map[string]any{
		"type":       ws.FrameTypeSubscribe,
		"request_id": "req-1",
		"payload": map[string]any{
			"collection": change.CollectionMentorshipRequests,
			"scope_key":  "user-2",
		},
	})

	got := readFrame(t, conn)
	if got.Type != ws.FrameTypeError {
		t.Fatalf("frame type = %q, want %q", got.Type, ws.FrameTypeError)
	}
	var payload ws.ErrorPayload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Code != string(apperrors.CodeSyncScopeDenied) {
		t.Fatalf("error code = %q, want %q", payload.Code, apperrors.CodeSyncScopeDenied)
	}
	if payload.Message != "Você não tem acesso a este canal." {
		t.Fatalf("error message = %q, want the pt-BR catalog message", payload.Message)
	}
}

func TestWebSocketOwnScopeAndDirectoryScopeAreAllowed(t *testing.T) {
	handler, _ := NewHandlerWithAuthenticator(fakeAuthenticator{userID: "user-1"})
	conn := dialWS(t, handler, "cl_token=token-1")

	subscribe(t, conn, change.CollectionMentorshipRequests, "user-1")

	other := dialWS(t, handler, "cl_token=token-1")
	subscribe(t, other, change.CollectionProfiles, "state.edu")
}

func TestRequestChangeReachesBothParties(t *testing.T) {
	handler, broadcaster := NewHandler()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	requesterConn, err := dialWSWithServerURL(srv.URL, "")
	if err != nil {
		t.Fatalf("dial requester: %v", err)
	}
	t.Cleanup(func() { _ = requesterConn.Close() })
	subscribe(t, requesterConn, change.CollectionMentorshipRequests, "student-1")

	mentorConn, err := dialWSWithServerURL(srv.URL, "")
	if err != nil {
		t.Fatalf("dial mentor: %v", err)
	}
	t.Cleanup(func() { _ = mentorConn.Close() })
	subscribe(t, mentorConn, change.CollectionMentorshipRequests, "mentor-1")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	after := &mentorshipdomain.Request{
		ID:          "req-1",
		RequesterID: "student-1",
		MentorID:    "mentor-1",
		Status:      mentorshipdomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	broadcaster.PublishRequestChange(context.Background(), nil, after)

	for _, conn := range []*websocket.Conn{requesterConn, mentorConn} {
		event := readChangeEvent(t, conn)
		requestEvent, ok := event.(change.RequestEvent)
		if !ok {
			t.Fatalf("expected request event, got %T", event)
		}
		if requestEvent.Op() != change.OperationInsert {
			t.Fatalf("operation = %v, want insert", requestEvent.Op())
		}
		if requestEvent.After == nil || requestEvent.After.ID != "req-1" {
			t.Fatalf("unexpected after record %+v", requestEvent.After)
		}
	}
}

func TestProfileChangeReachesUserAndDirectoryChannels(t *testing.T) {
	handler, broadcaster := NewHandler()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	identityConn, err := dialWSWithServerURL(srv.URL, "")
	if err != nil {
		t.Fatalf("dial identity watcher: %v", err)
	}
	t.Cleanup(func() { _ = identityConn.Close() })
	subscribe(t, identityConn, change.CollectionProfiles, "user-1")

	directoryConn, err := dialWSWithServerURL(srv.URL, "")
	if err != nil {
		t.Fatalf("dial directory watcher: %v", err)
	}
	t.Cleanup(func() { _ = directoryConn.Close() })
	subscribe(t, directoryConn, change.CollectionProfiles, "state.edu")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	before := &profilesdomain.Profile{
		UserID:        "user-1",
		Email:         "jo@state.edu",
		CollegeDomain: "state.edu",
		Role:          profilesdomain.RoleStudent,
		Source:        profilesdomain.SourceEmail,
		LastActiveAt:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	after := *before
	after.Role = profilesdomain.RoleMentor
	broadcaster.PublishProfileChange(context.Background(), before, &after)

	for _, conn := range []*websocket.Conn{identityConn, directoryConn} {
		event := readChangeEvent(t, conn)
		profileEvent, ok := event.(change.ProfileEvent)
		if !ok {
			t.Fatalf("expected profile event, got %T", event)
		}
		if profileEvent.Op() != change.OperationUpdate {
			t.Fatalf("operation = %v, want update", profileEvent.Op())
		}
		if profileEvent.Before == nil || profileEvent.Before.Role != profilesdomain.RoleStudent {
			t.Fatalf("unexpected before record %+v", profileEvent.Before)
		}
		if profileEvent.After == nil || profileEvent.After.Role != profilesdomain.RoleMentor {
			t.Fatalf("unexpected after record %+v", profileEvent.After)
		}
	}
}

func TestDomainMoveReachesBothDirectories(t *testing.T) {
	handler, broadcaster := NewHandler()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	oldConn, err := dialWSWithServerURL(srv.URL, "")
	if err != nil {
		t.Fatalf("dial old directory watcher: %v", err)
	}
	t.Cleanup(func() { _ = oldConn.Close() })
	subscribe(t, oldConn, change.CollectionProfiles, "state.edu")

	newConn, err := dialWSWithServerURL(srv.URL, "")
	if err != nil {
		t.Fatalf("dial new directory watcher: %v", err)
	}
	t.Cleanup(func() { _ = newConn.Close() })
	subscribe(t, newConn, change.CollectionProfiles, "tech.edu")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	before := &profilesdomain.Profile{
		UserID:        "user-1",
		Email:         "jo@state.edu",
		CollegeDomain: "state.edu",
		Role:          profilesdomain.RoleMentor,
		Source:        profilesdomain.SourceEmail,
		LastActiveAt:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	after := *before
	after.CollegeDomain = "tech.edu"
	broadcaster.PublishProfileChange(context.Background(), before, &after)

	for _, conn := range []*websocket.Conn{oldConn, newConn} {
		event := readChangeEvent(t, conn)
		if _, ok := event.(change.ProfileEvent); !ok {
			t.Fatalf("expected profile event, got %T", event)
		}
	}
}
