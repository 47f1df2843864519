// Package server hosts the sync gateway: the websocket surface that streams
// row change notifications to connected clients. The gateway is transport
// only. It verifies identity, enforces per-channel scope access, and fans out
// frames produced by the domain services; it never interprets row contents.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/platform/errors/i18n"
	"github.com/campuslink/campuslink/internal/platform/timeouts"
	"github.com/campuslink/campuslink/internal/realtime/change"
	"github.com/campuslink/campuslink/internal/realtime/session"
	"github.com/campuslink/campuslink/internal/realtime/transport/ws"
)

const (
	tokenCookieName = "cl_token"

	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

// Config defines the inputs for the sync gateway transport boundary.
type Config struct {
	HTTPAddr          string
	Verifier          session.VerifierConfig
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the sync gateway HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	mux             *http.ServeMux
	authenticator   wsAuthenticator
	broadcaster     *Broadcaster
}

// wsAuthenticator resolves an access token to a user id.
type wsAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

type tokenAuthenticator struct {
	cfg session.VerifierConfig
}

func (a tokenAuthenticator) Authenticate(_ context.Context, accessToken string) (string, error) {
	claims, err := session.VerifyAccessToken(accessToken, a.cfg)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

type wsUserIDContextKey struct{}

// NewHandler creates sync gateway routes for tests and offline paths.
// WebSocket auth is intentionally disabled in this constructor.
func NewHandler() (http.Handler, *Broadcaster) {
	return newHandler(nil, false)
}

// NewHandlerWithAuthenticator creates sync gateway routes with enforced
// websocket identity checks.
func NewHandlerWithAuthenticator(authenticator wsAuthenticator) (http.Handler, *Broadcaster) {
	return newHandler(authenticator, true)
}

func newHandler(authenticator wsAuthenticator, requireAuth bool) (*http.ServeMux, *Broadcaster) {
	hub := newChannelHub()
	broadcaster := &Broadcaster{hub: hub}

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, hub, requireAuth)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if requireAuth {
			if authenticator == nil {
				http.Error(w, "websocket auth is not configured", http.StatusServiceUnavailable)
				return
			}

			accessToken := accessTokenFromRequest(r)
			if accessToken == "" {
				log.Printf("syncgate: websocket unauthorized: missing cl_token for host=%q remote=%s", r.Host, r.RemoteAddr)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			userID, err := authenticator.Authenticate(r.Context(), accessToken)
			if err != nil || strings.TrimSpace(userID) == "" {
				log.Printf("syncgate: websocket unauthorized: token verification failed for host=%q remote=%s err=%v", r.Host, r.RemoteAddr, err)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), wsUserIDContextKey{}, strings.TrimSpace(userID))
			r = r.WithContext(ctx)
		}

		wsHandler.ServeHTTP(w, r)
	})

	return mux, broadcaster
}

func accessTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	cookie, err := r.Cookie(tokenCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func handleWSConn(conn *websocket.Conn, hub *channelHub, requireAuth bool) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))
	defer hub.drop(peer)

	userID := ""
	locale := ""
	if request := conn.Request(); request != nil {
		if resolved, ok := request.Context().Value(wsUserIDContextKey{}).(string); ok {
			userID = strings.TrimSpace(resolved)
		}
		locale = localeFromHeader(request.Header.Get("Accept-Language"))
	}
	catalog := i18n.GetCatalog(locale)

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame ws.Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, catalog, "", apperrors.Wrap(apperrors.CodeSyncFrameInvalid, "decode frame", err))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, catalog, frame.RequestID, apperrors.New(apperrors.CodeSyncPayloadTooLarge, "frame payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, catalog, frame.RequestID, apperrors.New(apperrors.CodeSyncRateLimited, "frame rate limit exceeded"))
			return
		}

		switch frame.Type {
		case ws.FrameTypeSubscribe:
			handleSubscribeFrame(peer, catalog, hub, frame, userID, requireAuth)
		default:
			_ = writeWSError(peer, catalog, frame.RequestID, apperrors.New(apperrors.CodeSyncFrameInvalid, "unsupported frame type"))
		}
	}
}

func handleSubscribeFrame(peer *wsPeer, catalog *i18n.Catalog, hub *channelHub, frame ws.Frame, userID string, requireAuth bool) {
	var payload ws.SubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, catalog, frame.RequestID, apperrors.Wrap(apperrors.CodeSyncFrameInvalid, "decode subscribe payload", err))
		return
	}

	collection := strings.TrimSpace(payload.Collection)
	scopeKey := strings.TrimSpace(payload.ScopeKey)
	if collection == "" || scopeKey == "" {
		_ = writeWSError(peer, catalog, frame.RequestID, apperrors.New(apperrors.CodeChannelNameRequired, "collection and scope_key are required"))
		return
	}

	if requireAuth && !scopeAllowed(userID, collection, scopeKey) {
		log.Printf("syncgate: subscription denied user=%q collection=%q scope=%q", userID, collection, scopeKey)
		_ = writeWSError(peer, catalog, frame.RequestID, apperrors.New(apperrors.CodeSyncScopeDenied, "scope access denied"))
		return
	}

	hub.subscribe(collection, scopeKey, peer)
	_ = peer.writeFrame(ws.Frame{
		Type:      ws.FrameTypeSubscribed,
		RequestID: frame.RequestID,
		Payload: mustJSON(ws.SubscribedPayload{
			Collection: collection,
			ScopeKey:   scopeKey,
			ServerTime: time.Now().UTC().Format(time.RFC3339),
		}),
	})
}

// scopeAllowed enforces per-channel access. Request channels and profile
// identity channels are scoped to the viewer's own user id. Mentor directory
// channels are scoped to a college domain, which every signed-in user of that
// app may watch; domains always contain a dot while user ids never do.
func scopeAllowed(userID, collection, scopeKey string) bool {
	if userID == "" {
		return false
	}
	switch collection {
	case change.CollectionMentorshipRequests:
		return scopeKey == userID
	case change.CollectionProfiles:
		return scopeKey == userID || strings.Contains(scopeKey, ".")
	default:
		return false
	}
}

// localeFromHeader extracts the most-preferred language tag from an
// Accept-Language header value; catalog matching resolves it to a supported
// locale.
func localeFromHeader(header string) string {
	first, _, _ := strings.Cut(header, ",")
	first, _, _ = strings.Cut(first, ";")
	return strings.TrimSpace(first)
}

// writeWSError renders err as an error frame: the payload carries the domain
// code for the client state machine and a message localized for the
// connection's negotiated locale.
func writeWSError(peer *wsPeer, catalog *i18n.Catalog, requestID string, err error) error {
	code := apperrors.CodeOf(err)
	return peer.writeFrame(ws.Frame{
		Type:      ws.FrameTypeError,
		RequestID: requestID,
		Payload: mustJSON(ws.ErrorPayload{
			Code:      string(code),
			Message:   catalog.Format(string(code), apperrors.MetadataOf(err)),
			Retryable: code == apperrors.CodeSyncRateLimited,
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}

// NewServer builds a configured sync gateway server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	authenticator := tokenAuthenticator{cfg: config.Verifier}
	mux, broadcaster := newHandler(authenticator, true)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		mux:             mux,
		authenticator:   authenticator,
		broadcaster:     broadcaster,
	}, nil
}

// Broadcaster exposes the change fanout sink the domain services publish to.
func (s *Server) Broadcaster() *Broadcaster {
	if s == nil {
		return nil
	}
	return s.broadcaster
}

// MountServices exposes services on the gateway's JSON API. Call before
// ListenAndServe.
func (s *Server) MountServices(services Services) {
	mountAPI(s.mux, s.authenticator, services)
}

// Run creates and serves a sync gateway until the context ends. The wire hook
// builds the domain services against the gateway's Broadcaster so every write
// they accept fans out to the subscribed channels; the services are then
// served on the JSON API.
func Run(ctx context.Context, config Config, wire func(*Broadcaster) (Services, error)) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init syncgate server: %w", err)
	}

	if wire != nil {
		services, err := wire(server.Broadcaster())
		if err != nil {
			return fmt.Errorf("wire syncgate services: %w", err)
		}
		server.MountServices(services)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve syncgate: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("syncgate server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("syncgate server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
