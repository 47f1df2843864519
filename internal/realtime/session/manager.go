package session

import (
	"sync"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
)

// Listener receives auth transitions. Callbacks run synchronously on the
// goroutine that triggered the transition and must not call back into the
// manager.
type Listener interface {
	HandleSignIn(userID string)
	HandleSignOut()
	HandleTokenRefreshed(userID string)
}

// Manager tracks the signed-in user and fans auth transitions out to
// listeners. It is safe for concurrent use.
type Manager struct {
	cfg VerifierConfig

	mu        sync.Mutex
	claims    *Claims
	listeners []Listener
}

// NewManager creates a signed-out session manager.
func NewManager(cfg VerifierConfig) *Manager {
	return &Manager{cfg: cfg}
}

// AddListener registers a listener for subsequent auth transitions.
func (m *Manager) AddListener(listener Listener) {
	if listener == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	m.mu.Unlock()
}

// SignIn verifies token and transitions the session to its subject. Signing
// in while a different user is active signs that user out first.
func (m *Manager) SignIn(token string) (Claims, error) {
	claims, err := VerifyAccessToken(token, m.cfg)
	if err != nil {
		return Claims{}, err
	}

	m.mu.Lock()
	previous := m.claims
	m.claims = &claims
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if previous != nil && previous.UserID != claims.UserID {
		for _, listener := range listeners {
			listener.HandleSignOut()
		}
	}
	for _, listener := range listeners {
		listener.HandleSignIn(claims.UserID)
	}
	return claims, nil
}

// TokenRefreshed verifies a refreshed token for the current user. A token for
// a different subject is rejected rather than silently switching users.
func (m *Manager) TokenRefreshed(token string) (Claims, error) {
	claims, err := VerifyAccessToken(token, m.cfg)
	if err != nil {
		return Claims{}, err
	}

	m.mu.Lock()
	current := m.claims
	if current == nil {
		m.mu.Unlock()
		return Claims{}, apperrors.New(apperrors.CodeIdentityNotSignedIn, "no active session to refresh")
	}
	if current.UserID != claims.UserID {
		m.mu.Unlock()
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeIdentityTokenInvalid,
			"refreshed token subject mismatch",
			map[string]string{"Field": "sub"},
		)
	}
	m.claims = &claims
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, listener := range listeners {
		listener.HandleTokenRefreshed(claims.UserID)
	}
	return claims, nil
}

// SignOut clears the session. Signing out while signed out is a no-op and
// notifies nobody.
func (m *Manager) SignOut() {
	m.mu.Lock()
	wasSignedIn := m.claims != nil
	m.claims = nil
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if !wasSignedIn {
		return
	}
	for _, listener := range listeners {
		listener.HandleSignOut()
	}
}

// UserID returns the signed-in user ID, or false when signed out.
func (m *Manager) UserID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims == nil {
		return "", false
	}
	return m.claims.UserID, true
}
