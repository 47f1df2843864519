package requests

import (
	"context"
	"fmt"
	"sync"

	"github.com/campuslink/campuslink/internal/realtime/cachestore"
	"github.com/campuslink/campuslink/internal/realtime/router"
	"github.com/campuslink/campuslink/internal/services/mentorship/domain"
)

// Lister fetches the authoritative request list for one user.
type Lister interface {
	ListRequests(ctx context.Context, userID string) ([]domain.Request, error)
}

// View caches the viewer's request list and refetches lazily after a routed
// invalidation. Reads between invalidations are served from memory.
// It is safe for concurrent use.
type View struct {
	lister Lister
	userID string

	mu       sync.Mutex
	requests []domain.Request
	loaded   bool
	stale    bool
}

// NewView creates an empty view for userID backed by lister.
func NewView(lister Lister, userID string) *View {
	return &View{lister: lister, userID: userID}
}

// Requests returns the viewer's request list, fetching when the view is
// unloaded or stale. On fetch failure the last-known-good list is returned
// alongside the error.
func (v *View) Requests(ctx context.Context) ([]domain.Request, error) {
	v.mu.Lock()
	if v.loaded && !v.stale {
		cached := append([]domain.Request(nil), v.requests...)
		v.mu.Unlock()
		return cached, nil
	}
	v.mu.Unlock()

	fresh, err := v.lister.ListRequests(ctx, v.userID)
	if err != nil {
		v.mu.Lock()
		lastGood := append([]domain.Request(nil), v.requests...)
		v.mu.Unlock()
		return lastGood, fmt.Errorf("refresh request list: %w", err)
	}

	v.mu.Lock()
	v.requests = fresh
	v.loaded = true
	v.stale = false
	cached := append([]domain.Request(nil), v.requests...)
	v.mu.Unlock()
	return cached, nil
}

// Get returns one cached request by id without fetching.
func (v *View) Get(requestID string) (domain.Request, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, request := range v.requests {
		if request.ID == requestID {
			return request, true
		}
	}
	return domain.Request{}, false
}

// Invalidate marks the view stale when key targets this viewer's request
// list. Keys for other kinds or other viewers are ignored.
func (v *View) Invalidate(key cachestore.Key) {
	if key != router.RequestsKey(v.userID) {
		return
	}
	v.MarkStale()
}

// MarkStale forces the next read to refetch.
func (v *View) MarkStale() {
	v.mu.Lock()
	v.stale = true
	v.mu.Unlock()
}
