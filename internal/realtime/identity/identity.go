// Package identity caches the signed-in user's identity snapshot. Reads are
// single-flight: concurrent callers share one in-flight fetch, and a fetch
// failure degrades to the last-known-good snapshot instead of clearing it.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/realtime/cachestore"
	"github.com/campuslink/campuslink/internal/realtime/router"
)

// Snapshot is the authoritative identity tuple for one signed-in user.
// It is replaced wholesale on refresh, never partially mutated.
type Snapshot struct {
	UserID             string
	CollegeDomain      string
	Role               string
	Source             string
	IsVerified         bool
	OnboardingComplete bool
}

// Fetcher loads the authoritative identity tuple from the backend.
type Fetcher interface {
	FetchIdentity(ctx context.Context, userID string) (Snapshot, error)
}

// Status distinguishes "no identity yet" from "definitely signed out" so
// guarded surfaces don't redirect while a fetch is still outstanding.
type Status int

const (
	// StatusSignedOut means there is no session; absence is authoritative.
	StatusSignedOut Status = iota
	// StatusLoading means a session exists but no fetch has resolved yet.
	StatusLoading
	// StatusReady means a snapshot is available (possibly stale or degraded).
	StatusReady
)

const defaultTTL = time.Hour

// Cache is the single-flight identity snapshot cache.
// It is safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	clock   clock.Clock
	ttl     time.Duration
	group   singleflight.Group

	mu         sync.Mutex
	userID     string
	snapshot   *Snapshot
	fetchedAt  time.Time
	stale      bool
	generation uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the snapshot freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock injects the time source, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) { c.clock = clk }
}

// NewCache creates an identity cache in the signed-out state.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		clock:   clock.New(),
		ttl:     defaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignIn binds the cache to userID and forces a refresh on the next read.
func (c *Cache) SignIn(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != userID {
		c.snapshot = nil
	}
	c.userID = userID
	c.stale = true
	c.generation++
}

// SignOut clears the cached snapshot synchronously so guarded surfaces react
// immediately, and detaches any in-flight fetch result.
func (c *Cache) SignOut() {
	c.mu.Lock()
	previous := c.userID
	c.userID = ""
	c.snapshot = nil
	c.stale = false
	c.generation++
	c.mu.Unlock()

	if previous != "" {
		c.group.Forget(previous)
	}
}

// TokenRefreshed forces a refresh on the next read; the authoritative tuple
// can change across a token rotation.
func (c *Cache) TokenRefreshed() {
	c.MarkStale()
}

// MarkStale discards freshness without touching the cached value. The next
// read observes either a fresh fetch or nothing, never a value older than
// the invalidation: any fetch already in flight carries an older generation,
// so its result cannot re-mark the snapshot fresh, and the single-flight key
// is forgotten so later readers start a new fetch instead of joining it.
func (c *Cache) MarkStale() {
	c.mu.Lock()
	userID := c.userID
	c.stale = true
	c.generation++
	c.mu.Unlock()

	if userID != "" {
		c.group.Forget(userID)
	}
}

// Invalidate marks the snapshot stale when key targets this cache's user.
// Keys for other users or other kinds are ignored.
func (c *Cache) Invalidate(key cachestore.Key) {
	c.mu.Lock()
	userID := c.userID
	matches := key.Kind == router.KindIdentity && key.Scope != "" && key.Scope == userID
	if matches {
		c.stale = true
		c.generation++
	}
	c.mu.Unlock()

	if matches {
		c.group.Forget(userID)
	}
}

// Status reports the session/loading state. See the Status constants.
func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.userID == "":
		return StatusSignedOut
	case c.snapshot == nil:
		return StatusLoading
	default:
		return StatusReady
	}
}

// Get returns the identity snapshot for the signed-in user.
//
// A fresh cached snapshot is returned directly. A stale or missing snapshot
// triggers exactly one fetch; concurrent callers await that same fetch. On
// fetch failure the last-known-good snapshot is returned together with a
// fetch error so callers can degrade instead of treating the failure as "no
// profile". When signed out, Get returns (nil, nil).
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	userID := c.userID
	if userID == "" {
		c.mu.Unlock()
		return nil, nil
	}
	if c.snapshot != nil && !c.stale && c.clock.Now().Sub(c.fetchedAt) < c.ttl {
		cached := *c.snapshot
		c.mu.Unlock()
		return &cached, nil
	}
	lastGood := c.snapshot
	generation := c.generation
	c.mu.Unlock()

	results := c.group.DoChan(userID, func() (any, error) {
		snapshot, err := c.fetcher.FetchIdentity(context.WithoutCancel(ctx), userID)
		if err != nil {
			return nil, err
		}
		c.store(userID, generation, snapshot)
		return snapshot, nil
	})

	select {
	case <-ctx.Done():
		// The caller went away; the shared fetch keeps running for the rest.
		return nil, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			var retained *Snapshot
			if lastGood != nil {
				copied := *lastGood
				retained = &copied
			}
			return retained, apperrors.Wrap(apperrors.CodeIdentityFetchFailed, "refresh identity snapshot", result.Err)
		}
		snapshot := result.Val.(Snapshot)
		return &snapshot, nil
	}
}

// Refresh forces an immediate refetch, bypassing freshness.
func (c *Cache) Refresh(ctx context.Context) error {
	c.MarkStale()
	_, err := c.Get(ctx)
	return err
}

func (c *Cache) store(userID string, generation uint64, snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A sign-out or account switch during the fetch wins over the result.
	if c.userID != userID {
		return
	}
	// So does an invalidation: a result from a fetch that started before the
	// invalidation must not overwrite the snapshot or re-mark it fresh.
	if c.generation != generation {
		return
	}
	copied := snapshot
	c.snapshot = &copied
	c.fetchedAt = c.clock.Now()
	c.stale = false
}
