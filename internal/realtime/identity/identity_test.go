package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	apperrors "github.com/campuslink/campuslink/internal/platform/errors"
	"github.com/campuslink/campuslink/internal/realtime/cachestore"
	"github.com/campuslink/campuslink/internal/realtime/router"
)

type fakeFetcher struct {
	mu       sync.Mutex
	fetches  atomic.Int32
	snapshot Snapshot
	err      error
	block    chan struct{}
}

func (f *fakeFetcher) FetchIdentity(_ context.Context, userID string) (Snapshot, error) {
	f.fetches.Add(1)
	// Capture the result before blocking so a gated fetch returns the value
	// that was authoritative when it started, not when it was released.
	f.mu.Lock()
	err := f.err
	snapshot := f.snapshot
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.UserID = userID
	return snapshot, nil
}

func (f *fakeFetcher) set(snapshot Snapshot) {
	f.mu.Lock()
	f.snapshot = snapshot
	f.mu.Unlock()
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestGetSignedOutReturnsNil(t *testing.T) {
	t.Parallel()

	cache := NewCache(&fakeFetcher{})
	snapshot, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("get signed out: %v", err)
	}
	if snapshot != nil {
		t.Fatalf("expected nil snapshot when signed out, got %+v", snapshot)
	}
	if cache.Status() != StatusSignedOut {
		t.Fatalf("expected signed-out status, got %v", cache.Status())
	}
}

func TestGetFetchesOnceAndCaches(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snapshot: Snapshot{CollegeDomain: "state.edu", Role: "student"}}
	cache := NewCache(fetcher)
	cache.SignIn("user-1")

	first, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first == nil || first.CollegeDomain != "state.edu" {
		t.Fatalf("unexpected snapshot %+v", first)
	}

	second, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second == nil || second.UserID != "user-1" {
		t.Fatalf("unexpected snapshot %+v", second)
	}
	if fetcher.fetches.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", fetcher.fetches.Load())
	}
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		snapshot: Snapshot{Role: "student"},
		block:    make(chan struct{}),
	}
	cache := NewCache(fetcher)
	cache.SignIn("user-1")

	const readers = 8
	var wg sync.WaitGroup
	errs := make([]error, readers)
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = cache.Get(context.Background())
		}()
	}

	// Give every reader time to join the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("reader %d: %v", i, err)
		}
	}
	if fetcher.fetches.Load() != 1 {
		t.Fatalf("expected single shared fetch, got %d", fetcher.fetches.Load())
	}
}

func TestCancelledReaderDoesNotCancelSharedFetch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		snapshot: Snapshot{Role: "student"},
		block:    make(chan struct{}),
	}
	cache := NewCache(fetcher)
	cache.SignIn("user-1")

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(cancelCtx)
		cancelledErr <- err
	}()

	patientResult := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background())
		patientResult <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-cancelledErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}

	close(fetcher.block)
	if err := <-patientResult; err != nil {
		t.Fatalf("patient reader should still resolve: %v", err)
	}
	if fetcher.fetches.Load() != 1 {
		t.Fatalf("expected one shared fetch, got %d", fetcher.fetches.Load())
	}
}

func TestStatusLoadingWhileFirstFetchOutstanding(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{block: make(chan struct{})}
	cache := NewCache(fetcher)
	cache.SignIn("user-1")

	if cache.Status() != StatusLoading {
		t.Fatalf("expected loading status before first fetch, got %v", cache.Status())
	}

	done := make(chan struct{})
	go func() {
		_, _ = cache.Get(context.Background())
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	if cache.Status() != StatusLoading {
		t.Fatalf("expected loading status during fetch, got %v", cache.Status())
	}

	close(fetcher.block)
	<-done

	if cache.Status() != StatusReady {
		t.Fatalf("expected ready status after fetch, got %v", cache.Status())
	}
}

func TestFetchErrorRetainsLastKnownGood(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snapshot: Snapshot{Role: "student", CollegeDomain: "state.edu"}}
	cache := NewCache(fetcher)
	cache.SignIn("user-1")

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	fetcher.setErr(errors.New("network down"))
	cache.MarkStale()

	snapshot, err := cache.Get(context.Background())
	if err == nil {
		t.Fatal("expected fetch error to surface")
	}
	if apperrors.CodeOf(err) != apperrors.CodeIdentityFetchFailed {
		t.Fatalf("expected identity fetch error code, got %q", apperrors.CodeOf(err))
	}
	if snapshot == nil || snapshot.CollegeDomain != "state.edu" {
		t.Fatalf("expected last-known-good snapshot retained, got %+v", snapshot)
	}
}

func TestSignOutClearsSynchronously(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snapshot: Snapshot{Role: "student"}}
	cache := NewCache(fetcher)
	cache.SignIn("user-1")
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	cache.SignOut()

	if cache.Status() != StatusSignedOut {
		t.Fatalf("expected signed-out status, got %v", cache.Status())
	}
	snapshot, err := cache.Get(context.Background())
	if err != nil || snapshot != nil {
		t.Fatalf("expected nil snapshot after sign-out, got %+v err %v", snapshot, err)
	}
}

func TestInvalidateTargetedKeyForcesRefetch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snapshot: Snapshot{Role: "student", CollegeDomain: "state.edu"}}
	cache := NewCache(fetcher)
	cache.SignIn("user-1")

	first, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if first.CollegeDomain != "state.edu" {
		t.Fatalf("unexpected first snapshot %+v", first)
	}

	// The backend moves the user to a new domain; the router emits a
	// targeted invalidation for this user's identity key.
	fetcher.set(Snapshot{Role: "student", CollegeDomain: "tech.edu"})
	cache.Invalidate(router.IdentityKey("user-1"))

	second, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if second.CollegeDomain != "tech.edu" {
		t.Fatalf("expected fresh snapshot with tech.edu, got %+v", second)
	}
	if fetcher.fetches.Load() != 2 {
		t.Fatalf("expected exactly two fetches, got %d", fetcher.fetches.Load())
	}
}

func TestInvalidationDuringFetchForcesRefetch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		snapshot: Snapshot{Role: "student", CollegeDomain: "old.edu"},
		block:    make(chan struct{}),
	}
	cache := NewCache(fetcher)
	cache.SignIn("user-1")

	firstDone := make(chan struct{})
	go func() {
		_, _ = cache.Get(context.Background())
		close(firstDone)
	}()
	for fetcher.fetches.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// The backend moves the user while the first fetch is still in flight;
	// the invalidation lands before that fetch completes with the old value.
	fetcher.set(Snapshot{Role: "student", CollegeDomain: "new.edu"})
	cache.MarkStale()

	close(fetcher.block)
	<-firstDone

	snapshot, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("get after invalidation: %v", err)
	}
	if snapshot == nil || snapshot.CollegeDomain != "new.edu" {
		t.Fatalf("expected post-invalidation snapshot, got %+v", snapshot)
	}
	if fetcher.fetches.Load() != 2 {
		t.Fatalf("expected a refetch after mid-flight invalidation, got %d fetches", fetcher.fetches.Load())
	}
}

func TestInvalidateIgnoresForeignKeys(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snapshot: Snapshot{Role: "student"}}
	cache := NewCache(fetcher)
	cache.SignIn("user-1")
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	cache.Invalidate(router.IdentityKey("user-9"))
	cache.Invalidate(cachestore.Key{Kind: "requests", Scope: "user-1"})

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetcher.fetches.Load() != 1 {
		t.Fatalf("expected no refetch for foreign keys, got %d fetches", fetcher.fetches.Load())
	}
}

func TestTTLExpiryTriggersRefetch(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	fetcher := &fakeFetcher{snapshot: Snapshot{Role: "student"}}
	cache := NewCache(fetcher, WithClock(mock), WithTTL(time.Hour))
	cache.SignIn("user-1")

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	mock.Add(2 * time.Hour)

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("refetch after ttl: %v", err)
	}
	if fetcher.fetches.Load() != 2 {
		t.Fatalf("expected refetch after ttl, got %d fetches", fetcher.fetches.Load())
	}
}
