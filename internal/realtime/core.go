// Package realtime assembles the client-side sync core for one app process:
// session state, push channels, change routing, and cache invalidation. The
// subpackages are independent components; this package is the composition
// root that connects them for a signed-in viewer.
package realtime

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/campuslink/campuslink/internal/realtime/cachestore"
	"github.com/campuslink/campuslink/internal/realtime/change"
	"github.com/campuslink/campuslink/internal/realtime/identity"
	"github.com/campuslink/campuslink/internal/realtime/registry"
	"github.com/campuslink/campuslink/internal/realtime/requests"
	"github.com/campuslink/campuslink/internal/realtime/router"
	"github.com/campuslink/campuslink/internal/realtime/session"
	"github.com/campuslink/campuslink/internal/realtime/supervisor"
	"github.com/campuslink/campuslink/internal/realtime/transport/ws"
)

const defaultCacheCapacity = 256

// Transport opens and closes push channels. *ws.Client is the production
// implementation.
type Transport interface {
	OpenChannel(collection, scopeKey string) (registry.Handle, error)
	Factory(collection, scopeKey string) registry.Factory
	CloseChannel(handle registry.Handle) error
}

// Core wires the sync components together and relays auth transitions and
// inbound change events between them.
// It is safe for concurrent use.
type Core struct {
	sessions   *session.Manager
	channels   *registry.Registry
	identities *identity.Cache
	reconnects *supervisor.Supervisor
	store      *cachestore.Store
	lister     requests.Lister

	mu        sync.Mutex
	transport Transport
	viewer    router.Viewer
	routes    *router.Router
	view      *requests.View
}

// NewCore builds a core without a transport; call BindTransport before
// signing in. Tests use this constructor with a fake transport.
func NewCore(verifier session.VerifierConfig, fetcher identity.Fetcher, lister requests.Lister) (*Core, error) {
	if fetcher == nil {
		return nil, errors.New("identity fetcher is required")
	}
	if lister == nil {
		return nil, errors.New("request lister is required")
	}
	store, err := cachestore.New(defaultCacheCapacity, nil)
	if err != nil {
		return nil, err
	}

	core := &Core{
		sessions:   session.NewManager(verifier),
		identities: identity.NewCache(fetcher),
		store:      store,
		lister:     lister,
		routes:     router.New(),
	}
	core.sessions.AddListener(core)
	return core, nil
}

// NewCoreOverWebsocket builds a core whose channels ride the websocket
// gateway at wsCfg.URL.
func NewCoreOverWebsocket(wsCfg ws.Config, verifier session.VerifierConfig, fetcher identity.Fetcher, lister requests.Lister) (*Core, error) {
	core, err := NewCore(verifier, fetcher, lister)
	if err != nil {
		return nil, err
	}
	client, err := ws.NewClient(wsCfg, core)
	if err != nil {
		return nil, err
	}
	core.BindTransport(client)
	return core, nil
}

// BindTransport attaches the channel transport and starts the registry and
// reconnection supervisor on top of it.
func (c *Core) BindTransport(transport Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = transport
	c.channels = registry.New(transport)
	c.reconnects = supervisor.New(c.channels)
}

// Session exposes the auth session manager driving this core.
func (c *Core) Session() *session.Manager { return c.sessions }

// Identity exposes the identity snapshot cache.
func (c *Core) Identity() *identity.Cache { return c.identities }

// Supervisor exposes the reconnection supervisor for lifecycle signals.
func (c *Core) Supervisor() *supervisor.Supervisor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Requests returns the signed-in viewer's request view, or nil when signed
// out.
func (c *Core) Requests() *requests.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// HandleSignIn binds the core to userID: the identity cache refetches, the
// per-viewer channels open, and routing targets the new viewer.
func (c *Core) HandleSignIn(userID string) {
	c.identities.SignIn(userID)

	c.mu.Lock()
	transport := c.transport
	channels := c.channels
	c.viewer = router.Viewer{UserID: userID}
	c.routes = router.NewForViewer(c.viewer)
	c.view = requests.NewView(c.lister, userID)
	c.mu.Unlock()

	if transport == nil || channels == nil {
		return
	}
	c.openChannel(transport, channels, change.CollectionMentorshipRequests, userID)
	c.openChannel(transport, channels, change.CollectionProfiles, userID)
}

// HandleSignOut tears down every channel and clears viewer state. The
// identity cache clears synchronously so guarded surfaces react immediately.
func (c *Core) HandleSignOut() {
	c.mu.Lock()
	channels := c.channels
	c.viewer = router.Viewer{}
	c.routes = router.New()
	c.view = nil
	c.mu.Unlock()

	if channels != nil {
		channels.UnsubscribeAll()
	}
	c.identities.SignOut()
}

// HandleTokenRefreshed marks the identity snapshot stale; the authoritative
// tuple can change across a token rotation.
func (c *Core) HandleTokenRefreshed(string) {
	c.identities.TokenRefreshed()
}

// Start resolves the viewer's college domain from the identity snapshot and
// opens the shared mentor directory channel for it. Call after a successful
// sign-in; before this resolves, per-viewer channels are already live.
func (c *Core) Start(ctx context.Context) error {
	snapshot, err := c.identities.Get(ctx)
	if err != nil {
		return err
	}
	if snapshot == nil || snapshot.CollegeDomain == "" {
		return nil
	}

	c.mu.Lock()
	transport := c.transport
	channels := c.channels
	if c.viewer.CollegeDomain == snapshot.CollegeDomain {
		c.mu.Unlock()
		return nil
	}
	c.viewer.CollegeDomain = snapshot.CollegeDomain
	c.routes = router.NewForViewer(c.viewer)
	c.mu.Unlock()

	if transport == nil || channels == nil {
		return nil
	}
	c.openChannel(transport, channels, change.CollectionProfiles, snapshot.CollegeDomain)
	return nil
}

// HandleEvent routes one decoded change event to the caches it makes stale.
// Invalidation happens before any consumer can re-read, so a read after this
// returns either a fresh fetch or nothing.
func (c *Core) HandleEvent(event change.Event) {
	c.mu.Lock()
	routes := c.routes
	view := c.view
	c.mu.Unlock()
	if routes == nil {
		return
	}

	for _, key := range routes.Route(event) {
		c.store.Invalidate(key)
		c.identities.Invalidate(key)
		if view != nil {
			view.Invalidate(key)
		}
	}
}

// Close tears down the supervisor and every live channel.
func (c *Core) Close() {
	c.mu.Lock()
	reconnects := c.reconnects
	channels := c.channels
	c.mu.Unlock()

	if reconnects != nil {
		reconnects.Close()
	}
	if channels != nil {
		channels.UnsubscribeAll()
	}
}

func (c *Core) openChannel(transport Transport, channels *registry.Registry, collection, scopeKey string) {
	name := collection + "/" + scopeKey
	handle, err := transport.OpenChannel(collection, scopeKey)
	if err != nil {
		// The supervisor's next reconnect pass retries channels that opened;
		// this one never registered, so log and let the caller resubscribe.
		log.Printf("realtime: open channel %q: %v", name, err)
		return
	}
	channels.Subscribe(name, handle, transport.Factory(collection, scopeKey))
}

var _ session.Listener = (*Core)(nil)
var _ ws.EventSink = (*Core)(nil)
