package server

import (
	"encoding/json"
	"sync"

	"github.com/campuslink/campuslink/internal/realtime/transport/ws"
)

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame ws.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

type channelKey struct {
	collection string
	scopeKey   string
}

// channelHub fans change frames out to the peers subscribed to each
// (collection, scope) channel. One websocket connection carries exactly one
// subscription, but the hub does not depend on that: it tracks every channel a
// peer holds so disconnect cleanup stays correct either way.
type channelHub struct {
	mu       sync.Mutex
	channels map[channelKey]map[*wsPeer]struct{}
	byPeer   map[*wsPeer]map[channelKey]struct{}
}

func newChannelHub() *channelHub {
	return &channelHub{
		channels: make(map[channelKey]map[*wsPeer]struct{}),
		byPeer:   make(map[*wsPeer]map[channelKey]struct{}),
	}
}

func (h *channelHub) subscribe(collection, scopeKey string, peer *wsPeer) {
	key := channelKey{collection: collection, scopeKey: scopeKey}

	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers, ok := h.channels[key]
	if !ok {
		subscribers = make(map[*wsPeer]struct{})
		h.channels[key] = subscribers
	}
	subscribers[peer] = struct{}{}

	keys, ok := h.byPeer[peer]
	if !ok {
		keys = make(map[channelKey]struct{})
		h.byPeer[peer] = keys
	}
	keys[key] = struct{}{}
}

func (h *channelHub) drop(peer *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key := range h.byPeer[peer] {
		subscribers := h.channels[key]
		delete(subscribers, peer)
		if len(subscribers) == 0 {
			delete(h.channels, key)
		}
	}
	delete(h.byPeer, peer)
}

func (h *channelHub) subscribers(collection, scopeKey string) []*wsPeer {
	key := channelKey{collection: collection, scopeKey: scopeKey}

	h.mu.Lock()
	defer h.mu.Unlock()

	peers := make([]*wsPeer, 0, len(h.channels[key]))
	for peer := range h.channels[key] {
		peers = append(peers, peer)
	}
	return peers
}
