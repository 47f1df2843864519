// Package registry owns the set of live push channels. It is the only
// component allowed to tear down transport handles; everything else refers to
// channels by name.
package registry

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Handle identifies one live transport channel. Its concrete type belongs to
// the transport; the registry only stores it and hands it back for teardown.
type Handle any

// Factory recreates a channel after a connection drop. Factories must be
// idempotent: the registry may invoke them on every reconnect pass.
type Factory func() (Handle, error)

// ChannelCloser tears down one transport channel. Close failures are treated
// as non-fatal everywhere in this package.
type ChannelCloser interface {
	CloseChannel(handle Handle) error
}

type entry struct {
	handle  Handle
	factory Factory
}

// Registry tracks at most one live channel per name.
// It is safe for concurrent use.
type Registry struct {
	closer ChannelCloser

	mu             sync.Mutex
	channels       map[string]entry
	isReconnecting bool
}

// New creates an empty registry that releases channels through closer.
func New(closer ChannelCloser) *Registry {
	return &Registry{
		closer:   closer,
		channels: make(map[string]entry),
	}
}

// Subscribe records handle under name, tearing down any previous channel
// registered under the same name first. The handle is returned unchanged so
// call sites can chain it. A nil factory means the channel is not recreated
// on reconnect; the caller re-subscribes explicitly.
func (r *Registry) Subscribe(name string, handle Handle, factory Factory) Handle {
	r.mu.Lock()
	previous, exists := r.channels[name]
	if exists {
		delete(r.channels, name)
	}
	r.mu.Unlock()

	// Tear the previous channel down before recording the replacement so the
	// name never refers to two live handles at once.
	if exists {
		r.closeHandle(name, previous.handle)
	}

	r.mu.Lock()
	r.channels[name] = entry{handle: handle, factory: factory}
	r.mu.Unlock()
	return handle
}

// Unsubscribe tears down the channel registered under name. Unknown names are
// a no-op.
func (r *Registry) Unsubscribe(name string) {
	r.mu.Lock()
	current, exists := r.channels[name]
	if exists {
		delete(r.channels, name)
	}
	r.mu.Unlock()

	if exists {
		r.closeHandle(name, current.handle)
	}
}

// UnsubscribeAll tears down every registered channel. Used on sign-out and
// subsystem teardown; safe to call on an empty registry.
func (r *Registry) UnsubscribeAll() {
	r.mu.Lock()
	snapshot := r.channels
	r.channels = make(map[string]entry)
	r.mu.Unlock()

	for name, current := range snapshot {
		r.closeHandle(name, current.handle)
	}
}

// ReconnectAll tears down and recreates every channel that has a factory.
// Channels without a factory are removed; their owners re-subscribe on their
// own schedule. A reconnect already in progress makes the call a no-op, and
// one failing channel never aborts the others. The returned error joins the
// per-channel recreation failures so callers can schedule a retry.
func (r *Registry) ReconnectAll() error {
	r.mu.Lock()
	if r.isReconnecting {
		r.mu.Unlock()
		return nil
	}
	r.isReconnecting = true
	snapshot := make(map[string]entry, len(r.channels))
	for name, current := range r.channels {
		snapshot[name] = current
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.isReconnecting = false
		r.mu.Unlock()
	}()

	var failures []error
	for name, current := range snapshot {
		r.closeHandle(name, current.handle)

		if current.factory == nil {
			r.remove(name)
			continue
		}

		fresh, err := current.factory()
		if err != nil {
			log.Printf("realtime: recreate channel %q: %v", name, err)
			r.remove(name)
			failures = append(failures, fmt.Errorf("recreate channel %q: %w", name, err))
			continue
		}
		r.mu.Lock()
		live, ok := r.channels[name]
		if ok && live.handle == current.handle {
			r.channels[name] = entry{handle: fresh, factory: current.factory}
			r.mu.Unlock()
			continue
		}
		r.mu.Unlock()
		// A subscribe or unsubscribe landed while the factory ran and owns
		// the name now; the recreated handle is surplus.
		r.closeHandle(name, fresh)
	}
	return errors.Join(failures...)
}

// Has reports whether a channel is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[name]
	return ok
}

// ActiveChannels returns the sorted names of all registered channels.
func (r *Registry) ActiveChannels() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

func (r *Registry) remove(name string) {
	r.mu.Lock()
	delete(r.channels, name)
	r.mu.Unlock()
}

func (r *Registry) closeHandle(name string, handle Handle) {
	if r.closer == nil {
		return
	}
	if err := r.closer.CloseChannel(handle); err != nil {
		// Teardown failures are non-fatal; the next reconnect cycle retries.
		log.Printf("realtime: close channel %q: %v", name, err)
	}
}
