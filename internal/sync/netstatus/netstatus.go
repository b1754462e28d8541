// Package netstatus reports device connectivity to the sync scheduler.
package netstatus

import (
	"context"
	"sync"
)

// Status is a connectivity snapshot.
type Status struct {
	IsConnected         bool `json:"is_connected"`
	IsInternetReachable bool `json:"is_internet_reachable"`
}

// Online reports whether uploads can be attempted.
func (s Status) Online() bool {
	return s.IsConnected && s.IsInternetReachable
}

// Offline is the zero status.
var Offline = Status{}

// OnlineStatus is a fully reachable status.
var OnlineStatus = Status{IsConnected: true, IsInternetReachable: true}

// Monitor is a subscribable connectivity signal.
type Monitor interface {
	// Current returns the present status.
	Current(ctx context.Context) (Status, error)

	// Subscribe returns a channel receiving every status change and a function that
	// ends the subscription. Slow receivers only see the latest status.
	Subscribe() (<-chan Status, func())
}

// hub fans status changes out to subscribers.
type hub struct {
	mu      sync.Mutex
	current Status
	subs    map[chan Status]struct{}
}

func newHub(initial Status) *hub {
	return &hub{current: initial, subs: make(map[chan Status]struct{})}
}

func (h *hub) get() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// set stores s and notifies subscribers when it differs from the previous status.
// Returns whether the status changed.
func (h *hub) set(s Status) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s == h.current {
		return false
	}
	h.current = s

	for ch := range h.subs {
		// Drop a stale undelivered status so the latest one always fits.
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
	return true
}

func (h *hub) subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

// Manual is a Monitor whose status is set explicitly, by the mobile shell's own
// connectivity listener or by tests.
type Manual struct {
	hub *hub
}

// NewManual creates a Manual monitor starting at initial.
func NewManual(initial Status) *Manual {
	return &Manual{hub: newHub(initial)}
}

// Current returns the last status set.
func (m *Manual) Current(ctx context.Context) (Status, error) {
	return m.hub.get(), nil
}

// Subscribe implements Monitor.
func (m *Manual) Subscribe() (<-chan Status, func()) {
	return m.hub.subscribe()
}

// Set updates the status.
func (m *Manual) Set(s Status) {
	m.hub.set(s)
}

// SetOnline is shorthand for setting a fully online or offline status.
func (m *Manual) SetOnline(online bool) {
	if online {
		m.Set(OnlineStatus)
	} else {
		m.Set(Offline)
	}
}
