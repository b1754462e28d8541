package netstatus

import (
	"context"
	"net/http"
	"time"

	"github.com/propsnap/backend/internal/logging"
)

// Prober is a Monitor that polls a reachability URL with HTTP HEAD.
type Prober struct {
	url        string
	interval   time.Duration
	httpClient *http.Client
	hub        *hub
}

// NewProber creates a Prober for url. The status is Offline until the first probe.
func NewProber(url string, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{
		url:      url,
		interval: interval,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		hub: newHub(Offline),
	}
}

// Probe performs one reachability check and publishes the result.
func (p *Prober) Probe(ctx context.Context) Status {
	s := p.check(ctx)
	if p.hub.set(s) {
		logging.Info("Connectivity changed", map[string]interface{}{
			"connected": s.IsConnected,
			"reachable": s.IsInternetReachable,
		})
	}
	return s
}

func (p *Prober) check(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return Offline
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		logging.Debug("Reachability probe failed", map[string]interface{}{"url": p.url, "error": err.Error()})
		return Offline
	}
	resp.Body.Close()

	// A server error means the network works but the API cannot take uploads.
	if resp.StatusCode >= http.StatusInternalServerError {
		return Status{IsConnected: true}
	}
	return OnlineStatus
}

// Current probes immediately and returns the result.
func (p *Prober) Current(ctx context.Context) (Status, error) {
	return p.Probe(ctx), nil
}

// Last returns the most recent probe result without probing.
func (p *Prober) Last() Status {
	return p.hub.get()
}

// Subscribe implements Monitor.
func (p *Prober) Subscribe() (<-chan Status, func()) {
	return p.hub.subscribe()
}

// Run probes at the configured interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
