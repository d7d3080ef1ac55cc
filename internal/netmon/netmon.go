// Package netmon observes device network reachability. It keeps the last
// known online/offline state, detects transitions, and fans them out to
// subscribers such as the offline queue.
package netmon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Prober performs a single reachability check
type Prober interface {
	// Probe reports whether the network is reachable right now. An error
	// means the probe itself could not complete and the last known state
	// should stand.
	Probe(ctx context.Context) (bool, error)
}

// Config holds connectivity monitor settings
type Config struct {
	// ProbeURL is the endpoint used for on-demand reachability checks
	ProbeURL string `toml:"probe_url"`
	// ProbeTimeout bounds a single probe round trip
	ProbeTimeout time.Duration `toml:"probe_timeout"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		ProbeURL:     "https://clients3.google.com/generate_204",
		ProbeTimeout: 5 * time.Second,
	}
}

// HTTPProber checks reachability with a HEAD request against a probe URL
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober from configuration
func NewHTTPProber(config Config) *HTTPProber {
	return &HTTPProber{
		url: config.ProbeURL,
		client: &http.Client{
			Timeout: config.ProbeTimeout,
		},
	}
}

// Probe reports whether the probe URL answered at all. Any HTTP status
// counts as reachable; only a transport failure means offline.
func (p *HTTPProber) Probe(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, nil
	}
	resp.Body.Close()

	return true, nil
}

// Monitor tracks the current network state and notifies subscribers on
// transitions
type Monitor struct {
	prober Prober
	logger *slog.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]func(online bool)
	nextID int
}

// NewMonitor creates a monitor that starts in the online state, matching
// the platform convention of assuming reachability until told otherwise
func NewMonitor(prober Prober, logger *slog.Logger) *Monitor {
	return &Monitor{
		prober: prober,
		logger: logger,
		online: true,
		subs:   make(map[int]func(bool)),
	}
}

// Status returns the last known state without blocking
func (m *Monitor) Status() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check forces a fresh probe. A probe failure leaves the last known state
// unchanged and is reported to the caller, who must re-probe.
func (m *Monitor) Check(ctx context.Context) (bool, error) {
	online, err := m.prober.Probe(ctx)
	if err != nil {
		m.logger.Warn("connectivity probe failed", "error", err)
		return m.Status(), err
	}

	m.SetOnline(online)
	return online, nil
}

// SetOnline feeds a state observation into the monitor. Platform
// connectivity events land here; subscribers fire exactly when the boolean
// transitions, not on every underlying event.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	listeners := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	if online {
		m.logger.Info("network state changed", "state", "online")
	} else {
		m.logger.Info("network state changed", "state", "offline")
	}

	for _, fn := range listeners {
		fn(online)
	}
}

// Subscribe registers a transition listener and returns its unsubscribe
// function
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}
