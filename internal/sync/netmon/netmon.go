// Package netmon tracks connectivity to the Telos API and notifies
// subscribers on online/offline transitions.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/telos-app/telos-offline/internal/logging"
)

// DefaultProbeInterval is how often the monitor probes the health endpoint.
const DefaultProbeInterval = 30 * time.Second

// probeTimeout bounds a single connectivity probe.
const probeTimeout = 5 * time.Second

// handlerPair holds one subscriber's transition callbacks.
type handlerPair struct {
	onOnline  func()
	onOffline func()
}

// Monitor maintains the current connectivity belief. The belief is a
// point-in-time sample from periodic probing of a health URL, not a
// guarantee of reachability.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	mu      sync.Mutex
	online  bool
	subs    map[int]handlerPair
	nextSub int
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Monitor probing the given URL. The monitor assumes online
// until a probe says otherwise.
func New(probeURL string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		client:   &http.Client{Timeout: probeTimeout},
		online:   true,
		subs:     make(map[int]handlerPair),
	}
}

// IsOnline returns the current connectivity belief.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnTransition registers handlers for connectivity transitions. Either
// handler may be nil. The returned function unsubscribes.
func (m *Monitor) OnTransition(onOnline, onOffline func()) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = handlerPair{onOnline: onOnline, onOffline: onOffline}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetOnline records the connectivity belief and fires transition handlers
// when it changed. Called by the probe loop; exported so tests and manual
// controls can force a transition.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	var subs []handlerPair
	if changed {
		subs = make([]handlerPair, 0, len(m.subs))
		for _, h := range m.subs {
			subs = append(subs, h)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	logging.Info("Connectivity changed", map[string]interface{}{"online": online})

	for _, h := range subs {
		if online && h.onOnline != nil {
			h.onOnline()
		}
		if !online && h.onOffline != nil {
			h.onOffline()
		}
	}
}

// Start begins the background probe loop. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop()
}

// Stop stops the probe loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

// probeLoop samples connectivity on the configured interval.
func (m *Monitor) probeLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.SetOnline(m.Probe())
		}
	}
}

// Probe performs a single connectivity check against the health URL.
// Server errors count as offline: a 5xx backend is as unusable as no route.
func (m *Monitor) Probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}
