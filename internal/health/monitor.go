package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Report is the outcome of one reachability probe.
type Report struct {
	Online bool
	// Streak counts consecutive failed probes; 0 while online.
	Streak int
	Status string
}

// StatusURL derives the health endpoint from a WebSocket endpoint:
// same host and scheme family, /health instead of the /ws suffix.
func StatusURL(wsURL string) string {
	u := wsURL
	switch {
	case strings.HasPrefix(u, "wss://"):
		u = "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		u = "http://" + strings.TrimPrefix(u, "ws://")
	}
	return strings.TrimSuffix(u, "/ws") + "/health"
}

// Monitor probes the server's status endpoint on a fixed interval and keeps
// the last known online state plus the consecutive-failure streak.
type Monitor struct {
	client   *http.Client
	clk      clock.Clock
	interval time.Duration
	timeout  time.Duration
	notify   func(Report)
	log      *zerolog.Logger

	mu     sync.Mutex
	url    string
	online bool
	streak int
}

// New builds a monitor probing the health endpoint derived from wsURL.
// notify is invoked after every probe; it must not block.
func New(wsURL string, client *http.Client, clk clock.Clock, interval, timeout time.Duration, notify func(Report), logger *zerolog.Logger) *Monitor {
	if client == nil {
		client = http.DefaultClient
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		client:   client,
		clk:      clk,
		interval: interval,
		timeout:  timeout,
		notify:   notify,
		log:      logger,
		url:      StatusURL(wsURL),
	}
}

// SetTarget re-derives the probed URL after an endpoint change. The streak
// starts over: failures against the old endpoint say nothing about the new one.
func (m *Monitor) SetTarget(wsURL string) {
	m.mu.Lock()
	m.url = StatusURL(wsURL)
	m.streak = 0
	m.mu.Unlock()
}

// Online reports the last known reachability state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Streak returns the current consecutive-failure count.
func (m *Monitor) Streak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streak
}

// Run probes immediately and then on every interval tick until ctx ends.
// Probe failures never terminate the loop.
func (m *Monitor) Run(ctx context.Context) {
	m.report(m.probe(ctx))

	ticker := m.clk.Ticker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.report(m.probe(ctx))
		}
	}
}

// Probe runs a single bounded-timeout check, outside the periodic loop.
func (m *Monitor) Probe(ctx context.Context) Report {
	rep := m.probe(ctx)
	m.report(rep)
	return rep
}

func (m *Monitor) probe(ctx context.Context) Report {
	m.mu.Lock()
	url := m.url
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Report{Status: fmt.Sprintf("bad url: %v", err)}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return Report{Status: "offline"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Report{Status: fmt.Sprintf("error %d", resp.StatusCode)}
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Status == "" {
		body.Status = "ok"
	}
	return Report{Online: true, Status: body.Status}
}

func (m *Monitor) report(rep Report) {
	m.mu.Lock()
	if rep.Online {
		m.streak = 0
	} else {
		m.streak++
	}
	rep.Streak = m.streak
	m.online = rep.Online
	m.mu.Unlock()

	if m.log != nil && !rep.Online {
		m.log.Debug().Int("streak", rep.Streak).Str("status", rep.Status).Msg("health probe failed")
	}
	if m.notify != nil {
		m.notify(rep)
	}
}
