package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cannonclash/client/internal/health"
	"github.com/cannonclash/client/internal/proto"
	"github.com/cannonclash/client/internal/store"
)

// ErrNotAuthenticated is returned when an intent that needs a bearer token
// is sent without one. The intent is dropped, never queued.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrNotConnected is returned when sending without an open connection.
var ErrNotConnected = errors.New("not connected")

// State is the connection lifecycle stage.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "idle"
}

// Event is what the manager reports to its owner's event loop.
type Event interface {
	isConnEvent()
}

// Opened signals a successful dial, after any resume or deferred join was sent.
type Opened struct {
	Endpoint Endpoint
	Resumed  bool
}

// Closed signals the active connection ended. Err is nil on clean close.
type Closed struct {
	Err error
}

// Received carries one decoded, validated inbound event.
type Received struct {
	Event proto.Event
}

// FallbackFired signals the stored endpoint was abandoned for the default.
type FallbackFired struct {
	From string
	To   string
}

func (Opened) isConnEvent()        {}
func (Closed) isConnEvent()        {}
func (Received) isConnEvent()      {}
func (FallbackFired) isConnEvent() {}

// Conn is the minimal wire connection the manager drives.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

// DialFunc opens a connection to a WebSocket URL.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// TokenFunc yields the current bearer token, fetched fresh per send.
type TokenFunc func(ctx context.Context) (string, error)

// Manager owns the single connection to the game server: dial, send,
// receive, close, session resume, deferred join and the health-driven
// endpoint fallback. At most one connection is live; a new Connect
// supersedes and closes any prior one, and frames from a superseded
// connection are never delivered.
type Manager struct {
	dial       DialFunc
	st         store.Store
	token      TokenFunc
	notify     func(Event)
	log        *zerolog.Logger
	defaultURL string

	mu            sync.Mutex
	endpoint      Endpoint
	state         State
	gen           uint64
	conn          Conn
	cancelRead    context.CancelFunc
	pendingJoin   proto.Intent
	fallbackArmed bool
}

// New builds a manager. notify must not block; it is invoked from the
// manager's internal goroutines.
func New(endpoint Endpoint, defaultURL string, dial DialFunc, st store.Store, token TokenFunc, notify func(Event), logger *zerolog.Logger) *Manager {
	if dial == nil {
		dial = DialWebSocket
	}
	return &Manager{
		dial:          dial,
		st:            st,
		token:         token,
		notify:        notify,
		log:           logger,
		defaultURL:    defaultURL,
		endpoint:      endpoint,
		fallbackArmed: true,
	}
}

// Endpoint returns the active endpoint.
func (m *Manager) Endpoint() Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetEndpoint switches the target for subsequent connects. A flag-pinned
// endpoint is never replaced.
func (m *Manager) SetEndpoint(e Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endpoint.Source == SourceFlag {
		return
	}
	m.endpoint = e
}

// Connect supersedes any live connection and dials the active endpoint.
// The dial runs asynchronously; progress arrives through notify.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.closeLocked()
	m.state = StateConnecting
	endpoint := m.endpoint
	m.mu.Unlock()

	attempt := uuid.NewString()
	if m.log != nil {
		m.log.Info().Str("attempt", attempt).Str("url", endpoint.URL).Msg("dialing")
	}

	go m.dialAndRun(ctx, gen, endpoint, attempt)
}

// Close tears down the live connection, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	m.gen++ // orphan the read loop
	m.closeLocked()
	m.state = StateDisconnected
	m.mu.Unlock()
}

// Send delivers one intent if the connection is open and, for intents that
// need it, a bearer token is available. Anything else drops the intent with
// an error; nothing is ever queued for later.
func (m *Manager) Send(ctx context.Context, intent proto.Intent) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		return fmt.Errorf("send %s: %w", proto.IntentType(intent), ErrNotConnected)
	}

	var token string
	if !proto.Unauthenticated(intent) {
		tok, err := m.token(ctx)
		if err != nil {
			return fmt.Errorf("send %s: %w: %w", proto.IntentType(intent), ErrNotAuthenticated, err)
		}
		token = tok
	}

	data, err := proto.EncodeIntent(intent, token)
	if err != nil {
		return fmt.Errorf("send %s: %w", proto.IntentType(intent), err)
	}
	if err := conn.WriteMessage(ctx, data); err != nil {
		return fmt.Errorf("send %s: %w", proto.IntentType(intent), err)
	}
	return nil
}

// SendOrDefer sends now when open, otherwise records the intent as the
// deferred join to be emitted exactly once on the next successful open.
// A later deferral replaces an earlier unsent one.
func (m *Manager) SendOrDefer(ctx context.Context, intent proto.Intent) error {
	m.mu.Lock()
	open := m.state == StateOpen
	if !open {
		m.pendingJoin = intent
	}
	m.mu.Unlock()

	if open {
		return m.Send(ctx, intent)
	}
	return nil
}

// HandleHealth feeds a probe report into the fallback policy: two straight
// failures against a stored, non-default endpoint clear the stored
// preference, switch to the default and reconnect. This fires at most once
// per failure streak.
func (m *Manager) HandleHealth(ctx context.Context, rep health.Report) {
	m.mu.Lock()
	if rep.Online {
		m.fallbackArmed = true
		m.mu.Unlock()
		return
	}

	fire := m.fallbackArmed &&
		rep.Streak >= 2 &&
		m.endpoint.Source == SourceStored &&
		!m.endpoint.IsDefault(m.defaultURL)
	if !fire {
		m.mu.Unlock()
		return
	}
	m.fallbackArmed = false
	from := m.endpoint.URL
	m.endpoint = Endpoint{URL: m.defaultURL, Source: SourceDefault}
	m.mu.Unlock()

	if err := m.st.ClearEndpoint(ctx); err != nil && m.log != nil {
		m.log.Warn().Err(err).Msg("failed to clear stored endpoint")
	}
	if m.log != nil {
		m.log.Info().Str("from", from).Str("to", m.defaultURL).Msg("endpoint fallback")
	}
	m.notify(FallbackFired{From: from, To: m.defaultURL})
	m.Connect(ctx)
}

func (m *Manager) dialAndRun(ctx context.Context, gen uint64, endpoint Endpoint, attempt string) {
	conn, err := m.dial(ctx, endpoint.URL)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		if m.log != nil {
			m.log.Warn().Err(err).Str("attempt", attempt).Msg("dial failed")
		}
		m.notify(Closed{Err: err})
		return
	}
	readCtx, cancel := context.WithCancel(ctx)
	m.conn = conn
	m.cancelRead = cancel
	m.state = StateOpen
	m.mu.Unlock()

	resumed := m.onOpen(ctx)
	m.notify(Opened{Endpoint: endpoint, Resumed: resumed})

	m.readLoop(readCtx, gen, conn)
}

// onOpen runs the session-resume handshake: a durably held identity wins;
// failing that, a deferred join goes out exactly once.
func (m *Manager) onOpen(ctx context.Context) bool {
	id, err := m.st.Identity(ctx)
	if err != nil && m.log != nil {
		m.log.Warn().Err(err).Msg("failed to read stored identity")
	}
	if id.Present() {
		if err := m.Send(ctx, proto.Reconnect{RoomCode: id.RoomCode, PlayerID: id.PlayerID}); err != nil && m.log != nil {
			m.log.Warn().Err(err).Msg("resume send failed")
		}
		return true
	}

	m.mu.Lock()
	pending := m.pendingJoin
	m.pendingJoin = nil
	m.mu.Unlock()

	if pending != nil {
		if err := m.Send(ctx, pending); err != nil && m.log != nil {
			m.log.Warn().Err(err).Msg("deferred join send failed")
		}
	}
	return false
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage(ctx)
		if err != nil {
			m.mu.Lock()
			current := gen == m.gen
			if current {
				m.conn = nil
				m.state = StateDisconnected
			}
			m.mu.Unlock()
			if current {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					err = nil
				}
				m.notify(Closed{Err: err})
			}
			return
		}

		ev, err := proto.DecodeFrame(data)
		if err != nil {
			// Malformed frames never crash the pipeline.
			if m.log != nil {
				m.log.Warn().Err(err).Msg("dropping malformed frame")
			}
			continue
		}

		m.mu.Lock()
		current := gen == m.gen
		m.mu.Unlock()
		if !current {
			return
		}
		m.notify(Received{Event: ev})
	}
}

func (m *Manager) closeLocked() {
	if m.cancelRead != nil {
		m.cancelRead()
		m.cancelRead = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
