package conn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cannonclash/client/internal/health"
	"github.com/cannonclash/client/internal/proto"
	"github.com/cannonclash/client/internal/store"
)

type fakeConn struct {
	mu     sync.Mutex
	in     chan []byte
	out    [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 8)}
}

func (f *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-f.in:
		if !ok {
			return nil, errors.New("connection reset")
		}
		return data, nil
	}
}

func (f *fakeConn) WriteMessage(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write on closed conn")
	}
	f.out = append(f.out, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) sent() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var frames []map[string]any
	for _, raw := range f.out {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil {
			frames = append(frames, m)
		}
	}
	return frames
}

type memStore struct {
	mu       sync.Mutex
	id       store.Identity
	endpoint string
	clears   int
}

func (s *memStore) Identity(context.Context) (store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

func (s *memStore) SaveIdentity(_ context.Context, id store.Identity) error {
	if !id.Present() {
		return store.ErrPartialIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}

func (s *memStore) ClearIdentity(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = store.Identity{}
	return nil
}

func (s *memStore) Endpoint(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint, nil
}

func (s *memStore) SaveEndpoint(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = url
	return nil
}

func (s *memStore) ClearEndpoint(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = ""
	s.clears++
	return nil
}

func (s *memStore) Close() error { return nil }

type harness struct {
	mgr    *Manager
	st     *memStore
	events chan Event

	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func newHarness(t *testing.T, endpoint Endpoint, defaultURL string, token TokenFunc) *harness {
	t.Helper()
	h := &harness{
		st:     &memStore{},
		events: make(chan Event, 32),
	}
	dial := func(ctx context.Context, url string) (Conn, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.dials++
		fc := newFakeConn()
		h.conns = append(h.conns, fc)
		return fc, nil
	}
	if token == nil {
		token = func(context.Context) (string, error) { return "tok", nil }
	}
	h.mgr = New(endpoint, defaultURL, dial, h.st, token, func(ev Event) { h.events <- ev }, nil)
	return h
}

func (h *harness) lastConn(t *testing.T) *fakeConn {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.conns) == 0 {
		t.Fatal("no connection dialed")
	}
	return h.conns[len(h.conns)-1]
}

func (h *harness) waitEvent(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for connection event")
		return nil
	}
}

func (h *harness) waitOpened(t *testing.T) Opened {
	t.Helper()
	for {
		if op, ok := h.waitEvent(t).(Opened); ok {
			return op
		}
	}
}

var testEndpoint = Endpoint{URL: "ws://stored.example/ws", Source: SourceStored}

const defaultURL = "ws://default.example/ws"

func TestConnectResumesStoredIdentity(t *testing.T) {
	h := newHarness(t, testEndpoint, defaultURL, nil)
	h.st.id = store.Identity{RoomCode: "ABCDE", PlayerID: "p1"}

	h.mgr.Connect(context.Background())
	op := h.waitOpened(t)
	if !op.Resumed {
		t.Fatal("open with stored identity should resume")
	}

	frames := h.lastConn(t).sent()
	if len(frames) != 1 || frames[0]["type"] != "reconnect" {
		t.Fatalf("expected one reconnect frame, got %+v", frames)
	}
	if frames[0]["room_code"] != "ABCDE" || frames[0]["player_id"] != "p1" {
		t.Fatalf("reconnect carries wrong identity: %+v", frames[0])
	}
}

func TestDeferredJoinSentExactlyOnce(t *testing.T) {
	h := newHarness(t, testEndpoint, defaultURL, nil)
	ctx := context.Background()

	// Join requested while disconnected: deferred, nothing sent.
	if err := h.mgr.SendOrDefer(ctx, proto.JoinRoom{Name: "Ana", RoomCode: "ABCDE"}); err != nil {
		t.Fatalf("defer: %v", err)
	}

	h.mgr.Connect(ctx)
	h.waitOpened(t)

	frames := h.lastConn(t).sent()
	if len(frames) != 1 || frames[0]["type"] != "join_room" {
		t.Fatalf("expected the deferred join, got %+v", frames)
	}

	// Reconnecting again must not replay the join.
	h.mgr.Connect(ctx)
	h.waitOpened(t)
	if frames := h.lastConn(t).sent(); len(frames) != 0 {
		t.Fatalf("deferred join replayed: %+v", frames)
	}
}

func TestSendRequiresOpenConnection(t *testing.T) {
	h := newHarness(t, testEndpoint, defaultURL, nil)
	err := h.mgr.Send(context.Background(), proto.Ready{Ready: true})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendRequiresToken(t *testing.T) {
	noToken := func(context.Context) (string, error) { return "", errors.New("signed out") }
	h := newHarness(t, testEndpoint, defaultURL, noToken)
	ctx := context.Background()

	h.mgr.Connect(ctx)
	h.waitOpened(t)

	err := h.mgr.Send(ctx, proto.Shot{ShotType: proto.ShotNormal})
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if frames := h.lastConn(t).sent(); len(frames) != 0 {
		t.Fatalf("intent must be dropped, not sent: %+v", frames)
	}

	// The initial setup-screen create goes out without a token.
	if err := h.mgr.Send(ctx, proto.CreateRoom{Name: "Ana"}); err != nil {
		t.Fatalf("unauthenticated create should send: %v", err)
	}
	frames := h.lastConn(t).sent()
	if len(frames) != 1 || frames[0]["type"] != "create_room" {
		t.Fatalf("expected create_room, got %+v", frames)
	}
	if _, hasToken := frames[0]["token"]; hasToken {
		t.Fatal("setup create must not carry a token")
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	h := newHarness(t, testEndpoint, defaultURL, nil)
	ctx := context.Background()

	h.mgr.Connect(ctx)
	h.waitOpened(t)
	fc := h.lastConn(t)

	fc.in <- []byte(`{{{not json`)
	fc.in <- []byte(`{"type":"stats"}`)
	fc.in <- []byte(`{"type":"error","message":"Sala cheia"}`)

	ev := h.waitEvent(t)
	recv, ok := ev.(Received)
	if !ok {
		t.Fatalf("expected Received, got %#v", ev)
	}
	se, ok := recv.Event.(proto.ServerError)
	if !ok || se.Message != "Sala cheia" {
		t.Fatalf("malformed frames should be skipped, got %#v", recv.Event)
	}
}

func TestSupersededConnectionDeliversNothing(t *testing.T) {
	h := newHarness(t, testEndpoint, defaultURL, nil)
	ctx := context.Background()

	h.mgr.Connect(ctx)
	h.waitOpened(t)
	old := h.lastConn(t)

	h.mgr.Connect(ctx)
	h.waitOpened(t)

	old.mu.Lock()
	closed := old.closed
	old.mu.Unlock()
	if !closed {
		t.Fatal("superseded connection must be closed")
	}

	// A frame racing in on the old connection is never delivered.
	old.in <- []byte(`{"type":"error","message":"stale"}`)
	cur := h.lastConn(t)
	cur.in <- []byte(`{"type":"error","message":"fresh"}`)

	for {
		ev := h.waitEvent(t)
		recv, ok := ev.(Received)
		if !ok {
			continue
		}
		se := recv.Event.(proto.ServerError)
		if se.Message == "stale" {
			t.Fatal("frame from superseded connection delivered")
		}
		if se.Message == "fresh" {
			return
		}
	}
}

func TestFallbackFiresOncePerStreak(t *testing.T) {
	h := newHarness(t, testEndpoint, defaultURL, nil)
	h.st.endpoint = testEndpoint.URL
	ctx := context.Background()

	h.mgr.HandleHealth(ctx, health.Report{Online: false, Streak: 1})
	if h.mgr.Endpoint().Source != SourceStored {
		t.Fatal("one failure must not trigger fallback")
	}

	h.mgr.HandleHealth(ctx, health.Report{Online: false, Streak: 2})

	ep := h.mgr.Endpoint()
	if ep.URL != defaultURL || ep.Source != SourceDefault {
		t.Fatalf("expected fallback to default, got %+v", ep)
	}
	h.st.mu.Lock()
	clears := h.st.clears
	h.st.mu.Unlock()
	if clears != 1 {
		t.Fatalf("stored endpoint should be cleared once, got %d", clears)
	}

	var sawFallback bool
	for !sawFallback {
		switch h.waitEvent(t).(type) {
		case FallbackFired:
			sawFallback = true
		}
	}
	h.waitOpened(t)

	h.mu.Lock()
	dials := h.dials
	h.mu.Unlock()
	if dials != 1 {
		t.Fatalf("fallback should reconnect exactly once, got %d dials", dials)
	}

	// Streak keeps growing without an intervening success: no second fire.
	h.mgr.HandleHealth(ctx, health.Report{Online: false, Streak: 3})
	h.mu.Lock()
	dials = h.dials
	h.mu.Unlock()
	if dials != 1 {
		t.Fatal("fallback fired twice in one streak")
	}
}

func TestFallbackIgnoresFlagEndpoint(t *testing.T) {
	flagged := Endpoint{URL: "ws://flagged.example/ws", Source: SourceFlag}
	h := newHarness(t, flagged, defaultURL, nil)
	ctx := context.Background()

	h.mgr.HandleHealth(ctx, health.Report{Online: false, Streak: 2})
	if ep := h.mgr.Endpoint(); ep != flagged {
		t.Fatalf("flag endpoint must never fall back, got %+v", ep)
	}

	// And a flag endpoint cannot be replaced at all.
	h.mgr.SetEndpoint(Endpoint{URL: defaultURL, Source: SourceDefault})
	if ep := h.mgr.Endpoint(); ep != flagged {
		t.Fatalf("flag endpoint must be pinned, got %+v", ep)
	}
}

func TestResolveEndpointPrecedence(t *testing.T) {
	if ep := ResolveEndpoint("ws://f/ws", "ws://s/ws", "ws://d/ws"); ep.Source != SourceFlag || ep.URL != "ws://f/ws" {
		t.Fatalf("flag should win: %+v", ep)
	}
	if ep := ResolveEndpoint("", "ws://s/ws", "ws://d/ws"); ep.Source != SourceStored {
		t.Fatalf("stored should beat default: %+v", ep)
	}
	if ep := ResolveEndpoint("", "", "ws://d/ws"); ep.Source != SourceDefault {
		t.Fatalf("default is the last resort: %+v", ep)
	}
}
