package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/cannonclash/client/internal/auth"
	"github.com/cannonclash/client/internal/config"
	"github.com/cannonclash/client/internal/conn"
	"github.com/cannonclash/client/internal/health"
	"github.com/cannonclash/client/internal/proto"
	"github.com/cannonclash/client/internal/router"
	"github.com/cannonclash/client/internal/session"
	"github.com/cannonclash/client/internal/store"
)

// Collaborators are the external consumers at the edge of the core: board
// rendering, sound, and modal surfaces. All callbacks run on the controller
// loop and must not block.
type Collaborators struct {
	// OnCue receives semantic side-effect cues (shot fired, win, message).
	OnCue func(session.Cue)
	// OnView receives the derived view after every change.
	OnView func(session.View)
	// OnScreen receives screen-router transitions.
	OnScreen func(router.Change)
	// OnStatus receives connection status text changes.
	OnStatus func(string)
}

// Status is a read-only snapshot of the controller for the diagnostics
// surface. Safe to request from any goroutine.
type Status struct {
	ConnState   string `json:"conn_state"`
	Endpoint    string `json:"endpoint"`
	Online      bool   `json:"online"`
	Streak      int    `json:"streak"`
	Path        string `json:"path"`
	Screen      string `json:"screen"`
	Diagnostics bool   `json:"diagnostics"`
	Phase       string `json:"phase"`
	RoomCode    string `json:"room_code"`
	PlayerID    string `json:"player_id"`
	Message     string `json:"message"`
}

// Controller owns every piece of mutable session state: the live
// connection, the derived view, the current path, buy mode and the pending
// highlight timers. A single goroutine consumes its event channel, so the
// reducer and router transitions are atomic with respect to each other.
type Controller struct {
	cfg     config.Config
	st      store.Store
	gate    *auth.Gate
	mgr     *conn.Manager
	monitor *health.Monitor
	rt      *router.Router
	clk     clock.Clock
	log     *zerolog.Logger
	collab  Collaborators

	events chan event

	// loop-owned state
	view   session.View
	expiry map[session.Side]*clock.Timer

	mu        sync.Mutex
	status    Status
	message   string
	published session.View
}

type event interface {
	isLoopEvent()
}

type connEvent struct{ ev conn.Event }
type healthEvent struct{ rep health.Report }
type expiryEvent struct {
	side session.Side
	gen  uint64
}
type authEvent struct{ present bool }
type commandEvent struct{ run func(ctx context.Context) }

func (connEvent) isLoopEvent()    {}
func (healthEvent) isLoopEvent()  {}
func (expiryEvent) isLoopEvent()  {}
func (authEvent) isLoopEvent()    {}
func (commandEvent) isLoopEvent() {}

// Options bundles the injectable collaborators, with production defaults.
type Options struct {
	Store   store.Store
	Gate    *auth.Gate
	Clock   clock.Clock
	Dial    conn.DialFunc
	FlagURL string
	Collab  Collaborators
	Logger  *zerolog.Logger
}

// New builds a controller from configuration and collaborators. The stored
// endpoint preference is read here, before any connection is attempted.
func New(ctx context.Context, cfg config.Config, opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("auth gate is required")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	storedURL, err := opts.Store.Endpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stored endpoint: %w", err)
	}
	endpoint := conn.ResolveEndpoint(opts.FlagURL, storedURL, cfg.DefaultServerURL)

	c := &Controller{
		cfg:    cfg,
		st:     opts.Store,
		gate:   opts.Gate,
		clk:    clk,
		log:    opts.Logger,
		collab: opts.Collab,
		events: make(chan event, 64),
		expiry: make(map[session.Side]*clock.Timer),
	}

	c.monitor = health.New(endpoint.URL, nil, clk, cfg.HealthInterval, cfg.HealthTimeout,
		func(rep health.Report) { c.post(healthEvent{rep: rep}) }, opts.Logger)

	c.mgr = conn.New(endpoint, cfg.DefaultServerURL, opts.Dial, opts.Store,
		c.gate.Token,
		func(ev conn.Event) { c.post(connEvent{ev: ev}) }, opts.Logger)

	c.rt = router.New(c.gate.Authenticated, cfg.Dev, c.onScreenChange, opts.Logger)

	c.gate.Subscribe(func(_ auth.Identity, present bool) {
		c.post(authEvent{present: present})
	})

	return c, nil
}

// Run drives the controller until ctx ends. It renders the initial screen,
// opens the connection, starts health polling, and then consumes events.
func (c *Controller) Run(ctx context.Context) {
	go c.monitor.Run(ctx)

	c.rt.Render(router.PathMenu)
	c.mgr.Connect(ctx)
	c.setStatusText("connecting")

	for {
		select {
		case <-ctx.Done():
			c.mgr.Close()
			return
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// Status returns a snapshot for the diagnostics surface.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CurrentView returns the latest published view.
func (c *Controller) CurrentView() session.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

// --- user intents; callable from any goroutine ---

// CreateRoom asks the server for a fresh room. A custom endpoint entered in
// the setup screen is persisted and adopted first.
func (c *Controller) CreateRoom(name, customURL string) {
	c.post(commandEvent{run: func(ctx context.Context) {
		c.adoptCustomEndpoint(ctx, customURL)
		c.sendOrExplain(ctx, proto.CreateRoom{Name: name})
	}})
}

// JoinRoom enters a room by invite code. When disconnected the join is
// deferred and a connect is kicked off; the deferred intent goes out at
// most once on open.
func (c *Controller) JoinRoom(name, code, customURL string) {
	c.post(commandEvent{run: func(ctx context.Context) {
		c.adoptCustomEndpoint(ctx, customURL)
		if err := c.mgr.SendOrDefer(ctx, proto.JoinRoom{Name: name, RoomCode: code}); err != nil {
			c.surfaceSendError(err)
			return
		}
		if c.mgr.State() != conn.StateOpen {
			c.mgr.Connect(ctx)
			c.setStatusText("connecting")
		}
	}})
}

// CreateAIRoom starts a single-player room against the server AI.
func (c *Controller) CreateAIRoom(name string, difficulty proto.Difficulty) {
	c.post(commandEvent{run: func(ctx context.Context) {
		c.sendOrExplain(ctx, proto.CreateAIRoom{Name: name, Difficulty: difficulty})
	}})
}

// ToggleReady flips the lobby ready toggle and reports it to the server.
func (c *Controller) ToggleReady() {
	c.post(commandEvent{run: func(ctx context.Context) {
		if !c.view.Affordances().Ready {
			return
		}
		c.view.Ready = !c.view.Ready
		c.sendOrExplain(ctx, proto.Ready{Ready: c.view.Ready})
		c.publishView()
	}})
}

// Fire shoots at the opponent's field.
func (c *Controller) Fire(shot proto.ShotType) {
	c.post(commandEvent{run: func(ctx context.Context) {
		a := c.view.Affordances()
		allowed := map[proto.ShotType]bool{
			proto.ShotNormal:  a.NormalShot,
			proto.ShotPrecise: a.PreciseShot,
			proto.ShotStrong:  a.StrongShot,
		}
		if !allowed[shot] {
			c.surfaceMessage("Acao indisponivel")
			return
		}
		c.sendOrExplain(ctx, proto.Shot{ShotType: shot})
	}})
}

// EnterBuyMode arms the buy-a-base mode; the next own-board click buys.
func (c *Controller) EnterBuyMode() {
	c.post(commandEvent{run: func(ctx context.Context) {
		if !c.view.Affordances().BuyBase {
			c.surfaceMessage("Acao indisponivel")
			return
		}
		c.view.Buying = true
		c.surfaceMessage("Clique em uma posicao livre para comprar base.")
		c.publishView()
	}})
}

// ClickOwnCell handles a pointer click on the local board: placement during
// the placement phase, purchase while buy mode is armed in battle.
func (c *Controller) ClickOwnCell(pos proto.Position) {
	c.post(commandEvent{run: func(ctx context.Context) {
		snap := c.view.Snapshot
		if snap == nil {
			return
		}
		switch {
		case snap.Phase == proto.PhasePlacement:
			c.sendOrExplain(ctx, proto.PlaceBase{Pos: pos})
		case snap.Phase == proto.PhaseBattle && c.view.Buying:
			c.view.Buying = false
			c.sendOrExplain(ctx, proto.BuyBase{Pos: pos})
			c.publishView()
		}
	}})
}

// Reconnect re-dials on explicit user request. Gated on the last known
// online state so it cannot fire into a known-dead backend.
func (c *Controller) Reconnect() {
	c.post(commandEvent{run: func(ctx context.Context) {
		if !c.monitor.Online() {
			c.surfaceMessage("Backend offline")
			return
		}
		c.mgr.Connect(ctx)
		c.setStatusText("connecting")
	}})
}

// Navigate requests a path change through the router's transition function.
func (c *Controller) Navigate(path router.Path) {
	c.post(commandEvent{run: func(context.Context) { c.rt.Navigate(path) }})
}

// Back and Forward traverse navigation history.
func (c *Controller) Back() {
	c.post(commandEvent{run: func(context.Context) { c.rt.Back() }})
}

// Forward is the counterpart of Back.
func (c *Controller) Forward() {
	c.post(commandEvent{run: func(context.Context) { c.rt.Forward() }})
}

// PressEscape handles the Escape key binding.
func (c *Controller) PressEscape() {
	c.post(commandEvent{run: func(context.Context) { c.rt.HandleEscape() }})
}

// ToggleDiagnostics handles the diagnostics key binding.
func (c *Controller) ToggleDiagnostics() {
	c.post(commandEvent{run: func(context.Context) { c.rt.HandleDiagnosticsToggle() }})
}

// SignOut drops the identity and tears down the connection; the router
// resolves every subsequent path to login.
func (c *Controller) SignOut() {
	c.post(commandEvent{run: func(context.Context) {
		c.gate.SignOut()
		c.mgr.Close()
		c.setStatusText("disconnected")
	}})
}

// SignIn adopts a fresh token source from the identity provider.
func (c *Controller) SignIn(source auth.TokenSource) {
	c.post(commandEvent{run: func(ctx context.Context) {
		c.gate.SetSource(ctx, source)
	}})
}

// --- event loop ---

func (c *Controller) post(ev event) {
	c.events <- ev
}

func (c *Controller) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case commandEvent:
		ev.run(ctx)
	case connEvent:
		c.handleConn(ctx, ev.ev)
	case healthEvent:
		c.handleHealth(ctx, ev.rep)
	case expiryEvent:
		c.handleExpiry(ev)
	case authEvent:
		// Re-run the current path through the transition function so the
		// visible screen can never contradict the authentication state.
		c.rt.Render(c.rt.CurrentPath())
	}
}

func (c *Controller) handleConn(ctx context.Context, ev conn.Event) {
	switch ev := ev.(type) {
	case conn.Opened:
		c.setStatusText("connected")
		if c.log != nil {
			c.log.Info().Str("url", ev.Endpoint.URL).Bool("resumed", ev.Resumed).Msg("connected")
		}
	case conn.Closed:
		c.setStatusText("disconnected")
		if ev.Err != nil && c.log != nil {
			c.log.Warn().Err(ev.Err).Msg("connection lost")
		}
	case conn.FallbackFired:
		c.monitor.SetTarget(ev.To)
		c.surfaceMessage("Backend offline. Fallback to default.")
	case conn.Received:
		c.reduce(ctx, ev.Event)
	}
}

func (c *Controller) reduce(ctx context.Context, ev proto.Event) {
	next, cues := session.Reduce(c.view, ev, c.cfg.ImpactTTL)
	c.view = next
	for _, cue := range cues {
		c.execute(ctx, cue)
	}
	c.publishView()
}

func (c *Controller) execute(ctx context.Context, cue session.Cue) {
	switch cue.Kind {
	case session.CueNavigate:
		c.rt.Navigate(cue.Path)
	case session.CueSaveIdentity:
		id := store.Identity{RoomCode: cue.RoomCode, PlayerID: cue.PlayerID}
		if err := c.st.SaveIdentity(ctx, id); err != nil {
			if c.log != nil {
				c.log.Error().Err(err).Msg("failed to persist identity")
			}
		}
		c.surfaceMessage("Invite: " + c.inviteLink(cue.RoomCode))
	case session.CueClearIdentity:
		if err := c.st.ClearIdentity(ctx); err != nil && c.log != nil {
			c.log.Error().Err(err).Msg("failed to clear identity")
		}
	case session.CueMessage:
		c.surfaceMessage(cue.Text)
	case session.CueScheduleExpiry:
		c.armExpiry(cue.Side, cue.Generation, cue)
	default:
		// Semantic cues (shot, phase, win/loss) go straight to collaborators.
		c.forwardCue(cue)
	}
}

// armExpiry cancels the side's pending timer and replaces it, so two
// highlights never race each other's expiry on the same side.
func (c *Controller) armExpiry(side session.Side, gen uint64, cue session.Cue) {
	if t, ok := c.expiry[side]; ok {
		t.Stop()
	}
	c.expiry[side] = c.clk.AfterFunc(cue.After, func() {
		c.post(expiryEvent{side: side, gen: gen})
	})
}

func (c *Controller) handleExpiry(ev expiryEvent) {
	next, changed := session.ExpireHighlight(c.view, ev.side, ev.gen)
	if !changed {
		return
	}
	c.view = next
	c.publishView()
}

func (c *Controller) handleHealth(ctx context.Context, rep health.Report) {
	c.mu.Lock()
	c.status.Online = rep.Online
	c.status.Streak = rep.Streak
	c.mu.Unlock()
	c.mgr.HandleHealth(ctx, rep)
}

// --- helpers ---

func (c *Controller) adoptCustomEndpoint(ctx context.Context, customURL string) {
	if customURL == "" {
		return
	}
	if err := c.st.SaveEndpoint(ctx, customURL); err != nil && c.log != nil {
		c.log.Warn().Err(err).Msg("failed to store endpoint")
	}
	c.mgr.SetEndpoint(conn.Endpoint{URL: customURL, Source: conn.SourceStored})
	c.monitor.SetTarget(customURL)
}

func (c *Controller) sendOrExplain(ctx context.Context, intent proto.Intent) {
	if err := c.mgr.Send(ctx, intent); err != nil {
		c.surfaceSendError(err)
	}
}

func (c *Controller) surfaceSendError(err error) {
	if c.log != nil {
		c.log.Debug().Err(err).Msg("intent dropped")
	}
	switch {
	case errors.Is(err, conn.ErrNotAuthenticated):
		c.surfaceMessage("Faca login para continuar.")
	case errors.Is(err, conn.ErrNotConnected):
		c.surfaceMessage("Sem conexao com o servidor.")
	default:
		c.surfaceMessage("Falha ao enviar.")
	}
}

func (c *Controller) surfaceMessage(text string) {
	c.mu.Lock()
	c.message = text
	c.status.Message = text
	c.mu.Unlock()
	c.forwardCue(session.Cue{Kind: session.CueMessage, Text: text})
}

func (c *Controller) forwardCue(cue session.Cue) {
	if c.collab.OnCue != nil {
		c.collab.OnCue(cue)
	}
}

func (c *Controller) publishView() {
	v := c.view
	c.mu.Lock()
	c.published = v
	c.status.RoomCode = v.RoomCode
	c.status.PlayerID = v.PlayerID
	if v.Snapshot != nil {
		c.status.Phase = string(v.Snapshot.Phase)
	}
	c.mu.Unlock()
	if c.collab.OnView != nil {
		c.collab.OnView(v)
	}
}

func (c *Controller) onScreenChange(change router.Change) {
	c.mu.Lock()
	c.status.Path = string(change.Path)
	c.status.Screen = string(change.Screen)
	c.status.Diagnostics = change.Diagnostics
	c.mu.Unlock()
	if c.collab.OnScreen != nil {
		c.collab.OnScreen(change)
	}
}

func (c *Controller) setStatusText(state string) {
	c.mu.Lock()
	c.status.ConnState = state
	c.status.Endpoint = c.mgr.Endpoint().URL
	c.mu.Unlock()
	if c.collab.OnStatus != nil {
		c.collab.OnStatus(state)
	}
}

func (c *Controller) inviteLink(roomCode string) string {
	return fmt.Sprintf("cannonclash://join?room=%s&ws=%s",
		roomCode, url.QueryEscape(c.mgr.Endpoint().URL))
}

