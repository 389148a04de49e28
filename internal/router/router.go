package router

import "github.com/rs/zerolog"

// Path is a logical navigation target.
type Path string

const (
	PathLogin       Path = "/login"
	PathMenu        Path = "/menu"
	PathSetup       Path = "/menu/play"
	PathGame        Path = "/game"
	PathDiagnostics Path = "/diagnostics"
)

// Screen is a top-level view. Exactly one is visible at any time; the
// diagnostics overlay sits on top of whichever screen is active.
type Screen string

const (
	ScreenLogin Screen = "login"
	ScreenMenu  Screen = "menu"
	ScreenSetup Screen = "setup"
	ScreenGame  Screen = "game"
)

// Change describes the visible state after a transition.
type Change struct {
	Path        Path
	Screen      Screen
	Diagnostics bool
}

// Router is the state machine over top-level screens. Every way of arriving
// at a path — user intent, keyboard shortcut, history traversal — funnels
// through the same Render transition.
type Router struct {
	authed   func() bool
	dev      bool
	onChange func(Change)
	log      *zerolog.Logger

	current     Path
	lastNonDiag Path
	diagnostics bool

	history []Path
	idx     int
}

// New builds a router. authed is consulted on every transition; onChange
// receives the resulting visible state.
func New(authed func() bool, dev bool, onChange func(Change), logger *zerolog.Logger) *Router {
	return &Router{
		authed:      authed,
		dev:         dev,
		onChange:    onChange,
		log:         logger,
		lastNonDiag: PathMenu,
		history:     []Path{PathLogin},
	}
}

// CurrentPath returns the resolved path of the last transition.
func (r *Router) CurrentPath() Path { return r.current }

// CurrentScreen returns the visible non-diagnostic screen.
func (r *Router) CurrentScreen() Screen {
	if r.current == PathDiagnostics {
		return resolveScreen(r.lastNonDiag)
	}
	return resolveScreen(r.current)
}

// DiagnosticsVisible reports whether the overlay is shown.
func (r *Router) DiagnosticsVisible() bool { return r.diagnostics }

// Navigate pushes a new history entry and renders the path.
func (r *Router) Navigate(path Path) {
	r.history = append(r.history[:r.idx+1], path)
	r.idx = len(r.history) - 1
	r.Render(path)
}

// NavigateReplace renders the path, replacing the current history entry.
func (r *Router) NavigateReplace(path Path) {
	r.history[r.idx] = path
	r.Render(path)
}

// Back re-renders the previous history entry through the same transition
// function; there is no separate back code path.
func (r *Router) Back() {
	if r.idx == 0 {
		return
	}
	r.idx--
	r.Render(r.history[r.idx])
}

// Forward re-renders the next history entry.
func (r *Router) Forward() {
	if r.idx >= len(r.history)-1 {
		return
	}
	r.idx++
	r.Render(r.history[r.idx])
}

// HandleEscape leaves the setup screen back to the menu.
func (r *Router) HandleEscape() {
	if r.current == PathSetup {
		r.Navigate(PathMenu)
	}
}

// HandleDiagnosticsToggle flips the diagnostics overlay. Honored only in a
// developer environment; exit returns to the last non-diagnostic path.
func (r *Router) HandleDiagnosticsToggle() {
	if !r.dev {
		return
	}
	if r.current == PathDiagnostics {
		target := r.lastNonDiag
		if target == "" {
			target = PathMenu
		}
		r.Navigate(target)
		return
	}
	r.Navigate(PathDiagnostics)
}

// Render is the transition function: requested path plus authentication
// presence in, visible state out.
func (r *Router) Render(path Path) {
	target := normalize(path)
	authed := r.authed()

	if !authed && target != PathLogin {
		r.replaceEntry(PathLogin)
		r.apply(PathLogin, false)
		return
	}

	if authed && target == PathLogin {
		r.replaceEntry(PathMenu)
		r.apply(PathMenu, false)
		return
	}

	if target == PathDiagnostics {
		if !r.dev {
			r.replaceEntry(PathMenu)
			r.apply(PathMenu, false)
			return
		}
		r.current = PathDiagnostics
		r.diagnostics = true
		r.emit()
		return
	}

	r.apply(target, false)
	r.lastNonDiag = target
}

func (r *Router) apply(path Path, diagnostics bool) {
	r.current = path
	r.diagnostics = diagnostics
	r.emit()
}

func (r *Router) replaceEntry(path Path) {
	r.history[r.idx] = path
}

func (r *Router) emit() {
	change := Change{Path: r.current, Screen: r.CurrentScreen(), Diagnostics: r.diagnostics}
	if r.log != nil {
		r.log.Debug().
			Str("path", string(change.Path)).
			Str("screen", string(change.Screen)).
			Bool("diagnostics", change.Diagnostics).
			Msg("screen change")
	}
	if r.onChange != nil {
		r.onChange(change)
	}
}

func normalize(path Path) Path {
	switch path {
	case PathLogin, PathMenu, PathSetup, PathGame, PathDiagnostics:
		return path
	}
	return PathMenu
}

func resolveScreen(path Path) Screen {
	switch path {
	case PathLogin:
		return ScreenLogin
	case PathSetup:
		return ScreenSetup
	case PathGame:
		return ScreenGame
	}
	return ScreenMenu
}
