package router

import "testing"

type recorder struct {
	changes []Change
}

func (r *recorder) record(c Change) { r.changes = append(r.changes, c) }

func (r *recorder) last(t *testing.T) Change {
	t.Helper()
	if len(r.changes) == 0 {
		t.Fatal("no screen changes recorded")
	}
	return r.changes[len(r.changes)-1]
}

func newTestRouter(authed *bool, dev bool) (*Router, *recorder) {
	rec := &recorder{}
	r := New(func() bool { return *authed }, dev, rec.record, nil)
	return r, rec
}

func TestUnauthenticatedAlwaysResolvesToLogin(t *testing.T) {
	authed := false
	r, rec := newTestRouter(&authed, false)

	for _, path := range []Path{PathMenu, PathSetup, PathGame, PathDiagnostics, Path("/nonsense")} {
		r.Navigate(path)
		c := rec.last(t)
		if c.Path != PathLogin || c.Screen != ScreenLogin {
			t.Fatalf("Navigate(%s) unauthenticated: got %+v", path, c)
		}
	}
}

func TestAuthenticatedLoginRedirectsToMenu(t *testing.T) {
	authed := true
	r, rec := newTestRouter(&authed, false)

	r.Navigate(PathLogin)
	c := rec.last(t)
	if c.Path != PathMenu || c.Screen != ScreenMenu {
		t.Fatalf("login while authenticated should land on menu, got %+v", c)
	}
}

func TestUnrecognizedPathDefaultsToMenu(t *testing.T) {
	authed := true
	r, rec := newTestRouter(&authed, false)

	r.Navigate(Path("/does/not/exist"))
	if c := rec.last(t); c.Path != PathMenu || c.Screen != ScreenMenu {
		t.Fatalf("unrecognized path should fall back to menu, got %+v", c)
	}
}

func TestDiagnosticsRequiresDevEnvironment(t *testing.T) {
	authed := true
	r, rec := newTestRouter(&authed, false)

	r.Navigate(PathDiagnostics)
	c := rec.last(t)
	if c.Path != PathMenu || c.Diagnostics {
		t.Fatalf("diagnostics outside dev should resolve to menu, got %+v", c)
	}
}

func TestDiagnosticsOverlaysCurrentScreen(t *testing.T) {
	authed := true
	r, rec := newTestRouter(&authed, true)

	r.Navigate(PathSetup)
	r.Navigate(PathDiagnostics)
	c := rec.last(t)
	if !c.Diagnostics || c.Screen != ScreenSetup {
		t.Fatalf("diagnostics should overlay the prior screen, got %+v", c)
	}

	r.HandleDiagnosticsToggle()
	c = rec.last(t)
	if c.Diagnostics || c.Path != PathSetup || c.Screen != ScreenSetup {
		t.Fatalf("toggle off should return to the prior path, got %+v", c)
	}
}

func TestDiagnosticsToggleIgnoredOutsideDev(t *testing.T) {
	authed := true
	r, rec := newTestRouter(&authed, false)

	r.Navigate(PathMenu)
	before := len(rec.changes)
	r.HandleDiagnosticsToggle()
	if len(rec.changes) != before {
		t.Fatal("toggle outside dev must be a no-op")
	}
}

func TestEscapeLeavesSetupOnly(t *testing.T) {
	authed := true
	r, rec := newTestRouter(&authed, false)

	r.Navigate(PathSetup)
	r.HandleEscape()
	if c := rec.last(t); c.Path != PathMenu {
		t.Fatalf("escape from setup should go to menu, got %+v", c)
	}

	r.Navigate(PathGame)
	before := len(rec.changes)
	r.HandleEscape()
	if len(rec.changes) != before {
		t.Fatal("escape outside setup must be a no-op")
	}
}

func TestExactlyOneScreenVisible(t *testing.T) {
	authed := false
	r, rec := newTestRouter(&authed, true)

	paths := []Path{PathMenu, PathLogin, PathDiagnostics, PathGame, Path("/x"), PathSetup}
	for i, path := range paths {
		if i == 2 {
			authed = true
		}
		r.Navigate(path)
	}
	for _, c := range rec.changes {
		switch c.Screen {
		case ScreenLogin, ScreenMenu, ScreenSetup, ScreenGame:
		default:
			t.Fatalf("invalid screen %q", c.Screen)
		}
	}
}

func TestBackForwardReuseTransition(t *testing.T) {
	authed := true
	r, rec := newTestRouter(&authed, false)

	r.Navigate(PathMenu)
	r.Navigate(PathSetup)
	r.Navigate(PathGame)

	r.Back()
	if c := rec.last(t); c.Path != PathSetup {
		t.Fatalf("back should land on setup, got %+v", c)
	}
	r.Back()
	if c := rec.last(t); c.Path != PathMenu {
		t.Fatalf("back again should land on menu, got %+v", c)
	}
	r.Forward()
	if c := rec.last(t); c.Path != PathSetup {
		t.Fatalf("forward should land on setup, got %+v", c)
	}

	// History traversal goes through the same auth guard.
	authed = false
	r.Back()
	if c := rec.last(t); c.Path != PathLogin {
		t.Fatalf("back while unauthenticated must resolve to login, got %+v", c)
	}
}

func TestNoImplicitMemoryAcrossAuthBoundary(t *testing.T) {
	authed := false
	r, rec := newTestRouter(&authed, false)

	r.Navigate(PathGame)
	if c := rec.last(t); c.Path != PathLogin {
		t.Fatalf("expected login, got %+v", c)
	}

	authed = true
	r.Navigate(PathLogin)
	c := rec.last(t)
	if c.Path != PathMenu {
		t.Fatalf("after auth, login resolves to menu only, got %+v", c)
	}
}
