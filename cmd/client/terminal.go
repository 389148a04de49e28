package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cannonclash/client/internal/app"
	"github.com/cannonclash/client/internal/proto"
	"github.com/cannonclash/client/internal/router"
	"github.com/cannonclash/client/internal/session"
)

// terminal is the text frontend: it renders views, prints cues and parses
// commands. All controller callbacks funnel through its mutex so output
// lines never interleave.
type terminal struct {
	mu  sync.Mutex
	out io.Writer

	name string
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out, name: "Player"}
}

func (t *terminal) collaborators() app.Collaborators {
	return app.Collaborators{
		OnCue:    t.onCue,
		OnView:   t.onView,
		OnScreen: t.onScreen,
		OnStatus: t.onStatus,
	}
}

func (t *terminal) onCue(cue session.Cue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch cue.Kind {
	case session.CueMessage:
		fmt.Fprintf(t.out, "* %s\n", cue.Text)
	case session.CueShotFired:
		fmt.Fprintln(t.out, "* boom")
	case session.CueMatchPhase:
		fmt.Fprintf(t.out, "* phase: %s\n", cue.Phase)
	case session.CueWin:
		fmt.Fprintln(t.out, "* victory!")
	case session.CueLoss:
		fmt.Fprintln(t.out, "* defeat")
	}
}

func (t *terminal) onScreen(ch router.Change) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "-- %s", ch.Screen)
	if ch.Diagnostics {
		fmt.Fprint(t.out, " [diagnostics]")
	}
	fmt.Fprintln(t.out)
}

func (t *terminal) onStatus(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "-- connection: %s\n", state)
}

func (t *terminal) onView(v session.View) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v.Snapshot == nil {
		return
	}
	fmt.Fprintln(t.out, t.renderView(v))
}

func (t *terminal) renderView(v session.View) string {
	snap := v.Snapshot
	var b strings.Builder

	fmt.Fprintf(&b, "room %s | %s | saldo %d", v.RoomCode, snap.Phase, v.Saldo())
	if v.MyTurn() {
		b.WriteString(" | your turn")
	}
	b.WriteByte('\n')
	if line := v.StatusLine(); line != "" {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	mine, opp := v.Boards()
	b.WriteString("yours:\n")
	b.WriteString(renderBoard(snap.Rows, snap.Cols, mine))
	b.WriteString("theirs:\n")
	b.WriteString(renderBoard(snap.Rows, snap.Cols, opp))
	return b.String()
}

func renderBoard(rows, cols int, side session.BoardSide) string {
	if rows == 0 || cols == 0 {
		return ""
	}
	grid := make([][]byte, rows)
	for r := range grid {
		grid[r] = []byte(strings.Repeat(".", cols))
	}
	mark := func(cells []proto.Position, c byte) {
		for _, p := range cells {
			if p.Row() >= 0 && p.Row() < rows && p.Col() >= 0 && p.Col() < cols {
				grid[p.Row()][p.Col()] = c
			}
		}
	}
	mark(side.Bases, 'B')
	mark(side.Impacts, 'X')

	var b strings.Builder
	for _, row := range grid {
		b.Write(row)
		b.WriteByte('\n')
	}
	return b.String()
}

// repl reads commands until ctx ends or stdin closes.
func (t *terminal) repl(ctx context.Context, ctl *app.Controller) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	fmt.Fprintln(t.out, `type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := t.dispatch(ctl, strings.Fields(line)); quit {
				return nil
			}
		}
	}
}

func (t *terminal) dispatch(ctl *app.Controller, args []string) (quit bool) {
	if len(args) == 0 {
		return false
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help":
		t.printHelp()
	case "name":
		if len(rest) > 0 {
			t.name = strings.Join(rest, " ")
		}
	case "create":
		ctl.CreateRoom(t.name, optArg(rest, 0))
	case "join":
		if len(rest) < 1 {
			t.say("usage: join <code> [ws-url]")
			return false
		}
		ctl.JoinRoom(t.name, strings.ToUpper(rest[0]), optArg(rest, 1))
	case "ai":
		ctl.CreateAIRoom(t.name, proto.Difficulty(optArgDefault(rest, 0, "medium")))
	case "ready":
		ctl.ToggleReady()
	case "shot":
		ctl.Fire(proto.ShotType(optArgDefault(rest, 0, string(proto.ShotNormal))))
	case "buy":
		ctl.EnterBuyMode()
	case "click":
		pos, err := parsePos(rest)
		if err != nil {
			t.say("usage: click <row> <col>")
			return false
		}
		ctl.ClickOwnCell(pos)
	case "reconnect":
		ctl.Reconnect()
	case "nav":
		if len(rest) < 1 {
			t.say("usage: nav <path>")
			return false
		}
		ctl.Navigate(router.Path(rest[0]))
	case "back":
		ctl.Back()
	case "forward":
		ctl.Forward()
	case "esc":
		ctl.PressEscape()
	case "diag":
		ctl.ToggleDiagnostics()
	case "logout":
		ctl.SignOut()
	case "quit", "exit":
		return true
	default:
		t.say("unknown command; type \"help\"")
	}
	return false
}

func (t *terminal) printHelp() {
	t.say(strings.Join([]string{
		"name <name>            set the display name",
		"create [ws-url]        create a room (optionally on a custom server)",
		"join <code> [ws-url]   join a room by invite code",
		"ai [difficulty]        play against the server AI",
		"ready                  toggle lobby readiness",
		"shot [normal|precise|strong]",
		"buy                    arm base purchase; then click a free cell",
		"click <row> <col>      click your own board",
		"reconnect              re-dial the server",
		"nav <path> / back / forward / esc / diag",
		"logout / quit",
	}, "\n"))
}

func (t *terminal) say(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, text)
}

func optArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func optArgDefault(args []string, i int, def string) string {
	if v := optArg(args, i); v != "" {
		return v
	}
	return def
}

func parsePos(args []string) (proto.Position, error) {
	if len(args) < 2 {
		return proto.Position{}, fmt.Errorf("need row and col")
	}
	r, err := strconv.Atoi(args[0])
	if err != nil {
		return proto.Position{}, err
	}
	c, err := strconv.Atoi(args[1])
	if err != nil {
		return proto.Position{}, err
	}
	return proto.Position{r, c}, nil
}
