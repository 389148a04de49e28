package session

import (
	"fmt"
	"strings"

	"github.com/cannonclash/client/internal/proto"
)

// Side routes an impact highlight to one of the two boards.
type Side string

const (
	SideMine     Side = "mine"
	SideOpponent Side = "opponent"
)

// Highlight is a transient impact annotation for one side. A new highlight
// for the same side always supersedes the pending one; Gen ties the expiry
// timer to the highlight generation it was armed for.
type Highlight struct {
	Cells []proto.Position
	Gen   uint64
}

// View is the derived per-viewer session state. It is a value: the reducer
// returns a new View rather than mutating in place.
type View struct {
	PlayerID string
	RoomCode string

	// Snapshot is the latest authoritative room state, replaced wholesale.
	Snapshot *proto.Snapshot

	// Buying marks the local buy-a-base UI mode.
	Buying bool
	// Ready mirrors the local lobby ready toggle.
	Ready bool

	Mine     *Highlight
	Opponent *Highlight

	genMine     uint64
	genOpponent uint64
	lastPhase   proto.Phase
	lastWinner  string
}

// Affordances says which player actions are currently meaningful. Recomputed
// from the snapshot on every reduction, never incrementally.
type Affordances struct {
	NormalShot  bool
	PreciseShot bool
	StrongShot  bool
	BuyBase     bool
	PlaceBase   bool
	Ready       bool
}

// Cost thresholds for the priced actions.
const (
	PreciseShotCost = 1
	BuyBaseCost     = 2
	StrongShotCost  = 3
)

// Affordances derives the action gates from the current snapshot.
func (v View) Affordances() Affordances {
	snap := v.Snapshot
	if snap == nil {
		return Affordances{}
	}

	saldo := 0
	if me := snap.Player(v.PlayerID); me != nil {
		saldo = me.Saldo
	}
	myTurn := snap.TurnPlayerID != "" && snap.TurnPlayerID == v.PlayerID
	battle := snap.Phase == proto.PhaseBattle

	return Affordances{
		NormalShot:  myTurn && battle,
		PreciseShot: myTurn && battle && saldo >= PreciseShotCost,
		StrongShot:  myTurn && battle && saldo >= StrongShotCost,
		BuyBase:     myTurn && battle && saldo >= BuyBaseCost,
		PlaceBase:   snap.Phase == proto.PhasePlacement,
		Ready:       snap.Phase == proto.PhaseLobby,
	}
}

// BoardSide is what the render collaborator needs for one board.
type BoardSide struct {
	Bases   []proto.Position
	Impacts []proto.Position
}

// Boards projects the snapshot plus pending highlights onto the two boards.
func (v View) Boards() (mine, opponent BoardSide) {
	snap := v.Snapshot
	if snap == nil {
		return
	}
	mine.Bases = snap.Bases[v.PlayerID]
	if opp := snap.Opponent(v.PlayerID); opp != nil {
		opponent.Bases = snap.Bases[opp.ID]
	}
	if v.Mine != nil {
		mine.Impacts = v.Mine.Cells
	}
	if v.Opponent != nil {
		opponent.Impacts = v.Opponent.Cells
	}
	return
}

// MyTurn reports whether the local player holds the turn.
func (v View) MyTurn() bool {
	return v.Snapshot != nil && v.Snapshot.TurnPlayerID == v.PlayerID && v.PlayerID != ""
}

// Saldo returns the local player's balance.
func (v View) Saldo() int {
	if v.Snapshot == nil {
		return 0
	}
	if me := v.Snapshot.Player(v.PlayerID); me != nil {
		return me.Saldo
	}
	return 0
}

// StatusLine renders the player list the way the game screen shows it:
// readiness during lobby, connectivity afterwards.
func (v View) StatusLine() string {
	snap := v.Snapshot
	if snap == nil {
		return ""
	}
	parts := make([]string, 0, len(snap.Players))
	for _, p := range snap.Players {
		var status string
		if snap.Phase == proto.PhaseLobby {
			status = "not ready"
			if p.Ready {
				status = "ready"
			}
		} else {
			status = "offline"
			if p.Connected {
				status = "online"
			}
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", p.Name, status))
	}
	return strings.Join(parts, " | ")
}

func (v View) highlight(side Side) *Highlight {
	if side == SideMine {
		return v.Mine
	}
	return v.Opponent
}

func (v *View) setHighlight(side Side, h *Highlight) {
	if side == SideMine {
		v.Mine = h
	} else {
		v.Opponent = h
	}
}

// nextGen hands out a fresh, never-reused generation for one side's
// highlight, so a stale expiry timer can never match a later highlight.
func (v *View) nextGen(side Side) uint64 {
	if side == SideMine {
		v.genMine++
		return v.genMine
	}
	v.genOpponent++
	return v.genOpponent
}
