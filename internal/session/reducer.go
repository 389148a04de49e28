package session

import (
	"time"

	"github.com/cannonclash/client/internal/proto"
	"github.com/cannonclash/client/internal/router"
)

// Reduce applies one validated server event to the view, returning the next
// view and the side-effect cues for external collaborators. It is pure: no
// I/O, no timers, no clock reads.
func Reduce(v View, ev proto.Event, impactTTL time.Duration) (View, []Cue) {
	switch ev := ev.(type) {
	case proto.Joined:
		return reduceJoined(v, ev)
	case proto.RoomState:
		return reduceRoomState(v, ev, impactTTL)
	case proto.ServerError:
		return reduceError(v, ev)
	}
	return v, nil
}

// ExpireHighlight handles a fired expiry timer. A timer armed for a
// superseded highlight generation is ignored, so an old timer can never
// clear a newer highlight on the same side.
func ExpireHighlight(v View, side Side, gen uint64) (View, bool) {
	h := v.highlight(side)
	if h == nil || h.Gen != gen {
		return v, false
	}
	v.setHighlight(side, nil)
	return v, true
}

func reduceJoined(v View, ev proto.Joined) (View, []Cue) {
	v.PlayerID = ev.PlayerID
	v.RoomCode = ev.RoomCode
	v.Buying = false
	v.Ready = false

	cues := []Cue{
		{Kind: CueSaveIdentity, RoomCode: ev.RoomCode, PlayerID: ev.PlayerID},
		{Kind: CueNavigate, Path: router.PathGame},
	}
	return v, cues
}

func reduceRoomState(v View, ev proto.RoomState, impactTTL time.Duration) (View, []Cue) {
	snap := ev.Snapshot
	prevPhase := v.lastPhase
	prevWinner := v.lastWinner

	v.Snapshot = &snap
	v.lastPhase = snap.Phase
	v.lastWinner = snap.WinnerID

	var cues []Cue

	if len(snap.LastImpacts) > 0 && snap.LastShooterID != "" {
		side := SideMine
		if snap.LastShooterID == v.PlayerID {
			side = SideOpponent
		}
		gen := v.nextGen(side)
		cells := make([]proto.Position, len(snap.LastImpacts))
		copy(cells, snap.LastImpacts)
		v.setHighlight(side, &Highlight{Cells: cells, Gen: gen})

		cues = append(cues,
			Cue{Kind: CueShotFired, Side: side},
			Cue{Kind: CueScheduleExpiry, Side: side, Generation: gen, After: impactTTL},
		)
	}

	if snap.Phase != prevPhase {
		switch snap.Phase {
		case proto.PhasePlacement, proto.PhaseBattle:
			cues = append(cues, Cue{Kind: CueMatchPhase, Phase: string(snap.Phase)})
		}
	}

	if snap.Phase == proto.PhaseEnded && snap.WinnerID != "" && snap.WinnerID != prevWinner {
		kind := CueLoss
		if snap.WinnerID == v.PlayerID {
			kind = CueWin
		}
		cues = append(cues, Cue{Kind: kind})
	}

	return v, cues
}

func reduceError(v View, ev proto.ServerError) (View, []Cue) {
	cues := []Cue{{Kind: CueMessage, Text: ev.Message}}

	if ev.InvalidResume() {
		v.RoomCode = ""
		v.PlayerID = ""
		cues = append(cues,
			Cue{Kind: CueClearIdentity},
			Cue{Kind: CueNavigate, Path: router.PathSetup},
		)
	}
	return v, cues
}
