package session

import (
	"time"

	"github.com/cannonclash/client/internal/router"
)

// CueKind is a side-effect instruction the reducer emits for external
// collaborators. The reducer itself never touches storage, sound or timers.
type CueKind int

const (
	// CueNavigate asks the router to move to Cue.Path.
	CueNavigate CueKind = iota
	// CueSaveIdentity asks the identity store to persist (RoomCode, PlayerID).
	CueSaveIdentity
	// CueClearIdentity asks the identity store to drop both identity keys.
	CueClearIdentity
	// CueMessage surfaces a user-visible message.
	CueMessage
	// CueMatchPhase signals a transition into placement or battle, once per
	// transition. The sound collaborator plays its start tone from this.
	CueMatchPhase
	// CueShotFired signals that a snapshot carried fresh impacts.
	CueShotFired
	// CueWin and CueLoss fire exactly once when the room ends with a winner.
	CueWin
	CueLoss
	// CueScheduleExpiry asks the scheduler to arm (cancel-and-replace) the
	// expiry timer for one side's impact highlight.
	CueScheduleExpiry
)

// Cue carries one side-effect instruction.
type Cue struct {
	Kind CueKind

	Path     router.Path
	RoomCode string
	PlayerID string
	Text     string
	Phase    string

	Side       Side
	Generation uint64
	After      time.Duration
}
