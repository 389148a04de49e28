package proto

// Phase is the server-side room lifecycle stage.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhasePlacement Phase = "placement"
	PhaseBattle    Phase = "battle"
	PhaseEnded     Phase = "ended"
)

// Position is a board cell as (row, col), matching the wire's two-element array.
type Position [2]int

// Row returns the row coordinate.
func (p Position) Row() int { return p[0] }

// Col returns the column coordinate.
func (p Position) Col() int { return p[1] }

// PlayerState is one player's slice of the authoritative room state.
type PlayerState struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Saldo          int    `json:"saldo"`
	Ready          bool   `json:"ready"`
	PlacementReady bool   `json:"placement_ready"`
	Connected      bool   `json:"connected"`
}

// Snapshot is the complete server-authoritative room state. Every room_state
// frame replaces the previous snapshot wholesale; no field is ever merged.
type Snapshot struct {
	Rows          int                   `json:"rows"`
	Cols          int                   `json:"cols"`
	MaxBases      int                   `json:"max_bases"`
	Phase         Phase                 `json:"phase"`
	TurnPlayerID  string                `json:"turn_player_id"`
	WinnerID      string                `json:"winner_id"`
	Players       []PlayerState         `json:"players"`
	Bases         map[string][]Position `json:"bases"`
	LastImpacts   []Position            `json:"last_impacts"`
	Message       string                `json:"message"`
	LastShooterID string                `json:"last_shooter_id"`
}

// Player looks up a player by id, returning nil when absent.
func (s *Snapshot) Player(id string) *PlayerState {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// Opponent returns the other player in a two-player room, or nil.
func (s *Snapshot) Opponent(id string) *PlayerState {
	for i := range s.Players {
		if s.Players[i].ID != id {
			return &s.Players[i]
		}
	}
	return nil
}

func (s *Snapshot) validate() error {
	if !validPhase(s.Phase) {
		return &FrameError{Reason: "unknown phase " + string(s.Phase)}
	}
	if len(s.Players) > 2 {
		return &FrameError{Reason: "more than two players in snapshot"}
	}
	for pid := range s.Bases {
		if s.Player(pid) == nil {
			return &FrameError{Reason: "bases for unknown player " + pid}
		}
	}
	return nil
}

func validPhase(p Phase) bool {
	switch p {
	case PhaseLobby, PhasePlacement, PhaseBattle, PhaseEnded:
		return true
	}
	return false
}
