package proto

import "encoding/json"

// Frame is the envelope for messages pushed by the server.
type Frame struct {
	Type     string          `json:"type"`
	PlayerID string          `json:"player_id,omitempty"`
	RoomCode string          `json:"room_code,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
}

const (
	FrameTypeJoined    = "joined"
	FrameTypeRoomState = "room_state"
	FrameTypeError     = "error"

	IntentTypeCreateRoom   = "create_room"
	IntentTypeJoinRoom     = "join_room"
	IntentTypeCreateAIRoom = "create_ai_room"
	IntentTypeReconnect    = "reconnect"
	IntentTypeReady        = "ready"
	IntentTypeShot         = "shot"
	IntentTypeBuyBase      = "buy_base"
	IntentTypePlaceBase    = "place_base"
)

// InvalidResumeMessage is the server's sentinel for a rejected reconnect.
// Clearing durable identity keys on it is the only path that drops them.
const InvalidResumeMessage = "Reconexao invalida"

// ShotType names the three shot variants.
type ShotType string

const (
	ShotNormal  ShotType = "normal"
	ShotPrecise ShotType = "precise"
	ShotStrong  ShotType = "strong"
)

// Difficulty selects AI opponent strength for single-player rooms.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Intent is an outbound request to the game server.
type Intent interface {
	intentType() string
}

// CreateRoom opens a fresh two-player room.
type CreateRoom struct {
	Name string `json:"name"`
}

// JoinRoom enters an existing room by invite code.
type JoinRoom struct {
	Name     string `json:"name"`
	RoomCode string `json:"room_code"`
}

// CreateAIRoom starts a single-player room against the server AI.
type CreateAIRoom struct {
	Name       string     `json:"name"`
	Difficulty Difficulty `json:"difficulty"`
}

// Reconnect resumes a previously joined room using durable identity.
type Reconnect struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
}

// Ready toggles lobby readiness.
type Ready struct {
	Ready bool `json:"ready"`
}

// Shot fires at the opponent's field.
type Shot struct {
	ShotType ShotType `json:"shot_type"`
}

// BuyBase purchases an extra base at a free position during battle.
type BuyBase struct {
	Pos Position `json:"pos"`
}

// PlaceBase places a base during the placement phase.
type PlaceBase struct {
	Pos Position `json:"pos"`
}

func (CreateRoom) intentType() string   { return IntentTypeCreateRoom }
func (JoinRoom) intentType() string     { return IntentTypeJoinRoom }
func (CreateAIRoom) intentType() string { return IntentTypeCreateAIRoom }
func (Reconnect) intentType() string    { return IntentTypeReconnect }
func (Ready) intentType() string        { return IntentTypeReady }
func (Shot) intentType() string         { return IntentTypeShot }
func (BuyBase) intentType() string      { return IntentTypeBuyBase }
func (PlaceBase) intentType() string    { return IntentTypePlaceBase }

// IntentType exposes the wire tag of an intent.
func IntentType(in Intent) string { return in.intentType() }

// Unauthenticated reports whether an intent may go out without a bearer
// token. Only the initial setup-screen requests qualify; everything else is
// refused locally when no token is available.
func Unauthenticated(in Intent) bool {
	switch in.(type) {
	case CreateRoom, JoinRoom, CreateAIRoom:
		return true
	}
	return false
}
