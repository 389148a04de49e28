package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownFrame marks frames whose type tag is missing or unrecognized.
// Such frames are dropped before they can reach the reducer.
var ErrUnknownFrame = errors.New("unknown frame type")

// FrameError describes a frame that parsed as JSON but failed validation.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string { return "invalid frame: " + e.Reason }

// Event is a validated inbound frame, ready for the session reducer.
type Event interface {
	isEvent()
}

// Joined confirms room membership and carries the identity to persist.
type Joined struct {
	PlayerID string
	RoomCode string
}

// RoomState carries a full authoritative snapshot.
type RoomState struct {
	Snapshot Snapshot
}

// ServerError surfaces a server-reported failure message.
type ServerError struct {
	Message string
}

func (Joined) isEvent()      {}
func (RoomState) isEvent()   {}
func (ServerError) isEvent() {}

// InvalidResume reports whether a server error denotes a rejected reconnect.
func (e ServerError) InvalidResume() bool { return e.Message == InvalidResumeMessage }

// DecodeFrame parses and validates a raw inbound frame into a typed event.
func DecodeFrame(raw []byte) (Event, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	switch frame.Type {
	case FrameTypeJoined:
		if frame.PlayerID == "" || frame.RoomCode == "" {
			return nil, &FrameError{Reason: "joined frame missing identity"}
		}
		return Joined{PlayerID: frame.PlayerID, RoomCode: frame.RoomCode}, nil

	case FrameTypeRoomState:
		var snap Snapshot
		if err := json.Unmarshal(frame.Data, &snap); err != nil {
			return nil, fmt.Errorf("parse room_state data: %w", err)
		}
		if err := snap.validate(); err != nil {
			return nil, err
		}
		return RoomState{Snapshot: snap}, nil

	case FrameTypeError:
		return ServerError{Message: frame.Message}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, frame.Type)
}

// EncodeIntent serializes an outbound intent as a flat tagged object. The
// bearer token, when required, is attached here at send time so a rotated
// token is never replayed from a cached intent.
func EncodeIntent(in Intent, token string) ([]byte, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal intent: %w", err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("flatten intent: %w", err)
	}

	fields["type"] = json.RawMessage(`"` + in.intentType() + `"`)
	if token != "" && !Unauthenticated(in) {
		tok, err := json.Marshal(token)
		if err != nil {
			return nil, fmt.Errorf("marshal token: %w", err)
		}
		fields["token"] = tok
	}

	return json.Marshal(fields)
}
