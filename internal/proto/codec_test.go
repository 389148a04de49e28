package proto

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeJoined(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"joined","player_id":"p1","room_code":"ABCDE"}`))
	if err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	joined, ok := ev.(Joined)
	if !ok {
		t.Fatalf("expected Joined, got %T", ev)
	}
	if joined.PlayerID != "p1" || joined.RoomCode != "ABCDE" {
		t.Fatalf("unexpected joined: %+v", joined)
	}
}

func TestDecodeJoinedMissingIdentity(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"type":"joined","player_id":"p1"}`))
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FrameError, got %v", err)
	}
}

func TestDecodeRoomState(t *testing.T) {
	raw := []byte(`{"type":"room_state","data":{
		"rows":3,"cols":5,"max_bases":5,"phase":"battle",
		"turn_player_id":"p1","winner_id":null,
		"players":[
			{"id":"p1","name":"Ana","saldo":2,"ready":true,"placement_ready":true,"connected":true},
			{"id":"p2","name":"Bia","saldo":0,"ready":true,"placement_ready":true,"connected":false}
		],
		"bases":{"p1":[[0,0],[1,2]],"p2":[[2,4]]},
		"last_impacts":[[1,2]],
		"message":"Tiro efetuado",
		"last_shooter_id":"p2"
	}}`)

	ev, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("decode room_state: %v", err)
	}
	st, ok := ev.(RoomState)
	if !ok {
		t.Fatalf("expected RoomState, got %T", ev)
	}
	snap := st.Snapshot
	if snap.Phase != PhaseBattle || snap.TurnPlayerID != "p1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if got := snap.Player("p2"); got == nil || got.Connected {
		t.Fatalf("expected disconnected p2, got %+v", got)
	}
	if got := snap.Opponent("p1"); got == nil || got.ID != "p2" {
		t.Fatalf("expected opponent p2, got %+v", got)
	}
	if len(snap.LastImpacts) != 1 || snap.LastImpacts[0].Row() != 1 || snap.LastImpacts[0].Col() != 2 {
		t.Fatalf("unexpected impacts: %+v", snap.LastImpacts)
	}
}

func TestDecodeRoomStateRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"third player": `{"type":"room_state","data":{"phase":"lobby","players":[
			{"id":"a"},{"id":"b"},{"id":"c"}],"bases":{}}}`,
		"unknown phase": `{"type":"room_state","data":{"phase":"intermission","players":[],"bases":{}}}`,
		"stray bases":   `{"type":"room_state","data":{"phase":"lobby","players":[{"id":"a"}],"bases":{"ghost":[[0,0]]}}}`,
	}
	for name, raw := range cases {
		var fe *FrameError
		if _, err := DecodeFrame([]byte(raw)); !errors.As(err, &fe) {
			t.Errorf("%s: expected FrameError, got %v", name, err)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	for _, raw := range []string{`{"type":"pong"}`, `{"message":"no tag"}`, `not json`} {
		if _, err := DecodeFrame([]byte(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
	_, err := DecodeFrame([]byte(`{"type":"pong"}`))
	if !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("expected ErrUnknownFrame, got %v", err)
	}
}

func TestInvalidResumeSentinel(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"error","message":"Reconexao invalida"}`))
	if err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	se := ev.(ServerError)
	if !se.InvalidResume() {
		t.Fatal("expected invalid-resume sentinel to match")
	}
	if (ServerError{Message: "Sala cheia"}).InvalidResume() {
		t.Fatal("ordinary error must not match invalid-resume")
	}
}

func TestEncodeIntentFlatShape(t *testing.T) {
	raw, err := EncodeIntent(JoinRoom{Name: "Ana", RoomCode: "ABCDE"}, "tok")
	if err != nil {
		t.Fatalf("encode join_room: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal encoded intent: %v", err)
	}
	if m["type"] != "join_room" || m["name"] != "Ana" || m["room_code"] != "ABCDE" {
		t.Fatalf("unexpected wire shape: %v", m)
	}
	if _, ok := m["token"]; ok {
		t.Fatal("setup-screen join must not carry a token")
	}
}

func TestEncodeIntentAttachesToken(t *testing.T) {
	raw, err := EncodeIntent(Shot{ShotType: ShotStrong}, "tok-123")
	if err != nil {
		t.Fatalf("encode shot: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal encoded intent: %v", err)
	}
	if m["type"] != "shot" || m["shot_type"] != "strong" || m["token"] != "tok-123" {
		t.Fatalf("unexpected wire shape: %v", m)
	}
}

func TestEncodeIntentPositions(t *testing.T) {
	raw, err := EncodeIntent(BuyBase{Pos: Position{2, 4}}, "tok")
	if err != nil {
		t.Fatalf("encode buy_base: %v", err)
	}
	want := `"pos":[2,4]`
	if !strings.Contains(string(raw), want) {
		t.Fatalf("expected %s in %s", want, raw)
	}
}
