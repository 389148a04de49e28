package store

import (
	"context"
	"errors"
)

// ErrPartialIdentity rejects writes that would persist a room code without a
// player id or vice versa. Identity is all-or-nothing across reloads.
var ErrPartialIdentity = errors.New("identity must carry both room code and player id")

// Identity is the durable session identity that survives a client restart.
// The zero value means "no identity".
type Identity struct {
	RoomCode string
	PlayerID string
}

// Present reports whether an identity is held.
func (i Identity) Present() bool { return i.RoomCode != "" && i.PlayerID != "" }

// Store is durable key/value state for the client: session identity plus the
// preferred server endpoint. Only the connection manager (on joined) and the
// session reducer's invalid-resume path may mutate identity.
type Store interface {
	Identity(ctx context.Context) (Identity, error)
	SaveIdentity(ctx context.Context, id Identity) error
	ClearIdentity(ctx context.Context) error

	Endpoint(ctx context.Context) (string, error)
	SaveEndpoint(ctx context.Context, url string) error
	ClearEndpoint(ctx context.Context) error

	Close() error
}
