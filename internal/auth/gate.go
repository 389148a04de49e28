package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken means no bearer token is currently available.
	ErrNoToken = errors.New("no bearer token")
	// ErrTokenExpired means the held token is past its expiry.
	ErrTokenExpired = errors.New("bearer token expired")
)

// Identity is the authenticated principal as far as this client cares:
// present or absent, with display fields for the UI.
type Identity struct {
	UID   string
	Email string
}

// Claims are the bearer-token claims this client reads. The token is issued
// and verified by the server; the client parses it unverified only to learn
// who it is acting as and whether the token is still fresh enough to send.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenSource yields the current bearer token. It is consulted on every
// send so a rotated token is always picked up; it may suspend to refresh.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Gate wraps the external identity provider. It owns the authenticated
// identity's lifecycle; the rest of the client only ever asks "present or
// absent" and "give me a token to attach".
type Gate struct {
	mu       sync.Mutex
	source   TokenSource
	identity *Identity
	subs     map[int]func(Identity, bool)
	nextSub  int
	now      func() time.Time
}

// NewGate builds a gate over the given token source.
func NewGate(source TokenSource) *Gate {
	return &Gate{
		source: source,
		subs:   make(map[int]func(Identity, bool)),
		now:    time.Now,
	}
}

// CurrentIdentity returns the signed-in identity, if any.
func (g *Gate) CurrentIdentity() (Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.identity == nil {
		return Identity{}, false
	}
	return *g.identity, true
}

// Authenticated reports whether an identity is present.
func (g *Gate) Authenticated() bool {
	_, ok := g.CurrentIdentity()
	return ok
}

// Token returns a bearer token fit to attach to an outbound intent. It
// re-reads the source every call and refuses expired tokens locally instead
// of letting the server reject them.
func (g *Gate) Token(ctx context.Context) (string, error) {
	g.mu.Lock()
	source := g.source
	g.mu.Unlock()

	if source == nil {
		return "", ErrNoToken
	}
	token, err := source.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("token source: %w", err)
	}
	if token == "" {
		return "", ErrNoToken
	}
	if _, err := g.parse(token); err != nil {
		return "", err
	}
	return token, nil
}

// Refresh re-reads the token source and recomputes the identity, notifying
// subscribers on a presence transition. Called after the external provider
// reports a sign-in, and by the controller on startup.
func (g *Gate) Refresh(ctx context.Context) {
	var next *Identity
	if token, err := g.Token(ctx); err == nil {
		if claims, err := g.parse(token); err == nil {
			next = &Identity{UID: claims.UID, Email: claims.Email}
		}
	}
	g.setIdentity(next)
}

// SignOut drops the identity and notifies subscribers. The token source is
// detached so a stale token cannot resurrect the session.
func (g *Gate) SignOut() {
	g.mu.Lock()
	g.source = nil
	g.mu.Unlock()
	g.setIdentity(nil)
}

// SetSource swaps the token source (sign-in with fresh credentials) and
// recomputes the identity.
func (g *Gate) SetSource(ctx context.Context, source TokenSource) {
	g.mu.Lock()
	g.source = source
	g.mu.Unlock()
	g.Refresh(ctx)
}

// Subscribe registers a callback for sign-in/sign-out transitions and
// returns an unsubscribe func.
func (g *Gate) Subscribe(fn func(id Identity, present bool)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.nextSub
	g.nextSub++
	g.subs[n] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, n)
	}
}

func (g *Gate) setIdentity(next *Identity) {
	g.mu.Lock()
	prevPresent := g.identity != nil
	nextPresent := next != nil
	changed := prevPresent != nextPresent ||
		(prevPresent && nextPresent && *g.identity != *next)
	g.identity = next
	var fns []func(Identity, bool)
	var id Identity
	if next != nil {
		id = *next
	}
	if changed {
		for _, fn := range g.subs {
			fns = append(fns, fn)
		}
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(id, nextPresent)
	}
}

func (g *Gate) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(g.now()) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}
