// Package realmtest drives the live-session components from tests without a
// network transport.
package realmtest

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"realmsync.io/internal/auth"
	"realmsync.io/internal/fanout"
	"realmsync.io/internal/model"
	"realmsync.io/internal/players"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/registry"
	"realmsync.io/internal/store/memory"
)

// TrustVerifier accepts any non-empty token as the player id. The username
// defaults to the id.
type TrustVerifier struct{}

func (TrustVerifier) Verify(_ context.Context, c auth.Credentials) (model.Identity, error) {
	id := strings.TrimSpace(c.Token)
	if id == "" {
		return model.Identity{}, model.AuthError("token required")
	}
	name := c.Username
	if name == "" {
		name = id
	}
	return model.Identity{PlayerID: id, Username: name}, nil
}

// Harness owns a registry, player directory and fan-out hub wired together.
// Components under test attach to Hub and Registry.
type Harness struct {
	T        *testing.T
	Store    *memory.Storage
	Players  *players.Directory
	Registry *registry.Registry
	Hub      *fanout.Hub

	sessions map[string]*registry.Session
}

// New builds a harness. queue is the per-session outbound queue length.
func New(t *testing.T, queue int) *Harness {
	t.Helper()
	return NewWithStarter(t, queue, players.Starter{Gold: 100})
}

func NewWithStarter(t *testing.T, queue int, starter players.Starter) *Harness {
	t.Helper()
	if queue <= 0 {
		queue = 256
	}
	st := memory.New()
	dir := players.New(st, starter, nil)
	reg := registry.New(TrustVerifier{}, dir, registry.Config{OutboundQueue: queue}, nil)
	return &Harness{
		T:        t,
		Store:    st,
		Players:  dir,
		Registry: reg,
		Hub:      fanout.New(reg, nil),
		sessions: map[string]*registry.Session{},
	}
}

// Connect authenticates playerID and returns its session.
func (h *Harness) Connect(playerID string) *registry.Session {
	h.T.Helper()
	s, err := h.Registry.Authenticate(context.Background(), auth.Credentials{Token: playerID})
	if err != nil {
		h.T.Fatalf("connect %s: %v", playerID, err)
	}
	h.sessions[playerID] = s
	return s
}

// Disconnect terminates playerID's current session.
func (h *Harness) Disconnect(playerID string) {
	h.T.Helper()
	s := h.sessions[playerID]
	if s == nil {
		h.T.Fatalf("disconnect %s: not connected", playerID)
	}
	h.Registry.Terminate(context.Background(), s.ID)
}

// Session returns the most recent session for playerID.
func (h *Harness) Session(playerID string) *registry.Session {
	return h.sessions[playerID]
}

// Drain returns and clears every frame queued for playerID.
func (h *Harness) Drain(playerID string) []protocol.Envelope {
	h.T.Helper()
	s := h.sessions[playerID]
	if s == nil {
		h.T.Fatalf("drain %s: not connected", playerID)
	}
	var out []protocol.Envelope
	for _, b := range s.Drain() {
		env, err := protocol.Decode(b)
		if err != nil {
			h.T.Fatalf("decode frame for %s: %v (%s)", playerID, err, b)
		}
		out = append(out, env)
	}
	return out
}

// DrainAll clears every connected player's queue.
func (h *Harness) DrainAll() {
	for id := range h.sessions {
		h.Drain(id)
	}
}

// Types lists the frame types in order.
func Types(envs []protocol.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}

// Find returns the first frame of type typ.
func Find(envs []protocol.Envelope, typ string) (protocol.Envelope, bool) {
	for _, e := range envs {
		if e.Type == typ {
			return e, true
		}
	}
	return protocol.Envelope{}, false
}

// Count returns how many frames have type typ.
func Count(envs []protocol.Envelope, typ string) int {
	n := 0
	for _, e := range envs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// Expect drains playerID and fails unless a frame of type typ was queued.
// It returns the first such frame decoded into T.
func Expect[T any](h *Harness, playerID, typ string) T {
	h.T.Helper()
	envs := h.Drain(playerID)
	env, ok := Find(envs, typ)
	if !ok {
		h.T.Fatalf("%s: expected %s, got %v", playerID, typ, Types(envs))
	}
	return Decode[T](h.T, env)
}

// ExpectNone drains playerID and fails if a frame of type typ was queued.
func (h *Harness) ExpectNone(playerID, typ string) {
	h.T.Helper()
	envs := h.Drain(playerID)
	if _, ok := Find(envs, typ); ok {
		h.T.Fatalf("%s: unexpected %s in %v", playerID, typ, Types(envs))
	}
}

func Decode[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return v
}
