// Package registry owns the set of live sessions and their lifecycle.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"realmsync.io/internal/auth"
	"realmsync.io/internal/model"
	"realmsync.io/internal/players"
	"realmsync.io/internal/protocol"
)

// JoinHook runs after a session is registered, in registration order.
type JoinHook func(ctx context.Context, s *Session, p model.PlayerState)

// CleanupFunc runs after a session is removed, in registration order.
type CleanupFunc func(ctx context.Context, playerID string)

type namedJoin struct {
	name string
	fn   JoinHook
}

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

type Config struct {
	// OutboundQueue is the per-session queue length.
	OutboundQueue int
}

type Registry struct {
	verifier auth.Verifier
	players  *players.Directory
	cfg      Config
	logger   *log.Logger
	now      func() time.Time

	// lifecycle serializes authentication and termination per player, so a
	// reconnect never interleaves with the previous session's cleanups.
	lifecycle keyedMutex

	mu       sync.RWMutex
	byID     map[string]*Session
	byPlayer map[string]*Session
	joins    []namedJoin
	cleanups []namedCleanup

	authOK      atomic.Uint64
	authFailed  atomic.Uint64
	replaced    atomic.Uint64
	terminated  atomic.Uint64
	slowDropped atomic.Uint64
}

func New(v auth.Verifier, dir *players.Directory, cfg Config, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		verifier:  v,
		players:   dir,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		byID:      map[string]*Session{},
		byPlayer:  map[string]*Session{},
		lifecycle: keyedMutex{m: map[string]*refMutex{}},
	}
}

// OnJoin registers a join hook. Call at startup only.
func (r *Registry) OnJoin(name string, fn JoinHook) {
	r.mu.Lock()
	r.joins = append(r.joins, namedJoin{name: name, fn: fn})
	r.mu.Unlock()
}

// OnDisconnect registers a cleanup callback. Call at startup only.
func (r *Registry) OnDisconnect(name string, fn CleanupFunc) {
	r.mu.Lock()
	r.cleanups = append(r.cleanups, namedCleanup{name: name, fn: fn})
	r.mu.Unlock()
}

// Authenticate verifies credentials and registers a session. A live session
// for the same player is terminated first.
func (r *Registry) Authenticate(ctx context.Context, creds auth.Credentials) (*Session, error) {
	id, err := r.verifier.Verify(ctx, creds)
	if err != nil {
		r.authFailed.Add(1)
		var me *model.Error
		if errors.As(err, &me) && me.Kind == model.KindAuth {
			return nil, err
		}
		return nil, fmt.Errorf("verify: %w", model.AuthError("credential check failed"))
	}

	unlock := r.lifecycle.lock(id.PlayerID)
	defer unlock()

	if old := r.Lookup(id.PlayerID); old != nil {
		r.replaced.Add(1)
		r.logger.Printf("player %s re-authenticated; replacing session %s", id.PlayerID, old.ID)
		old.Close(protocol.ErrSessionReplaced, "replaced by a newer connection")
		r.terminateLocked(ctx, old.ID)
	}

	state, err := r.players.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load player: %w", err)
	}

	s := newSession(uuid.NewString(), state.ID, state.Username, r.cfg.OutboundQueue, r.now().UTC())

	r.mu.Lock()
	r.byID[s.ID] = s
	r.byPlayer[s.PlayerID] = s
	joins := append([]namedJoin(nil), r.joins...)
	r.mu.Unlock()

	r.authOK.Add(1)
	for _, h := range joins {
		h.fn(ctx, s, state)
	}
	return s, nil
}

func (r *Registry) Lookup(playerID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byPlayer[playerID]
}

func (r *Registry) Get(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[sessionID]
}

func (r *Registry) Online(playerID string) bool { return r.Lookup(playerID) != nil }

// Sessions returns live sessions ordered by connect time.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Terminate removes the session and runs cleanup callbacks. Safe to call
// more than once; only the first call does work. A concurrent Authenticate
// for the same player waits until the cleanups have finished.
func (r *Registry) Terminate(ctx context.Context, sessionID string) {
	s := r.Get(sessionID)
	if s == nil {
		return
	}
	unlock := r.lifecycle.lock(s.PlayerID)
	defer unlock()
	r.terminateLocked(ctx, sessionID)
}

// terminateLocked requires the player's lifecycle lock.
func (r *Registry) terminateLocked(ctx context.Context, sessionID string) {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, sessionID)
	if r.byPlayer[s.PlayerID] == s {
		delete(r.byPlayer, s.PlayerID)
	}
	cleanups := append([]namedCleanup(nil), r.cleanups...)
	r.mu.Unlock()

	s.Close("", "disconnected")
	r.terminated.Add(1)
	for _, c := range cleanups {
		r.runCleanup(ctx, c, s.PlayerID)
	}
}

func (r *Registry) runCleanup(ctx context.Context, c namedCleanup, playerID string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Printf("cleanup %s for %s panicked: %v", c.name, playerID, p)
		}
	}()
	c.fn(ctx, playerID)
}

// Kick closes the player's session with code and terminates it.
func (r *Registry) Kick(ctx context.Context, playerID, code, reason string) bool {
	s := r.Lookup(playerID)
	if s == nil {
		return false
	}
	if b, err := protocol.Encode(protocol.TypeError, protocol.ErrorMsg{Code: code, Message: reason}); err == nil {
		s.Send(b)
	}
	s.Close(code, reason)
	r.Terminate(ctx, s.ID)
	return true
}

// DropSlow closes a session whose queue overflowed. Cleanup runs on its own
// goroutine since the caller may hold component locks.
func (r *Registry) DropSlow(s *Session) {
	if s.Closed() {
		return
	}
	r.slowDropped.Add(1)
	s.Close(protocol.ErrSlowConsumer, "outbound queue full")
	r.logger.Printf("dropping slow consumer %s (session %s)", s.PlayerID, s.ID)
	go r.Terminate(context.Background(), s.ID)
}

// Shutdown terminates every session.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, s := range r.Sessions() {
		s.Close("", "server shutting down")
		r.Terminate(ctx, s.ID)
	}
}

// Stats is a point-in-time counter snapshot for metrics.
type Stats struct {
	Sessions     int
	AuthOK       uint64
	AuthFailed   uint64
	Replaced     uint64
	Terminated   uint64
	SlowDropped  uint64
	QueuedFrames int
}

func (r *Registry) Stats() Stats {
	st := Stats{
		AuthOK:      r.authOK.Load(),
		AuthFailed:  r.authFailed.Load(),
		Replaced:    r.replaced.Load(),
		Terminated:  r.terminated.Load(),
		SlowDropped: r.slowDropped.Load(),
	}
	for _, s := range r.Sessions() {
		st.Sessions++
		st.QueuedFrames += s.QueueLen()
	}
	return st
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	rm := k.m[key]
	if rm == nil {
		rm = &refMutex{}
		k.m[key] = rm
	}
	rm.refs++
	k.mu.Unlock()

	rm.Lock()
	return func() {
		rm.Unlock()
		k.mu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
