// Package router dispatches decoded client messages to their handlers.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"realmsync.io/internal/model"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/registry"
)

// Handler processes one message for the session's player. A returned error
// is reported to that player only.
type Handler func(ctx context.Context, s *registry.Session, env protocol.Envelope) error

// Replier sends an error frame to one player.
type Replier interface {
	SendError(playerID, code, msg string) bool
}

type Router struct {
	reply  Replier
	logger *log.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	counts   map[string]uint64
	errs     map[string]uint64
}

func New(reply Replier, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		reply:    reply,
		logger:   logger,
		handlers: map[string]Handler{},
		counts:   map[string]uint64{},
		errs:     map[string]uint64{},
	}
}

// Register binds typ to h. It panics on duplicates; call at startup only.
func (r *Router) Register(typ string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[typ]; dup {
		panic(fmt.Sprintf("router: duplicate handler for %q", typ))
	}
	r.handlers[typ] = h
}

// Handle registers a handler whose payload is decoded into T first.
func Handle[T any](r *Router, typ string, fn func(ctx context.Context, s *registry.Session, req T) error) {
	r.Register(typ, func(ctx context.Context, s *registry.Session, env protocol.Envelope) error {
		var req T
		if err := protocol.DecodeData(env, &req); err != nil {
			return model.ValidationError("bad " + typ + " payload")
		}
		return fn(ctx, s, req)
	})
}

// Dispatch routes one raw frame. It never closes the session.
func (r *Router) Dispatch(ctx context.Context, s *registry.Session, raw []byte) {
	if s.Closed() {
		return
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		r.logger.Printf("%s: malformed frame: %v", s.PlayerID, err)
		r.reply.SendError(s.PlayerID, protocol.ErrProtoBadRequest, "malformed message")
		return
	}
	r.DispatchEnvelope(ctx, s, env)
}

func (r *Router) DispatchEnvelope(ctx context.Context, s *registry.Session, env protocol.Envelope) {
	r.mu.Lock()
	h, ok := r.handlers[env.Type]
	if ok {
		r.counts[env.Type]++
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Printf("%s: unknown message type %q", s.PlayerID, env.Type)
		r.reply.SendError(s.PlayerID, protocol.ErrUnknownType, "unknown message type: "+env.Type)
		return
	}

	if err := h(ctx, s, env); err != nil {
		r.mu.Lock()
		r.errs[env.Type]++
		r.mu.Unlock()

		var me *model.Error
		if !errors.As(err, &me) {
			r.logger.Printf("%s: %s failed: %v", s.PlayerID, env.Type, err)
		}
		e := model.AsError(err)
		r.reply.SendError(s.PlayerID, e.Code, e.Message)
	}
}

// TypeStats is a per-message-type counter pair.
type TypeStats struct {
	Type     string
	Handled  uint64
	Rejected uint64
}

func (r *Router) Stats() []TypeStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeStats, 0, len(r.counts))
	for typ, n := range r.counts {
		out = append(out, TypeStats{Type: typ, Handled: n, Rejected: r.errs[typ]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Types lists registered message types.
func (r *Router) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
