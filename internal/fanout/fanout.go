// Package fanout resolves recipient sets and delivers encoded frames to
// session queues without blocking.
package fanout

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"realmsync.io/internal/protocol"
	"realmsync.io/internal/registry"
)

// NearbyResolver returns the players who can currently see playerID.
type NearbyResolver interface {
	NearbySet(playerID string) []string
}

// GroupResolver returns the members of a party or guild.
type GroupResolver interface {
	Members(groupID string) []string
}

// Recipients is a set description resolved at delivery time.
type Recipients struct {
	kind      kind
	id        string
	ids       []string
	withSelf  bool
	exclusion string
}

type kind int

const (
	kindGlobal kind = iota
	kindProximity
	kindParty
	kindGuild
	kindSingle
	kindMembers
)

// Global is every live session.
func Global() Recipients { return Recipients{kind: kindGlobal} }

// Proximity is the nearby set of playerID, plus playerID itself when withSelf.
func Proximity(playerID string, withSelf bool) Recipients {
	return Recipients{kind: kindProximity, id: playerID, withSelf: withSelf}
}

// Party resolves members through the party component. Do not use it while
// holding the party lock; pass Members instead.
func Party(partyID string) Recipients { return Recipients{kind: kindParty, id: partyID} }

// Guild resolves members through the guild component. Same locking rule as Party.
func Guild(guildID string) Recipients { return Recipients{kind: kindGuild, id: guildID} }

func Single(playerID string) Recipients { return Recipients{kind: kindSingle, id: playerID} }

// Members is an explicit list, for components that already hold their roster.
func Members(ids ...string) Recipients {
	return Recipients{kind: kindMembers, ids: append([]string(nil), ids...)}
}

// Except drops playerID from the resolved set.
func (r Recipients) Except(playerID string) Recipients {
	r.exclusion = playerID
	return r
}

// Hub delivers frames. Resolvers are attached after the components that
// depend on the hub are built.
type Hub struct {
	reg    *registry.Registry
	logger *log.Logger

	mu      sync.RWMutex
	nearby  NearbyResolver
	parties GroupResolver
	guilds  GroupResolver

	frames    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func New(reg *registry.Registry, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{reg: reg, logger: logger}
}

func (h *Hub) SetNearby(r NearbyResolver) {
	h.mu.Lock()
	h.nearby = r
	h.mu.Unlock()
}

func (h *Hub) SetParties(r GroupResolver) {
	h.mu.Lock()
	h.parties = r
	h.mu.Unlock()
}

func (h *Hub) SetGuilds(r GroupResolver) {
	h.mu.Lock()
	h.guilds = r
	h.mu.Unlock()
}

// Resolve returns the sorted, de-duplicated player ids for r.
func (h *Hub) Resolve(r Recipients) []string {
	h.mu.RLock()
	nearby, parties, guilds := h.nearby, h.parties, h.guilds
	h.mu.RUnlock()

	var ids []string
	switch r.kind {
	case kindGlobal:
		for _, s := range h.reg.Sessions() {
			ids = append(ids, s.PlayerID)
		}
	case kindProximity:
		if nearby != nil {
			ids = nearby.NearbySet(r.id)
		}
		if r.withSelf {
			ids = append(ids, r.id)
		}
	case kindParty:
		if parties != nil {
			ids = parties.Members(r.id)
		}
	case kindGuild:
		if guilds != nil {
			ids = guilds.Members(r.id)
		}
	case kindSingle:
		ids = []string{r.id}
	case kindMembers:
		ids = append(ids, r.ids...)
	}
	return dedupe(ids, r.exclusion)
}

func dedupe(ids []string, drop string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" || id == drop {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Fanout encodes the message once and enqueues it for every resolved
// recipient. It returns the number of sessions it reached.
func (h *Hub) Fanout(r Recipients, typ string, data any) int {
	frame, err := protocol.Encode(typ, data)
	if err != nil {
		h.logger.Printf("encode %s: %v", typ, err)
		return 0
	}
	return h.Deliver(r, frame)
}

// Send is Fanout to a single player.
func (h *Hub) Send(playerID, typ string, data any) bool {
	return h.Fanout(Single(playerID), typ, data) == 1
}

// SendError replies with an error frame.
func (h *Hub) SendError(playerID, code, msg string) bool {
	return h.Send(playerID, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: msg})
}

// Deliver enqueues an already encoded frame. A recipient whose queue is full
// is dropped as a slow consumer; the others are unaffected.
func (h *Hub) Deliver(r Recipients, frame []byte) int {
	h.frames.Add(1)
	n := 0
	for _, id := range h.Resolve(r) {
		s := h.reg.Lookup(id)
		if s == nil {
			continue
		}
		if s.Send(frame) {
			n++
			continue
		}
		if s.Closed() {
			continue
		}
		h.dropped.Add(1)
		h.reg.DropSlow(s)
	}
	h.delivered.Add(uint64(n))
	return n
}

type Stats struct {
	Frames    uint64
	Delivered uint64
	Dropped   uint64
}

func (h *Hub) Stats() Stats {
	return Stats{Frames: h.frames.Load(), Delivered: h.delivered.Load(), Dropped: h.dropped.Load()}
}
