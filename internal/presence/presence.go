// Package presence tracks where online players are and who can see whom.
package presence

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"realmsync.io/internal/fanout"
	"realmsync.io/internal/model"
	"realmsync.io/internal/protocol"
)

type Config struct {
	Radius float64
	// MaxStep is the largest accepted move between two updates (0 = trust the client).
	MaxStep float64
	// WorldBound rejects |x| or |z| beyond it (0 = unbounded).
	WorldBound float64
}

type entry struct {
	id       string
	username string
	health   int
	level    int
	pos      model.Vec3
	rot      model.Rotation
	vel      model.Vec3
	moving   bool
	cell     cellKey
	visible  map[string]struct{}
}

func (e *entry) view() protocol.PlayerView {
	return protocol.PlayerView{
		ID:       e.id,
		Username: e.username,
		Pos:      e.pos.Array(),
		Rot:      e.rot.Array(),
		Vel:      e.vel.Array(),
		Health:   e.health,
		Level:    e.level,
	}
}

// Index is the spatial presence component. Visibility is symmetric: a sees b
// iff b sees a.
type Index struct {
	cfg Config
	hub *fanout.Hub

	mu      sync.Mutex
	grid    *grid
	entries map[string]*entry
}

func New(cfg Config, hub *fanout.Hub) *Index {
	if cfg.Radius <= 0 {
		cfg.Radius = 50
	}
	return &Index{
		cfg:     cfg,
		hub:     hub,
		grid:    newGrid(cfg.Radius),
		entries: map[string]*entry{},
	}
}

// Insert places a player in the world and announces it to its neighbourhood.
// Inserting an already present player refreshes it.
func (x *Index) Insert(p model.PlayerState) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.entries[p.ID]; ok {
		x.removeLocked(p.ID)
	}
	e := &entry{
		id:       p.ID,
		username: p.Username,
		health:   p.Health,
		level:    p.Level,
		pos:      p.Position,
		rot:      p.Rotation,
		vel:      p.Velocity,
		cell:     x.grid.key(p.Position.X, p.Position.Z),
		visible:  map[string]struct{}{},
	}
	x.entries[e.id] = e
	x.grid.add(e.cell, e.id)

	for _, oid := range x.scanLocked(e) {
		o := x.entries[oid]
		x.linkLocked(e, o)
	}
}

// Remove takes a player out of the index and tells everyone who could see it.
func (x *Index) Remove(playerID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(playerID)
}

func (x *Index) removeLocked(playerID string) {
	e, ok := x.entries[playerID]
	if !ok {
		return
	}
	watchers := sortedKeys(e.visible)
	for _, oid := range watchers {
		if o := x.entries[oid]; o != nil {
			delete(o.visible, e.id)
		}
	}
	delete(x.entries, playerID)
	x.grid.remove(e.cell, e.id)
	if len(watchers) > 0 {
		x.hub.Fanout(fanout.Members(watchers...), protocol.TypePlayerLeft, protocol.PlayerLeftMsg{ID: playerID})
	}
}

// UpdatePosition applies a movement report. Rejected moves leave the index unchanged.
func (x *Index) UpdatePosition(playerID string, pos model.Vec3, rot model.Rotation, vel model.Vec3, moving bool) error {
	if !pos.Finite() || !vel.Finite() || math.IsNaN(rot.Yaw) || math.IsNaN(rot.Pitch) {
		return model.Wrap(model.ErrMovement, "non-finite coordinates")
	}
	if b := x.cfg.WorldBound; b > 0 && (math.Abs(pos.X) > b || math.Abs(pos.Z) > b) {
		return model.Wrap(model.ErrMovement, fmt.Sprintf("position outside world bound %.0f", b))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[playerID]
	if !ok {
		return model.Wrap(model.ErrInvalidTarget, "player not present")
	}
	if s := x.cfg.MaxStep; s > 0 && model.Distance(e.pos, pos) > s {
		return model.Wrap(model.ErrMovement, fmt.Sprintf("moved %.1f, max %.1f", model.Distance(e.pos, pos), s))
	}

	e.pos, e.rot, e.vel, e.moving = pos, rot, vel, moving
	if k := x.grid.key(pos.X, pos.Z); k != e.cell {
		x.grid.remove(e.cell, e.id)
		e.cell = k
		x.grid.add(k, e.id)
	}

	now := map[string]struct{}{}
	for _, oid := range x.scanLocked(e) {
		now[oid] = struct{}{}
	}
	for _, oid := range sortedKeys(e.visible) {
		if _, still := now[oid]; still {
			continue
		}
		o := x.entries[oid]
		delete(e.visible, oid)
		if o != nil {
			delete(o.visible, e.id)
		}
		x.hub.Send(oid, protocol.TypePlayerLeft, protocol.PlayerLeftMsg{ID: e.id})
		x.hub.Send(e.id, protocol.TypePlayerLeft, protocol.PlayerLeftMsg{ID: oid})
	}
	var stayed []string
	for _, oid := range sortedKeys(now) {
		if _, seen := e.visible[oid]; seen {
			stayed = append(stayed, oid)
			continue
		}
		x.linkLocked(e, x.entries[oid])
	}
	if len(stayed) > 0 {
		x.hub.Fanout(fanout.Members(stayed...), protocol.TypePlayerMoved, protocol.PlayerMovedMsg{
			ID:     e.id,
			Pos:    pos.Array(),
			Rot:    rot.Array(),
			Vel:    vel.Array(),
			Moving: moving,
		})
	}
	return nil
}

// UpdateVitals refreshes the health and level shown to others.
func (x *Index) UpdateVitals(playerID string, health, level int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.entries[playerID]; ok {
		e.health, e.level = health, level
	}
}

// linkLocked makes a and b mutually visible and sends both join frames.
func (x *Index) linkLocked(a, b *entry) {
	if b == nil || a.id == b.id {
		return
	}
	a.visible[b.id] = struct{}{}
	b.visible[a.id] = struct{}{}
	x.hub.Send(b.id, protocol.TypePlayerJoined, a.view())
	x.hub.Send(a.id, protocol.TypePlayerJoined, b.view())
}

// scanLocked returns ids within the radius of e, excluding e.
func (x *Index) scanLocked(e *entry) []string {
	r2 := x.cfg.Radius * x.cfg.Radius
	var out []string
	x.grid.around(e.cell, func(id string) {
		if id == e.id {
			return
		}
		o := x.entries[id]
		d := e.pos.Sub(o.pos)
		if d.X*d.X+d.Y*d.Y+d.Z*d.Z <= r2 {
			out = append(out, id)
		}
	})
	sort.Strings(out)
	return out
}

// NearbySet returns who currently sees playerID.
func (x *Index) NearbySet(playerID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[playerID]
	if !ok {
		return nil
	}
	return sortedKeys(e.visible)
}

// Position returns the last accepted position.
func (x *Index) Position(playerID string) (model.Vec3, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[playerID]
	if !ok {
		return model.Vec3{}, false
	}
	return e.pos, true
}

// Within reports whether a and b are both present and at most d apart.
func (x *Index) Within(a, b string, d float64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	ea, okA := x.entries[a]
	eb, okB := x.entries[b]
	return okA && okB && model.Distance(ea.pos, eb.pos) <= d
}

// Views returns everyone currently visible to playerID.
func (x *Index) Views(playerID string) []protocol.PlayerView {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[playerID]
	if !ok {
		return nil
	}
	out := make([]protocol.PlayerView, 0, len(e.visible))
	for _, oid := range sortedKeys(e.visible) {
		out = append(out, x.entries[oid].view())
	}
	return out
}

func (x *Index) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
