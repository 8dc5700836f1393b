package model

import (
	"math"
	"slices"
	"time"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func Vec3From(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Finite reports whether every component is a real number.
func (v Vec3) Finite() bool {
	for _, c := range v.Array() {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func Distance(a, b Vec3) float64 { return a.Sub(b).Len() }

type Rotation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

func RotationFrom(a [2]float64) Rotation { return Rotation{Yaw: a[0], Pitch: a[1]} }

func (r Rotation) Array() [2]float64 { return [2]float64{r.Yaw, r.Pitch} }

const (
	DefaultHealth = 100
	DefaultLevel  = 1
)

// PlayerState is the identity and body of a player that survives between sessions.
type PlayerState struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Position Vec3     `json:"position"`
	Rotation Rotation `json:"rotation"`
	Velocity Vec3     `json:"velocity"`
	Health   int      `json:"health"`
	Level    int      `json:"level"`
	Gold     int64    `json:"gold"`
	// Items is a sorted set of unique item instance ids.
	Items     []string  `json:"items"`
	Online    bool      `json:"online"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewPlayerState(id, username string) PlayerState {
	return PlayerState{
		ID:       id,
		Username: username,
		Health:   DefaultHealth,
		Level:    DefaultLevel,
		Items:    []string{},
	}
}

func (p PlayerState) Clone() PlayerState {
	c := p
	c.Items = append([]string{}, p.Items...)
	return c
}

func (p PlayerState) HasItem(id string) bool {
	_, ok := slices.BinarySearch(p.Items, id)
	return ok
}

// HasItems reports whether every id in want is held.
func (p PlayerState) HasItems(want []string) bool {
	for _, id := range want {
		if !p.HasItem(id) {
			return false
		}
	}
	return true
}

func (p *PlayerState) AddItems(ids []string) {
	p.Items = NormalizeItems(append(p.Items, ids...))
}

func (p *PlayerState) RemoveItems(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := p.Items[:0:0]
	for _, id := range p.Items {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	p.Items = kept
}

// NormalizeItems returns a sorted, de-duplicated copy without empty ids.
func NormalizeItems(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Identity is what the external identity provider vouches for.
type Identity struct {
	PlayerID string
	Username string
}

// Account is a locally registered username/password pair.
type Account struct {
	PlayerID     string    `json:"player_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Friendship is an accepted, undirected friend edge. A < B always.
type Friendship struct {
	A         string    `json:"a"`
	B         string    `json:"b"`
	CreatedAt time.Time `json:"created_at"`
}

func NewFriendship(x, y string, at time.Time) Friendship {
	if y < x {
		x, y = y, x
	}
	return Friendship{A: x, B: y, CreatedAt: at}
}

func (f Friendship) Other(id string) string {
	if f.A == id {
		return f.B
	}
	return f.A
}
