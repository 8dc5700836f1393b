// Package social keeps the friend graph and the online/offline subscription
// that comes with an accepted friendship.
package social

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"realmsync.io/internal/fanout"
	"realmsync.io/internal/model"
	"realmsync.io/internal/players"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/store"
)

type pairKey [2]string

func keyOf(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Graph is the friends component. Accepted edges are persisted; pending
// requests live only while both sides are online.
type Graph struct {
	store  store.Store
	hub    *fanout.Hub
	dir    *players.Directory
	logger *log.Logger
	now    func() time.Time

	mu sync.Mutex
	// friends holds the accepted edges of every online player.
	friends map[string]map[string]struct{}
	// pending maps an unordered pair to its requester.
	pending map[pairKey]string
}

func New(st store.Store, hub *fanout.Hub, dir *players.Directory, logger *log.Logger) *Graph {
	if logger == nil {
		logger = log.Default()
	}
	return &Graph{
		store:   st,
		hub:     hub,
		dir:     dir,
		logger:  logger,
		now:     time.Now,
		friends: map[string]map[string]struct{}{},
		pending: map[pairKey]string{},
	}
}

// Join loads the player's friends and tells the online ones.
func (g *Graph) Join(ctx context.Context, playerID string) error {
	edges, err := g.store.Friendships(ctx, playerID)
	if err != nil {
		return fmt.Errorf("load friendships: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	set := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		set[e.Other(playerID)] = struct{}{}
	}
	g.friends[playerID] = set

	online := g.onlineFriendsLocked(playerID)
	if len(online) > 0 {
		g.hub.Fanout(fanout.Members(online...), protocol.TypeFriendOnline, protocol.FriendStatus{
			PlayerID: playerID,
			Username: g.dir.Username(playerID),
			Online:   true,
		})
	}
	return nil
}

// Leave expires pending requests involving the player, telling the other
// end, and tells online friends it went offline.
func (g *Graph) Leave(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := make([]pairKey, 0)
	for k := range g.pending {
		if k[0] == playerID || k[1] == playerID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		from := g.pending[k]
		delete(g.pending, k)
		other, target := k[0], k[1]
		if other == playerID {
			other = k[1]
		}
		if target == from {
			target = k[0]
		}
		g.hub.Send(other, protocol.TypeFriendExpired, protocol.FriendRequestMsg{From: from, Target: target})
	}
	online := g.onlineFriendsLocked(playerID)
	delete(g.friends, playerID)
	if len(online) > 0 {
		g.hub.Fanout(fanout.Members(online...), protocol.TypeFriendOffline, protocol.FriendStatus{
			PlayerID: playerID,
			Online:   false,
		})
	}
}

// onlineFriendsLocked relies on friends[] only holding online players.
func (g *Graph) onlineFriendsLocked(playerID string) []string {
	var out []string
	for f := range g.friends[playerID] {
		if _, online := g.friends[f]; online {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Graph) areFriendsLocked(a, b string) bool {
	_, ok := g.friends[a][b]
	return ok
}

// Request opens a pending edge from a to b.
func (g *Graph) Request(ctx context.Context, a, b string) error {
	if a == b {
		return model.InvalidTarget("cannot befriend yourself")
	}
	if !g.dir.Online(b) {
		return model.InvalidTarget("player is offline")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.areFriendsLocked(a, b) {
		return model.Wrap(model.ErrDuplicateRequest, "already friends")
	}
	k := keyOf(a, b)
	if _, ok := g.pending[k]; ok {
		return model.Wrap(model.ErrDuplicateRequest, "a request between you is already pending")
	}
	g.pending[k] = a

	g.hub.Send(b, protocol.TypeFriendIncoming, protocol.FriendStatus{PlayerID: a, Username: g.dir.Username(a), Online: true})
	g.hub.Send(a, protocol.TypeFriendRequested, protocol.FriendStatus{PlayerID: b, Username: g.dir.Username(b), Online: true})
	return nil
}

// Accept turns the pending request from requester to b into a friendship.
func (g *Graph) Accept(ctx context.Context, b, requester string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := keyOf(b, requester)
	if from, ok := g.pending[k]; !ok || from != requester {
		return model.NotFound("no pending request from that player")
	}
	if err := g.store.SaveFriendship(ctx, model.NewFriendship(b, requester, g.now().UTC())); err != nil {
		return fmt.Errorf("save friendship: %w", err)
	}
	delete(g.pending, k)
	g.linkLocked(b, requester)

	_, reqOnline := g.friends[requester]
	g.hub.Send(requester, protocol.TypeFriendAccepted, protocol.FriendStatus{PlayerID: b, Username: g.dir.Username(b), Online: true})
	g.hub.Send(b, protocol.TypeFriendAccepted, protocol.FriendStatus{PlayerID: requester, Username: g.dir.Username(requester), Online: reqOnline})
	return nil
}

func (g *Graph) linkLocked(a, b string) {
	if set, ok := g.friends[a]; ok {
		set[b] = struct{}{}
	}
	if set, ok := g.friends[b]; ok {
		set[a] = struct{}{}
	}
}

// Decline removes the pending request from requester to b.
func (g *Graph) Decline(ctx context.Context, b, requester string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := keyOf(b, requester)
	if from, ok := g.pending[k]; !ok || from != requester {
		return model.NotFound("no pending request from that player")
	}
	delete(g.pending, k)
	g.hub.Send(requester, protocol.TypeFriendDeclined, protocol.PlayerRef{PlayerID: b})
	g.hub.Send(b, protocol.TypeFriendDeclined, protocol.PlayerRef{PlayerID: requester})
	return nil
}

// Remove ends an accepted friendship.
func (g *Graph) Remove(ctx context.Context, a, b string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.areFriendsLocked(a, b) {
		return model.NotFound("not friends")
	}
	if err := g.store.DeleteFriendship(ctx, a, b); err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	delete(g.friends[a], b)
	if set, ok := g.friends[b]; ok {
		delete(set, a)
	}
	g.hub.Send(a, protocol.TypeFriendRemoved, protocol.PlayerRef{PlayerID: b})
	g.hub.Send(b, protocol.TypeFriendRemoved, protocol.PlayerRef{PlayerID: a})
	return nil
}

// List returns friends with live online flags plus pending requests.
func (g *Graph) List(ctx context.Context, playerID string) (protocol.FriendListMsg, error) {
	g.mu.Lock()
	ids := make([]string, 0, len(g.friends[playerID]))
	for f := range g.friends[playerID] {
		ids = append(ids, f)
	}
	out := protocol.FriendListMsg{
		Friends:  []protocol.FriendStatus{},
		Incoming: []protocol.FriendStatus{},
		Outgoing: []protocol.FriendStatus{},
	}
	for k, from := range g.pending {
		if k[0] != playerID && k[1] != playerID {
			continue
		}
		other := k[0]
		if other == playerID {
			other = k[1]
		}
		st := protocol.FriendStatus{PlayerID: other, Username: g.dir.Username(other), Online: true}
		if from == playerID {
			out.Outgoing = append(out.Outgoing, st)
		} else {
			out.Incoming = append(out.Incoming, st)
		}
	}
	g.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		st := protocol.FriendStatus{PlayerID: id, Username: g.dir.Username(id)}
		st.Online = st.Username != ""
		if !st.Online {
			if p, err := g.store.LoadPlayer(ctx, id); err == nil {
				st.Username = p.Username
			}
		}
		out.Friends = append(out.Friends, st)
	}
	byID := func(s []protocol.FriendStatus) {
		sort.Slice(s, func(i, j int) bool { return s[i].PlayerID < s[j].PlayerID })
	}
	byID(out.Incoming)
	byID(out.Outgoing)
	return out, nil
}

// Friends returns the accepted friend ids of an online player.
func (g *Graph) Friends(playerID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.friends[playerID]))
	for f := range g.friends[playerID] {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// PendingCount is the number of open requests, for metrics.
func (g *Graph) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
