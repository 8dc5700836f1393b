package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"realmsync.io/internal/model"
	"realmsync.io/internal/store"
)

// Storage is an in-memory implementation of store.Store.
type Storage struct {
	mu          sync.RWMutex
	players     map[string]model.PlayerState
	accounts    map[string]model.Account // lowercased username
	friendships map[[2]string]model.Friendship
}

var _ store.Store = (*Storage)(nil)

func New() *Storage {
	return &Storage{
		players:     make(map[string]model.PlayerState),
		accounts:    make(map[string]model.Account),
		friendships: make(map[[2]string]model.Friendship),
	}
}

func (s *Storage) LoadPlayer(ctx context.Context, id string) (model.PlayerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return model.PlayerState{}, model.ErrPlayerNotFound
	}
	return p.Clone(), nil
}

func (s *Storage) SavePlayer(ctx context.Context, p model.PlayerState) error {
	s.mu.Lock()
	s.players[p.ID] = p.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Storage) SaveAccount(ctx context.Context, acc model.Account) error {
	key := strings.ToLower(acc.Username)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.accounts[key]; ok && cur.PlayerID != acc.PlayerID {
		return model.Wrap(model.ErrUsernameTaken, "username already registered")
	}
	s.accounts[key] = acc
	return nil
}

func (s *Storage) AccountByUsername(ctx context.Context, username string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[strings.ToLower(username)]
	if !ok {
		return model.Account{}, model.ErrPlayerNotFound
	}
	return acc, nil
}

func (s *Storage) SaveFriendship(ctx context.Context, f model.Friendship) error {
	f = model.NewFriendship(f.A, f.B, f.CreatedAt)
	s.mu.Lock()
	s.friendships[[2]string{f.A, f.B}] = f
	s.mu.Unlock()
	return nil
}

func (s *Storage) DeleteFriendship(ctx context.Context, a, b string) error {
	f := model.NewFriendship(a, b, time.Time{})
	s.mu.Lock()
	delete(s.friendships, [2]string{f.A, f.B})
	s.mu.Unlock()
	return nil
}

func (s *Storage) Friendships(ctx context.Context, playerID string) ([]model.Friendship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Friendship
	for _, f := range s.friendships {
		if f.A == playerID || f.B == playerID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Other(playerID) < out[j].Other(playerID) })
	return out, nil
}

func (s *Storage) Close() error { return nil }
