package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"realmsync.io/internal/model"
	"realmsync.io/internal/store"
)

// Storage is a Redis-backed implementation of store.Store.
type Storage struct {
	client *redis.Client
	keys   keys
}

var _ store.Store = (*Storage)(nil)

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client (for testing).
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultConfig().KeyPrefix
	}
	return &Storage{client: client, keys: keys{prefix: prefix}}
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) LoadPlayer(ctx context.Context, id string) (model.PlayerState, error) {
	data, err := s.client.Get(ctx, s.keys.player(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.PlayerState{}, model.ErrPlayerNotFound
		}
		return model.PlayerState{}, err
	}
	var p model.PlayerState
	if err := json.Unmarshal(data, &p); err != nil {
		return model.PlayerState{}, fmt.Errorf("decode player %s: %w", id, err)
	}
	if p.Items == nil {
		p.Items = []string{}
	}
	return p, nil
}

func (s *Storage) SavePlayer(ctx context.Context, p model.PlayerState) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keys.player(p.ID), data, 0).Err()
}

func (s *Storage) SaveAccount(ctx context.Context, acc model.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	key := s.keys.account(acc.Username)
	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	cur, err := s.AccountByUsername(ctx, acc.Username)
	if err != nil {
		return err
	}
	if cur.PlayerID != acc.PlayerID {
		return model.Wrap(model.ErrUsernameTaken, "username already registered")
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

func (s *Storage) AccountByUsername(ctx context.Context, username string) (model.Account, error) {
	data, err := s.client.Get(ctx, s.keys.account(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Account{}, model.ErrPlayerNotFound
		}
		return model.Account{}, err
	}
	var acc model.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return model.Account{}, fmt.Errorf("decode account %s: %w", username, err)
	}
	return acc, nil
}

func (s *Storage) SaveFriendship(ctx context.Context, f model.Friendship) error {
	f = model.NewFriendship(f.A, f.B, f.CreatedAt)
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	// Edge and both index entries land together.
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keys.friendship(f.A, f.B), data, 0)
		pipe.SAdd(ctx, s.keys.friends(f.A), f.B)
		pipe.SAdd(ctx, s.keys.friends(f.B), f.A)
		return nil
	})
	return err
}

func (s *Storage) DeleteFriendship(ctx context.Context, a, b string) error {
	f := model.NewFriendship(a, b, time.Time{})
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keys.friendship(f.A, f.B))
		pipe.SRem(ctx, s.keys.friends(f.A), f.B)
		pipe.SRem(ctx, s.keys.friends(f.B), f.A)
		return nil
	})
	return err
}

func (s *Storage) Friendships(ctx context.Context, playerID string) ([]model.Friendship, error) {
	others, err := s.client.SMembers(ctx, s.keys.friends(playerID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(others)
	out := make([]model.Friendship, 0, len(others))
	for _, other := range others {
		edge := model.NewFriendship(playerID, other, time.Time{})
		data, err := s.client.Get(ctx, s.keys.friendship(edge.A, edge.B)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				out = append(out, edge)
				continue
			}
			return nil, err
		}
		var f model.Friendship
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode friendship: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
