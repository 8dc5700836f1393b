// Package store persists player state, local accounts and accepted friendships.
package store

import (
	"context"

	"realmsync.io/internal/model"
)

// Store is implemented by the memory, redis and sqlite backends.
type Store interface {
	// LoadPlayer returns model.ErrPlayerNotFound for unknown ids.
	LoadPlayer(ctx context.Context, id string) (model.PlayerState, error)
	SavePlayer(ctx context.Context, p model.PlayerState) error

	// SaveAccount returns model.ErrUsernameTaken if another player owns the username.
	SaveAccount(ctx context.Context, acc model.Account) error
	// AccountByUsername returns model.ErrPlayerNotFound for unknown usernames.
	AccountByUsername(ctx context.Context, username string) (model.Account, error)

	SaveFriendship(ctx context.Context, f model.Friendship) error
	DeleteFriendship(ctx context.Context, a, b string) error
	Friendships(ctx context.Context, playerID string) ([]model.Friendship, error)

	Close() error
}

// Backend names accepted by the server configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)
