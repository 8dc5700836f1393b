// Package backend opens the store.Store named by configuration.
package backend

import (
	"fmt"
	"path/filepath"
	"strings"

	"realmsync.io/internal/store"
	"realmsync.io/internal/store/memory"
	"realmsync.io/internal/store/redis"
	"realmsync.io/internal/store/sqlite"
)

type Config struct {
	Backend string
	// RedisURL overrides the redis default when set.
	RedisURL       string
	RedisKeyPrefix string
	// SQLitePath defaults to <DataDir>/realm.db.
	SQLitePath string
	DataDir    string
}

// Open returns a ready store. Callers own Close.
func Open(cfg Config) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", store.BackendMemory:
		return memory.New(), nil
	case store.BackendRedis:
		rc := redis.DefaultConfig()
		if u := strings.TrimSpace(cfg.RedisURL); u != "" {
			rc.URL = u
		}
		if p := strings.TrimSpace(cfg.RedisKeyPrefix); p != "" {
			rc.KeyPrefix = p
		}
		return redis.New(rc)
	case store.BackendSQLite:
		path := strings.TrimSpace(cfg.SQLitePath)
		if path == "" {
			dir := cfg.DataDir
			if dir == "" {
				dir = "./data"
			}
			path = filepath.Join(dir, "realm.db")
		}
		return sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q (want memory, redis or sqlite)", cfg.Backend)
	}
}
