package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"realmsync.io/internal/model"
	"realmsync.io/internal/store"
)

// Storage is a SQLite-backed implementation of store.Store.
type Storage struct {
	db *sql.DB
}

var _ store.Store = (*Storage)(nil)

func Open(path string) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Storage{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			state_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS accounts (
			username_key TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			player_id TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS friendships (
			a TEXT NOT NULL,
			b TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (a, b)
		);`,
		`CREATE INDEX IF NOT EXISTS friendships_b ON friendships(b);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) LoadPlayer(ctx context.Context, id string) (model.PlayerState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state_json FROM players WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlayerState{}, model.ErrPlayerNotFound
	}
	if err != nil {
		return model.PlayerState{}, err
	}
	var p model.PlayerState
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return model.PlayerState{}, fmt.Errorf("decode player %s: %w", id, err)
	}
	if p.Items == nil {
		p.Items = []string{}
	}
	return p, nil
}

func (s *Storage) SavePlayer(ctx context.Context, p model.PlayerState) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO players(id, username, state_json, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET username=excluded.username, state_json=excluded.state_json, updated_at=excluded.updated_at`,
		p.ID, p.Username, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Storage) SaveAccount(ctx context.Context, acc model.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	key := strings.ToLower(acc.Username)
	var owner string
	err = tx.QueryRowContext(ctx, `SELECT player_id FROM accounts WHERE username_key = ?`, key).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	case owner != acc.PlayerID:
		return model.Wrap(model.ErrUsernameTaken, "username already registered")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts(username_key, username, player_id, password_hash, created_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(username_key) DO UPDATE SET password_hash=excluded.password_hash`,
		key, acc.Username, acc.PlayerID, acc.PasswordHash, acc.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) AccountByUsername(ctx context.Context, username string) (model.Account, error) {
	var acc model.Account
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT username, player_id, password_hash, created_at FROM accounts WHERE username_key = ?`,
		strings.ToLower(username)).Scan(&acc.Username, &acc.PlayerID, &acc.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, model.ErrPlayerNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	acc.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return acc, nil
}

func (s *Storage) SaveFriendship(ctx context.Context, f model.Friendship) error {
	f = model.NewFriendship(f.A, f.B, f.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO friendships(a, b, created_at) VALUES(?,?,?)`,
		f.A, f.B, f.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Storage) DeleteFriendship(ctx context.Context, a, b string) error {
	f := model.NewFriendship(a, b, time.Time{})
	_, err := s.db.ExecContext(ctx, `DELETE FROM friendships WHERE a = ? AND b = ?`, f.A, f.B)
	return err
}

func (s *Storage) Friendships(ctx context.Context, playerID string) ([]model.Friendship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a, b, created_at FROM friendships WHERE a = ? OR b = ?`, playerID, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Friendship
	for rows.Next() {
		var f model.Friendship
		var created string
		if err := rows.Scan(&f.A, &f.B, &created); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Other(playerID) < out[j].Other(playerID) })
	return out, nil
}
