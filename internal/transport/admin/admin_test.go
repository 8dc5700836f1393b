package admin_test

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmsync.io/internal/auth"
	"realmsync.io/internal/game"
	"realmsync.io/internal/realmtest"
	"realmsync.io/internal/store/memory"
	"realmsync.io/internal/transport/admin"
	"realmsync.io/internal/tuning"
)

func newGame(t *testing.T, ids ...string) *game.Game {
	t.Helper()
	g := game.New(game.Options{
		Tuning:   tuning.Defaults(),
		Store:    memory.New(),
		Verifier: realmtest.TrustVerifier{},
		Logger:   log.New(io.Discard, "", 0),
	})
	for _, id := range ids {
		_, err := g.Registry.Authenticate(context.Background(), auth.Credentials{Token: id})
		require.NoError(t, err)
	}
	return g
}

func do(t *testing.T, h http.Handler, method, path, body, remote string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const local = "127.0.0.1:50000"

func TestHealthAndMetrics(t *testing.T) {
	g := newGame(t, "a")
	h := admin.NewRouter(g, admin.Config{}, log.New(io.Discard, "", 0))

	rec := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "realmsync_sessions 1")

	rec = do(t, h, http.MethodGet, "/admin/v1/state", "", local)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminIsLoopbackOnly(t *testing.T) {
	g := newGame(t)
	h := admin.NewRouter(g, admin.Config{EnableAdmin: true}, log.New(io.Discard, "", 0))

	rec := do(t, h, http.MethodGet, "/admin/v1/state", "", "203.0.113.9:4000")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodGet, "/admin/v1/state", "", "[::1]:4000")
	assert.Equal(t, http.StatusOK, rec.Code)

	open := admin.NewRouter(g, admin.Config{EnableAdmin: true, AllowRemote: true}, log.New(io.Discard, "", 0))
	rec = do(t, open, http.MethodGet, "/admin/v1/state", "", "203.0.113.9:4000")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStateAndSessions(t *testing.T) {
	g := newGame(t, "a", "b")
	h := admin.NewRouter(g, admin.Config{EnableAdmin: true}, log.New(io.Discard, "", 0))

	rec := do(t, h, http.MethodGet, "/admin/v1/state", "", local)
	require.Equal(t, http.StatusOK, rec.Code)
	var st game.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Sessions)

	rec = do(t, h, http.MethodGet, "/admin/v1/sessions", "", local)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []game.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 2)
}

func TestKick(t *testing.T) {
	g := newGame(t, "a")
	h := admin.NewRouter(g, admin.Config{EnableAdmin: true}, log.New(io.Discard, "", 0))

	rec := do(t, h, http.MethodGet, "/admin/v1/sessions/a/kick", "", local)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodPost, "/admin/v1/sessions/a/kick", `{"reason":"spam"}`, local)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, g.Registry.Online("a"))

	rec = do(t, h, http.MethodPost, "/admin/v1/sessions/a/kick", "", local)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/admin/v1/sessions/a/kick", "{", local)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchmaking(t *testing.T) {
	g := newGame(t, "a")
	_, err := g.Matchmaking.Join("a", "5v5")
	require.NoError(t, err)
	h := admin.NewRouter(g, admin.Config{EnableAdmin: true}, log.New(io.Discard, "", 0))

	rec := do(t, h, http.MethodGet, "/admin/v1/matchmaking", "", local)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Queues []struct {
			QueueType string `json:"queue_type"`
			Required  int    `json:"required"`
			Depth     int    `json:"depth"`
		} `json:"queues"`
		Tickets int `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Tickets)
	require.Len(t, body.Queues, 4)
	for _, q := range body.Queues {
		if q.QueueType == "5v5" {
			assert.Equal(t, 1, q.Depth)
			assert.Equal(t, 10, q.Required)
		}
	}
}
