package ws_test

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmsync.io/internal/game"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/realmtest"
	"realmsync.io/internal/store/memory"
	"realmsync.io/internal/transport/ws"
	"realmsync.io/internal/tuning"
)

func startServer(t *testing.T) (*game.Game, string) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	g := game.New(game.Options{
		Tuning:   tuning.Defaults(),
		Store:    memory.New(),
		Verifier: realmtest.TrustVerifier{},
		Logger:   logger,
	})
	srv := httptest.NewServer(ws.NewServer(g.Registry, g.Router, ws.Config{}, logger).Handler())
	t.Cleanup(srv.Close)
	return g, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type conn struct {
	t *testing.T
	c *websocket.Conn
}

func dial(t *testing.T, url string) *conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &conn{t: t, c: c}
}

func (c *conn) send(typ string, data any) {
	c.t.Helper()
	b, err := protocol.Encode(typ, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.c.WriteMessage(websocket.TextMessage, b))
}

func (c *conn) read() (protocol.Envelope, error) {
	_ = c.c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := c.c.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.Decode(b)
}

// until reads frames until one of type typ arrives.
func (c *conn) until(typ string) protocol.Envelope {
	c.t.Helper()
	for {
		env, err := c.read()
		require.NoError(c.t, err, "waiting for %s", typ)
		if env.Type == typ {
			return env
		}
	}
}

func login(t *testing.T, url, id string) *conn {
	t.Helper()
	c := dial(t, url)
	c.send(protocol.TypeAuth, protocol.AuthReq{Token: id})
	env, err := c.read()
	require.NoError(t, err)
	require.Equal(t, protocol.TypeAuthSuccess, env.Type)
	return c
}

func TestAuthThenChat(t *testing.T) {
	_, url := startServer(t)
	a := login(t, url, "alice")
	b := login(t, url, "bob")

	a.send(protocol.TypeChat, protocol.ChatReq{Channel: protocol.ChannelGlobal, Text: "hello"})
	env := b.until(protocol.TypeChatMessage)
	var msg protocol.ChatMsg
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "alice", msg.From)
	assert.Equal(t, "hello", msg.Text)
}

func TestRejectsBadHandshake(t *testing.T) {
	_, url := startServer(t)

	c := dial(t, url)
	c.send(protocol.TypePing, nil)
	env, err := c.read()
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeAuthFailed, env.Type)
	_, err = c.read()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)

	c = dial(t, url)
	c.send(protocol.TypeAuth, protocol.AuthReq{})
	env, err = c.read()
	require.NoError(t, err)
	var failed protocol.AuthFailedMsg
	require.NoError(t, json.Unmarshal(env.Data, &failed))
	assert.Equal(t, protocol.ErrAuth, failed.Code)
}

func TestErrorsKeepConnectionOpen(t *testing.T) {
	_, url := startServer(t)
	a := login(t, url, "alice")

	require.NoError(t, a.c.WriteMessage(websocket.TextMessage, []byte("garbage")))
	env := a.until(protocol.TypeError)
	var e protocol.ErrorMsg
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, protocol.ErrProtoBadRequest, e.Code)

	a.send(protocol.TypePing, protocol.PingMsg{ClientTime: 7})
	a.until(protocol.TypePong)
}

func TestDisconnectRunsCleanup(t *testing.T) {
	g, url := startServer(t)
	a := login(t, url, "alice")
	b := login(t, url, "bob")
	a.until(protocol.TypePlayerJoined)

	require.NoError(t, b.c.Close())
	env := a.until(protocol.TypePlayerLeft)
	var left protocol.PlayerLeftMsg
	require.NoError(t, json.Unmarshal(env.Data, &left))
	assert.Equal(t, "bob", left.ID)
	assert.Eventually(t, func() bool { return !g.Players.Online("bob") }, time.Second, 5*time.Millisecond)
}

func TestReplacedSessionGetsCloseCode(t *testing.T) {
	g, url := startServer(t)
	first := login(t, url, "alice")
	login(t, url, "alice")

	var ce *websocket.CloseError
	for {
		_, err := first.read()
		if err != nil {
			require.ErrorAs(t, err, &ce)
			break
		}
	}
	assert.Equal(t, ws.CloseReplaced, ce.Code)
	assert.Equal(t, 1, g.Registry.Count())
}

func TestKickClosesConnection(t *testing.T) {
	g, url := startServer(t)
	a := login(t, url, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.True(t, g.Registry.Kick(ctx, "alice", protocol.ErrNoPermission, "kicked by admin"))
	env := a.until(protocol.TypeError)
	var e protocol.ErrorMsg
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, "kicked by admin", e.Message)
	_, err := a.read()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ws.CloseKicked, ce.Code)
}
