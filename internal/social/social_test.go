package social_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmsync.io/internal/model"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/realmtest"
	"realmsync.io/internal/registry"
	"realmsync.io/internal/social"
)

var ctx = context.Background()

func setup(t *testing.T) (*realmtest.Harness, *social.Graph) {
	t.Helper()
	h := realmtest.New(t, 64)
	g := social.New(h.Store, h.Hub, h.Players, nil)
	h.Registry.OnJoin("social", func(ctx context.Context, s *registry.Session, _ model.PlayerState) {
		require.NoError(t, g.Join(ctx, s.PlayerID))
	})
	h.Registry.OnDisconnect("social", func(_ context.Context, id string) { g.Leave(id) })
	h.Registry.OnDisconnect("players", func(ctx context.Context, id string) { _ = h.Players.Unload(ctx, id) })
	return h, g
}

func befriend(t *testing.T, h *realmtest.Harness, g *social.Graph, a, b string) {
	t.Helper()
	require.NoError(t, g.Request(ctx, a, b))
	require.NoError(t, g.Accept(ctx, b, a))
	h.DrainAll()
}

func TestRequestAccept_NotifiesBothSides(t *testing.T) {
	h, g := setup(t)
	h.Connect("a")
	h.Connect("b")
	h.DrainAll()

	require.NoError(t, g.Request(ctx, "a", "b"))
	in := realmtest.Expect[protocol.FriendStatus](h, "b", protocol.TypeFriendIncoming)
	assert.Equal(t, "a", in.PlayerID)
	realmtest.Expect[protocol.FriendStatus](h, "a", protocol.TypeFriendRequested)

	require.NoError(t, g.Accept(ctx, "b", "a"))
	toA := realmtest.Expect[protocol.FriendStatus](h, "a", protocol.TypeFriendAccepted)
	assert.Equal(t, "b", toA.PlayerID)
	assert.True(t, toA.Online)
	toB := realmtest.Expect[protocol.FriendStatus](h, "b", protocol.TypeFriendAccepted)
	assert.Equal(t, "a", toB.PlayerID)
	assert.True(t, toB.Online)

	fs, err := h.Store.Friendships(ctx, "a")
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, "b", fs[0].Other("a"))
}

func TestRequest_Rejections(t *testing.T) {
	h, g := setup(t)
	h.Connect("a")
	h.Connect("b")

	assert.ErrorIs(t, g.Request(ctx, "a", "a"), model.ErrInvalidTarget)
	assert.ErrorIs(t, g.Request(ctx, "a", "ghost"), model.ErrInvalidTarget)

	require.NoError(t, g.Request(ctx, "a", "b"))
	assert.ErrorIs(t, g.Request(ctx, "a", "b"), model.ErrDuplicateRequest)
	assert.ErrorIs(t, g.Request(ctx, "b", "a"), model.ErrDuplicateRequest)

	// Only the target may accept, and only once.
	assert.ErrorIs(t, g.Accept(ctx, "a", "b"), model.ErrNotFound)
	require.NoError(t, g.Accept(ctx, "b", "a"))
	assert.ErrorIs(t, g.Accept(ctx, "b", "a"), model.ErrNotFound)
	assert.ErrorIs(t, g.Request(ctx, "a", "b"), model.ErrDuplicateRequest)
}

func TestDecline_RemovesEdge(t *testing.T) {
	h, g := setup(t)
	h.Connect("a")
	h.Connect("b")
	require.NoError(t, g.Request(ctx, "a", "b"))
	h.DrainAll()

	require.NoError(t, g.Decline(ctx, "b", "a"))
	msg := realmtest.Expect[protocol.PlayerRef](h, "a", protocol.TypeFriendDeclined)
	assert.Equal(t, "b", msg.PlayerID)
	assert.Equal(t, 0, g.PendingCount())

	// A fresh request is allowed again.
	require.NoError(t, g.Request(ctx, "a", "b"))
}

func TestOnlineOfflineSubscriptionAfterAccept(t *testing.T) {
	h, g := setup(t)
	h.Connect("a")
	h.Connect("b")
	befriend(t, h, g, "a", "b")

	h.Disconnect("b")
	off := realmtest.Expect[protocol.FriendStatus](h, "a", protocol.TypeFriendOffline)
	assert.Equal(t, "b", off.PlayerID)
	assert.False(t, off.Online)

	h.Connect("b")
	on := realmtest.Expect[protocol.FriendStatus](h, "a", protocol.TypeFriendOnline)
	assert.Equal(t, "b", on.PlayerID)

	h.Disconnect("a")
	realmtest.Expect[protocol.FriendStatus](h, "b", protocol.TypeFriendOffline)
	h.Connect("a")
	realmtest.Expect[protocol.FriendStatus](h, "b", protocol.TypeFriendOnline)
}

func TestRemove(t *testing.T) {
	h, g := setup(t)
	h.Connect("a")
	h.Connect("b")
	befriend(t, h, g, "a", "b")

	require.NoError(t, g.Remove(ctx, "b", "a"))
	assert.Equal(t, "b", realmtest.Expect[protocol.PlayerRef](h, "a", protocol.TypeFriendRemoved).PlayerID)
	assert.Equal(t, "a", realmtest.Expect[protocol.PlayerRef](h, "b", protocol.TypeFriendRemoved).PlayerID)
	assert.ErrorIs(t, g.Remove(ctx, "a", "b"), model.ErrNotFound)

	h.Disconnect("b")
	h.ExpectNone("a", protocol.TypeFriendOffline)
	fs, err := h.Store.Friendships(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestDisconnectExpiresPendingRequests(t *testing.T) {
	h, g := setup(t)
	h.Connect("a")
	h.Connect("b")
	h.Connect("c")
	require.NoError(t, g.Request(ctx, "a", "b"))
	require.NoError(t, g.Request(ctx, "c", "a"))
	h.DrainAll()

	h.Disconnect("a")
	assert.Equal(t, protocol.FriendRequestMsg{From: "a", Target: "b"},
		realmtest.Expect[protocol.FriendRequestMsg](h, "b", protocol.TypeFriendExpired))
	assert.Equal(t, protocol.FriendRequestMsg{From: "c", Target: "a"},
		realmtest.Expect[protocol.FriendRequestMsg](h, "c", protocol.TypeFriendExpired))
	assert.Equal(t, 0, g.PendingCount())

	h.Connect("a")
	assert.ErrorIs(t, g.Accept(ctx, "b", "a"), model.ErrNotFound)
}

func TestList(t *testing.T) {
	h, g := setup(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		h.Connect(id)
	}
	befriend(t, h, g, "a", "b")
	befriend(t, h, g, "a", "c")
	require.NoError(t, g.Request(ctx, "d", "a"))
	h.Disconnect("c")

	list, err := g.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list.Friends, 2)
	assert.Equal(t, protocol.FriendStatus{PlayerID: "b", Username: "b", Online: true}, list.Friends[0])
	assert.Equal(t, protocol.FriendStatus{PlayerID: "c", Username: "c", Online: false}, list.Friends[1])
	require.Len(t, list.Incoming, 1)
	assert.Equal(t, "d", list.Incoming[0].PlayerID)
	assert.Empty(t, list.Outgoing)
}
