package party_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmsync.io/internal/model"
	"realmsync.io/internal/party"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/realmtest"
)

func setup(t *testing.T, maxSize int, ids ...string) (*realmtest.Harness, *party.Service) {
	t.Helper()
	h := realmtest.New(t, 256)
	svc := party.New(maxSize, h.Hub, h.Players, nil)
	h.Hub.SetParties(svc)
	h.Registry.OnDisconnect("party", func(_ context.Context, id string) { svc.Disconnect(id) })
	h.Registry.OnDisconnect("players", func(ctx context.Context, id string) { _ = h.Players.Unload(ctx, id) })
	for _, id := range ids {
		h.Connect(id)
	}
	return h, svc
}

func join(t *testing.T, svc *party.Service, inviter, target string) {
	t.Helper()
	inv, err := svc.Invite(inviter, target)
	require.NoError(t, err)
	_, err = svc.Accept(target, inv.ID)
	require.NoError(t, err)
}

func TestCreateInviteAccept(t *testing.T) {
	h, svc := setup(t, 5, "a", "b")

	snap, err := svc.Create("a")
	require.NoError(t, err)
	assert.Equal(t, "a", snap.LeaderID)
	realmtest.Expect[protocol.PartySnapshot](h, "a", protocol.TypePartyCreated)

	inv, err := svc.Invite("a", "b")
	require.NoError(t, err)
	got := realmtest.Expect[protocol.PartyInviteMsg](h, "b", protocol.TypePartyInvited)
	assert.Equal(t, inv.ID, got.InviteID)
	assert.Equal(t, snap.ID, got.PartyID)
	assert.Equal(t, "a", got.From)

	_, err = svc.Accept("b", inv.ID)
	require.NoError(t, err)
	up := realmtest.Expect[protocol.PartySnapshot](h, "a", protocol.TypePartyUpdated)
	require.Len(t, up.Members, 2)
	assert.Equal(t, "a", up.Members[0].ID)
	assert.Equal(t, "b", up.Members[1].ID)
	assert.Equal(t, model.DefaultHealth, up.Members[1].Health)
	realmtest.Expect[protocol.PartySnapshot](h, "b", protocol.TypePartyJoined)

	pid, ok := svc.PartyOf("b")
	assert.True(t, ok)
	assert.Equal(t, snap.ID, pid)
}

func TestCreate_AlreadyInParty(t *testing.T) {
	_, svc := setup(t, 5, "a")
	_, err := svc.Create("a")
	require.NoError(t, err)
	_, err = svc.Create("a")
	assert.ErrorIs(t, err, model.ErrAlreadyInParty)
}

func TestInvite_Rejections(t *testing.T) {
	_, svc := setup(t, 2, "a", "b", "c", "d")
	_, err := svc.Invite("a", "b")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, _ = svc.Create("a")
	_, err = svc.Invite("a", "a")
	assert.ErrorIs(t, err, model.ErrInvalidTarget)
	_, err = svc.Invite("a", "ghost")
	assert.ErrorIs(t, err, model.ErrInvalidTarget)

	_, err = svc.Invite("a", "b")
	require.NoError(t, err)
	_, err = svc.Invite("a", "b")
	assert.ErrorIs(t, err, model.ErrDuplicateInvite)

	_, _ = svc.Create("c")
	_, err = svc.Invite("a", "c")
	assert.ErrorIs(t, err, model.ErrAlreadyInParty)

	join(t, svc, "c", "d")
	_, err = svc.Invite("c", "b")
	assert.ErrorIs(t, err, model.ErrPartyFull)
}

func TestAccept_PartyFull(t *testing.T) {
	_, svc := setup(t, 2, "a", "b", "c")
	_, _ = svc.Create("a")
	invB, err := svc.Invite("a", "b")
	require.NoError(t, err)
	invC, err := svc.Invite("a", "c")
	require.NoError(t, err)

	_, err = svc.Accept("b", invB.ID)
	require.NoError(t, err)
	_, err = svc.Accept("c", invC.ID)
	assert.ErrorIs(t, err, model.ErrPartyFull)
	_, ok := svc.PartyOf("c")
	assert.False(t, ok)
}

func TestAccept_ClearsOtherInvites(t *testing.T) {
	h, svc := setup(t, 5, "a", "b", "c")
	_, _ = svc.Create("a")
	_, _ = svc.Create("c")
	invA, _ := svc.Invite("a", "b")
	invC, _ := svc.Invite("c", "b")
	h.DrainAll()

	_, err := svc.Accept("b", invA.ID)
	require.NoError(t, err)
	exp := realmtest.Expect[protocol.PartyInviteMsg](h, "c", protocol.TypePartyInviteExpired)
	assert.Equal(t, invC.ID, exp.InviteID)
	_, err = svc.Accept("b", invC.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDecline_NotifiesInviter(t *testing.T) {
	h, svc := setup(t, 5, "a", "b")
	_, _ = svc.Create("a")
	inv, _ := svc.Invite("a", "b")
	h.DrainAll()

	assert.ErrorIs(t, svc.Decline("a", inv.ID), model.ErrNotFound)
	require.NoError(t, svc.Decline("b", inv.ID))
	msg := realmtest.Expect[protocol.PartyInviteMsg](h, "a", protocol.TypePartyInviteDecline)
	assert.Equal(t, "b", msg.Target)
}

func TestLeave_LeaderAloneDestroysParty(t *testing.T) {
	h, svc := setup(t, 5, "a")
	snap, _ := svc.Create("a")
	h.DrainAll()

	require.NoError(t, svc.Leave("a"))
	envs := h.Drain("a")
	assert.Equal(t, []string{protocol.TypePartyLeft, protocol.TypePartyDisbanded}, realmtest.Types(envs))
	_, ok := svc.Snapshot(snap.ID)
	assert.False(t, ok)
	_, ok = svc.PartyOf("a")
	assert.False(t, ok)
	assert.ErrorIs(t, svc.Leave("a"), model.ErrNotFound)
}

func TestLeave_LeaderTransfersToOldestMember(t *testing.T) {
	h, svc := setup(t, 5, "a", "b", "c")
	snap, _ := svc.Create("a")
	join(t, svc, "a", "b")
	join(t, svc, "b", "c")
	h.DrainAll()

	require.NoError(t, svc.Leave("a"))
	up := realmtest.Expect[protocol.PartySnapshot](h, "c", protocol.TypePartyUpdated)
	assert.Equal(t, "b", up.LeaderID)
	assert.Equal(t, []string{"b", "c"}, svc.Members(snap.ID))
	left := realmtest.Expect[protocol.PartyLeftMsg](h, "a", protocol.TypePartyLeft)
	assert.Equal(t, party.ReasonLeft, left.Reason)
}

func TestKick(t *testing.T) {
	h, svc := setup(t, 5, "a", "b", "c")
	_, _ = svc.Create("a")
	join(t, svc, "a", "b")
	join(t, svc, "a", "c")
	h.DrainAll()

	assert.ErrorIs(t, svc.Kick("b", "c"), model.ErrPermission)
	assert.ErrorIs(t, svc.Kick("a", "a"), model.ErrInvalidTarget)
	require.NoError(t, svc.Kick("a", "c"))
	left := realmtest.Expect[protocol.PartyLeftMsg](h, "c", protocol.TypePartyLeft)
	assert.Equal(t, party.ReasonKicked, left.Reason)
	_, ok := svc.PartyOf("c")
	assert.False(t, ok)
}

func TestDisconnect_ExpiresInvitesAndLeaves(t *testing.T) {
	h, svc := setup(t, 5, "a", "b", "c")
	_, _ = svc.Create("a")
	join(t, svc, "a", "b")
	inv, _ := svc.Invite("a", "c")
	h.DrainAll()

	h.Disconnect("c")
	exp := realmtest.Expect[protocol.PartyInviteMsg](h, "a", protocol.TypePartyInviteExpired)
	assert.Equal(t, inv.ID, exp.InviteID)

	h.Connect("c")
	inv3, err := svc.Invite("a", "c")
	require.NoError(t, err)
	h.DrainAll()

	h.Disconnect("a")
	exp = realmtest.Expect[protocol.PartyInviteMsg](h, "c", protocol.TypePartyInviteExpired)
	assert.Equal(t, inv3.ID, exp.InviteID)
	up := realmtest.Expect[protocol.PartySnapshot](h, "b", protocol.TypePartyUpdated)
	assert.Equal(t, "b", up.LeaderID)
	require.Len(t, up.Members, 1)
}

func TestPartyOfIsSingleValuedUnderConcurrency(t *testing.T) {
	ids := []string{"target"}
	for i := 0; i < 8; i++ {
		ids = append(ids, fmt.Sprintf("leader%d", i))
	}
	_, svc := setup(t, 5, ids...)

	var invites []party.Invite
	for _, l := range ids[1:] {
		_, err := svc.Create(l)
		require.NoError(t, err)
		inv, err := svc.Invite(l, "target")
		require.NoError(t, err)
		invites = append(invites, inv)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := 0
	for _, inv := range invites {
		wg.Add(1)
		go func(inv party.Invite) {
			defer wg.Done()
			if _, err := svc.Accept("target", inv.ID); err == nil {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}(inv)
	}
	wg.Wait()

	assert.Equal(t, 1, joined)
	pid, ok := svc.PartyOf("target")
	require.True(t, ok)
	count := 0
	for _, l := range ids[1:] {
		other, _ := svc.PartyOf(l)
		for _, m := range svc.Members(other) {
			if m == "target" {
				count++
				assert.Equal(t, pid, other)
			}
		}
	}
	assert.Equal(t, 1, count)
}
