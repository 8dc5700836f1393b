package chat_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmsync.io/internal/chat"
	"realmsync.io/internal/fanout"
	"realmsync.io/internal/model"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/realmtest"
)

type groups map[string]string

func (g groups) GroupOf(id string) (string, bool) {
	v, ok := g[id]
	return v, ok
}

type members map[string][]string

func (m members) Members(id string) []string { return m[id] }

type nearby map[string][]string

func (n nearby) NearbySet(id string) []string { return n[id] }

func setup(t *testing.T) (*realmtest.Harness, *chat.Service, *time.Time) {
	t.Helper()
	h := realmtest.New(t, 64)
	for _, id := range []string{"a", "b", "c"} {
		h.Connect(id)
	}
	h.Hub.SetNearby(nearby{"a": {"b"}})
	h.Hub.SetParties(members{"P1": {"a", "c"}})
	h.Hub.SetGuilds(members{"G1": {"a", "b"}})

	svc := chat.New(chat.Config{
		MaxLen:  20,
		Chat:    chat.Limit{Window: 10 * time.Second, Max: 3},
		Global:  chat.Limit{Window: 30 * time.Second, Max: 1},
		Whisper: chat.Limit{Window: 10 * time.Second, Max: 5},
	}, h.Hub, h.Registry, groups{"a": "P1", "c": "P1"}, groups{"a": "G1", "b": "G1"})
	now := time.Unix(1_700_000_000, 0)
	svc.SetClock(func() time.Time { return now })
	return h, svc, &now
}

var alice = model.Identity{PlayerID: "a", Username: "Alice"}

func TestSend_Channels(t *testing.T) {
	h, svc, _ := setup(t)

	cases := []struct {
		channel string
		to      string
		want    []string
		notWant []string
	}{
		{channel: protocol.ChannelLocal, want: []string{"a", "b"}, notWant: []string{"c"}},
		{channel: protocol.ChannelParty, want: []string{"a", "c"}, notWant: []string{"b"}},
		{channel: protocol.ChannelGuild, want: []string{"a", "b"}, notWant: []string{"c"}},
		{channel: protocol.ChannelWhisper, to: "c", want: []string{"a", "c"}, notWant: []string{"b"}},
		{channel: protocol.ChannelGlobal, want: []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		h.DrainAll()
		require.NoError(t, svc.Send(alice, protocol.ChatReq{Channel: tc.channel, Text: " hi ", To: tc.to}), tc.channel)
		for _, id := range tc.want {
			msg := realmtest.Expect[protocol.ChatMsg](h, id, protocol.TypeChatMessage)
			assert.Equal(t, tc.channel, msg.Channel)
			assert.Equal(t, "hi", msg.Text)
			assert.Equal(t, "Alice", msg.Username)
		}
		for _, id := range tc.notWant {
			h.ExpectNone(id, protocol.TypeChatMessage)
		}
	}
}

func TestSend_Rejections(t *testing.T) {
	_, svc, _ := setup(t)

	assert.ErrorIs(t, svc.Send(alice, protocol.ChatReq{Text: "   "}), model.ErrValidation)
	assert.ErrorIs(t, svc.Send(alice, protocol.ChatReq{Text: "this line is far too long to send"}), model.ErrValidation)
	assert.ErrorIs(t, svc.Send(alice, protocol.ChatReq{Channel: "shout", Text: "x"}), model.ErrValidation)
	assert.ErrorIs(t, svc.Send(alice, protocol.ChatReq{Channel: "whisper", Text: "x"}), model.ErrValidation)
	assert.ErrorIs(t, svc.Send(alice, protocol.ChatReq{Channel: "whisper", To: "ghost", Text: "x"}), model.ErrInvalidTarget)
	assert.ErrorIs(t, svc.Send(alice, protocol.ChatReq{Channel: "whisper", To: "a", Text: "x"}), model.ErrInvalidTarget)

	bob := model.Identity{PlayerID: "b", Username: "Bob"}
	assert.ErrorIs(t, svc.Send(bob, protocol.ChatReq{Channel: "party", Text: "x"}), model.ErrPermission)
}

func TestSend_RateLimitWindows(t *testing.T) {
	_, svc, now := setup(t)

	require.NoError(t, svc.Send(alice, protocol.ChatReq{Text: "1"}))
	require.NoError(t, svc.Send(alice, protocol.ChatReq{Text: "2"}))
	require.NoError(t, svc.Send(alice, protocol.ChatReq{Channel: "party", Text: "3"}))
	assert.ErrorIs(t, svc.Send(alice, protocol.ChatReq{Text: "4"}), model.ErrRateLimited)

	// Separate window per kind.
	require.NoError(t, svc.Send(alice, protocol.ChatReq{Channel: "global", Text: "g"}))
	assert.ErrorIs(t, svc.Send(alice, protocol.ChatReq{Channel: "global", Text: "g"}), model.ErrRateLimited)

	*now = now.Add(10 * time.Second)
	require.NoError(t, svc.Send(alice, protocol.ChatReq{Text: "5"}))
}

func TestSetClock_WhileSending(t *testing.T) {
	h, svc, _ := setup(t)
	base := time.Unix(1_800_000_000, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			at := base.Add(time.Duration(i) * time.Minute)
			svc.SetClock(func() time.Time { return at })
		}
	}()
	for i := 0; i < 100; i++ {
		_ = svc.Send(alice, protocol.ChatReq{Text: "x"})
	}
	wg.Wait()

	final := base.Add(24 * time.Hour)
	svc.SetClock(func() time.Time { return final })
	h.DrainAll()
	require.NoError(t, svc.Send(alice, protocol.ChatReq{Text: "late"}))
	msg := realmtest.Expect[protocol.ChatMsg](h, "b", protocol.TypeChatMessage)
	assert.Equal(t, final.UnixMilli(), msg.At)
}

func TestSend_GlobalReachesOnlyLiveSessions(t *testing.T) {
	h, svc, _ := setup(t)
	h.Disconnect("c")
	h.DrainAll()
	require.NoError(t, svc.Send(alice, protocol.ChatReq{Channel: "global", Text: "hey"}))
	assert.Equal(t, []string{"a", "b"}, h.Hub.Resolve(fanout.Global()))
}
