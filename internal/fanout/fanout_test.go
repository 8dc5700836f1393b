package fanout_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmsync.io/internal/fanout"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/realmtest"
)

type staticGroups map[string][]string

func (g staticGroups) Members(id string) []string { return g[id] }

type staticNearby map[string][]string

func (n staticNearby) NearbySet(id string) []string { return n[id] }

func TestResolve(t *testing.T) {
	h := realmtest.New(t, 8)
	for _, id := range []string{"a", "b", "c"} {
		h.Connect(id)
	}
	h.Hub.SetNearby(staticNearby{"a": {"b"}})
	h.Hub.SetParties(staticGroups{"P1": {"c", "a", "a"}})
	h.Hub.SetGuilds(staticGroups{"G1": {"b", "c"}})

	assert.Equal(t, []string{"a", "b", "c"}, h.Hub.Resolve(fanout.Global()))
	assert.Equal(t, []string{"b"}, h.Hub.Resolve(fanout.Proximity("a", false)))
	assert.Equal(t, []string{"a", "b"}, h.Hub.Resolve(fanout.Proximity("a", true)))
	assert.Equal(t, []string{"a", "c"}, h.Hub.Resolve(fanout.Party("P1")))
	assert.Equal(t, []string{"b", "c"}, h.Hub.Resolve(fanout.Guild("G1")))
	assert.Equal(t, []string{"c"}, h.Hub.Resolve(fanout.Guild("G1").Except("b")))
	assert.Equal(t, []string{"x"}, h.Hub.Resolve(fanout.Single("x")))
	assert.Equal(t, []string{"a", "b"}, h.Hub.Resolve(fanout.Members("b", "a")))
	assert.Empty(t, h.Hub.Resolve(fanout.Party("missing")))
}

func TestFanout_SkipsOfflineRecipients(t *testing.T) {
	h := realmtest.New(t, 8)
	h.Connect("a")
	n := h.Hub.Fanout(fanout.Members("a", "ghost"), protocol.TypePong, protocol.PongMsg{ServerTime: 1})
	assert.Equal(t, 1, n)
	msg := realmtest.Expect[protocol.PongMsg](h, "a", protocol.TypePong)
	assert.Equal(t, int64(1), msg.ServerTime)
}

func TestFanout_SlowConsumerDoesNotStallOthers(t *testing.T) {
	h := realmtest.New(t, 2)
	slow := h.Connect("slow")
	h.Connect("fast")

	var wg sync.WaitGroup
	wg.Add(1)
	h.Registry.OnDisconnect("probe", func(_ context.Context, id string) {
		if id == "slow" {
			wg.Done()
		}
	})

	for i := 0; i < 3; i++ {
		h.Hub.Fanout(fanout.Members("slow", "fast"), protocol.TypePong, protocol.PongMsg{ServerTime: int64(i)})
		h.Drain("fast")
	}
	wg.Wait()

	code, _ := slow.CloseReason()
	assert.Equal(t, protocol.ErrSlowConsumer, code)
	assert.Nil(t, h.Registry.Lookup("slow"))
	require.NotNil(t, h.Registry.Lookup("fast"))
	assert.Equal(t, uint64(1), h.Hub.Stats().Dropped)

	h.Hub.Fanout(fanout.Global(), protocol.TypePong, protocol.PongMsg{ServerTime: 9})
	msg := realmtest.Expect[protocol.PongMsg](h, "fast", protocol.TypePong)
	assert.Equal(t, int64(9), msg.ServerTime)
}
