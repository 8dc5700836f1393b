package game

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// State is the admin view of the running world.
type State struct {
	StartedAt     time.Time      `json:"started_at"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Sessions      int            `json:"sessions"`
	PlayersLoaded int            `json:"players_loaded"`
	Visible       int            `json:"presence_entries"`
	Parties       int            `json:"parties"`
	PartyInvites  int            `json:"party_invites"`
	Guilds        int            `json:"guilds"`
	GuildInvites  int            `json:"guild_invites"`
	FriendPending int            `json:"friend_requests_pending"`
	TradesOpen    int            `json:"trades_open"`
	QueueDepth    map[string]int `json:"matchmaking_queue_depth"`
	MatchesFormed uint64         `json:"matches_formed"`
}

func (g *Game) State() State {
	parties, pInv := g.Parties.Counts()
	guilds, gInv := g.Guilds.Counts()
	mm := g.Matchmaking.Stats()
	return State{
		StartedAt:     g.startedAt,
		UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
		Sessions:      g.Registry.Count(),
		PlayersLoaded: g.Players.Count(),
		Visible:       g.Presence.Count(),
		Parties:       parties,
		PartyInvites:  pInv,
		Guilds:        guilds,
		GuildInvites:  gInv,
		FriendPending: g.Social.PendingCount(),
		TradesOpen:    g.Trades.Stats().Open,
		QueueDepth:    mm.Depth,
		MatchesFormed: mm.Formed,
	}
}

// SessionInfo is one row of the admin session listing.
type SessionInfo struct {
	SessionID   string     `json:"session_id"`
	PlayerID    string     `json:"player_id"`
	Username    string     `json:"username"`
	ConnectedAt time.Time  `json:"connected_at"`
	Queued      int        `json:"queued"`
	Sent        uint64     `json:"sent"`
	Dropped     uint64     `json:"dropped"`
	Pos         [3]float64 `json:"pos"`
	PartyID     string     `json:"party_id,omitempty"`
	GuildID     string     `json:"guild_id,omitempty"`
	TradeID     string     `json:"trade_id,omitempty"`
}

func (g *Game) SessionInfos() []SessionInfo {
	sessions := g.Registry.Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		sent, dropped := s.Stats()
		info := SessionInfo{
			SessionID:   s.ID,
			PlayerID:    s.PlayerID,
			Username:    s.Username,
			ConnectedAt: s.ConnectedAt,
			Queued:      s.QueueLen(),
			Sent:        sent,
			Dropped:     dropped,
		}
		if pos, ok := g.Presence.Position(s.PlayerID); ok {
			info.Pos = pos.Array()
		}
		info.PartyID, _ = g.Parties.PartyOf(s.PlayerID)
		info.GuildID, _ = g.Guilds.GuildOf(s.PlayerID)
		info.TradeID, _ = g.Trades.Active(s.PlayerID)
		out = append(out, info)
	}
	return out
}

// WriteMetrics writes the Prometheus text exposition format.
func (g *Game) WriteMetrics(w io.Writer) {
	reg := g.Registry.Stats()
	hub := g.Hub.Stats()
	st := g.State()
	tr := g.Trades.Stats()

	fmt.Fprintf(w, "# HELP realmsync_sessions Current number of authenticated sessions.\n")
	fmt.Fprintf(w, "# TYPE realmsync_sessions gauge\n")
	fmt.Fprintf(w, "realmsync_sessions %d\n", reg.Sessions)

	fmt.Fprintf(w, "# HELP realmsync_outbound_queued Frames waiting in session queues.\n")
	fmt.Fprintf(w, "# TYPE realmsync_outbound_queued gauge\n")
	fmt.Fprintf(w, "realmsync_outbound_queued %d\n", reg.QueuedFrames)

	fmt.Fprintf(w, "# HELP realmsync_auth_total Authentication attempts by result.\n")
	fmt.Fprintf(w, "# TYPE realmsync_auth_total counter\n")
	fmt.Fprintf(w, "realmsync_auth_total{result=%q} %d\n", "ok", reg.AuthOK)
	fmt.Fprintf(w, "realmsync_auth_total{result=%q} %d\n", "failed", reg.AuthFailed)

	fmt.Fprintf(w, "# HELP realmsync_sessions_closed_total Sessions closed by cause.\n")
	fmt.Fprintf(w, "# TYPE realmsync_sessions_closed_total counter\n")
	fmt.Fprintf(w, "realmsync_sessions_closed_total{cause=%q} %d\n", "any", reg.Terminated)
	fmt.Fprintf(w, "realmsync_sessions_closed_total{cause=%q} %d\n", "replaced", reg.Replaced)
	fmt.Fprintf(w, "realmsync_sessions_closed_total{cause=%q} %d\n", "slow_consumer", reg.SlowDropped)

	fmt.Fprintf(w, "# HELP realmsync_fanout_frames_total Frames marshalled for fan-out.\n")
	fmt.Fprintf(w, "# TYPE realmsync_fanout_frames_total counter\n")
	fmt.Fprintf(w, "realmsync_fanout_frames_total %d\n", hub.Frames)
	fmt.Fprintf(w, "# HELP realmsync_fanout_deliveries_total Per-recipient enqueue results.\n")
	fmt.Fprintf(w, "# TYPE realmsync_fanout_deliveries_total counter\n")
	fmt.Fprintf(w, "realmsync_fanout_deliveries_total{result=%q} %d\n", "delivered", hub.Delivered)
	fmt.Fprintf(w, "realmsync_fanout_deliveries_total{result=%q} %d\n", "dropped", hub.Dropped)

	fmt.Fprintf(w, "# HELP realmsync_entities Live social entities by kind.\n")
	fmt.Fprintf(w, "# TYPE realmsync_entities gauge\n")
	fmt.Fprintf(w, "realmsync_entities{kind=%q} %d\n", "presence", st.Visible)
	fmt.Fprintf(w, "realmsync_entities{kind=%q} %d\n", "party", st.Parties)
	fmt.Fprintf(w, "realmsync_entities{kind=%q} %d\n", "party_invite", st.PartyInvites)
	fmt.Fprintf(w, "realmsync_entities{kind=%q} %d\n", "guild", st.Guilds)
	fmt.Fprintf(w, "realmsync_entities{kind=%q} %d\n", "guild_invite", st.GuildInvites)
	fmt.Fprintf(w, "realmsync_entities{kind=%q} %d\n", "friend_request", st.FriendPending)
	fmt.Fprintf(w, "realmsync_entities{kind=%q} %d\n", "trade", tr.Open)

	fmt.Fprintf(w, "# HELP realmsync_trades_total Finished trades by outcome.\n")
	fmt.Fprintf(w, "# TYPE realmsync_trades_total counter\n")
	fmt.Fprintf(w, "realmsync_trades_total{outcome=%q} %d\n", "committed", tr.Committed)
	fmt.Fprintf(w, "realmsync_trades_total{outcome=%q} %d\n", "failed", tr.Failed)
	fmt.Fprintf(w, "realmsync_trades_total{outcome=%q} %d\n", "cancelled", tr.Cancelled)

	fmt.Fprintf(w, "# HELP realmsync_matchmaking_queue_depth Tickets waiting per queue.\n")
	fmt.Fprintf(w, "# TYPE realmsync_matchmaking_queue_depth gauge\n")
	queues := make([]string, 0, len(st.QueueDepth))
	for q := range st.QueueDepth {
		queues = append(queues, q)
	}
	sort.Strings(queues)
	for _, q := range queues {
		fmt.Fprintf(w, "realmsync_matchmaking_queue_depth{queue=%q} %d\n", q, st.QueueDepth[q])
	}
	fmt.Fprintf(w, "# HELP realmsync_matches_formed_total Matches formed since start.\n")
	fmt.Fprintf(w, "# TYPE realmsync_matches_formed_total counter\n")
	fmt.Fprintf(w, "realmsync_matches_formed_total %d\n", st.MatchesFormed)

	fmt.Fprintf(w, "# HELP realmsync_messages_total Inbound messages by type and result.\n")
	fmt.Fprintf(w, "# TYPE realmsync_messages_total counter\n")
	for _, ts := range g.Router.Stats() {
		fmt.Fprintf(w, "realmsync_messages_total{type=%q,result=%q} %d\n", ts.Type, "handled", ts.Handled-ts.Rejected)
		fmt.Fprintf(w, "realmsync_messages_total{type=%q,result=%q} %d\n", ts.Type, "rejected", ts.Rejected)
	}
}
