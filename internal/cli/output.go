package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"realmsync.io/internal/game"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
		return
	}
	o.printText(data)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case game.State:
		o.printState(v)
	case SessionList:
		o.printSessions(v)
	case KickResult:
		fmt.Fprintf(o.w, "Kicked %s\n", v.PlayerID)
	case MatchmakingStatus:
		o.printMatchmaking(v)
	case TokenResult:
		fmt.Fprintln(o.w, v.Token)
	case AccountResult:
		fmt.Fprintf(o.w, "Account: %s (%s)\n", v.Username, v.PlayerID)
	default:
		o.printJSON(data)
	}
}

// SessionList mirrors GET /admin/v1/sessions.
type SessionList struct {
	Sessions []game.SessionInfo `json:"sessions"`
}

type KickResult struct {
	OK       bool   `json:"ok"`
	PlayerID string `json:"player_id"`
}

type QueueStatus struct {
	QueueType string `json:"queue_type"`
	Required  int    `json:"required"`
	Depth     int    `json:"depth"`
}

// MatchmakingStatus mirrors GET /admin/v1/matchmaking.
type MatchmakingStatus struct {
	Queues        []QueueStatus `json:"queues"`
	Tickets       int           `json:"tickets"`
	MatchesFormed uint64        `json:"matches_formed"`
}

type TokenResult struct {
	PlayerID  string    `json:"player_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token"`
}

type AccountResult struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

func (o *Output) printState(s game.State) {
	fmt.Fprintf(o.w, "Started: %s (up %ds)\n", s.StartedAt.Format(time.RFC3339), s.UptimeSeconds)
	fmt.Fprintf(o.w, "Sessions: %d\n", s.Sessions)
	fmt.Fprintf(o.w, "Players loaded: %d\n", s.PlayersLoaded)
	fmt.Fprintf(o.w, "Parties: %d (%d invites)\n", s.Parties, s.PartyInvites)
	fmt.Fprintf(o.w, "Guilds: %d (%d invites)\n", s.Guilds, s.GuildInvites)
	fmt.Fprintf(o.w, "Friend requests pending: %d\n", s.FriendPending)
	fmt.Fprintf(o.w, "Trades open: %d\n", s.TradesOpen)
	fmt.Fprintf(o.w, "Matches formed: %d\n", s.MatchesFormed)
}

func (o *Output) printSessions(l SessionList) {
	if len(l.Sessions) == 0 {
		fmt.Fprintln(o.w, "No sessions")
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYER\tUSERNAME\tSESSION\tQUEUED\tSENT\tDROPPED\tPARTY\tGUILD\tTRADE")
	for _, s := range l.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			s.PlayerID, s.Username, s.SessionID, s.Queued, s.Sent, s.Dropped,
			dash(s.PartyID), dash(s.GuildID), dash(s.TradeID))
	}
	_ = tw.Flush()
}

func (o *Output) printMatchmaking(m MatchmakingStatus) {
	fmt.Fprintf(o.w, "Tickets: %d\n", m.Tickets)
	fmt.Fprintf(o.w, "Matches formed: %d\n", m.MatchesFormed)
	for _, q := range m.Queues {
		fmt.Fprintf(o.w, "  %s: %d/%d\n", q.QueueType, q.Depth, q.Required)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
