package protocol

// Inbound message types (client -> server).
const (
	TypeAuth              = "auth"
	TypePing              = "ping"
	TypeMove              = "move"
	TypeChat              = "chat"
	TypeFriendRequest     = "friend_request"
	TypeFriendAccept      = "friend_accept"
	TypeFriendDecline     = "friend_decline"
	TypeFriendRemove      = "friend_remove"
	TypeFriendList        = "friend_list"
	TypePartyCreate       = "party_create"
	TypePartyInvite       = "party_invite"
	TypePartyAccept       = "party_accept"
	TypePartyDecline      = "party_decline"
	TypePartyLeave        = "party_leave"
	TypePartyKick         = "party_kick"
	TypeGuildAction       = "guild_action"
	TypeGuildAccept       = "guild_accept"
	TypeGuildDecline      = "guild_decline"
	TypeTradeRequest      = "trade_request"
	TypeTradeAccept       = "trade_accept"
	TypeTradeDecline      = "trade_decline"
	TypeMatchmakingJoin   = "matchmaking_join"
	TypeMatchmakingLeave  = "matchmaking_leave"
	TypeMatchmakingStatus = "matchmaking_status"
)

// Outbound message types (server -> client).
const (
	TypeAuthSuccess = "auth_success"
	TypeAuthFailed  = "auth_failed"
	TypePong        = "pong"
	TypeError       = "error"

	TypePlayerJoined = "player_joined"
	TypePlayerLeft   = "player_left"
	TypePlayerMoved  = "player_moved"
	TypeMoveRejected = "move_rejected"

	TypeChatMessage = "chat_message"

	TypeFriendRequested = "friend_requested"
	TypeFriendIncoming  = "friend_request_received"
	TypeFriendAccepted  = "friend_accepted"
	TypeFriendDeclined  = "friend_declined"
	TypeFriendExpired   = "friend_request_expired"
	TypeFriendRemoved   = "friend_removed"
	TypeFriendOnline    = "friend_online"
	TypeFriendOffline   = "friend_offline"
	TypeFriendListed    = "friend_list_result"

	TypePartyCreated       = "party_created"
	TypePartyInvited       = "party_invited"
	TypePartyInviteSent    = "party_invite_sent"
	TypePartyInviteDecline = "party_invite_declined"
	TypePartyInviteExpired = "party_invite_expired"
	TypePartyJoined        = "party_joined"
	TypePartyUpdated       = "party_updated"
	TypePartyLeft          = "party_left"
	TypePartyDisbanded     = "party_disbanded"

	TypeGuildCreated       = "guild_created"
	TypeGuildInvited       = "guild_invited"
	TypeGuildInviteSent    = "guild_invite_sent"
	TypeGuildInviteDecline = "guild_invite_declined"
	TypeGuildInviteExpired = "guild_invite_expired"
	TypeGuildJoined        = "guild_joined"
	TypeGuildUpdated       = "guild_updated"
	TypeGuildLeft          = "guild_left"
	TypeGuildDisbanded     = "guild_disbanded"

	TypeTradeStarted   = "trade_started"
	TypeTradeUpdated   = "trade_updated"
	TypeTradeCompleted = "trade_completed"
	TypeTradeCancelled = "trade_cancelled"
	TypeTradeFailed    = "trade_failed"

	TypeMatchmakingJoined = "matchmaking_joined"
	TypeMatchmakingLeft   = "matchmaking_left"
	TypeMatchmakingState  = "matchmaking_status_result"
	TypeMatchFound        = "match_found"
)

// Trade sub-actions carried by trade_request.
const (
	TradeActionOpen    = "open"
	TradeActionOffer   = "offer"
	TradeActionConfirm = "confirm"
	TradeActionCancel  = "cancel"
)

// Guild sub-actions carried by guild_action.
const (
	GuildActionCreate  = "create"
	GuildActionInvite  = "invite"
	GuildActionLeave   = "leave"
	GuildActionSetRank = "set_rank"
)

// Chat channels.
const (
	ChannelGlobal  = "global"
	ChannelLocal   = "local"
	ChannelParty   = "party"
	ChannelGuild   = "guild"
	ChannelWhisper = "whisper"
)

type AuthReq struct {
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type AuthSuccessMsg struct {
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	PlayerID        string     `json:"player_id"`
	Username        string     `json:"username"`
	Self            PlayerView `json:"self"`
}

type AuthFailedMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PlayerView struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Pos      [3]float64 `json:"pos"`
	Rot      [2]float64 `json:"rot"`
	Vel      [3]float64 `json:"vel"`
	Health   int        `json:"health"`
	Level    int        `json:"level"`
	Gold     int64      `json:"gold,omitempty"`
	Items    []string   `json:"items,omitempty"`
}

type PingMsg struct {
	ClientTime int64 `json:"client_time,omitempty"`
}

type PongMsg struct {
	ClientTime int64 `json:"client_time,omitempty"`
	ServerTime int64 `json:"server_time"`
}

type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

// Presence.

type MoveReq struct {
	Pos    [3]float64 `json:"pos"`
	Rot    [2]float64 `json:"rot"`
	Vel    [3]float64 `json:"vel"`
	Moving bool       `json:"moving"`
}

type PlayerMovedMsg struct {
	ID     string     `json:"id"`
	Pos    [3]float64 `json:"pos"`
	Rot    [2]float64 `json:"rot"`
	Vel    [3]float64 `json:"vel"`
	Moving bool       `json:"moving"`
}

type PlayerLeftMsg struct {
	ID string `json:"id"`
}

// Chat.

type ChatReq struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
	To      string `json:"to,omitempty"`
}

type ChatMsg struct {
	Channel  string `json:"channel"`
	From     string `json:"from"`
	Username string `json:"username"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text"`
	At       int64  `json:"at"`
}

// Friends.

type PlayerRef struct {
	PlayerID string `json:"player_id"`
}

type FriendStatus struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username,omitempty"`
	Online   bool   `json:"online"`
}

// FriendRequestMsg names a pending request by its two ends.
type FriendRequestMsg struct {
	From   string `json:"from"`
	Target string `json:"target"`
}

type FriendListMsg struct {
	Friends  []FriendStatus `json:"friends"`
	Incoming []FriendStatus `json:"incoming"`
	Outgoing []FriendStatus `json:"outgoing"`
}

// Party.

type InviteRef struct {
	InviteID string `json:"invite_id"`
}

type PartyInviteMsg struct {
	InviteID string `json:"invite_id"`
	PartyID  string `json:"party_id"`
	From     string `json:"from"`
	Username string `json:"username,omitempty"`
	Target   string `json:"target,omitempty"`
}

type PartyMember struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Level    int    `json:"level"`
	Health   int    `json:"health"`
}

type PartySnapshot struct {
	ID       string        `json:"id"`
	LeaderID string        `json:"leader_id"`
	MaxSize  int           `json:"max_size"`
	Members  []PartyMember `json:"members"`
}

type PartyLeftMsg struct {
	PartyID string `json:"party_id"`
	Reason  string `json:"reason"`
}

// Guild.

type GuildActionReq struct {
	Action   string `json:"action"`
	Name     string `json:"name,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
	Rank     string `json:"rank,omitempty"`
}

type GuildInviteMsg struct {
	InviteID  string `json:"invite_id"`
	GuildID   string `json:"guild_id"`
	GuildName string `json:"guild_name"`
	From      string `json:"from"`
	Target    string `json:"target,omitempty"`
}

type GuildMember struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Rank     string `json:"rank"`
	Online   bool   `json:"online"`
}

type GuildSnapshot struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Level   int           `json:"level"`
	Ranks   []string      `json:"ranks"`
	Members []GuildMember `json:"members"`
}

type GuildLeftMsg struct {
	GuildID string `json:"guild_id"`
	Reason  string `json:"reason"`
}

// Trade.

type TradeReq struct {
	Action   string   `json:"action,omitempty"`
	PlayerID string   `json:"player_id,omitempty"`
	TradeID  string   `json:"trade_id,omitempty"`
	Items    []string `json:"items,omitempty"`
	Gold     int64    `json:"gold,omitempty"`
}

type TradeRef struct {
	TradeID string `json:"trade_id"`
}

type TradeSide struct {
	PlayerID  string   `json:"player_id"`
	Items     []string `json:"items"`
	Gold      int64    `json:"gold"`
	Confirmed bool     `json:"confirmed"`
}

type TradeSnapshot struct {
	ID    string    `json:"id"`
	State string    `json:"state"`
	A     TradeSide `json:"a"`
	B     TradeSide `json:"b"`
}

type TradeCompletedMsg struct {
	TradeID      string   `json:"trade_id"`
	With         string   `json:"with"`
	ItemsIn      []string `json:"items_received"`
	GoldIn       int64    `json:"gold_received"`
	ItemsOut     []string `json:"items_given"`
	GoldOut      int64    `json:"gold_given"`
	GoldBalance  int64    `json:"gold_balance"`
	ItemsBalance []string `json:"items"`
}

type TradeClosedMsg struct {
	TradeID string `json:"trade_id"`
	By      string `json:"by,omitempty"`
	Reason  string `json:"reason"`
}

// Matchmaking.

type MatchmakingReq struct {
	QueueType string `json:"queue_type"`
}

type MatchmakingJoinedMsg struct {
	QueueType string `json:"queue_type"`
	Depth     int    `json:"depth"`
	Required  int    `json:"required"`
}

type MatchmakingLeftMsg struct {
	QueueType string `json:"queue_type,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type MatchmakingStatusMsg struct {
	Queued    bool   `json:"queued"`
	QueueType string `json:"queue_type,omitempty"`
	WaitMS    int64  `json:"wait_ms,omitempty"`
	Depth     int    `json:"depth,omitempty"`
	Required  int    `json:"required,omitempty"`
}

type MatchFoundMsg struct {
	MatchID   string     `json:"match_id"`
	QueueType string     `json:"queue_type"`
	Teams     [][]string `json:"teams"`
}
