// Package chat routes chat lines to their channel audience.
package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"realmsync.io/internal/fanout"
	"realmsync.io/internal/model"
	"realmsync.io/internal/protocol"
)

// Limit is one fixed rate window.
type Limit struct {
	Window time.Duration
	Max    int
}

type Config struct {
	MaxLen int
	// Chat covers local, party and guild lines.
	Chat    Limit
	Global  Limit
	Whisper Limit
}

type GroupLookup interface {
	GroupOf(playerID string) (string, bool)
}

// GroupFunc adapts a PartyOf or GuildOf method to GroupLookup.
type GroupFunc func(playerID string) (string, bool)

func (f GroupFunc) GroupOf(playerID string) (string, bool) { return f(playerID) }

type OnlineChecker interface {
	Online(playerID string) bool
}

type rateWindow struct {
	start time.Time
	count int
}

type Service struct {
	cfg     Config
	hub     *fanout.Hub
	online  OnlineChecker
	parties GroupLookup
	guilds  GroupLookup
	now     func() time.Time

	mu      sync.Mutex
	windows map[string]map[string]*rateWindow
}

func New(cfg Config, hub *fanout.Hub, online OnlineChecker, parties, guilds GroupLookup) *Service {
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 500
	}
	return &Service{
		cfg:     cfg,
		hub:     hub,
		online:  online,
		parties: parties,
		guilds:  guilds,
		now:     time.Now,
		windows: map[string]map[string]*rateWindow{},
	}
}

// SetClock replaces the time source.
func (c *Service) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Service) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

// Send validates and delivers one line from the player.
func (c *Service) Send(from model.Identity, req protocol.ChatReq) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return model.ValidationError("empty message")
	}
	if utf8.RuneCountInString(text) > c.cfg.MaxLen {
		return model.ValidationError(fmt.Sprintf("message longer than %d characters", c.cfg.MaxLen))
	}
	channel := strings.ToLower(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = protocol.ChannelLocal
	}

	var (
		rcpt  fanout.Recipients
		limit Limit
		kind  string
	)
	switch channel {
	case protocol.ChannelGlobal:
		rcpt, limit, kind = fanout.Global(), c.cfg.Global, "global"
	case protocol.ChannelLocal:
		rcpt, limit, kind = fanout.Proximity(from.PlayerID, true), c.cfg.Chat, "chat"
	case protocol.ChannelParty:
		id, ok := c.parties.GroupOf(from.PlayerID)
		if !ok {
			return model.PermissionError("not in a party")
		}
		rcpt, limit, kind = fanout.Party(id), c.cfg.Chat, "chat"
	case protocol.ChannelGuild:
		id, ok := c.guilds.GroupOf(from.PlayerID)
		if !ok {
			return model.PermissionError("not in a guild")
		}
		rcpt, limit, kind = fanout.Guild(id), c.cfg.Chat, "chat"
	case protocol.ChannelWhisper:
		to := strings.TrimSpace(req.To)
		if to == "" {
			return model.ValidationError("whisper needs a recipient")
		}
		if to == from.PlayerID {
			return model.InvalidTarget("cannot whisper to yourself")
		}
		if !c.online.Online(to) {
			return model.InvalidTarget("recipient is offline")
		}
		rcpt, limit, kind = fanout.Members(from.PlayerID, to), c.cfg.Whisper, "whisper"
	default:
		return model.ValidationError("unknown channel: " + req.Channel)
	}

	now := c.clock()
	if ok, cd := c.allow(from.PlayerID, kind, now, limit); !ok {
		return model.RateLimitError(fmt.Sprintf("too many %s messages; retry in %s", kind, cd.Round(time.Second)))
	}

	msg := protocol.ChatMsg{
		Channel:  channel,
		From:     from.PlayerID,
		Username: from.Username,
		Text:     text,
		At:       now.UnixMilli(),
	}
	if channel == protocol.ChannelWhisper {
		msg.To = strings.TrimSpace(req.To)
	}
	c.hub.Fanout(rcpt, protocol.TypeChatMessage, msg)
	return nil
}

func (c *Service) allow(playerID, kind string, now time.Time, l Limit) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byKind := c.windows[playerID]
	if byKind == nil {
		byKind = map[string]*rateWindow{}
		c.windows[playerID] = byKind
	}
	w := byKind[kind]
	if w == nil {
		w = &rateWindow{start: now}
		byKind[kind] = w
	}
	start, count, ok, cd := allow(now, w.start, w.count, l.Window, l.Max)
	w.start, w.count = start, count
	return ok, cd
}

// Forget drops rate windows for a disconnected player.
func (c *Service) Forget(playerID string) {
	c.mu.Lock()
	delete(c.windows, playerID)
	c.mu.Unlock()
}
