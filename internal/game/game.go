// Package game assembles the world's components and binds them to the
// message router.
package game

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"realmsync.io/internal/audit"
	"realmsync.io/internal/auth"
	"realmsync.io/internal/chat"
	"realmsync.io/internal/fanout"
	"realmsync.io/internal/guild"
	"realmsync.io/internal/matchmaking"
	"realmsync.io/internal/model"
	"realmsync.io/internal/party"
	"realmsync.io/internal/players"
	"realmsync.io/internal/presence"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/registry"
	"realmsync.io/internal/router"
	"realmsync.io/internal/social"
	"realmsync.io/internal/store"
	"realmsync.io/internal/trade"
	"realmsync.io/internal/tuning"
)

type Options struct {
	Tuning   tuning.Tuning
	Store    store.Store
	Verifier auth.Verifier
	Audit    audit.Logger
	// Logger is the parent logger; components get their own prefixes.
	Logger *log.Logger
}

type Game struct {
	Tuning tuning.Tuning

	Players     *players.Directory
	Registry    *registry.Registry
	Hub         *fanout.Hub
	Router      *router.Router
	Presence    *presence.Index
	Social      *social.Graph
	Parties     *party.Service
	Guilds      *guild.Service
	Trades      *trade.Service
	Matchmaking *matchmaking.Service
	Chat        *chat.Service

	logger    *log.Logger
	startedAt time.Time
}

func component(parent *log.Logger, name string) *log.Logger {
	out := parent.Writer()
	if out == nil {
		out = os.Stderr
	}
	return log.New(out, "["+name+"] ", parent.Flags())
}

func New(opts Options) *Game {
	t := opts.Tuning
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	al := opts.Audit
	if al == nil {
		al = audit.Nop{}
	}

	dir := players.New(opts.Store, players.Starter{Gold: t.StarterGold, Items: t.StarterItems}, component(logger, "players"))
	reg := registry.New(opts.Verifier, dir, registry.Config{OutboundQueue: t.OutboundQueue}, component(logger, "registry"))
	hub := fanout.New(reg, component(logger, "fanout"))

	g := &Game{
		Tuning:    t,
		Players:   dir,
		Registry:  reg,
		Hub:       hub,
		Router:    router.New(hub, component(logger, "router")),
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
	g.Presence = presence.New(presence.Config{
		Radius:     t.ProximityRadius,
		MaxStep:    t.Movement.MaxStep,
		WorldBound: t.Movement.WorldBound,
	}, hub)
	g.Social = social.New(opts.Store, hub, dir, component(logger, "social"))
	g.Parties = party.New(t.Party.MaxSize, hub, dir, component(logger, "party"))
	g.Guilds = guild.New(guild.Config{Ranks: t.Guild.Ranks, MaxNameLen: t.Guild.MaxNameLen}, hub, dir, reg, al, component(logger, "guild"))
	g.Trades = trade.New(trade.Config{MaxDistance: t.Trade.MaxDistance, MaxItems: t.Trade.MaxItems}, hub, dir, g.Presence, al, component(logger, "trade"))
	g.Matchmaking = matchmaking.New(matchmaking.Config{Queues: t.Matchmaking.Queues, Interval: t.Matchmaking.Interval()}, hub, al, component(logger, "matchmaking"))
	g.Chat = chat.New(chat.Config{
		MaxLen:  t.Chat.MaxLen,
		Chat:    chat.Limit{Window: ms(t.RateLimits.ChatWindowMS), Max: t.RateLimits.ChatMax},
		Global:  chat.Limit{Window: ms(t.RateLimits.GlobalWindowMS), Max: t.RateLimits.GlobalMax},
		Whisper: chat.Limit{Window: ms(t.RateLimits.WhisperWindowMS), Max: t.RateLimits.WhisperMax},
	}, hub, reg, chat.GroupFunc(g.Parties.PartyOf), chat.GroupFunc(g.Guilds.GuildOf))

	hub.SetNearby(g.Presence)
	hub.SetParties(g.Parties)
	hub.SetGuilds(g.Guilds)

	g.wireLifecycle()
	g.registerHandlers()
	return g
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// wireLifecycle installs join hooks and disconnect cleanups. Order matters:
// auth_success must be the first frame a session sees, and the player
// directory must outlive every other cleanup.
func (g *Game) wireLifecycle() {
	g.Registry.OnJoin("welcome", func(_ context.Context, s *registry.Session, p model.PlayerState) {
		g.Hub.Send(s.PlayerID, protocol.TypeAuthSuccess, protocol.AuthSuccessMsg{
			ProtocolVersion: protocol.Version,
			SessionID:       s.ID,
			PlayerID:        p.ID,
			Username:        p.Username,
			Self:            selfView(p),
		})
	})
	g.Registry.OnJoin("presence", func(_ context.Context, _ *registry.Session, p model.PlayerState) {
		g.Presence.Insert(p)
	})
	g.Registry.OnJoin("social", func(ctx context.Context, s *registry.Session, _ model.PlayerState) {
		if err := g.Social.Join(ctx, s.PlayerID); err != nil {
			g.logger.Printf("social join %s: %v", s.PlayerID, err)
		}
	})
	g.Registry.OnJoin("guild", func(_ context.Context, s *registry.Session, _ model.PlayerState) {
		g.Guilds.Connect(s.PlayerID)
	})

	g.Registry.OnDisconnect("trade", func(_ context.Context, id string) { g.Trades.Disconnect(id) })
	g.Registry.OnDisconnect("matchmaking", func(_ context.Context, id string) { g.Matchmaking.Disconnect(id) })
	g.Registry.OnDisconnect("party", func(_ context.Context, id string) { g.Parties.Disconnect(id) })
	g.Registry.OnDisconnect("guild", func(_ context.Context, id string) { g.Guilds.Disconnect(id) })
	g.Registry.OnDisconnect("social", func(_ context.Context, id string) { g.Social.Leave(id) })
	g.Registry.OnDisconnect("presence", func(_ context.Context, id string) { g.Presence.Remove(id) })
	g.Registry.OnDisconnect("chat", func(_ context.Context, id string) { g.Chat.Forget(id) })
	g.Registry.OnDisconnect("players", func(ctx context.Context, id string) {
		if err := g.Players.Unload(ctx, id); err != nil {
			g.logger.Printf("unload %s: %v", id, err)
		}
	})
}

func selfView(p model.PlayerState) protocol.PlayerView {
	return protocol.PlayerView{
		ID:       p.ID,
		Username: p.Username,
		Pos:      p.Position.Array(),
		Rot:      p.Rotation.Array(),
		Vel:      p.Velocity.Array(),
		Health:   p.Health,
		Level:    p.Level,
		Gold:     p.Gold,
		Items:    p.Items,
	}
}

// Run drives the scheduled work until ctx is done.
func (g *Game) Run(ctx context.Context) {
	g.Matchmaking.Run(ctx)
}

// Shutdown disconnects everyone, which persists each player, then saves
// whatever is still loaded.
func (g *Game) Shutdown(ctx context.Context) error {
	g.Registry.Shutdown(ctx)
	g.Trades.Flush()
	if err := g.Players.SaveAll(ctx); err != nil {
		return errors.Join(errors.New("save players"), err)
	}
	return nil
}

func (g *Game) StartedAt() time.Time { return g.startedAt }
