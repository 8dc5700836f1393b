package game

import (
	"context"
	"errors"
	"time"

	"realmsync.io/internal/model"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/registry"
	"realmsync.io/internal/router"
)

type empty struct{}

func (g *Game) registerHandlers() {
	r := g.Router

	router.Handle(r, protocol.TypePing, g.handlePing)
	router.Handle(r, protocol.TypeMove, g.handleMove)
	router.Handle(r, protocol.TypeChat, func(_ context.Context, s *registry.Session, req protocol.ChatReq) error {
		return g.Chat.Send(model.Identity{PlayerID: s.PlayerID, Username: s.Username}, req)
	})

	// Friends.
	router.Handle(r, protocol.TypeFriendRequest, func(ctx context.Context, s *registry.Session, req protocol.PlayerRef) error {
		return g.Social.Request(ctx, s.PlayerID, req.PlayerID)
	})
	router.Handle(r, protocol.TypeFriendAccept, func(ctx context.Context, s *registry.Session, req protocol.PlayerRef) error {
		return g.Social.Accept(ctx, s.PlayerID, req.PlayerID)
	})
	router.Handle(r, protocol.TypeFriendDecline, func(ctx context.Context, s *registry.Session, req protocol.PlayerRef) error {
		return g.Social.Decline(ctx, s.PlayerID, req.PlayerID)
	})
	router.Handle(r, protocol.TypeFriendRemove, func(ctx context.Context, s *registry.Session, req protocol.PlayerRef) error {
		return g.Social.Remove(ctx, s.PlayerID, req.PlayerID)
	})
	router.Handle(r, protocol.TypeFriendList, func(ctx context.Context, s *registry.Session, _ empty) error {
		list, err := g.Social.List(ctx, s.PlayerID)
		if err != nil {
			return err
		}
		g.Hub.Send(s.PlayerID, protocol.TypeFriendListed, list)
		return nil
	})

	// Party.
	router.Handle(r, protocol.TypePartyCreate, func(_ context.Context, s *registry.Session, _ empty) error {
		_, err := g.Parties.Create(s.PlayerID)
		return err
	})
	router.Handle(r, protocol.TypePartyInvite, func(_ context.Context, s *registry.Session, req protocol.PlayerRef) error {
		_, err := g.Parties.Invite(s.PlayerID, req.PlayerID)
		return err
	})
	router.Handle(r, protocol.TypePartyAccept, func(_ context.Context, s *registry.Session, req protocol.InviteRef) error {
		_, err := g.Parties.Accept(s.PlayerID, req.InviteID)
		return err
	})
	router.Handle(r, protocol.TypePartyDecline, func(_ context.Context, s *registry.Session, req protocol.InviteRef) error {
		return g.Parties.Decline(s.PlayerID, req.InviteID)
	})
	router.Handle(r, protocol.TypePartyLeave, func(_ context.Context, s *registry.Session, _ empty) error {
		return g.Parties.Leave(s.PlayerID)
	})
	router.Handle(r, protocol.TypePartyKick, func(_ context.Context, s *registry.Session, req protocol.PlayerRef) error {
		return g.Parties.Kick(s.PlayerID, req.PlayerID)
	})

	// Guild.
	router.Handle(r, protocol.TypeGuildAction, g.handleGuildAction)
	router.Handle(r, protocol.TypeGuildAccept, func(_ context.Context, s *registry.Session, req protocol.InviteRef) error {
		_, err := g.Guilds.Accept(s.PlayerID, req.InviteID)
		return err
	})
	router.Handle(r, protocol.TypeGuildDecline, func(_ context.Context, s *registry.Session, req protocol.InviteRef) error {
		return g.Guilds.Decline(s.PlayerID, req.InviteID)
	})

	// Trade.
	router.Handle(r, protocol.TypeTradeRequest, g.handleTrade)
	router.Handle(r, protocol.TypeTradeAccept, func(_ context.Context, s *registry.Session, req protocol.TradeRef) error {
		_, err := g.Trades.Accept(s.PlayerID, g.tradeID(s.PlayerID, req.TradeID))
		return err
	})
	router.Handle(r, protocol.TypeTradeDecline, func(_ context.Context, s *registry.Session, req protocol.TradeRef) error {
		return g.Trades.Decline(s.PlayerID, g.tradeID(s.PlayerID, req.TradeID))
	})

	// Matchmaking.
	router.Handle(r, protocol.TypeMatchmakingJoin, func(_ context.Context, s *registry.Session, req protocol.MatchmakingReq) error {
		_, err := g.Matchmaking.Join(s.PlayerID, req.QueueType)
		return err
	})
	router.Handle(r, protocol.TypeMatchmakingLeave, func(_ context.Context, s *registry.Session, _ empty) error {
		g.Matchmaking.Leave(s.PlayerID)
		return nil
	})
	router.Handle(r, protocol.TypeMatchmakingStatus, func(_ context.Context, s *registry.Session, _ empty) error {
		g.Hub.Send(s.PlayerID, protocol.TypeMatchmakingState, g.Matchmaking.Status(s.PlayerID))
		return nil
	})
}

func (g *Game) handlePing(_ context.Context, s *registry.Session, req protocol.PingMsg) error {
	g.Hub.Send(s.PlayerID, protocol.TypePong, protocol.PongMsg{
		ClientTime: req.ClientTime,
		ServerTime: time.Now().UnixMilli(),
	})
	return nil
}

// handleMove applies a position update. A rejected move is answered with the
// authoritative position so the client can snap back.
func (g *Game) handleMove(_ context.Context, s *registry.Session, req protocol.MoveReq) error {
	pos, rot, vel := model.Vec3From(req.Pos), model.RotationFrom(req.Rot), model.Vec3From(req.Vel)
	if err := g.Presence.UpdatePosition(s.PlayerID, pos, rot, vel, req.Moving); err != nil {
		if errors.Is(err, model.ErrMovement) {
			if cur, ok := g.Players.Get(s.PlayerID); ok {
				g.Hub.Send(s.PlayerID, protocol.TypeMoveRejected, protocol.PlayerMovedMsg{
					ID:  s.PlayerID,
					Pos: cur.Position.Array(),
					Rot: cur.Rotation.Array(),
				})
			}
		}
		return err
	}
	_, err := g.Players.Update(s.PlayerID, func(p *model.PlayerState) error {
		p.Position, p.Rotation, p.Velocity = pos, rot, vel
		return nil
	})
	return err
}

func (g *Game) handleGuildAction(_ context.Context, s *registry.Session, req protocol.GuildActionReq) error {
	var err error
	switch req.Action {
	case protocol.GuildActionCreate:
		_, err = g.Guilds.Create(s.PlayerID, req.Name)
	case protocol.GuildActionInvite:
		_, err = g.Guilds.Invite(s.PlayerID, req.PlayerID)
	case protocol.GuildActionLeave:
		err = g.Guilds.Leave(s.PlayerID)
	case protocol.GuildActionSetRank:
		_, err = g.Guilds.SetRank(s.PlayerID, req.PlayerID, req.Rank)
	default:
		err = model.ValidationError("unknown guild action: " + req.Action)
	}
	return err
}

func (g *Game) handleTrade(ctx context.Context, s *registry.Session, req protocol.TradeReq) error {
	var err error
	switch req.Action {
	case "", protocol.TradeActionOpen:
		_, err = g.Trades.Request(s.PlayerID, req.PlayerID)
	case protocol.TradeActionOffer:
		_, err = g.Trades.StageOffer(g.tradeID(s.PlayerID, req.TradeID), s.PlayerID, req.Items, req.Gold)
	case protocol.TradeActionConfirm:
		_, err = g.Trades.Confirm(ctx, g.tradeID(s.PlayerID, req.TradeID), s.PlayerID)
	case protocol.TradeActionCancel:
		err = g.Trades.Cancel(g.tradeID(s.PlayerID, req.TradeID), s.PlayerID)
	default:
		err = model.ValidationError("unknown trade action: " + req.Action)
	}
	return err
}

// tradeID defaults to the player's open trade when the client omits it.
func (g *Game) tradeID(playerID, id string) string {
	if id != "" {
		return id
	}
	active, _ := g.Trades.Active(playerID)
	return active
}
