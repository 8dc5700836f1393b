// Package guild implements persistent-for-the-process player organisations
// with a configurable rank ladder.
package guild

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"realmsync.io/internal/audit"
	"realmsync.io/internal/fanout"
	"realmsync.io/internal/model"
	"realmsync.io/internal/players"
	"realmsync.io/internal/protocol"
)

// Reasons carried by guild_left.
const (
	ReasonLeft      = "left"
	ReasonDissolved = "dissolved"
)

type OnlineChecker interface {
	Online(playerID string) bool
}

type Config struct {
	// Ranks from highest to lowest.
	Ranks      []string
	MaxNameLen int
}

type member struct {
	id       string
	username string
	rank     int
	seq      uint64
}

type guild struct {
	id      string
	name    string
	level   int
	members map[string]*member
}

// Invite is a pending offer to join a guild.
type Invite struct {
	ID      string
	GuildID string
	From    string
	Target  string
}

type Service struct {
	cfg    Config
	hub    *fanout.Hub
	dir    *players.Directory
	online OnlineChecker
	audit  audit.Logger
	logger *log.Logger
	now    func() time.Time

	mu         sync.Mutex
	guilds     map[string]*guild
	byName     map[string]string
	byPlayer   map[string]string
	invites    map[string]*Invite
	nextGuild  uint64
	nextInvite uint64
	seq        uint64
}

func New(cfg Config, hub *fanout.Hub, dir *players.Directory, online OnlineChecker, al audit.Logger, logger *log.Logger) *Service {
	if len(cfg.Ranks) < 2 {
		cfg.Ranks = []string{"leader", "officer", "member"}
	}
	if al == nil {
		al = audit.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:      cfg,
		hub:      hub,
		dir:      dir,
		online:   online,
		audit:    al,
		logger:   logger,
		now:      time.Now,
		guilds:   map[string]*guild{},
		byName:   map[string]string{},
		byPlayer: map[string]string{},
		invites:  map[string]*Invite{},
	}
}

func (s *Service) lowestRank() int { return len(s.cfg.Ranks) - 1 }

func (s *Service) rankIndex(name string) (int, bool) {
	for i, r := range s.cfg.Ranks {
		if r == name {
			return i, true
		}
	}
	return 0, false
}

// Create founds a guild with playerID at the top rank.
func (s *Service) Create(playerID, name string) (protocol.GuildSnapshot, error) {
	if !ValidateName(name, s.cfg.MaxNameLen) {
		return protocol.GuildSnapshot{}, model.ValidationError("invalid guild name")
	}
	name = NormalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPlayer[playerID]; ok {
		return protocol.GuildSnapshot{}, model.Wrap(model.ErrAlreadyGuilded, "already in a guild")
	}
	key := nameKey(name)
	if _, taken := s.byName[key]; taken {
		return protocol.GuildSnapshot{}, model.Wrap(model.ErrNameTaken, "guild name is taken")
	}

	s.nextGuild++
	g := &guild{id: fmt.Sprintf("G%06d", s.nextGuild), name: name, level: 1, members: map[string]*member{}}
	s.guilds[g.id] = g
	s.byName[key] = g.id
	s.addMemberLocked(g, playerID, 0)
	s.expireInvitesToLocked(playerID)

	s.writeAudit(audit.Entry{
		At:     s.now().UTC(),
		Kind:   audit.KindGuildCreated,
		Actor:  playerID,
		Fields: map[string]any{"guild_id": g.id, "name": g.name},
	})

	snap := s.snapshotLocked(g)
	s.hub.Send(playerID, protocol.TypeGuildCreated, snap)
	return snap, nil
}

func (s *Service) addMemberLocked(g *guild, playerID string, rank int) {
	s.seq++
	g.members[playerID] = &member{id: playerID, username: s.dir.Username(playerID), rank: rank, seq: s.seq}
	s.byPlayer[playerID] = g.id
}

// Invite offers target membership. Every rank but the lowest may invite.
func (s *Service) Invite(inviterID, targetID string) (Invite, error) {
	if inviterID == targetID {
		return Invite{}, model.InvalidTarget("cannot invite yourself")
	}
	if !s.online.Online(targetID) {
		return Invite{}, model.InvalidTarget("player is offline")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	gid, ok := s.byPlayer[inviterID]
	if !ok {
		return Invite{}, model.NotFound("not in a guild")
	}
	g := s.guilds[gid]
	if g.members[inviterID].rank >= s.lowestRank() {
		return Invite{}, model.PermissionError("your rank cannot invite")
	}
	if _, busy := s.byPlayer[targetID]; busy {
		return Invite{}, model.Wrap(model.ErrAlreadyGuilded, "player is already in a guild")
	}
	for _, inv := range s.invites {
		if inv.GuildID == gid && inv.Target == targetID {
			return Invite{}, model.Wrap(model.ErrDuplicateInvite, "player already invited")
		}
	}

	s.nextInvite++
	inv := &Invite{ID: fmt.Sprintf("GI%06d", s.nextInvite), GuildID: gid, From: inviterID, Target: targetID}
	s.invites[inv.ID] = inv
	msg := protocol.GuildInviteMsg{InviteID: inv.ID, GuildID: gid, GuildName: g.name, From: inviterID}
	s.hub.Send(targetID, protocol.TypeGuildInvited, msg)
	msg.Target = targetID
	s.hub.Send(inviterID, protocol.TypeGuildInviteSent, msg)
	return *inv, nil
}

// Accept joins target at the lowest rank. A player who joined another guild
// in the meantime is refused rather than moved.
func (s *Service) Accept(targetID, inviteID string) (protocol.GuildSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[inviteID]
	if !ok || inv.Target != targetID {
		return protocol.GuildSnapshot{}, model.NotFound("invite not found")
	}
	delete(s.invites, inviteID)
	g, ok := s.guilds[inv.GuildID]
	if !ok {
		return protocol.GuildSnapshot{}, model.Wrap(model.ErrStale, "guild no longer exists")
	}
	if _, busy := s.byPlayer[targetID]; busy {
		return protocol.GuildSnapshot{}, model.Wrap(model.ErrAlreadyGuilded, "already in a guild")
	}

	s.addMemberLocked(g, targetID, s.lowestRank())
	s.expireInvitesToLocked(targetID)

	snap := s.snapshotLocked(g)
	s.hub.Send(targetID, protocol.TypeGuildJoined, snap)
	s.hub.Fanout(fanout.Members(s.memberIDsLocked(g)...), protocol.TypeGuildUpdated, snap)
	return snap, nil
}

func (s *Service) Decline(targetID, inviteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[inviteID]
	if !ok || inv.Target != targetID {
		return model.NotFound("invite not found")
	}
	delete(s.invites, inviteID)
	s.hub.Send(inv.From, protocol.TypeGuildInviteDecline, protocol.GuildInviteMsg{
		InviteID: inv.ID, GuildID: inv.GuildID, From: inv.From, Target: targetID,
	})
	return nil
}

// Leave removes playerID. A departing leader hands the top rank over; an
// empty guild is dissolved.
func (s *Service) Leave(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gid, ok := s.byPlayer[playerID]
	if !ok {
		return model.NotFound("not in a guild")
	}
	g := s.guilds[gid]
	wasLeader := g.members[playerID].rank == 0
	delete(g.members, playerID)
	delete(s.byPlayer, playerID)
	s.hub.Send(playerID, protocol.TypeGuildLeft, protocol.GuildLeftMsg{GuildID: gid, Reason: ReasonLeft})

	if len(g.members) == 0 {
		s.dissolveLocked(g, playerID)
		s.hub.Send(playerID, protocol.TypeGuildDisbanded, protocol.GuildLeftMsg{GuildID: gid, Reason: ReasonDissolved})
		return nil
	}
	if wasLeader {
		cands := make([]candidate, 0, len(g.members))
		for _, m := range g.members {
			cands = append(cands, candidate{id: m.id, rank: m.rank, seq: m.seq})
		}
		g.members[selectNextLeader(cands)].rank = 0
	}
	s.hub.Fanout(fanout.Members(s.memberIDsLocked(g)...), protocol.TypeGuildUpdated, s.snapshotLocked(g))
	return nil
}

func (s *Service) dissolveLocked(g *guild, actor string) {
	delete(s.guilds, g.id)
	delete(s.byName, nameKey(g.name))
	for _, id := range s.sortedInviteIDsLocked() {
		inv := s.invites[id]
		if inv.GuildID != g.id {
			continue
		}
		delete(s.invites, id)
		s.hub.Send(inv.Target, protocol.TypeGuildInviteExpired, protocol.GuildInviteMsg{
			InviteID: inv.ID, GuildID: inv.GuildID, GuildName: g.name, From: inv.From, Target: inv.Target,
		})
	}
	s.writeAudit(audit.Entry{
		At:     s.now().UTC(),
		Kind:   audit.KindGuildDissolved,
		Actor:  actor,
		Fields: map[string]any{"guild_id": g.id, "name": g.name},
	})
}

func (s *Service) writeAudit(e audit.Entry) {
	if err := s.audit.WriteAudit(e); err != nil {
		s.logger.Printf("audit %s %v: %v", e.Kind, e.Fields["guild_id"], err)
	}
}

// SetRank changes target's rank. The actor must outrank both the target's
// current rank and the new one.
func (s *Service) SetRank(actorID, targetID, rank string) (protocol.GuildSnapshot, error) {
	newRank, ok := s.rankIndex(rank)
	if !ok {
		return protocol.GuildSnapshot{}, model.ValidationError("unknown rank: " + rank)
	}
	if actorID == targetID {
		return protocol.GuildSnapshot{}, model.InvalidTarget("cannot change your own rank")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	gid, ok := s.byPlayer[actorID]
	if !ok {
		return protocol.GuildSnapshot{}, model.NotFound("not in a guild")
	}
	g := s.guilds[gid]
	target, ok := g.members[targetID]
	if !ok {
		return protocol.GuildSnapshot{}, model.InvalidTarget("player is not in your guild")
	}
	actor := g.members[actorID]
	if actor.rank >= target.rank || actor.rank >= newRank {
		return protocol.GuildSnapshot{}, model.PermissionError("insufficient rank")
	}
	target.rank = newRank
	snap := s.snapshotLocked(g)
	s.hub.Fanout(fanout.Members(s.memberIDsLocked(g)...), protocol.TypeGuildUpdated, snap)
	return snap, nil
}

// Connect refreshes a returning member and shows them online to the guild.
func (s *Service) Connect(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gid, ok := s.byPlayer[playerID]
	if !ok {
		return
	}
	g := s.guilds[gid]
	if name := s.dir.Username(playerID); name != "" {
		g.members[playerID].username = name
	}
	s.hub.Fanout(fanout.Members(s.memberIDsLocked(g)...), protocol.TypeGuildUpdated, s.snapshotLocked(g))
}

// Disconnect expires invites involving the player. Membership is kept and
// the guild sees the member go offline.
func (s *Service) Disconnect(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.sortedInviteIDsLocked() {
		inv := s.invites[id]
		var notify string
		switch playerID {
		case inv.Target:
			notify = inv.From
		case inv.From:
			notify = inv.Target
		default:
			continue
		}
		delete(s.invites, id)
		s.hub.Send(notify, protocol.TypeGuildInviteExpired, protocol.GuildInviteMsg{
			InviteID: inv.ID, GuildID: inv.GuildID, From: inv.From, Target: inv.Target,
		})
	}
	if gid, ok := s.byPlayer[playerID]; ok {
		g := s.guilds[gid]
		s.hub.Fanout(fanout.Members(s.memberIDsLocked(g)...).Except(playerID), protocol.TypeGuildUpdated, s.snapshotLocked(g))
	}
}

func (s *Service) expireInvitesToLocked(targetID string) {
	for _, id := range s.sortedInviteIDsLocked() {
		inv := s.invites[id]
		if inv.Target != targetID {
			continue
		}
		delete(s.invites, id)
		s.hub.Send(inv.From, protocol.TypeGuildInviteExpired, protocol.GuildInviteMsg{
			InviteID: inv.ID, GuildID: inv.GuildID, From: inv.From, Target: inv.Target,
		})
	}
}

func (s *Service) sortedInviteIDsLocked() []string {
	ids := make([]string, 0, len(s.invites))
	for id := range s.invites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) memberIDsLocked(g *guild) []string {
	out := make([]string, 0, len(g.members))
	for id := range g.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Service) snapshotLocked(g *guild) protocol.GuildSnapshot {
	ms := make([]*member, 0, len(g.members))
	for _, m := range g.members {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].rank != ms[j].rank {
			return ms[i].rank < ms[j].rank
		}
		return ms[i].seq < ms[j].seq
	})
	snap := protocol.GuildSnapshot{
		ID:      g.id,
		Name:    g.name,
		Level:   g.level,
		Ranks:   append([]string(nil), s.cfg.Ranks...),
		Members: make([]protocol.GuildMember, 0, len(ms)),
	}
	for _, m := range ms {
		snap.Members = append(snap.Members, protocol.GuildMember{
			ID:       m.id,
			Username: m.username,
			Rank:     s.cfg.Ranks[m.rank],
			Online:   s.online.Online(m.id),
		})
	}
	return snap
}

// GuildOf returns the guild a player belongs to.
func (s *Service) GuildOf(playerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gid, ok := s.byPlayer[playerID]
	return gid, ok
}

// Members lists every member id, online or not.
func (s *Service) Members(guildID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return nil
	}
	return s.memberIDsLocked(g)
}

func (s *Service) Snapshot(guildID string) (protocol.GuildSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return protocol.GuildSnapshot{}, false
	}
	return s.snapshotLocked(g), true
}

// Counts reports guilds and pending invites, for metrics.
func (s *Service) Counts() (guilds, invites int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.guilds), len(s.invites)
}
