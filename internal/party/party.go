// Package party implements small ad-hoc groups with a single leader.
package party

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"realmsync.io/internal/fanout"
	"realmsync.io/internal/model"
	"realmsync.io/internal/players"
	"realmsync.io/internal/protocol"
)

// Reasons carried by party_left.
const (
	ReasonLeft         = "left"
	ReasonKicked       = "kicked"
	ReasonDisconnected = "disconnected"
)

type member struct {
	id  string
	seq uint64
}

type party struct {
	id      string
	leader  string
	members []member // join order
}

func (p *party) has(id string) bool {
	for _, m := range p.members {
		if m.id == id {
			return true
		}
	}
	return false
}

func (p *party) ids() []string {
	out := make([]string, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m.id)
	}
	return out
}

// Invite is a pending offer to join a party.
type Invite struct {
	ID      string
	PartyID string
	From    string
	Target  string
}

// Service owns every party and invite behind one mutex. Events are queued
// while the mutex is held so members see mutations in order.
type Service struct {
	maxSize int
	hub     *fanout.Hub
	dir     *players.Directory
	logger  *log.Logger

	mu         sync.Mutex
	parties    map[string]*party
	byPlayer   map[string]string
	invites    map[string]*Invite
	nextParty  uint64
	nextInvite uint64
	seq        uint64
}

func New(maxSize int, hub *fanout.Hub, dir *players.Directory, logger *log.Logger) *Service {
	if maxSize < 2 {
		maxSize = 5
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		maxSize:  maxSize,
		hub:      hub,
		dir:      dir,
		logger:   logger,
		parties:  map[string]*party{},
		byPlayer: map[string]string{},
		invites:  map[string]*Invite{},
	}
}

// Create makes a new party led by playerID.
func (s *Service) Create(playerID string) (protocol.PartySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPlayer[playerID]; ok {
		return protocol.PartySnapshot{}, model.Wrap(model.ErrAlreadyInParty, "already in a party")
	}
	s.nextParty++
	p := &party{id: fmt.Sprintf("P%06d", s.nextParty), leader: playerID}
	s.addMemberLocked(p, playerID)
	s.parties[p.id] = p
	s.expireInvitesToLocked(playerID)

	snap := s.snapshotLocked(p)
	s.hub.Send(playerID, protocol.TypePartyCreated, snap)
	return snap, nil
}

func (s *Service) addMemberLocked(p *party, playerID string) {
	s.seq++
	p.members = append(p.members, member{id: playerID, seq: s.seq})
	s.byPlayer[playerID] = p.id
}

// Invite offers target a place in the inviter's party. Any member may invite.
func (s *Service) Invite(inviterID, targetID string) (Invite, error) {
	if inviterID == targetID {
		return Invite{}, model.InvalidTarget("cannot invite yourself")
	}
	if !s.dir.Online(targetID) {
		return Invite{}, model.InvalidTarget("player is offline")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.byPlayer[inviterID]
	if !ok {
		return Invite{}, model.NotFound("not in a party")
	}
	p := s.parties[pid]
	if _, busy := s.byPlayer[targetID]; busy {
		return Invite{}, model.Wrap(model.ErrAlreadyInParty, "player is already in a party")
	}
	if len(p.members) >= s.maxSize {
		return Invite{}, model.Wrap(model.ErrPartyFull, "party is full")
	}
	for _, inv := range s.invites {
		if inv.PartyID == pid && inv.Target == targetID {
			return Invite{}, model.Wrap(model.ErrDuplicateInvite, "player already invited")
		}
	}

	s.nextInvite++
	inv := &Invite{ID: fmt.Sprintf("PI%06d", s.nextInvite), PartyID: pid, From: inviterID, Target: targetID}
	s.invites[inv.ID] = inv

	s.hub.Send(targetID, protocol.TypePartyInvited, protocol.PartyInviteMsg{
		InviteID: inv.ID,
		PartyID:  pid,
		From:     inviterID,
		Username: s.dir.Username(inviterID),
	})
	s.hub.Send(inviterID, protocol.TypePartyInviteSent, protocol.PartyInviteMsg{
		InviteID: inv.ID,
		PartyID:  pid,
		From:     inviterID,
		Target:   targetID,
	})
	return *inv, nil
}

// Accept joins target to the invite's party.
func (s *Service) Accept(targetID, inviteID string) (protocol.PartySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[inviteID]
	if !ok || inv.Target != targetID {
		return protocol.PartySnapshot{}, model.NotFound("invite not found")
	}
	p, ok := s.parties[inv.PartyID]
	if !ok {
		delete(s.invites, inviteID)
		return protocol.PartySnapshot{}, model.Wrap(model.ErrStale, "party no longer exists")
	}
	if _, busy := s.byPlayer[targetID]; busy {
		return protocol.PartySnapshot{}, model.Wrap(model.ErrAlreadyInParty, "already in a party")
	}
	if len(p.members) >= s.maxSize {
		delete(s.invites, inviteID)
		return protocol.PartySnapshot{}, model.Wrap(model.ErrPartyFull, "party is full")
	}

	delete(s.invites, inviteID)
	s.addMemberLocked(p, targetID)
	s.expireInvitesToLocked(targetID)

	snap := s.snapshotLocked(p)
	s.hub.Send(targetID, protocol.TypePartyJoined, snap)
	s.hub.Fanout(fanout.Members(p.ids()...), protocol.TypePartyUpdated, snap)
	return snap, nil
}

// Decline removes the invite and tells the inviter.
func (s *Service) Decline(targetID, inviteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[inviteID]
	if !ok || inv.Target != targetID {
		return model.NotFound("invite not found")
	}
	delete(s.invites, inviteID)
	s.hub.Send(inv.From, protocol.TypePartyInviteDecline, protocol.PartyInviteMsg{
		InviteID: inv.ID,
		PartyID:  inv.PartyID,
		From:     inv.From,
		Target:   targetID,
	})
	return nil
}

// Leave removes playerID from its party.
func (s *Service) Leave(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPlayer[playerID]; !ok {
		return model.NotFound("not in a party")
	}
	s.removeLocked(playerID, ReasonLeft)
	return nil
}

// Kick lets the leader remove another member.
func (s *Service) Kick(leaderID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.byPlayer[leaderID]
	if !ok {
		return model.NotFound("not in a party")
	}
	p := s.parties[pid]
	if p.leader != leaderID {
		return model.PermissionError("only the leader can kick")
	}
	if targetID == leaderID {
		return model.InvalidTarget("use party_leave to leave")
	}
	if !p.has(targetID) {
		return model.InvalidTarget("player is not in your party")
	}
	s.removeLocked(targetID, ReasonKicked)
	return nil
}

// removeLocked drops playerID from its party, hands over leadership to the
// member with the longest tenure and destroys an empty party.
func (s *Service) removeLocked(playerID, reason string) {
	pid := s.byPlayer[playerID]
	p := s.parties[pid]
	delete(s.byPlayer, playerID)
	for i, m := range p.members {
		if m.id == playerID {
			p.members = append(p.members[:i], p.members[i+1:]...)
			break
		}
	}
	s.hub.Send(playerID, protocol.TypePartyLeft, protocol.PartyLeftMsg{PartyID: pid, Reason: reason})

	if len(p.members) == 0 {
		delete(s.parties, pid)
		s.expirePartyInvitesLocked(pid)
		s.hub.Send(playerID, protocol.TypePartyDisbanded, protocol.PartyLeftMsg{PartyID: pid, Reason: reason})
		return
	}
	if p.leader == playerID {
		p.leader = nextLeader(p.members)
	}
	s.hub.Fanout(fanout.Members(p.ids()...), protocol.TypePartyUpdated, s.snapshotLocked(p))
}

// nextLeader picks the member who joined first.
func nextLeader(members []member) string {
	best := members[0]
	for _, m := range members[1:] {
		if m.seq < best.seq {
			best = m
		}
	}
	return best.id
}

func (s *Service) expireInvitesToLocked(targetID string) {
	for _, id := range s.sortedInviteIDsLocked() {
		inv := s.invites[id]
		if inv.Target != targetID {
			continue
		}
		delete(s.invites, id)
		s.hub.Send(inv.From, protocol.TypePartyInviteExpired, protocol.PartyInviteMsg{
			InviteID: inv.ID, PartyID: inv.PartyID, From: inv.From, Target: inv.Target,
		})
	}
}

func (s *Service) expirePartyInvitesLocked(partyID string) {
	for _, id := range s.sortedInviteIDsLocked() {
		inv := s.invites[id]
		if inv.PartyID != partyID {
			continue
		}
		delete(s.invites, id)
		s.hub.Send(inv.Target, protocol.TypePartyInviteExpired, protocol.PartyInviteMsg{
			InviteID: inv.ID, PartyID: inv.PartyID, From: inv.From, Target: inv.Target,
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

// Disconnect expires every invite involving the player, then removes it from
// its party.
func (s *Service) Disconnect(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.sortedInviteIDsLocked() {
		inv := s.invites[id]
		switch playerID {
		case inv.Target:
			delete(s.invites, id)
			s.hub.Send(inv.From, protocol.TypePartyInviteExpired, protocol.PartyInviteMsg{
				InviteID: inv.ID, PartyID: inv.PartyID, From: inv.From, Target: inv.Target,
			})
		case inv.From:
			delete(s.invites, id)
			s.hub.Send(inv.Target, protocol.TypePartyInviteExpired, protocol.PartyInviteMsg{
				InviteID: inv.ID, PartyID: inv.PartyID, From: inv.From, Target: inv.Target,
			})
		}
	}
	if _, ok := s.byPlayer[playerID]; ok {
		s.removeLocked(playerID, ReasonDisconnected)
	}
}

// PartyOf returns the party a player belongs to.
func (s *Service) PartyOf(playerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.byPlayer[playerID]
	return pid, ok
}

// Members lists a party's members in join order.
func (s *Service) Members(partyID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[partyID]
	if !ok {
		return nil
	}
	return p.ids()
}

func (s *Service) Snapshot(partyID string) (protocol.PartySnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[partyID]
	if !ok {
		return protocol.PartySnapshot{}, false
	}
	return s.snapshotLocked(p), true
}

// Refresh rebroadcasts the snapshot of playerID's party, e.g. after a health change.
func (s *Service) Refresh(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pid, ok := s.byPlayer[playerID]; ok {
		p := s.parties[pid]
		s.hub.Fanout(fanout.Members(p.ids()...), protocol.TypePartyUpdated, s.snapshotLocked(p))
	}
}

func (s *Service) snapshotLocked(p *party) protocol.PartySnapshot {
	snap := protocol.PartySnapshot{
		ID:       p.id,
		LeaderID: p.leader,
		MaxSize:  s.maxSize,
		Members:  make([]protocol.PartyMember, 0, len(p.members)),
	}
	for _, m := range p.members {
		pm := protocol.PartyMember{ID: m.id}
		if st, ok := s.dir.Get(m.id); ok {
			pm.Username, pm.Level, pm.Health = st.Username, st.Level, st.Health
		}
		snap.Members = append(snap.Members, pm)
	}
	return snap
}

// Counts reports parties and pending invites, for metrics.
func (s *Service) Counts() (parties, invites int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parties), len(s.invites)
}
