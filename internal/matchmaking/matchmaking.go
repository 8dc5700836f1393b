// Package matchmaking queues players by queue type and forms matches on a
// periodic pass.
package matchmaking

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"realmsync.io/internal/audit"
	"realmsync.io/internal/fanout"
	"realmsync.io/internal/model"
	"realmsync.io/internal/protocol"
)

const ReasonLeft = "left"

type Config struct {
	// Queues maps queue type to the number of players a match needs.
	Queues   map[string]int
	Interval time.Duration
}

type ticket struct {
	playerID  string
	queueType string
	at        time.Time
}

// Match is a formed match. Teams split players by alternating enqueue order.
type Match struct {
	ID        string
	QueueType string
	Teams     [][]string
	FormedAt  time.Time
}

type Service struct {
	cfg    Config
	hub    *fanout.Hub
	audit  audit.Logger
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	tickets map[string]*ticket
	queues  map[string][]*ticket
	next    uint64
	formed  uint64
}

func New(cfg Config, hub *fanout.Hub, al audit.Logger, logger *log.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if al == nil {
		al = audit.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:     cfg,
		hub:     hub,
		audit:   al,
		logger:  logger,
		now:     time.Now,
		tickets: map[string]*ticket{},
		queues:  map[string][]*ticket{},
	}
}

// SetClock replaces the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Join queues playerID. A player holds at most one ticket.
func (s *Service) Join(playerID, queueType string) (protocol.MatchmakingJoinedMsg, error) {
	required, ok := s.cfg.Queues[queueType]
	if !ok {
		return protocol.MatchmakingJoinedMsg{}, model.Wrap(model.ErrQueueType, "unknown queue type: "+queueType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, queued := s.tickets[playerID]; queued {
		return protocol.MatchmakingJoinedMsg{}, model.Wrap(model.ErrAlreadyQueued, "already queued for "+t.queueType)
	}
	t := &ticket{playerID: playerID, queueType: queueType, at: s.now()}
	s.tickets[playerID] = t
	s.queues[queueType] = append(s.queues[queueType], t)

	msg := protocol.MatchmakingJoinedMsg{QueueType: queueType, Depth: len(s.queues[queueType]), Required: required}
	s.hub.Send(playerID, protocol.TypeMatchmakingJoined, msg)
	return msg, nil
}

// Leave drops playerID's ticket. Leaving without a ticket is not an error.
func (s *Service) Leave(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := protocol.MatchmakingLeftMsg{Reason: ReasonLeft}
	if t, ok := s.tickets[playerID]; ok {
		s.removeLocked(t)
		msg.QueueType = t.queueType
	}
	s.hub.Send(playerID, protocol.TypeMatchmakingLeft, msg)
}

// Disconnect drops playerID's ticket without notification.
func (s *Service) Disconnect(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tickets[playerID]; ok {
		s.removeLocked(t)
	}
}

func (s *Service) removeLocked(t *ticket) {
	delete(s.tickets, t.playerID)
	q := s.queues[t.queueType]
	for i, x := range q {
		if x == t {
			s.queues[t.queueType] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
}

// Status reports playerID's ticket.
func (s *Service) Status(playerID string) protocol.MatchmakingStatusMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[playerID]
	if !ok {
		return protocol.MatchmakingStatusMsg{}
	}
	return protocol.MatchmakingStatusMsg{
		Queued:    true,
		QueueType: t.queueType,
		WaitMS:    s.now().Sub(t.at).Milliseconds(),
		Depth:     len(s.queues[t.queueType]),
		Required:  s.cfg.Queues[t.queueType],
	}
}

// PairOnce forms as many matches as the queues allow, oldest tickets first.
// Matched tickets leave the queue in the same critical section that formed
// the match.
func (s *Service) PairOnce() []Match {
	s.mu.Lock()
	var matches []Match
	for _, qt := range s.queueTypes() {
		required := s.cfg.Queues[qt]
		if required <= 0 {
			continue
		}
		for len(s.queues[qt]) >= required {
			picked := s.queues[qt][:required]
			s.queues[qt] = append([]*ticket(nil), s.queues[qt][required:]...)

			s.next++
			m := Match{
				ID:        fmt.Sprintf("M%06d", s.next),
				QueueType: qt,
				Teams:     [][]string{{}, {}},
				FormedAt:  s.now().UTC(),
			}
			ids := make([]string, 0, required)
			for i, t := range picked {
				delete(s.tickets, t.playerID)
				m.Teams[i%2] = append(m.Teams[i%2], t.playerID)
				ids = append(ids, t.playerID)
			}
			s.formed++
			s.hub.Fanout(fanout.Members(ids...), protocol.TypeMatchFound, protocol.MatchFoundMsg{
				MatchID:   m.ID,
				QueueType: qt,
				Teams:     m.Teams,
			})
			matches = append(matches, m)
		}
	}
	s.mu.Unlock()

	for _, m := range matches {
		err := s.audit.WriteAudit(audit.Entry{
			At:     m.FormedAt,
			Kind:   audit.KindMatchFormed,
			Fields: map[string]any{"match_id": m.ID, "queue_type": m.QueueType, "teams": m.Teams},
		})
		if err != nil {
			s.logger.Printf("audit %s: %v", m.ID, err)
		}
	}
	return matches
}

func (s *Service) queueTypes() []string {
	out := make([]string, 0, len(s.cfg.Queues))
	for qt := range s.cfg.Queues {
		out = append(out, qt)
	}
	sort.Strings(out)
	return out
}

// Run pairs on every tick until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ms := s.PairOnce(); len(ms) > 0 {
				s.logger.Printf("formed %d match(es)", len(ms))
			}
		}
	}
}

type Stats struct {
	Depth   map[string]int
	Tickets int
	Formed  uint64
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Depth: map[string]int{}, Tickets: len(s.tickets), Formed: s.formed}
	for _, qt := range s.queueTypes() {
		st.Depth[qt] = len(s.queues[qt])
	}
	return st
}
