// Package trade runs two-party item and gold exchanges with explicit
// confirmation and an atomic commit.
package trade

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
	"realmsync.io/internal/players"
	"realmsync.io/internal/protocol"
)

// Reasons carried by trade_cancelled and trade_failed.
const (
	ReasonCancelled    = "cancelled"
	ReasonDeclined     = "declined"
	ReasonDisconnected = "disconnected"
	ReasonNoResource   = "insufficient_resources"
)

type Config struct {
	// MaxDistance limits how far apart the players may be when opening (0 = anywhere).
	MaxDistance float64
	MaxItems    int
}

// RangeChecker is satisfied by the presence index.
type RangeChecker interface {
	Within(a, b string, d float64) bool
}

type session struct {
	id     string
	a, b   string
	offerA players.Offer
	offerB players.Offer
	state  State
}

func (t *session) side(playerID string) (*players.Offer, bool) {
	switch playerID {
	case t.a:
		return &t.offerA, true
	case t.b:
		return &t.offerB, true
	}
	return nil, false
}

func (t *session) other(playerID string) string {
	if playerID == t.a {
		return t.b
	}
	return t.a
}

type Service struct {
	cfg    Config
	hub    *fanout.Hub
	dir    *players.Directory
	rng    RangeChecker
	audit  audit.Logger
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	trades   map[string]*session
	byPlayer map[string]string
	next     uint64

	committed uint64
	failed    uint64
	cancelled uint64

	// pending tracks commit records still being written; see Flush.
	pmu     sync.Mutex
	pending map[uint64]chan struct{}
	nextRec uint64
}

func New(cfg Config, hub *fanout.Hub, dir *players.Directory, rng RangeChecker, al audit.Logger, logger *log.Logger) *Service {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 32
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
		rng:      rng,
		audit:    al,
		logger:   logger,
		now:      time.Now,
		trades:   map[string]*session{},
		byPlayer: map[string]string{},
		pending:  map[uint64]chan struct{}{},
	}
}

// Request opens a trade between a and b.
func (s *Service) Request(a, b string) (protocol.TradeSnapshot, error) {
	if a == b {
		return protocol.TradeSnapshot{}, model.InvalidTarget("cannot trade with yourself")
	}
	if !s.dir.Online(b) {
		return protocol.TradeSnapshot{}, model.InvalidTarget("player is offline")
	}
	if s.cfg.MaxDistance > 0 && s.rng != nil && !s.rng.Within(a, b, s.cfg.MaxDistance) {
		return protocol.TradeSnapshot{}, model.Wrap(model.ErrOutOfRange, "player is too far away")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.byPlayer[a]; busy {
		return protocol.TradeSnapshot{}, model.Wrap(model.ErrTradeActive, "you are already trading")
	}
	if _, busy := s.byPlayer[b]; busy {
		return protocol.TradeSnapshot{}, model.Wrap(model.ErrTradeActive, "player is already trading")
	}
	s.next++
	t := &session{id: fmt.Sprintf("TR%06d", s.next), a: a, b: b, state: StateNegotiating}
	s.trades[t.id] = t
	s.byPlayer[a] = t.id
	s.byPlayer[b] = t.id

	snap := snapshot(t)
	s.hub.Fanout(fanout.Members(a, b), protocol.TypeTradeStarted, snap)
	return snap, nil
}

func (s *Service) lookupLocked(tradeID, playerID string) (*session, error) {
	t, ok := s.trades[tradeID]
	if !ok {
		return nil, model.NotFound("trade not found")
	}
	if _, ok := t.side(playerID); !ok {
		return nil, model.PermissionError("not a participant")
	}
	return t, nil
}

// Accept acknowledges a trade opened against playerID.
func (s *Service) Accept(playerID, tradeID string) (protocol.TradeSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(tradeID, playerID)
	if err != nil {
		return protocol.TradeSnapshot{}, err
	}
	if playerID != t.b {
		return protocol.TradeSnapshot{}, model.PermissionError("only the invited player can accept")
	}
	snap := snapshot(t)
	s.hub.Fanout(fanout.Members(t.a, t.b), protocol.TypeTradeUpdated, snap)
	return snap, nil
}

// Decline cancels a trade opened against playerID.
func (s *Service) Decline(playerID, tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(tradeID, playerID)
	if err != nil {
		return err
	}
	if playerID != t.b {
		return model.PermissionError("only the invited player can decline")
	}
	return s.cancelLocked(t, playerID, ReasonDeclined, true)
}

// StageOffer replaces playerID's side of the trade. Ownership is checked now
// and again at commit. Both confirmations are cleared.
func (s *Service) StageOffer(tradeID, playerID string, items []string, gold int64) (protocol.TradeSnapshot, error) {
	items = model.NormalizeItems(items)
	if len(items) > s.cfg.MaxItems {
		return protocol.TradeSnapshot{}, model.ValidationError(fmt.Sprintf("at most %d items per offer", s.cfg.MaxItems))
	}
	offer := players.Offer{Items: items, Gold: gold}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(tradeID, playerID)
	if err != nil {
		return protocol.TradeSnapshot{}, err
	}
	next, err := transition(t.state, evStage)
	if err != nil {
		return protocol.TradeSnapshot{}, err
	}
	if err := s.dir.CanAfford(playerID, offer); err != nil {
		return protocol.TradeSnapshot{}, err
	}
	mine, _ := t.side(playerID)
	*mine = offer
	t.state = next

	snap := snapshot(t)
	s.hub.Fanout(fanout.Members(t.a, t.b), protocol.TypeTradeUpdated, snap)
	return snap, nil
}

type commitResult struct {
	t      *session
	pa, pb model.PlayerState
	err    error
}

// Confirm records playerID's agreement to the current offers. The second
// confirmation commits the exchange.
func (s *Service) Confirm(ctx context.Context, tradeID, playerID string) (protocol.TradeSnapshot, error) {
	s.mu.Lock()
	t, err := s.lookupLocked(tradeID, playerID)
	if err != nil {
		s.mu.Unlock()
		return protocol.TradeSnapshot{}, err
	}
	ev := evConfirmB
	if playerID == t.a {
		ev = evConfirmA
	}
	next, err := transition(t.state, ev)
	if err != nil {
		s.mu.Unlock()
		return protocol.TradeSnapshot{}, err
	}
	t.state = next
	if next != StateCommitting {
		snap := snapshot(t)
		s.hub.Fanout(fanout.Members(t.a, t.b), protocol.TypeTradeUpdated, snap)
		s.mu.Unlock()
		return snap, nil
	}

	res := s.commitLocked(t)
	snap := snapshot(t)
	s.mu.Unlock()

	s.recordAsync(context.WithoutCancel(ctx), res)
	return snap, res.err
}

// recordAsync keeps audit and store writes off the caller's read loop.
func (s *Service) recordAsync(ctx context.Context, res commitResult) {
	done := make(chan struct{})
	s.pmu.Lock()
	s.nextRec++
	id := s.nextRec
	s.pending[id] = done
	s.pmu.Unlock()

	go func() {
		defer func() {
			s.pmu.Lock()
			delete(s.pending, id)
			s.pmu.Unlock()
			close(done)
		}()
		s.record(ctx, res)
	}()
}

// Flush waits for every commit record started before the call.
func (s *Service) Flush() {
	s.pmu.Lock()
	waits := make([]chan struct{}, 0, len(s.pending))
	for _, ch := range s.pending {
		waits = append(waits, ch)
	}
	s.pmu.Unlock()
	for _, ch := range waits {
		<-ch
	}
}

func (s *Service) commitLocked(t *session) commitResult {
	pa, pb, err := s.dir.Transfer(t.a, t.b, t.offerA, t.offerB)
	s.removeLocked(t)
	if err != nil {
		t.state, _ = transition(t.state, evFailed)
		s.failed++
		msg := protocol.TradeClosedMsg{TradeID: t.id, Reason: ReasonNoResource}
		s.hub.Fanout(fanout.Members(t.a, t.b), protocol.TypeTradeFailed, msg)
		return commitResult{t: t, err: err}
	}
	t.state, _ = transition(t.state, evCommitted)
	s.committed++
	s.hub.Send(t.a, protocol.TypeTradeCompleted, completed(t.id, t.b, t.offerB, t.offerA, pa))
	s.hub.Send(t.b, protocol.TypeTradeCompleted, completed(t.id, t.a, t.offerA, t.offerB, pb))
	return commitResult{t: t, pa: pa, pb: pb}
}

// record writes the audit entry and persists both players outside the lock.
func (s *Service) record(ctx context.Context, res commitResult) {
	t := res.t
	fields := map[string]any{
		"trade_id": t.id,
		"a":        t.a,
		"b":        t.b,
		"a_items":  t.offerA.Items,
		"a_gold":   t.offerA.Gold,
		"b_items":  t.offerB.Items,
		"b_gold":   t.offerB.Gold,
	}
	kind := audit.KindTradeCommitted
	if res.err != nil {
		kind = audit.KindTradeFailed
		fields["error"] = res.err.Error()
	}
	if err := s.audit.WriteAudit(audit.Entry{At: s.now().UTC(), Kind: kind, Actor: t.a, Fields: fields}); err != nil {
		s.logger.Printf("audit %s: %v", t.id, err)
	}
	if res.err != nil {
		return
	}
	for _, id := range []string{t.a, t.b} {
		if err := s.dir.Save(ctx, id); err != nil {
			s.logger.Printf("save %s after trade %s: %v", id, t.id, err)
		}
	}
}

// Cancel aborts the trade on behalf of playerID.
func (s *Service) Cancel(tradeID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(tradeID, playerID)
	if err != nil {
		return err
	}
	return s.cancelLocked(t, playerID, ReasonCancelled, true)
}

// Disconnect cancels any trade playerID is part of.
func (s *Service) Disconnect(playerID string) {
	// The player's final save must not be overtaken by a commit save.
	s.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[playerID]
	if !ok {
		return
	}
	_ = s.cancelLocked(s.trades[id], playerID, ReasonDisconnected, false)
}

func (s *Service) cancelLocked(t *session, by, reason string, notifyCaller bool) error {
	next, err := transition(t.state, evCancel)
	if err != nil {
		return err
	}
	t.state = next
	s.cancelled++
	s.removeLocked(t)
	msg := protocol.TradeClosedMsg{TradeID: t.id, By: by, Reason: reason}
	r := fanout.Members(t.other(by))
	if notifyCaller {
		r = fanout.Members(t.a, t.b)
	}
	s.hub.Fanout(r, protocol.TypeTradeCancelled, msg)
	return nil
}

func (s *Service) removeLocked(t *session) {
	delete(s.trades, t.id)
	if s.byPlayer[t.a] == t.id {
		delete(s.byPlayer, t.a)
	}
	if s.byPlayer[t.b] == t.id {
		delete(s.byPlayer, t.b)
	}
}

// Active returns the id of playerID's open trade.
func (s *Service) Active(playerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[playerID]
	return id, ok
}

func (s *Service) Snapshot(tradeID string) (protocol.TradeSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[tradeID]
	if !ok {
		return protocol.TradeSnapshot{}, false
	}
	return snapshot(t), true
}

// Stats are cumulative counters plus the number of open trades.
type Stats struct {
	Open      int
	Committed uint64
	Failed    uint64
	Cancelled uint64
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Open: len(s.trades), Committed: s.committed, Failed: s.failed, Cancelled: s.cancelled}
}

// OpenIDs lists open trades in id order.
func (s *Service) OpenIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.trades))
	for id := range s.trades {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func snapshot(t *session) protocol.TradeSnapshot {
	return protocol.TradeSnapshot{
		ID:    t.id,
		State: string(t.state),
		A: protocol.TradeSide{
			PlayerID:  t.a,
			Items:     itemsOrEmpty(t.offerA.Items),
			Gold:      t.offerA.Gold,
			Confirmed: t.state == StateConfirmedA || t.state == StateCommitting || t.state == StateCommitted,
		},
		B: protocol.TradeSide{
			PlayerID:  t.b,
			Items:     itemsOrEmpty(t.offerB.Items),
			Gold:      t.offerB.Gold,
			Confirmed: t.state == StateConfirmedB || t.state == StateCommitting || t.state == StateCommitted,
		},
	}
}

func completed(tradeID, with string, in, out players.Offer, after model.PlayerState) protocol.TradeCompletedMsg {
	return protocol.TradeCompletedMsg{
		TradeID:      tradeID,
		With:         with,
		ItemsIn:      itemsOrEmpty(in.Items),
		GoldIn:       in.Gold,
		ItemsOut:     itemsOrEmpty(out.Items),
		GoldOut:      out.Gold,
		GoldBalance:  after.Gold,
		ItemsBalance: itemsOrEmpty(after.Items),
	}
}

func itemsOrEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return append([]string{}, items...)
}
