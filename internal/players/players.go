// Package players owns the live PlayerState of every online player.
package players

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"realmsync.io/internal/model"
	"realmsync.io/internal/store"
)

// Starter describes what a player receives on first login.
type Starter struct {
	Gold int64
	// Items are item kinds; each player receives its own instance "<kind>#<playerID>".
	Items []string
}

// Directory is the single owner of online PlayerStates. Inventories change
// only through Update and Transfer.
type Directory struct {
	store   store.Store
	starter Starter
	logger  *log.Logger
	now     func() time.Time

	mu   sync.Mutex
	live map[string]*model.PlayerState
}

func New(st store.Store, starter Starter, logger *log.Logger) *Directory {
	if logger == nil {
		logger = log.Default()
	}
	return &Directory{
		store:   st,
		starter: starter,
		logger:  logger,
		now:     time.Now,
		live:    map[string]*model.PlayerState{},
	}
}

// Load brings a player online, creating its state on first login.
func (d *Directory) Load(ctx context.Context, id model.Identity) (model.PlayerState, error) {
	p, err := d.store.LoadPlayer(ctx, id.PlayerID)
	switch {
	case errors.Is(err, model.ErrPlayerNotFound):
		p = d.fresh(id)
		if err := d.store.SavePlayer(ctx, p); err != nil {
			return model.PlayerState{}, fmt.Errorf("save new player: %w", err)
		}
	case err != nil:
		return model.PlayerState{}, fmt.Errorf("load player: %w", err)
	}
	if id.Username != "" {
		p.Username = id.Username
	}
	p.Items = model.NormalizeItems(p.Items)
	p.Online = true
	p.UpdatedAt = d.now().UTC()

	d.mu.Lock()
	d.live[p.ID] = &p
	out := p.Clone()
	d.mu.Unlock()
	return out, nil
}

func (d *Directory) fresh(id model.Identity) model.PlayerState {
	p := model.NewPlayerState(id.PlayerID, id.Username)
	p.Gold = d.starter.Gold
	items := make([]string, 0, len(d.starter.Items))
	for _, kind := range d.starter.Items {
		items = append(items, kind+"#"+id.PlayerID)
	}
	p.Items = model.NormalizeItems(items)
	p.UpdatedAt = d.now().UTC()
	return p
}

// Get returns a copy of the live state.
func (d *Directory) Get(id string) (model.PlayerState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.live[id]
	if !ok {
		return model.PlayerState{}, false
	}
	return p.Clone(), true
}

func (d *Directory) Online(id string) bool {
	d.mu.Lock()
	_, ok := d.live[id]
	d.mu.Unlock()
	return ok
}

// Username returns the live display name, or "" if offline.
func (d *Directory) Username(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.live[id]; ok {
		return p.Username
	}
	return ""
}

func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// IDs returns the online player ids sorted.
func (d *Directory) IDs() []string {
	d.mu.Lock()
	out := make([]string, 0, len(d.live))
	for id := range d.live {
		out = append(out, id)
	}
	d.mu.Unlock()
	sort.Strings(out)
	return out
}

// Update applies fn to the live state; an error from fn leaves it unchanged.
func (d *Directory) Update(id string, fn func(p *model.PlayerState) error) (model.PlayerState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.live[id]
	if !ok {
		return model.PlayerState{}, model.Wrap(model.ErrInvalidTarget, "player offline")
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.PlayerState{}, err
	}
	next.UpdatedAt = d.now().UTC()
	*cur = next
	return next.Clone(), nil
}

// Offer is one side of a transfer.
type Offer struct {
	Items []string
	Gold  int64
}

// CanAfford reports whether id currently holds offer.
func (d *Directory) CanAfford(id string, offer Offer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.live[id]
	if !ok {
		return model.Wrap(model.ErrInvalidTarget, "player offline")
	}
	return affordable(p, offer)
}

func affordable(p *model.PlayerState, offer Offer) error {
	if offer.Gold < 0 {
		return model.ValidationError("gold must be >= 0")
	}
	if offer.Gold > p.Gold {
		return model.Wrap(model.ErrNoResource, "not enough gold")
	}
	if !p.HasItems(offer.Items) {
		return model.Wrap(model.ErrNoResource, "missing items")
	}
	return nil
}

// Transfer swaps offerA from a to b and offerB from b to a. Both sides are
// checked before either is touched; on error nothing changes.
func (d *Directory) Transfer(a, b string, offerA, offerB Offer) (model.PlayerState, model.PlayerState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pa, okA := d.live[a]
	pb, okB := d.live[b]
	if !okA || !okB {
		return model.PlayerState{}, model.PlayerState{}, model.Wrap(model.ErrInvalidTarget, "trader offline")
	}
	if err := affordable(pa, offerA); err != nil {
		return model.PlayerState{}, model.PlayerState{}, fmt.Errorf("%s: %w", a, err)
	}
	if err := affordable(pb, offerB); err != nil {
		return model.PlayerState{}, model.PlayerState{}, fmt.Errorf("%s: %w", b, err)
	}

	now := d.now().UTC()
	na, nb := pa.Clone(), pb.Clone()
	na.RemoveItems(offerA.Items)
	nb.RemoveItems(offerB.Items)
	na.AddItems(offerB.Items)
	nb.AddItems(offerA.Items)
	na.Gold += offerB.Gold - offerA.Gold
	nb.Gold += offerA.Gold - offerB.Gold
	na.UpdatedAt, nb.UpdatedAt = now, now
	*pa, *pb = na, nb
	return na.Clone(), nb.Clone(), nil
}

// Save persists the live state of id.
func (d *Directory) Save(ctx context.Context, id string) error {
	p, ok := d.Get(id)
	if !ok {
		return nil
	}
	return d.store.SavePlayer(ctx, p)
}

// Unload takes a player offline and persists its final state.
func (d *Directory) Unload(ctx context.Context, id string) error {
	d.mu.Lock()
	p, ok := d.live[id]
	if ok {
		delete(d.live, id)
	}
	d.mu.Unlock()
	if !ok {
		return nil
	}
	final := p.Clone()
	final.Online = false
	final.Velocity = model.Vec3{}
	if err := d.store.SavePlayer(ctx, final); err != nil {
		d.logger.Printf("save %s on unload: %v", id, err)
		return err
	}
	return nil
}

// SaveAll persists every online player. Used on shutdown.
func (d *Directory) SaveAll(ctx context.Context) error {
	var errs []error
	for _, id := range d.IDs() {
		if err := d.Save(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
