// Package catalogtest provides an in-memory transactional catalog for tests.
package catalogtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/greenline/possync/internal/catalog"
)

// Store keeps catalog rows in memory. WithTx works on a copy of the state and
// only publishes it when the callback succeeds, mirroring a rolled back transaction.
type Store struct {
	mu    sync.Mutex
	state state
	clock func() time.Time

	// FailInsertPosID makes InsertItem/UpdateItem fail for the given pos id.
	FailInsertPosID string
	// Commits counts successful transactions.
	Commits int
}

type state struct {
	items   map[int64]catalog.Item
	pricing map[int64]catalog.Pricing
	tiers   map[int64]catalog.WeightTier
	nextID  int64
}

// ErrInjected is returned by FailInsertPosID.
var ErrInjected = errors.New("catalogtest: injected failure")

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		state: state{
			items:   map[int64]catalog.Item{},
			pricing: map[int64]catalog.Pricing{},
			tiers:   map[int64]catalog.WeightTier{},
		},
		clock: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func (s state) clone() state {
	out := state{
		items:   make(map[int64]catalog.Item, len(s.items)),
		pricing: make(map[int64]catalog.Pricing, len(s.pricing)),
		tiers:   make(map[int64]catalog.WeightTier, len(s.tiers)),
		nextID:  s.nextID,
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.pricing {
		out.pricing[k] = v
	}
	for k, v := range s.tiers {
		out.tiers[k] = v
	}
	return out
}

// WithTx runs fn against a working copy and commits it on success.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	s.mu.Lock()
	work := &tx{store: s, st: s.state.clone()}
	s.mu.Unlock()

	if err := fn(ctx, work); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = work.st
	s.Commits++
	return nil
}

// Seed inserts an item outside any transaction and returns it with its id.
func (s *Store) Seed(item catalog.Item) catalog.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextID++
	item.ID = s.state.nextID
	s.state.items[item.ID] = item
	return item
}

// Items returns all items of a location ordered by id.
func (s *Store) Items(locationID int64) []catalog.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Item
	for _, it := range s.state.items {
		if it.LocationID == locationID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LiveItems returns the non-deleted items of a location ordered by id.
func (s *Store) LiveItems(locationID int64) []catalog.Item {
	var out []catalog.Item
	for _, it := range s.Items(locationID) {
		if !it.Deleted {
			out = append(out, it)
		}
	}
	return out
}

// PricingFor returns the pricing record of an item.
func (s *Store) PricingFor(itemID int64) (catalog.Pricing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.state.pricing {
		if p.ItemID == itemID {
			return p, true
		}
	}
	return catalog.Pricing{}, false
}

// Tiers returns every tier of a pricing record ordered by id.
func (s *Store) Tiers(pricingID int64) []catalog.WeightTier {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.WeightTier
	for _, t := range s.state.tiers {
		if t.PricingID == pricingID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type tx struct {
	store *Store
	st    state
}

func (t *tx) id() int64 {
	t.st.nextID++
	return t.st.nextID
}

func (t *tx) SweepLocation(ctx context.Context, locationID, actorID int64) (int64, error) {
	var n int64
	for id, it := range t.st.items {
		if it.LocationID == locationID && !it.Deleted {
			it.Deleted = true
			it.UpdatedBy = actorID
			it.UpdatedAt = t.store.clock()
			t.st.items[id] = it
			n++
		}
	}
	return n, nil
}

func (t *tx) FindItem(ctx context.Context, locationID int64, posID string) (catalog.Item, error) {
	var found *catalog.Item
	for _, it := range t.st.items {
		if it.LocationID == locationID && it.PosID == posID {
			if found == nil || it.ID < found.ID {
				cp := it
				found = &cp
			}
		}
	}
	if found == nil {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return *found, nil
}

func (t *tx) InsertItem(ctx context.Context, it catalog.Item) (catalog.Item, error) {
	if t.store.FailInsertPosID != "" && it.PosID == t.store.FailInsertPosID {
		return catalog.Item{}, ErrInjected
	}
	it.ID = t.id()
	it.CreatedAt = t.store.clock()
	it.UpdatedAt = it.CreatedAt
	t.st.items[it.ID] = it
	return it, nil
}

func (t *tx) UpdateItem(ctx context.Context, it catalog.Item) (catalog.Item, error) {
	if t.store.FailInsertPosID != "" && it.PosID == t.store.FailInsertPosID {
		return catalog.Item{}, ErrInjected
	}
	if _, ok := t.st.items[it.ID]; !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	it.UpdatedAt = t.store.clock()
	t.st.items[it.ID] = it
	return it, nil
}

func (t *tx) FindPricing(ctx context.Context, itemID int64) (catalog.Pricing, error) {
	var found *catalog.Pricing
	for _, p := range t.st.pricing {
		if p.ItemID == itemID && (found == nil || p.ID < found.ID) {
			cp := p
			found = &cp
		}
	}
	if found == nil {
		return catalog.Pricing{}, catalog.ErrNotFound
	}
	return *found, nil
}

func (t *tx) InsertPricing(ctx context.Context, p catalog.Pricing) (catalog.Pricing, error) {
	p.ID = t.id()
	p.CreatedAt = t.store.clock()
	p.UpdatedAt = p.CreatedAt
	t.st.pricing[p.ID] = p
	return p, nil
}

func (t *tx) UpdatePricing(ctx context.Context, p catalog.Pricing) (catalog.Pricing, error) {
	if _, ok := t.st.pricing[p.ID]; !ok {
		return catalog.Pricing{}, catalog.ErrNotFound
	}
	p.UpdatedAt = t.store.clock()
	t.st.pricing[p.ID] = p
	return p, nil
}

func (t *tx) SweepTiers(ctx context.Context, pricingID int64) error {
	for id, tier := range t.st.tiers {
		if tier.PricingID == pricingID && !tier.Deleted {
			tier.Deleted = true
			t.st.tiers[id] = tier
		}
	}
	return nil
}

func (t *tx) FindTier(ctx context.Context, pricingID int64, posID string) (catalog.WeightTier, error) {
	var found *catalog.WeightTier
	for _, tier := range t.st.tiers {
		if tier.PricingID == pricingID && tier.PosID == posID && (found == nil || tier.ID < found.ID) {
			cp := tier
			found = &cp
		}
	}
	if found == nil {
		return catalog.WeightTier{}, catalog.ErrNotFound
	}
	return *found, nil
}

func (t *tx) InsertTier(ctx context.Context, tier catalog.WeightTier) (catalog.WeightTier, error) {
	tier.ID = t.id()
	tier.CreatedAt = t.store.clock()
	tier.UpdatedAt = tier.CreatedAt
	t.st.tiers[tier.ID] = tier
	return tier, nil
}

func (t *tx) UpdateTier(ctx context.Context, tier catalog.WeightTier) (catalog.WeightTier, error) {
	if _, ok := t.st.tiers[tier.ID]; !ok {
		return catalog.WeightTier{}, catalog.ErrNotFound
	}
	tier.UpdatedAt = t.store.clock()
	t.st.tiers[tier.ID] = tier
	return tier, nil
}
