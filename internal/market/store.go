package market

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"market_engine/internal/domain"
)

// MaxTickFraction bounds one simulated tick: |new/old - 1| <= MaxTickFraction/2.
const MaxTickFraction = 0.002

// PerturbFunc computes a new row from the current one. It must be pure.
type PerturbFunc func(domain.Instrument) domain.Instrument

// TickerStore is the canonical instrument table plus market globals.
// Writes come from a single owner; readers always receive copies.
type TickerStore struct {
	mu      sync.RWMutex
	rows    map[string]domain.Instrument
	order   []string // ids in table order
	globals domain.MarketGlobals
}

// NewTickerStore creates an empty store.
func NewTickerStore() *TickerStore {
	return &TickerStore{
		rows: make(map[string]domain.Instrument),
	}
}

// ReplaceAll swaps the whole table atomically. Rows that fail validation are
// dropped. LastUpdated never moves backwards for an id that already exists.
// Returns the number of rows kept.
func (s *TickerStore) ReplaceAll(instruments []domain.Instrument) int {
	rows := make(map[string]domain.Instrument, len(instruments))
	order := make([]string, 0, len(instruments))

	s.mu.RLock()
	for _, in := range instruments {
		if in.Validate() != nil {
			continue
		}
		if _, dup := rows[in.ID]; dup {
			continue
		}
		if prev, ok := s.rows[in.ID]; ok && in.LastUpdated.Before(prev.LastUpdated) {
			in.LastUpdated = prev.LastUpdated
		}
		rows[in.ID] = in
		order = append(order, in.ID)
	}
	s.mu.RUnlock()

	s.mu.Lock()
	s.rows = rows
	s.order = order
	s.mu.Unlock()

	return len(order)
}

// Perturb applies fn to the listed rows and leaves every other row alone.
// Fields not produced by fn are preserved. A result with a non-positive
// price is discarded. Returns the number of rows changed.
func (s *TickerStore) Perturb(ids []string, fn PerturbFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, id := range ids {
		prev, ok := s.rows[id]
		if !ok {
			continue
		}
		next := fn(prev)
		next.ID = prev.ID
		if next.Validate() != nil {
			continue
		}
		if next.LastUpdated.Before(prev.LastUpdated) {
			next.LastUpdated = prev.LastUpdated
		}
		s.rows[id] = next
		changed++
	}
	return changed
}

// PerturbAll applies fn to every row.
func (s *TickerStore) PerturbAll(fn PerturbFunc) int {
	return s.Perturb(s.IDs(), fn)
}

// Get returns a copy of one row.
func (s *TickerStore) Get(id string) (domain.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.rows[id]
	return in, ok
}

// FindBySymbol returns the first row with the given symbol (case-sensitive).
func (s *TickerStore) FindBySymbol(symbol string) (domain.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if in := s.rows[id]; in.Symbol == symbol {
			return in, true
		}
	}
	return domain.Instrument{}, false
}

// List returns a copy of the table in table order.
func (s *TickerStore) List() []domain.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Instrument, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.rows[id])
	}
	return result
}

// ListBySymbol returns a copy sorted by symbol for consistent ordering.
func (s *TickerStore) ListBySymbol() []domain.Instrument {
	result := s.List()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// IDs returns the row ids in table order.
func (s *TickerStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...)
}

// Len returns the number of rows.
func (s *TickerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Globals returns the current market globals.
func (s *TickerStore) Globals() domain.MarketGlobals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globals
}

// ReplaceGlobals swaps the globals wholesale. Invalid payloads are ignored.
func (s *TickerStore) ReplaceGlobals(g domain.MarketGlobals) bool {
	if g.Validate() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals = g
	return true
}

// Clear drops every row and the globals.
func (s *TickerStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string]domain.Instrument)
	s.order = nil
	s.globals = domain.MarketGlobals{}
}

// RandomWalk returns the simulated-tick update: price *= 1 + (r-0.5)*0.002,
// rounded to 8 decimals, stamped with now. A nil rng uses the global source.
func RandomWalk(rng *rand.Rand, now time.Time) PerturbFunc {
	return func(in domain.Instrument) domain.Instrument {
		var r float64
		if rng != nil {
			r = rng.Float64()
		} else {
			r = rand.Float64()
		}
		f := (r - 0.5) * MaxTickFraction
		in.Price = domain.RoundPrice(in.Price * (1 + f))
		in.LastUpdated = now
		return in
	}
}
