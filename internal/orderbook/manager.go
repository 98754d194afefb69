package orderbook

import (
	"sort"
	"sync"

	"market_engine/internal/domain"
)

// Manager owns the order book and trade tape of the selected pair.
// Updates addressed to any other pair are dropped.
type Manager struct {
	mu   sync.RWMutex
	pair string
	book domain.OrderBook
	tape *Tape
}

// NewManager creates a manager with the given tape capacity.
func NewManager(tapeCapacity int) *Manager {
	return &Manager{
		tape: NewTape(tapeCapacity),
		book: emptyBook(""),
	}
}

func emptyBook(pair string) domain.OrderBook {
	return domain.OrderBook{PairID: pair, Asks: []domain.OrderBookLevel{}, Bids: []domain.OrderBookLevel{}}
}

// SwitchPair makes pairID the selected pair and drops the previous pair's
// book and tape. Returns the previous pair.
func (m *Manager) SwitchPair(pairID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.pair
	if prev == pairID {
		return prev
	}
	m.pair = pairID
	m.book = emptyBook(pairID)
	m.tape.Reset()
	return prev
}

// Pair returns the selected pair.
func (m *Manager) Pair() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair
}

// SetBook replaces the selected pair's book wholesale. Empty ladders stay
// empty. Returns false if pairID is not the selected pair.
func (m *Manager) SetBook(pairID string, book domain.OrderBook) bool {
	next := book.Clone()
	next.PairID = pairID
	next.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()

	if pairID != m.pair {
		return false
	}
	if next.UpdatedAt.Before(m.book.UpdatedAt) {
		next.UpdatedAt = m.book.UpdatedAt
	}
	m.book = next
	return true
}

// PrependTrades merges trades into the tape keeping it newest-first and
// truncated to capacity. Ids already on the tape are skipped. Returns the
// number of trades that made it onto the tape, or -1 if pairID is not the
// selected pair.
func (m *Manager) PrependTrades(pairID string, trades []domain.Trade) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pairID != m.pair {
		return -1
	}

	merged := m.tape.Newest()
	fresh := make(map[string]bool, len(trades))
	for _, tr := range trades {
		if tr.PairID == "" {
			tr.PairID = pairID
		}
		if tr.PairID != pairID || m.tape.Contains(tr.ID) || (tr.ID != "" && fresh[tr.ID]) {
			continue
		}
		if tr.ID != "" {
			fresh[tr.ID] = true
		}
		merged = append(merged, tr)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > m.tape.Cap() {
		merged = merged[:m.tape.Cap()]
	}

	added := 0
	for _, tr := range merged {
		if tr.ID != "" && fresh[tr.ID] {
			added++
		}
	}

	m.tape.Reset()
	for i := len(merged) - 1; i >= 0; i-- {
		m.tape.Push(merged[i])
	}
	return added
}

// Book returns a copy of the selected pair's book.
func (m *Manager) Book() domain.OrderBook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.Clone()
}

// Trades returns the tape newest-first.
func (m *Manager) Trades() []domain.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tape.Newest()
}

// Reset clears the selected pair and all state.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = ""
	m.book = emptyBook("")
	m.tape.Reset()
}
