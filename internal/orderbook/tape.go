package orderbook

import "market_engine/internal/domain"

// DefaultTapeCapacity is the number of trades kept per pair.
const DefaultTapeCapacity = 20

// Tape is a fixed-capacity ring buffer of trades. The oldest entry is
// overwritten once the buffer is full. Not safe for concurrent use.
type Tape struct {
	buf  []domain.Trade
	head int // index of the newest entry
	size int
}

// NewTape creates a tape; capacity < 1 falls back to DefaultTapeCapacity.
func NewTape(capacity int) *Tape {
	if capacity < 1 {
		capacity = DefaultTapeCapacity
	}
	return &Tape{buf: make([]domain.Trade, capacity), head: -1}
}

// Push adds t as the newest entry.
func (t *Tape) Push(tr domain.Trade) {
	t.head = (t.head + 1) % len(t.buf)
	t.buf[t.head] = tr
	if t.size < len(t.buf) {
		t.size++
	}
}

// Newest returns the entries newest-first as a new slice.
func (t *Tape) Newest() []domain.Trade {
	out := make([]domain.Trade, 0, t.size)
	for i := 0; i < t.size; i++ {
		idx := (t.head - i + len(t.buf)) % len(t.buf)
		out = append(out, t.buf[idx])
	}
	return out
}

// Contains reports whether a trade with the given id is on the tape.
func (t *Tape) Contains(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < t.size; i++ {
		idx := (t.head - i + len(t.buf)) % len(t.buf)
		if t.buf[idx].ID == id {
			return true
		}
	}
	return false
}

// Len returns the number of stored trades.
func (t *Tape) Len() int { return t.size }

// Cap returns the capacity.
func (t *Tape) Cap() int { return len(t.buf) }

// Reset drops every entry.
func (t *Tape) Reset() {
	clear(t.buf)
	t.head = -1
	t.size = 0
}
