package domain

import (
	"sort"
	"time"
)

// Side is the aggressor side of a trade or the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderBookLevel is one price level of a ladder.
type OrderBookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook holds both ladders for a pair.
// Asks are ascending by price, bids descending. A crossed book is allowed.
type OrderBook struct {
	PairID    string           `json:"pair_id"`
	Asks      []OrderBookLevel `json:"asks"`
	Bids      []OrderBookLevel `json:"bids"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Normalize sorts both ladders into their canonical order and never
// returns nil slices.
func (b *OrderBook) Normalize() {
	if b.Asks == nil {
		b.Asks = []OrderBookLevel{}
	}
	if b.Bids == nil {
		b.Bids = []OrderBookLevel{}
	}
	sort.SliceStable(b.Asks, func(i, j int) bool { return b.Asks[i].Price < b.Asks[j].Price })
	sort.SliceStable(b.Bids, func(i, j int) bool { return b.Bids[i].Price > b.Bids[j].Price })
}

// Clone returns a deep copy.
func (b OrderBook) Clone() OrderBook {
	out := b
	out.Asks = append(make([]OrderBookLevel, 0, len(b.Asks)), b.Asks...)
	out.Bids = append(make([]OrderBookLevel, 0, len(b.Bids)), b.Bids...)
	return out
}

// BestAsk returns the lowest ask, if any.
func (b OrderBook) BestAsk() (OrderBookLevel, bool) {
	if len(b.Asks) == 0 {
		return OrderBookLevel{}, false
	}
	return b.Asks[0], true
}

// BestBid returns the highest bid, if any.
func (b OrderBook) BestBid() (OrderBookLevel, bool) {
	if len(b.Bids) == 0 {
		return OrderBookLevel{}, false
	}
	return b.Bids[0], true
}

// Spread returns ask - bid. It is negative for a crossed book.
func (b OrderBook) Spread() (float64, bool) {
	ask, ok1 := b.BestAsk()
	bid, ok2 := b.BestBid()
	if !ok1 || !ok2 {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// Trade is a single print on the tape.
type Trade struct {
	ID        string    `json:"id"`
	PairID    string    `json:"pair_id"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Side      Side      `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}
