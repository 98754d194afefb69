package domain

import "testing"

func TestOrderBook_Normalize(t *testing.T) {
	b := OrderBook{
		PairID: "BTC-USDT",
		Asks:   []OrderBookLevel{{Price: 102, Quantity: 1}, {Price: 101, Quantity: 2}},
		Bids:   []OrderBookLevel{{Price: 98, Quantity: 1}, {Price: 99, Quantity: 3}},
	}
	b.Normalize()

	if b.Asks[0].Price != 101 {
		t.Errorf("asks not ascending: %+v", b.Asks)
	}
	if b.Bids[0].Price != 99 {
		t.Errorf("bids not descending: %+v", b.Bids)
	}

	spread, ok := b.Spread()
	if !ok || spread != 2 {
		t.Errorf("Spread() = %v, %v; want 2, true", spread, ok)
	}
}

func TestOrderBook_EmptySides(t *testing.T) {
	var b OrderBook
	b.Normalize()

	if b.Asks == nil || b.Bids == nil {
		t.Fatal("Normalize should replace nil ladders with empty slices")
	}
	if _, ok := b.BestAsk(); ok {
		t.Error("BestAsk on empty book should report false")
	}
	if _, ok := b.Spread(); ok {
		t.Error("Spread on empty book should report false")
	}
}

func TestOrderBook_CrossedBook(t *testing.T) {
	b := OrderBook{
		Asks: []OrderBookLevel{{Price: 99, Quantity: 1}},
		Bids: []OrderBookLevel{{Price: 100, Quantity: 1}},
	}
	spread, ok := b.Spread()
	if !ok || spread >= 0 {
		t.Errorf("crossed book should have negative spread, got %v", spread)
	}
}

func TestOrderBook_CloneIsDeep(t *testing.T) {
	b := OrderBook{Asks: []OrderBookLevel{{Price: 1, Quantity: 1}}}
	c := b.Clone()
	c.Asks[0].Price = 5
	if b.Asks[0].Price != 1 {
		t.Error("Clone shares the ask slice with the original")
	}
}
