package orderbook

import (
	"fmt"
	"testing"
	"time"

	"market_engine/internal/domain"
)

func makeTrades(pair string, n int, start time.Time) []domain.Trade {
	trades := make([]domain.Trade, n)
	for i := 0; i < n; i++ {
		trades[i] = domain.Trade{
			ID:        fmt.Sprintf("%s-%d", pair, i),
			PairID:    pair,
			Price:     100 + float64(i),
			Quantity:  1,
			Side:      domain.SideBuy,
			Timestamp: start.Add(time.Duration(i) * time.Second),
		}
	}
	return trades
}

func TestTape_RingBufferBound(t *testing.T) {
	const capacity, extra = 20, 7
	tape := NewTape(capacity)
	start := time.Now()

	for _, tr := range makeTrades("BTC-USDT", capacity+extra, start) {
		tape.Push(tr)
	}

	if tape.Len() != capacity {
		t.Fatalf("Len = %d, want %d", tape.Len(), capacity)
	}

	got := tape.Newest()
	for i, tr := range got {
		want := fmt.Sprintf("BTC-USDT-%d", capacity+extra-1-i)
		if tr.ID != want {
			t.Fatalf("position %d = %s, want %s", i, tr.ID, want)
		}
	}
}

func TestTape_DefaultCapacity(t *testing.T) {
	if c := NewTape(0).Cap(); c != DefaultTapeCapacity {
		t.Errorf("Cap = %d, want %d", c, DefaultTapeCapacity)
	}
}

func TestManager_PrependTrades(t *testing.T) {
	m := NewManager(5)
	m.SwitchPair("BTC-USDT")
	start := time.Now()

	t.Run("newest first and truncated", func(t *testing.T) {
		added := m.PrependTrades("BTC-USDT", makeTrades("BTC-USDT", 8, start))
		if added != 5 {
			t.Errorf("added = %d, want 5", added)
		}
		trades := m.Trades()
		if len(trades) != 5 {
			t.Fatalf("len = %d, want 5", len(trades))
		}
		if trades[0].ID != "BTC-USDT-7" || trades[4].ID != "BTC-USDT-3" {
			t.Errorf("unexpected order: first=%s last=%s", trades[0].ID, trades[4].ID)
		}
	})

	t.Run("duplicates skipped", func(t *testing.T) {
		added := m.PrependTrades("BTC-USDT", makeTrades("BTC-USDT", 8, start))
		if added != 0 {
			t.Errorf("added = %d, want 0", added)
		}
		if len(m.Trades()) != 5 {
			t.Error("duplicate merge changed the tape length")
		}
	})

	t.Run("older trades fall off", func(t *testing.T) {
		old := domain.Trade{ID: "ancient", PairID: "BTC-USDT", Timestamp: start.Add(-time.Hour)}
		if added := m.PrependTrades("BTC-USDT", []domain.Trade{old}); added != 0 {
			t.Errorf("older-than-tape trade should not survive truncation, added=%d", added)
		}
	})

	t.Run("other pair dropped", func(t *testing.T) {
		if added := m.PrependTrades("ETH-USDT", makeTrades("ETH-USDT", 2, start)); added != -1 {
			t.Errorf("added = %d, want -1", added)
		}
	})
}

func TestManager_SetBook(t *testing.T) {
	m := NewManager(DefaultTapeCapacity)
	m.SwitchPair("BTC-USDT")

	book := domain.OrderBook{
		Asks: []domain.OrderBookLevel{{Price: 101, Quantity: 1}, {Price: 100.5, Quantity: 2}},
		Bids: []domain.OrderBookLevel{{Price: 99, Quantity: 1}, {Price: 99.5, Quantity: 2}},
	}
	if !m.SetBook("BTC-USDT", book) {
		t.Fatal("SetBook for selected pair should succeed")
	}

	got := m.Book()
	if got.PairID != "BTC-USDT" {
		t.Errorf("PairID = %q", got.PairID)
	}
	if got.Asks[0].Price != 100.5 || got.Bids[0].Price != 99.5 {
		t.Errorf("ladders not sorted: %+v", got)
	}

	// Caller's slices must not alias the stored book.
	book.Asks[0].Price = 1
	if m.Book().Asks[1].Price == 1 {
		t.Error("SetBook kept a reference to the caller's slice")
	}

	if m.SetBook("ETH-USDT", book) {
		t.Error("SetBook for a non-selected pair should be dropped")
	}
}

func TestManager_EmptyBook(t *testing.T) {
	m := NewManager(DefaultTapeCapacity)
	m.SwitchPair("BTC-USDT")
	m.SetBook("BTC-USDT", domain.OrderBook{})

	got := m.Book()
	if got.Asks == nil || got.Bids == nil {
		t.Fatal("empty ladders should be empty slices, not nil")
	}
	if len(got.Asks) != 0 || len(got.Bids) != 0 {
		t.Error("no placeholder levels should be synthesized")
	}
}

func TestManager_SwitchPairClearsState(t *testing.T) {
	m := NewManager(DefaultTapeCapacity)
	m.SwitchPair("BTC-USDT")
	m.SetBook("BTC-USDT", domain.OrderBook{Asks: []domain.OrderBookLevel{{Price: 1, Quantity: 1}}})
	m.PrependTrades("BTC-USDT", makeTrades("BTC-USDT", 3, time.Now()))

	prev := m.SwitchPair("ETH-USDT")
	if prev != "BTC-USDT" {
		t.Errorf("prev = %q", prev)
	}
	if len(m.Book().Asks) != 0 || len(m.Trades()) != 0 {
		t.Error("switching pair should drop the previous pair's book and trades")
	}

	// Switching to the same pair is a no-op.
	m.PrependTrades("ETH-USDT", makeTrades("ETH-USDT", 1, time.Now()))
	m.SwitchPair("ETH-USDT")
	if len(m.Trades()) != 1 {
		t.Error("re-selecting the same pair should keep its state")
	}
}
