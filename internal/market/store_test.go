package market

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"market_engine/internal/domain"
)

func seedRows(now time.Time) []domain.Instrument {
	return []domain.Instrument{
		{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", Price: 52835.42, MarketCap: 1e12, LastUpdated: now},
		{ID: "ethereum", Symbol: "ETH", Name: "Ethereum", Price: 3120.5, MarketCap: 4e11, LastUpdated: now},
		{ID: "ripple", Symbol: "XRP", Name: "XRP", Price: 0.61, LastUpdated: now},
	}
}

func TestTickerStore_ReplaceAll(t *testing.T) {
	s := NewTickerStore()
	now := time.Now()

	kept := s.ReplaceAll(seedRows(now))
	if kept != 3 {
		t.Fatalf("ReplaceAll kept %d rows, want 3", kept)
	}

	btc, ok := s.Get("bitcoin")
	if !ok {
		t.Fatal("bitcoin should exist")
	}
	if btc.Price != 52835.42 {
		t.Errorf("Expected 52835.42, got %v", btc.Price)
	}

	// Second replace drops rows that are absent.
	s.ReplaceAll(seedRows(now)[:1])
	if s.Len() != 1 {
		t.Errorf("Expected 1 row after replace, got %d", s.Len())
	}
	if _, ok := s.Get("ethereum"); ok {
		t.Error("ethereum should be gone after replace")
	}
}

func TestTickerStore_ReplaceAll_RejectsInvalid(t *testing.T) {
	s := NewTickerStore()
	rows := []domain.Instrument{
		{ID: "bitcoin", Symbol: "BTC", Price: 100},
		{ID: "broken", Symbol: "BRK", Price: 0},
		{ID: "bitcoin", Symbol: "BTC", Price: 200}, // duplicate
	}
	if kept := s.ReplaceAll(rows); kept != 1 {
		t.Fatalf("kept = %d, want 1", kept)
	}
	if btc, _ := s.Get("bitcoin"); btc.Price != 100 {
		t.Errorf("first duplicate should win, got %v", btc.Price)
	}
}

func TestTickerStore_LastUpdatedMonotonic(t *testing.T) {
	s := NewTickerStore()
	now := time.Now()
	s.ReplaceAll(seedRows(now))

	older := seedRows(now.Add(-time.Minute))
	s.ReplaceAll(older)

	btc, _ := s.Get("bitcoin")
	if btc.LastUpdated.Before(now) {
		t.Error("ReplaceAll moved LastUpdated backwards")
	}

	s.Perturb([]string{"bitcoin"}, RandomWalk(nil, now.Add(-time.Hour)))
	btc, _ = s.Get("bitcoin")
	if btc.LastUpdated.Before(now) {
		t.Error("Perturb moved LastUpdated backwards")
	}
}

func TestTickerStore_PerturbSubset(t *testing.T) {
	s := NewTickerStore()
	now := time.Now()
	s.ReplaceAll(seedRows(now))

	changed := s.Perturb([]string{"bitcoin", "missing"}, func(in domain.Instrument) domain.Instrument {
		in.Price = 60000
		return in
	})
	if changed != 1 {
		t.Errorf("changed = %d, want 1", changed)
	}

	btc, _ := s.Get("bitcoin")
	if btc.Price != 60000 {
		t.Errorf("bitcoin price = %v, want 60000", btc.Price)
	}
	if btc.Name != "Bitcoin" || btc.MarketCap != 1e12 {
		t.Error("Perturb lost fields not produced by fn")
	}

	eth, _ := s.Get("ethereum")
	if eth.Price != 3120.5 {
		t.Error("Perturb touched a row outside the subset")
	}
}

func TestTickerStore_PerturbRejectsNonPositive(t *testing.T) {
	s := NewTickerStore()
	s.ReplaceAll(seedRows(time.Now()))

	s.Perturb([]string{"ripple"}, func(in domain.Instrument) domain.Instrument {
		in.Price = -1
		return in
	})
	xrp, _ := s.Get("ripple")
	if xrp.Price != 0.61 {
		t.Errorf("negative price should be discarded, got %v", xrp.Price)
	}
}

func TestRandomWalk_Bounded(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	s := NewTickerStore()
	s.ReplaceAll(seedRows(time.Now()))

	for i := 0; i < 1000; i++ {
		before := s.List()
		s.PerturbAll(RandomWalk(rng, time.Now()))
		after := s.List()

		for j := range before {
			ratio := after[j].Price/before[j].Price - 1
			// 1e-7 absorbs the 8-decimal rounding on the smallest price
			if math.Abs(ratio) > MaxTickFraction/2+1e-7 {
				t.Fatalf("tick %d: %s moved %v, bound is ±%v", i, before[j].Symbol, ratio, MaxTickFraction/2)
			}
		}
	}
}

func TestRandomWalk_BTCOneTick(t *testing.T) {
	in := domain.Instrument{ID: "bitcoin", Symbol: "BTC", Price: 52835.42}
	// ±0.1% of 52835.42, i.e. roughly [52782.6, 52888.2]
	lo, hi := 52782.58458-1e-8, 52888.25542+1e-8

	for _, r := range []float64{0, 0.25, 0.5, 0.75, 0.999999} {
		f := (r - 0.5) * MaxTickFraction
		got := domain.RoundPrice(in.Price * (1 + f))
		if got < lo || got > hi {
			t.Errorf("r=%v: price %v outside [%v, %v]", r, got, lo, hi)
		}
	}

	for i := 0; i < 100; i++ {
		out := RandomWalk(nil, time.Now())(in)
		if out.Price < lo || out.Price > hi {
			t.Fatalf("price %v outside [%v, %v]", out.Price, lo, hi)
		}
	}
}

func TestTickerStore_AtomicReplaceUnderConcurrentReads(t *testing.T) {
	s := NewTickerStore()
	now := time.Now()

	tableA := make([]domain.Instrument, 50)
	tableB := make([]domain.Instrument, 50)
	for i := range tableA {
		id := string(rune('a'+i%26)) + string(rune('A'+i/26))
		tableA[i] = domain.Instrument{ID: id, Symbol: id, Price: 1, LastUpdated: now}
		tableB[i] = domain.Instrument{ID: id, Symbol: id, Price: 2, LastUpdated: now}
	}
	s.ReplaceAll(tableA)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	mixed := make(chan string, 1)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				rows := s.List()
				if len(rows) == 0 {
					continue
				}
				first := rows[0].Price
				for _, row := range rows {
					if row.Price != first {
						select {
						case mixed <- "reader saw a mix of old and new rows":
						default:
						}
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		if i%2 == 0 {
			s.ReplaceAll(tableB)
		} else {
			s.ReplaceAll(tableA)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-mixed:
		t.Fatal(msg)
	default:
	}
}

func TestTickerStore_ListReturnsCopy(t *testing.T) {
	s := NewTickerStore()
	s.ReplaceAll(seedRows(time.Now()))

	rows := s.List()
	rows[0].Price = 1

	btc, _ := s.Get("bitcoin")
	if btc.Price == 1 {
		t.Error("mutating List() result changed the store")
	}
}

func TestTickerStore_Globals(t *testing.T) {
	s := NewTickerStore()
	g := domain.MarketGlobals{TotalMarketCap: 2.1e12, FearGreedIndex: 64, UpdatedAt: time.Now()}

	if !s.ReplaceGlobals(g) {
		t.Fatal("valid globals rejected")
	}
	if s.ReplaceGlobals(domain.MarketGlobals{FearGreedIndex: 200}) {
		t.Error("invalid globals accepted")
	}
	if got := s.Globals(); got.FearGreedIndex != 64 {
		t.Errorf("globals changed by rejected payload: %+v", got)
	}
}

func TestTickerStore_ListBySymbol(t *testing.T) {
	s := NewTickerStore()
	s.ReplaceAll([]domain.Instrument{
		{ID: "x", Symbol: "XRP", Price: 1},
		{ID: "b", Symbol: "BTC", Price: 1},
		{ID: "e", Symbol: "ETH", Price: 1},
	})

	all := s.ListBySymbol()
	if all[0].Symbol != "BTC" || all[1].Symbol != "ETH" || all[2].Symbol != "XRP" {
		t.Errorf("Not sorted: %s, %s, %s", all[0].Symbol, all[1].Symbol, all[2].Symbol)
	}
}
