package gateway

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"market_engine/internal/domain"

	"github.com/google/uuid"
)

// PriceSource returns the current mid price for a pair's base symbol.
type PriceSource func(symbol string) (float64, bool)

// SeedInstruments is the table served by the simulated source.
var SeedInstruments = []domain.Instrument{
	{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", Price: 52835.42, Change24hPct: 2.34, MarketCap: 1_035_000_000_000, Volume24h: 28_400_000_000},
	{ID: "ethereum", Symbol: "ETH", Name: "Ethereum", Price: 2854.12, Change24hPct: -1.12, MarketCap: 343_000_000_000, Volume24h: 14_200_000_000},
	{ID: "solana", Symbol: "SOL", Name: "Solana", Price: 108.37, Change24hPct: 4.81, MarketCap: 47_600_000_000, Volume24h: 2_900_000_000},
	{ID: "ripple", Symbol: "XRP", Name: "XRP", Price: 0.5421, Change24hPct: 0.37, MarketCap: 29_500_000_000, Volume24h: 1_100_000_000},
	{ID: "cardano", Symbol: "ADA", Name: "Cardano", Price: 0.5912, Change24hPct: -2.05, MarketCap: 20_800_000_000, Volume24h: 480_000_000},
	{ID: "dogecoin", Symbol: "DOGE", Name: "Dogecoin", Price: 0.0843, Change24hPct: 1.02, MarketCap: 12_000_000_000, Volume24h: 520_000_000},
}

// Simulated is a synthetic source. Books and trades are generated around
// the price reported by the PriceSource, falling back to the seed table.
type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand

	prices      PriceSource
	failureRate float64
	latency     time.Duration
	now         func() time.Time
}

// SimOption configures a Simulated gateway.
type SimOption func(*Simulated)

// WithPriceSource makes books and trades follow live ticker prices.
func WithPriceSource(src PriceSource) SimOption {
	return func(s *Simulated) { s.prices = src }
}

// WithFailureRate makes a fraction of fetches fail with a transient error.
func WithFailureRate(p float64) SimOption {
	return func(s *Simulated) { s.failureRate = p }
}

// WithLatency delays every fetch, honoring cancellation.
func WithLatency(d time.Duration) SimOption {
	return func(s *Simulated) { s.latency = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SimOption {
	return func(s *Simulated) { s.now = now }
}

// NewSimulated creates a simulated gateway seeded for reproducible output.
func NewSimulated(seed uint64, opts ...SimOption) *Simulated {
	s := &Simulated{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) Fetch(ctx context.Context, req Request) (Payload, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return Payload{}, domain.NewTransientError(req.Key(), 0, ctx.Err())
		case <-time.After(s.latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return Payload{}, domain.NewTransientError(req.Key(), 0, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failureRate > 0 && s.rng.Float64() < s.failureRate {
		return Payload{}, domain.NewTransientError(req.Key(), 503, errors.New("simulated outage"))
	}

	now := s.now()
	switch req.Kind {
	case KindInstruments:
		return Payload{Kind: KindInstruments, Instruments: s.instruments(req.Limit, now)}, nil
	case KindGlobals:
		g := domain.MarketGlobals{
			TotalMarketCap:  1_720_000_000_000,
			TotalVolume24h:  62_000_000_000,
			BTCDominancePct: 51.3,
			ETHDominancePct: 16.9,
			FearGreedIndex:  40 + s.rng.IntN(30),
			UpdatedAt:       now,
		}
		return Payload{Kind: KindGlobals, Globals: &g}, nil
	case KindOrderBook:
		if req.PairID == "" {
			return Payload{}, domain.NewMalformedError(req.Key(), domain.ErrInvalidPair)
		}
		book := s.book(req.PairID, req.Limit, now)
		return Payload{Kind: KindOrderBook, Book: &book}, nil
	case KindTrades:
		if req.PairID == "" {
			return Payload{}, domain.NewMalformedError(req.Key(), domain.ErrInvalidPair)
		}
		return Payload{Kind: KindTrades, Trades: s.trades(req.PairID, req.Limit, now)}, nil
	case KindNews:
		return Payload{Kind: KindNews, News: s.news(req.Limit, now)}, nil
	case KindEducation:
		return Payload{Kind: KindEducation, Education: education()}, nil
	case KindPortfolio:
		p := domain.Portfolio{TotalBalance: 25_000, AvailableBalance: 25_000, TotalPnLPct: 3.2}
		return Payload{Kind: KindPortfolio, Portfolio: &p}, nil
	default:
		return Payload{}, domain.NewMalformedError(req.Key(), errors.New("unknown kind"))
	}
}

func (s *Simulated) instruments(limit int, now time.Time) []domain.Instrument {
	n := len(SeedInstruments)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Instrument, n)
	for i := 0; i < n; i++ {
		in := SeedInstruments[i]
		if p, ok := s.mid(in.Symbol); ok {
			in.Price = p
		}
		in.LastUpdated = now
		out[i] = in
	}
	return out
}

func (s *Simulated) mid(symbol string) (float64, bool) {
	if s.prices != nil {
		if p, ok := s.prices(symbol); ok && p > 0 {
			return p, true
		}
	}
	for _, in := range SeedInstruments {
		if in.Symbol == symbol {
			return in.Price, true
		}
	}
	return 0, false
}

// book builds a ladder with a spread of a few basis points around mid.
func (s *Simulated) book(pairID string, depth int, now time.Time) domain.OrderBook {
	if depth <= 0 {
		depth = 10
	}
	mid, ok := s.mid(BaseSymbol(pairID))
	if !ok {
		mid = 100
	}
	step := mid * 0.0002
	book := domain.OrderBook{
		PairID:    pairID,
		Asks:      make([]domain.OrderBookLevel, 0, depth),
		Bids:      make([]domain.OrderBookLevel, 0, depth),
		UpdatedAt: now,
	}
	for i := 1; i <= depth; i++ {
		book.Asks = append(book.Asks, domain.OrderBookLevel{
			Price:    domain.RoundPrice(mid + step*float64(i)),
			Quantity: s.qty(),
		})
		book.Bids = append(book.Bids, domain.OrderBookLevel{
			Price:    domain.RoundPrice(mid - step*float64(i)),
			Quantity: s.qty(),
		})
	}
	book.Normalize()
	return book
}

// trades returns newest-first prints spaced a few seconds apart.
func (s *Simulated) trades(pairID string, limit int, now time.Time) []domain.Trade {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	mid, ok := s.mid(BaseSymbol(pairID))
	if !ok {
		mid = 100
	}
	out := make([]domain.Trade, 0, limit)
	ts := now
	for i := 0; i < limit; i++ {
		side := domain.SideBuy
		if s.rng.IntN(2) == 1 {
			side = domain.SideSell
		}
		out = append(out, domain.Trade{
			ID:        uuid.NewString(),
			PairID:    pairID,
			Price:     domain.RoundPrice(mid * (1 + (s.rng.Float64()-0.5)*0.001)),
			Quantity:  s.qty(),
			Side:      side,
			Timestamp: ts,
		})
		ts = ts.Add(-time.Duration(1+s.rng.IntN(5)) * time.Second)
	}
	return out
}

func (s *Simulated) qty() float64 {
	return domain.RoundPrice(0.01 + s.rng.Float64()*2)
}

var headlines = []struct{ title, source string }{
	{"Bitcoin holds above key support as volumes climb", "MarketWire"},
	{"Ethereum developers schedule next network upgrade", "ChainDesk"},
	{"Stablecoin supply reaches new high", "Ledger Times"},
	{"Exchange reserves fall for third straight week", "OnChain Daily"},
	{"Regulators publish draft rules for digital asset custody", "PolicyWatch"},
	{"Layer-2 activity surges after fee cut", "ChainDesk"},
}

func (s *Simulated) news(limit int, now time.Time) []domain.NewsItem {
	n := len(headlines)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.NewsItem, n)
	for i := 0; i < n; i++ {
		out[i] = domain.NewsItem{
			ID:          "sim-news-" + string(rune('a'+i)),
			Title:       headlines[i].title,
			Source:      headlines[i].source,
			PublishedAt: now.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

func education() []domain.EducationItem {
	return []domain.EducationItem{
		{ID: "edu-orderbook", Title: "Reading an order book", Level: "beginner"},
		{ID: "edu-spread", Title: "Spreads and slippage", Level: "beginner"},
		{ID: "edu-limit", Title: "Limit versus market orders", Level: "intermediate"},
		{ID: "edu-risk", Title: "Position sizing and risk", Level: "advanced"},
	}
}
