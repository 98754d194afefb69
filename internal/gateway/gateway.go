package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"market_engine/internal/domain"
)

// Kind names one external data source.
type Kind string

const (
	KindInstruments Kind = "instruments"
	KindGlobals     Kind = "globals"
	KindOrderBook   Kind = "orderbook"
	KindTrades      Kind = "trades"
	KindNews        Kind = "news"
	KindEducation   Kind = "education"
	KindPortfolio   Kind = "portfolio"
)

// Request describes one fetch.
type Request struct {
	Kind   Kind
	PairID string // orderbook, trades
	Limit  int    // instruments (top-N), trades, news, orderbook depth
}

// Key identifies the request in loader results and caches.
func (r Request) Key() string {
	if r.PairID != "" {
		return string(r.Kind) + ":" + r.PairID
	}
	return string(r.Kind)
}

// Payload carries exactly one typed result; which field is set follows Kind.
type Payload struct {
	Kind        Kind                   `json:"kind"`
	Instruments []domain.Instrument    `json:"instruments,omitempty"`
	Globals     *domain.MarketGlobals  `json:"globals,omitempty"`
	Book        *domain.OrderBook      `json:"book,omitempty"`
	Trades      []domain.Trade         `json:"trades,omitempty"`
	News        []domain.NewsItem      `json:"news,omitempty"`
	Education   []domain.EducationItem `json:"education,omitempty"`
	Portfolio   *domain.Portfolio      `json:"portfolio,omitempty"`
}

// Gateway performs a single external fetch. Implementations apply their own
// timeout, never retry, and report every failure as *domain.FetchError.
type Gateway interface {
	Fetch(ctx context.Context, req Request) (Payload, error)
}

// Func adapts a function to Gateway.
type Func func(ctx context.Context, req Request) (Payload, error)

func (f Func) Fetch(ctx context.Context, req Request) (Payload, error) {
	return f(ctx, req)
}

// Safe wraps g so that a panic or a foreign error type is converted into a
// *domain.FetchError.
func Safe(g Gateway) Gateway {
	return Func(func(ctx context.Context, req Request) (p Payload, err error) {
		defer func() {
			if r := recover(); r != nil {
				p = Payload{}
				err = domain.NewTransientError(req.Key(), 0, fmt.Errorf("panic: %v", r))
			}
		}()

		p, err = g.Fetch(ctx, req)
		if err != nil {
			return Payload{}, asFetchError(req.Key(), err)
		}
		return p, nil
	})
}

func asFetchError(source string, err error) *domain.FetchError {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return domain.NewTransientError(source, 0, err)
}

// Mux routes each Kind to its own gateway.
type Mux struct {
	routes   map[Kind]Gateway
	fallback Gateway
}

// NewMux creates a router; fallback may be nil.
func NewMux(fallback Gateway) *Mux {
	return &Mux{routes: make(map[Kind]Gateway), fallback: fallback}
}

// Handle registers g for the given kinds.
func (m *Mux) Handle(g Gateway, kinds ...Kind) *Mux {
	for _, k := range kinds {
		m.routes[k] = g
	}
	return m
}

// Fetch dispatches to the registered gateway.
func (m *Mux) Fetch(ctx context.Context, req Request) (Payload, error) {
	if g, ok := m.routes[req.Kind]; ok {
		return g.Fetch(ctx, req)
	}
	if m.fallback != nil {
		return m.fallback.Fetch(ctx, req)
	}
	return Payload{}, domain.NewTransientError(req.Key(), 0, fmt.Errorf("no source for %s", req.Kind))
}

// ExchangeSymbol converts "BTC-USDT" or "BTC/USDT" into "BTCUSDT".
func ExchangeSymbol(pairID string) string {
	r := strings.NewReplacer("-", "", "/", "", "_", "")
	return strings.ToUpper(r.Replace(pairID))
}

// BaseSymbol returns the base asset of a pair, e.g. "BTC" for "BTC-USDT".
func BaseSymbol(pairID string) string {
	for _, sep := range []string{"-", "/", "_"} {
		if i := strings.Index(pairID, sep); i > 0 {
			return strings.ToUpper(pairID[:i])
		}
	}
	return strings.ToUpper(pairID)
}
