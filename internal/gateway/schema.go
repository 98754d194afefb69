package gateway

import (
	"fmt"
	"strconv"
	"time"

	"market_engine/internal/domain"

	"github.com/shopspring/decimal"
)

// Wire schemas of the external services. Everything is converted into the
// domain types and validated before leaving the gateway.

// marketRow is one element of GET /coins/markets (CoinGecko layout).
type marketRow struct {
	ID                string              `json:"id"`
	Symbol            string              `json:"symbol"`
	Name              string              `json:"name"`
	Image             string              `json:"image"`
	CurrentPrice      decimal.NullDecimal `json:"current_price"`
	PriceChangePct24h decimal.NullDecimal `json:"price_change_percentage_24h"`
	MarketCap         decimal.NullDecimal `json:"market_cap"`
	TotalVolume       decimal.NullDecimal `json:"total_volume"`
	LastUpdated       *time.Time          `json:"last_updated"`
}

// globalResponse is GET /global (CoinGecko layout).
type globalResponse struct {
	Data struct {
		TotalMarketCap      map[string]decimal.Decimal `json:"total_market_cap"`
		TotalVolume         map[string]decimal.Decimal `json:"total_volume"`
		MarketCapPercentage map[string]decimal.Decimal `json:"market_cap_percentage"`
		UpdatedAt           int64                      `json:"updated_at"`
	} `json:"data"`
}

// fearGreedResponse is GET /fng/?limit=1 (alternative.me layout).
type fearGreedResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// depthResponse is GET /depth (exchange layout, levels are [price, qty]).
type depthResponse struct {
	LastUpdateID int64                `json:"lastUpdateId"`
	Bids         [][2]decimal.Decimal `json:"bids"`
	Asks         [][2]decimal.Decimal `json:"asks"`
}

// tradeRow is one element of GET /trades (exchange layout).
type tradeRow struct {
	ID           int64           `json:"id"`
	Price        decimal.Decimal `json:"price"`
	Qty          decimal.Decimal `json:"qty"`
	Time         int64           `json:"time"` // unix ms
	IsBuyerMaker bool            `json:"isBuyerMaker"`
}

type newsRow struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

type educationRow struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Level string `json:"level"`
	URL   string `json:"url"`
}

type portfolioResponse struct {
	TotalBalance     decimal.Decimal `json:"total_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	InOrders         decimal.Decimal `json:"in_orders"`
	TotalPnLPct      decimal.Decimal `json:"total_pnl_pct"`
}

func (r marketRow) toDomain(now time.Time) (domain.Instrument, error) {
	if !r.CurrentPrice.Valid {
		return domain.Instrument{}, &domain.ValidationError{Field: r.ID + ".current_price", Reason: "missing"}
	}
	in := domain.Instrument{
		ID:           r.ID,
		Symbol:       upper(r.Symbol),
		Name:         r.Name,
		Price:        r.CurrentPrice.Decimal.Round(domain.PricePrecision).InexactFloat64(),
		Change24hPct: r.PriceChangePct24h.Decimal.InexactFloat64(),
		MarketCap:    r.MarketCap.Decimal.InexactFloat64(),
		Volume24h:    r.TotalVolume.Decimal.InexactFloat64(),
		LastUpdated:  now,
		ImageURL:     r.Image,
	}
	if r.LastUpdated != nil && !r.LastUpdated.IsZero() {
		in.LastUpdated = *r.LastUpdated
	}
	if err := in.Validate(); err != nil {
		return domain.Instrument{}, err
	}
	return in, nil
}

func (r globalResponse) toDomain(fearGreed int, now time.Time) (domain.MarketGlobals, error) {
	d := r.Data
	if d.TotalMarketCap == nil {
		return domain.MarketGlobals{}, &domain.ValidationError{Field: "data.total_market_cap", Reason: "missing"}
	}
	g := domain.MarketGlobals{
		TotalMarketCap:  d.TotalMarketCap["usd"].InexactFloat64(),
		TotalVolume24h:  d.TotalVolume["usd"].InexactFloat64(),
		BTCDominancePct: d.MarketCapPercentage["btc"].InexactFloat64(),
		ETHDominancePct: d.MarketCapPercentage["eth"].InexactFloat64(),
		FearGreedIndex:  fearGreed,
		UpdatedAt:       now,
	}
	if d.UpdatedAt > 0 {
		g.UpdatedAt = time.Unix(d.UpdatedAt, 0)
	}
	if err := g.Validate(); err != nil {
		return domain.MarketGlobals{}, err
	}
	return g, nil
}

func (r fearGreedResponse) value() (int, error) {
	if len(r.Data) == 0 {
		return 0, &domain.ValidationError{Field: "data", Reason: "empty"}
	}
	v, err := strconv.Atoi(r.Data[0].Value)
	if err != nil {
		return 0, &domain.ValidationError{Field: "data[0].value", Reason: err.Error()}
	}
	return v, nil
}

func (r depthResponse) toDomain(pairID string, now time.Time) (domain.OrderBook, error) {
	book := domain.OrderBook{
		PairID:    pairID,
		Asks:      make([]domain.OrderBookLevel, 0, len(r.Asks)),
		Bids:      make([]domain.OrderBookLevel, 0, len(r.Bids)),
		UpdatedAt: now,
	}
	for i, lv := range r.Asks {
		level, err := toLevel(lv)
		if err != nil {
			return domain.OrderBook{}, fmt.Errorf("asks[%d]: %w", i, err)
		}
		book.Asks = append(book.Asks, level)
	}
	for i, lv := range r.Bids {
		level, err := toLevel(lv)
		if err != nil {
			return domain.OrderBook{}, fmt.Errorf("bids[%d]: %w", i, err)
		}
		book.Bids = append(book.Bids, level)
	}
	book.Normalize()
	return book, nil
}

func toLevel(lv [2]decimal.Decimal) (domain.OrderBookLevel, error) {
	if !lv[0].IsPositive() || lv[1].IsNegative() {
		return domain.OrderBookLevel{}, &domain.ValidationError{Field: "level", Reason: "non-positive price or negative quantity"}
	}
	return domain.OrderBookLevel{Price: lv[0].InexactFloat64(), Quantity: lv[1].InexactFloat64()}, nil
}

func (r tradeRow) toDomain(pairID string) (domain.Trade, error) {
	if !r.Price.IsPositive() || !r.Qty.IsPositive() {
		return domain.Trade{}, &domain.ValidationError{Field: "trade", Reason: "non-positive price or quantity"}
	}
	side := domain.SideBuy
	if r.IsBuyerMaker {
		// the taker sold into the bid
		side = domain.SideSell
	}
	return domain.Trade{
		ID:        strconv.FormatInt(r.ID, 10),
		PairID:    pairID,
		Price:     r.Price.InexactFloat64(),
		Quantity:  r.Qty.InexactFloat64(),
		Side:      side,
		Timestamp: time.UnixMilli(r.Time),
	}, nil
}

func (r portfolioResponse) toDomain() (domain.Portfolio, error) {
	p := domain.Portfolio{
		TotalBalance:     r.TotalBalance.InexactFloat64(),
		AvailableBalance: r.AvailableBalance.InexactFloat64(),
		InOrders:         r.InOrders.InexactFloat64(),
		TotalPnLPct:      r.TotalPnLPct.InexactFloat64(),
	}
	if r.TotalBalance.IsNegative() {
		return domain.Portfolio{}, &domain.ValidationError{Field: "total_balance", Reason: "negative"}
	}
	return p, nil
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}
