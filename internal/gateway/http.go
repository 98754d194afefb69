package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"market_engine/internal/domain"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultInstrumentsTop = 50
	DefaultDepth          = 20
	DefaultTradeLimit     = 20
	DefaultNewsLimit      = 10
	DefaultMaxBodyBytes   = 8 << 20

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Endpoints holds the base URL of every upstream. An empty URL means the
// kind is not served by this gateway.
type Endpoints struct {
	MarketURL    string // /coins/markets, /global
	FearGreedURL string // full URL, optional
	ExchangeURL  string // /depth, /trades
	ContentURL   string // /news, /education
	AccountURL   string // /portfolio
	VSCurrency   string
}

// HTTP fetches market data from REST upstreams.
type HTTP struct {
	ep         Endpoints
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	maxBody    int64
	now        func() time.Time
}

// Option configures an HTTP gateway.
type Option func(*HTTP)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(g *HTTP) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *HTTP) {
		g.httpClient = hc
	}
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(g *HTTP) {
		if n > 0 {
			g.maxBody = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *HTTP) {
		g.logger = logger
	}
}

// NewHTTP creates a REST gateway.
func NewHTTP(ep Endpoints, opts ...Option) *HTTP {
	if ep.VSCurrency == "" {
		ep.VSCurrency = "usd"
	}
	g := &HTTP{
		ep:         ep,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		maxBody:    DefaultMaxBodyBytes,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("module", "gateway")
	return g
}

// Kinds lists the kinds for which an upstream is configured.
func (g *HTTP) Kinds() []Kind {
	var kinds []Kind
	if g.ep.MarketURL != "" {
		kinds = append(kinds, KindInstruments, KindGlobals)
	}
	if g.ep.ExchangeURL != "" {
		kinds = append(kinds, KindOrderBook, KindTrades)
	}
	if g.ep.ContentURL != "" {
		kinds = append(kinds, KindNews, KindEducation)
	}
	if g.ep.AccountURL != "" {
		kinds = append(kinds, KindPortfolio)
	}
	return kinds
}

// Fetch performs one request under the gateway's own timeout.
func (g *HTTP) Fetch(ctx context.Context, req Request) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	switch req.Kind {
	case KindInstruments:
		return g.fetchInstruments(ctx, req)
	case KindGlobals:
		return g.fetchGlobals(ctx, req)
	case KindOrderBook:
		return g.fetchOrderBook(ctx, req)
	case KindTrades:
		return g.fetchTrades(ctx, req)
	case KindNews:
		return g.fetchNews(ctx, req)
	case KindEducation:
		return g.fetchEducation(ctx, req)
	case KindPortfolio:
		return g.fetchPortfolio(ctx, req)
	default:
		return Payload{}, domain.NewMalformedError(req.Key(), fmt.Errorf("unknown kind %q", req.Kind))
	}
}

func (g *HTTP) fetchInstruments(ctx context.Context, req Request) (Payload, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultInstrumentsTop
	}
	q := url.Values{}
	q.Set("vs_currency", g.ep.VSCurrency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("page", "1")

	var rows []marketRow
	if err := g.getJSON(ctx, req.Key(), g.ep.MarketURL, "/coins/markets", q, &rows); err != nil {
		return Payload{}, err
	}
	if len(rows) == 0 {
		return Payload{}, domain.NewMalformedError(req.Key(), errors.New("empty instrument list"))
	}

	now := g.now()
	out := make([]domain.Instrument, 0, len(rows))
	for _, r := range rows {
		in, err := r.toDomain(now)
		if err != nil {
			return Payload{}, domain.NewMalformedError(req.Key(), err)
		}
		out = append(out, in)
	}
	return Payload{Kind: KindInstruments, Instruments: out}, nil
}

func (g *HTTP) fetchGlobals(ctx context.Context, req Request) (Payload, error) {
	var resp globalResponse
	if err := g.getJSON(ctx, req.Key(), g.ep.MarketURL, "/global", nil, &resp); err != nil {
		return Payload{}, err
	}

	// fear/greed is a separate source; a failure there fails the whole payload
	// since globals are only replaced wholesale
	fearGreed := 0
	if g.ep.FearGreedURL != "" {
		var fg fearGreedResponse
		if err := g.getJSON(ctx, req.Key(), g.ep.FearGreedURL, "", nil, &fg); err != nil {
			return Payload{}, err
		}
		v, err := fg.value()
		if err != nil {
			return Payload{}, domain.NewMalformedError(req.Key(), err)
		}
		fearGreed = v
	}

	globals, err := resp.toDomain(fearGreed, g.now())
	if err != nil {
		return Payload{}, domain.NewMalformedError(req.Key(), err)
	}
	return Payload{Kind: KindGlobals, Globals: &globals}, nil
}

func (g *HTTP) fetchOrderBook(ctx context.Context, req Request) (Payload, error) {
	if req.PairID == "" {
		return Payload{}, domain.NewMalformedError(req.Key(), domain.ErrInvalidPair)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultDepth
	}
	q := url.Values{}
	q.Set("symbol", ExchangeSymbol(req.PairID))
	q.Set("limit", strconv.Itoa(limit))

	var resp depthResponse
	if err := g.getJSON(ctx, req.Key(), g.ep.ExchangeURL, "/depth", q, &resp); err != nil {
		return Payload{}, err
	}
	book, err := resp.toDomain(req.PairID, g.now())
	if err != nil {
		return Payload{}, domain.NewMalformedError(req.Key(), err)
	}
	return Payload{Kind: KindOrderBook, Book: &book}, nil
}

func (g *HTTP) fetchTrades(ctx context.Context, req Request) (Payload, error) {
	if req.PairID == "" {
		return Payload{}, domain.NewMalformedError(req.Key(), domain.ErrInvalidPair)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	q := url.Values{}
	q.Set("symbol", ExchangeSymbol(req.PairID))
	q.Set("limit", strconv.Itoa(limit))

	var rows []tradeRow
	if err := g.getJSON(ctx, req.Key(), g.ep.ExchangeURL, "/trades", q, &rows); err != nil {
		return Payload{}, err
	}
	trades := make([]domain.Trade, 0, len(rows))
	for _, r := range rows {
		t, err := r.toDomain(req.PairID)
		if err != nil {
			return Payload{}, domain.NewMalformedError(req.Key(), err)
		}
		trades = append(trades, t)
	}
	return Payload{Kind: KindTrades, Trades: trades}, nil
}

func (g *HTTP) fetchNews(ctx context.Context, req Request) (Payload, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultNewsLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var rows []newsRow
	if err := g.getJSON(ctx, req.Key(), g.ep.ContentURL, "/news", q, &rows); err != nil {
		return Payload{}, err
	}
	items := make([]domain.NewsItem, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" || r.Title == "" {
			return Payload{}, domain.NewMalformedError(req.Key(), &domain.ValidationError{Field: "news", Reason: "missing id or title"})
		}
		items = append(items, domain.NewsItem(r))
	}
	return Payload{Kind: KindNews, News: items}, nil
}

func (g *HTTP) fetchEducation(ctx context.Context, req Request) (Payload, error) {
	var rows []educationRow
	if err := g.getJSON(ctx, req.Key(), g.ep.ContentURL, "/education", nil, &rows); err != nil {
		return Payload{}, err
	}
	items := make([]domain.EducationItem, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" {
			return Payload{}, domain.NewMalformedError(req.Key(), &domain.ValidationError{Field: "education.id", Reason: "empty"})
		}
		items = append(items, domain.EducationItem(r))
	}
	return Payload{Kind: KindEducation, Education: items}, nil
}

func (g *HTTP) fetchPortfolio(ctx context.Context, req Request) (Payload, error) {
	var resp portfolioResponse
	if err := g.getJSON(ctx, req.Key(), g.ep.AccountURL, "/portfolio", nil, &resp); err != nil {
		return Payload{}, err
	}
	p, err := resp.toDomain()
	if err != nil {
		return Payload{}, domain.NewMalformedError(req.Key(), err)
	}
	return Payload{Kind: KindPortfolio, Portfolio: &p}, nil
}

// getJSON performs a GET and decodes the body into out.
// Transport failures and non-2xx are transient; undecodable bodies are malformed.
func (g *HTTP) getJSON(ctx context.Context, source, base, path string, query url.Values, out any) error {
	if base == "" {
		return domain.NewTransientError(source, 0, errors.New("no upstream configured"))
	}
	fullURL := base
	if path != "" {
		fullURL = strings.TrimRight(base, "/") + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.NewMalformedError(source, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return domain.NewTransientError(source, 0, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBody+1))
	if err != nil {
		return domain.NewTransientError(source, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if int64(len(body)) > g.maxBody {
		return domain.NewMalformedError(source, fmt.Errorf("response body exceeds %d bytes", g.maxBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Warn("Upstream returned non-2xx",
			slog.String("source", source),
			slog.Int("status", resp.StatusCode),
		)
		return domain.NewTransientError(source, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewMalformedError(source, fmt.Errorf("unmarshal response: %w", err))
	}

	g.logger.Debug("Upstream fetch ok",
		slog.String("source", source),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
