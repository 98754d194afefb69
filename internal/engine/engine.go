package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market_engine/internal/domain"
	"market_engine/internal/gateway"
	"market_engine/internal/loader"
	"market_engine/internal/market"
	"market_engine/internal/orderbook"
	"market_engine/internal/portfolio"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notice shown once when the first load produced nothing.
const NoticeDegraded = "Live market data is unavailable. Operating on simulated or cached data."

// Recorder receives engine metrics. *infra.Metrics satisfies it.
type Recorder interface {
	ObserveFetch(kind string, err error, elapsed time.Duration)
	FastTick(branch string)
	LoadFailures(n int)
	SetState(state string)
	InvariantViolation()
	OrderPlaced(side string, err error)
}

// GlobalsCache persists the last good market globals.
type GlobalsCache interface {
	SaveGlobals(g domain.MarketGlobals) error
	LoadGlobals() (domain.MarketGlobals, bool, error)
}

// IconSyncer downloads instrument icons and returns local paths by ID.
type IconSyncer interface {
	Sync(ctx context.Context, instruments []domain.Instrument, concurrency int) map[string]string
}

// IconStore records where icons were saved.
type IconStore interface {
	SetIconPaths(paths map[string]string) error
}

// Deps wires the engine. Only Gateway is required.
type Deps struct {
	Gateway   gateway.Gateway
	Loader    *loader.Loader // built from Gateway when nil
	Tickers   *market.TickerStore
	Cache     domain.InstrumentCache
	Globals   GlobalsCache
	Settings  domain.SettingsStore
	Icons     IconSyncer
	IconStore IconStore
	Metrics   Recorder
	Clock     Clock
	Rand      *rand.Rand
	Logger    *slog.Logger
	DumpPath  string // written on a recovered loop panic
}

type resultKind int

const (
	resInitial resultKind = iota
	resInstruments
	resGlobals
	resPair
)

type result struct {
	kind resultKind
	gen  uint64
	pair string
	reqs []gateway.Request
	res  loader.Result
}

type command struct {
	fn   func(ctx context.Context)
	ran  bool // written by the loop before done is closed
	done chan struct{}
}

// Engine is the update scheduler. A single loop goroutine owns every write
// to the stores; readers get copies through Snapshot.
type Engine struct {
	cfg       Config
	loader    *loader.Loader
	tickers   *market.TickerStore
	books     *orderbook.Manager
	ledger    *portfolio.Ledger
	cache     domain.InstrumentCache
	globals   GlobalsCache
	settings  domain.SettingsStore
	icons     IconSyncer
	iconStore IconStore
	metrics   Recorder
	clock     Clock
	rng       *rand.Rand
	logger    *slog.Logger
	dumpPath  string

	state atomic.Int32

	// loop-owned
	gen         uint64
	fast        Ticker
	medium      Ticker
	remoteBusy  bool
	globalsBusy bool
	pairBusy    int

	mu          sync.RWMutex // guards the reader-visible fields below
	outcome     domain.LoadOutcome
	notice      string
	noticeShown bool
	news        []domain.NewsItem
	education   []domain.EducationItem
	orders      []domain.Order

	startMu   sync.Mutex
	cancel    context.CancelFunc
	cmds      chan *command
	results   chan result
	done      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
	bg        sync.WaitGroup
}

// New creates an idle engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Gateway == nil && deps.Loader == nil {
		return nil, errors.New("engine: gateway is required")
	}
	cfg = cfg.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	rng := deps.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	ld := deps.Loader
	if ld == nil {
		ld = loader.New(deps.Gateway,
			loader.WithLogger(logger),
			loader.WithObserver(func(kind gateway.Kind, err error, elapsed time.Duration) {
				metrics.ObserveFetch(string(kind), err, elapsed)
			}),
		)
	}
	tickers := deps.Tickers
	if tickers == nil {
		tickers = market.NewTickerStore()
	}

	return &Engine{
		cfg:       cfg,
		loader:    ld,
		tickers:   tickers,
		books:     orderbook.NewManager(cfg.TapeCapacity),
		ledger:    portfolio.NewLedger(logger),
		cache:     deps.Cache,
		globals:   deps.Globals,
		settings:  deps.Settings,
		icons:     deps.Icons,
		iconStore: deps.IconStore,
		metrics:   metrics,
		clock:     clock,
		rng:       rng,
		logger:    logger.With("module", "engine"),
		dumpPath:  deps.DumpPath,
		cmds:      make(chan *command),
		results:   make(chan result, 16),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
	}, nil
}

// Start launches the loop and the initial load. It returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateLoading)) {
		return domain.ErrAlreadyStarted
	}
	e.metrics.SetState(StateLoading.String())

	pair := e.restorePair()
	e.books.SwitchPair(pair)

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(loopCtx, pair)
	return nil
}

// Stop cancels every timer and waits for the loop to exit. In-flight
// fetches are abandoned and their results discarded.
func (e *Engine) Stop(ctx context.Context) error {
	e.startMu.Lock()
	cancel := e.cancel
	e.startMu.Unlock()

	prev := State(e.state.Swap(int32(StateStopped)))
	e.metrics.SetState(StateStopped.String())
	if prev == StateIdle || cancel == nil {
		e.readyOnce.Do(func() { close(e.ready) })
		return nil
	}
	cancel()

	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	bgDone := make(chan struct{})
	go func() {
		e.bg.Wait()
		close(bgDone)
	}()
	select {
	case <-bgDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is closed once the initial load has settled, or on Stop.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// SelectPair switches the order book and tape to pairID and restarts the
// medium cadence.
func (e *Engine) SelectPair(ctx context.Context, pairID string) error {
	pairID = strings.ToUpper(strings.TrimSpace(pairID))
	if pairID == "" {
		return domain.ErrInvalidPair
	}
	return e.do(ctx, func(ctx context.Context) {
		e.switchPair(ctx, pairID)
	})
}

// PlaceOrder reserves price*qty in the ledger, records the order and prints
// a synthetic trade on the tape. Nothing leaves the process.
func (e *Engine) PlaceOrder(ctx context.Context, side domain.Side, pairID string, price, qty float64) (domain.Order, error) {
	pairID = strings.ToUpper(strings.TrimSpace(pairID))
	if err := validateOrder(side, pairID, price, qty); err != nil {
		e.metrics.OrderPlaced(string(side), err)
		return domain.Order{}, err
	}

	var (
		order domain.Order
		err   error
	)
	if cerr := e.do(ctx, func(context.Context) {
		order, err = e.placeOrder(side, pairID, price, qty)
	}); cerr != nil {
		return domain.Order{}, cerr
	}
	e.metrics.OrderPlaced(string(side), err)
	return order, err
}

// CancelOrder releases an open order's reservation.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	var err error
	if cerr := e.do(ctx, func(context.Context) {
		err = e.cancelOrder(orderID)
	}); cerr != nil {
		return cerr
	}
	return err
}

// DismissNotice clears the degraded-mode notice for good.
func (e *Engine) DismissNotice() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notice = ""
}

// Snapshot returns copies of every store.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	outcome := e.outcome
	notice := e.notice
	news := append([]domain.NewsItem(nil), e.news...)
	edu := append([]domain.EducationItem(nil), e.education...)
	open := make([]domain.Order, 0, len(e.orders))
	for i := range e.orders {
		if e.orders[i].IsOpen() {
			open = append(open, e.orders[i])
		}
	}
	e.mu.RUnlock()

	return Snapshot{
		State:        e.State(),
		SelectedPair: e.books.Pair(),
		Instruments:  e.tickers.List(),
		Globals:      e.tickers.Globals(),
		OrderBook:    e.books.Book(),
		Trades:       e.books.Trades(),
		Portfolio:    e.ledger.Snapshot(),
		OpenOrders:   open,
		News:         news,
		Education:    edu,
		LoadOutcome:  outcome,
		Indicator:    outcome.Indicator(),
		Notice:       notice,
		TakenAt:      e.clock.Now(),
	}
}

// DumpState writes the current snapshot to a file (for post-mortem).
func (e *Engine) DumpState(filename string) {
	e.logger.Info("Dumping internal state...", slog.String("file", filename))

	b, err := json.MarshalIndent(e.Snapshot(), "", "  ")
	if err != nil {
		e.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		e.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}

// ======================================================================================
// Loop
// ======================================================================================

func (e *Engine) run(ctx context.Context, pair string) {
	defer close(e.done)
	defer e.teardown()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			if e.dumpPath != "" {
				e.DumpState(e.dumpPath)
			}
		}
	}()

	e.logger.Info("🚀 Engine loop started", slog.String("pair", pair))
	reqs := e.initialRequests(pair)
	e.spawn(ctx, result{kind: resInitial, gen: e.gen, pair: pair, reqs: reqs})

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping...")
			return
		case <-tickC(e.fast):
			if ctx.Err() == nil {
				e.onFastTick(ctx)
			}
		case <-tickC(e.medium):
			if ctx.Err() == nil {
				e.refreshPair(ctx)
			}
		case r := <-e.results:
			if ctx.Err() == nil {
				e.apply(ctx, r)
			}
		case c := <-e.cmds:
			if ctx.Err() == nil {
				c.fn(ctx)
				c.ran = true
			}
			close(c.done)
		}
	}
}

func tickC(t Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func (e *Engine) teardown() {
	if e.fast != nil {
		e.fast.Stop()
		e.fast = nil
	}
	if e.medium != nil {
		e.medium.Stop()
		e.medium = nil
	}
	e.state.Store(int32(StateStopped))
	e.metrics.SetState(StateStopped.String())

	e.tickers.Clear()
	e.books.Reset()
	e.ledger.Reset()
	e.mu.Lock()
	e.news = nil
	e.education = nil
	e.orders = nil
	e.mu.Unlock()

	e.readyOnce.Do(func() { close(e.ready) })
	e.logger.Info("🛑 Engine stopped")
}

// do runs fn on the loop goroutine and waits for it.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context)) error {
	if !e.State().Running() {
		return domain.ErrNotRunning
	}
	c := &command{fn: fn, done: make(chan struct{})}
	select {
	case e.cmds <- c:
	case <-e.done:
		return domain.ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-c.done:
	case <-e.done:
		select {
		case <-c.done:
		default:
			return domain.ErrNotRunning
		}
	}
	if !c.ran {
		return domain.ErrNotRunning
	}
	return nil
}

// spawn runs a batch off the loop and posts the result back.
func (e *Engine) spawn(ctx context.Context, r result) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		r.res = e.loader.LoadAll(ctx, r.reqs)
		select {
		case e.results <- r:
		case <-ctx.Done():
		}
	}()
}

// background runs persistence work off the loop.
func (e *Engine) background(fn func()) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Background task panic recovered", slog.Any("panic", r))
			}
		}()
		fn()
	}()
}

// setState moves to s unless the engine has been stopped.
func (e *Engine) setState(s State) {
	for {
		cur := e.state.Load()
		if State(cur) == StateStopped {
			return
		}
		if e.state.CompareAndSwap(cur, int32(s)) {
			if State(cur) != s {
				e.metrics.SetState(s.String())
			}
			return
		}
	}
}

// ======================================================================================
// Cadences
// ======================================================================================

func (e *Engine) initialRequests(pair string) []gateway.Request {
	return []gateway.Request{
		{Kind: gateway.KindInstruments, Limit: e.cfg.InstrumentsTop},
		{Kind: gateway.KindGlobals},
		{Kind: gateway.KindPortfolio},
		{Kind: gateway.KindOrderBook, PairID: pair, Limit: e.cfg.BookDepth},
		{Kind: gateway.KindTrades, PairID: pair, Limit: e.cfg.TapeCapacity},
		{Kind: gateway.KindNews, Limit: e.cfg.NewsLimit},
		{Kind: gateway.KindEducation},
	}
}

func (e *Engine) pairRequests(pair string) []gateway.Request {
	return []gateway.Request{
		{Kind: gateway.KindOrderBook, PairID: pair, Limit: e.cfg.BookDepth},
		{Kind: gateway.KindTrades, PairID: pair, Limit: e.cfg.TapeCapacity},
	}
}

// onFastTick samples the slow cadence, then either fetches the instrument
// table or perturbs it locally.
func (e *Engine) onFastTick(ctx context.Context) {
	if e.rng.Float64() < e.cfg.GlobalsSampleProb && !e.globalsBusy {
		e.globalsBusy = true
		e.spawn(ctx, result{kind: resGlobals, reqs: []gateway.Request{{Kind: gateway.KindGlobals}}})
	}

	if e.rng.Float64() < e.cfg.RemoteTickProb && !e.remoteBusy {
		e.remoteBusy = true
		e.metrics.FastTick("remote")
		e.spawn(ctx, result{kind: resInstruments, reqs: []gateway.Request{
			{Kind: gateway.KindInstruments, Limit: e.cfg.InstrumentsTop},
		}})
		return
	}
	e.perturb("local")
}

func (e *Engine) perturb(branch string) {
	n := e.tickers.PerturbAll(market.RandomWalk(e.rng, e.clock.Now()))
	if branch != "local" || n > 0 {
		e.metrics.FastTick(branch)
	}
}

// refreshPair starts the medium cadence load for the selected pair.
func (e *Engine) refreshPair(ctx context.Context) {
	pair := e.books.Pair()
	if pair == "" {
		return
	}
	e.pairBusy++
	if e.State() == StateLive {
		e.setState(StateRefreshing)
	}
	e.spawn(ctx, result{kind: resPair, gen: e.gen, pair: pair, reqs: e.pairRequests(pair)})
}

func (e *Engine) switchPair(ctx context.Context, pair string) {
	if e.books.SwitchPair(pair) == pair {
		return
	}
	e.gen++
	e.logger.Info("Pair selected", slog.String("pair", pair))

	// only the medium cadence restarts
	if e.medium != nil {
		e.medium.Stop()
		e.medium = e.clock.NewTicker(e.cfg.MediumInterval)
	}
	e.refreshPair(ctx)

	if e.settings != nil {
		e.background(func() {
			if err := e.settings.SaveConfig(domain.SettingSelectedPair, pair); err != nil {
				e.logger.Warn("Failed to persist selected pair", slog.Any("error", err))
			}
		})
	}
}

func (e *Engine) restorePair() string {
	if e.settings == nil {
		return e.cfg.DefaultPair
	}
	v, ok, err := e.settings.LoadConfig(domain.SettingSelectedPair)
	if err != nil {
		e.logger.Warn("Failed to load selected pair", slog.Any("error", err))
		return e.cfg.DefaultPair
	}
	if !ok || strings.TrimSpace(v) == "" {
		return e.cfg.DefaultPair
	}
	return v
}

// ======================================================================================
// Results
// ======================================================================================

func (e *Engine) apply(ctx context.Context, r result) {
	switch r.kind {
	case resInitial:
		e.applyInitial(ctx, r)
	case resInstruments:
		e.remoteBusy = false
		if !e.applyInstruments(r, r.reqs[0]) {
			// silent fallback to local simulation
			e.perturb("fallback")
		}
	case resGlobals:
		e.globalsBusy = false
		e.applyGlobals(r, r.reqs[0])
	case resPair:
		e.pairBusy--
		if r.gen == e.gen {
			e.applyPair(r)
			e.recordOutcome(r.res)
		}
		if e.pairBusy == 0 && e.State() == StateRefreshing {
			e.setState(StateLive)
		}
	}
}

func (e *Engine) applyInitial(ctx context.Context, r result) {
	var instrumentsOK bool
	for _, req := range r.reqs {
		switch req.Kind {
		case gateway.KindInstruments:
			instrumentsOK = e.applyInstruments(r, req)
			if instrumentsOK {
				e.syncIcons(ctx)
			}
		case gateway.KindGlobals:
			e.applyGlobals(r, req)
		case gateway.KindPortfolio:
			if p, ok := r.res.Payload(req.Key()); ok && p.Portfolio != nil {
				if err := e.ledger.Recompute(*p.Portfolio); err != nil {
					e.metrics.InvariantViolation()
				}
			}
		case gateway.KindNews:
			if p, ok := r.res.Payload(req.Key()); ok {
				e.mu.Lock()
				e.news = p.News
				e.mu.Unlock()
			}
		case gateway.KindEducation:
			if p, ok := r.res.Payload(req.Key()); ok {
				e.mu.Lock()
				e.education = p.Education
				e.mu.Unlock()
			}
		}
	}
	// a pair switch during Loading already fetched the new pair
	if r.gen == e.gen {
		e.applyPair(r)
	}

	e.recordOutcome(r.res)

	if !instrumentsOK {
		e.seedFromCache()
	}
	if r.res.Succeeded == 0 {
		e.mu.Lock()
		if !e.noticeShown {
			e.notice = NoticeDegraded
			e.noticeShown = true
		}
		e.mu.Unlock()
		e.logger.Warn("⚠️ Initial load failed completely, running degraded",
			slog.Int("failed", r.res.Failed),
		)
	} else {
		e.logger.Info("✅ Initial load settled",
			slog.Int("succeeded", r.res.Succeeded),
			slog.Int("failed", r.res.Failed),
		)
	}

	if e.pairBusy == 0 {
		e.setState(StateLive)
	} else {
		e.setState(StateRefreshing)
	}
	e.fast = e.clock.NewTicker(e.cfg.FastInterval)
	e.medium = e.clock.NewTicker(e.cfg.MediumInterval)
	e.readyOnce.Do(func() { close(e.ready) })
}

func (e *Engine) applyInstruments(r result, req gateway.Request) bool {
	p, ok := r.res.Payload(req.Key())
	if !ok || len(p.Instruments) == 0 {
		return false
	}
	if e.tickers.ReplaceAll(p.Instruments) == 0 {
		return false
	}
	if e.cache != nil {
		table := e.tickers.List()
		e.background(func() {
			if err := e.cache.SaveInstruments(table); err != nil {
				e.logger.Warn("Failed to cache instruments", slog.Any("error", err))
			}
		})
	}
	return true
}

func (e *Engine) applyGlobals(r result, req gateway.Request) {
	p, ok := r.res.Payload(req.Key())
	if !ok || p.Globals == nil {
		return
	}
	if !e.tickers.ReplaceGlobals(*p.Globals) {
		return
	}
	if e.globals != nil {
		g := *p.Globals
		e.background(func() {
			if err := e.globals.SaveGlobals(g); err != nil {
				e.logger.Warn("Failed to cache globals", slog.Any("error", err))
			}
		})
	}
}

func (e *Engine) applyPair(r result) {
	bookKey := gateway.Request{Kind: gateway.KindOrderBook, PairID: r.pair}.Key()
	tradesKey := gateway.Request{Kind: gateway.KindTrades, PairID: r.pair}.Key()

	if p, ok := r.res.Payload(bookKey); ok && p.Book != nil {
		e.books.SetBook(r.pair, *p.Book)
	}
	if p, ok := r.res.Payload(tradesKey); ok {
		e.books.PrependTrades(r.pair, p.Trades)
	}
}

func (e *Engine) recordOutcome(res loader.Result) {
	now := e.clock.Now()
	e.mu.Lock()
	prev := e.outcome
	e.outcome = domain.LoadOutcome{
		Succeeded:   res.Succeeded,
		Failed:      res.Failed,
		LastUpdated: now,
		LastSuccess: prev.LastSuccess,
	}
	if res.Succeeded > 0 {
		e.outcome.LastSuccess = now
	}
	e.mu.Unlock()
	e.metrics.LoadFailures(res.Failed)
}

// seedFromCache fills an empty table from the last persisted one.
func (e *Engine) seedFromCache() {
	if e.cache == nil || e.tickers.Len() > 0 {
		return
	}
	cached, err := e.cache.LoadInstruments()
	if err != nil {
		e.logger.Warn("Failed to read instrument cache", slog.Any("error", err))
		return
	}
	n := e.tickers.ReplaceAll(cached)
	if e.globals != nil && e.tickers.Globals().IsZero() {
		if g, ok, err := e.globals.LoadGlobals(); err == nil && ok {
			e.tickers.ReplaceGlobals(g)
		}
	}
	e.logger.Info("Seeded ticker table from cache", slog.Int("rows", n))
}

func (e *Engine) syncIcons(ctx context.Context) {
	if e.icons == nil {
		return
	}
	table := e.tickers.List()
	e.background(func() {
		paths := e.icons.Sync(ctx, table, e.cfg.IconConcurrency)
		if len(paths) == 0 || e.iconStore == nil {
			return
		}
		if err := e.iconStore.SetIconPaths(paths); err != nil {
			e.logger.Warn("Failed to record icon paths", slog.Any("error", err))
		}
	})
}

// ======================================================================================
// Orders
// ======================================================================================

func validateOrder(side domain.Side, pairID string, price, qty float64) error {
	if pairID == "" {
		return fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrInvalidPair)
	}
	if !side.Valid() {
		return fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, side)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: price must be positive", domain.ErrInvalidOrder)
	}
	if !(qty > 0) || math.IsInf(qty, 0) {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidOrder)
	}
	return nil
}

func (e *Engine) placeOrder(side domain.Side, pairID string, price, qty float64) (domain.Order, error) {
	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty)).
		Round(domain.PricePrecision).InexactFloat64()

	if err := e.ledger.Reserve(notional); err != nil {
		var iv *domain.InvariantViolation
		if errors.As(err, &iv) {
			e.metrics.InvariantViolation()
		}
		return domain.Order{}, err
	}

	now := e.clock.Now()
	order := domain.Order{
		ID:        uuid.NewString(),
		PairID:    pairID,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Reserved:  notional,
		Status:    domain.OrderStatusNew,
		CreatedAt: now,
	}
	e.mu.Lock()
	e.orders = append(e.orders, order)
	e.mu.Unlock()

	e.books.PrependTrades(pairID, []domain.Trade{{
		ID:        uuid.NewString(),
		PairID:    pairID,
		Price:     price,
		Quantity:  qty,
		Side:      side,
		Timestamp: now,
	}})

	e.logger.Info("Order placed",
		slog.String("id", order.ID),
		slog.String("pair", pairID),
		slog.String("side", string(side)),
		slog.Float64("reserved", notional),
	)
	return order, nil
}

func (e *Engine) cancelOrder(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.orders {
		o := &e.orders[i]
		if o.ID != id {
			continue
		}
		if !o.IsOpen() {
			return fmt.Errorf("%w: order %s is not open", domain.ErrInvalidOrder, id)
		}
		if err := e.ledger.Release(o.Reserved); err != nil {
			return err
		}
		o.Status = domain.OrderStatusCanceled
		return nil
	}
	return fmt.Errorf("%w: unknown order %s", domain.ErrInvalidOrder, id)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(string, error, time.Duration) {}
func (nopRecorder) FastTick(string)                           {}
func (nopRecorder) LoadFailures(int)                          {}
func (nopRecorder) SetState(string)                           {}
func (nopRecorder) InvariantViolation()                       {}
func (nopRecorder) OrderPlaced(string, error)                 {}
