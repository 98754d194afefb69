package portfolio

import (
	"fmt"
	"log/slog"
	"sync"

	"market_engine/internal/domain"

	"github.com/shopspring/decimal"
)

// Ledger holds the active account's portfolio aggregate and enforces the
// balance invariant at its boundary. A rejected update leaves the previous
// aggregate in place.
type Ledger struct {
	mu         sync.RWMutex
	p          domain.Portfolio
	loaded     bool
	violations int
	logger     *slog.Logger
}

// NewLedger creates an empty ledger.
func NewLedger(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{logger: logger.With("module", "portfolio")}
}

// Recompute replaces the aggregate wholesale. Partial data is not merged.
func (l *Ledger) Recompute(raw domain.Portfolio) error {
	if err := raw.VerifyInvariant(); err != nil {
		l.reject(err)
		return err
	}

	l.mu.Lock()
	l.p = raw
	l.loaded = true
	l.mu.Unlock()
	return nil
}

// Reserve moves amount from available into in-orders.
func (l *Ledger) Reserve(amount float64) error {
	return l.move(amount, true)
}

// Release moves amount from in-orders back to available.
func (l *Ledger) Release(amount float64) error {
	return l.move(amount, false)
}

func (l *Ledger) move(amount float64, reserve bool) error {
	amt := decimal.NewFromFloat(amount)
	if !amt.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidOrder)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	avail := decimal.NewFromFloat(l.p.AvailableBalance)
	locked := decimal.NewFromFloat(l.p.InOrders)

	if reserve {
		if amt.GreaterThan(avail) {
			return fmt.Errorf("%w: need %s, available %s", domain.ErrInsufficientBalance, amt, avail)
		}
		locked = locked.Add(amt)
	} else {
		// float round trips can leave in-orders a hair below the reserved sum
		if amt.GreaterThan(locked) && amt.Sub(locked).LessThanOrEqual(decimal.NewFromFloat(domain.BalanceTolerance)) {
			amt = locked
		}
		if amt.GreaterThan(locked) {
			return fmt.Errorf("%w: release %s exceeds in-orders %s", domain.ErrInvalidOrder, amt, locked)
		}
		locked = locked.Sub(amt)
	}

	next := l.p
	next.InOrders = locked.InexactFloat64()
	// derive available from the total so the buckets always add up
	next.AvailableBalance = decimal.NewFromFloat(next.TotalBalance).Sub(locked).InexactFloat64()
	if err := next.VerifyInvariant(); err != nil {
		l.rejectLocked(err)
		return err
	}
	l.p = next
	return nil
}

// Snapshot returns a copy of the aggregate.
func (l *Ledger) Snapshot() domain.Portfolio {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.p
}

// Loaded reports whether an authoritative portfolio has been accepted.
func (l *Ledger) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Violations returns how many updates were rejected.
func (l *Ledger) Violations() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.violations
}

// Reset clears the aggregate.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.p = domain.Portfolio{}
	l.loaded = false
}

func (l *Ledger) reject(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejectLocked(err)
}

func (l *Ledger) rejectLocked(err error) {
	l.violations++
	l.logger.Error("Portfolio update rejected", slog.Any("error", err))
}
