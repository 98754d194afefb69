package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// BalanceTolerance is the allowed drift between total and available+in-orders.
const BalanceTolerance = 1e-6

// Portfolio is the account aggregate shown next to the trading screen.
// Invariant: AvailableBalance + InOrders == TotalBalance (within BalanceTolerance).
type Portfolio struct {
	TotalBalance     float64 `json:"total_balance"`
	AvailableBalance float64 `json:"available_balance"`
	InOrders         float64 `json:"in_orders"`
	TotalPnLPct      float64 `json:"total_pnl_pct"`
}

// VerifyInvariant checks that the portfolio satisfies its invariants.
// Call this after any state change; a non-nil result is a defect.
func (p Portfolio) VerifyInvariant() error {
	for _, v := range []float64{p.TotalBalance, p.AvailableBalance, p.InOrders, p.TotalPnLPct} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvariantViolation{Rule: "PORTFOLIO_NOT_FINITE", Detail: fmt.Sprintf("%+v", p)}
		}
	}

	// Invariant 1: no negative buckets
	if p.AvailableBalance < -BalanceTolerance || p.InOrders < -BalanceTolerance {
		return &InvariantViolation{
			Rule:   "PORTFOLIO_NEGATIVE_BUCKET",
			Detail: fmt.Sprintf("available=%v in_orders=%v", p.AvailableBalance, p.InOrders),
		}
	}

	// Invariant 2: buckets add up to the total
	sum := decimal.NewFromFloat(p.AvailableBalance).Add(decimal.NewFromFloat(p.InOrders))
	diff := sum.Sub(decimal.NewFromFloat(p.TotalBalance)).Abs()
	if diff.GreaterThan(decimal.NewFromFloat(BalanceTolerance)) {
		return &InvariantViolation{
			Rule: "PORTFOLIO_BALANCE_MISMATCH",
			Detail: fmt.Sprintf("available=%v + in_orders=%v != total=%v",
				p.AvailableBalance, p.InOrders, p.TotalBalance),
		}
	}
	return nil
}
