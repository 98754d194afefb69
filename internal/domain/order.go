package domain

import "time"

// Order is a locally placed order. Nothing is sent to an exchange.
type Order struct {
	ID        string    `json:"id"`
	PairID    string    `json:"pair_id"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Reserved  float64   `json:"reserved"` // quote amount locked in the ledger
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	OrderStatusNew      = "NEW"
	OrderStatusCanceled = "CANCELED"
)

// IsOpen checks if the order still holds reserved funds.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusNew
}

// Notional returns price * quantity.
func (o *Order) Notional() float64 {
	return o.Price * o.Quantity
}
