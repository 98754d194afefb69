package engine

import (
	"time"

	"market_engine/internal/gateway"
	"market_engine/internal/orderbook"
)

// Config holds the scheduler cadences and probabilities.
type Config struct {
	DefaultPair       string
	InstrumentsTop    int
	FastInterval      time.Duration // local perturbation or remote refresh
	MediumInterval    time.Duration // order book + trades of the selected pair
	RemoteTickProb    float64       // chance a fast tick fetches instead of perturbing
	GlobalsSampleProb float64       // chance a fast tick also refreshes globals
	TapeCapacity      int
	BookDepth         int
	NewsLimit         int
	IconConcurrency   int
}

// DefaultConfig returns the production cadences.
func DefaultConfig() Config {
	return Config{
		DefaultPair:       "BTC-USDT",
		InstrumentsTop:    gateway.DefaultInstrumentsTop,
		FastInterval:      30 * time.Second,
		MediumInterval:    60 * time.Second,
		RemoteTickProb:    0.10,
		GlobalsSampleProb: 0.05,
		TapeCapacity:      orderbook.DefaultTapeCapacity,
		BookDepth:         gateway.DefaultDepth,
		NewsLimit:         gateway.DefaultNewsLimit,
		IconConcurrency:   4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultPair == "" {
		c.DefaultPair = d.DefaultPair
	}
	if c.InstrumentsTop <= 0 {
		c.InstrumentsTop = d.InstrumentsTop
	}
	if c.FastInterval <= 0 {
		c.FastInterval = d.FastInterval
	}
	if c.MediumInterval <= 0 {
		c.MediumInterval = d.MediumInterval
	}
	if c.TapeCapacity <= 0 {
		c.TapeCapacity = d.TapeCapacity
	}
	if c.BookDepth <= 0 {
		c.BookDepth = d.BookDepth
	}
	if c.NewsLimit <= 0 {
		c.NewsLimit = d.NewsLimit
	}
	if c.IconConcurrency <= 0 {
		c.IconConcurrency = d.IconConcurrency
	}
	return c
}
