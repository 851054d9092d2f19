// Package ui provides the Bubble Tea dashboard for the market-data engine.
package ui

import (
	"time"
)

// Message types for TUI updates

// PoolRowMsg is sent when a pool state changes.
type PoolRowMsg struct {
	ID           string
	Venue        string
	Pair         string
	SpotPrice    float64
	LiquidityUSD string
	Kind         string
}

// PriceRowMsg is sent when the oracle derives a USD price.
type PriceRowMsg struct {
	Token string
	Chain uint64
	Price float64
}

// ConnectionStatusMsg is sent when a watcher's status changes.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	LastBlock uint64
}

// BlockMsg is sent when a new block is received.
type BlockMsg struct {
	Platform  string
	Number    uint64
	Timestamp time.Time
}

// StatsMsg carries the aggregator's on-demand counts.
type StatsMsg struct {
	Pools    int
	Prices   int
	Events   int64
	Reorgs   int64
	Disabled int
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// LogMsg is sent to display a log line in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}
