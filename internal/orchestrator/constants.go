// Package orchestrator runs capture-and-compare requests against stored baselines.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// Threshold used by the tolerance variant when a request does not name one (1% of pixels)
	DefaultToleranceDiffPercent = 1.0

	// Outcome history configuration
	HistoryMaxEntries  = 200
	HistoryEventBuffer = 100

	// Ledger batcher configuration
	LedgerBatcherMaxSize    = 50
	LedgerBatcherFlushDelay = 2 * time.Second
)
