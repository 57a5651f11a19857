// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Outcomes returned by GET /api/outcomes when no limit is given
	DefaultOutcomeLimit = 50
	MaxOutcomeLimit     = 500

	// Per-message write deadline on WebSocket connections
	WSWriteTimeout = 5 * time.Second

	// Largest accepted compare request body
	MaxRequestBytes = 1 << 20

	// nginx convention for a client that went away mid-request
	statusClientClosedRequest = 499
)
