// Package history keeps recent comparison outcomes and fans them out to listeners.
package history

import (
	"time"

	"github.com/GriffinCanCode/snapdiff/internal/baseline"
)

// Status is the terminal state of one comparison request.
type Status int

const (
	StatusUnknown    Status = iota // never reached a terminal state
	StatusCreated                  // no baseline existed; capture accepted as the new baseline
	StatusMatched                  // within tolerance
	StatusMismatched               // dimension mismatch or tolerance exceeded
	StatusFailed                   // capture, decode or IO error
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusMatched:
		return "matched"
	case StatusMismatched:
		return "mismatched"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the record of one comparison request.
type Outcome struct {
	Key            baseline.Key  `json:"-"`
	Name           string        `json:"name"`
	Variant        string        `json:"variant"`
	Status         Status        `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	DiffPixels     int           `json:"diff_pixels"`
	TotalPixels    int           `json:"total_pixels"`
	DiffPercent    float64       `json:"diff_percent"`
	MaxDiffPercent float64       `json:"max_diff_percent"`
	BaselinePath   string        `json:"baseline_path,omitempty"`
	ActualPath     string        `json:"actual_path,omitempty"`
	DiffPath       string        `json:"diff_path,omitempty"`
	Error          string        `json:"error,omitempty"`
	Code           string        `json:"code,omitempty"`
	Viewport       string        `json:"viewport,omitempty"`
	TraceID        string        `json:"trace_id,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
	At             time.Time     `json:"at"`
}

// NewOutcome starts an outcome for key.
func NewOutcome(key baseline.Key) *Outcome {
	return &Outcome{
		Key:     key,
		Name:    key.Name,
		Variant: key.Variant.String(),
		At:      time.Now(),
	}
}

// Passed reports whether the request counts as a pass. Creating a baseline passes.
func (o *Outcome) Passed() bool {
	return o.Status == StatusCreated || o.Status == StatusMatched
}
