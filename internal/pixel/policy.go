package pixel

import (
	"fmt"
	"math"
)

// Comparison defaults.
const (
	// DefaultChannelTolerance is the largest per-channel byte delta still treated as "similar".
	DefaultChannelTolerance = 10

	// DefaultMaxDiffPercent is the largest share of differing pixels (0-100) that still matches.
	DefaultMaxDiffPercent = 0.1

	// GhostAlpha is the alpha of similar pixels in the diff visualization.
	GhostAlpha = 80

	// minParallelPixels is the image size below which the scan stays on one goroutine.
	minParallelPixels = 64 * 1024
)

// Policy configures how two grids are compared.
type Policy struct {
	// ChannelTolerance: a pixel differs if any channel delta exceeds this value (0-255).
	ChannelTolerance uint8

	// MaxDiffPercent: the grids match if the share of differing pixels is <= this value (0-100).
	MaxDiffPercent float64

	// Workers bounds row-parallelism. 0 means GOMAXPROCS, 1 forces a serial scan.
	Workers int
}

// DefaultPolicy returns the standard anti-aliasing tolerant policy.
func DefaultPolicy() Policy {
	return Policy{
		ChannelTolerance: DefaultChannelTolerance,
		MaxDiffPercent:   DefaultMaxDiffPercent,
	}
}

// WithMaxDiffPercent returns a copy with a different whole-image threshold.
func (p Policy) WithMaxDiffPercent(pct float64) Policy {
	p.MaxDiffPercent = pct
	return p
}

// Validate rejects thresholds outside their documented ranges.
func (p Policy) Validate() error {
	if math.IsNaN(p.MaxDiffPercent) || p.MaxDiffPercent < 0 || p.MaxDiffPercent > 100 {
		return fmt.Errorf("pixel: max diff percent %v outside [0, 100]", p.MaxDiffPercent)
	}
	if p.Workers < 0 {
		return fmt.Errorf("pixel: negative worker count %d", p.Workers)
	}
	return nil
}
