package capture

import (
	"bytes"
	"context"
	"image/png"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/GriffinCanCode/snapdiff/internal/trace"
)

// Settle configuration constants
const (
	// Hamming distance at or below which two frames count as the same render
	SettleMaxDistance = 5

	// Pause between settle frames
	SettleInterval = 100 * time.Millisecond
)

// Settle recaptures until two consecutive frames have near-identical
// perceptual hashes, so late layout shifts or fading content are not
// baked into a screenshot. The hash only gates capture; comparison stays
// exact per channel.
type Settle struct {
	next        Capturer
	frames      int
	maxDistance int
	interval    time.Duration
}

// NewSettle decorates next. frames <= 1 disables settling.
func NewSettle(next Capturer, frames int) *Settle {
	return &Settle{
		next:        next,
		frames:      frames,
		maxDistance: SettleMaxDistance,
		interval:    SettleInterval,
	}
}

// WithInterval overrides the pause between frames.
func (s *Settle) WithInterval(d time.Duration) *Settle {
	s.interval = d
	return s
}

// Capture returns the first frame whose hash matches its predecessor, or the
// last frame once the frame budget is spent.
func (s *Settle) Capture(ctx context.Context, req Request) ([]byte, error) {
	data, err := s.next.Capture(ctx, req)
	if err != nil || s.frames <= 1 {
		return data, err
	}

	prev := perceptionHash(data)
	for frame := 2; frame <= s.frames; frame++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.interval):
		}

		next, err := s.next.Capture(ctx, req)
		if err != nil {
			return nil, err
		}
		hash := perceptionHash(next)
		data = next

		if prev != nil && hash != nil {
			if dist, err := prev.Distance(hash); err == nil && dist <= s.maxDistance {
				trace.Logger(ctx).Debug("capture settled", "frames", frame, "distance", dist)
				return data, nil
			}
		}
		prev = hash
	}

	trace.Logger(ctx).Debug("capture did not settle", "frames", s.frames)
	return data, nil
}

// perceptionHash returns nil for frames that cannot be decoded; those never
// count as settled.
func perceptionHash(data []byte) *goimagehash.ImageHash {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil
	}
	return hash
}
