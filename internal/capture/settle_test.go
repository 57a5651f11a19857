package capture

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"

	"github.com/GriffinCanCode/snapdiff/internal/pixel"
)

func noisePNG(t *testing.T, seed uint64) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed*7+1))
	g := pixel.NewGrid(64, 64)
	for i := 0; i < len(g.Pix); i += 4 {
		v := uint8(rng.IntN(256))
		g.Pix[i], g.Pix[i+1], g.Pix[i+2], g.Pix[i+3] = v, v, v, 255
	}
	data, err := Encode(g)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func frames(calls *int, seq ...[]byte) Capturer {
	return Func(func(ctx context.Context, req Request) ([]byte, error) {
		i := min(*calls, len(seq)-1)
		*calls++
		return seq[i], nil
	})
}

func TestSettleDisabled(t *testing.T) {
	calls := 0
	s := NewSettle(frames(&calls, noisePNG(t, 1)), 0)

	if _, err := s.Capture(context.Background(), Request{Kind: FullPage}); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSettleStopsOnEqualFrames(t *testing.T) {
	a, b := noisePNG(t, 1), noisePNG(t, 2)
	calls := 0
	s := NewSettle(frames(&calls, a, b, b, a), 6).WithInterval(0)

	got, err := s.Capture(context.Background(), Request{Kind: FullPage})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !bytes.Equal(got, b) {
		t.Error("settled frame is not the repeated one")
	}
}

func TestSettleReturnsLastFrameWhenBudgetSpent(t *testing.T) {
	a, b, c := noisePNG(t, 1), noisePNG(t, 2), noisePNG(t, 3)
	calls := 0
	s := NewSettle(frames(&calls, a, b, c), 3).WithInterval(0)

	got, err := s.Capture(context.Background(), Request{Kind: FullPage})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !bytes.Equal(got, c) {
		t.Error("expected last frame")
	}
}

func TestSettleUndecodableFramesNeverSettle(t *testing.T) {
	calls := 0
	junk := []byte("junk")
	s := NewSettle(frames(&calls, junk), 4).WithInterval(0)

	got, err := s.Capture(context.Background(), Request{Kind: FullPage})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if !bytes.Equal(got, junk) {
		t.Error("expected raw frame passed through")
	}
}
