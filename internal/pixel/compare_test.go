package pixel

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func solidGrid(w, h int, c color.NRGBA) *Grid {
	g := NewGrid(w, h)
	g.Fill(image.Rect(0, 0, w, h), c.R, c.G, c.B, c.A)
	return g
}

func TestCompareIdentical(t *testing.T) {
	a := solidGrid(16, 16, color.NRGBA{R: 40, G: 80, B: 120, A: 255})
	b := a.Clone()

	res, err := Compare(a, b, DefaultPolicy())
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if !res.Matched {
		t.Error("identical grids should match")
	}
	if res.DiffPixels != 0 {
		t.Errorf("DiffPixels = %d, want 0", res.DiffPixels)
	}
	if res.DiffPercent != 0 {
		t.Errorf("DiffPercent = %f, want 0", res.DiffPercent)
	}
	if res.Reason != ReasonNone {
		t.Errorf("Reason = %v, want none", res.Reason)
	}
}

func TestCompareDimensionMismatch(t *testing.T) {
	a := solidGrid(10, 10, color.NRGBA{A: 255})
	b := solidGrid(10, 11, color.NRGBA{A: 255})

	res, err := Compare(a, b, DefaultPolicy())
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if res.Matched {
		t.Error("different sizes should not match")
	}
	if res.Reason != ReasonDimensionMismatch {
		t.Errorf("Reason = %v, want dimension_mismatch", res.Reason)
	}
	if res.TotalPixels != 0 || res.DiffPixels != 0 {
		t.Errorf("no pixels should be scanned, got total=%d diff=%d", res.TotalPixels, res.DiffPixels)
	}
	if res.Visualization() != nil {
		t.Error("dimension mismatch should produce no visualization")
	}
	if res.ActualSize != image.Pt(10, 11) {
		t.Errorf("ActualSize = %v, want (10,11)", res.ActualSize)
	}
}

func TestCompareEmptyGrid(t *testing.T) {
	a := NewGrid(0, 0)
	b := solidGrid(2, 2, color.NRGBA{A: 255})

	if _, err := Compare(a, b, DefaultPolicy()); !errors.Is(err, ErrEmptyGrid) {
		t.Errorf("Compare() error = %v, want ErrEmptyGrid", err)
	}
	if _, err := Compare(b, &Grid{Width: 2, Height: 2}, DefaultPolicy()); !errors.Is(err, ErrEmptyGrid) {
		t.Errorf("Compare() with short buffer error = %v, want ErrEmptyGrid", err)
	}
}

func TestCompareSinglePixel(t *testing.T) {
	base := solidGrid(10, 10, color.NRGBA{R: 90, G: 120, B: 150, A: 255})
	actual := base.Clone()
	actual.Set(3, 7, 200, 0, 0, 255)

	policy := Policy{ChannelTolerance: 10, MaxDiffPercent: 0.1}
	res, err := Compare(base, actual, policy)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if res.DiffPixels != 1 {
		t.Errorf("DiffPixels = %d, want 1", res.DiffPixels)
	}
	if res.DiffPercent != 1.0 {
		t.Errorf("DiffPercent = %f, want 1.0", res.DiffPercent)
	}
	if res.Matched {
		t.Error("1% difference should exceed 0.1% threshold")
	}
	if res.Reason != ReasonToleranceExceeded {
		t.Errorf("Reason = %v, want tolerance_exceeded", res.Reason)
	}

	vis := res.Visualization()
	if vis == nil {
		t.Fatal("Visualization() = nil")
	}
	gray := uint8((90 + 120 + 150) / 3)
	red, ghost := 0, 0
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			r, g, b, a := vis.At(x, y)
			switch {
			case r == 255 && g == 0 && b == 0 && a == 255:
				red++
				if x != 3 || y != 7 {
					t.Errorf("unexpected red pixel at (%d,%d)", x, y)
				}
			case r == gray && g == gray && b == gray && a == GhostAlpha:
				ghost++
			default:
				t.Errorf("pixel (%d,%d) = %v,%v,%v,%v, want red or ghost", x, y, r, g, b, a)
			}
		}
	}
	if red != 1 || ghost != 99 {
		t.Errorf("red=%d ghost=%d, want 1 and 99", red, ghost)
	}
}

func TestCompareChannelBoundary(t *testing.T) {
	tests := []struct {
		name  string
		delta uint8
		diff  bool
	}{
		{"below", 9, false},
		{"equal", 10, false},
		{"above", 11, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := solidGrid(4, 4, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
			actual := base.Clone()
			actual.Set(0, 0, 100, 100+tt.delta, 100, 255)

			res, err := Compare(base, actual, Policy{ChannelTolerance: 10, MaxDiffPercent: 0})
			if err != nil {
				t.Fatalf("Compare() error = %v", err)
			}
			if got := res.Different(0, 0); got != tt.diff {
				t.Errorf("Different(0,0) = %v, want %v", got, tt.diff)
			}
			if res.Matched == tt.diff {
				t.Errorf("Matched = %v, want %v", res.Matched, !tt.diff)
			}
			if res.MaxDelta != int(tt.delta) {
				t.Errorf("MaxDelta = %d, want %d", res.MaxDelta, tt.delta)
			}
		})
	}
}

func TestCompareAlphaChannelCounts(t *testing.T) {
	base := solidGrid(2, 2, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	actual := base.Clone()
	actual.Set(1, 1, 10, 10, 10, 0)

	res, _ := Compare(base, actual, Policy{ChannelTolerance: 10, MaxDiffPercent: 100})
	if res.DiffPixels != 1 {
		t.Errorf("DiffPixels = %d, want 1", res.DiffPixels)
	}
	if !res.Matched {
		t.Error("should match under a 100% threshold")
	}
}

func TestCompareThresholdInclusive(t *testing.T) {
	base := solidGrid(10, 10, color.NRGBA{A: 255})
	actual := base.Clone()
	actual.Set(0, 0, 255, 255, 255, 255)

	res, _ := Compare(base, actual, Policy{ChannelTolerance: 0, MaxDiffPercent: 1.0})
	if !res.Matched {
		t.Errorf("DiffPercent %f equal to threshold should match", res.DiffPercent)
	}
}

func TestCompareParallelMatchesSerial(t *testing.T) {
	const w, h = 700, 300 // above minParallelPixels
	base := NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base.Set(x, y, uint8(x), uint8(y), uint8(x^y), 255)
		}
	}
	actual := base.Clone()
	for i := 0; i < h; i += 7 {
		actual.Set((i*13)%w, i, 0, 255, 0, 255)
	}

	serial, err := Compare(base, actual, Policy{ChannelTolerance: 10, Workers: 1})
	if err != nil {
		t.Fatalf("serial Compare() error = %v", err)
	}
	parallel, err := Compare(base, actual, Policy{ChannelTolerance: 10, Workers: 8})
	if err != nil {
		t.Fatalf("parallel Compare() error = %v", err)
	}

	if serial.DiffPixels != parallel.DiffPixels {
		t.Errorf("DiffPixels serial=%d parallel=%d", serial.DiffPixels, parallel.DiffPixels)
	}
	if serial.MaxDelta != parallel.MaxDelta {
		t.Errorf("MaxDelta serial=%d parallel=%d", serial.MaxDelta, parallel.MaxDelta)
	}
	for i := 0; i < h; i += 7 {
		x := (i * 13) % w
		if !parallel.Different(x, i) {
			t.Errorf("pixel (%d,%d) should be marked different", x, i)
		}
	}
}

func TestReasonString(t *testing.T) {
	tests := []struct {
		r    Reason
		want string
	}{
		{ReasonNone, "none"},
		{ReasonDimensionMismatch, "dimension_mismatch"},
		{ReasonToleranceExceeded, "tolerance_exceeded"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("Reason(%d).String() = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestFromImageRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{R: 255, G: 0, B: 0, A: 255})

	g := FromImage(img)
	if g.Width != 3 || g.Height != 2 {
		t.Fatalf("size = %dx%d, want 3x2", g.Width, g.Height)
	}
	r, _, _, a := g.At(1, 1)
	if r != 255 || a != 255 {
		t.Errorf("At(1,1) r=%d a=%d, want 255 255", r, a)
	}
	if got := g.Image().NRGBAAt(1, 1); got.R != 255 {
		t.Errorf("Image().NRGBAAt(1,1).R = %d, want 255", got.R)
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"exact", Policy{MaxDiffPercent: 0}, false},
		{"everything", Policy{MaxDiffPercent: 100}, false},
		{"negative percent", Policy{MaxDiffPercent: -1}, true},
		{"over 100", Policy{MaxDiffPercent: 100.5}, true},
		{"NaN", Policy{MaxDiffPercent: math.NaN()}, true},
		{"negative workers", Policy{Workers: -2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.policy.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkCompareFullHD(b *testing.B) {
	base := solidGrid(1920, 1080, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	actual := base.Clone()
	actual.Fill(image.Rect(100, 100, 300, 300), 0, 0, 0, 255)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Compare(base, actual, DefaultPolicy())
	}
}
