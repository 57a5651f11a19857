package pixel

import (
	"fmt"
	"image"
	"runtime"
	"sync"
)

// Reason explains why a comparison did not match.
type Reason int

const (
	ReasonNone              Reason = iota // matched
	ReasonDimensionMismatch               // grids have different sizes
	ReasonToleranceExceeded               // too many differing pixels
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonDimensionMismatch:
		return "dimension_mismatch"
	case ReasonToleranceExceeded:
		return "tolerance_exceeded"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Result contains the outcome of a grid comparison.
type Result struct {
	Matched      bool
	DiffPixels   int
	TotalPixels  int
	DiffPercent  float64
	MaxDelta     int // largest channel delta seen
	Reason       Reason
	BaselineSize image.Point
	ActualSize   image.Point

	// differing pixels, one bit per pixel, each row starts on a word boundary
	baseline *Grid
	mask     []uint64
	rowWords int
}

// Compare scans baseline and actual once, row-major, and classifies every pixel.
// Grids of different size fail fast with ReasonDimensionMismatch.
func Compare(baseline, actual *Grid, policy Policy) (*Result, error) {
	if !baseline.valid() || !actual.valid() {
		return nil, ErrEmptyGrid
	}

	res := &Result{
		BaselineSize: baseline.Size(),
		ActualSize:   actual.Size(),
	}
	if !baseline.SameSize(actual) {
		res.Reason = ReasonDimensionMismatch
		return res, nil
	}

	w, h := baseline.Width, baseline.Height
	res.TotalPixels = w * h
	res.baseline = baseline
	res.rowWords = (w + 63) / 64
	res.mask = make([]uint64, res.rowWords*h)

	workers := workerCount(policy.Workers, w, h)
	counts := make([]int, workers)
	maxes := make([]int, workers)
	tol := int(policy.ChannelTolerance)

	forBands(h, workers, func(band, y0, y1 int) {
		counts[band], maxes[band] = scanRows(baseline, actual, tol, y0, y1, res.mask, res.rowWords)
	})

	for i := range counts {
		res.DiffPixels += counts[i]
		res.MaxDelta = max(res.MaxDelta, maxes[i])
	}
	res.DiffPercent = float64(res.DiffPixels) * 100 / float64(res.TotalPixels)
	res.Matched = res.DiffPercent <= policy.MaxDiffPercent
	if !res.Matched {
		res.Reason = ReasonToleranceExceeded
	}
	return res, nil
}

// scanRows compares rows [y0, y1) and marks differing pixels in mask.
func scanRows(b, a *Grid, tol, y0, y1 int, mask []uint64, rowWords int) (diff, maxDelta int) {
	stride := 4 * b.Width
	for y := y0; y < y1; y++ {
		bRow := b.Pix[y*stride : (y+1)*stride]
		aRow := a.Pix[y*stride : (y+1)*stride]
		bits := mask[y*rowWords : (y+1)*rowWords]
		for i, x := 0, 0; i < stride; i, x = i+4, x+1 {
			d := max(
				absDelta(bRow[i], aRow[i]),
				absDelta(bRow[i+1], aRow[i+1]),
				absDelta(bRow[i+2], aRow[i+2]),
				absDelta(bRow[i+3], aRow[i+3]),
			)
			if d > maxDelta {
				maxDelta = d
			}
			if d > tol {
				diff++
				bits[x>>6] |= 1 << (uint(x) & 63)
			}
		}
	}
	return diff, maxDelta
}

// Different reports whether the pixel at (x, y) was classified as differing.
func (r *Result) Different(x, y int) bool {
	if r.mask == nil {
		return false
	}
	return r.mask[y*r.rowWords+x>>6]&(1<<(uint(x)&63)) != 0
}

// Visualization renders the diff grid from the scan's classification without
// recomputing channel deltas: differing pixels are opaque red, similar pixels
// are the baseline's luminance at GhostAlpha. Nil for a dimension mismatch.
func (r *Result) Visualization() *Grid {
	if r.baseline == nil {
		return nil
	}
	w, h := r.baseline.Width, r.baseline.Height
	out := NewGrid(w, h)
	stride := 4 * w

	forBands(h, workerCount(0, w, h), func(_, y0, y1 int) {
		for y := y0; y < y1; y++ {
			src := r.baseline.Pix[y*stride : (y+1)*stride]
			dst := out.Pix[y*stride : (y+1)*stride]
			bits := r.mask[y*r.rowWords : (y+1)*r.rowWords]
			for i, x := 0, 0; i < stride; i, x = i+4, x+1 {
				if bits[x>>6]&(1<<(uint(x)&63)) != 0 {
					dst[i], dst[i+1], dst[i+2], dst[i+3] = 255, 0, 0, 255
					continue
				}
				gray := uint8((int(src[i]) + int(src[i+1]) + int(src[i+2])) / 3)
				dst[i], dst[i+1], dst[i+2], dst[i+3] = gray, gray, gray, GhostAlpha
			}
		}
	})
	return out
}

func workerCount(requested, w, h int) int {
	if w*h < minParallelPixels {
		return 1
	}
	n := requested
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return max(1, min(n, h))
}

// forBands splits [0, h) into contiguous row bands and runs fn on each.
// A single band runs on the calling goroutine.
func forBands(h, workers int, fn func(band, y0, y1 int)) {
	if workers <= 1 {
		fn(0, 0, h)
		return
	}
	per := (h + workers - 1) / workers
	var wg sync.WaitGroup
	for band := 0; band < workers; band++ {
		y0 := band * per
		y1 := min(y0+per, h)
		if y0 >= y1 {
			continue
		}
		wg.Add(1)
		go func(band, y0, y1 int) {
			defer wg.Done()
			fn(band, y0, y1)
		}(band, y0, y1)
	}
	wg.Wait()
}

func absDelta(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
