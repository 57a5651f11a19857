// Package capture defines the contract between the comparison engine and the
// collaborator that renders UI surfaces into PNG screenshots.
package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"

	apperrors "github.com/GriffinCanCode/snapdiff/internal/errors"
	"github.com/GriffinCanCode/snapdiff/internal/pixel"
)

// Kind selects what surface is captured.
type Kind int

const (
	FullPage     Kind = iota // whole scrollable page
	Element                  // single element's bounding box
	ElementHover             // element after pointer hover
)

func (k Kind) String() string {
	switch k {
	case FullPage:
		return "full_page"
	case Element:
		return "element"
	case ElementHover:
		return "element_hover"
	default:
		return "unknown"
	}
}

// DefaultMaskColor is the uniform fill painted over masked regions.
var DefaultMaskColor = color.NRGBA{R: 0xFF, G: 0x00, B: 0xFF, A: 0xFF}

// Region identifies an area to mask, by selector or by page coordinates.
// Selector wins when both are set.
type Region struct {
	Selector string          `json:"selector,omitempty"`
	Rect     image.Rectangle `json:"rect"`
}

// IsZero reports whether the region names nothing.
func (r Region) IsZero() bool {
	return r.Selector == "" && r.Rect.Empty()
}

// Request describes a single capture.
type Request struct {
	Kind     Kind
	Target   string // element selector for Element and ElementHover
	URL      string // optional; empty keeps the current page
	Masks    []Region
	Viewport Viewport // optional; zero keeps the capturer's viewport
}

// Validate checks the request is satisfiable before any browser work.
func (r Request) Validate() error {
	switch r.Kind {
	case FullPage:
	case Element, ElementHover:
		if r.Target == "" {
			return apperrors.Newf(apperrors.CodeInvalidArgument, "%s capture requires a target", r.Kind)
		}
	default:
		return apperrors.Newf(apperrors.CodeInvalidArgument, "unknown capture kind %d", int(r.Kind))
	}
	for i, m := range r.Masks {
		if m.IsZero() {
			return apperrors.Newf(apperrors.CodeInvalidArgument, "mask %d is empty", i)
		}
		// rects are page coordinates; only a full-page screenshot shares them
		if m.Selector == "" && r.Kind != FullPage {
			return apperrors.Newf(apperrors.CodeInvalidArgument,
				"mask %d: coordinate masks need a full-page capture, use a selector for %s", i, r.Kind)
		}
	}
	if !r.Viewport.IsZero() {
		if err := r.Viewport.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Capturer produces PNG bytes for a request.
type Capturer interface {
	Capture(ctx context.Context, req Request) ([]byte, error)
}

// Func adapts a function to the Capturer interface.
type Func func(ctx context.Context, req Request) ([]byte, error)

// Capture calls f.
func (f Func) Capture(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// Decode turns PNG screenshot bytes into a Grid.
func Decode(data []byte) (*pixel.Grid, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CodeDecodeFailed, "empty screenshot")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDecodeFailed, "decode screenshot")
	}
	g := pixel.FromImage(img)
	if g.Width == 0 || g.Height == 0 {
		return nil, apperrors.New(apperrors.CodeDecodeFailed, "screenshot has no pixels")
	}
	return g, nil
}

// Encode writes a Grid as PNG bytes.
func Encode(g *pixel.Grid) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, g.Image()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode screenshot")
	}
	return buf.Bytes(), nil
}

// PaintMasks fills every coordinate-based region with c. Selector regions are
// skipped; those are painted in the DOM before the screenshot.
func PaintMasks(g *pixel.Grid, masks []Region, c color.NRGBA) int {
	painted := 0
	for _, m := range masks {
		if m.Selector != "" || m.Rect.Empty() {
			continue
		}
		g.Fill(m.Rect, c.R, c.G, c.B, c.A)
		painted++
	}
	return painted
}
