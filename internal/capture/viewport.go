package capture

import (
	"strconv"
	"strings"

	apperrors "github.com/GriffinCanCode/snapdiff/internal/errors"
)

// MaxViewportSide bounds either viewport dimension in CSS pixels.
const MaxViewportSide = 10_000

// Viewport is a CSS pixel page size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Viewport presets.
var (
	Mobile  = Viewport{Width: 390, Height: 844}
	Tablet  = Viewport{Width: 768, Height: 1024}
	Desktop = Viewport{Width: 1920, Height: 1080}
)

// IsZero reports whether no viewport was requested.
func (v Viewport) IsZero() bool { return v == Viewport{} }

func (v Viewport) String() string {
	return strconv.Itoa(v.Width) + "x" + strconv.Itoa(v.Height)
}

// Validate rejects sizes a browser cannot emulate.
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Width > MaxViewportSide || v.Height > MaxViewportSide {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "viewport %s outside 1..%d", v, MaxViewportSide)
	}
	return nil
}

// ViewportPreset resolves "mobile", "tablet" or "desktop".
func ViewportPreset(name string) (Viewport, bool) {
	switch strings.ToLower(name) {
	case "mobile":
		return Mobile, true
	case "tablet":
		return Tablet, true
	case "desktop":
		return Desktop, true
	default:
		return Viewport{}, false
	}
}

// ParseViewport accepts a preset name or "WIDTHxHEIGHT". Empty means no viewport.
func ParseViewport(s string) (Viewport, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Viewport{}, nil
	}
	if v, ok := ViewportPreset(s); ok {
		return v, nil
	}
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return Viewport{}, apperrors.Newf(apperrors.CodeInvalidArgument, "viewport %q is neither a preset nor WIDTHxHEIGHT", s)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil {
		return Viewport{}, apperrors.Newf(apperrors.CodeInvalidArgument, "viewport %q is neither a preset nor WIDTHxHEIGHT", s)
	}
	v := Viewport{Width: width, Height: height}
	return v, v.Validate()
}
