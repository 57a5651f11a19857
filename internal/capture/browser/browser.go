// Package browser drives Chrome through go-rod to capture pages, elements and
// hover states as PNG screenshots.
package browser

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/GriffinCanCode/snapdiff/internal/capture"
	apperrors "github.com/GriffinCanCode/snapdiff/internal/errors"
)

// Browser defaults
const (
	DefaultHoverDelay      = 500 * time.Millisecond
	DefaultNavigateTimeout = 30 * time.Second
	DefaultElementTimeout  = 10 * time.Second
)

// Config configures the browser capturer.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local Chrome via launcher.
	RemoteURL string

	Headless bool
	Stealth  bool // open pages through go-rod/stealth

	Viewport        capture.Viewport
	HoverDelay      time.Duration // settle time after hovering before the screenshot
	NavigateTimeout time.Duration
	ElementTimeout  time.Duration // how long to wait for a target selector
	MaskColor       color.NRGBA

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = capture.Desktop
	}
	if c.HoverDelay <= 0 {
		c.HoverDelay = DefaultHoverDelay
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = DefaultNavigateTimeout
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = DefaultElementTimeout
	}
	if c.MaskColor == (color.NRGBA{}) {
		c.MaskColor = capture.DefaultMaskColor
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Capturer owns one Chrome and one page. Captures are serialized on the page.
type Capturer struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	closed  bool
}

// New creates a browser Capturer. Call Start to launch Chrome.
func New(cfg Config) *Capturer {
	cfg.defaults()
	return &Capturer{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance) and opens the
// capture page at the configured viewport.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperrors.New(apperrors.CodeUnavailable, "browser: capturer is closed")
	}
	if c.page != nil {
		return nil
	}

	if err := c.launch(ctx); err != nil {
		c.cleanup()
		return err
	}
	if err := c.openPage(); err != nil {
		c.cleanup()
		return err
	}
	return nil
}

func (c *Capturer) launch(ctx context.Context) error {
	log := c.cfg.Logger

	wsURL := c.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(c.cfg.Headless)
		if c.cfg.Stealth {
			l = l.Set("disable-blink-features", "AutomationControlled")
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeUnavailable, "browser: launch")
		}
		wsURL = u
		c.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", c.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "browser: connect")
	}
	c.browser = b

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return nil
}

func (c *Capturer) openPage() error {
	var page *rod.Page
	var err error
	if c.cfg.Stealth {
		page, err = stealth.Page(c.browser)
	} else {
		page, err = c.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "browser: create page")
	}
	c.page = page
	return c.setViewportLocked(c.cfg.Viewport)
}

// SetViewport resizes the capture page.
func (c *Capturer) SetViewport(v capture.Viewport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil {
		return apperrors.New(apperrors.CodeUnavailable, "browser: not started")
	}
	return c.setViewportLocked(v)
}

func (c *Capturer) setViewportLocked(v capture.Viewport) error {
	if err := v.Validate(); err != nil {
		return err
	}
	err := c.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             v.Width,
		Height:            v.Height,
		DeviceScaleFactor: 1,
		Mobile:            v.Width < capture.Tablet.Width,
	})
	if err != nil {
		return wrap(err, "browser: set viewport")
	}
	c.cfg.Viewport = v
	return nil
}

// Navigate loads url in the capture page and waits for the load event.
func (c *Capturer) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil {
		return apperrors.New(apperrors.CodeUnavailable, "browser: not started")
	}
	return c.navigateLocked(ctx, url)
}

func (c *Capturer) navigateLocked(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigateTimeout)
	defer cancel()

	page := c.page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return wrap(err, fmt.Sprintf("browser: navigate %s", url))
	}
	if err := page.WaitLoad(); err != nil {
		c.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Capture implements capture.Capturer.
func (c *Capturer) Capture(ctx context.Context, req capture.Request) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page == nil {
		return nil, apperrors.New(apperrors.CodeUnavailable, "browser: not started")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !req.Viewport.IsZero() && req.Viewport != c.cfg.Viewport {
		prev := c.cfg.Viewport
		if err := c.setViewportLocked(req.Viewport); err != nil {
			return nil, err
		}
		defer func() {
			if err := c.setViewportLocked(prev); err != nil {
				c.cfg.Logger.Warn("browser: restore viewport", "viewport", prev.String(), "error", err)
			}
		}()
	}
	if req.URL != "" {
		if err := c.navigateLocked(ctx, req.URL); err != nil {
			return nil, err
		}
	}

	page := c.page.Context(ctx)
	if err := freezeAnimations(page); err != nil {
		return nil, err
	}

	selectors := selectorMasks(req.Masks)
	if len(selectors) > 0 {
		if err := addMaskOverlays(page, selectors, c.cfg.MaskColor); err != nil {
			return nil, err
		}
		defer removeMaskOverlays(c.page, c.cfg.Logger)
	}

	var data []byte
	var err error
	switch req.Kind {
	case capture.FullPage:
		data, err = page.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
		if err != nil {
			return nil, wrap(err, "browser: page screenshot")
		}
		return c.paintRectMasks(data, req.Masks)
	case capture.Element, capture.ElementHover:
		el, err := page.Timeout(c.cfg.ElementTimeout).Element(req.Target)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeNotFound, "browser: element %q", req.Target)
		}
		el = el.CancelTimeout().Context(ctx)
		if req.Kind == capture.ElementHover {
			if err := c.hover(ctx, el); err != nil {
				return nil, err
			}
			defer func() { _ = c.page.Mouse.MoveTo(proto.Point{X: 0, Y: 0}) }()
		}
		data, err = el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err != nil {
			return nil, wrap(err, "browser: element screenshot")
		}
		return data, nil
	default:
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "browser: unsupported capture kind %s", req.Kind)
	}
}

func (c *Capturer) hover(ctx context.Context, el *rod.Element) error {
	if err := el.ScrollIntoView(); err != nil {
		return wrap(err, "browser: scroll into view")
	}
	if err := el.Hover(); err != nil {
		return wrap(err, "browser: hover")
	}
	select {
	case <-ctx.Done():
		return wrap(ctx.Err(), "browser: hover delay")
	case <-time.After(c.cfg.HoverDelay):
	}
	return nil
}

// paintRectMasks applies coordinate masks to a full-page screenshot.
// Request.Validate keeps rect masks off element captures.
func (c *Capturer) paintRectMasks(data []byte, masks []capture.Region) ([]byte, error) {
	if !hasRectMasks(masks) {
		return data, nil
	}
	g, err := capture.Decode(data)
	if err != nil {
		return nil, err
	}
	capture.PaintMasks(g, masks, c.cfg.MaskColor)
	return capture.Encode(g)
}

// Close shuts down the page and Chrome.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cleanup()
	return nil
}

func (c *Capturer) cleanup() {
	if c.page != nil {
		_ = c.page.Close()
		c.page = nil
	}
	if c.browser != nil {
		_ = c.browser.Close()
		c.browser = nil
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
		c.lnch = nil
	}
}

func selectorMasks(masks []capture.Region) []string {
	var sels []string
	for _, m := range masks {
		if m.Selector != "" {
			sels = append(sels, m.Selector)
		}
	}
	return sels
}

func hasRectMasks(masks []capture.Region) bool {
	for _, m := range masks {
		if m.Selector == "" && !m.Rect.Empty() {
			return true
		}
	}
	return false
}

// wrap classifies rod/CDP errors. Deadline and cancellation keep their
// meaning; everything else is a transient capture failure.
func wrap(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case apperrors.CodeOf(err) != apperrors.CodeUnknown:
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.CodeTimeout, msg)
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeCancelled, msg)
	default:
		return apperrors.Wrap(err, apperrors.CodeCaptureFailed, msg)
	}
}
