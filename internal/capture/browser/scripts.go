package browser

import (
	"fmt"
	"image/color"
	"log/slog"

	"github.com/go-rod/rod"
)

const maskAttr = "data-snapdiff-mask"

// freezeCSS stops animations, transitions and the caret so repeated
// captures of the same state render identically.
const freezeCSS = `*, *::before, *::after {
	animation-duration: 0s !important;
	animation-delay: 0s !important;
	animation-iteration-count: 1 !important;
	transition-duration: 0s !important;
	transition-delay: 0s !important;
	caret-color: transparent !important;
	scroll-behavior: auto !important;
}`

const freezeJS = `(css) => {
	let style = document.getElementById('snapdiff-freeze');
	if (!style) {
		style = document.createElement('style');
		style.id = 'snapdiff-freeze';
		(document.head || document.documentElement).appendChild(style);
	}
	style.textContent = css;
	for (const a of document.getAnimations ? document.getAnimations() : []) {
		try { a.finish(); } catch (e) { a.cancel(); }
	}
}`

const addMasksJS = `(sels, color, attr) => {
	let n = 0;
	for (const sel of sels) {
		for (const el of document.querySelectorAll(sel)) {
			const r = el.getBoundingClientRect();
			const d = document.createElement('div');
			d.setAttribute(attr, '');
			Object.assign(d.style, {
				position: 'absolute',
				left: (r.left + window.scrollX) + 'px',
				top: (r.top + window.scrollY) + 'px',
				width: r.width + 'px',
				height: r.height + 'px',
				background: color,
				zIndex: '2147483647',
				pointerEvents: 'none',
			});
			document.body.appendChild(d);
			n++;
		}
	}
	return n;
}`

const removeMasksJS = `(attr) => {
	document.querySelectorAll('[' + attr + ']').forEach(e => e.remove());
}`

func freezeAnimations(page *rod.Page) error {
	if _, err := page.Eval(freezeJS, freezeCSS); err != nil {
		return wrap(err, "browser: freeze animations")
	}
	return nil
}

func addMaskOverlays(page *rod.Page, selectors []string, c color.NRGBA) error {
	res, err := page.Eval(addMasksJS, selectors, cssColor(c), maskAttr)
	if err != nil {
		return wrap(err, "browser: mask overlays")
	}
	if res.Value.Int() == 0 {
		slog.Debug("browser: mask selectors matched nothing", "selectors", selectors)
	}
	return nil
}

func removeMaskOverlays(page *rod.Page, log *slog.Logger) {
	if _, err := page.Eval(removeMasksJS, maskAttr); err != nil {
		log.Warn("browser: remove mask overlays", "error", err)
	}
}

func cssColor(c color.NRGBA) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %.3f)", c.R, c.G, c.B, float64(c.A)/255)
}
