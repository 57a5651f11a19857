// Package baseline persists accepted reference images and the diagnostic
// artifacts produced when a capture no longer matches them.
package baseline

import (
	"errors"
	"fmt"
	"strings"
)

// Variant identifies which capture kind a baseline was taken with.
type Variant string

const (
	Page      Variant = ""
	Element   Variant = "element"
	Masked    Variant = "masked"
	Hover     Variant = "hover"
	Tolerance Variant = "tolerance"
)

var variantSuffixes = []Variant{Element, Masked, Hover, Tolerance}

// ErrInvalidName is returned for names that cannot be used as file names.
var ErrInvalidName = errors.New("baseline: invalid name")

// Artifact file suffixes.
const (
	imageExt     = ".png"
	actualSuffix = "-actual"
	diffSuffix   = "-diff"
)

// ParseVariant maps a suffix ("", "page", "element", ...) to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case Page, Element, Masked, Hover, Tolerance:
		return v, nil
	case "page", "full", "full-page":
		return Page, nil
	default:
		return "", fmt.Errorf("baseline: unknown variant %q", s)
	}
}

func (v Variant) String() string {
	if v == Page {
		return "page"
	}
	return string(v)
}

// Key is the deterministic identity of one baseline: {name}[-variant].
type Key struct {
	Name    string
	Variant Variant
}

// NewKey builds a key after validating the name.
func NewKey(name string, v Variant) (Key, error) {
	k := Key{Name: name, Variant: v}
	return k, k.Validate()
}

// Validate rejects names that would escape the baseline directory.
func (k Key) Validate() error {
	name := k.Name
	if name == "" || strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	// "home-element" as a page name is the element baseline of "home"
	lower := strings.ToLower(name)
	for _, v := range variantSuffixes {
		if strings.HasSuffix(lower, "-"+string(v)) {
			return fmt.Errorf("%w: %q ends in the reserved variant suffix %q", ErrInvalidName, name, v)
		}
	}
	// would collide with the artifact naming scheme
	if stem := strings.ToLower(k.String()); strings.HasSuffix(stem, actualSuffix) || strings.HasSuffix(stem, diffSuffix) {
		return fmt.Errorf("%w: %q is reserved for artifacts", ErrInvalidName, stem)
	}
	return nil
}

// String returns the file stem, e.g. "login-page-element".
func (k Key) String() string {
	if k.Variant == Page {
		return k.Name
	}
	return k.Name + "-" + string(k.Variant)
}

// BaselineFile returns "{key}.png".
func (k Key) BaselineFile() string { return k.String() + imageExt }

// ActualFile returns "{key}-actual.png".
func (k Key) ActualFile() string { return k.String() + actualSuffix + imageExt }

// DiffFile returns "{key}-diff.png".
func (k Key) DiffFile() string { return k.String() + diffSuffix + imageExt }
