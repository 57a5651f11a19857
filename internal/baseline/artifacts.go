package baseline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/snapdiff/internal/pixel"
)

// Artifacts writes the investigation files kept next to a baseline when a
// comparison fails: the actual capture and the diff visualization.
type Artifacts struct {
	dir string
}

// NewArtifacts writes into the same directory as store.
func NewArtifacts(store *Store) *Artifacts {
	return &Artifacts{dir: store.Dir()}
}

// ActualPath returns "{dir}/{key}-actual.png".
func (a *Artifacts) ActualPath(key Key) string { return filepath.Join(a.dir, key.ActualFile()) }

// DiffPath returns "{dir}/{key}-diff.png".
func (a *Artifacts) DiffPath(key Key) string { return filepath.Join(a.dir, key.DiffFile()) }

// WriteDiff persists a visualization grid and returns its path.
func (a *Artifacts) WriteDiff(key Key, vis *pixel.Grid) (string, error) {
	path := a.DiffPath(key)
	if err := writeAtomic(path, vis); err != nil {
		return "", fmt.Errorf("baseline: write diff %s: %w", key, err)
	}
	return path, nil
}

// WriteActual persists the failing capture and returns its path.
func (a *Artifacts) WriteActual(key Key, g *pixel.Grid) (string, error) {
	path := a.ActualPath(key)
	if err := writeAtomic(path, g); err != nil {
		return "", fmt.Errorf("baseline: write actual %s: %w", key, err)
	}
	return path, nil
}

// RemoveActual deletes a retained actual capture, if any.
func (a *Artifacts) RemoveActual(key Key) error {
	return removeIfExists(a.ActualPath(key))
}

// RemoveDiff deletes a stale diff visualization, if any.
func (a *Artifacts) RemoveDiff(key Key) error {
	return removeIfExists(a.DiffPath(key))
}

// Remove deletes both artifacts for key.
func (a *Artifacts) Remove(key Key) error {
	if err := a.RemoveActual(key); err != nil {
		return err
	}
	return a.RemoveDiff(key)
}

// Sweep deletes every actual/diff artifact in the directory and returns the
// number of files removed. Baselines are never touched.
func (a *Artifacts) Sweep() (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("baseline: sweep: %w", err)
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isArtifact(name) {
			continue
		}
		if err := removeIfExists(filepath.Join(a.dir, name)); err != nil {
			return removed, fmt.Errorf("baseline: sweep %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

func isArtifact(name string) bool {
	stem, ok := strings.CutSuffix(name, imageExt)
	if !ok {
		return false
	}
	return strings.HasSuffix(stem, actualSuffix) || strings.HasSuffix(stem, diffSuffix)
}
