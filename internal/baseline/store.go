package baseline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GriffinCanCode/snapdiff/internal/pixel"
)

// ErrNotFound is returned by Load when no baseline exists for a key.
var ErrNotFound = errors.New("baseline: not found")

// Store is a filesystem-backed key/value store of baseline images.
// It never overwrites a baseline on its own; Save is only called by the
// orchestrator on the "no baseline yet" path.
type Store struct {
	dir string
}

// NewStore creates the baseline directory if needed.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("baseline: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("baseline: create dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute baseline directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the baseline file path for key.
func (s *Store) Path(key Key) string {
	return filepath.Join(s.dir, key.BaselineFile())
}

// Exists reports whether a baseline has been recorded for key.
func (s *Store) Exists(key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.Path(key))
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("baseline: stat %s: %w", key, err)
	}
}

// Load decodes the baseline for key.
func (s *Store) Load(key Key) (*pixel.Grid, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	g, err := readPNG(s.Path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("baseline: load %s: %w", key, err)
	}
	return g, nil
}

// Save atomically writes g as the baseline for key.
func (s *Store) Save(key Key, g *pixel.Grid) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := writeAtomic(s.Path(key), g); err != nil {
		return fmt.Errorf("baseline: save %s: %w", key, err)
	}
	return nil
}

// Delete removes the baseline for key. Absent baselines are not an error.
func (s *Store) Delete(key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := removeIfExists(s.Path(key)); err != nil {
		return fmt.Errorf("baseline: delete %s: %w", key, err)
	}
	return nil
}
