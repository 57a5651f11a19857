package baseline

import (
	"bufio"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/GriffinCanCode/snapdiff/internal/pixel"
)

// writeAtomic encodes g as PNG into a temporary file in the target directory,
// syncs it, then renames it over path. A crash leaves either the old file or
// the new one, never a partial write.
func writeAtomic(path string, g *pixel.Grid) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = png.Encode(w, g.Image()); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readPNG(path string) (*pixel.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return pixel.FromImage(img), nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
