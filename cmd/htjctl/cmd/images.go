package cmd

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// readImage loads a netpbm, PNG, TIFF or BMP file. Netpbm precision comes
// from maxval and passes through the precision adapter.
func readImage(ctx context.Context, path string, strict bool, diag *htj2k.Diagnostics) (*htj2k.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pgm", ".ppm", ".pnm":
		p, err := readPNM(f)
		if err != nil {
			return nil, err
		}
		precision := 0
		for m := p.maxval; m > 0; m >>= 1 {
			precision++
		}
		return htj2k.FromSamples(ctx, p.width, p.height, p.samples, precision, strict, diag)
	}
	m, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	diag.Debug(ctx, "read image", "format", format, "bounds", m.Bounds())
	return htj2k.FromImage(m)
}

// writeImage stores img in the container named by the path extension.
func writeImage(path string, img *htj2k.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pgm", ".ppm", ".pnm", ".png", ".tif", ".tiff", ".bmp":
	default:
		return fmt.Errorf("%w: unknown output format %q", htj2k.ErrConfiguration, ext)
	}
	var m image.Image
	if ext != ".pgm" && ext != ".ppm" && ext != ".pnm" {
		var err error
		if m, err = img.ToImage(); err != nil {
			return err
		}
	}

	return writeFile(path, func(w io.Writer) error {
		switch ext {
		case ".png":
			return png.Encode(w, m)
		case ".tif", ".tiff":
			return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
		case ".bmp":
			return bmp.Encode(w, m)
		default:
			return writePNM(w, img)
		}
	})
}

// writeFile writes through a temporary file in the target directory and
// renames it into place, so a failed write leaves no file at path.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	if err = write(f); err != nil {
		return err
	}
	if err = f.Chmod(0o644); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
