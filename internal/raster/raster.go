// Package raster holds the base data types for geo-referenced pixel grids:
// the Raster value itself, its affine transform, and validation of the
// metadata every downstream stage depends on.
package raster

import (
	"errors"
	"fmt"
)

// Validation errors surfaced before any processing begins.
var (
	ErrMissingCRS        = errors.New("raster has no CRS defined")
	ErrMissingTransform  = errors.New("raster has no affine transform defined")
	ErrInvalidDimensions = errors.New("raster dimensions are invalid")
)

// Transform is an affine geotransform with coefficients [a b c d e f]
// mapping a pixel position to georeferenced coordinates:
//
//	x = a*col + b*row + c
//	y = d*col + e*row + f
type Transform [6]float64

// Apply maps a pixel position to georeferenced coordinates.
func (t Transform) Apply(col, row float64) (x, y float64) {
	x = t[0]*col + t[1]*row + t[2]
	y = t[3]*col + t[4]*row + t[5]
	return x, y
}

// Shift derives the transform of a sub-window whose top-left pixel sits at
// (col, row) in the parent grid. Scale and rotation terms carry over; only
// the origin moves.
func (t Transform) Shift(col, row int) Transform {
	x, y := t.Apply(float64(col), float64(row))
	return Transform{t[0], t[1], x, t[3], t[4], y}
}

// IsZero reports whether all coefficients are zero, i.e. no transform was
// ever set.
func (t Transform) IsZero() bool {
	for _, c := range t {
		if c != 0 {
			return false
		}
	}
	return true
}

// Raster is an in-memory pixel grid with its geospatial metadata. Pixels are
// stored band-major: Pixels[band*Width*Height + row*Width + col].
type Raster struct {
	Width  int
	Height int
	Bands  int

	// CRS identifies the coordinate reference system, e.g. "EPSG:32633".
	CRS string

	Transform Transform

	// NoData, when non-nil, marks pixels that carry no measurement and
	// must be excluded from statistics.
	NoData *float64

	Pixels []float64
}

// At returns the pixel value at (band, row, col). Bounds are the caller's
// responsibility.
func (r *Raster) At(band, row, col int) float64 {
	return r.Pixels[band*r.Width*r.Height+row*r.Width+col]
}

// ValidateMeta fails fast on metadata that makes a raster unprocessable:
// missing CRS, missing transform, or non-positive dimensions. It does not
// inspect the pixel buffer, so it also applies to windowed readers that
// have not loaded pixels yet.
func (r *Raster) ValidateMeta() error {
	if r.Width <= 0 || r.Height <= 0 || r.Bands <= 0 {
		return fmt.Errorf("%w: width=%d height=%d bands=%d", ErrInvalidDimensions, r.Width, r.Height, r.Bands)
	}
	if r.CRS == "" {
		return ErrMissingCRS
	}
	if r.Transform.IsZero() {
		return ErrMissingTransform
	}
	return nil
}

// Validate runs ValidateMeta and additionally checks that the pixel buffer
// matches the declared shape.
func (r *Raster) Validate() error {
	if err := r.ValidateMeta(); err != nil {
		return err
	}
	if want := r.Width * r.Height * r.Bands; len(r.Pixels) != want {
		return fmt.Errorf("%w: pixel buffer has %d values, want %d", ErrInvalidDimensions, len(r.Pixels), want)
	}
	return nil
}

// Window copies a rectangular sub-grid of height x width pixels whose
// top-left corner is at (row, col), deriving the window's transform from the
// parent and inheriting CRS and nodata. The returned Raster owns its pixel
// buffer; the parent is not retained.
func (r *Raster) Window(row, col, height, width int) (*Raster, error) {
	if row < 0 || col < 0 || height <= 0 || width <= 0 ||
		row+height > r.Height || col+width > r.Width {
		return nil, fmt.Errorf("window [%d:%d, %d:%d] out of bounds for %dx%d raster",
			row, row+height, col, col+width, r.Height, r.Width)
	}

	w := &Raster{
		Width:     width,
		Height:    height,
		Bands:     r.Bands,
		CRS:       r.CRS,
		Transform: r.Transform.Shift(col, row),
		Pixels:    make([]float64, width*height*r.Bands),
	}
	if r.NoData != nil {
		nd := *r.NoData
		w.NoData = &nd
	}

	for b := 0; b < r.Bands; b++ {
		for y := 0; y < height; y++ {
			srcOff := b*r.Width*r.Height + (row+y)*r.Width + col
			dstOff := b*width*height + y*width
			copy(w.Pixels[dstOff:dstOff+width], r.Pixels[srcOff:srcOff+width])
		}
	}

	return w, nil
}
