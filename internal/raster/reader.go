package raster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Reader provides random-access windowed reads over a raster container
// without loading the full pixel payload into memory. One window's pixels
// are materialized per ReadWindow call.
type Reader struct {
	f        *os.File
	meta     Raster // header metadata, nil pixel buffer
	pixelOff int64
}

// Open parses the container header at path and returns a Reader positioned
// for windowed access. The caller owns the Reader and must Close it.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	meta, off, err := parseHeader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	want := off + 8*int64(meta.Width)*int64(meta.Height)*int64(meta.Bands)
	if fi.Size() < want {
		f.Close()
		return nil, fmt.Errorf("reading %s: %w: truncated pixel payload", path, ErrBadFormat)
	}

	return &Reader{f: f, meta: *meta, pixelOff: off}, nil
}

// Meta returns a copy of the raster's metadata with no pixel buffer
// attached.
func (r *Reader) Meta() Raster { return r.meta }

// Width returns the raster width in pixels.
func (r *Reader) Width() int { return r.meta.Width }

// Height returns the raster height in pixels.
func (r *Reader) Height() int { return r.meta.Height }

// ReadWindow reads a height x width pixel window with its top-left corner
// at (row, col), returning a standalone Raster with a derived transform and
// inherited CRS and nodata.
func (r *Reader) ReadWindow(row, col, height, width int) (*Raster, error) {
	if row < 0 || col < 0 || height <= 0 || width <= 0 ||
		row+height > r.meta.Height || col+width > r.meta.Width {
		return nil, fmt.Errorf("window [%d:%d, %d:%d] out of bounds for %dx%d raster",
			row, row+height, col, col+width, r.meta.Height, r.meta.Width)
	}

	w := &Raster{
		Width:     width,
		Height:    height,
		Bands:     r.meta.Bands,
		CRS:       r.meta.CRS,
		Transform: r.meta.Transform.Shift(col, row),
		Pixels:    make([]float64, width*height*r.meta.Bands),
	}
	if r.meta.NoData != nil {
		nd := *r.meta.NoData
		w.NoData = &nd
	}

	rowBytes := make([]byte, width*8)
	for b := 0; b < r.meta.Bands; b++ {
		for y := 0; y < height; y++ {
			srcPix := int64(b)*int64(r.meta.Width)*int64(r.meta.Height) +
				int64(row+y)*int64(r.meta.Width) + int64(col)
			if _, err := r.f.ReadAt(rowBytes, r.pixelOff+8*srcPix); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
			}
			dstOff := b*width*height + y*width
			for x := 0; x < width; x++ {
				w.Pixels[dstOff+x] = math.Float64frombits(
					binary.LittleEndian.Uint64(rowBytes[x*8 : x*8+8]))
			}
		}
	}

	return w, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }
