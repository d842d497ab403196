package raster

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// newTestRaster builds a single-band raster whose pixel value encodes its
// position, so window reads are easy to verify.
func newTestRaster(width, height int) *Raster {
	r := &Raster{
		Width:     width,
		Height:    height,
		Bands:     1,
		CRS:       "EPSG:32631",
		Transform: Transform{10, 0, 500000, 0, -10, 4649776},
		Pixels:    make([]float64, width*height),
	}
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			r.Pixels[row*width+col] = float64(row*1000 + col)
		}
	}
	return r
}

func TestTransformApply(t *testing.T) {
	tr := Transform{10, 0, 500000, 0, -10, 4649776}

	x, y := tr.Apply(0, 0)
	if x != 500000 || y != 4649776 {
		t.Fatalf("Apply(0,0) = (%v, %v), want origin", x, y)
	}

	x, y = tr.Apply(3, 2)
	if x != 500030 || y != 4649756 {
		t.Fatalf("Apply(3,2) = (%v, %v), want (500030, 4649756)", x, y)
	}
}

func TestTransformShift(t *testing.T) {
	tr := Transform{10, 0, 500000, 0, -10, 4649776}
	shifted := tr.Shift(256, 256)

	// The shifted origin must equal the parent coordinate of (256,256).
	wantX, wantY := tr.Apply(256, 256)
	x, y := shifted.Apply(0, 0)
	if x != wantX || y != wantY {
		t.Fatalf("shifted origin = (%v, %v), want (%v, %v)", x, y, wantX, wantY)
	}
}

func TestValidateMeta(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Raster)
		wantErr error
	}{
		{"valid", func(r *Raster) {}, nil},
		{"missing crs", func(r *Raster) { r.CRS = "" }, ErrMissingCRS},
		{"zero transform", func(r *Raster) { r.Transform = Transform{} }, ErrMissingTransform},
		{"zero width", func(r *Raster) { r.Width = 0 }, ErrInvalidDimensions},
		{"negative height", func(r *Raster) { r.Height = -1 }, ErrInvalidDimensions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRaster(4, 4)
			tt.mutate(r)
			err := r.ValidateMeta()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateMeta() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateMeta() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWindowCopiesValuesAndShiftsTransform(t *testing.T) {
	src := newTestRaster(8, 8)

	win, err := src.Window(2, 4, 2, 2)
	if err != nil {
		t.Fatalf("Window() error: %v", err)
	}

	if win.Width != 2 || win.Height != 2 {
		t.Fatalf("window dims = %dx%d, want 2x2", win.Width, win.Height)
	}
	if got := win.At(0, 0, 0); got != 2004 {
		t.Errorf("win(0,0) = %v, want 2004", got)
	}
	if got := win.At(0, 1, 1); got != 3005 {
		t.Errorf("win(1,1) = %v, want 3005", got)
	}

	wantX, wantY := src.Transform.Apply(4, 2)
	x, y := win.Transform.Apply(0, 0)
	if x != wantX || y != wantY {
		t.Errorf("window origin = (%v, %v), want (%v, %v)", x, y, wantX, wantY)
	}

	// Mutating the window must not touch the source.
	win.Pixels[0] = -1
	if src.At(0, 2, 4) != 2004 {
		t.Error("window shares backing array with source")
	}
}

func TestWindowOutOfBounds(t *testing.T) {
	src := newTestRaster(4, 4)
	if _, err := src.Window(3, 3, 2, 2); err == nil {
		t.Fatal("expected error for out-of-bounds window")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	nodata := -9999.0
	src := newTestRaster(6, 4)
	src.NoData = &nodata
	src.Pixels[5] = nodata

	path := filepath.Join(t.TempDir(), "scene"+Ext)
	if err := WriteFile(src, path); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}

	if got.Width != src.Width || got.Height != src.Height || got.Bands != src.Bands {
		t.Fatalf("dims = %dx%dx%d, want %dx%dx%d",
			got.Width, got.Height, got.Bands, src.Width, src.Height, src.Bands)
	}
	if got.CRS != src.CRS {
		t.Errorf("CRS = %q, want %q", got.CRS, src.CRS)
	}
	if got.Transform != src.Transform {
		t.Errorf("transform = %v, want %v", got.Transform, src.Transform)
	}
	if got.NoData == nil || *got.NoData != nodata {
		t.Errorf("nodata = %v, want %v", got.NoData, nodata)
	}
	for i := range src.Pixels {
		if got.Pixels[i] != src.Pixels[i] {
			t.Fatalf("pixel %d = %v, want %v", i, got.Pixels[i], src.Pixels[i])
		}
	}
}

func TestWriteFileRejectsInvalidRaster(t *testing.T) {
	r := newTestRaster(4, 4)
	r.CRS = ""

	path := filepath.Join(t.TempDir(), "bad"+Ext)
	if err := WriteFile(r, path); !errors.Is(err, ErrMissingCRS) {
		t.Fatalf("WriteFile() = %v, want ErrMissingCRS", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid raster left a file behind")
	}
}

func TestReadFileBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk"+Ext)
	if err := os.WriteFile(path, []byte("not a raster at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFile(path); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("ReadFile() = %v, want ErrBadFormat", err)
	}
}

func TestReadFileTruncated(t *testing.T) {
	src := newTestRaster(6, 4)
	dir := t.TempDir()
	path := filepath.Join(dir, "scene"+Ext)
	if err := WriteFile(src, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	short := filepath.Join(dir, "short"+Ext)
	if err := os.WriteFile(short, data[:len(data)-16], 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFile(short); err == nil {
		t.Fatal("expected error for truncated pixel buffer")
	}
}

func TestReaderReadWindowMatchesInMemoryWindow(t *testing.T) {
	src := newTestRaster(16, 12)
	path := filepath.Join(t.TempDir(), "scene"+Ext)
	if err := WriteFile(src, path); err != nil {
		t.Fatal(err)
	}

	rd, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer rd.Close()

	if rd.Width() != 16 || rd.Height() != 12 {
		t.Fatalf("reader dims = %dx%d, want 16x12", rd.Width(), rd.Height())
	}

	want, err := src.Window(4, 8, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	got, err := rd.ReadWindow(4, 8, 4, 4)
	if err != nil {
		t.Fatalf("ReadWindow() error: %v", err)
	}

	if got.Transform != want.Transform {
		t.Errorf("transform = %v, want %v", got.Transform, want.Transform)
	}
	for i := range want.Pixels {
		if got.Pixels[i] != want.Pixels[i] {
			t.Fatalf("pixel %d = %v, want %v", i, got.Pixels[i], want.Pixels[i])
		}
	}
}

func TestReaderReadWindowOutOfBounds(t *testing.T) {
	src := newTestRaster(8, 8)
	path := filepath.Join(t.TempDir(), "scene"+Ext)
	if err := WriteFile(src, path); err != nil {
		t.Fatal(err)
	}

	rd, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()

	if _, err := rd.ReadWindow(6, 6, 4, 4); err == nil {
		t.Fatal("expected error for out-of-bounds window")
	}
}

func TestReadFileRejectsNonFinitePixels(t *testing.T) {
	src := newTestRaster(2, 2)
	src.Pixels[1] = math.Inf(1)

	path := filepath.Join(t.TempDir(), "inf"+Ext)
	if err := WriteFile(src, path); err != nil {
		// Either the writer or the reader may reject non-finite data.
		return
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatal("expected error for non-finite pixel value")
	}
}
