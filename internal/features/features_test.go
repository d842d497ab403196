package features

import (
	"errors"
	"math"
	"testing"

	"github.com/skylens-io/skylens/internal/raster"
)

func tileWithPixels(pixels []float64, nodata *float64) *raster.Raster {
	return &raster.Raster{
		Width:     len(pixels),
		Height:    1,
		Bands:     1,
		CRS:       "EPSG:4326",
		Transform: raster.Transform{1, 0, 0, 0, -1, 0},
		NoData:    nodata,
		Pixels:    pixels,
	}
}

func TestExtractMeanAndStd(t *testing.T) {
	tile := tileWithPixels([]float64{2, 4, 4, 4, 5, 5, 7, 9}, nil)

	vec, err := Extract(tile)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	if vec.MeanIntensity != 5 {
		t.Errorf("MeanIntensity = %v, want 5", vec.MeanIntensity)
	}
	// Population std of this classic sequence is exactly 2.
	if math.Abs(vec.StdIntensity-2) > 1e-12 {
		t.Errorf("StdIntensity = %v, want 2", vec.StdIntensity)
	}
}

func TestExtractConstantTile(t *testing.T) {
	tile := tileWithPixels([]float64{3, 3, 3, 3}, nil)

	vec, err := Extract(tile)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if vec.MeanIntensity != 3 || vec.StdIntensity != 0 {
		t.Errorf("got (%v, %v), want (3, 0)", vec.MeanIntensity, vec.StdIntensity)
	}
}

func TestExtractExcludesNoData(t *testing.T) {
	nodata := -9999.0
	tile := tileWithPixels([]float64{10, nodata, 20, nodata, 30}, &nodata)

	vec, err := Extract(tile)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if vec.MeanIntensity != 20 {
		t.Errorf("MeanIntensity = %v, want 20 (nodata must be excluded)", vec.MeanIntensity)
	}
}

func TestExtractNoDataValueNotDefined(t *testing.T) {
	// Without a declared nodata value, sentinel-looking pixels count.
	tile := tileWithPixels([]float64{-9999, 9999}, nil)

	vec, err := Extract(tile)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if vec.MeanIntensity != 0 {
		t.Errorf("MeanIntensity = %v, want 0", vec.MeanIntensity)
	}
}

func TestExtractAllNoData(t *testing.T) {
	nodata := 0.0
	tile := tileWithPixels([]float64{0, 0, 0}, &nodata)

	if _, err := Extract(tile); !errors.Is(err, ErrNoUsablePixels) {
		t.Fatalf("Extract() = %v, want ErrNoUsablePixels", err)
	}
}

func TestExtractDeterministic(t *testing.T) {
	tile := tileWithPixels([]float64{1.5, 2.25, 3.75, 8.5}, nil)

	first, err := Extract(tile)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Extract(tile)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("Extract not deterministic: %v vs %v", first, second)
	}
}
