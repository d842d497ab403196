// Package features computes per-tile statistical features. Extraction is a
// pure function of the pixel buffer so the same tile always yields the same
// vector, in batch and online inference alike.
package features

import (
	"errors"
	"math"

	"github.com/skylens-io/skylens/internal/raster"
)

// ErrNoUsablePixels is returned when every pixel in the tile carries the
// nodata value, leaving nothing to compute a statistic from.
var ErrNoUsablePixels = errors.New("tile has no usable pixels")

// Vector is the fixed-length feature vector of one tile.
type Vector struct {
	MeanIntensity float64 `json:"mean_intensity" yaml:"mean_intensity"`
	StdIntensity  float64 `json:"std_intensity" yaml:"std_intensity"`
}

// Extract computes the feature vector for a tile: mean and population
// standard deviation of all pixel intensities across bands. Pixels equal to
// the tile's nodata value are excluded when one is defined.
func Extract(r *raster.Raster) (Vector, error) {
	var (
		count      int
		mean       float64
		m2         float64 // sum of squared deviations (Welford)
		skipNoData bool
		noData     float64
	)
	if r.NoData != nil {
		skipNoData = true
		noData = *r.NoData
	}

	for _, p := range r.Pixels {
		if skipNoData && p == noData {
			continue
		}
		count++
		delta := p - mean
		mean += delta / float64(count)
		m2 += delta * (p - mean)
	}

	if count == 0 {
		return Vector{}, ErrNoUsablePixels
	}

	return Vector{
		MeanIntensity: mean,
		StdIntensity:  math.Sqrt(m2 / float64(count)),
	}, nil
}
