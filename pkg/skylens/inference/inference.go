// Package inference exposes the single-tile prediction step for embedding
// in serving layers. It is the same step the batch runner executes per tile,
// so online and batch decisions never diverge.
package inference

import (
	"github.com/skylens-io/skylens/internal/model"
	"github.com/skylens-io/skylens/internal/raster"
)

// Model is an opaque handle on a loaded classifier artifact.
type Model struct {
	m *model.Model
}

// Version returns the artifact's version identifier.
func (m *Model) Version() string { return m.m.Version }

// Threshold returns the learned decision threshold.
func (m *Model) Threshold() float64 { return m.m.Threshold }

// Prediction is the outcome of classifying one tile.
type Prediction struct {
	TileID        string
	Class         int
	MeanIntensity float64
}

// LoadModel reads a model artifact from disk. Malformed artifacts are
// rejected, never defaulted.
func LoadModel(path string) (*Model, error) {
	m, err := model.Load(path)
	if err != nil {
		return nil, err
	}
	return &Model{m: m}, nil
}

// Predict classifies an in-memory tile.
func Predict(m *Model, tile *raster.Raster, tileID string) (Prediction, error) {
	p, err := model.Predict(m.m, tile, tileID)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{TileID: p.TileID, Class: p.Class, MeanIntensity: p.Features.MeanIntensity}, nil
}

// PredictFile classifies the tile stored at tilePath.
func PredictFile(m *Model, tilePath string) (Prediction, error) {
	tile, err := raster.ReadFile(tilePath)
	if err != nil {
		return Prediction{}, err
	}
	return Predict(m, tile, tilePath)
}
