// Package model implements the per-tile threshold classifier: training,
// prediction, and the immutable versioned artifact both are built on.
//
// The model is deliberately trivial — one learned scalar threshold over the
// tile's mean intensity — so the pipeline mechanics around it (versioning,
// batch runs, monitoring) stay in focus. Retraining never mutates an
// existing artifact; it produces a new one under a fresh version.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/skylens-io/skylens/internal/features"
	"github.com/skylens-io/skylens/internal/raster"
)

// ErrEmptyTrainingSet is returned when training is attempted without any
// tiles: no threshold can be computed. This is a configuration error, not a
// transient one.
var ErrEmptyTrainingSet = errors.New("training set is empty")

// Class labels for the binary classifier. A tile whose mean intensity
// exceeds the trained threshold is "bright", otherwise "dark".
const (
	ClassDark   = 0
	ClassBright = 1
)

// Provenance records what a model was trained on.
type Provenance struct {
	TileCount int    `yaml:"tile_count"`
	TilesDir  string `yaml:"tiles_dir,omitempty"`
}

// Model is an immutable, versioned classifier artifact. Version and
// Threshold never change after creation.
type Model struct {
	Version   string    `yaml:"version"`
	Threshold float64   `yaml:"threshold"`
	CreatedAt time.Time `yaml:"created_at"`

	// TrainingMean and TrainingStd summarize the feature distribution seen
	// at training time; the health evaluator compares live runs against
	// them to spot drift.
	TrainingMean float64 `yaml:"training_mean"`
	TrainingStd  float64 `yaml:"training_std"`

	Provenance Provenance `yaml:"provenance"`
}

// Prediction is the outcome of classifying one tile.
type Prediction struct {
	TileID    string          `json:"tile_id" yaml:"tile_id"`
	Class     int             `json:"class" yaml:"class"`
	Features  features.Vector `json:"features" yaml:"features"`
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
}

// Train fits a threshold classifier on the given tiles: the decision
// threshold is the mean of the per-tile mean intensities. A fresh version
// identifier and timestamp are assigned. Training on an empty set fails
// with ErrEmptyTrainingSet.
func Train(tiles []*raster.Raster, tilesDir string) (*Model, error) {
	if len(tiles) == 0 {
		return nil, ErrEmptyTrainingSet
	}

	var sum, sumSq float64
	for i, t := range tiles {
		vec, err := features.Extract(t)
		if err != nil {
			return nil, fmt.Errorf("extracting features from training tile %d: %w", i, err)
		}
		sum += vec.MeanIntensity
		sumSq += vec.MeanIntensity * vec.MeanIntensity
	}

	m := newFromMoments(sum, sumSq, len(tiles))
	m.Provenance.TilesDir = tilesDir
	return m, nil
}

// newFromMoments builds a fresh model from the first two raw moments of the
// per-tile mean intensities.
func newFromMoments(sum, sumSq float64, n int) *Model {
	fn := float64(n)
	mean := sum / fn
	variance := sumSq/fn - mean*mean
	if variance < 0 {
		variance = 0 // guard against rounding
	}

	return &Model{
		Version:      uuid.New().String(),
		Threshold:    mean,
		CreatedAt:    time.Now().UTC(),
		TrainingMean: mean,
		TrainingStd:  math.Sqrt(variance),
		Provenance:   Provenance{TileCount: n},
	}
}

// Predict classifies one tile against the model's threshold. The decision
// is strict: a mean intensity exactly equal to the threshold is dark.
// Deterministic for a given (model, tile) pair.
func Predict(m *Model, tile *raster.Raster, tileID string) (Prediction, error) {
	vec, err := features.Extract(tile)
	if err != nil {
		return Prediction{}, err
	}

	class := ClassDark
	if vec.MeanIntensity > m.Threshold {
		class = ClassBright
	}

	return Prediction{
		TileID:    tileID,
		Class:     class,
		Features:  vec,
		Timestamp: time.Now().UTC(),
	}, nil
}
