// Package observe collects per-run inference telemetry: streaming feature
// and latency statistics, class counts, and the failure log. Statistics are
// accumulated incrementally with Welford's algorithm, so memory stays
// constant no matter how many tiles a run covers.
package observe

import (
	"math"
	"time"

	"github.com/skylens-io/skylens/internal/features"
	"github.com/skylens-io/skylens/internal/model"
)

// Failure records one tile that could not be inferred.
type Failure struct {
	TileID string `json:"tile_id" yaml:"tile_id"`
	Cause  string `json:"cause" yaml:"cause"`
}

// Summary is a frozen view of one streamed statistic.
type Summary struct {
	Count int     `json:"count" yaml:"count"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Std   float64 `json:"std" yaml:"std"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

// Metrics is the immutable result of a finalized aggregator.
type Metrics struct {
	TilesInferred int     `json:"tiles_inferred" yaml:"tiles_inferred"`
	TilesFailed   int     `json:"tiles_failed" yaml:"tiles_failed"`
	DarkCount     int     `json:"dark_count" yaml:"dark_count"`
	BrightCount   int     `json:"bright_count" yaml:"bright_count"`
	BrightRatio   float64 `json:"bright_ratio" yaml:"bright_ratio"`
	FailureRatio  float64 `json:"failure_ratio" yaml:"failure_ratio"`

	FeatureMean Summary `json:"feature_mean" yaml:"feature_mean"`
	LatencyMS   Summary `json:"latency_ms" yaml:"latency_ms"`

	Failures []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// welford is a single incremental mean/variance accumulator.
type welford struct {
	count int
	mean  float64
	m2    float64
	min   float64
	max   float64
}

func (w *welford) add(x float64) {
	w.count++
	if w.count == 1 {
		w.min, w.max = x, x
	} else {
		if x < w.min {
			w.min = x
		}
		if x > w.max {
			w.max = x
		}
	}
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (x - w.mean)
}

func (w *welford) summary() Summary {
	if w.count == 0 {
		return Summary{}
	}
	return Summary{
		Count: w.count,
		Mean:  w.mean,
		Std:   math.Sqrt(w.m2 / float64(w.count)),
		Min:   w.min,
		Max:   w.max,
	}
}

// Aggregator accumulates telemetry for a single batch run. Each run owns its
// own aggregator; it is not safe for concurrent use.
type Aggregator struct {
	runID string

	featureMean welford
	latency     welford

	darkCount   int
	brightCount int
	failures    []Failure

	finalized bool
}

// NewAggregator returns an empty aggregator tagged with the owning run ID.
func NewAggregator(runID string) *Aggregator {
	return &Aggregator{runID: runID}
}

// RecordSuccess folds one successfully inferred tile into the running
// statistics. Panics if the aggregator is already finalized.
func (a *Aggregator) RecordSuccess(tileID string, latency time.Duration, vec features.Vector, class int) {
	a.mustBeOpen()

	a.featureMean.add(vec.MeanIntensity)
	a.latency.add(float64(latency) / float64(time.Millisecond))
	if class == model.ClassBright {
		a.brightCount++
	} else {
		a.darkCount++
	}

	logf(a.runID, "tile=%s class=%d mean=%.4f latency=%s", tileID, class, vec.MeanIntensity, latency)
}

// RecordFailure logs one tile that could not be inferred. Panics if the
// aggregator is already finalized.
func (a *Aggregator) RecordFailure(tileID string, cause error) {
	a.mustBeOpen()

	a.failures = append(a.failures, Failure{TileID: tileID, Cause: cause.Error()})
	logf(a.runID, "tile=%s failed: %v", tileID, cause)
}

// Finalize freezes the aggregator and returns the run's metrics. Further
// Record calls panic; Finalize itself is idempotent.
func (a *Aggregator) Finalize() Metrics {
	a.finalized = true

	inferred := a.darkCount + a.brightCount
	failed := len(a.failures)
	total := inferred + failed

	m := Metrics{
		TilesInferred: inferred,
		TilesFailed:   failed,
		DarkCount:     a.darkCount,
		BrightCount:   a.brightCount,
		FeatureMean:   a.featureMean.summary(),
		LatencyMS:     a.latency.summary(),
		Failures:      append([]Failure(nil), a.failures...),
	}
	if inferred > 0 {
		m.BrightRatio = float64(a.brightCount) / float64(inferred)
	}
	if total > 0 {
		m.FailureRatio = float64(failed) / float64(total)
	}
	return m
}

func (a *Aggregator) mustBeOpen() {
	if a.finalized {
		panic("observe: record on finalized aggregator")
	}
}
