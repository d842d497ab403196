// Package health evaluates the telemetry of a finished batch run against
// operational thresholds and the model's training baseline, producing a
// status verdict plus actionable recommendations.
package health

import "math"

// Status values, ordered by severity.
const (
	StatusHealthy        = "healthy"
	StatusDriftSuspected = "drift-suspected"
	StatusDegraded       = "degraded"
)

// Thresholds are the tunable limits of the evaluation.
type Thresholds struct {
	// MaxFailureRatio is the tolerated fraction of failed tiles before the
	// run counts as degraded.
	MaxFailureRatio float64 `yaml:"max_failure_ratio"`

	// MaxClassSkew is the tolerated proportion of the dominant class before
	// drift is suspected.
	MaxClassSkew float64 `yaml:"max_class_skew"`

	// MaxMeanDrift is the tolerated absolute delta between the live feature
	// mean and the model's training mean.
	MaxMeanDrift float64 `yaml:"max_mean_drift"`
}

// DefaultThresholds returns the standard operational limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxFailureRatio: 0.1,
		MaxClassSkew:    0.9,
		MaxMeanDrift:    0.5,
	}
}

// Baseline is the feature distribution the model saw at training time.
type Baseline struct {
	TrainingMean float64 `json:"training_mean" yaml:"training_mean"`
	TrainingStd  float64 `json:"training_std" yaml:"training_std"`
}

// DriftMetrics reports how far the live feature distribution sits from the
// training baseline. Present in a report only when a baseline was supplied.
type DriftMetrics struct {
	LiveMean     float64 `json:"live_mean" yaml:"live_mean"`
	TrainingMean float64 `json:"training_mean" yaml:"training_mean"`
	MeanDelta    float64 `json:"mean_delta" yaml:"mean_delta"`
	StdDelta     float64 `json:"std_delta" yaml:"std_delta"`
}

// Report is the outcome of one health evaluation.
type Report struct {
	Status          string        `json:"status" yaml:"status"`
	Recommendations []string      `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	Drift           *DriftMetrics `json:"drift,omitempty" yaml:"drift,omitempty"`
}

// Input is the slice of run metrics the evaluator needs. It is deliberately
// decoupled from the aggregator's full metrics type so a stored snapshot can
// be re-evaluated without replaying the run.
type Input struct {
	TilesInferred   int
	TilesFailed     int
	DarkCount       int
	BrightCount     int
	FailureRatio    float64
	FeatureMean     float64
	FeatureStd      float64
	FeatureObserved bool
}

// Evaluate judges one run. Conditions are checked independently and their
// recommendations stack; the reported status is the most severe condition
// that fired. A nil baseline skips the drift check. Pure: inputs are not
// modified.
func Evaluate(in Input, baseline *Baseline, thr Thresholds) Report {
	var rep Report
	rep.Status = StatusHealthy

	if in.FailureRatio > thr.MaxFailureRatio {
		rep.Status = StatusDegraded
		rep.Recommendations = append(rep.Recommendations,
			"failure ratio exceeds the tolerated limit; inspect tile ingestion and input format compatibility")
	}

	if total := in.DarkCount + in.BrightCount; total > 0 {
		dominant := in.DarkCount
		if in.BrightCount > dominant {
			dominant = in.BrightCount
		}
		if float64(dominant)/float64(total) > thr.MaxClassSkew {
			if rep.Status != StatusDegraded {
				rep.Status = StatusDriftSuspected
			}
			rep.Recommendations = append(rep.Recommendations,
				"predictions are dominated by a single class; review recent scenes and consider retraining")
		}
	}

	if baseline != nil && in.FeatureObserved {
		drift := &DriftMetrics{
			LiveMean:     in.FeatureMean,
			TrainingMean: baseline.TrainingMean,
			MeanDelta:    in.FeatureMean - baseline.TrainingMean,
			StdDelta:     in.FeatureStd - baseline.TrainingStd,
		}
		rep.Drift = drift
		if math.Abs(drift.MeanDelta) > thr.MaxMeanDrift {
			if rep.Status != StatusDegraded {
				rep.Status = StatusDriftSuspected
			}
			rep.Recommendations = append(rep.Recommendations,
				"live feature distribution drifted from the training baseline; retrain on recent tiles")
		}
	}

	logf("evaluated run health: status=%s recommendations=%d", rep.Status, len(rep.Recommendations))
	return rep
}

// Severity maps a status to its rank, highest is worst. Unknown statuses
// rank below healthy.
func Severity(status string) int {
	switch status {
	case StatusDegraded:
		return 2
	case StatusDriftSuspected:
		return 1
	case StatusHealthy:
		return 0
	}
	return -1
}
