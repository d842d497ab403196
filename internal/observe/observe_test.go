package observe

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/skylens-io/skylens/internal/features"
	"github.com/skylens-io/skylens/internal/model"
)

func TestAggregatorCountsAndRatios(t *testing.T) {
	agg := NewAggregator("run-1")

	agg.RecordSuccess("t0", time.Millisecond, features.Vector{MeanIntensity: 10}, model.ClassDark)
	agg.RecordSuccess("t1", 2*time.Millisecond, features.Vector{MeanIntensity: 20}, model.ClassBright)
	agg.RecordSuccess("t2", 3*time.Millisecond, features.Vector{MeanIntensity: 60}, model.ClassBright)
	agg.RecordFailure("t3", errors.New("corrupt tile"))

	m := agg.Finalize()

	if m.TilesInferred != 3 || m.TilesFailed != 1 {
		t.Fatalf("inferred/failed = %d/%d, want 3/1", m.TilesInferred, m.TilesFailed)
	}
	if m.DarkCount != 1 || m.BrightCount != 2 {
		t.Errorf("class counts = %d/%d, want 1/2", m.DarkCount, m.BrightCount)
	}
	if want := 2.0 / 3.0; math.Abs(m.BrightRatio-want) > 1e-12 {
		t.Errorf("BrightRatio = %v, want %v", m.BrightRatio, want)
	}
	if want := 0.25; m.FailureRatio != want {
		t.Errorf("FailureRatio = %v, want %v", m.FailureRatio, want)
	}
	if len(m.Failures) != 1 || m.Failures[0].TileID != "t3" || m.Failures[0].Cause != "corrupt tile" {
		t.Errorf("Failures = %+v", m.Failures)
	}
}

func TestAggregatorWelfordStatistics(t *testing.T) {
	agg := NewAggregator("run-1")

	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	for _, v := range values {
		agg.RecordSuccess("t", time.Millisecond, features.Vector{MeanIntensity: v}, model.ClassDark)
	}

	s := agg.Finalize().FeatureMean
	if s.Count != len(values) {
		t.Fatalf("Count = %d, want %d", s.Count, len(values))
	}
	if math.Abs(s.Mean-5) > 1e-12 {
		t.Errorf("Mean = %v, want 5", s.Mean)
	}
	if math.Abs(s.Std-2) > 1e-12 {
		t.Errorf("Std = %v, want 2", s.Std)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("Min/Max = %v/%v, want 2/9", s.Min, s.Max)
	}
}

func TestAggregatorLatencySummary(t *testing.T) {
	agg := NewAggregator("run-1")
	agg.RecordSuccess("t0", 10*time.Millisecond, features.Vector{}, model.ClassDark)
	agg.RecordSuccess("t1", 30*time.Millisecond, features.Vector{}, model.ClassDark)

	s := agg.Finalize().LatencyMS
	if s.Count != 2 {
		t.Fatalf("Count = %d, want 2", s.Count)
	}
	if math.Abs(s.Mean-20) > 1e-9 {
		t.Errorf("Mean = %v ms, want 20", s.Mean)
	}
	if s.Min != 10 || s.Max != 30 {
		t.Errorf("Min/Max = %v/%v, want 10/30", s.Min, s.Max)
	}
}

func TestAggregatorEmptyRun(t *testing.T) {
	m := NewAggregator("run-1").Finalize()

	if m.TilesInferred != 0 || m.TilesFailed != 0 {
		t.Fatalf("expected zero counts, got %+v", m)
	}
	if m.BrightRatio != 0 || m.FailureRatio != 0 {
		t.Errorf("expected zero ratios, got bright=%v failure=%v", m.BrightRatio, m.FailureRatio)
	}
	if m.FeatureMean.Count != 0 {
		t.Errorf("expected empty feature summary, got %+v", m.FeatureMean)
	}
}

func TestAggregatorFinalizeIsIdempotent(t *testing.T) {
	agg := NewAggregator("run-1")
	agg.RecordSuccess("t0", time.Millisecond, features.Vector{MeanIntensity: 1}, model.ClassDark)

	first := agg.Finalize()
	second := agg.Finalize()
	if first.TilesInferred != second.TilesInferred || first.FeatureMean != second.FeatureMean {
		t.Fatal("Finalize is not idempotent")
	}
}

func TestRecordAfterFinalizePanics(t *testing.T) {
	agg := NewAggregator("run-1")
	agg.Finalize()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when recording on a finalized aggregator")
		}
	}()
	agg.RecordSuccess("t0", time.Millisecond, features.Vector{}, model.ClassDark)
}

func TestRecordFailureAfterFinalizePanics(t *testing.T) {
	agg := NewAggregator("run-1")
	agg.Finalize()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when recording on a finalized aggregator")
		}
	}()
	agg.RecordFailure("t0", errors.New("late"))
}

func TestMetricsFailuresAreDetached(t *testing.T) {
	agg := NewAggregator("run-1")
	agg.RecordFailure("t0", errors.New("bad"))

	m := agg.Finalize()
	m.Failures[0].Cause = "mutated"

	if agg.failures[0].Cause != "bad" {
		t.Fatal("Finalize must copy the failure list")
	}
}
