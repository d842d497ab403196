package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/skylens-io/skylens/internal/health"
	"github.com/skylens-io/skylens/internal/model"
	"github.com/skylens-io/skylens/internal/raster"
)

func tileWithMean(mean float64) *raster.Raster {
	return &raster.Raster{
		Width:     2,
		Height:    2,
		Bands:     1,
		CRS:       "EPSG:32631",
		Transform: raster.Transform{10, 0, 0, 0, -10, 0},
		Pixels:    []float64{mean, mean, mean, mean},
	}
}

// writeRun lays out a tiles directory and a trained model artifact, returning
// both paths. Tile means are written in index order, so lexicographic tile
// order equals the order of the means slice.
func writeRun(t *testing.T, means []float64) (tilesDir, modelPath string) {
	t.Helper()

	tilesDir = t.TempDir()
	tiles := make([]*raster.Raster, 0, len(means))
	for i, mean := range means {
		tile := tileWithMean(mean)
		tiles = append(tiles, tile)
		path := filepath.Join(tilesDir, fmt.Sprintf("tile_00000_%05d%s", i, raster.Ext))
		if err := raster.WriteFile(tile, path); err != nil {
			t.Fatal(err)
		}
	}

	m, err := model.Train(tiles, tilesDir)
	if err != nil {
		t.Fatal(err)
	}
	modelPath, err = model.Save(m, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return tilesDir, modelPath
}

func TestRunnerHappyPath(t *testing.T) {
	tilesDir, modelPath := writeRun(t, []float64{10, 20, 60}) // threshold 30
	output := filepath.Join(t.TempDir(), "snapshot.json")

	var states []State
	runner := NewRunner(Config{
		TilesDir:   tilesDir,
		ModelPath:  modelPath,
		OutputPath: output,
		Thresholds: health.DefaultThresholds(),
		OnProgress: func(ev Event) {
			if ev.TileID == "" {
				states = append(states, ev.State)
			}
		},
	})

	if runner.State() != StateInit {
		t.Fatalf("initial state = %v, want init", runner.State())
	}

	snap, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if runner.State() != StateDone {
		t.Fatalf("final state = %v, want done", runner.State())
	}

	wantStates := []State{StateLoadingModel, StateRunning, StateFinalizing, StateDone}
	if len(states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Fatalf("states = %v, want %v", states, wantStates)
		}
	}

	if snap.Metadata.RunID == "" {
		t.Error("expected a fresh run id")
	}
	if snap.Metadata.TilesInferred != 3 || snap.Metadata.TilesFailed != 0 {
		t.Errorf("inferred/failed = %d/%d, want 3/0",
			snap.Metadata.TilesInferred, snap.Metadata.TilesFailed)
	}

	wantClasses := []int{0, 0, 1} // means 10, 20 are dark, 60 is bright
	if len(snap.Predictions) != len(wantClasses) {
		t.Fatalf("predictions = %d, want %d", len(snap.Predictions), len(wantClasses))
	}
	for i, want := range wantClasses {
		if snap.Predictions[i].Class != want {
			t.Errorf("prediction %d class = %d, want %d", i, snap.Predictions[i].Class, want)
		}
	}
	// Ordered by tile id.
	for i := 1; i < len(snap.Predictions); i++ {
		if snap.Predictions[i-1].TileID >= snap.Predictions[i].TileID {
			t.Errorf("predictions not in tile order: %s before %s",
				snap.Predictions[i-1].TileID, snap.Predictions[i].TileID)
		}
	}

	// The snapshot on disk round-trips to the same document.
	stored, err := ReadSnapshot(output)
	if err != nil {
		t.Fatalf("ReadSnapshot() error: %v", err)
	}
	if stored.Metadata.RunID != snap.Metadata.RunID {
		t.Errorf("stored run id = %q, want %q", stored.Metadata.RunID, snap.Metadata.RunID)
	}
	if len(stored.Predictions) != len(snap.Predictions) {
		t.Errorf("stored predictions = %d, want %d", len(stored.Predictions), len(snap.Predictions))
	}
}

func TestRunnerDeterministicPredictions(t *testing.T) {
	tilesDir, modelPath := writeRun(t, []float64{5, 15, 25, 35})

	run := func() *Snapshot {
		snap, err := NewRunner(Config{TilesDir: tilesDir, ModelPath: modelPath}).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		return snap
	}

	a, b := run(), run()
	if a.Metadata.RunID == b.Metadata.RunID {
		t.Error("each run must get a fresh run id")
	}
	for i := range a.Predictions {
		if a.Predictions[i] != b.Predictions[i] {
			t.Fatalf("prediction %d differs across identical runs: %+v vs %+v",
				i, a.Predictions[i], b.Predictions[i])
		}
	}
}

func TestRunnerRecordsPerTileFailures(t *testing.T) {
	tilesDir, modelPath := writeRun(t, []float64{10, 60})

	// A corrupt tile must be recorded, not abort the run.
	corrupt := filepath.Join(tilesDir, "tile_00000_00002"+raster.Ext)
	if err := os.WriteFile(corrupt, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := NewRunner(Config{
		TilesDir:  tilesDir,
		ModelPath: modelPath,
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if snap.Metadata.TilesInferred != 2 || snap.Metadata.TilesFailed != 1 {
		t.Fatalf("inferred/failed = %d/%d, want 2/1",
			snap.Metadata.TilesInferred, snap.Metadata.TilesFailed)
	}
	failures := snap.Metadata.Monitoring.Failures
	if len(failures) != 1 || failures[0].TileID != "tile_00000_00002" {
		t.Fatalf("failures = %+v", failures)
	}

	// One of three tiles failing exceeds the default failure budget.
	if snap.Metadata.Health.Status != health.StatusDegraded {
		t.Errorf("health = %q, want degraded", snap.Metadata.Health.Status)
	}
}

func TestRunnerMissingModelFails(t *testing.T) {
	tilesDir, _ := writeRun(t, []float64{10})

	runner := NewRunner(Config{
		TilesDir:  tilesDir,
		ModelPath: filepath.Join(t.TempDir(), "nope.yaml"),
	})
	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing model")
	}
	if runner.State() != StateFailed {
		t.Fatalf("state = %v, want failed", runner.State())
	}
}

func TestRunnerMalformedModelFails(t *testing.T) {
	tilesDir, _ := writeRun(t, []float64{10})
	badModel := filepath.Join(t.TempDir(), "model_bad.yaml")
	if err := os.WriteFile(badModel, []byte("threshold: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(Config{TilesDir: tilesDir, ModelPath: badModel})
	_, err := runner.Run(context.Background())
	if !errors.Is(err, model.ErrMalformedArtifact) {
		t.Fatalf("Run() = %v, want ErrMalformedArtifact", err)
	}
	if runner.State() != StateFailed {
		t.Fatalf("state = %v, want failed", runner.State())
	}
}

func TestRunnerEmptyTilesDirFails(t *testing.T) {
	_, modelPath := writeRun(t, []float64{10})

	runner := NewRunner(Config{TilesDir: t.TempDir(), ModelPath: modelPath})
	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("expected error for empty tiles directory")
	}
	if runner.State() != StateFailed {
		t.Fatalf("state = %v, want failed", runner.State())
	}
}

func TestRunnerCancelledContextWritesNothing(t *testing.T) {
	tilesDir, modelPath := writeRun(t, []float64{10, 20})
	output := filepath.Join(t.TempDir(), "snapshot.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(Config{
		TilesDir:   tilesDir,
		ModelPath:  modelPath,
		OutputPath: output,
	}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatal("aborted run must not leave a snapshot behind")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInit, "init"},
		{StateLoadingModel, "loading-model"},
		{StateRunning, "running"},
		{StateFinalizing, "finalizing"},
		{StateDone, "done"},
		{StateFailed, "failed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
