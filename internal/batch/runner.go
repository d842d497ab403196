// Package batch drives one end-to-end inference run: load a model, sweep a
// tile directory in deterministic order, collect telemetry, evaluate health,
// and persist a single atomic snapshot of the whole run.
package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/skylens-io/skylens/internal/health"
	"github.com/skylens-io/skylens/internal/model"
	"github.com/skylens-io/skylens/internal/observe"
	"github.com/skylens-io/skylens/internal/raster"
)

// State is the runner's lifecycle phase. Transitions are strictly forward.
type State int

const (
	StateInit State = iota
	StateLoadingModel
	StateRunning
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoadingModel:
		return "loading-model"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event is one progress notification emitted during a run.
type Event struct {
	State  State
	TileID string

	// Done and Total track per-tile progress while running; both are zero
	// for phase-transition events.
	Done  int
	Total int
}

// Config holds the explicit inputs of one batch run.
type Config struct {
	TilesDir   string
	ModelPath  string
	OutputPath string

	// Format selects the snapshot encoding: "json", "yaml", or "auto"
	// (by output extension). Empty means auto.
	Format string

	Thresholds health.Thresholds

	// OnProgress, when non-nil, receives phase and per-tile events.
	OnProgress func(Event)
}

// Runner executes a single batch inference run. A runner is single-use:
// create one per run.
type Runner struct {
	cfg   Config
	state State
}

// NewRunner returns a runner in the init state.
func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, state: StateInit}
}

// State reports the runner's current phase.
func (r *Runner) State() State { return r.state }

func (r *Runner) transition(s State) {
	r.state = s
	if r.cfg.OnProgress != nil {
		r.cfg.OnProgress(Event{State: s})
	}
}

// Run executes the batch. Setup problems (missing or corrupt model, no
// tiles) abort the run before any tile is touched. Per-tile problems are
// recorded as failures and the sweep continues. On success the snapshot has
// been written atomically to the configured output path.
func (r *Runner) Run(ctx context.Context) (*Snapshot, error) {
	runID := uuid.New().String()
	startedAt := time.Now().UTC()

	r.transition(StateLoadingModel)
	m, err := model.Load(r.cfg.ModelPath)
	if err != nil {
		r.state = StateFailed
		return nil, fmt.Errorf("loading model: %w", err)
	}
	logf(runID, "loaded model version=%s threshold=%.4f", m.Version, m.Threshold)

	paths, err := listTiles(r.cfg.TilesDir)
	if err != nil {
		r.state = StateFailed
		return nil, err
	}
	logf(runID, "found %d tiles in %s", len(paths), r.cfg.TilesDir)

	r.transition(StateRunning)
	agg := observe.NewAggregator(runID)
	var predictions []PredictionRecord

	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tileID := tileIDFromPath(p)
		pred, err := inferTile(m, p, tileID, agg)
		if err != nil {
			agg.RecordFailure(tileID, err)
		} else {
			predictions = append(predictions, PredictionRecord{
				TileID:        pred.TileID,
				Class:         pred.Class,
				MeanIntensity: pred.Features.MeanIntensity,
			})
		}

		if r.cfg.OnProgress != nil {
			r.cfg.OnProgress(Event{State: StateRunning, TileID: tileID, Done: i + 1, Total: len(paths)})
		}
	}

	r.transition(StateFinalizing)
	metrics := agg.Finalize()

	baseline := &health.Baseline{TrainingMean: m.TrainingMean, TrainingStd: m.TrainingStd}
	report := health.Evaluate(healthInput(metrics), baseline, r.cfg.Thresholds)

	snap := &Snapshot{
		Metadata: Metadata{
			RunID:         runID,
			ModelPath:     r.cfg.ModelPath,
			ModelVersion:  m.Version,
			StartedAt:     startedAt,
			FinishedAt:    time.Now().UTC(),
			TilesInferred: metrics.TilesInferred,
			TilesFailed:   metrics.TilesFailed,
			Monitoring:    metrics,
			Health:        report,
		},
		Predictions: predictions,
	}

	if r.cfg.OutputPath != "" {
		if err := WriteSnapshot(snap, r.cfg.OutputPath, r.cfg.Format); err != nil {
			return nil, fmt.Errorf("writing snapshot: %w", err)
		}
		logf(runID, "snapshot written to %s", r.cfg.OutputPath)
	}

	r.transition(StateDone)
	logf(runID, "run complete: %d inferred, %d failed, status=%s",
		metrics.TilesInferred, metrics.TilesFailed, report.Status)
	return snap, nil
}

// inferTile is the per-tile step: read, predict, record. Timed so latency
// statistics cover the full read-plus-predict path.
func inferTile(m *model.Model, path, tileID string, agg *observe.Aggregator) (model.Prediction, error) {
	start := time.Now()

	tile, err := raster.ReadFile(path)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("reading tile: %w", err)
	}
	pred, err := model.Predict(m, tile, tileID)
	if err != nil {
		return model.Prediction{}, err
	}

	agg.RecordSuccess(tileID, time.Since(start), pred.Features, pred.Class)
	return pred, nil
}

// listTiles returns the tile files under dir in lexicographic order. An
// empty directory is a setup error: a run over nothing is a misconfigured
// run, not a healthy no-op.
func listTiles(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "tile_*"+raster.Ext))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no tiles found in %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

func tileIDFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(raster.Ext)]
}

func healthInput(m observe.Metrics) health.Input {
	return health.Input{
		TilesInferred:   m.TilesInferred,
		TilesFailed:     m.TilesFailed,
		DarkCount:       m.DarkCount,
		BrightCount:     m.BrightCount,
		FailureRatio:    m.FailureRatio,
		FeatureMean:     m.FeatureMean.Mean,
		FeatureStd:      m.FeatureMean.Std,
		FeatureObserved: m.FeatureMean.Count > 0,
	}
}
