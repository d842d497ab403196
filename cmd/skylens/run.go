package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skylens-io/skylens/internal/apperr"
	"github.com/skylens-io/skylens/internal/batch"
	"github.com/skylens-io/skylens/internal/health"
	"github.com/skylens-io/skylens/internal/model"
	"github.com/skylens-io/skylens/internal/observe"
	"github.com/skylens-io/skylens/internal/ui"
)

var (
	runTiles           string
	runModel           string
	runModels          string
	runOutput          string
	runFormat          string
	runMaxFailureRatio float64
	runMaxClassSkew    float64
	runMaxMeanDrift    float64
	runLogLevel        string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run batch inference over a tile directory",
	Long:  "Classify every tile in a directory with a stored model, collect monitoring statistics, evaluate run health against the training baseline, and write one atomic snapshot of the whole run.",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	level, err := resolveLogLevel("run.log-level")
	if err != nil {
		return err
	}
	quiet := level == "quiet"

	tilesDir := viper.GetString("run.tiles")
	if tilesDir == "" {
		return apperr.User("--tiles is required")
	}

	// The model defaults to the newest artifact in the models directory.
	modelPath := viper.GetString("run.model")
	if modelPath == "" {
		modelsDir := viper.GetString("run.models")
		if modelsDir == "" {
			modelsDir = "models"
		}
		modelPath, err = model.Latest(modelsDir)
		if err != nil {
			return err
		}
	}

	output := viper.GetString("run.output")
	if output == "" {
		output = "dist/snapshot.json"
	}

	format := viper.GetString("run.format")
	if format == "" {
		format = batch.FormatAuto
	}
	switch format {
	case batch.FormatJSON, batch.FormatYAML, batch.FormatAuto:
		// ok
	default:
		return fmt.Errorf("invalid --format %q (expected json|yaml|auto)", format)
	}

	thr := thresholdsFromViper("run")

	if level == "debug" {
		batch.SetLogger(cmd.ErrOrStderr())
		observe.SetLogger(cmd.ErrOrStderr())
		health.SetLogger(cmd.ErrOrStderr())
	}

	var tracker *ui.ProgressTracker
	const (
		stepLoad = iota
		stepInfer
		stepSnapshot
	)
	if !quiet {
		tracker = ui.NewProgressTracker("Batch Inference", []string{
			"Loading model",
			"Inferring tiles",
			"Writing snapshot",
		})
		tracker.Start()
	}

	onProgress := func(ev batch.Event) {
		if tracker == nil {
			return
		}
		switch ev.State {
		case batch.StateLoadingModel:
			tracker.UpdateStep(stepLoad, ui.StatusRunning, "")
		case batch.StateRunning:
			if ev.TileID == "" {
				tracker.UpdateStep(stepLoad, ui.StatusComplete, "")
				tracker.UpdateStep(stepInfer, ui.StatusRunning, "")
				return
			}
			tracker.UpdateStep(stepInfer, ui.StatusRunning, fmt.Sprintf("%d/%d: %s", ev.Done, ev.Total, ev.TileID))
		case batch.StateFinalizing:
			tracker.UpdateStep(stepInfer, ui.StatusComplete, "")
			tracker.UpdateStep(stepSnapshot, ui.StatusRunning, "")
		case batch.StateDone:
			tracker.UpdateStep(stepSnapshot, ui.StatusComplete, "")
		}
	}

	runner := batch.NewRunner(batch.Config{
		TilesDir:   tilesDir,
		ModelPath:  modelPath,
		OutputPath: output,
		Format:     format,
		Thresholds: thr,
		OnProgress: onProgress,
	})

	snap, err := runner.Run(context.Background())
	if tracker != nil {
		tracker.Complete(err)
	}
	if err != nil {
		return err
	}

	meta := snap.Metadata
	runUI := ui.NewRunUI(cmd.OutOrStdout(), quiet)
	runUI.PrintSummary(ui.RunSummary{
		RunID:         meta.RunID,
		ModelVersion:  meta.ModelVersion,
		SnapshotPath:  output,
		TilesInferred: meta.TilesInferred,
		TilesFailed:   meta.TilesFailed,
		DarkCount:     meta.Monitoring.DarkCount,
		BrightCount:   meta.Monitoring.BrightCount,
		BrightRatio:   meta.Monitoring.BrightRatio,
		FailureRatio:  meta.Monitoring.FailureRatio,
		FeatureMean:   meta.Monitoring.FeatureMean.Mean,
		LatencyMeanMS: meta.Monitoring.LatencyMS.Mean,
		Duration:      meta.FinishedAt.Sub(meta.StartedAt),
	})

	healthUI := ui.NewHealthUI(cmd.OutOrStdout(), quiet)
	healthUI.PrintReport(healthView(meta.Health))
	return nil
}

// thresholdsFromViper reads the health threshold flags of the given command
// section, falling back to the standard limits.
func thresholdsFromViper(section string) health.Thresholds {
	thr := health.DefaultThresholds()
	if v := viper.GetFloat64(section + ".max-failure-ratio"); v > 0 {
		thr.MaxFailureRatio = v
	}
	if v := viper.GetFloat64(section + ".max-class-skew"); v > 0 {
		thr.MaxClassSkew = v
	}
	if v := viper.GetFloat64(section + ".max-mean-drift"); v > 0 {
		thr.MaxMeanDrift = v
	}
	return thr
}

func healthView(rep health.Report) ui.HealthView {
	view := ui.HealthView{
		Status:          rep.Status,
		Recommendations: rep.Recommendations,
	}
	if rep.Drift != nil {
		view.Drift = &ui.DriftView{
			LiveMean:     rep.Drift.LiveMean,
			TrainingMean: rep.Drift.TrainingMean,
			MeanDelta:    rep.Drift.MeanDelta,
		}
	}
	return view
}

func init() {
	runCmd.Flags().StringVarP(&runTiles, "tiles", "t", "", "Directory with tiles to infer (required)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Path to the model artifact (default: newest in --models)")
	runCmd.Flags().StringVarP(&runModels, "models", "m", "", "Directory with model artifacts (default \"models\")")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Snapshot output path (default \"dist/snapshot.json\")")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "", "Snapshot format: json|yaml|auto")
	runCmd.Flags().Float64Var(&runMaxFailureRatio, "max-failure-ratio", 0, "Tolerated failed-tile ratio before the run is degraded")
	runCmd.Flags().Float64Var(&runMaxClassSkew, "max-class-skew", 0, "Tolerated dominant-class proportion before drift is suspected")
	runCmd.Flags().Float64Var(&runMaxMeanDrift, "max-mean-drift", 0, "Tolerated mean-intensity drift from the training baseline")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "", "Log level: quiet|standard|debug")

	// Bind all flags to viper for config file support
	viper.BindPFlag("run.tiles", runCmd.Flags().Lookup("tiles"))
	viper.BindPFlag("run.model", runCmd.Flags().Lookup("model"))
	viper.BindPFlag("run.models", runCmd.Flags().Lookup("models"))
	viper.BindPFlag("run.output", runCmd.Flags().Lookup("output"))
	viper.BindPFlag("run.format", runCmd.Flags().Lookup("format"))
	viper.BindPFlag("run.max-failure-ratio", runCmd.Flags().Lookup("max-failure-ratio"))
	viper.BindPFlag("run.max-class-skew", runCmd.Flags().Lookup("max-class-skew"))
	viper.BindPFlag("run.max-mean-drift", runCmd.Flags().Lookup("max-mean-drift"))
	viper.BindPFlag("run.log-level", runCmd.Flags().Lookup("log-level"))
}
