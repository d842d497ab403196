package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skylens-io/skylens/internal/apperr"
	"github.com/skylens-io/skylens/internal/batch"
	"github.com/skylens-io/skylens/internal/health"
	"github.com/skylens-io/skylens/internal/ui"
)

var (
	healthSnapshot        string
	healthMaxFailureRatio float64
	healthMaxClassSkew    float64
	healthMaxMeanDrift    float64
	healthLogLevel        string
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Re-evaluate the health of a stored run snapshot",
	Long:  "Reads a batch run snapshot (json/yaml) and re-evaluates its monitoring metrics against the health thresholds, without re-running inference.",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := resolveLogLevel("health.log-level")
		if err != nil {
			return err
		}

		snapPath := viper.GetString("health.snapshot")
		if snapPath == "" {
			return apperr.User("--snapshot is required")
		}

		if level == "debug" {
			health.SetLogger(cmd.ErrOrStderr())
		}

		snap, err := batch.ReadSnapshot(snapPath)
		if err != nil {
			return err
		}

		thr := thresholdsFromViper("health")
		mon := snap.Metadata.Monitoring

		// The training baseline travels inside the stored drift block, so a
		// snapshot is self-contained for re-evaluation.
		var baseline *health.Baseline
		if d := snap.Metadata.Health.Drift; d != nil {
			baseline = &health.Baseline{
				TrainingMean: d.TrainingMean,
				TrainingStd:  mon.FeatureMean.Std - d.StdDelta,
			}
		}

		rep := health.Evaluate(health.Input{
			TilesInferred:   mon.TilesInferred,
			TilesFailed:     mon.TilesFailed,
			DarkCount:       mon.DarkCount,
			BrightCount:     mon.BrightCount,
			FailureRatio:    mon.FailureRatio,
			FeatureMean:     mon.FeatureMean.Mean,
			FeatureStd:      mon.FeatureMean.Std,
			FeatureObserved: mon.FeatureMean.Count > 0,
		}, baseline, thr)

		healthUI := ui.NewHealthUI(cmd.OutOrStdout(), false)
		if level == "quiet" {
			healthUI.PrintSimpleReport(healthView(rep))
			return nil
		}
		healthUI.PrintReport(healthView(rep))
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVarP(&healthSnapshot, "snapshot", "s", "", "Path to a run snapshot file (required)")
	healthCmd.Flags().Float64Var(&healthMaxFailureRatio, "max-failure-ratio", 0, "Tolerated failed-tile ratio before the run is degraded")
	healthCmd.Flags().Float64Var(&healthMaxClassSkew, "max-class-skew", 0, "Tolerated dominant-class proportion before drift is suspected")
	healthCmd.Flags().Float64Var(&healthMaxMeanDrift, "max-mean-drift", 0, "Tolerated mean-intensity drift from the training baseline")
	healthCmd.Flags().StringVar(&healthLogLevel, "log-level", "", "Log level: quiet|standard|debug")

	// Bind all flags to viper for config file support
	viper.BindPFlag("health.snapshot", healthCmd.Flags().Lookup("snapshot"))
	viper.BindPFlag("health.max-failure-ratio", healthCmd.Flags().Lookup("max-failure-ratio"))
	viper.BindPFlag("health.max-class-skew", healthCmd.Flags().Lookup("max-class-skew"))
	viper.BindPFlag("health.max-mean-drift", healthCmd.Flags().Lookup("max-mean-drift"))
	viper.BindPFlag("health.log-level", healthCmd.Flags().Lookup("log-level"))
}
