package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skylens-io/skylens/internal/apperr"
	"github.com/skylens-io/skylens/internal/model"
	"github.com/skylens-io/skylens/internal/ui"
)

var (
	trainTiles    string
	trainModels   string
	trainLogLevel string
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a threshold classifier from a tile directory",
	Long:  "Fit the classification threshold on every tile in a directory and store the result as a new immutable, versioned model artifact. The latest-model pointer is updated to the new artifact.",
	RunE:  runTrain,
}

func runTrain(cmd *cobra.Command, args []string) error {
	level, err := resolveLogLevel("train.log-level")
	if err != nil {
		return err
	}
	quiet := level == "quiet"

	tilesDir := viper.GetString("train.tiles")
	if tilesDir == "" {
		return apperr.User("--tiles is required")
	}
	modelsDir := viper.GetString("train.models")
	if modelsDir == "" {
		modelsDir = "models"
	}

	if level == "debug" {
		model.SetLogger(cmd.ErrOrStderr())
	}

	var spinner *ui.SimpleSpinner
	if !quiet {
		spinner = ui.NewSimpleSpinner(os.Stdout, "Training on "+tilesDir)
		spinner.Start()
	}

	m, err := model.TrainDir(tilesDir)
	if err != nil {
		if spinner != nil {
			spinner.Stop(false, "Training failed")
		}
		return err
	}

	path, err := model.Save(m, modelsDir)
	if err != nil {
		if spinner != nil {
			spinner.Stop(false, "Saving model failed")
		}
		return err
	}
	if err := model.WriteLatest(path, modelsDir); err != nil {
		if spinner != nil {
			spinner.Stop(false, "Updating latest pointer failed")
		}
		return err
	}

	if spinner != nil {
		spinner.Stop(true, fmt.Sprintf("Trained on %d tile(s)", m.Provenance.TileCount))
	}

	if !quiet {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.FormatKeyValue("Version", ui.Highlight.Render(m.Version)))
		fmt.Fprintln(out, ui.FormatKeyValue("Threshold", fmt.Sprintf("%.4f", m.Threshold)))
		fmt.Fprintln(out, ui.FormatKeyValue("Training std", fmt.Sprintf("%.4f", m.TrainingStd)))
		fmt.Fprintln(out, ui.FormatKeyValue("Artifact", ui.Secondary.Render(path)))
	}
	return nil
}

func init() {
	trainCmd.Flags().StringVarP(&trainTiles, "tiles", "t", "", "Directory with training tiles (required)")
	trainCmd.Flags().StringVarP(&trainModels, "models", "m", "", "Directory for model artifacts (default \"models\")")
	trainCmd.Flags().StringVar(&trainLogLevel, "log-level", "", "Log level: quiet|standard|debug")

	// Bind all flags to viper for config file support
	viper.BindPFlag("train.tiles", trainCmd.Flags().Lookup("tiles"))
	viper.BindPFlag("train.models", trainCmd.Flags().Lookup("models"))
	viper.BindPFlag("train.log-level", trainCmd.Flags().Lookup("log-level"))
}
