package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skylens-io/skylens/internal/apperr"
	"github.com/skylens-io/skylens/internal/ui"
	"github.com/skylens-io/skylens/pkg/skylens/inference"
)

var (
	predictTile   string
	predictModel  string
	predictModels string
	predictPlain  bool
)

// predictCmd represents the predict command
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Classify a single tile",
	Long:  "Run the per-tile prediction step against one tile file. This is the same step the run command executes per tile, exposed for spot checks and serving integrations.",
	RunE:  runPredict,
}

func runPredict(cmd *cobra.Command, args []string) error {
	tilePath := viper.GetString("predict.tile")
	if tilePath == "" {
		return apperr.User("--tile is required")
	}

	modelPath := viper.GetString("predict.model")
	if modelPath == "" {
		modelsDir := viper.GetString("predict.models")
		if modelsDir == "" {
			modelsDir = "models"
		}
		var err error
		modelPath, err = latestModel(modelsDir)
		if err != nil {
			return err
		}
	}

	m, err := inference.LoadModel(modelPath)
	if err != nil {
		return err
	}

	pred, err := inference.PredictFile(m, tilePath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if viper.GetBool("predict.plain") {
		// Machine-readable single line (no styling).
		fmt.Fprintf(out, "tile=%s class=%d mean=%.6f model=%s\n", tilePath, pred.Class, pred.MeanIntensity, m.Version())
		return nil
	}

	className := "dark"
	mark := ui.GetBullet()
	if pred.Class == 1 {
		className = "bright"
		mark = ui.GetCheckMark()
	}

	fmt.Fprintf(out, "%s %s\n", mark, ui.Highlight.Render(tilePath))
	fmt.Fprintln(out, ui.FormatKeyValue("Class", fmt.Sprintf("%d (%s)", pred.Class, className)))
	fmt.Fprintln(out, ui.FormatKeyValue("Mean intensity", fmt.Sprintf("%.4f", pred.MeanIntensity)))
	fmt.Fprintln(out, ui.FormatKeyValue("Threshold", fmt.Sprintf("%.4f", m.Threshold())))
	fmt.Fprintln(out, ui.FormatKeyValue("Model", ui.Dim.Render(m.Version())))
	return nil
}

func init() {
	predictCmd.Flags().StringVarP(&predictTile, "tile", "t", "", "Path to the tile file (required)")
	predictCmd.Flags().StringVar(&predictModel, "model", "", "Path to the model artifact (default: newest in --models)")
	predictCmd.Flags().StringVarP(&predictModels, "models", "m", "", "Directory with model artifacts (default \"models\")")
	predictCmd.Flags().BoolVar(&predictPlain, "plain", false, "Print a single-line plain result (no styling)")

	// Bind all flags to viper for config file support
	viper.BindPFlag("predict.tile", predictCmd.Flags().Lookup("tile"))
	viper.BindPFlag("predict.model", predictCmd.Flags().Lookup("model"))
	viper.BindPFlag("predict.models", predictCmd.Flags().Lookup("models"))
	viper.BindPFlag("predict.plain", predictCmd.Flags().Lookup("plain"))
}
