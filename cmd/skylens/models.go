package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skylens-io/skylens/internal/model"
	"github.com/skylens-io/skylens/internal/ui"
)

var modelsDir string

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List stored model artifacts",
	Long:  "Lists every model artifact in a models directory, newest first. The newest artifact is the one the run command picks by default.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("models.dir")
		if dir == "" {
			dir = "models"
		}

		models, err := model.List(dir)
		if err != nil {
			return err
		}
		if len(models) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No model artifacts in %s\n", dir)
			return nil
		}

		out := cmd.OutOrStdout()
		for i, m := range models {
			marker := "  "
			version := m.Version
			if i == 0 {
				marker = ui.GetCheckMark() + " "
				version = ui.Highlight.Render(version)
			}
			fmt.Fprintf(out, "%s%s %s\n", marker, version,
				ui.Dim.Render(fmt.Sprintf("threshold=%.4f tiles=%d created=%s",
					m.Threshold, m.Provenance.TileCount, m.CreatedAt.Format("2006-01-02 15:04"))))
		}
		return nil
	},
}

// latestModel resolves the newest artifact in dir for commands that default
// to it.
func latestModel(dir string) (string, error) {
	return model.Latest(dir)
}

func init() {
	modelsCmd.Flags().StringVarP(&modelsDir, "dir", "d", "", "Directory with model artifacts (default \"models\")")

	// Bind all flags to viper for config file support
	viper.BindPFlag("models.dir", modelsCmd.Flags().Lookup("dir"))
}
