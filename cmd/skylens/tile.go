package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skylens-io/skylens/internal/apperr"
	"github.com/skylens-io/skylens/internal/raster"
	"github.com/skylens-io/skylens/internal/tiler"
	"github.com/skylens-io/skylens/internal/ui"
)

var (
	tileInput    string
	tileOutput   string
	tileSize     int
	tileForce    bool
	tileLogLevel string
)

// tileCmd represents the tile command
var tileCmd = &cobra.Command{
	Use:   "tile",
	Short: "Split a source raster into fixed-size tiles",
	Long:  "Split a raster scene into a deterministic grid of square tiles. Boundary regions smaller than the tile size are skipped, so every tile has identical dimensions.",
	RunE:  runTile,
}

func runTile(cmd *cobra.Command, args []string) error {
	level, err := resolveLogLevel("tile.log-level")
	if err != nil {
		return err
	}
	quiet := level == "quiet"

	input := viper.GetString("tile.input")
	if input == "" {
		return apperr.User("--input is required")
	}
	output := viper.GetString("tile.output")
	if output == "" {
		return apperr.User("--output is required")
	}

	size := viper.GetInt("tile.tile-size")
	if size == 0 {
		size = tiler.DefaultTileSize
	}

	if level == "debug" {
		tiler.SetLogger(cmd.ErrOrStderr())
	}

	// An output directory that already holds tiles is probably a stale run.
	if !viper.GetBool("tile.force") {
		existing, _ := filepath.Glob(filepath.Join(output, "tile_*"+raster.Ext))
		if len(existing) > 0 {
			var confirm bool
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title("Overwrite existing tiles?").
						Description(fmt.Sprintf("%s already contains %d tile file(s).", output, len(existing))).
						Value(&confirm).
						Affirmative("Yes").
						Negative("No"),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}
			if !confirm {
				return apperr.ErrCancelled
			}
		}
	}

	var workflow *ui.Workflow
	var tileTaskIdx int
	if !quiet {
		workflow = ui.NewWorkflow(os.Stdout)
		tileTaskIdx = workflow.AddTask("Generating tiles")
		workflow.Start()
		workflow.StartTask(tileTaskIdx, "")
	}

	res, err := tiler.Generate(input, output, tiler.Config{
		TileSize: size,
		OnTile: func(row, col int, path string) {
			if workflow != nil {
				workflow.UpdateMessage(tileTaskIdx, ui.Dim.Render(filepath.Base(path)))
			}
		},
	})
	if err != nil {
		if workflow != nil {
			workflow.FailTask(tileTaskIdx, err.Error())
			workflow.Stop()
		}
		return err
	}

	if workflow != nil {
		workflow.CompleteTask(tileTaskIdx, fmt.Sprintf("%d tile(s), %dx%d grid", res.TileCount, res.Rows, res.Cols))
		workflow.Stop()
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s Wrote %s tiles to %s\n",
			ui.GetCheckMark(), ui.Highlight.Render(fmt.Sprintf("%d", res.TileCount)), ui.Secondary.Render(output))
	}
	return nil
}

func init() {
	tileCmd.Flags().StringVarP(&tileInput, "input", "i", "", "Path to the source raster file (required)")
	tileCmd.Flags().StringVarP(&tileOutput, "output", "o", "", "Directory for the generated tiles (required)")
	tileCmd.Flags().IntVar(&tileSize, "tile-size", 0, fmt.Sprintf("Tile edge length in pixels (default %d)", tiler.DefaultTileSize))
	tileCmd.Flags().BoolVar(&tileForce, "force", false, "Overwrite existing tiles without confirmation")
	tileCmd.Flags().StringVar(&tileLogLevel, "log-level", "", "Log level: quiet|standard|debug")

	// Bind all flags to viper for config file support
	viper.BindPFlag("tile.input", tileCmd.Flags().Lookup("input"))
	viper.BindPFlag("tile.output", tileCmd.Flags().Lookup("output"))
	viper.BindPFlag("tile.tile-size", tileCmd.Flags().Lookup("tile-size"))
	viper.BindPFlag("tile.force", tileCmd.Flags().Lookup("force"))
	viper.BindPFlag("tile.log-level", tileCmd.Flags().Lookup("log-level"))
}
