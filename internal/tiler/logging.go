package tiler

import (
	"io"

	"github.com/skylens-io/skylens/internal/logging"
	"github.com/skylens-io/skylens/internal/ui"
)

var logger = &logging.Logger{PrefixText: "Tile:", PrefixColor: ui.FgGreen, OmitRun: true}

// SetLogger sets an optional destination for tiler logs.
func SetLogger(w io.Writer) { logger.SetWriter(w) }

func logf(format string, args ...any) {
	logger.Logf("", format, args...)
}
