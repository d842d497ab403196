package batch

import (
	"io"

	"github.com/skylens-io/skylens/internal/logging"
	"github.com/skylens-io/skylens/internal/ui"
)

var logger = &logging.Logger{PrefixText: "Batch:", PrefixColor: ui.FgMagenta}

// SetLogger sets an optional destination for batch run logs.
func SetLogger(w io.Writer) { logger.SetWriter(w) }

func logf(runID, format string, args ...any) {
	logger.Logf(runID, format, args...)
}
