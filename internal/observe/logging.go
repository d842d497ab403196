package observe

import (
	"io"

	"github.com/skylens-io/skylens/internal/logging"
	"github.com/skylens-io/skylens/internal/ui"
)

var logger = &logging.Logger{PrefixText: "Observe:", PrefixColor: ui.FgCyan}

// SetLogger sets an optional destination for telemetry logs.
func SetLogger(w io.Writer) { logger.SetWriter(w) }

func logf(runID, format string, args ...any) {
	logger.Logf(runID, format, args...)
}
