package health

import (
	"io"

	"github.com/skylens-io/skylens/internal/logging"
	"github.com/skylens-io/skylens/internal/ui"
)

var logger = &logging.Logger{PrefixText: "Health:", PrefixColor: ui.FgYellow, OmitRun: true}

// SetLogger sets an optional destination for health evaluation logs.
func SetLogger(w io.Writer) { logger.SetWriter(w) }

func logf(format string, args ...any) {
	logger.Logf("", format, args...)
}
