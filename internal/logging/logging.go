// internal/logging/logging.go

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Configure ustawia domyślny logger procesu
//
// Obsługiwane poziomy: debug, info, warn, error.
func Configure(level string, out io.Writer) error {
	parsed, err := parseLevel(level)
	if err != nil {
		return err
	}

	if out == nil {
		out = os.Stderr
	}

	log.SetOutput(out)
	log.SetLevel(parsed)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.TimeOnly)
	return nil
}

func parseLevel(level string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", LevelInfo:
		return log.InfoLevel, nil
	case LevelDebug:
		return log.DebugLevel, nil
	case LevelWarn:
		return log.WarnLevel, nil
	case LevelError:
		return log.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", level)
	}
}

// ForMachine zwraca logger z przypiętą nazwą maszyny
func ForMachine(name string) *log.Logger {
	return log.With("machine", name)
}
