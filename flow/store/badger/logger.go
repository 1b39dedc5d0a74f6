package badger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Logger adapts a zerolog.Logger to badger.Logger. Badger's info messages
// go to debug level and its debug messages to trace.
type Logger struct {
	Logger zerolog.Logger
}

func (l Logger) Errorf(format string, args ...any) {
	l.Logger.Error().Msg(message(format, args))
}

func (l Logger) Warningf(format string, args ...any) {
	l.Logger.Warn().Msg(message(format, args))
}

func (l Logger) Infof(format string, args ...any) {
	l.Logger.Debug().Msg(message(format, args))
}

func (l Logger) Debugf(format string, args ...any) {
	l.Logger.Trace().Msg(message(format, args))
}

func message(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
