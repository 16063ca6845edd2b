package native

import (
	"github.com/facebookincubator/go-belt/tool/logger"
)

type LogHandler func(level logger.Level, component string, message string)

// LogSource is implemented by backends emitting their own log lines.
type LogSource interface {
	SetLogHandler(LogHandler)
}
