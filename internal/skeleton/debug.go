package skeleton

import (
	"io"

	"github.com/banshee-data/avatar.track/internal/monitoring"
)

var logs = monitoring.NewLogs("[skeleton] ")

// SetLogWriters configures the logging streams for the skeleton package.
// The package has no diag output. Pass nil for any writer to disable that stream.
func SetLogWriters(ops, trace io.Writer) { logs.SetWriters(ops, nil, trace) }

func opsf(format string, args ...interface{})   { logs.Opsf(format, args...) }
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
