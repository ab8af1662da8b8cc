// Package monitoring holds the process-wide diagnostic logger and the
// routing of the ops/diag/trace log streams used by the tracking packages.
package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Streams names the writers for the three log streams. A nil writer disables
// that stream.
type Streams struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// Level selects how many of the streams are enabled.
type Level string

const (
	LevelOps   Level = "ops"   // failures and lifecycle only
	LevelDiag  Level = "diag"  // plus tuning and per-session diagnostics
	LevelTrace Level = "trace" // plus per-frame telemetry
	LevelQuiet Level = "quiet" // nothing
)

// ParseLevel converts a flag value into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelOps, "":
		return LevelOps, nil
	case LevelDiag:
		return LevelDiag, nil
	case LevelTrace:
		return LevelTrace, nil
	case LevelQuiet, "none":
		return LevelQuiet, nil
	}
	return "", fmt.Errorf("unknown log level %q: expected ops, diag, trace or quiet", s)
}

// StreamsFor returns the writers enabled at the given level, all pointing at w.
// A nil w defaults to os.Stderr.
func StreamsFor(level Level, w io.Writer) Streams {
	if w == nil {
		w = os.Stderr
	}
	switch level {
	case LevelQuiet:
		return Streams{}
	case LevelDiag:
		return Streams{Ops: w, Diag: w}
	case LevelTrace:
		return Streams{Ops: w, Diag: w, Trace: w}
	default:
		return Streams{Ops: w}
	}
}
