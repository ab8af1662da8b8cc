package monitoring

import (
	"io"
	"log"
	"sync/atomic"
)

// Logs holds one package's ops, diag and trace loggers. Every stream is
// disabled until SetWriters gives it a writer.
type Logs struct {
	prefix string
	set    atomic.Pointer[logSet]
}

type logSet struct {
	ops, diag, trace *log.Logger
}

// NewLogs returns disabled streams whose lines start with prefix.
func NewLogs(prefix string) *Logs {
	return &Logs{prefix: prefix}
}

// SetWriters replaces the writers. A nil writer disables that stream.
func (l *Logs) SetWriters(ops, diag, trace io.Writer) {
	l.set.Store(&logSet{
		ops:   l.newLogger(ops),
		diag:  l.newLogger(diag),
		trace: l.newLogger(trace),
	})
}

// Apply routes the streams to s.
func (l *Logs) Apply(s Streams) { l.SetWriters(s.Ops, s.Diag, s.Trace) }

func (l *Logs) newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, l.prefix, log.LstdFlags|log.Lmicroseconds)
}

func (l *Logs) get() logSet {
	if s := l.set.Load(); s != nil {
		return *s
	}
	return logSet{}
}

// Opsf logs failures and lifecycle changes.
func (l *Logs) Opsf(format string, args ...interface{}) {
	if lg := l.get().ops; lg != nil {
		lg.Printf(format, args...)
	}
}

// Diagf logs tuning context and per-session diagnostics.
func (l *Logs) Diagf(format string, args ...interface{}) {
	if lg := l.get().diag; lg != nil {
		lg.Printf(format, args...)
	}
}

// Tracef logs per-frame telemetry.
func (l *Logs) Tracef(format string, args ...interface{}) {
	if lg := l.get().trace; lg != nil {
		lg.Printf(format, args...)
	}
}
