// Package sensor provides body-frame sources. Every source reads on its own
// goroutine and publishes into a latest-frame slot; the frame loop polls the
// slot once per tick and never blocks on the sensor.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/avatar.track/internal/skeleton"
)

// ErrSourceDisabled is wrapped by the error a Disabled source reports.
var ErrSourceDisabled = errors.New("sensor source disabled")

// Source is a body-frame reader.
type Source interface {
	// Name identifies the source in logs and the API.
	Name() string
	// Open starts reading. The source stops when ctx is cancelled or Close
	// is called.
	Open(ctx context.Context) error
	// LatestFrame returns the newest frame not yet returned. It never blocks.
	LatestFrame() (*skeleton.Frame, bool)
	// Close stops reading and releases the device.
	Close() error
}

// SlotStats counts what a Slot has seen.
type SlotStats struct {
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"` // overwritten before anyone read them
	Taken    uint64 `json:"taken"`
}

// Slot holds at most one unread frame. A new frame overwrites an unread one.
type Slot struct {
	mu    sync.Mutex
	frame *skeleton.Frame
	fresh bool
	stats SlotStats
}

// Put stores f as the latest frame.
func (s *Slot) Put(f *skeleton.Frame) {
	if f == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fresh {
		s.stats.Dropped++
	}
	s.frame = f
	s.fresh = true
	s.stats.Received++
}

// Take returns the latest frame if it has not been taken yet.
func (s *Slot) Take() (*skeleton.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return nil, false
	}
	s.fresh = false
	s.stats.Taken++
	return s.frame, true
}

// Stats returns the slot counters.
func (s *Slot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// StatsReporter is implemented by sources that publish through a Slot.
type StatsReporter interface {
	SlotStats() SlotStats
}

// Disabled is the source used when no sensor could be opened. It never
// produces frames.
type Disabled struct {
	reason error
}

// NewDisabled returns a disabled source. reason may be nil.
func NewDisabled(reason error) *Disabled {
	return &Disabled{reason: reason}
}

func (d *Disabled) Name() string                         { return "disabled" }
func (d *Disabled) Open(context.Context) error           { return nil }
func (d *Disabled) LatestFrame() (*skeleton.Frame, bool) { return nil, false }
func (d *Disabled) Close() error                         { return nil }

// Err reports why the source is disabled. It always wraps ErrSourceDisabled.
func (d *Disabled) Err() error {
	if d.reason == nil {
		return ErrSourceDisabled
	}
	return fmt.Errorf("%w: %w", ErrSourceDisabled, d.reason)
}

// OpenOrDisable opens src. If that fails the failure is logged and a Disabled
// source is returned in its place for the rest of the session.
func OpenOrDisable(ctx context.Context, src Source) Source {
	if src == nil {
		opsf("no sensor source configured; running without body data")
		return NewDisabled(nil)
	}
	if err := src.Open(ctx); err != nil {
		opsf("failed to open %s source: %v; running without body data", src.Name(), err)
		return NewDisabled(fmt.Errorf("open %s: %w", src.Name(), err))
	}
	opsf("%s source open", src.Name())
	return src
}

// reader runs fn on a goroutine until it returns, ctx is cancelled or stop is
// called. Sources embed it to share the start/stop bookkeeping.
type reader struct {
	slot Slot

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *reader) start(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return fmt.Errorf("%s source already open", name)
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			opsf("%s source stopped: %v", name, err)
			return
		}
		diagf("%s source finished", name)
	}()
	return nil
}

func (r *reader) stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the reading goroutine has exited. It is nil before
// Open.
func (r *reader) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *reader) LatestFrame() (*skeleton.Frame, bool) { return r.slot.Take() }

func (r *reader) SlotStats() SlotStats { return r.slot.Stats() }
