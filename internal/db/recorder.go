package db

import (
	"fmt"
	"log"
	"sync"

	"github.com/banshee-data/avatar.track/internal/timeutil"
	"github.com/banshee-data/avatar.track/internal/tracker"
	"github.com/google/uuid"
)

// Recorder writes tracker frame results into a session. It implements
// tracker.Observer; write failures are logged and counted, never returned
// into the frame loop.
type Recorder struct {
	// StatsEvery records a frame_stats row for every Nth frame. Lifecycle
	// events are always recorded.
	StatsEvery int

	db      *DB
	clock   timeutil.Clock
	session string

	mu     sync.Mutex
	frames uint64
	events uint64
	errors uint64
	closed bool
}

// RecorderStats counts what a Recorder has written.
type RecorderStats struct {
	SessionID string `json:"session_id"`
	Frames    uint64 `json:"frames"`
	Events    uint64 `json:"events"`
	Errors    uint64 `json:"errors"`
}

// NewRecorder starts a new session for source.
func NewRecorder(db *DB, source string, clock timeutil.Clock) (*Recorder, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	id := uuid.NewString()
	if err := db.StartSession(id, source, clock.Now(), ""); err != nil {
		return nil, err
	}
	log.Printf("recording session %s (source %s)", id, source)
	return &Recorder{StatsEvery: 1, db: db, clock: clock, session: id}, nil
}

// SessionID returns the session being recorded.
func (r *Recorder) SessionID() string { return r.session }

// Stats returns write counters.
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RecorderStats{SessionID: r.session, Frames: r.frames, Events: r.events, Errors: r.errors}
}

// FrameProcessed records res.
func (r *Recorder) FrameProcessed(res tracker.FrameResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.frames++
	n, err := r.write(res, r.StatsEvery > 0 && r.frames%uint64(r.StatsEvery) == 0)
	if err != nil {
		r.errors++
		log.Printf("failed to record frame %d: %v", res.Seq, err)
		return
	}
	r.events += uint64(n)
}

type eventRow struct {
	ref  tracker.AvatarRef
	kind EventKind
}

func (r *Recorder) write(res tracker.FrameResult, withStats bool) (int, error) {
	var rows []eventRow
	for _, ref := range res.Created {
		rows = append(rows, eventRow{ref, EventCreated})
	}
	for _, ref := range res.Destroyed {
		rows = append(rows, eventRow{ref, EventDestroyed})
	}
	if res.ActiveChanged {
		if res.HasActive {
			rows = append(rows, eventRow{res.Active, EventActivated})
		} else {
			rows = append(rows, eventRow{kind: EventDeactivated})
		}
	}
	if len(rows) == 0 && !withStats {
		return 0, nil
	}

	at := res.Timestamp
	if at.IsZero() {
		at = r.clock.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, row := range rows {
		if _, err := tx.Exec(
			`INSERT INTO avatar_events (session_id, seq, body_id, instance_id, kind, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.session, int64(res.Seq), int64(row.ref.ID), row.ref.InstanceID, string(row.kind), at.UnixNano(),
		); err != nil {
			return 0, fmt.Errorf("insert %s event: %w", row.kind, err)
		}
	}

	if withStats {
		var active any
		if res.HasActive {
			active = int64(res.Active.ID)
		}
		if _, err := tx.Exec(
			`INSERT INTO frame_stats (session_id, seq, recorded_at, tracked, created, destroyed, active_id, reused, elapsed_us)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.session, int64(res.Seq), at.UnixNano(), res.Tracked, len(res.Created), len(res.Destroyed),
			active, res.Reused, res.Elapsed.Microseconds(),
		); err != nil {
			return 0, fmt.Errorf("insert frame stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Close ends the session. Frames observed afterwards are ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.EndSession(r.session, r.clock.Now())
}
