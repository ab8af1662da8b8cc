package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EventKind is what happened to an avatar.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventDestroyed   EventKind = "destroyed"
	EventActivated   EventKind = "activated"
	EventDeactivated EventKind = "deactivated"
)

// Session is one run of the service against one sensor source.
type Session struct {
	ID        string     `json:"session_id"`
	Source    string     `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// AvatarEvent is one lifecycle event.
type AvatarEvent struct {
	ID         int64     `json:"event_id"`
	SessionID  string    `json:"session_id"`
	Seq        uint64    `json:"seq"`
	BodyID     uint64    `json:"body_id"`
	InstanceID string    `json:"instance_id"`
	Kind       EventKind `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FrameStat is the recorded summary of one processed frame.
type FrameStat struct {
	Seq        uint64        `json:"seq"`
	RecordedAt time.Time     `json:"recorded_at"`
	Tracked    int           `json:"tracked"`
	Created    int           `json:"created"`
	Destroyed  int           `json:"destroyed"`
	ActiveID   uint64        `json:"active_id"`
	HasActive  bool          `json:"has_active"`
	Reused     bool          `json:"reused"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// StartSession inserts a session row.
func (db *DB) StartSession(id, source string, at time.Time, notes string) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, source, started_at, notes) VALUES (?, ?, ?, ?)`,
		id, source, at.UnixNano(), notes,
	)
	if err != nil {
		return fmt.Errorf("failed to start session %s: %w", id, err)
	}
	return nil
}

// EndSession stamps a session's end time.
func (db *DB) EndSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return nil
}

func scanSession(sc interface{ Scan(...any) error }) (Session, error) {
	var (
		s       Session
		started int64
		ended   sql.NullInt64
	)
	if err := sc.Scan(&s.ID, &s.Source, &started, &ended, &s.Notes); err != nil {
		return Session{}, err
	}
	s.StartedAt = fromNanos(started)
	if ended.Valid {
		t := fromNanos(ended.Int64)
		s.EndedAt = &t
	}
	return s, nil
}

const sessionColumns = `session_id, source, started_at, ended_at, notes`

// Sessions returns every session, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSession looks a session up by ID.
func (db *DB) GetSession(id string) (Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return s, err
}

// LatestSession returns the most recently started session.
func (db *DB) LatestSession() (Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	return s, err
}

// ListEvents returns up to limit events, newest first. An empty sessionID
// lists every session.
func (db *DB) ListEvents(sessionID string, limit int) ([]AvatarEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT event_id, session_id, seq, body_id, instance_id, kind, occurred_at FROM avatar_events`
	args := []any{}
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY event_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AvatarEvent
	for rows.Next() {
		var (
			e        AvatarEvent
			seq      int64
			bodyID   int64
			occurred int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &seq, &bodyID, &e.InstanceID, &e.Kind, &occurred); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.BodyID = uint64(bodyID)
		e.OccurredAt = fromNanos(occurred)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FrameStats returns the last limit frame statistics of a session in the
// order they were recorded. A limit of zero or less returns them all.
func (db *DB) FrameStats(sessionID string, limit int) ([]FrameStat, error) {
	q := `SELECT seq, recorded_at, tracked, created, destroyed, active_id, reused, elapsed_us
		FROM frame_stats WHERE session_id = ? ORDER BY stat_id DESC`
	args := []any{sessionID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameStat
	for rows.Next() {
		var (
			s        FrameStat
			seq      int64
			recorded int64
			active   sql.NullInt64
			elapsed  int64
		)
		if err := rows.Scan(&seq, &recorded, &s.Tracked, &s.Created, &s.Destroyed, &active, &s.Reused, &elapsed); err != nil {
			return nil, err
		}
		s.Seq = uint64(seq)
		s.RecordedAt = fromNanos(recorded)
		if active.Valid {
			s.ActiveID = uint64(active.Int64)
			s.HasActive = true
		}
		s.Elapsed = time.Duration(elapsed) * time.Microsecond
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
