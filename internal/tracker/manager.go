// Package tracker reconciles the bodies reported by the sensor against the
// set of live avatars once per frame and chooses the active avatar.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/banshee-data/avatar.track/internal/skeleton"
)

// AvatarRef identifies one avatar instance.
type AvatarRef struct {
	ID         uint64 `json:"id"`
	InstanceID string `json:"instance_id"`
}

// FrameResult describes what one call to Process changed.
type FrameResult struct {
	Seq           uint64        `json:"seq"`
	Timestamp     time.Time     `json:"timestamp"`
	Reused        bool          `json:"reused"` // no new frame; the previous one was applied again
	Tracked       int           `json:"tracked"`
	Created       []AvatarRef   `json:"created,omitempty"`
	Destroyed     []AvatarRef   `json:"destroyed,omitempty"`
	Active        AvatarRef     `json:"active"`
	HasActive     bool          `json:"has_active"`
	ActiveChanged bool          `json:"active_changed"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// Observer is told about every processed frame, after the manager's lock has
// been released.
type Observer interface {
	FrameProcessed(res FrameResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(FrameResult)

// FrameProcessed calls f(res).
func (f ObserverFunc) FrameProcessed(res FrameResult) { f(res) }

// Factory builds the avatar for a newly tracked body.
type Factory func(id uint64) *avatar.Avatar

// Stats are running totals since the manager was created.
type Stats struct {
	Frames        uint64    `json:"frames"`
	ReusedFrames  uint64    `json:"reused_frames"`
	Created       uint64    `json:"created"`
	Destroyed     uint64    `json:"destroyed"`
	ActiveChanges uint64    `json:"active_changes"`
	Live          int       `json:"live"`
	LastSeq       uint64    `json:"last_seq"`
	LastFrameAt   time.Time `json:"last_frame_at"`
}

// Manager owns every avatar. It is not a singleton: construct one per sensor
// and pass it to whatever needs it.
type Manager struct {
	factory   Factory
	viewpoint avatar.Viewpoint
	observers []Observer

	mu       sync.RWMutex
	avatars  map[uint64]*avatar.Avatar
	order    []uint64 // creation order
	activeID uint64
	active   bool
	last     *skeleton.Frame
	stats    Stats
}

// Option configures a Manager.
type Option func(*Manager)

// WithViewpoint sets the host viewpoint handed to the active avatar.
func WithViewpoint(vp avatar.Viewpoint) Option {
	return func(m *Manager) { m.viewpoint = vp }
}

// WithObserver registers an observer. Observers run on the Process goroutine.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithFactory replaces the default avatar factory.
func WithFactory(f Factory) Option {
	return func(m *Manager) { m.factory = f }
}

// NewManager returns a manager that creates avatars under parent in g.
func NewManager(g *scene.Graph, parent *scene.Node, cfg avatar.Config, opts ...Option) *Manager {
	m := &Manager{
		avatars: make(map[uint64]*avatar.Avatar),
		factory: func(id uint64) *avatar.Avatar {
			return avatar.New(id, g, parent, cfg)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Process reconciles one frame. A nil frame re-applies the last frame seen so
// avatars keep converging when the sensor has nothing new; before the first
// frame it does nothing.
//
// Avatars whose IDs are no longer tracked are killed first, then new IDs get
// avatars in body-slot order, then every tracked body is forwarded to its
// avatar. If the active avatar is gone the one whose head is nearest the
// sensor becomes active.
func (m *Manager) Process(frame *skeleton.Frame, dt time.Duration) FrameResult {
	start := time.Now()

	m.mu.Lock()
	reused := false
	if frame == nil {
		frame = m.last
		reused = true
	}
	if frame == nil {
		m.mu.Unlock()
		return FrameResult{}
	}
	m.last = frame

	bodies := frame.TrackedBodies()
	present := make(map[uint64]struct{}, len(bodies))
	for _, b := range bodies {
		present[b.TrackingID] = struct{}{}
	}

	res := FrameResult{
		Seq:       frame.Seq,
		Timestamp: frame.Timestamp,
		Reused:    reused,
		Tracked:   len(bodies),
	}

	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := present[id]; ok {
			kept = append(kept, id)
			continue
		}
		a := m.avatars[id]
		res.Destroyed = append(res.Destroyed, AvatarRef{ID: id, InstanceID: a.InstanceID})
		a.Kill()
		delete(m.avatars, id)
		opsf("avatar %d lost after %d updates", id, a.Updates())
	}
	m.order = kept

	for _, b := range bodies {
		if _, ok := m.avatars[b.TrackingID]; ok {
			continue
		}
		a := m.factory(b.TrackingID)
		m.avatars[b.TrackingID] = a
		m.order = append(m.order, b.TrackingID)
		res.Created = append(res.Created, AvatarRef{ID: b.TrackingID, InstanceID: a.InstanceID})
		opsf("avatar %d created (%s)", b.TrackingID, a.InstanceID)
	}

	for _, b := range bodies {
		m.avatars[b.TrackingID].Update(b, dt)
	}

	if _, ok := m.avatars[m.activeID]; !ok || !m.active {
		res.ActiveChanged = m.selectActive()
	}
	if m.active {
		a := m.avatars[m.activeID]
		res.Active = AvatarRef{ID: a.ID, InstanceID: a.InstanceID}
		res.HasActive = true
	}

	m.stats.Frames++
	if reused {
		m.stats.ReusedFrames++
	}
	m.stats.Created += uint64(len(res.Created))
	m.stats.Destroyed += uint64(len(res.Destroyed))
	if res.ActiveChanged {
		m.stats.ActiveChanges++
	}
	m.stats.Live = len(m.avatars)
	m.stats.LastSeq = frame.Seq
	m.stats.LastFrameAt = frame.Timestamp
	res.Elapsed = time.Since(start)
	observers := m.observers
	m.mu.Unlock()

	tracef("frame %d: tracked=%d created=%d destroyed=%d active=%d reused=%v in %s",
		res.Seq, res.Tracked, len(res.Created), len(res.Destroyed), res.Active.ID, reused, res.Elapsed)
	for _, o := range observers {
		o.FrameProcessed(res)
	}
	return res
}

// selectActive picks the avatar nearest the sensor. Ties go to the lower
// tracking ID. Callers hold mu. It reports whether the active ID changed.
func (m *Manager) selectActive() bool {
	prev, hadActive := m.activeID, m.active
	m.active = false
	if len(m.avatars) == 0 {
		return hadActive
	}

	ids := make([]uint64, 0, len(m.avatars))
	for id := range m.avatars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := m.avatars[ids[i]].DistanceToSensor(), m.avatars[ids[j]].DistanceToSensor()
		if di != dj {
			return di < dj
		}
		return ids[i] < ids[j]
	})

	chosen := m.avatars[ids[0]]
	chosen.SetActive(m.viewpoint)
	m.activeID = chosen.ID
	m.active = true
	diagf("active avatar %d at %.2f from the sensor (%d candidates)", chosen.ID, chosen.DistanceToSensor(), len(ids))
	return !hadActive || prev != chosen.ID
}

// Current returns the active avatar, or nil when none is tracked. The avatar
// is only safe to use from the goroutine calling Process.
func (m *Manager) Current() *avatar.Avatar {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.active {
		return nil
	}
	return m.avatars[m.activeID]
}

// Get returns the avatar for a tracking ID. Same caveat as Current.
func (m *Manager) Get(id uint64) (*avatar.Avatar, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.avatars[id]
	return a, ok
}

// IDs returns the live tracking IDs in creation order.
func (m *Manager) IDs() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint64, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of live avatars.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.avatars)
}

// Snapshots copies every live avatar in creation order. Safe from any
// goroutine.
func (m *Manager) Snapshots() []avatar.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]avatar.Snapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.avatars[id].Snapshot())
	}
	return out
}

// Snapshot copies one avatar. Safe from any goroutine.
func (m *Manager) Snapshot(id uint64) (avatar.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.avatars[id]
	if !ok {
		return avatar.Snapshot{}, false
	}
	return a.Snapshot(), true
}

// ActiveSnapshot copies the active avatar. Safe from any goroutine.
func (m *Manager) ActiveSnapshot() (avatar.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.active {
		return avatar.Snapshot{}, false
	}
	return m.avatars[m.activeID].Snapshot(), true
}

// Stats returns the running totals.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Reset kills every avatar and forgets the last frame.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		m.avatars[id].Kill()
	}
	m.stats.Destroyed += uint64(len(m.order))
	m.avatars = make(map[uint64]*avatar.Avatar)
	m.order = nil
	m.active = false
	m.activeID = 0
	m.last = nil
	m.stats.Live = 0
	opsf("manager reset")
}
