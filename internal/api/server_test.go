package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/db"
	"github.com/banshee-data/avatar.track/internal/interact"
	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/banshee-data/avatar.track/internal/sensor"
	"github.com/banshee-data/avatar.track/internal/timeutil"
	"github.com/banshee-data/avatar.track/internal/tracker"
	"github.com/banshee-data/avatar.track/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syntheticBase = uint64(72057594037927936)

func newTestManager(opts ...tracker.Option) *tracker.Manager {
	g := scene.NewGraph()
	return tracker.NewManager(g, g.NewNode("sensor", nil), avatar.DefaultConfig(), opts...)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestAvatarRoutes(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	mux := NewServer(m).ServeMux()

	w := get(t, mux, "/api/active")
	assert.Equal(t, http.StatusNotFound, w.Code, "nothing tracked yet")

	m.Process(sensor.SyntheticFrame(0, 2), 33*time.Millisecond)

	w = get(t, mux, "/api/avatars")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Count   int               `json:"count"`
		Avatars []avatar.Snapshot `json:"avatars"`
	}](t, w)
	assert.Equal(t, 2, list.Count)
	require.Len(t, list.Avatars, 2)
	assert.Len(t, list.Avatars[0].Joints, 25)

	w = get(t, mux, "/api/avatars/"+strconv.FormatUint(syntheticBase+1000, 10))
	require.Equal(t, http.StatusOK, w.Code)
	one := decode[avatar.Snapshot](t, w)
	assert.Equal(t, syntheticBase+1000, one.ID)

	w = get(t, mux, "/api/avatars/12")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, mux, "/api/avatars/bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(t, mux, "/api/active")
	require.Equal(t, http.StatusOK, w.Code)
	active := decode[avatar.Snapshot](t, w)
	assert.True(t, active.Active)

	req := httptest.NewRequest(http.MethodPost, "/api/avatars", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestStats(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	src := sensor.NewSyntheticSource(sensor.SyntheticConfig{Walkers: 1, Clock: timeutil.NewMockClock(time.Unix(0, 0))})
	rig := interact.RigStats{Bodies: 4, WallAlpha: 0.5}
	mux := NewServer(m, WithSource(src), WithRigStats(func() interact.RigStats { return rig })).ServeMux()

	m.Process(sensor.SyntheticFrame(0, 1), 0)
	m.Process(nil, 0)

	w := get(t, mux, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var resp statsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, uint64(2), resp.Tracker.Frames)
	assert.Equal(t, uint64(1), resp.Tracker.ReusedFrames)
	assert.Equal(t, 1, resp.Tracker.Live)
	require.NotNil(t, resp.Source)
	assert.Equal(t, "synthetic", resp.Source.Name)
	assert.NotNil(t, resp.Source.Slot)
	assert.Empty(t, resp.Source.Disabled)
	require.NotNil(t, resp.Rig)
	assert.Equal(t, rig, *resp.Rig)
	assert.Nil(t, resp.Recorder)

	disabled := sensor.NewDisabled(errors.New("no device"))
	w = get(t, NewServer(m, WithSource(disabled)).ServeMux(), "/api/stats")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "disabled", resp.Source.Name)
	assert.Contains(t, resp.Source.Disabled, "no device")
}

func TestEventsAndSessions(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	mux := NewServer(m).ServeMux()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, "/api/events").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, "/api/sessions").Code)

	store, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	old, err := db.NewRecorder(store, "replay", timeutil.NewMockClock(time.Unix(0, 0)))
	require.NoError(t, err)
	old.FrameProcessed(tracker.FrameResult{Seq: 1, Created: []tracker.AvatarRef{{ID: 1, InstanceID: "x"}}})

	rec, err := db.NewRecorder(store, "synthetic", timeutil.NewMockClock(time.Unix(10, 0)))
	require.NoError(t, err)
	m = newTestManager(tracker.WithObserver(rec))
	mux = NewServer(m, WithDB(store, rec)).ServeMux()

	m.Process(sensor.SyntheticFrame(0, 2), 0)

	w := get(t, mux, "/api/events")
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[[]db.AvatarEvent](t, w)
	require.Len(t, events, 3, "two created and one activated")
	for _, e := range events {
		assert.Equal(t, rec.SessionID(), e.SessionID)
	}

	w = get(t, mux, "/api/events?session=all&limit=10")
	assert.Len(t, decode[[]db.AvatarEvent](t, w), 4)

	w = get(t, mux, "/api/events?session="+old.SessionID())
	assert.Len(t, decode[[]db.AvatarEvent](t, w), 1)

	w = get(t, mux, "/api/events?session=nope")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/events?limit=x").Code)

	w = get(t, mux, "/api/sessions")
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decode[[]db.Session](t, w)
	require.Len(t, sessions, 2)
	assert.Equal(t, rec.SessionID(), sessions[0].ID)
}

func TestConfigAndVersion(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultTuningConfig()
	scale := 2.5
	cfg.BodyScale = &scale
	mux := NewServer(newTestManager(), WithConfig(cfg)).ServeMux()

	w := get(t, mux, "/api/config")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, 2.5, got["body_scale"])

	w = get(t, NewServer(newTestManager()).ServeMux(), "/api/config")
	got = decode[map[string]any](t, w)
	assert.Equal(t, 6.0, got["body_scale"], "defaults when no config was loaded")

	w = get(t, mux, "/api/version")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, version.Get(), decode[version.Info](t, w))
}

func TestTrackingChart(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, NewServer(newTestManager()).ServeMux(), "/api/charts/tracking").Code)

	h := NewHistory(8)
	m := newTestManager(tracker.WithObserver(h))
	mux := NewServer(m, WithHistory(h)).ServeMux()
	for seq := uint64(0); seq < 4; seq++ {
		m.Process(sensor.SyntheticFrame(seq, 2), 0)
	}

	w := get(t, mux, "/api/charts/tracking")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	body := w.Body.String()
	assert.Contains(t, body, "Tracked bodies")
	assert.Contains(t, body, "frames 0 to 3")
	assert.Contains(t, body, "destroyed")
}

func TestHistory(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	assert.Empty(t, h.Points())

	for seq := uint64(1); seq <= 5; seq++ {
		h.FrameProcessed(tracker.FrameResult{Seq: seq, Tracked: int(seq)})
	}
	h.FrameProcessed(tracker.FrameResult{Seq: 5, Reused: true})

	pts := h.Points()
	require.Len(t, pts, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{pts[0].Seq, pts[1].Seq, pts[2].Seq})
}
