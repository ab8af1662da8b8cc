// Package api serves the tracker state, the lifecycle store and a tracking
// chart over HTTP.
package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/db"
	"github.com/banshee-data/avatar.track/internal/httputil"
	"github.com/banshee-data/avatar.track/internal/interact"
	"github.com/banshee-data/avatar.track/internal/sensor"
	"github.com/banshee-data/avatar.track/internal/tracker"
	"github.com/banshee-data/avatar.track/internal/version"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Server answers the /api routes. The manager is required; everything else
// is optional and the matching routes degrade when it is absent.
type Server struct {
	manager  *tracker.Manager
	source   sensor.Source
	cfg      *config.TuningConfig
	db       *db.DB
	recorder *db.Recorder
	history  *History
	rigStats func() interact.RigStats
}

// Option configures a Server.
type Option func(*Server)

// WithSource reports the sensor source on /api/stats.
func WithSource(src sensor.Source) Option { return func(s *Server) { s.source = src } }

// WithConfig serves cfg on /api/config.
func WithConfig(cfg *config.TuningConfig) Option { return func(s *Server) { s.cfg = cfg } }

// WithDB enables /api/events and /api/sessions. rec, when set, picks the
// default session.
func WithDB(d *db.DB, rec *db.Recorder) Option {
	return func(s *Server) { s.db, s.recorder = d, rec }
}

// WithHistory feeds /api/charts/tracking.
func WithHistory(h *History) Option { return func(s *Server) { s.history = h } }

// WithRigStats reports the interaction rig on /api/stats. fn must be safe to
// call from any goroutine.
func WithRigStats(fn func() interact.RigStats) Option { return func(s *Server) { s.rigStats = fn } }

// NewServer returns a server over m.
func NewServer(m *tracker.Manager, opts ...Option) *Server {
	s := &Server{manager: m}
	for _, o := range opts {
		o(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/avatars", s.listAvatars)
	mux.HandleFunc("/api/avatars/{id}", s.getAvatar)
	mux.HandleFunc("/api/active", s.getActive)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/charts/tracking", s.trackingChart)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

func (s *Server) listAvatars(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	avatars := s.manager.Snapshots()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"count":   len(avatars),
		"avatars": avatars,
	})
}

func (s *Server) getAvatar(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid avatar id %q", raw))
		return
	}
	snap, ok := s.manager.Snapshot(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no avatar with id %d", id))
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (s *Server) getActive(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	snap, ok := s.manager.ActiveSnapshot()
	if !ok {
		httputil.NotFound(w, "no active avatar")
		return
	}
	httputil.WriteJSONOK(w, snap)
}

type sourceStats struct {
	Name     string            `json:"name"`
	Disabled string            `json:"disabled,omitempty"`
	Slot     *sensor.SlotStats `json:"slot,omitempty"`
}

type statsResponse struct {
	Tracker  tracker.Stats      `json:"tracker"`
	Source   *sourceStats       `json:"source,omitempty"`
	Rig      *interact.RigStats `json:"rig,omitempty"`
	Recorder *db.RecorderStats  `json:"recorder,omitempty"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	resp := statsResponse{Tracker: s.manager.Stats()}
	if s.source != nil {
		src := &sourceStats{Name: s.source.Name()}
		if d, ok := s.source.(*sensor.Disabled); ok {
			src.Disabled = d.Err().Error()
		}
		if rep, ok := s.source.(sensor.StatsReporter); ok {
			st := rep.SlotStats()
			src.Slot = &st
		}
		resp.Source = src
	}
	if s.rigStats != nil {
		rs := s.rigStats()
		resp.Rig = &rs
	}
	if s.recorder != nil {
		rs := s.recorder.Stats()
		resp.Recorder = &rs
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "lifecycle database not configured")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultEventLimit, maxEventLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	session := r.URL.Query().Get("session")
	switch {
	case session == "all":
		session = ""
	case session == "" && s.recorder != nil:
		session = s.recorder.SessionID()
	}

	events, err := s.db.ListEvents(session, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve events: %v", err))
		return
	}
	if events == nil {
		events = []db.AvatarEvent{}
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "lifecycle database not configured")
		return
	}
	sessions, err := s.db.Sessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	cfg := s.cfg
	if cfg == nil {
		cfg = config.DefaultTuningConfig()
	}
	httputil.WriteJSONOK(w, cfg)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}
