package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/avatar.track/internal/httputil"
	"github.com/banshee-data/avatar.track/internal/tracker"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HistoryPoint is one fresh frame as kept for charting.
type HistoryPoint struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	Tracked   int       `json:"tracked"`
	Created   int       `json:"created"`
	Destroyed int       `json:"destroyed"`
	ActiveID  uint64    `json:"active_id"`
	HasActive bool      `json:"has_active"`
}

// History is a fixed-size ring of recent frame results. It implements
// tracker.Observer and skips reused frames.
type History struct {
	mu     sync.Mutex
	points []HistoryPoint
	next   int
	full   bool
}

// NewHistory keeps the last size frames.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{points: make([]HistoryPoint, size)}
}

// FrameProcessed records res.
func (h *History) FrameProcessed(res tracker.FrameResult) {
	if res.Reused {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points[h.next] = HistoryPoint{
		Seq:       res.Seq,
		Time:      res.Timestamp,
		Tracked:   res.Tracked,
		Created:   len(res.Created),
		Destroyed: len(res.Destroyed),
		ActiveID:  res.Active.ID,
		HasActive: res.HasActive,
	}
	h.next++
	if h.next == len(h.points) {
		h.next = 0
		h.full = true
	}
}

// Points returns the kept frames, oldest first.
func (h *History) Points() []HistoryPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]HistoryPoint(nil), h.points[:h.next]...)
	}
	out := make([]HistoryPoint, 0, len(h.points))
	out = append(out, h.points[h.next:]...)
	return append(out, h.points[:h.next]...)
}

// trackingChart renders tracked bodies and avatar churn per frame as an
// HTML line chart.
func (s *Server) trackingChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	if s.history == nil {
		httputil.ServiceUnavailable(w, "frame history not configured")
		return
	}
	points := s.history.Points()

	xs := make([]string, len(points))
	tracked := make([]opts.LineData, len(points))
	created := make([]opts.LineData, len(points))
	destroyed := make([]opts.LineData, len(points))
	for i, p := range points {
		xs[i] = strconv.FormatUint(p.Seq, 10)
		tracked[i] = opts.LineData{Value: p.Tracked}
		created[i] = opts.LineData{Value: p.Created}
		destroyed[i] = opts.LineData{Value: p.Destroyed}
	}

	subtitle := "no frames yet"
	if n := len(points); n > 0 {
		subtitle = fmt.Sprintf("frames %d to %d", points[0].Seq, points[n-1].Seq)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Avatar tracking", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tracked bodies", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bodies", Min: 0}),
	)
	line.SetXAxis(xs).
		AddSeries("tracked", tracked).
		AddSeries("created", created).
		AddSeries("destroyed", destroyed)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
