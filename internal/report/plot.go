// Package report renders recorded session statistics as static images.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/banshee-data/avatar.track/internal/db"
	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoStats is returned when a session has no frame statistics to plot.
var ErrNoStats = errors.New("no frame statistics")

// Options control the rendered image.
type Options struct {
	Title  string
	Width  vg.Length
	Height vg.Length
	// Format is any format plot.WriterTo accepts; png by default.
	Format string
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 14 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 6 * vg.Inch
	}
	if o.Format == "" {
		o.Format = "png"
	}
	if o.Title == "" {
		o.Title = "Tracked bodies"
	}
	return o
}

type series struct {
	label string
	value func(db.FrameStat) float64
}

var frameSeries = []series{
	{"tracked", func(s db.FrameStat) float64 { return float64(s.Tracked) }},
	{"created", func(s db.FrameStat) float64 { return float64(s.Created) }},
	{"destroyed", func(s db.FrameStat) float64 { return float64(s.Destroyed) }},
}

// palette spaces n hues evenly around the wheel.
func palette(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		colors[i] = colorful.Hsl(360*float64(i)/float64(n), 0.7, 0.5)
	}
	return colors
}

// Render draws tracked, created and destroyed counts per recorded frame.
// Reused frames are skipped.
func Render(w io.Writer, stats []db.FrameStat, opt Options) error {
	opt = opt.withDefaults()

	fresh := make([]db.FrameStat, 0, len(stats))
	for _, s := range stats {
		if !s.Reused {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 {
		return ErrNoStats
	}

	p := plot.New()
	p.Title.Text = opt.Title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Bodies"
	p.Y.Min = 0

	colors := palette(len(frameSeries))
	for i, sr := range frameSeries {
		pts := make(plotter.XYs, len(fresh))
		for j, s := range fresh {
			pts[j] = plotter.XY{X: float64(s.Seq), Y: sr.value(s)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("%s: %w", sr.label, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(sr.label, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(opt.Width, opt.Height, opt.Format)
	if err != nil {
		return fmt.Errorf("failed to create %s writer: %w", opt.Format, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SessionPlot renders a recorded session to path. An empty sessionID
// selects the most recent session.
func SessionPlot(store *db.DB, sessionID, path string, opt Options) error {
	if sessionID == "" {
		s, err := store.LatestSession()
		if err != nil {
			return err
		}
		sessionID = s.ID
	}
	stats, err := store.FrameStats(sessionID, 0)
	if err != nil {
		return fmt.Errorf("failed to load frame stats for %s: %w", sessionID, err)
	}
	if opt.Title == "" {
		opt.Title = fmt.Sprintf("Session %s", sessionID)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Render(f, stats, opt); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
