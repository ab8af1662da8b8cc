package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/interact"
	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/banshee-data/avatar.track/internal/sensor"
	"github.com/banshee-data/avatar.track/internal/skeleton"
	"github.com/banshee-data/avatar.track/internal/timeutil"
	"github.com/banshee-data/avatar.track/internal/tracker"
	"gonum.org/v1/gonum/spatial/r3"
)

const wheelTextureSize = 256

// hostViewpoint is the camera rig node that follows the active avatar's head.
type hostViewpoint struct {
	node      *scene.Node
	recenters int
}

func (v *hostViewpoint) MoveTo(p r3.Vec) { v.node.SetWorldPosition(p) }

func (v *hostViewpoint) Recenter() {
	v.recenters++
	log.Printf("viewpoint recentered at %v", v.node.WorldPosition())
}

// pipeline owns the scene and everything that mutates it. Only the frame
// loop goroutine calls step.
type pipeline struct {
	cfg       *config.TuningConfig
	graph     *scene.Graph
	sensor    *scene.Node
	viewpoint *hostViewpoint
	manager   *tracker.Manager
	rig       *interact.Rig

	mu       sync.Mutex
	rigStats interact.RigStats
}

func newPipeline(cfg *config.TuningConfig, clock timeutil.Clock) *pipeline {
	g := scene.NewGraph()
	p := &pipeline{
		cfg:       cfg,
		graph:     g,
		sensor:    g.NewNode("Sensor", nil),
		viewpoint: &hostViewpoint{node: g.NewNode("Viewpoint", nil)},
	}
	p.rig = interact.NewRig(g, clock, interact.WheelTexture(wheelTextureSize), cfg)
	return p
}

// attach creates the tracker manager with opts.
func (p *pipeline) attach(opts ...tracker.Option) {
	p.manager = tracker.NewManager(p.graph, p.sensor, avatar.ConfigFromTuning(p.cfg), opts...)
}

// step processes one frame, which may be nil when the source had nothing
// new, and advances the interaction rig.
func (p *pipeline) step(frame *skeleton.Frame, dt time.Duration) tracker.FrameResult {
	res := p.manager.Process(frame, dt)
	p.rig.Update(p.manager.Current(), nil, dt)

	stats := p.rig.Stats()
	p.mu.Lock()
	p.rigStats = stats
	p.mu.Unlock()
	return res
}

// RigStats returns the interaction summary from the last step.
func (p *pipeline) RigStats() interact.RigStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rigStats
}

// run steps once per tick until ctx is done.
func (p *pipeline) run(ctx context.Context, src sensor.Source, ticker timeutil.Ticker) {
	defer ticker.Stop()
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			var dt time.Duration
			if !last.IsZero() {
				dt = now.Sub(last)
			}
			last = now

			frame, ok := src.LatestFrame()
			if !ok {
				frame = nil
			}
			p.step(frame, dt)
		}
	}
}
