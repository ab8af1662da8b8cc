package sensor

import (
	"context"
	"math"
	"time"

	"github.com/banshee-data/avatar.track/internal/skeleton"
	"github.com/banshee-data/avatar.track/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// BodySlots is how many body slots a sensor frame carries.
const BodySlots = 6

// syntheticIDBase keeps generated tracking IDs in the range real sensors use.
const syntheticIDBase = 72057594037927936

// restPose holds joint offsets from SpineBase in metres for a standing body.
var restPose = [skeleton.JointCount]r3.Vec{
	skeleton.SpineBase:     {},
	skeleton.SpineMid:      {Y: 0.30},
	skeleton.Neck:          {Y: 0.62},
	skeleton.Head:          {Y: 0.76},
	skeleton.ShoulderLeft:  {X: -0.18, Y: 0.52},
	skeleton.ElbowLeft:     {X: -0.28, Y: 0.28},
	skeleton.WristLeft:     {X: -0.32, Y: 0.06},
	skeleton.HandLeft:      {X: -0.33, Y: -0.02},
	skeleton.ShoulderRight: {X: 0.18, Y: 0.52},
	skeleton.ElbowRight:    {X: 0.28, Y: 0.28},
	skeleton.WristRight:    {X: 0.32, Y: 0.06},
	skeleton.HandRight:     {X: 0.33, Y: -0.02},
	skeleton.HipLeft:       {X: -0.09, Y: -0.04},
	skeleton.KneeLeft:      {X: -0.10, Y: -0.44},
	skeleton.AnkleLeft:     {X: -0.10, Y: -0.84},
	skeleton.FootLeft:      {X: -0.10, Y: -0.88, Z: -0.10},
	skeleton.HipRight:      {X: 0.09, Y: -0.04},
	skeleton.KneeRight:     {X: 0.10, Y: -0.44},
	skeleton.AnkleRight:    {X: 0.10, Y: -0.84},
	skeleton.FootRight:     {X: 0.10, Y: -0.88, Z: -0.10},
	skeleton.SpineShoulder: {Y: 0.52},
	skeleton.HandTipLeft:   {X: -0.34, Y: -0.10},
	skeleton.ThumbLeft:     {X: -0.30, Y: -0.02, Z: -0.03},
	skeleton.HandTipRight:  {X: 0.34, Y: -0.10},
	skeleton.ThumbRight:    {X: 0.30, Y: -0.02, Z: -0.03},
}

// SyntheticFrame returns a deterministic frame of walking bodies. Each of
// the walkers leaves the scene for a stretch every 600 frames and comes
// back with a new tracking ID, and the feet drop to Inferred for 10 of
// every 90 frames.
func SyntheticFrame(seq uint64, walkers int) *skeleton.Frame {
	if walkers > BodySlots {
		walkers = BodySlots
	}
	f := &skeleton.Frame{Seq: seq, Bodies: make([]*skeleton.Body, BodySlots)}
	for slot := 0; slot < BodySlots; slot++ {
		k := uint64(slot)
		if slot >= walkers || (seq/150+k)%4 == 3 {
			f.Bodies[slot] = skeleton.NewBody(0, false)
			continue
		}
		id := uint64(syntheticIDBase) + k*1000 + (seq+k*150)/600
		f.Bodies[slot] = walker(id, seq, float64(slot))
	}
	return f
}

func walker(id, seq uint64, k float64) *skeleton.Body {
	b := skeleton.NewBody(id, true)
	phase := float64(seq)*0.02 + k
	root := r3.Vec{
		X: math.Sin(phase)*0.8 + (k-1)*0.9,
		Y: -0.25,
		Z: 2.2 + k*0.6 + 0.3*math.Cos(phase),
	}
	swing := math.Sin(phase*4) * 0.12
	feetInferred := seq%90 < 10

	for _, j := range skeleton.AllJoints() {
		off := restPose[j]
		switch j {
		case skeleton.HandLeft, skeleton.WristLeft, skeleton.HandTipLeft, skeleton.ThumbLeft:
			off.Z += swing
		case skeleton.HandRight, skeleton.WristRight, skeleton.HandTipRight, skeleton.ThumbRight:
			off.Z -= swing
		}
		state := skeleton.Tracked
		if feetInferred && (j == skeleton.FootLeft || j == skeleton.FootRight) {
			state = skeleton.Inferred
		}
		b.SetJoint(j, r3.Add(root, off), skeleton.Identity, state)
	}
	return b
}

// SyntheticConfig configures a SyntheticSource.
type SyntheticConfig struct {
	Walkers  int           // bodies to simulate, at most BodySlots; 0 uses 2
	Interval time.Duration // 0 uses 33ms
	Clock    timeutil.Clock
}

// SyntheticSource generates walking bodies for development without a sensor.
type SyntheticSource struct {
	reader
	cfg SyntheticConfig
}

// NewSyntheticSource returns an unopened synthetic source.
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	if cfg.Walkers <= 0 {
		cfg.Walkers = 2
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 33 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &SyntheticSource{cfg: cfg}
}

// Name implements Source.
func (s *SyntheticSource) Name() string { return "synthetic" }

// Open implements Source.
func (s *SyntheticSource) Open(ctx context.Context) error {
	return s.start(ctx, s.Name(), s.run)
}

func (s *SyntheticSource) run(ctx context.Context) error {
	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			seq++
			f := SyntheticFrame(seq, s.cfg.Walkers)
			f.Timestamp = now
			s.slot.Put(f)
		}
	}
}

// Close implements Source.
func (s *SyntheticSource) Close() error {
	s.stop()
	return nil
}
