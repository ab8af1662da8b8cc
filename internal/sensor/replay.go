package sensor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/avatar.track/internal/skeleton"
	"github.com/banshee-data/avatar.track/internal/timeutil"
)

// maxLineBytes bounds one JSON frame line. Six bodies of 25 joints fit in
// well under this.
const maxLineBytes = 1 << 20

// ReplayConfig configures a ReplaySource.
type ReplayConfig struct {
	Path     string
	Interval time.Duration // delay between frames; 0 uses 33ms
	Loop     bool          // rewind at end of file
	Clock    timeutil.Clock
}

// ReplaySource plays back a JSON-lines recording, one frame per line.
type ReplaySource struct {
	reader
	cfg  ReplayConfig
	file *os.File
}

// NewReplaySource returns an unopened replay source.
func NewReplaySource(cfg ReplayConfig) *ReplaySource {
	if cfg.Interval <= 0 {
		cfg.Interval = 33 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &ReplaySource{cfg: cfg}
}

// Name implements Source.
func (s *ReplaySource) Name() string { return "replay" }

// Open implements Source.
func (s *ReplaySource) Open(ctx context.Context) error {
	if s.file != nil {
		return fmt.Errorf("replay source already open")
	}
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open replay file %s: %w", s.cfg.Path, err)
	}
	s.file = f
	return s.start(ctx, s.Name(), s.run)
}

func (s *ReplaySource) run(ctx context.Context) error {
	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	scanner := newLineScanner(s.file)
	played := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}

		f, err := nextFrame(scanner)
		if err == io.EOF {
			if !s.cfg.Loop {
				diagf("replay of %s complete after %d frames", s.cfg.Path, played)
				return nil
			}
			if _, err := s.file.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("failed to rewind %s: %w", s.cfg.Path, err)
			}
			scanner = newLineScanner(s.file)
			if f, err = nextFrame(scanner); err != nil {
				return fmt.Errorf("replay file %s has no frames: %w", s.cfg.Path, err)
			}
		} else if err != nil {
			return err
		}
		played++
		s.slot.Put(f)
	}
}

// Close implements Source.
func (s *ReplaySource) Close() error {
	s.stop()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return sc
}

// nextFrame decodes the next non-empty line. Lines that fail to decode are
// logged and skipped.
func nextFrame(sc *bufio.Scanner) (*skeleton.Frame, error) {
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		f, err := skeleton.DecodeFrame(line)
		if err != nil {
			opsf("skipping bad frame line: %v", err)
			continue
		}
		return f, nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frame line: %w", err)
	}
	return nil, io.EOF
}

// WriteRecording writes frames in the replay format.
func WriteRecording(w io.Writer, frames []*skeleton.Frame) error {
	bw := bufio.NewWriter(w)
	for _, f := range frames {
		data, err := skeleton.EncodeFrame(f)
		if err != nil {
			return err
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
