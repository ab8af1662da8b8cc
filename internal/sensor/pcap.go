package sensor

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/avatar.track/internal/skeleton"
	"github.com/banshee-data/avatar.track/internal/timeutil"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PCAPConfig configures a PCAPSource.
type PCAPConfig struct {
	Path     string
	UDPPort  int           // only datagrams to this port are replayed; 0 accepts any
	Interval time.Duration // delay between frames; 0 uses 33ms
	Loop     bool
	Clock    timeutil.Clock
}

// PCAPSource replays body-frame datagrams from a packet capture. It reads the
// classic pcap format without libpcap.
type PCAPSource struct {
	reader
	cfg  PCAPConfig
	file *os.File
}

// NewPCAPSource returns an unopened PCAP source.
func NewPCAPSource(cfg PCAPConfig) *PCAPSource {
	if cfg.Interval <= 0 {
		cfg.Interval = 33 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &PCAPSource{cfg: cfg}
}

// Name implements Source.
func (s *PCAPSource) Name() string { return "pcap" }

// Open implements Source.
func (s *PCAPSource) Open(ctx context.Context) error {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", s.cfg.Path, err)
	}
	if _, err := pcapgo.NewReader(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to read PCAP header from %s: %w", s.cfg.Path, err)
	}
	s.file = f
	return s.start(ctx, s.Name(), s.run)
}

func (s *PCAPSource) run(ctx context.Context) error {
	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	r, err := s.rewind()
	if err != nil {
		return err
	}
	packets, frames := 0, 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}

		f, n, err := s.nextFrame(r)
		packets += n
		if err == io.EOF {
			if !s.cfg.Loop {
				diagf("PCAP replay of %s complete: %d frames from %d packets", s.cfg.Path, frames, packets)
				return nil
			}
			if r, err = s.rewind(); err != nil {
				return err
			}
			if f, n, err = s.nextFrame(r); err != nil {
				return fmt.Errorf("PCAP file %s has no body frames: %w", s.cfg.Path, err)
			}
			packets += n
		} else if err != nil {
			return err
		}
		frames++
		s.slot.Put(f)
	}
}

func (s *PCAPSource) rewind() (*pcapgo.Reader, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", s.cfg.Path, err)
	}
	r, err := pcapgo.NewReader(s.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCAP header from %s: %w", s.cfg.Path, err)
	}
	return r, nil
}

// nextFrame reads packets until one carries a decodable frame on the
// configured port. It also returns how many packets it consumed.
func (s *PCAPSource) nextFrame(r *pcapgo.Reader) (*skeleton.Frame, int, error) {
	n := 0
	for {
		data, _, err := r.ReadPacketData()
		if err == io.EOF {
			return nil, n, io.EOF
		}
		if err != nil {
			return nil, n, fmt.Errorf("failed to read packet: %w", err)
		}
		n++

		packet := gopacket.NewPacket(data, r.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		if s.cfg.UDPPort != 0 && int(udp.DstPort) != s.cfg.UDPPort {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}
		f, err := skeleton.DecodeFrame(udp.Payload)
		if err != nil {
			opsf("PCAP packet %d: %v", n, err)
			continue
		}
		return f, n, nil
	}
}

// Close implements Source.
func (s *PCAPSource) Close() error {
	s.stop()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
