package sensor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/avatar.track/internal/skeleton"
)

// UDPConfig configures a UDPSource.
type UDPConfig struct {
	Address string // host:port to listen on
	RcvBuf  int    // socket receive buffer in bytes; 0 keeps the OS default
}

// UDPSource receives one JSON frame per datagram.
type UDPSource struct {
	reader
	cfg UDPConfig

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDPSource returns an unopened UDP source.
func NewUDPSource(cfg UDPConfig) *UDPSource {
	return &UDPSource{cfg: cfg}
}

// Name implements Source.
func (s *UDPSource) Name() string { return "udp" }

// Open implements Source.
func (s *UDPSource) Open(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if s.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(s.cfg.RcvBuf); err != nil {
			opsf("Warning: failed to set UDP receive buffer size to %d: %v", s.cfg.RcvBuf, err)
		}
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	diagf("UDP source listening on %s", conn.LocalAddr())
	return s.start(ctx, s.Name(), s.run)
}

// Addr returns the bound address, or nil before Open.
func (s *UDPSource) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *UDPSource) run(ctx context.Context) error {
	buffer := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			opsf("UDP read error: %v", err)
			continue
		}

		f, err := skeleton.DecodeFrame(buffer[:n])
		if err != nil {
			opsf("bad frame from %v: %v", addr, err)
			continue
		}
		tracef("frame %d from %v (%d bytes)", f.Seq, addr, n)
		s.slot.Put(f)
	}
}

// Close implements Source.
func (s *UDPSource) Close() error {
	s.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}
