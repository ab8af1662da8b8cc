package sensor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// PortOptions describes the serial link to a body-frame bridge.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the options into the mode go.bug.st/serial opens with.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// PortOpener opens a serial device. Tests substitute an in-memory pipe.
type PortOpener func(path string, mode *serial.Mode) (io.ReadCloser, error)

// OpenSerialPort is the PortOpener backed by go.bug.st/serial.
func OpenSerialPort(path string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(path, mode)
}

// SerialConfig configures a SerialSource.
type SerialConfig struct {
	Path    string
	Options PortOptions
	Opener  PortOpener // nil uses OpenSerialPort
}

// SerialSource reads JSON-line frames from a serial bridge.
type SerialSource struct {
	reader
	cfg SerialConfig

	mu   sync.Mutex
	port io.ReadCloser
}

// NewSerialSource returns an unopened serial source.
func NewSerialSource(cfg SerialConfig) *SerialSource {
	if cfg.Opener == nil {
		cfg.Opener = OpenSerialPort
	}
	return &SerialSource{cfg: cfg}
}

// Name implements Source.
func (s *SerialSource) Name() string { return "serial" }

// Open implements Source.
func (s *SerialSource) Open(ctx context.Context) error {
	mode, err := s.cfg.Options.SerialMode()
	if err != nil {
		return err
	}
	port, err := s.cfg.Opener(s.cfg.Path, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.cfg.Path, err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	diagf("serial source on %s at %d baud", s.cfg.Path, mode.BaudRate)
	return s.start(ctx, s.Name(), s.run)
}

func (s *SerialSource) run(ctx context.Context) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	// A blocked read only returns when the port is closed.
	go func() {
		<-ctx.Done()
		s.closePort()
	}()

	scanner := newLineScanner(port)
	for {
		f, err := nextFrame(scanner)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == io.EOF {
				return fmt.Errorf("serial port %s closed", s.cfg.Path)
			}
			return err
		}
		s.slot.Put(f)
	}
}

func (s *SerialSource) closePort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Close implements Source.
func (s *SerialSource) Close() error {
	s.stop()
	return s.closePort()
}
