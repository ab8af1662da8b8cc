package visualiser

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/monitoring"
	"github.com/banshee-data/avatar.track/internal/tracker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50051")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// ClientBuffer is how many frames may queue for one client before
	// further frames are dropped for it
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50051",
		MaxClients:   5,
		ClientBuffer: 10,
	}
}

// SnapshotFunc returns the avatars to send with a frame.
type SnapshotFunc func() []avatar.Snapshot

// Publisher fans processed frames out to streaming clients. It implements
// tracker.Observer and VisualiserServer.
type Publisher struct {
	config    Config
	snapshots SnapshotFunc
	server    *grpc.Server

	clients   map[uint64]*clientStream
	clientsMu sync.RWMutex
	nextID    atomic.Uint64

	frameCount    atomic.Uint64
	droppedFrames atomic.Uint64
	clientCount   atomic.Int32

	lifeMu  sync.Mutex
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id         uint64
	withJoints bool
	frameCh    chan *structpb.Struct
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64 `json:"frames"`
	DroppedFrames uint64 `json:"dropped"`
	ClientCount   int32  `json:"clients"`
	Running       bool   `json:"running"`
}

// NewPublisher creates a publisher that reads avatars through snapshots,
// typically tracker.Manager.Snapshots.
func NewPublisher(cfg Config, snapshots SnapshotFunc) *Publisher {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 10
	}
	return &Publisher{
		config:    cfg,
		snapshots: snapshots,
		clients:   make(map[uint64]*clientStream),
	}
}

// Start listens on ListenAddr and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if err := p.Serve(lis); err != nil {
		lis.Close()
		return err
	}
	return nil
}

// Serve serves on lis in the background. A stopped publisher may serve
// again.
func (p *Publisher) Serve(lis net.Listener) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.stopCh = make(chan struct{})
	srv := grpc.NewServer()
	RegisterService(srv, p)
	p.server = srv

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[Visualiser] gRPC server listening on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && p.running.Load() {
			monitoring.Logf("[Visualiser] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop ends every stream and stops the server.
func (p *Publisher) Stop() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	if p.server != nil {
		p.server.GracefulStop()
	}
	p.wg.Wait()
	monitoring.Logf("[Visualiser] gRPC server stopped")
}

// GRPCServer returns the underlying server; nil before Start.
func (p *Publisher) GRPCServer() *grpc.Server { return p.server }

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}

// FrameProcessed encodes the frame once per requested shape and queues it
// for every client. A client whose queue is full misses the frame.
func (p *Publisher) FrameProcessed(res tracker.FrameResult) {
	if p.clientCount.Load() == 0 {
		return
	}
	var avatars []avatar.Snapshot
	if p.snapshots != nil {
		avatars = p.snapshots()
	}

	var encoded [2]*structpb.Struct // without, with joints
	p.clientsMu.RLock()
	defer p.clientsMu.RUnlock()
	p.frameCount.Add(1)
	for _, c := range p.clients {
		idx := 0
		if c.withJoints {
			idx = 1
		}
		if encoded[idx] == nil {
			msg, err := EncodeFrame(res, avatars, c.withJoints)
			if err != nil {
				monitoring.Logf("[Visualiser] %v", err)
				return
			}
			encoded[idx] = msg
		}
		select {
		case c.frameCh <- encoded[idx]:
		default:
			p.droppedFrames.Add(1)
		}
	}
}

// StreamAvatars implements VisualiserServer.
func (p *Publisher) StreamAvatars(req *structpb.Struct, stream grpc.ServerStream) error {
	if limit := p.config.MaxClients; limit > 0 && int(p.clientCount.Load()) >= limit {
		return status.Errorf(codes.ResourceExhausted, "at most %d visualiser clients", limit)
	}
	c := p.addClient(includeJoints(req))
	defer p.removeClient(c.id)

	ctx := stream.Context()
	stop := p.stopCh
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		case msg := <-c.frameCh:
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (p *Publisher) addClient(withJoints bool) *clientStream {
	c := &clientStream{
		id:         p.nextID.Add(1),
		withJoints: withJoints,
		frameCh:    make(chan *structpb.Struct, p.config.ClientBuffer),
	}
	p.clientsMu.Lock()
	p.clients[c.id] = c
	p.clientsMu.Unlock()
	n := p.clientCount.Add(1)
	monitoring.Logf("[Visualiser] Client connected: %d (total: %d)", c.id, n)
	return c
}

func (p *Publisher) removeClient(id uint64) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	delete(p.clients, id)
	p.clientsMu.Unlock()
	if ok {
		n := p.clientCount.Add(-1)
		monitoring.Logf("[Visualiser] Client disconnected: %d (remaining: %d)", id, n)
	}
}
