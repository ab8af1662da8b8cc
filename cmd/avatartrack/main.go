// Command avatartrack reads body frames from a sensor source, maps them onto
// avatars and serves the result over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/avatar.track/internal/api"
	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/db"
	"github.com/banshee-data/avatar.track/internal/monitoring"
	"github.com/banshee-data/avatar.track/internal/sensor"
	"github.com/banshee-data/avatar.track/internal/skeleton"
	"github.com/banshee-data/avatar.track/internal/timeutil"
	"github.com/banshee-data/avatar.track/internal/tracker"
	"github.com/banshee-data/avatar.track/internal/version"
	"github.com/banshee-data/avatar.track/internal/visualiser"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "localhost:50051", "gRPC visualiser listen address (empty disables)")
	dbPath      = flag.String("db", "avatartrack.db", "SQLite database path (empty disables recording)")
	configPath  = flag.String("config", "", "tuning config JSON (default: search for config/tuning.defaults.json)")
	sourceName  = flag.String("source", "synthetic", "sensor source: synthetic, replay, udp, serial or pcap")
	replayFile  = flag.String("replay-file", "", "JSON-lines recording for -source=replay")
	udpAddr     = flag.String("udp-addr", ":7070", "listen address for -source=udp")
	serialPort  = flag.String("serial-port", "/dev/ttyUSB0", "serial device for -source=serial")
	pcapFile    = flag.String("pcap-file", "", "capture file for -source=pcap")
	pcapPort    = flag.Int("pcap-port", 7070, "UDP destination port to replay from -pcap-file (0 accepts any)")
	loopReplay  = flag.Bool("loop", false, "rewind replay and pcap sources at end of file")
	walkers     = flag.Int("walkers", 2, "bodies simulated by -source=synthetic")
	fps         = flag.Float64("fps", 0, "frame rate; 0 uses the config frame_interval")
	historySize = flag.Int("history", 600, "frames kept for /api/charts/tracking")
	logLevel    = flag.String("log-level", "ops", "log streams to enable: ops, diag, trace or quiet")
	showVersion = flag.Bool("version", false, "print version and exit")
)

// sourceOptions are the flag values buildSource needs.
type sourceOptions struct {
	Name       string
	ReplayFile string
	UDPAddr    string
	SerialPort string
	PCAPFile   string
	PCAPPort   int
	Loop       bool
	Walkers    int
	Interval   time.Duration
}

// buildSource returns the unopened source selected by opt.
func buildSource(opt sourceOptions, cfg *config.TuningConfig, clock timeutil.Clock) (sensor.Source, error) {
	switch opt.Name {
	case "synthetic":
		return sensor.NewSyntheticSource(sensor.SyntheticConfig{Walkers: opt.Walkers, Interval: opt.Interval, Clock: clock}), nil
	case "replay":
		if opt.ReplayFile == "" {
			return nil, errors.New("-replay-file is required for the replay source")
		}
		return sensor.NewReplaySource(sensor.ReplayConfig{Path: opt.ReplayFile, Interval: opt.Interval, Loop: opt.Loop, Clock: clock}), nil
	case "udp":
		return sensor.NewUDPSource(sensor.UDPConfig{Address: opt.UDPAddr}), nil
	case "serial":
		if opt.SerialPort == "" {
			return nil, errors.New("-serial-port is required for the serial source")
		}
		return sensor.NewSerialSource(sensor.SerialConfig{
			Path: opt.SerialPort,
			Options: sensor.PortOptions{
				BaudRate: cfg.GetSerialBaudRate(),
				Parity:   cfg.GetSerialParity(),
			},
		}), nil
	case "pcap":
		if opt.PCAPFile == "" {
			return nil, errors.New("-pcap-file is required for the pcap source")
		}
		return sensor.NewPCAPSource(sensor.PCAPConfig{Path: opt.PCAPFile, UDPPort: opt.PCAPPort, Interval: opt.Interval, Loop: opt.Loop, Clock: clock}), nil
	}
	return nil, fmt.Errorf("unknown source %q: expected synthetic, replay, udp, serial or pcap", opt.Name)
}

// minFrameInterval bounds -fps so the ticker period stays positive.
const minFrameInterval = time.Millisecond

// frameInterval picks the processing period from -fps or the config.
func frameInterval(fps float64, cfg *config.TuningConfig) time.Duration {
	if fps > 0 {
		return max(time.Duration(float64(time.Second)/fps), minFrameInterval)
	}
	return cfg.GetFrameInterval()
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path != "" {
		return config.LoadTuningConfig(path)
	}
	cfg, err := config.LoadTuningConfig(config.DefaultConfigPath)
	if err != nil {
		log.Printf("no tuning config at %s, using built-in defaults: %v", config.DefaultConfigPath, err)
		return config.DefaultTuningConfig(), nil
	}
	return cfg, nil
}

func setLogLevel(s string) error {
	level, err := monitoring.ParseLevel(s)
	if err != nil {
		return err
	}
	st := monitoring.StreamsFor(level, os.Stderr)
	sensor.SetLogWriters(st.Ops, st.Diag, st.Trace)
	tracker.SetLogWriters(st.Ops, st.Diag, st.Trace)
	avatar.SetLogWriters(st.Ops, st.Diag, st.Trace)
	skeleton.SetLogWriters(st.Ops, st.Trace)
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if err := setLogLevel(*logLevel); err != nil {
		log.Fatal(err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	interval := frameInterval(*fps, cfg)
	clock := timeutil.RealClock{}
	log.Printf("avatartrack %s, source=%s, frame interval %v", version.Version, *sourceName, interval)

	src, err := buildSource(sourceOptions{
		Name:       *sourceName,
		ReplayFile: *replayFile,
		UDPAddr:    *udpAddr,
		SerialPort: *serialPort,
		PCAPFile:   *pcapFile,
		PCAPPort:   *pcapPort,
		Loop:       *loopReplay,
		Walkers:    *walkers,
		Interval:   interval,
	}, cfg, clock)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src = sensor.OpenOrDisable(ctx, src)
	defer src.Close()

	var store *db.DB
	var rec *db.Recorder
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		rec, err = db.NewRecorder(store, src.Name(), clock)
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		defer rec.Close()
		log.Printf("recording session %s to %s", rec.SessionID(), store.Path())
	}

	history := api.NewHistory(*historySize)
	var pub *visualiser.Publisher

	p := newPipeline(cfg, clock)
	opts := []tracker.Option{tracker.WithViewpoint(p.viewpoint), tracker.WithObserver(history)}
	if rec != nil {
		opts = append(opts, tracker.WithObserver(rec))
	}
	if *grpcListen != "" {
		vcfg := visualiser.DefaultConfig()
		vcfg.ListenAddr = *grpcListen
		// the manager does not exist yet; snapshots are read through p
		pub = visualiser.NewPublisher(vcfg, func() []avatar.Snapshot { return p.manager.Snapshots() })
		opts = append(opts, tracker.WithObserver(pub))
	}
	p.attach(opts...)

	if pub != nil {
		if err := pub.Start(); err != nil {
			log.Fatalf("Failed to start visualiser: %v", err)
		}
		defer pub.Stop()
	}

	apiOpts := []api.Option{
		api.WithSource(src),
		api.WithConfig(cfg),
		api.WithHistory(history),
		api.WithRigStats(p.RigStats),
	}
	if store != nil {
		apiOpts = append(apiOpts, api.WithDB(store, rec))
	}

	var wg sync.WaitGroup

	// frame loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.run(ctx, src, clock.NewTicker(interval))
		log.Printf("frame loop stopped")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(p.manager, apiOpts...).ServeMux()
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
