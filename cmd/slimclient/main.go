// Command slimclient is a Lyrion (Squeezebox) SlimProto player: it
// connects to a server, decodes whatever track the server streams to
// it, and reports playback status back over the same control
// connection, the way cloud-livekit-bridge's main wires
// config, logging, and signal-driven shutdown around its server loop.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lyrplay/slimclient/internal/aba"
	"github.com/lyrplay/slimclient/internal/aba/memaba"
	"github.com/lyrplay/slimclient/internal/aba/otoaba"
	"github.com/lyrplay/slimclient/internal/config"
	"github.com/lyrplay/slimclient/internal/coordinator"
	"github.com/lyrplay/slimclient/internal/discovery"
	"github.com/lyrplay/slimclient/internal/health"
	"github.com/lyrplay/slimclient/internal/logs"
	"github.com/lyrplay/slimclient/internal/metrics"
	"github.com/lyrplay/slimclient/internal/pee"
	"github.com/lyrplay/slimclient/internal/pipeline"
	"github.com/lyrplay/slimclient/internal/smr"
	"github.com/lyrplay/slimclient/internal/vrg"
	"github.com/lyrplay/slimclient/internal/webui"

	"github.com/lyrplay/slimclient/internal/slimproto"
)

const discoveryTimeout = 5 * time.Second

func main() {
	cfg, warnings, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logs.New(logs.Options{Level: cfg.LogLevel, Endpoint: cfg.LogEndpoint})
	defer logger.Close()

	for _, w := range warnings {
		logger.Warnf("%s", w)
	}

	serverHost, serverPort := resolveServer(cfg, logger)

	gain := vrg.New()
	meta := smr.New()
	pipe := pipeline.New(audioBackend(cfg.AudioBackend), logger, gain.Snapshot)

	healthTracker := health.NewTracker()

	var metricsBundle *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.MetricsAddr != "" {
		metricsBundle, metricsHandler = metrics.New()
		pipe.SetMetricsObserver(metricsBundle)
	}

	sink := &protocolSink{metrics: metricsBundle, health: healthTracker}
	coord := coordinator.New(pipe, gain, meta, sink, logger)
	client := slimproto.New(serverHost+":"+strconv.Itoa(serverPort), cfg.PlayerID, coord, coord, logger)
	sink.client = client
	healthTracker.SetPipelineState(coord.PipelineState())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go client.Run()
	go func() {
		<-ctx.Done()
		logger.Debugf("slimclient: shutdown signal received")
		client.Close()
		coord.Close()
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metricsHandler, logger)
	}
	if cfg.WebUIAddr != "" {
		go serveWebUI(ctx, cfg.WebUIAddr, coord, healthTracker, logger)
	}

	logger.Debugf("slimclient: connecting to %s:%d as %s", serverHost, serverPort, cfg.PlayerID)
	<-ctx.Done()
}

// audioBackend picks the aba.Backend implementation config.Load already
// validated: "oto" drives a real device through internal/aba/otoaba,
// "memory" keeps everything in internal/aba/memaba's silent byte ring.
func audioBackend(name string) aba.Backend {
	if name == "memory" {
		return memaba.Backend{}
	}
	return otoaba.Backend{}
}

func resolveServer(cfg *config.Config, logger *logs.Logger) (host string, port int) {
	if cfg.ServerHost != "" {
		return cfg.ServerHost, cfg.ServerPort
	}
	srv, err := discovery.FindFirst(context.Background(), discoveryTimeout)
	if err != nil {
		log.Fatalf("discovery: %v", err)
	}
	logger.Debugf("discovery: found server %q at %s", srv.Name, srv.Addr())
	return srv.Host, srv.Port
}

// protocolSink implements coordinator.ProtocolSink, forwarding every
// call to the slimproto.Client built after it (resolving the
// coordinator/client construction cycle the same way livekit-client-2's
// BridgeClient and BridgeService hold back-references to each other
// set post-construction), and mirroring status emissions into metrics
// and the health tracker.
type protocolSink struct {
	client  *slimproto.Client
	metrics *metrics.Metrics
	health  *health.Tracker
}

func (s *protocolSink) Emit(e pee.Emission) {
	s.health.SetConnected(true)
	if s.metrics != nil {
		s.metrics.ObserveStatusEmission(string(e.Code))
		if e.Code == pee.STMs {
			s.metrics.ObserveTrackStart()
		}
		if e.Code == pee.STMn {
			s.metrics.ObserveDecodeError(e.ErrorCode)
		}
	}
	s.client.Emit(e)
}

func (s *protocolSink) RequestSeek(seconds float64) { s.client.RequestSeek(seconds) }

func (s *protocolSink) ForwardMetadata(raw string) { s.client.ForwardMetadata(raw) }

func serveMetrics(addr string, handler http.Handler, logger *logs.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	logger.Debugf("metrics: serving on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics: server stopped: %v", err)
	}
}

func serveWebUI(ctx context.Context, addr string, coord *coordinator.Coordinator, tracker *health.Tracker, logger *logs.Logger) {
	ui := webui.New(coord, time.Second)
	go ui.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/status/ws", ui.Handler())
	mux.Handle("/healthz", health.Handler(tracker))
	logger.Debugf("webui: serving on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("webui: server stopped: %v", err)
	}
}
