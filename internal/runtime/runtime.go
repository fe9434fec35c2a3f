package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shadowdrill/drill-core/internal/bus"
	"github.com/shadowdrill/drill-core/internal/config"
	"github.com/shadowdrill/drill-core/internal/natsserver"
	"github.com/shadowdrill/drill-core/internal/playback"
	"github.com/shadowdrill/drill-core/internal/resume"
	"github.com/shadowdrill/drill-core/internal/session"
	"github.com/shadowdrill/drill-core/internal/speech"
	"github.com/shadowdrill/drill-core/internal/voice"
)

// voiceSettleDelay is how long after startup the voice cache is invalidated
// once; some platforms populate their voice lists asynchronously.
const voiceSettleDelay = 2 * time.Second

// Runtime wires the playback engine, the bus, the progress store, and the
// health endpoints into one process.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	metricsServ *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	busClient   *bus.Client
	sessionSvc  *session.Service
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient
	defer busClient.Close()

	store, err := resume.Open(ctx, r.cfg.Resume, r.cfg.Session.TargetCount, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open progress store: %w", err)
	}
	defer store.Close()

	engine, err := buildEngine(r.cfg.Speech)
	if err != nil {
		return fmt.Errorf("failed to build speech engine: %w", err)
	}

	selector := voice.NewSelector(engine, r.logger)
	driver := playback.NewDriver(engine, selector, r.logger)
	sequencer := playback.NewSequencer(driver, r.cfg.Playback, r.logger)

	r.sessionSvc = session.NewService(ctx, r.cfg.Session, busClient, sequencer, engine, store, r.logger)
	if err := r.sessionSvc.Start(); err != nil {
		return fmt.Errorf("failed to start session service: %w", err)
	}
	defer r.sessionSvc.Close()

	// Drop early voice selections made before the platform list settled.
	settle := time.AfterFunc(voiceSettleDelay, selector.Invalidate)
	defer settle.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServ = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServ.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServ != nil {
		if err := r.metricsServ.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func buildEngine(cfg config.SpeechConfig) (speech.Engine, error) {
	switch cfg.Mode {
	case "mock":
		perRune := time.Duration(cfg.MockMSPerRune) * time.Millisecond
		return speech.NewMockEngine(defaultMockVoices(), perRune), nil
	case "exec":
		return speech.NewExecEngine(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown speech mode %q", cfg.Mode)
	}
}

// defaultMockVoices gives the mock engine enough variety to exercise voice
// selection across the usual drill language pairs.
func defaultMockVoices() []speech.Voice {
	return []speech.Voice{
		{Name: "Mock Nederlands Neural", Lang: "nl-NL", Local: false},
		{Name: "Mock Nederlands", Lang: "nl-NL", Local: true},
		{Name: "Mock Vlaams", Lang: "nl-BE", Local: true},
		{Name: "Mock Türkçe", Lang: "tr-TR", Local: true},
		{Name: "Mock English Enhanced", Lang: "en-US", Local: false},
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.sessionSvc.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
