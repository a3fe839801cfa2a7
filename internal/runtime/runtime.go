// Package runtime assembles the bridge: message bus, text normalizer,
// output coordinator, speech sink, history store and the HTTP side
// channel for health and metrics.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LordLuceus/melonaccess/internal/bus"
	"github.com/LordLuceus/melonaccess/internal/config"
	"github.com/LordLuceus/melonaccess/internal/history"
	"github.com/LordLuceus/melonaccess/internal/natsserver"
	"github.com/LordLuceus/melonaccess/internal/output"
	"github.com/LordLuceus/melonaccess/internal/speech"
	"github.com/LordLuceus/melonaccess/internal/textnorm"
)

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup

	sink  speech.Sink
	store *history.Store
	bus   *bus.Client
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the bridge up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()
	r.bus = busClient

	sink, err := r.buildSink()
	if err != nil {
		return fmt.Errorf("failed to build speech sink: %w", err)
	}
	r.sink = sink
	if !sink.Initialize() {
		r.logger.Warn("speech backend unavailable, output will be silent")
	}

	norm := textnorm.New()
	if err := applyRules(norm, r.cfg.Rules); err != nil {
		return fmt.Errorf("failed to register normalization rules: %w", err)
	}

	coord := output.NewCoordinator(norm, sink, r.logger)
	coord.SetSuppressionWindow(time.Duration(r.cfg.Output.SuppressionWindowMS) * time.Millisecond)
	coord.SetLoggingEnabled(r.cfg.Output.LoggingEnabled)
	coord.SetBrailleEnabled(r.cfg.Output.BrailleEnabled)
	for category, name := range r.cfg.Output.CategoryNames {
		coord.RegisterCategoryName(category, name)
	}

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()
	r.store = store
	coord.SetRecorder(store)

	svc := output.NewService(busClient, coord, norm, r.logger)
	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start output service: %w", err)
	}
	defer svc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/status", r.handleStatus)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

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

	r.ready.Store(true)
	r.logger.Info("bridge started", slog.String("addr", addr), slog.String("speech_mode", r.cfg.Speech.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("bridge stopping")
	coord.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildSink() (speech.Sink, error) {
	switch r.cfg.Speech.Mode {
	case "exec":
		return speech.NewExecSink(r.cfg.Speech.Command, r.cfg.Speech.BrailleCommand, r.logger)
	default:
		return speech.NewMockSink(), nil
	}
}

func applyRules(norm *textnorm.Normalizer, rules []config.RuleSpec) error {
	for _, rule := range rules {
		switch rule.Kind {
		case "literal":
			norm.AddReplacement(rule.Pattern, rule.Replacement)
		case "pattern":
			var opts []textnorm.PatternOption
			if rule.CaseInsensitive {
				opts = append(opts, textnorm.CaseInsensitive())
			}
			if err := norm.AddPatternReplacement(rule.Pattern, rule.Replacement, opts...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type statusResponse struct {
	Ready         bool              `json:"ready"`
	BackendActive bool              `json:"backend_active"`
	BusConnected  bool              `json:"bus_connected"`
	Recent        []recentUtterance `json:"recent,omitempty"`
}

type recentUtterance struct {
	Speaker   string    `json:"speaker,omitempty"`
	Formatted string    `json:"formatted"`
	Category  int       `json:"category"`
	At        time.Time `json:"at"`
}

func (r *Runtime) handleStatus(w http.ResponseWriter, req *http.Request) {
	resp := statusResponse{
		Ready:         r.ready.Load(),
		BackendActive: r.sink != nil && r.sink.Active(),
		BusConnected:  r.bus.Healthy(),
	}
	if r.store != nil {
		if recent, err := r.store.ListRecent(req.Context(), 10); err == nil {
			for _, u := range recent {
				resp.Recent = append(resp.Recent, recentUtterance{
					Speaker:   u.Speaker,
					Formatted: u.Formatted,
					Category:  u.Category,
					At:        u.CreatedAt,
				})
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
