// Package app assembles the LingoStream server from its parts: session
// directory, record store, room registry, speech pipeline, WebSocket
// transport, and the HTTP surface (health, metrics). [New] wires everything
// from a [config.Config], [App.Run] serves until the context is cancelled,
// and [App.Shutdown] tears the stack down in dependency order.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/lingostream/lingostream/internal/config"
	"github.com/lingostream/lingostream/internal/health"
	"github.com/lingostream/lingostream/internal/meeting"
	meetingpg "github.com/lingostream/lingostream/internal/meeting/postgres"
	"github.com/lingostream/lingostream/internal/observe"
	"github.com/lingostream/lingostream/internal/pipeline"
	"github.com/lingostream/lingostream/internal/resilience"
	"github.com/lingostream/lingostream/internal/room"
	"github.com/lingostream/lingostream/internal/server"
	"github.com/lingostream/lingostream/internal/synthcache"
	"github.com/lingostream/lingostream/pkg/provider/stt"
	"github.com/lingostream/lingostream/pkg/provider/translate"
	"github.com/lingostream/lingostream/pkg/provider/tts"
)

// Providers bundles the provider clients the pipeline runs on.
type Providers struct {
	STT       stt.Provider
	Translate translate.Provider
	TTS       tts.Provider
}

// App is the assembled server.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	directory meeting.Directory
	records   meeting.RecordStore
	pool      *pgxpool.Pool

	registry *room.Registry
	cache    *synthcache.Cache
	fanout   *pipeline.Fanout
	manager  *pipeline.Manager
	sweeper  *server.Sweeper

	httpSrv *http.Server

	gauges metric.Registration
}

// Option customises construction, mainly for tests.
type Option func(*App)

// WithDirectory replaces the session directory built from the config.
func WithDirectory(d meeting.Directory) Option {
	return func(a *App) { a.directory = d }
}

// WithRecords replaces the translation record store built from the config.
func WithRecords(r meeting.RecordStore) Option {
	return func(a *App) { a.records = r }
}

// New assembles the server. The context is used for dialing external
// dependencies (Postgres) and for the initial migration.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.Translate == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, translate, and tts providers are all required")
	}

	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	// Instruments come from the global meter provider; main initialises the
	// OTel SDK before assembling the app, tests leave the no-op default.
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("app: create metrics: %w", err)
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	a.initPipeline(providers, metrics)

	if a.gauges, err = observe.RegisterStateGauges(otel.GetMeterProvider(),
		func() int64 { return int64(a.registry.Rooms()) },
		func() int64 { return int64(a.registry.Listeners()) },
		func() int64 { return int64(a.manager.Len()) },
	); err != nil {
		return nil, fmt.Errorf("app: register gauges: %w", err)
	}

	if err := a.initHTTP(metrics); err != nil {
		return nil, err
	}
	return a, nil
}

// initStores builds the session directory and the record store. An empty DSN
// keeps everything in memory.
func (a *App) initStores(ctx context.Context) error {
	if a.directory == nil {
		dir := meeting.NewMemoryDirectory()
		dir.AllowAdHoc = a.cfg.Sessions.AllowAdHoc
		dir.AdHocTTL = a.cfg.Sessions.AdHocTTL.Std()
		a.directory = dir
	}

	if a.records != nil {
		return nil
	}
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		a.records = meeting.NewMemoryRecords()
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("app: connect postgres: %w", err)
	}
	store := meetingpg.NewRecordStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("app: migrate record store: %w", err)
	}
	a.pool = pool
	a.records = store
	a.logger.Info("translation records persisted to postgres")
	return nil
}

// initPipeline builds the rooms, the fan-out sink, and the stream manager.
func (a *App) initPipeline(providers *Providers, metrics *observe.Metrics) {
	p := a.cfg.Pipeline

	a.registry = room.NewRegistry(a.logger)
	a.cache = synthcache.New(a.cfg.Storage.CacheMaxEntries)

	a.fanout = pipeline.NewFanout(pipeline.FanoutConfig{
		Directory:        a.directory,
		Records:          a.records,
		Translator:       providers.Translate,
		Synthesizer:      providers.TTS,
		Cache:            a.cache,
		Broadcaster:      a.registry,
		Logger:           a.logger,
		TranslateTimeout: p.TranslateTimeout.Std(),
		SynthBreaker:     resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "tts"}),
		Metrics:          metrics,
	})

	a.manager = pipeline.NewManager(pipeline.ManagerConfig{
		Provider: providers.STT,
		Sink:     a.fanout,
		Logger:   a.logger,
		SpeakerDefaults: pipeline.SpeakerConfig{
			SilenceThreshold: p.SilenceThreshold,
			SilentFrameFloor: p.SilentFrameFloor,
			RotationAge:      p.RotationAge.Std(),
			RotationCheck:    p.RotationCheck.Std(),
			SilenceFlush:     p.SilenceFlush.Std(),
		},
		ReapInterval: p.ReapInterval.Std(),
		IdleTimeout:  p.IdleTimeout.Std(),
	})
}

// initHTTP builds the mux: the WebSocket endpoint, health probes, the
// transcript endpoint, and the Prometheus scrape target.
func (a *App) initHTTP(metrics *observe.Metrics) error {
	wsrv, err := server.New(server.Config{
		Registry:       a.registry,
		Directory:      a.directory,
		Streams:        a.manager,
		Limiter:        room.NewIngressLimiter(a.cfg.Pipeline.MinFrameGap.Std()),
		Logger:         a.logger,
		ReadLimit:      a.cfg.Server.ReadLimitBytes,
		SendBuffer:     a.cfg.Server.SendBuffer,
		OriginPatterns: a.cfg.Server.OriginPatterns,
	})
	if err != nil {
		return fmt.Errorf("app: build websocket server: %w", err)
	}
	a.sweeper = server.NewSweeper(a.registry, a.directory, a.manager, a.logger, a.cfg.Sessions.SweepInterval.Std())

	checkers := []health.Checker{}
	if a.pool != nil {
		checkers = append(checkers, health.Database(a.pool))
	}
	hh := health.New(checkers...)

	// The middleware wraps only the plain HTTP routes; the WebSocket
	// endpoint needs the raw ResponseWriter for the upgrade handshake.
	mw := observe.Middleware(metrics)
	probes := http.NewServeMux()
	hh.Register(probes)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsrv)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", mw(probes))
	mux.Handle("/readyz", mw(probes))
	mux.Handle("GET /sessions/{session}/records", mw(http.HandlerFunc(a.handleRecords)))

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// transcriptEntry is the wire shape of one translation record.
type transcriptEntry struct {
	ParticipantID    string    `json:"participant_id"`
	OriginalText     string    `json:"original_text"`
	OriginalLanguage string    `json:"original_language"`
	TargetLanguage   string    `json:"target_language"`
	TranslatedText   string    `json:"translated_text"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
}

// handleRecords serves a session's transcript in chronological order.
// Records outlive their session, so an ended or unknown session simply
// yields an empty transcript.
func (a *App) handleRecords(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := a.records.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		a.logger.Error("list records failed", "session_id", sessionID, "error", err)
		http.Error(w, "record store unavailable", http.StatusInternalServerError)
		return
	}

	entries := make([]transcriptEntry, len(recs))
	for i, rec := range recs {
		entries[i] = transcriptEntry{
			ParticipantID:    rec.ParticipantID,
			OriginalText:     rec.OriginalText,
			OriginalLanguage: rec.OriginalLanguage,
			TargetLanguage:   rec.TargetLanguage,
			TranslatedText:   rec.TranslatedText,
			Confidence:       rec.Confidence,
			Timestamp:        rec.Timestamp,
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"session_id": sessionID,
		"records":    entries,
	}); err != nil {
		a.logger.Debug("encode transcript failed", "error", err)
	}
}

// Handler exposes the assembled HTTP handler, used by tests to serve the
// app from an httptest server.
func (a *App) Handler() http.Handler { return a.httpSrv.Handler }

// Manager exposes the stream manager for wiring done after construction.
func (a *App) Manager() *pipeline.Manager { return a.manager }

// Run serves until the context is cancelled or the listener fails. On
// cancellation it returns ctx.Err(); the caller then runs [App.Shutdown].
func (a *App) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweeper.Run(sweepCtx)

	a.logger.Info("listening", "addr", a.httpSrv.Addr, "tls", a.cfg.Server.TLS != nil)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ApplyConfig applies the hot-reloadable parts of a config change. Anything
// else is logged as needing a restart.
func (a *App) ApplyConfig(d config.ConfigDiff, level *slog.LevelVar) {
	if d.LogLevelChanged && level != nil {
		level.Set(slogLevel(d.NewLogLevel))
		a.logger.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.CacheSizeChanged {
		a.logger.Warn("cache size change takes effect on restart",
			"new_max_entries", d.NewCacheMaxEntries)
	}
	if d.RestartRequired {
		a.logger.Warn("configuration change requires a restart to take effect")
	}
}

// Shutdown stops accepting connections, drains the rooms, and stops every
// speaker stream.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.registry.Shutdown()
	a.manager.Destroy()

	if a.gauges != nil {
		if err := a.gauges.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("unregister gauges: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
