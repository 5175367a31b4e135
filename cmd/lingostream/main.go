// Command lingostream is the main entry point for the LingoStream real-time
// interpretation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"github.com/lingostream/lingostream/internal/app"
	"github.com/lingostream/lingostream/internal/config"
	"github.com/lingostream/lingostream/internal/observe"
	"github.com/lingostream/lingostream/pkg/provider/stt"
	"github.com/lingostream/lingostream/pkg/provider/stt/googlespeech"
	sttmock "github.com/lingostream/lingostream/pkg/provider/stt/mock"
	"github.com/lingostream/lingostream/pkg/provider/translate"
	"github.com/lingostream/lingostream/pkg/provider/translate/googletranslate"
	translatemock "github.com/lingostream/lingostream/pkg/provider/translate/mock"
	"github.com/lingostream/lingostream/pkg/provider/tts"
	"github.com/lingostream/lingostream/pkg/provider/tts/googletts"
	ttsmock "github.com/lingostream/lingostream/pkg/provider/tts/mock"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment overlay ────────────────────────────────────────────────────
	// A missing .env is fine; credentials usually arrive via the real
	// environment in production.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	// ── Load configuration (and keep watching it) ──────────────────────────────
	var application atomic.Pointer[app.App]
	level := new(slog.LevelVar)

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if a := application.Load(); a != nil {
			a.ApplyConfig(config.Diff(old, new), level)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lingostream: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lingostream: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("lingostream starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "lingostream",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, closers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}()

	// ── Assemble and run ──────────────────────────────────────────────────────
	printStartupSummary(cfg)

	a, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to assemble server", "err", err)
		return 1
	}
	application.Store(a)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the factories that ship with LingoStream
// into reg. "google" is the production stack; "mock" runs the full pipeline
// without cloud credentials for local development.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("google", func(ctx context.Context, entry config.ProviderEntry) (stt.Provider, error) {
		var opts []googlespeech.Option
		if entry.CredentialsFile != "" {
			opts = append(opts, googlespeech.WithClientOptions(option.WithCredentialsFile(entry.CredentialsFile)))
		}
		if entry.Model != "" {
			opts = append(opts, googlespeech.WithModel(entry.Model))
		}
		return googlespeech.New(ctx, opts...)
	})
	reg.RegisterSTT("mock", func(ctx context.Context, entry config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	reg.RegisterTranslate("google", func(ctx context.Context, entry config.ProviderEntry) (translate.Provider, error) {
		return googletranslate.New(ctx, clientOptions(entry)...)
	})
	reg.RegisterTranslate("mock", func(ctx context.Context, entry config.ProviderEntry) (translate.Provider, error) {
		return &translatemock.Provider{}, nil
	})

	reg.RegisterTTS("google", func(ctx context.Context, entry config.ProviderEntry) (tts.Provider, error) {
		return googletts.New(ctx, clientOptions(entry)...)
	})
	reg.RegisterTTS("mock", func(ctx context.Context, entry config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
}

// buildProviders instantiates the three pipeline providers named in cfg. An
// empty name selects "google". Providers that hold connections are returned
// as closers for main to release on exit.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, []io.Closer, error) {
	var closers []io.Closer
	track := func(p any) {
		if c, ok := p.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	sttEntry := withDefaultName(cfg.Providers.STT)
	sttp, err := reg.CreateSTT(ctx, sttEntry)
	if err != nil {
		return nil, closers, fmt.Errorf("create stt provider %q: %w", sttEntry.Name, err)
	}
	track(sttp)
	slog.Info("provider created", "kind", "stt", "name", sttEntry.Name)

	trEntry := withDefaultName(cfg.Providers.Translate)
	trp, err := reg.CreateTranslate(ctx, trEntry)
	if err != nil {
		return nil, closers, fmt.Errorf("create translate provider %q: %w", trEntry.Name, err)
	}
	track(trp)
	slog.Info("provider created", "kind", "translate", "name", trEntry.Name)

	ttsEntry := withDefaultName(cfg.Providers.TTS)
	ttsp, err := reg.CreateTTS(ctx, ttsEntry)
	if err != nil {
		return nil, closers, fmt.Errorf("create tts provider %q: %w", ttsEntry.Name, err)
	}
	track(ttsp)
	slog.Info("provider created", "kind", "tts", "name", ttsEntry.Name)

	return &app.Providers{STT: sttp, Translate: trp, TTS: ttsp}, closers, nil
}

func withDefaultName(entry config.ProviderEntry) config.ProviderEntry {
	if entry.Name == "" {
		entry.Name = "google"
	}
	return entry
}

// clientOptions converts the shared entry fields into Google API client
// options.
func clientOptions(entry config.ProviderEntry) []option.ClientOption {
	var opts []option.ClientOption
	if entry.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(entry.CredentialsFile))
	}
	return opts
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       LingoStream — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Translate", cfg.Providers.Translate.Name, cfg.Providers.Translate.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Records         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Records         : %-19s ║\n", "memory")
	}
	if cfg.Sessions.AllowAdHoc {
		fmt.Printf("║  Ad-hoc sessions : %-19s ║\n", "allowed")
	} else {
		fmt.Printf("║  Ad-hoc sessions : %-19s ║\n", "refused")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "google"
	}
	if model != "" {
		value = value + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
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
