package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"google", "mock"},
	"translate": {"google", "mock"},
	"tts":       {"google", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown YAML keys are rejected so typos surface at startup instead of
// silently falling back to defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}
	if cfg.Server.ReadLimitBytes < 0 {
		errs = append(errs, fmt.Errorf("server.read_limit_bytes %d is negative", cfg.Server.ReadLimitBytes))
	}
	if cfg.Server.SendBuffer < 0 {
		errs = append(errs, fmt.Errorf("server.send_buffer %d is negative", cfg.Server.SendBuffer))
	}

	// Provider name validation warns rather than fails so third-party
	// registrations keep working.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// Storage
	if cfg.Storage.CacheMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("storage.cache_max_entries %d is negative", cfg.Storage.CacheMaxEntries))
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; translation records are kept in memory and lost on restart")
	}

	// Sessions
	if cfg.Sessions.AdHocTTL < 0 {
		errs = append(errs, errors.New("sessions.ad_hoc_ttl is negative"))
	}
	if cfg.Sessions.SweepInterval < 0 {
		errs = append(errs, errors.New("sessions.sweep_interval is negative"))
	}
	if !cfg.Sessions.AllowAdHoc && cfg.Sessions.AdHocTTL > 0 {
		slog.Warn("sessions.ad_hoc_ttl is set but sessions.allow_ad_hoc is false; the TTL has no effect")
	}

	// Pipeline
	errs = append(errs, validatePipeline(cfg.Pipeline)...)

	return errors.Join(errs...)
}

// validatePipeline checks the tuning knobs. Zero means "use the default", so
// only negative values and incoherent pairs are errors.
func validatePipeline(p PipelineConfig) []error {
	var errs []error

	if p.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("pipeline.silence_threshold %.2f is negative", p.SilenceThreshold))
	}
	if p.SilentFrameFloor < 0 {
		errs = append(errs, fmt.Errorf("pipeline.silent_frame_floor %d is negative", p.SilentFrameFloor))
	}
	for _, d := range []struct {
		name string
		val  Duration
	}{
		{"rotation_age", p.RotationAge},
		{"rotation_check", p.RotationCheck},
		{"silence_flush", p.SilenceFlush},
		{"reap_interval", p.ReapInterval},
		{"idle_timeout", p.IdleTimeout},
		{"min_frame_gap", p.MinFrameGap},
		{"translate_timeout", p.TranslateTimeout},
	} {
		if d.val < 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s is negative", d.name))
		}
	}
	if p.RotationAge > 0 && p.RotationCheck > p.RotationAge {
		errs = append(errs, fmt.Errorf("pipeline.rotation_check %s exceeds pipeline.rotation_age %s", p.RotationCheck.Std(), p.RotationAge.Std()))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
