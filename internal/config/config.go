// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the LingoStream interpretation server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "500ms" or "4m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for LingoStream.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// OriginPatterns lists the origins allowed to open WebSocket
	// connections. Empty allows same-origin only.
	OriginPatterns []string `yaml:"origin_patterns"`

	// ReadLimitBytes caps the size of a single WebSocket frame.
	// Zero uses the server default of 10 MiB.
	ReadLimitBytes int64 `yaml:"read_limit_bytes"`

	// SendBuffer is the per-listener outbound queue depth. Zero uses the
	// room default.
	SendBuffer int `yaml:"send_buffer"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT       ProviderEntry `yaml:"stt"`
	Translate ProviderEntry `yaml:"translate"`
	TTS       ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "google").
	Name string `yaml:"name"`

	// CredentialsFile is a path to a service-account JSON key. Empty uses
	// application default credentials.
	CredentialsFile string `yaml:"credentials_file"`

	// Model selects a specific recognition or synthesis model within the
	// provider (e.g., "latest_long").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// StorageConfig holds settings for the translation record store and the
// synthesis cache.
type StorageConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the translation
	// record store. Empty keeps records in memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// CacheMaxEntries bounds the synthesis cache. Zero uses the cache
	// default of 500.
	CacheMaxEntries int `yaml:"cache_max_entries"`
}

// SessionsConfig controls the session directory.
type SessionsConfig struct {
	// AllowAdHoc makes unknown session IDs materialize on first join
	// instead of being refused.
	AllowAdHoc bool `yaml:"allow_ad_hoc"`

	// AdHocTTL bounds the lifetime of ad-hoc sessions. Zero means no
	// expiry.
	AdHocTTL Duration `yaml:"ad_hoc_ttl"`

	// SweepInterval is how often expired sessions are reaped. Zero uses
	// the server default of 30 seconds.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// PipelineConfig holds the speech pipeline tuning knobs. Zero values fall
// back to the pipeline package defaults.
type PipelineConfig struct {
	// SilenceThreshold is the RMS energy below which a frame counts as
	// silent; SilentFrameFloor is how many consecutive silent frames mute
	// the voice gate.
	SilenceThreshold float64 `yaml:"silence_threshold"`
	SilentFrameFloor int     `yaml:"silent_frame_floor"`

	// RotationAge is the recognition stream age at which rotation begins;
	// RotationCheck is the poll cadence.
	RotationAge   Duration `yaml:"rotation_age"`
	RotationCheck Duration `yaml:"rotation_check"`

	// SilenceFlush is the sentence aggregator's silence trigger.
	SilenceFlush Duration `yaml:"silence_flush"`

	// ReapInterval and IdleTimeout control the idle-stream reaper.
	ReapInterval Duration `yaml:"reap_interval"`
	IdleTimeout  Duration `yaml:"idle_timeout"`

	// MinFrameGap is the per-participant ingress rate floor. Zero uses the
	// room default of 10ms (100 frames per second).
	MinFrameGap Duration `yaml:"min_frame_gap"`

	// TranslateTimeout bounds a single translation call.
	TranslateTimeout Duration `yaml:"translate_timeout"`
}
