package config

import (
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
  origin_patterns: ["app.example.com"]
  read_limit_bytes: 1048576
  send_buffer: 32
providers:
  stt:
    name: google
    model: latest_long
  translate:
    name: google
  tts:
    name: google
    credentials_file: /etc/lingostream/tts.json
storage:
  postgres_dsn: "postgres://ls:ls@localhost:5432/lingostream"
  cache_max_entries: 200
sessions:
  allow_ad_hoc: true
  ad_hoc_ttl: 2h
  sweep_interval: 30s
pipeline:
  silence_threshold: 5.0
  silent_frame_floor: 40
  rotation_age: 4m
  rotation_check: 30s
  silence_flush: 500ms
  reap_interval: 30s
  idle_timeout: 30s
  min_frame_gap: 10ms
  translate_timeout: 10s
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want \":8080\"", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Providers.STT.Model != "latest_long" {
		t.Errorf("STT model = %q, want latest_long", cfg.Providers.STT.Model)
	}
	if cfg.Providers.TTS.CredentialsFile != "/etc/lingostream/tts.json" {
		t.Errorf("TTS credentials = %q", cfg.Providers.TTS.CredentialsFile)
	}
	if cfg.Storage.CacheMaxEntries != 200 {
		t.Errorf("CacheMaxEntries = %d, want 200", cfg.Storage.CacheMaxEntries)
	}
	if !cfg.Sessions.AllowAdHoc {
		t.Error("AllowAdHoc = false, want true")
	}
	if got := cfg.Sessions.AdHocTTL.Std(); got != 2*time.Hour {
		t.Errorf("AdHocTTL = %s, want 2h", got)
	}
	if got := cfg.Pipeline.RotationAge.Std(); got != 4*time.Minute {
		t.Errorf("RotationAge = %s, want 4m", got)
	}
	if got := cfg.Pipeline.SilenceFlush.Std(); got != 500*time.Millisecond {
		t.Errorf("SilenceFlush = %s, want 500ms", got)
	}
	if cfg.Pipeline.SilentFrameFloor != 40 {
		t.Errorf("SilentFrameFloor = %d, want 40", cfg.Pipeline.SilentFrameFloor)
	}
}

func TestLoadFromReader_UnknownKeyRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listen_adr: \":8080\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "listen_adr") {
		t.Errorf("error %q does not name the unknown key", err)
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("pipeline:\n  rotation_age: often\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "often") {
		t.Errorf("error %q does not name the bad value", err)
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	cfg := &Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Server.TLS = &TLSConfig{CertFile: "cert.pem"} // key missing
	cfg.Storage.CacheMaxEntries = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, want := range []string{"log_level", "key_file", "cache_max_entries"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_RotationCheckExceedsAge(t *testing.T) {
	cfg := &Config{}
	cfg.Pipeline.RotationAge = Duration(10 * time.Second)
	cfg.Pipeline.RotationCheck = Duration(time.Minute)

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "rotation_check") {
		t.Errorf("error %q does not mention rotation_check", err)
	}
}

func TestValidate_ZeroConfigIsValid(t *testing.T) {
	// Zero values all mean "use the defaults".
	if err := Validate(&Config{}); err != nil {
		t.Errorf("Validate(zero) = %v, want nil", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, l := range []LogLevel{LogDebug, LogInfo, LogWarn, LogError} {
		if !l.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", l)
		}
	}
	if LogLevel("verbose").IsValid() {
		t.Error("\"verbose\".IsValid() = true, want false")
	}
}
