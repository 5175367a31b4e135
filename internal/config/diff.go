package config

import "reflect"

// ConfigDiff describes what changed between two configs. Log level and cache
// size can be applied to a running server; everything else needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	CacheSizeChanged   bool
	NewCacheMaxEntries int

	// RestartRequired is set when a field outside the hot-reloadable set
	// differs, such as the listen address, provider selection, or pipeline
	// tuning.
	RestartRequired bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.CacheSizeChanged || d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Storage.CacheMaxEntries != new.Storage.CacheMaxEntries {
		d.CacheSizeChanged = true
		d.NewCacheMaxEntries = new.Storage.CacheMaxEntries
	}

	if restartRequired(old, new) {
		d.RestartRequired = true
	}

	return d
}

// restartRequired reports whether old and new differ outside the
// hot-reloadable fields.
func restartRequired(old, new *Config) bool {
	// Compare with the hot-reloadable fields normalized away.
	o, n := *old, *new
	o.Server.LogLevel, n.Server.LogLevel = "", ""
	o.Storage.CacheMaxEntries, n.Storage.CacheMaxEntries = 0, 0

	if o.Server.ListenAddr != n.Server.ListenAddr ||
		o.Server.ReadLimitBytes != n.Server.ReadLimitBytes ||
		o.Server.SendBuffer != n.Server.SendBuffer {
		return true
	}
	if (o.Server.TLS == nil) != (n.Server.TLS == nil) {
		return true
	}
	if o.Server.TLS != nil && *o.Server.TLS != *n.Server.TLS {
		return true
	}
	if !equalStrings(o.Server.OriginPatterns, n.Server.OriginPatterns) {
		return true
	}
	if !equalEntry(o.Providers.STT, n.Providers.STT) ||
		!equalEntry(o.Providers.Translate, n.Providers.Translate) ||
		!equalEntry(o.Providers.TTS, n.Providers.TTS) {
		return true
	}
	if o.Storage.PostgresDSN != n.Storage.PostgresDSN {
		return true
	}
	if o.Sessions != n.Sessions {
		return true
	}
	if o.Pipeline != n.Pipeline {
		return true
	}
	return false
}

// equalEntry compares two provider entries. Options may hold nested maps
// from YAML, so it falls back to reflect.DeepEqual there.
func equalEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.CredentialsFile != b.CredentialsFile || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
