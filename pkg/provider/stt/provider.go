// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming contract. The central abstraction is SessionHandle: once
// opened, a session accepts raw PCM audio frames and emits a single ordered
// stream of [Result] values: low-latency interims for live feedback and
// authoritative finals for the sentence aggregator.
//
// Streaming providers impose a hard session-duration cap (assume five
// minutes); the caller is responsible for rotating sessions before the cap.
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously (one per active speaker).
package stt

import "context"

// StreamConfig describes the audio format and recognition hints for a new
// transcription session.
type StreamConfig struct {
	// SampleRateHertz is the PCM sample rate. Typical values: 16000, 48000.
	SampleRateHertz int

	// LanguageCode is the BCP-47 primary recognition locale (e.g. "en-US").
	LanguageCode string

	// AlternativeLanguageCodes lists additional candidate locales the
	// recogniser may switch to. May be empty.
	AlternativeLanguageCodes []string

	// InterimResults requests low-latency preliminary results in addition to
	// finals.
	InterimResults bool
}

// SessionHandle represents an open streaming transcription session. It is an
// interface so tests can supply scripted implementations without a live
// provider connection.
//
// Callers must call Close when the session is no longer needed; failing to do
// so leaks goroutines and the provider-side stream. All methods are safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw little-endian 16-bit PCM mono audio.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Results returns a read-only channel emitting interim and final
	// recognition results in provider order. The channel is closed when the
	// session ends, whether by Close, by the provider's duration cap, or by
	// an error (inspect Err afterwards).
	Results() <-chan Result

	// Err returns the terminal error of the session, if any. Valid only after
	// the Results channel has closed; a nil return means the session ended
	// cleanly.
	Err() error

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. Calling Close more than once is safe and returns
	// nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns the
	// handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
