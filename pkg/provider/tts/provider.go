// Package tts defines the Provider interface for Text-to-Speech backends.
//
// Synthesis here is a batch concern: the fan-out stage hands over one
// complete sentence and receives one encoded audio clip back. The clip
// format is MP3 so it can travel base64-encoded inside JSON events without
// further transcoding.
//
// Implementations must be safe for concurrent use; one synthesis request
// runs per target language in parallel.
package tts

import "context"

// Request describes a single synthesis call.
type Request struct {
	// Text is the sentence to speak.
	Text string

	// LanguageCode is the BCP-47 voice locale (e.g. "es-ES", "ar-XA").
	LanguageCode string

	// VoiceName optionally pins a specific provider voice. When empty the
	// provider picks a default for the locale, falling back to a
	// base-language voice and then to English if the locale has none.
	VoiceName string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize returns req.Text spoken in req.LanguageCode as MP3 bytes.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
