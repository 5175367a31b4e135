// Package translate defines the Provider interface for machine-translation
// backends.
//
// Translation is a unary request/response concern, so unlike the streaming
// stt contract there is no session handle. Implementations must be safe for
// concurrent use; the fan-out stage calls Translate from one goroutine per
// target language.
package translate

import "context"

// Request describes a single translation.
type Request struct {
	// Text is the source sentence.
	Text string

	// SourceLang is the ISO-639-1 source language code (e.g. "en"). If empty
	// the provider autodetects.
	SourceLang string

	// TargetLang is the ISO-639-1 target language code (e.g. "es").
	TargetLang string
}

// Provider is the abstraction over any machine-translation backend.
type Provider interface {
	// Translate returns req.Text rendered in req.TargetLang. When the source
	// and target languages are equal, callers should skip the call entirely
	// rather than rely on the provider to no-op.
	Translate(ctx context.Context, req Request) (string, error)
}
