// Package mock provides a test double for the tts package interface.
//
// By default the Provider returns deterministic pseudo-audio of the form
// "mp3:<language>:<text>" so tests can assert cache hits and broadcast
// payloads byte for byte. Set Fn to script arbitrary behavior.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/lingostream/lingostream/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the Request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Fn, if non-nil, is invoked for every Synthesize call and its result
	// returned verbatim. Takes precedence over SynthesizeErr.
	Fn func(ctx context.Context, req tts.Request) ([]byte, error)

	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the scripted result. Without Fn or
// SynthesizeErr it returns []byte("mp3:<language>:<text>").
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	fn := p.Fn
	errOut := p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if errOut != nil {
		return nil, errOut
	}
	return []byte(fmt.Sprintf("mp3:%s:%s", req.LanguageCode, req.Text)), nil
}

// Calls returns a copy of all recorded calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
