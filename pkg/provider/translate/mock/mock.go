// Package mock provides a test double for the translate package interface.
//
// By default the Provider returns a deterministic marker translation of the
// form "[<target>] <text>" so tests can assert exact outputs without a
// translation table. Set Fn to script arbitrary behavior.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/lingostream/lingostream/pkg/provider/translate"
)

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	// Ctx is the context passed to Translate.
	Ctx context.Context
	// Req is the Request passed to Translate.
	Req translate.Request
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Fn, if non-nil, is invoked for every Translate call and its result
	// returned verbatim. Takes precedence over TranslateErr.
	Fn func(ctx context.Context, req translate.Request) (string, error)

	// TranslateErr, if non-nil, is returned by every Translate call.
	TranslateErr error

	// TranslateCalls records every call to Translate in order.
	TranslateCalls []TranslateCall
}

// Translate records the call and returns the scripted result. Without Fn or
// TranslateErr it returns "[<target>] <text>".
func (p *Provider) Translate(ctx context.Context, req translate.Request) (string, error) {
	p.mu.Lock()
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Ctx: ctx, Req: req})
	fn := p.Fn
	errOut := p.TranslateErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if errOut != nil {
		return "", errOut
	}
	return fmt.Sprintf("[%s] %s", req.TargetLang, req.Text), nil
}

// Calls returns a copy of all recorded calls. Thread-safe.
func (p *Provider) Calls() []TranslateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranslateCall, len(p.TranslateCalls))
	copy(out, p.TranslateCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = nil
}

// Ensure Provider implements translate.Provider at compile time.
var _ translate.Provider = (*Provider)(nil)
