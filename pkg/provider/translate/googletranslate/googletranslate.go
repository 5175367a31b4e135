// Package googletranslate provides a Google Cloud Translation (v2) backed
// implementation of the translate.Provider interface.
package googletranslate

import (
	"context"
	"fmt"

	gtranslate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/lingostream/lingostream/pkg/provider/translate"
)

// Provider implements translate.Provider backed by the Cloud Translation v2
// API. The underlying client is safe for concurrent use, so one Provider
// serves all fan-out goroutines.
type Provider struct {
	client *gtranslate.Client
}

// Compile-time assertion that Provider satisfies translate.Provider.
var _ translate.Provider = (*Provider)(nil)

// New creates a Provider and dials the Translation API.
func New(ctx context.Context, opts ...option.ClientOption) (*Provider, error) {
	client, err := gtranslate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("googletranslate: new client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Close releases the underlying API client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Translate renders req.Text into req.TargetLang. An empty SourceLang lets
// the service autodetect; the service strips nothing and returns plain text
// because we request Format Text rather than HTML.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (string, error) {
	target, err := language.Parse(req.TargetLang)
	if err != nil {
		return "", fmt.Errorf("googletranslate: parse target %q: %w", req.TargetLang, err)
	}

	opts := &gtranslate.Options{Format: gtranslate.Text}
	if req.SourceLang != "" {
		source, err := language.Parse(req.SourceLang)
		if err != nil {
			return "", fmt.Errorf("googletranslate: parse source %q: %w", req.SourceLang, err)
		}
		opts.Source = source
	}

	translations, err := p.client.Translate(ctx, []string{req.Text}, target, opts)
	if err != nil {
		return "", fmt.Errorf("googletranslate: translate: %w", err)
	}
	if len(translations) == 0 {
		return "", fmt.Errorf("googletranslate: empty response for target %q", req.TargetLang)
	}
	return translations[0].Text, nil
}
