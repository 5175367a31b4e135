// Package googletts provides a Google Cloud Text-to-Speech backed
// implementation of the tts.Provider interface. Output is always MP3.
package googletts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/lingostream/lingostream/pkg/provider/tts"
)

// defaultVoices maps voice locales to a preferred default voice. WaveNet
// voices where the catalogue has them, standard voices otherwise. Arabic
// uses the cross-region ar-XA catalogue.
var defaultVoices = map[string]string{
	"en-US": "en-US-Wavenet-D",
	"es-ES": "es-ES-Wavenet-B",
	"fr-FR": "fr-FR-Wavenet-A",
	"de-DE": "de-DE-Wavenet-B",
	"it-IT": "it-IT-Wavenet-A",
	"pt-BR": "pt-BR-Wavenet-A",
	"ru-RU": "ru-RU-Wavenet-A",
	"ja-JP": "ja-JP-Wavenet-B",
	"ko-KR": "ko-KR-Wavenet-A",
	"zh-CN": "cmn-CN-Wavenet-A",
	"ar-XA": "ar-XA-Wavenet-B",
	"hi-IN": "hi-IN-Wavenet-A",
	"nl-NL": "nl-NL-Wavenet-A",
	"pl-PL": "pl-PL-Wavenet-A",
	"tr-TR": "tr-TR-Wavenet-A",
	"sv-SE": "sv-SE-Wavenet-A",
	"da-DK": "da-DK-Wavenet-A",
	"nb-NO": "nb-NO-Wavenet-A",
	"fi-FI": "fi-FI-Wavenet-A",
}

const fallbackLocale = "en-US"

// Provider implements tts.Provider backed by Google Cloud Text-to-Speech.
// The underlying client is safe for concurrent use.
type Provider struct {
	client *texttospeech.Client
}

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// New creates a Provider and dials the Text-to-Speech API.
func New(ctx context.Context, opts ...option.ClientOption) (*Provider, error) {
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("googletts: new client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Close releases the underlying API client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Synthesize speaks req.Text in req.LanguageCode and returns MP3 bytes.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	locale, voice := resolveVoice(req.LanguageCode, req.VoiceName)

	resp, err := p.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: locale,
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("googletts: synthesize %q: %w", locale, err)
	}
	return resp.GetAudioContent(), nil
}

// resolveVoice picks the locale and voice name for a request. An explicit
// voice name wins. Otherwise the default table is consulted for the exact
// locale, then for any locale sharing the base language, then English.
func resolveVoice(locale, explicit string) (string, string) {
	if locale == "" {
		locale = fallbackLocale
	}
	if explicit != "" {
		return locale, explicit
	}
	if v, ok := defaultVoices[locale]; ok {
		return locale, v
	}
	base, _, _ := strings.Cut(locale, "-")
	if base != "" {
		prefix := base + "-"
		for l, v := range defaultVoices {
			if strings.HasPrefix(l, prefix) {
				return l, v
			}
		}
	}
	return fallbackLocale, defaultVoices[fallbackLocale]
}
