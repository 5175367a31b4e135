package pipeline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lingostream/lingostream/internal/meeting"
	"github.com/lingostream/lingostream/internal/observe"
	"github.com/lingostream/lingostream/internal/protocol"
	"github.com/lingostream/lingostream/internal/resilience"
	"github.com/lingostream/lingostream/internal/synthcache"
	"github.com/lingostream/lingostream/pkg/lang"
	"github.com/lingostream/lingostream/pkg/provider/translate"
	"github.com/lingostream/lingostream/pkg/provider/tts"
)

// DefaultTranslateTimeout bounds a single translation call.
const DefaultTranslateTimeout = 10 * time.Second

// Broadcaster delivers a message to every listener of a session.
// *room.Registry satisfies this interface.
type Broadcaster interface {
	Broadcast(sessionID string, v any) (delivered, dropped int, err error)
}

// FanoutConfig configures a Fanout.
type FanoutConfig struct {
	// Directory supplies the session's current participants, from which the
	// target language sets are derived.
	Directory meeting.Directory

	// Records receives one translation record per rendered language. Nil
	// disables persistence.
	Records meeting.RecordStore

	// Translator and Synthesizer are the provider clients.
	Translator  translate.Provider
	Synthesizer tts.Provider

	// Cache deduplicates synthesis calls. Nil disables caching.
	Cache *synthcache.Cache

	// Broadcaster delivers the resulting events to the room.
	Broadcaster Broadcaster

	// Logger receives structured events. Nil falls back to slog.Default.
	Logger *slog.Logger

	// Retry is the backoff schedule for provider calls. Zero value uses the
	// package default.
	Retry resilience.RetryPolicy

	// TranslateTimeout bounds each translation call. Zero uses
	// DefaultTranslateTimeout.
	TranslateTimeout time.Duration

	// SynthBreaker optionally guards the synthesis path; when the breaker
	// is open, audio events are skipped while text delivery continues.
	SynthBreaker *resilience.CircuitBreaker

	// Metrics receives stage latencies and provider counters. Nil uses the
	// package-level default instruments.
	Metrics *observe.Metrics
}

// Fanout renders each sentence into every language the room currently
// needs: text for everyone, synthesized audio for participants preferring
// voice. Translation and synthesis for a sentence run as spawned-and-joined
// parallel tasks, one per target language.
//
// Fanout implements [Sink].
type Fanout struct {
	cfg    FanoutConfig
	logger *slog.Logger
}

// Compile-time interface check.
var _ Sink = (*Fanout)(nil)

// NewFanout creates a Fanout.
func NewFanout(cfg FanoutConfig) *Fanout {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TranslateTimeout <= 0 {
		cfg.TranslateTimeout = DefaultTranslateTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Fanout{cfg: cfg, logger: cfg.Logger}
}

// HandleSentence implements [Sink]. Failures never abort delivery: a failed
// translation degrades to the original text and a failed synthesis drops
// only that language's audio event.
func (f *Fanout) HandleSentence(ctx context.Context, sentence Sentence) {
	participants, err := f.cfg.Directory.ListParticipants(ctx, sentence.SessionID)
	if err != nil {
		f.logger.Error("fanout: list participants", "session_id", sentence.SessionID, "error", err)
		return
	}
	needText, needVoice := TargetLanguages(participants)
	if len(needText) == 0 {
		return
	}

	f.cfg.Metrics.SentencesEmitted.Add(ctx, 1)
	fanoutStart := time.Now()
	defer func() {
		f.cfg.Metrics.SentenceFanoutDuration.Record(ctx, time.Since(fanoutStart).Seconds())
	}()

	sourceDisplay := lang.Display(sentence.SourceLanguage)
	translations, errorCount := f.translateAll(ctx, sentence, sourceDisplay, needText)

	msg := protocol.NewOutbound(protocol.TypeTranslation, protocol.Translation{
		SessionID:        sentence.SessionID,
		ParticipantID:    sentence.ParticipantID,
		SpeakerName:      sentence.SpeakerName,
		OriginalText:     sentence.Text,
		OriginalLanguage: sourceDisplay,
		Translations:     translations,
		Timestamp:        protocol.Timestamp(sentence.EmittedAt),
		HasErrors:        errorCount > 0,
		ErrorCount:       errorCount,
	})
	if _, dropped, err := f.cfg.Broadcaster.Broadcast(sentence.SessionID, msg); err != nil {
		f.logger.Error("fanout: broadcast translation", "error", err)
	} else {
		f.cfg.Metrics.RecordBroadcast(ctx, dropped)
	}

	f.synthesizeAll(ctx, sentence, translations, needVoice)
	f.persist(sentence, sourceDisplay, translations)
}

// HandleInterim implements [Sink].
func (f *Fanout) HandleInterim(interim Interim) {
	msg := protocol.NewOutbound(protocol.TypeInterimTranscript, protocol.InterimTranscript{
		Text:          interim.Text,
		ParticipantID: interim.ParticipantID,
		SpeakerName:   interim.SpeakerName,
		SessionID:     interim.SessionID,
	})
	if _, _, err := f.cfg.Broadcaster.Broadcast(interim.SessionID, msg); err != nil {
		f.logger.Error("fanout: broadcast interim", "error", err)
	}
}

// HandleError implements [Sink].
func (f *Fanout) HandleError(sessionID, participantID string, err error) {
	f.logger.Error("speaker stream error",
		"session_id", sessionID,
		"participant_id", participantID,
		"error", err)
	msg := protocol.NewOutbound(protocol.TypeError, map[string]string{
		"participantId": participantID,
		"message":       "transcription temporarily unavailable",
	})
	_, _, _ = f.cfg.Broadcaster.Broadcast(sessionID, msg)
}

// TargetLanguages derives the text and voice language sets from the room's
// current participants, preserving first-seen order for determinism. The
// fan-out recomputes this per sentence so membership changes take effect on
// the next sentence.
func TargetLanguages(participants []meeting.Participant) (needText []string, needVoice map[string]bool) {
	needVoice = make(map[string]bool)
	seen := make(map[string]bool)
	for _, p := range participants {
		language := p.Language
		if language == "" {
			language = lang.DefaultDisplay
		}
		if !seen[language] {
			seen[language] = true
			needText = append(needText, language)
		}
		if p.PreferredOutput == meeting.OutputVoice {
			needVoice[language] = true
		}
	}
	return needText, needVoice
}

// translateAll renders the sentence into every needed language in parallel.
// The source language passes through without a provider call, and failures
// fall back to the original text.
func (f *Fanout) translateAll(ctx context.Context, sentence Sentence, sourceDisplay string, needText []string) (map[string]string, int) {
	var (
		mu           sync.Mutex
		translations = make(map[string]string, len(needText))
		errorCount   int
	)

	// Passthrough assignments complete before any task starts; once the
	// tasks are running the map is written only under mu.
	pending := make([]string, 0, len(needText))
	for _, target := range needText {
		if target == sourceDisplay {
			translations[target] = sentence.Text
			continue
		}
		pending = append(pending, target)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range pending {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, f.cfg.TranslateTimeout)
			defer cancel()

			start := time.Now()
			text, err := resilience.RetryWithResult(callCtx, f.cfg.Retry, func(ctx context.Context) (string, error) {
				return f.cfg.Translator.Translate(ctx, translate.Request{
					Text:       sentence.Text,
					SourceLang: lang.TranslationCode(sourceDisplay),
					TargetLang: lang.TranslationCode(target),
				})
			})
			f.cfg.Metrics.TranslateDuration.Record(callCtx, time.Since(start).Seconds())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.logger.Warn("translation failed, passing source through",
					"target", target, "error", err)
				f.cfg.Metrics.RecordProviderRequest(callCtx, "google", "translate", "error")
				f.cfg.Metrics.RecordProviderError(callCtx, "google", "translate")
				translations[target] = sentence.Text
				errorCount++
				return nil
			}
			f.cfg.Metrics.RecordProviderRequest(callCtx, "google", "translate", "ok")
			translations[target] = text
			return nil
		})
	}
	_ = g.Wait()

	return translations, errorCount
}

// synthesizeAll produces and broadcasts audio for every voice language in
// parallel, consulting the cache first. Audio events may arrive in any
// order; the translation event has already been sent.
func (f *Fanout) synthesizeAll(ctx context.Context, sentence Sentence, translations map[string]string, needVoice map[string]bool) {
	g, gctx := errgroup.WithContext(ctx)
	for language := range needVoice {
		text, ok := translations[language]
		if !ok || text == "" {
			continue
		}

		g.Go(func() error {
			audio, err := f.synthesize(gctx, text, language)
			if err != nil {
				f.logger.Warn("synthesis failed, skipping audio event",
					"language", language, "error", err)
				return nil
			}

			msg := protocol.NewOutbound(protocol.TypeAudioSynthesized, protocol.AudioSynthesized{
				Language:      language,
				AudioContent:  base64.StdEncoding.EncodeToString(audio),
				ParticipantID: sentence.ParticipantID,
				SpeakerName:   sentence.SpeakerName,
				Text:          text,
				Timestamp:     protocol.Timestamp(time.Now()),
			})
			if _, _, err := f.cfg.Broadcaster.Broadcast(sentence.SessionID, msg); err != nil {
				f.logger.Error("fanout: broadcast audio", "language", language, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// synthesize returns MP3 bytes for text in the given display language,
// consulting the cache on the voice locale.
func (f *Fanout) synthesize(ctx context.Context, text, language string) ([]byte, error) {
	voiceLocale := lang.VoiceLocale(language)

	if f.cfg.Cache != nil {
		if audio, ok := f.cfg.Cache.Get(text, voiceLocale); ok {
			f.cfg.Metrics.RecordCacheLookup(ctx, true)
			return audio, nil
		}
		f.cfg.Metrics.RecordCacheLookup(ctx, false)
	}

	call := func(ctx context.Context) ([]byte, error) {
		return resilience.RetryWithResult(ctx, f.cfg.Retry, func(ctx context.Context) ([]byte, error) {
			return f.cfg.Synthesizer.Synthesize(ctx, tts.Request{
				Text:         text,
				LanguageCode: voiceLocale,
			})
		})
	}

	start := time.Now()
	var audio []byte
	var err error
	if f.cfg.SynthBreaker != nil {
		err = f.cfg.SynthBreaker.Execute(func() error {
			audio, err = call(ctx)
			return err
		})
	} else {
		audio, err = call(ctx)
	}
	f.cfg.Metrics.SynthesizeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		f.cfg.Metrics.RecordProviderRequest(ctx, "google", "tts", "error")
		f.cfg.Metrics.RecordProviderError(ctx, "google", "tts")
		return nil, err
	}
	f.cfg.Metrics.RecordProviderRequest(ctx, "google", "tts", "ok")

	if f.cfg.Cache != nil {
		f.cfg.Cache.Put(text, voiceLocale, audio)
	}
	return audio, nil
}

// persist appends one record per rendered language off the critical path.
func (f *Fanout) persist(sentence Sentence, sourceDisplay string, translations map[string]string) {
	if f.cfg.Records == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for language, text := range translations {
			rec := meeting.TranslationRecord{
				SessionID:        sentence.SessionID,
				ParticipantID:    sentence.ParticipantID,
				OriginalText:     sentence.Text,
				OriginalLanguage: sourceDisplay,
				TargetLanguage:   language,
				TranslatedText:   text,
				Confidence:       sentence.Confidence,
				Timestamp:        sentence.EmittedAt,
			}
			if err := f.cfg.Records.Append(ctx, rec); err != nil {
				f.logger.Error("fanout: persist record",
					"language", language, "error", err)
			}
		}
	}()
}
