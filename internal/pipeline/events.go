// Package pipeline contains the per-speaker transcription pipeline: the
// speaker stream state machine that drives a streaming STT session through
// voice-activity gating and periodic rotation, the sentence aggregator that
// turns final fragments into sentence events, the stream manager that owns
// one speaker stream per (session, participant), and the translation fan-out
// that renders each sentence into every language the room needs.
package pipeline

import "time"

// Sentence is one aggregated utterance ready for translation. Produced by a
// speaker stream, consumed exactly once by the fan-out.
type Sentence struct {
	Text           string
	SourceLanguage string
	ParticipantID  string
	SpeakerName    string
	SessionID      string
	Confidence     float64
	EmittedAt      time.Time
}

// Interim is a low-latency preview fragment for live feedback. Interims are
// never translated or persisted.
type Interim struct {
	Text          string
	ParticipantID string
	SpeakerName   string
	SessionID     string
}
