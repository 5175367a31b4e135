package stt

// Result is a single recognition event from a streaming session. Both
// interim and final results use this type.
type Result struct {
	// Text is the transcribed speech fragment.
	Text string

	// LanguageCode is the BCP-47 locale the recogniser attributed the speech
	// to. May be empty if the provider does not report it.
	LanguageCode string

	// Confidence is the recognition confidence in [0, 1]. Providers typically
	// report zero for interim results.
	Confidence float64

	// IsFinal marks an authoritative fragment. Interims are previews subject
	// to revision and must never reach the session log or the translators.
	IsFinal bool
}
