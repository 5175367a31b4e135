package pipeline

import (
	"strings"
	"time"
)

const (
	// SentenceSilenceThreshold is how long after the last final fragment an
	// unfinished sentence is flushed anyway.
	SentenceSilenceThreshold = 500 * time.Millisecond

	// maxSentenceTokens forces emission during a long unpunctuated
	// monologue so downstream latency stays bounded.
	maxSentenceTokens = 20

	// minTokensForPunctuation stops single-word finals like "Yes." from
	// emitting prematurely; the silence timer catches them instead.
	minTokensForPunctuation = 3
)

// aggregator accumulates final STT fragments into sentences. It is a pure
// state machine driven by the speaker worker, which also owns the silence
// timer; the aggregator only reports whether a timer should be armed.
//
// Not safe for concurrent use.
type aggregator struct {
	parts  []string
	tokens int
}

// add appends a final fragment and reports whether the accumulated text
// should be emitted now (punctuation or length trigger). When it returns
// false with a non-empty accumulator the caller arms the silence timer.
func (a *aggregator) add(fragment string) (string, bool) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return "", false
	}

	a.parts = append(a.parts, fragment)
	a.tokens += len(strings.Fields(fragment))

	if a.tokens >= maxSentenceTokens {
		return a.take(), true
	}
	if endsSentence(fragment) && a.tokens >= minTokensForPunctuation {
		return a.take(), true
	}
	return "", false
}

// flush emits whatever is accumulated, used by the silence timer and by
// stop().
func (a *aggregator) flush() (string, bool) {
	if len(a.parts) == 0 {
		return "", false
	}
	return a.take(), true
}

// pending reports whether any text is accumulated.
func (a *aggregator) pending() bool { return len(a.parts) > 0 }

func (a *aggregator) take() string {
	out := strings.Join(a.parts, " ")
	a.parts = a.parts[:0]
	a.tokens = 0
	return out
}

// endsSentence reports whether fragment ends with terminal punctuation,
// ignoring trailing whitespace.
func endsSentence(fragment string) bool {
	trimmed := strings.TrimRight(fragment, " \t\r\n")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

// minInterimConfidence filters out low-confidence interim guesses; a zero
// confidence means the recognizer did not score the fragment and it passes.
const minInterimConfidence = 0.4

// interimNoise reports whether an interim fragment is not worth relaying:
// empty text, a recognizer stutter repeating one rune, or a scored guess
// below the confidence floor.
func interimNoise(text string, confidence float64) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	if confidence > 0 && confidence < minInterimConfidence {
		return true
	}
	runes := []rune(text)
	if len(runes) >= 3 {
		repeated := true
		for _, r := range runes[1:] {
			if r != runes[0] {
				repeated = false
				break
			}
		}
		if repeated {
			return true
		}
	}
	return false
}
