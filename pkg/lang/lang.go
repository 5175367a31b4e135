// Package lang resolves the human-readable language names used on the wire
// ("English", "Arabic") to the locale and base-language codes the providers
// expect.
//
// The wire protocol deliberately carries display names so that clients never
// need a locale table; the server is the single place where naming is
// normalised. Unknown names resolve to English / en-US.
package lang

import "strings"

// DefaultDisplay is the display name assumed when a language cannot be resolved.
const DefaultDisplay = "English"

// DefaultLocale is the locale assumed when a language cannot be resolved.
const DefaultLocale = "en-US"

// entry describes one supported language.
type entry struct {
	display string
	locale  string // BCP-47 locale for STT recognition
	voice   string // locale used for TTS voice selection (may differ, e.g. Arabic)
}

// table lists every language a room may declare. Nineteen entries; the
// fan-out only ever touches the subset occupied by connected listeners.
var table = []entry{
	{"English", "en-US", "en-US"},
	{"Spanish", "es-ES", "es-ES"},
	{"French", "fr-FR", "fr-FR"},
	{"German", "de-DE", "de-DE"},
	{"Italian", "it-IT", "it-IT"},
	{"Portuguese", "pt-BR", "pt-BR"},
	{"Dutch", "nl-NL", "nl-NL"},
	{"Russian", "ru-RU", "ru-RU"},
	{"Polish", "pl-PL", "pl-PL"},
	{"Turkish", "tr-TR", "tr-TR"},
	{"Swedish", "sv-SE", "sv-SE"},
	// Arabic recognition reports ar-SA but the synthesis catalogue only
	// carries the cross-region ar-XA voices.
	{"Arabic", "ar-SA", "ar-XA"},
	{"Hindi", "hi-IN", "hi-IN"},
	{"Japanese", "ja-JP", "ja-JP"},
	{"Korean", "ko-KR", "ko-KR"},
	{"Chinese", "zh-CN", "cmn-CN"},
	{"Indonesian", "id-ID", "id-ID"},
	{"Vietnamese", "vi-VN", "vi-VN"},
	{"Thai", "th-TH", "th-TH"},
}

var (
	byDisplay = make(map[string]entry, len(table))
	byBase    = make(map[string]entry, len(table))
)

func init() {
	for _, e := range table {
		byDisplay[strings.ToLower(e.display)] = e
		byBase[Base(e.locale)] = e
	}
}

// Locale returns the BCP-47 recognition locale for a display name
// (e.g. "Spanish" → "es-ES"). Unknown names return [DefaultLocale].
func Locale(display string) string {
	if e, ok := byDisplay[strings.ToLower(strings.TrimSpace(display))]; ok {
		return e.locale
	}
	return DefaultLocale
}

// VoiceLocale returns the locale used for TTS voice selection. It differs
// from [Locale] only where the synthesis catalogue is cross-region
// (e.g. "Arabic" → "ar-XA").
func VoiceLocale(display string) string {
	if e, ok := byDisplay[strings.ToLower(strings.TrimSpace(display))]; ok {
		return e.voice
	}
	return DefaultLocale
}

// Base extracts the base language from a locale code ("es-ES" → "es").
// Codes without a region pass through unchanged.
func Base(locale string) string {
	if i := strings.IndexByte(locale, '-'); i > 0 {
		return locale[:i]
	}
	return locale
}

// TranslationCode returns the base-language code the translation provider
// expects for a display name ("Portuguese" → "pt"). Unknown names return "en".
func TranslationCode(display string) string {
	return Base(Locale(display))
}

// Display resolves a locale or base-language code back to its display name
// ("es-ES" → "Spanish", "es" → "Spanish"). Unknown codes return
// [DefaultDisplay].
func Display(code string) string {
	code = strings.TrimSpace(code)
	for _, e := range table {
		if strings.EqualFold(e.locale, code) || strings.EqualFold(e.voice, code) {
			return e.display
		}
	}
	if e, ok := byBase[strings.ToLower(Base(code))]; ok {
		return e.display
	}
	return DefaultDisplay
}

// Known reports whether display names a supported language.
func Known(display string) bool {
	_, ok := byDisplay[strings.ToLower(strings.TrimSpace(display))]
	return ok
}

// Supported returns the display names of all supported languages in table
// order. The slice is freshly allocated on every call.
func Supported() []string {
	out := make([]string, len(table))
	for i, e := range table {
		out[i] = e.display
	}
	return out
}
