package googletts

import "testing"

func TestResolveVoice_ExplicitNameWins(t *testing.T) {
	locale, voice := resolveVoice("es-ES", "es-ES-Neural2-C")
	if locale != "es-ES" || voice != "es-ES-Neural2-C" {
		t.Fatalf("got (%s, %s), want explicit voice kept", locale, voice)
	}
}

func TestResolveVoice_DefaultForLocale(t *testing.T) {
	locale, voice := resolveVoice("fr-FR", "")
	if locale != "fr-FR" || voice != "fr-FR-Wavenet-A" {
		t.Fatalf("got (%s, %s), want fr-FR default", locale, voice)
	}
}

func TestResolveVoice_BaseLanguageFallback(t *testing.T) {
	// es-MX has no table entry; the es-ES voice should be used instead.
	locale, voice := resolveVoice("es-MX", "")
	if locale != "es-ES" || voice != defaultVoices["es-ES"] {
		t.Fatalf("got (%s, %s), want es-ES base fallback", locale, voice)
	}
}

func TestResolveVoice_EnglishFallback(t *testing.T) {
	locale, voice := resolveVoice("xx-YY", "")
	if locale != "en-US" || voice != defaultVoices["en-US"] {
		t.Fatalf("got (%s, %s), want en-US fallback", locale, voice)
	}
}

func TestResolveVoice_EmptyLocale(t *testing.T) {
	locale, voice := resolveVoice("", "")
	if locale != "en-US" || voice != defaultVoices["en-US"] {
		t.Fatalf("got (%s, %s), want en-US for empty locale", locale, voice)
	}
}
