package lang

import "testing"

func TestLocale(t *testing.T) {
	tests := []struct {
		display string
		want    string
	}{
		{"English", "en-US"},
		{"english", "en-US"},
		{" Spanish ", "es-ES"},
		{"Arabic", "ar-SA"},
		{"Chinese", "zh-CN"},
		{"Klingon", "en-US"},
		{"", "en-US"},
	}
	for _, tt := range tests {
		if got := Locale(tt.display); got != tt.want {
			t.Errorf("Locale(%q) = %q, want %q", tt.display, got, tt.want)
		}
	}
}

func TestVoiceLocale_ArabicCrossRegion(t *testing.T) {
	if got := VoiceLocale("Arabic"); got != "ar-XA" {
		t.Fatalf("VoiceLocale(Arabic) = %q, want ar-XA", got)
	}
	if got := Locale("Arabic"); got != "ar-SA" {
		t.Fatalf("Locale(Arabic) = %q, want ar-SA", got)
	}
}

func TestBase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"es-ES", "es"},
		{"cmn-CN", "cmn"},
		{"en", "en"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Base(tt.in); got != tt.want {
			t.Errorf("Base(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplay_RoundTrip(t *testing.T) {
	for _, name := range Supported() {
		if got := Display(Locale(name)); got != name {
			t.Errorf("Display(Locale(%q)) = %q", name, got)
		}
	}
}

func TestDisplay_BaseCodeAndUnknown(t *testing.T) {
	if got := Display("es"); got != "Spanish" {
		t.Fatalf("Display(es) = %q, want Spanish", got)
	}
	if got := Display("ar-XA"); got != "Arabic" {
		t.Fatalf("Display(ar-XA) = %q, want Arabic", got)
	}
	if got := Display("xx-YY"); got != DefaultDisplay {
		t.Fatalf("Display(xx-YY) = %q, want %q", got, DefaultDisplay)
	}
}

func TestSupported(t *testing.T) {
	names := Supported()
	if len(names) != 19 {
		t.Fatalf("Supported() returned %d languages, want 19", len(names))
	}
	for _, n := range names {
		if !Known(n) {
			t.Errorf("Known(%q) = false for supported language", n)
		}
	}
}
