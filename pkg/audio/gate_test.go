package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// sineFrame produces n samples of a full-scale-ish sine wave as LE 16-bit PCM.
func sineFrame(n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(10000 * math.Sin(2*math.Pi*float64(i)/32))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func silentFrame(n int) []byte { return make([]byte, n*2) }

func TestRMS_SilenceIsZero(t *testing.T) {
	if got := RMS(silentFrame(160)); got != 0 {
		t.Fatalf("RMS(silence) = %v, want 0", got)
	}
}

func TestRMS_VoicedFrameAboveThreshold(t *testing.T) {
	if got := RMS(sineFrame(160)); got < DefaultSilenceThreshold {
		t.Fatalf("RMS(sine) = %v, want >= %v", got, DefaultSilenceThreshold)
	}
}

func TestRMS_OddLengthFrame(t *testing.T) {
	frame := append(sineFrame(160), 0x7f)
	even := RMS(frame[:320])
	odd := RMS(frame)
	if odd != even {
		t.Fatalf("RMS(odd) = %v, want %v (trailing byte ignored)", odd, even)
	}
	// The caller's slice must be untouched.
	if frame[320] != 0x7f {
		t.Fatal("RMS modified the input slice")
	}
}

func TestRMS_EmptyAndSingleByte(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]byte{0x01}); got != 0 {
		t.Fatalf("RMS(1 byte) = %v, want 0", got)
	}
}

func TestEnergyGate_VoicedAlwaysAdmitted(t *testing.T) {
	g := NewEnergyGate(0, 0)
	for i := 0; i < 100; i++ {
		if !g.Admit(sineFrame(160)) {
			t.Fatalf("voiced frame %d rejected", i)
		}
	}
}

func TestEnergyGate_SilenceSuppressedAfterFloor(t *testing.T) {
	g := NewEnergyGate(0, 0)

	admitted := 0
	for i := 0; i < 41; i++ {
		if g.Admit(silentFrame(160)) {
			admitted++
		}
	}
	if admitted > 40 {
		t.Fatalf("admitted %d silent frames, want at most 40", admitted)
	}
	if !g.Suppressing() {
		t.Fatal("gate should be suppressing after a long silence run")
	}

	// Voice resets the run and is admitted immediately.
	if !g.Admit(sineFrame(160)) {
		t.Fatal("voiced frame after silence run rejected")
	}
	if g.Suppressing() {
		t.Fatal("gate still suppressing after voice")
	}
}

func TestEnergyGate_VoiceResetsSilenceRun(t *testing.T) {
	g := NewEnergyGate(0, 0)

	// 30 silent, one voiced, 30 silent: no suppression anywhere.
	for i := 0; i < 30; i++ {
		if !g.Admit(silentFrame(160)) {
			t.Fatalf("silent frame %d before floor rejected", i)
		}
	}
	if !g.Admit(sineFrame(160)) {
		t.Fatal("voiced frame rejected")
	}
	for i := 0; i < 30; i++ {
		if !g.Admit(silentFrame(160)) {
			t.Fatalf("silent frame %d after reset rejected", i)
		}
	}
}

func TestEnergyGate_Reset(t *testing.T) {
	g := NewEnergyGate(0, 0)
	for i := 0; i < 60; i++ {
		g.Admit(silentFrame(160))
	}
	if !g.Suppressing() {
		t.Fatal("expected suppression before Reset")
	}
	g.Reset()
	if g.Suppressing() {
		t.Fatal("Reset did not clear the silence run")
	}
	if !g.Admit(silentFrame(160)) {
		t.Fatal("silent frame after Reset rejected")
	}
}
