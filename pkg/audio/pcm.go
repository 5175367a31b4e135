// Package audio provides PCM helpers for the interpretation pipeline: RMS
// energy measurement over little-endian signed 16-bit mono frames and the
// hysteretic energy gate that suppresses sustained silence before it reaches
// the transcription provider.
package audio

import "math"

// rmsScale maps the normalised [0,1] RMS onto the integer-ish range the
// gate threshold is expressed in.
const rmsScale = 10000

// RMS computes the scaled root-mean-square energy of a little-endian signed
// 16-bit PCM mono frame. Samples are normalised to [-1, 1] before squaring,
// then the result is scaled by 10000 so typical speech lands in the tens to
// hundreds and silence near zero.
//
// Frames of odd length are copied into an aligned buffer first; a dangling
// trailing byte is ignored. An empty (or single-byte) frame reports zero.
func RMS(frame []byte) float64 {
	frame = aligned(frame)
	n := len(frame) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n*2; i += 2 {
		s := int16(frame[i]) | int16(frame[i+1])<<8
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum/float64(n)) * rmsScale
}

// aligned returns frame if it is already sample-aligned, otherwise a copy
// truncated to the last full sample. Copying keeps the caller's slice
// untouched when the transport hands us a misaligned view.
func aligned(frame []byte) []byte {
	if len(frame)%2 == 0 {
		return frame
	}
	buf := make([]byte, len(frame)-1)
	copy(buf, frame)
	return buf
}
