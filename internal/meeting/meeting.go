// Package meeting holds the session and participant domain model.
//
// A Session is the unit of interpretation: one room, one host, a hard
// expiry. Participants join a session with a display language and an output
// preference; the fan-out stage derives its target-language sets from the
// participants currently present. The [Directory] interface abstracts the
// participant store, and [RecordStore] the append-only translation log.
package meeting

import (
	"errors"
	"time"
)

// Role is a participant's permission class.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	RoleGuest       Role = "guest"
)

// OutputPref selects how a participant consumes the interpreted stream.
type OutputPref string

const (
	// OutputVoice delivers synthesized audio plus text.
	OutputVoice OutputPref = "voice"

	// OutputText delivers text only.
	OutputText OutputPref = "text"
)

// ErrSessionNotFound is returned by directory lookups for unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// ErrParticipantNotFound is returned by directory lookups for unknown
// participants.
var ErrParticipantNotFound = errors.New("participant not found")

// ErrSessionExpired is returned when an operation targets a session past its
// expiry.
var ErrSessionExpired = errors.New("session expired")

// Session is immutable for the lifetime of a room.
type Session struct {
	// ID is the session identifier clients join with.
	ID string

	// HostParticipantID identifies the participant with moderation rights.
	HostParticipantID string

	// CreatedAt is when the session was registered.
	CreatedAt time.Time

	// ExpiresAt is the hard deadline after which the room and all of its
	// speaker streams are destroyed.
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
// A zero ExpiresAt means the session never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Participant is one attendee of a session.
type Participant struct {
	ID        string
	SessionID string
	Name      string
	Role      Role

	// Language is the participant's display language name ("English",
	// "Spanish"). The wire protocol speaks display names; locale resolution
	// happens at the provider boundary.
	Language string

	// PreferredOutput selects text-only or voice delivery.
	PreferredOutput OutputPref

	// IsSpeaking grants permission to emit audio. True for hosts by
	// construction on their first audio frame; non-hosts need a grant from a
	// host.
	IsSpeaking bool

	// HandRaised is the moderation flag relayed to the room.
	HandRaised bool
}

// CanSpeak reports whether audio from this participant may reach a speaker
// stream. Hosts may always speak; they are promoted to IsSpeaking on first
// audio.
func (p Participant) CanSpeak() bool {
	return p.IsSpeaking || p.Role == RoleHost
}
