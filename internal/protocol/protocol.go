// Package protocol defines the JSON control messages exchanged over the
// duplex channel.
//
// The wire carries two kinds of frames: JSON control messages described
// here, and raw binary PCM frames that never reach this package. Inbound
// messages are decoded into [Envelope] first; the Type field then selects
// the payload shape. Outbound messages are built with the constructor
// functions so every event carries a consistent shape.
//
// Languages on the wire are human-readable display names ("English",
// "Spanish"); locale resolution happens at the provider boundary.
package protocol

import (
	"encoding/json"
	"time"
)

// Message types, client to server.
const (
	TypeJoinSession        = "join-session"
	TypeAudioMetadata      = "audio_metadata"
	TypeAudioChunkMetadata = "audio-chunk-metadata"
)

// Message types relayed in both directions.
const (
	TypeSpeakerStatus   = "speaker-status"
	TypeHandRaise       = "hand-raise"
	TypeSpeakPermission = "speak-permission"
)

// Message types, server to client.
const (
	TypeInterimTranscript = "interim-transcript"
	TypeTranslation       = "translation"
	TypeAudioSynthesized  = "audio-synthesized"
	TypeParticipantJoined = "participant-joined"
	TypeParticipantLeft   = "participant-left"
	TypeError             = "error"
)

// Envelope is the outer shape of every inbound control message. Only the
// fields relevant to the declared Type are populated; Data holds the nested
// payload for message types that use one.
type Envelope struct {
	Type string `json:"type"`

	// join-session and audio_metadata carry their fields at the top level.
	SessionID      string `json:"sessionId,omitempty"`
	ParticipantID  string `json:"participantId,omitempty"`
	SampleRate     int    `json:"sampleRate,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`

	// SpeakerID is the legacy spelling of ParticipantID still sent by older
	// clients on audio_metadata.
	SpeakerID string `json:"speakerId,omitempty"`

	// Data is the nested payload for data-carrying message types.
	Data json.RawMessage `json:"data,omitempty"`
}

// ChunkMetadata binds speaker identity for upcoming binary frames without
// reconfiguring the stream.
type ChunkMetadata struct {
	ParticipantID string `json:"participantId"`
	SpeakerName   string `json:"speakerName"`
	IsParticipant bool   `json:"isParticipant"`
}

// SpeakerStatus is relayed to the room verbatim.
type SpeakerStatus struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	IsActive      bool   `json:"isActive"`
	IsMuted       bool   `json:"isMuted"`
}

// HandRaise is relayed to the room verbatim.
type HandRaise struct {
	SessionID       string `json:"sessionId"`
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
	HandRaised      bool   `json:"handRaised"`
}

// SpeakPermission is relayed to the room verbatim and updates the
// participant store.
type SpeakPermission struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	IsSpeaking    bool   `json:"isSpeaking"`
}

// InterimTranscript is the live low-latency feedback event.
type InterimTranscript struct {
	Text          string `json:"text"`
	ParticipantID string `json:"participantId"`
	SpeakerName   string `json:"speakerName"`
	SessionID     string `json:"sessionId"`
}

// Translation carries one sentence rendered into every needed language.
type Translation struct {
	SessionID        string            `json:"sessionId"`
	ParticipantID    string            `json:"participantId"`
	SpeakerName      string            `json:"speakerName"`
	OriginalText     string            `json:"originalText"`
	OriginalLanguage string            `json:"originalLanguage"`
	Translations     map[string]string `json:"translations"`
	Timestamp        string            `json:"timestamp"`
	HasErrors        bool              `json:"hasErrors"`
	ErrorCount       int               `json:"errorCount"`
}

// AudioSynthesized carries one base64-encoded MP3 clip for one language.
type AudioSynthesized struct {
	Language      string `json:"language"`
	AudioContent  string `json:"audioContent"`
	ParticipantID string `json:"participantId"`
	SpeakerName   string `json:"speakerName"`
	Text          string `json:"text"`
	Timestamp     string `json:"timestamp"`
}

// ParticipantEvent announces a speaking identity joining or leaving.
type ParticipantEvent struct {
	SessionID       string `json:"sessionId"`
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
}

// Outbound is the envelope for every server-to-client message.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewOutbound wraps a payload in the standard server-to-client envelope.
func NewOutbound(msgType string, data any) Outbound {
	return Outbound{Type: msgType, Data: data}
}

// Timestamp formats t the way every outbound event carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
