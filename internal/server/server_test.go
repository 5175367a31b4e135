package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/lingostream/lingostream/internal/meeting"
	"github.com/lingostream/lingostream/internal/pipeline"
	"github.com/lingostream/lingostream/internal/protocol"
	"github.com/lingostream/lingostream/internal/room"
	"github.com/lingostream/lingostream/pkg/provider/stt"
	sttmock "github.com/lingostream/lingostream/pkg/provider/stt/mock"
)

// nopSink discards all pipeline events; the transport tests only care about
// what reaches the mock STT provider and the room fabric.
type nopSink struct{}

func (nopSink) HandleSentence(context.Context, pipeline.Sentence) {}
func (nopSink) HandleInterim(pipeline.Interim)                    {}
func (nopSink) HandleError(string, string, error)                 {}

type harness struct {
	srv       *Server
	ts        *httptest.Server
	directory *meeting.MemoryDirectory
	registry  *room.Registry
	streams   *pipeline.Manager
	stt       *sttmock.Provider
}

// newHarness builds a server around one session "s1" hosted by "host". The
// ingress limiter gap is 1 ns so tests can send frames back to back; the
// rate-limit test constructs its own.
func newHarness(t *testing.T, minFrameGap time.Duration) *harness {
	t.Helper()

	directory := meeting.NewMemoryDirectory()
	if err := directory.CreateSession(context.Background(), meeting.Session{
		ID:                "s1",
		HostParticipantID: "host",
	}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	registry := room.NewRegistry(nil)
	sttp := &sttmock.Provider{}
	streams := pipeline.NewManager(pipeline.ManagerConfig{
		Provider: sttp,
		Sink:     nopSink{},
		SpeakerDefaults: pipeline.SpeakerConfig{
			SampleRate:   16000,
			LanguageCode: "en-US",
		},
		ReapInterval: time.Hour,
		IdleTimeout:  time.Hour,
	})

	srv, err := New(Config{
		Registry:  registry,
		Directory: directory,
		Streams:   streams,
		Limiter:   room.NewIngressLimiter(minFrameGap),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		streams.Destroy()
		registry.Shutdown()
	})

	return &harness{
		srv:       srv,
		ts:        ts,
		directory: directory,
		registry:  registry,
		streams:   streams,
		stt:       sttp,
	}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(h.ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func sendJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func sendBinary(t *testing.T, ws *websocket.Conn, frame []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageBinary, frame); err != nil {
		t.Fatalf("write binary: %v", err)
	}
}

// readEvent reads outbound messages until one of the wanted type arrives.
func readEvent(t *testing.T, ws *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		_, data, err := ws.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("waiting for %q: %v", wantType, err)
		}
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal outbound: %v", err)
		}
		if msg.Type == wantType {
			return msg.Data
		}
	}
}

func join(t *testing.T, h *harness, ws *websocket.Conn, sessionID string) {
	t.Helper()
	sendJSON(t, ws, protocol.Envelope{Type: protocol.TypeJoinSession, SessionID: sessionID})
}

func waitCond(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// loudFrame returns 160 samples of a sine wave loud enough to pass the
// voice-activity gate.
func loudFrame() []byte {
	buf := make([]byte, 320)
	for i := 0; i < 160; i++ {
		s := int16(10000 * math.Sin(2*math.Pi*float64(i)/32))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestServer_JoinAndBroadcast(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	a := h.dial(t)
	b := h.dial(t)
	join(t, h, a, "s1")
	join(t, h, b, "s1")

	waitCond(t, 2*time.Second, func() bool {
		r, ok := h.registry.Get("s1")
		return ok && r.Len() == 2
	}, "both connections never joined the room")

	h.registry.Broadcast("s1", protocol.NewOutbound(protocol.TypeInterimTranscript, protocol.InterimTranscript{
		Text:      "hello",
		SessionID: "s1",
	}))

	for _, ws := range []*websocket.Conn{a, b} {
		raw := readEvent(t, ws, protocol.TypeInterimTranscript)
		var iv protocol.InterimTranscript
		if err := json.Unmarshal(raw, &iv); err != nil {
			t.Fatalf("unmarshal interim: %v", err)
		}
		if iv.Text != "hello" {
			t.Fatalf("interim text = %q", iv.Text)
		}
	}
}

func TestServer_JoinUnknownSessionRefused(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	ws := h.dial(t)
	join(t, h, ws, "ghost")

	// The connection survives the refused join and can still join a real
	// session.
	join(t, h, ws, "s1")
	waitCond(t, 2*time.Second, func() bool {
		r, ok := h.registry.Get("s1")
		return ok && r.Len() == 1
	}, "join after refused join never landed")

	if _, ok := h.registry.Get("ghost"); ok {
		t.Fatal("room created for unknown session")
	}
}

func TestServer_AudioMetadataBindsAndConfigures(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	ws := h.dial(t)
	join(t, h, ws, "s1")
	sendJSON(t, ws, protocol.Envelope{
		Type:           protocol.TypeAudioMetadata,
		ParticipantID:  "host",
		SampleRate:     48000,
		TargetLanguage: "Spanish",
	})

	waitCond(t, 2*time.Second, func() bool {
		p, err := h.directory.GetParticipant(context.Background(), "s1", "host")
		return err == nil && p.Language == "Spanish" && p.Role == meeting.RoleHost
	}, "participant never bound with language and host role")
	waitCond(t, 2*time.Second, func() bool { return h.streams.Len() == 1 }, "speaker stream never created")

	sendBinary(t, ws, loudFrame())

	waitCond(t, 2*time.Second, func() bool { return h.stt.StartStreamCount() >= 1 }, "stream never opened")
	cfg := h.stt.Calls()[0].Cfg
	if cfg.SampleRateHertz != 48000 || cfg.LanguageCode != "es-ES" {
		t.Fatalf("stream config = %+v", cfg)
	}
}

func TestServer_UnboundBinaryFrameDropped(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	ws := h.dial(t)
	join(t, h, ws, "s1")
	waitCond(t, 2*time.Second, func() bool {
		r, ok := h.registry.Get("s1")
		return ok && r.Len() == 1
	}, "join never landed")

	sendBinary(t, ws, loudFrame())
	time.Sleep(50 * time.Millisecond)

	if h.streams.Len() != 0 {
		t.Fatal("unbound frame created a speaker stream")
	}
}

func TestServer_SpeakPermissionGatesAudio(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	ws := h.dial(t)
	join(t, h, ws, "s1")

	chunk, _ := json.Marshal(protocol.ChunkMetadata{ParticipantID: "bob", SpeakerName: "Bob"})
	sendJSON(t, ws, protocol.Envelope{Type: protocol.TypeAudioChunkMetadata, Data: chunk})

	waitCond(t, 2*time.Second, func() bool {
		_, err := h.directory.GetParticipant(context.Background(), "s1", "bob")
		return err == nil
	}, "chunk metadata never bound bob")

	// Bob has no speaking permission yet; frames must not open a stream.
	sendBinary(t, ws, loudFrame())
	time.Sleep(50 * time.Millisecond)
	if h.stt.StartStreamCount() != 0 {
		t.Fatal("audio accepted without speaking permission")
	}

	perm, _ := json.Marshal(protocol.SpeakPermission{SessionID: "s1", ParticipantID: "bob", IsSpeaking: true})
	sendJSON(t, ws, protocol.Envelope{Type: protocol.TypeSpeakPermission, Data: perm})

	// The relay confirms the directory update has been applied.
	raw := readEvent(t, ws, protocol.TypeSpeakPermission)
	var got protocol.SpeakPermission
	if err := json.Unmarshal(raw, &got); err != nil || !got.IsSpeaking {
		t.Fatalf("speak-permission relay = %s (err %v)", raw, err)
	}

	sendBinary(t, ws, loudFrame())
	waitCond(t, 2*time.Second, func() bool { return h.stt.StartStreamCount() >= 1 }, "granted speaker's audio never opened a stream")
}

func TestServer_HostAutoPromotedOnFirstAudio(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	ws := h.dial(t)
	join(t, h, ws, "s1")
	sendJSON(t, ws, protocol.Envelope{
		Type:          protocol.TypeAudioMetadata,
		ParticipantID: "host",
		SampleRate:    16000,
	})
	waitCond(t, 2*time.Second, func() bool {
		_, err := h.directory.GetParticipant(context.Background(), "s1", "host")
		return err == nil
	}, "host never bound")

	sendBinary(t, ws, loudFrame())

	waitCond(t, 2*time.Second, func() bool {
		p, err := h.directory.GetParticipant(context.Background(), "s1", "host")
		return err == nil && p.IsSpeaking
	}, "host never promoted to speaking")
}

func TestServer_RateLimiterDropsFloods(t *testing.T) {
	h := newHarness(t, 200*time.Millisecond)
	sess := &sttmock.Session{ResultsCh: make(chan stt.Result, 8), CloseResults: true}
	h.stt.Session = sess

	ws := h.dial(t)
	join(t, h, ws, "s1")
	sendJSON(t, ws, protocol.Envelope{
		Type:          protocol.TypeAudioMetadata,
		ParticipantID: "host",
		SampleRate:    16000,
	})
	waitCond(t, 2*time.Second, func() bool {
		_, err := h.directory.GetParticipant(context.Background(), "s1", "host")
		return err == nil
	}, "host never bound")

	// A burst well inside the 200 ms window: only the first frame may pass.
	for i := 0; i < 10; i++ {
		sendBinary(t, ws, loudFrame())
	}

	waitCond(t, 2*time.Second, func() bool { return len(sess.SentAudio()) >= 1 }, "no frame passed the limiter")
	time.Sleep(100 * time.Millisecond)
	if got := len(sess.SentAudio()); got != 1 {
		t.Fatalf("%d frames passed the limiter, want 1", got)
	}
}

func TestServer_HandRaiseRelaysAndUpdatesDirectory(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	ws := h.dial(t)
	join(t, h, ws, "s1")

	chunk, _ := json.Marshal(protocol.ChunkMetadata{ParticipantID: "bob", SpeakerName: "Bob"})
	sendJSON(t, ws, protocol.Envelope{Type: protocol.TypeAudioChunkMetadata, Data: chunk})
	waitCond(t, 2*time.Second, func() bool {
		_, err := h.directory.GetParticipant(context.Background(), "s1", "bob")
		return err == nil
	}, "bob never bound")

	hr, _ := json.Marshal(protocol.HandRaise{SessionID: "s1", ParticipantID: "bob", ParticipantName: "Bob", HandRaised: true})
	sendJSON(t, ws, protocol.Envelope{Type: protocol.TypeHandRaise, Data: hr})

	raw := readEvent(t, ws, protocol.TypeHandRaise)
	var got protocol.HandRaise
	if err := json.Unmarshal(raw, &got); err != nil || !got.HandRaised {
		t.Fatalf("hand-raise relay = %s (err %v)", raw, err)
	}

	p, err := h.directory.GetParticipant(context.Background(), "s1", "bob")
	if err != nil || !p.HandRaised {
		t.Fatalf("directory hand-raise flag not set: %+v (err %v)", p, err)
	}
}

func TestServer_ChunkMetadataAnnouncesParticipant(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	watcher := h.dial(t)
	join(t, h, watcher, "s1")
	speaker := h.dial(t)
	join(t, h, speaker, "s1")
	waitCond(t, 2*time.Second, func() bool {
		r, ok := h.registry.Get("s1")
		return ok && r.Len() == 2
	}, "connections never joined")

	chunk, _ := json.Marshal(protocol.ChunkMetadata{ParticipantID: "bob", SpeakerName: "Bob"})
	sendJSON(t, speaker, protocol.Envelope{Type: protocol.TypeAudioChunkMetadata, Data: chunk})

	raw := readEvent(t, watcher, protocol.TypeParticipantJoined)
	var ev protocol.ParticipantEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal participant event: %v", err)
	}
	if ev.ParticipantID != "bob" || ev.ParticipantName != "Bob" {
		t.Fatalf("participant event = %+v", ev)
	}

	// Closing the speaker's connection announces the departure and stops its
	// stream.
	speaker.Close(websocket.StatusNormalClosure, "")
	raw = readEvent(t, watcher, protocol.TypeParticipantLeft)
	if err := json.Unmarshal(raw, &ev); err != nil || ev.ParticipantID != "bob" {
		t.Fatalf("participant-left event = %s (err %v)", raw, err)
	}
}

func TestServer_BinaryJSONSniffedAsControl(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	ws := h.dial(t)

	// A join sent as a binary frame must still be recognized as control.
	data, _ := json.Marshal(protocol.Envelope{Type: protocol.TypeJoinSession, SessionID: "s1"})
	sendBinary(t, ws, data)

	waitCond(t, 2*time.Second, func() bool {
		r, ok := h.registry.Get("s1")
		return ok && r.Len() == 1
	}, "binary-framed join never landed")
}

func TestServer_OversizedFrameDroppedConnectionStaysOpen(t *testing.T) {
	directory := meeting.NewMemoryDirectory()
	if err := directory.CreateSession(context.Background(), meeting.Session{
		ID:                "s1",
		HostParticipantID: "host",
	}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	registry := room.NewRegistry(nil)
	streams := pipeline.NewManager(pipeline.ManagerConfig{
		Provider:     &sttmock.Provider{},
		Sink:         nopSink{},
		ReapInterval: time.Hour,
		IdleTimeout:  time.Hour,
	})

	srv, err := New(Config{
		Registry:  registry,
		Directory: directory,
		Streams:   streams,
		Limiter:   room.NewIngressLimiter(time.Nanosecond),
		ReadLimit: 1024,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		streams.Destroy()
		registry.Shutdown()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })

	// A join padded past the frame cap must be discarded, not processed.
	sendJSON(t, ws, map[string]any{
		"type":       protocol.TypeJoinSession,
		"session_id": "s1",
		"padding":    strings.Repeat("x", 1024),
	})
	time.Sleep(50 * time.Millisecond)
	if _, ok := registry.Get("s1"); ok {
		t.Fatal("oversized join was processed")
	}

	// The connection survives and a normal join still lands.
	sendJSON(t, ws, protocol.Envelope{Type: protocol.TypeJoinSession, SessionID: "s1"})
	waitCond(t, 2*time.Second, func() bool {
		r, ok := registry.Get("s1")
		return ok && r.Len() == 1
	}, "join after oversized frame never landed")
}

func TestSweeper_ClosesExpiredSessions(t *testing.T) {
	h := newHarness(t, time.Nanosecond)

	ws := h.dial(t)
	join(t, h, ws, "s1")
	sendJSON(t, ws, protocol.Envelope{
		Type:          protocol.TypeAudioMetadata,
		ParticipantID: "host",
		SampleRate:    16000,
	})
	waitCond(t, 2*time.Second, func() bool { return h.streams.Len() == 1 }, "speaker stream never created")

	// Expire the session behind the live room.
	if err := h.directory.CreateSession(context.Background(), meeting.Session{
		ID:                "s1",
		HostParticipantID: "host",
		ExpiresAt:         time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sw := NewSweeper(h.registry, h.directory, h.streams, nil, time.Hour)
	sw.Sweep(context.Background())

	if h.registry.Rooms() != 0 {
		t.Fatal("expired session's room survived the sweep")
	}
	if h.streams.Len() != 0 {
		t.Fatal("expired session's speaker streams survived the sweep")
	}
	if _, err := h.directory.GetSession(context.Background(), "s1"); err == nil {
		t.Fatal("expired session still in the directory")
	}

	// The client's connection is closed by the teardown.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			break
		}
	}
}
