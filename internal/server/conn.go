package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/lingostream/lingostream/internal/meeting"
	"github.com/lingostream/lingostream/internal/pipeline"
	"github.com/lingostream/lingostream/internal/protocol"
	"github.com/lingostream/lingostream/internal/room"
	"github.com/lingostream/lingostream/pkg/lang"
)

// defaultSampleRate is assumed when audio_metadata omits the PCM rate.
const defaultSampleRate = 16000

// conn is the state of one client connection. All fields are owned by the
// reader task; the writer task only sees the listener it was started with.
type conn struct {
	srv    *Server
	ws     *websocket.Conn
	logger *slog.Logger

	listener  *room.Listener
	sessionID string

	// Speaking identity bound by audio_metadata or audio-chunk-metadata.
	participantID string
	speakerName   string
	sampleRate    int
	locale        string

	speaker *pipeline.Speaker
}

// run services the connection until the transport dies or the session is
// torn down.
func (c *conn) run(ctx context.Context) {
	defer c.teardown()

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			c.logger.Debug("connection read ended", "error", err)
			return
		}

		if int64(len(data)) > c.srv.cfg.ReadLimit {
			c.logger.Warn("oversized frame dropped", "bytes", len(data))
			continue
		}
		if env, ok := decodeControl(typ, data); ok {
			c.handleControl(ctx, env)
			continue
		}
		if typ == websocket.MessageText {
			// Text that is not a valid control message: drop the frame.
			c.logger.Warn("malformed control message dropped")
			continue
		}
		c.handleAudio(ctx, data)
	}
}

// decodeControl classifies an inbound frame. Text frames must be control
// messages; binary frames are sniffed so clients that send JSON over binary
// frames still work.
func decodeControl(typ websocket.MessageType, data []byte) (protocol.Envelope, bool) {
	if len(data) == 0 {
		return protocol.Envelope{}, false
	}
	if typ == websocket.MessageBinary && data[0] != '{' {
		return protocol.Envelope{}, false
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		return protocol.Envelope{}, false
	}
	return env, true
}

func (c *conn) handleControl(ctx context.Context, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoinSession:
		c.handleJoin(ctx, env)
	case protocol.TypeAudioMetadata:
		c.handleAudioMetadata(ctx, env)
	case protocol.TypeAudioChunkMetadata:
		c.handleChunkMetadata(ctx, env)
	case protocol.TypeSpeakerStatus:
		c.relaySpeakerStatus(env)
	case protocol.TypeHandRaise:
		c.relayHandRaise(ctx, env)
	case protocol.TypeSpeakPermission:
		c.relaySpeakPermission(ctx, env)
	default:
		c.logger.Warn("unknown control message dropped", "type", env.Type)
	}
}

// handleJoin binds the connection to a room after checking the session
// exists and has not expired.
func (c *conn) handleJoin(ctx context.Context, env protocol.Envelope) {
	if env.SessionID == "" {
		c.logger.Warn("join without session id")
		return
	}
	if c.listener != nil {
		if c.sessionID != env.SessionID {
			c.logger.Warn("join ignored, connection already in a session",
				"session_id", c.sessionID,
				"requested", env.SessionID)
		}
		return
	}

	if _, err := c.srv.cfg.Directory.GetSession(ctx, env.SessionID); err != nil {
		c.logger.Warn("join refused",
			"session_id", env.SessionID,
			"error", err)
		return
	}

	c.listener = c.srv.cfg.Registry.Join(env.SessionID, c.srv.cfg.SendBuffer)
	c.sessionID = env.SessionID
	c.logger = c.logger.With("session_id", env.SessionID)
	c.logger.Info("connection joined session")

	go c.writeLoop(ctx, c.listener)
}

// handleAudioMetadata declares the connection's speaking identity, PCM rate,
// and language, reconfiguring the speaker stream only when something
// actually changed.
func (c *conn) handleAudioMetadata(ctx context.Context, env protocol.Envelope) {
	if c.listener == nil {
		c.logger.Warn("audio metadata before join")
		return
	}
	pid := env.ParticipantID
	if pid == "" {
		pid = env.SpeakerID
	}
	if pid == "" {
		c.logger.Warn("audio metadata without participant id")
		return
	}

	locale := lang.Locale(env.TargetLanguage)
	display := lang.Display(locale)
	rate := env.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	name := c.speakerName
	if name == "" || pid != c.participantID {
		name = pid
	}
	created := c.bindParticipant(ctx, pid, name, display)

	changed := pid != c.participantID || rate != c.sampleRate || locale != c.locale
	c.participantID = pid
	c.speakerName = name
	c.sampleRate = rate
	c.locale = locale

	sp := c.srv.cfg.Streams.GetOrCreate(c.sessionID, pid, name)
	fresh := sp != c.speaker
	c.speaker = sp
	if changed || fresh {
		sp.Configure(rate, locale)
	}

	if created {
		c.announce(protocol.TypeParticipantJoined)
	}
}

// handleChunkMetadata binds speaker identity for upcoming binary frames
// without touching the stream config.
func (c *conn) handleChunkMetadata(ctx context.Context, env protocol.Envelope) {
	if c.listener == nil {
		c.logger.Warn("chunk metadata before join")
		return
	}
	var meta protocol.ChunkMetadata
	if err := json.Unmarshal(env.Data, &meta); err != nil || meta.ParticipantID == "" {
		c.logger.Warn("malformed chunk metadata dropped")
		return
	}

	name := meta.SpeakerName
	if name == "" {
		name = meta.ParticipantID
	}
	created := c.bindParticipant(ctx, meta.ParticipantID, name, "")

	c.participantID = meta.ParticipantID
	c.speakerName = name

	if created {
		c.announce(protocol.TypeParticipantJoined)
	}
}

// bindParticipant upserts the directory record for a speaking identity,
// preserving existing flags and language when the caller has nothing newer.
// Reports whether the record was created.
func (c *conn) bindParticipant(ctx context.Context, pid, name, language string) bool {
	dir := c.srv.cfg.Directory

	p, err := dir.GetParticipant(ctx, c.sessionID, pid)
	created := err != nil
	if created {
		p = meeting.Participant{
			ID:              pid,
			SessionID:       c.sessionID,
			Role:            meeting.RoleParticipant,
			PreferredOutput: meeting.OutputVoice,
		}
		if sess, serr := dir.GetSession(ctx, c.sessionID); serr == nil && sess.HostParticipantID == pid {
			p.Role = meeting.RoleHost
		}
	}
	if name != "" {
		p.Name = name
	}
	if language != "" {
		p.Language = language
	}
	if err := dir.UpsertParticipant(ctx, p); err != nil {
		c.logger.Warn("participant upsert failed", "participant_id", pid, "error", err)
		return false
	}
	return created
}

// announce broadcasts a participant-joined or participant-left event for the
// connection's bound identity.
func (c *conn) announce(msgType string) {
	_, _, _ = c.srv.cfg.Registry.Broadcast(c.sessionID, protocol.NewOutbound(msgType, protocol.ParticipantEvent{
		SessionID:       c.sessionID,
		ParticipantID:   c.participantID,
		ParticipantName: c.speakerName,
	}))
}

func (c *conn) relaySpeakerStatus(env protocol.Envelope) {
	var st protocol.SpeakerStatus
	if err := json.Unmarshal(env.Data, &st); err != nil {
		c.logger.Warn("malformed speaker-status dropped")
		return
	}
	if st.SessionID == "" {
		st.SessionID = c.sessionID
	}
	if c.listener == nil || st.SessionID != c.sessionID {
		c.logger.Warn("speaker-status for foreign session ignored", "target", st.SessionID)
		return
	}
	_, _, _ = c.srv.cfg.Registry.Broadcast(st.SessionID, protocol.NewOutbound(protocol.TypeSpeakerStatus, st))
}

func (c *conn) relayHandRaise(ctx context.Context, env protocol.Envelope) {
	var hr protocol.HandRaise
	if err := json.Unmarshal(env.Data, &hr); err != nil {
		c.logger.Warn("malformed hand-raise dropped")
		return
	}
	if hr.SessionID == "" {
		hr.SessionID = c.sessionID
	}
	if c.listener == nil || hr.SessionID != c.sessionID {
		c.logger.Warn("hand-raise for foreign session ignored", "target", hr.SessionID)
		return
	}
	if err := c.srv.cfg.Directory.SetHandRaised(ctx, hr.SessionID, hr.ParticipantID, hr.HandRaised); err != nil {
		c.logger.Warn("hand-raise ignored", "participant_id", hr.ParticipantID, "error", err)
		return
	}
	_, _, _ = c.srv.cfg.Registry.Broadcast(hr.SessionID, protocol.NewOutbound(protocol.TypeHandRaise, hr))
}

func (c *conn) relaySpeakPermission(ctx context.Context, env protocol.Envelope) {
	var sp protocol.SpeakPermission
	if err := json.Unmarshal(env.Data, &sp); err != nil {
		c.logger.Warn("malformed speak-permission dropped")
		return
	}
	if sp.SessionID == "" {
		sp.SessionID = c.sessionID
	}
	if c.listener == nil || sp.SessionID != c.sessionID {
		c.logger.Warn("speak-permission for foreign session ignored", "target", sp.SessionID)
		return
	}
	if err := c.srv.cfg.Directory.SetSpeaking(ctx, sp.SessionID, sp.ParticipantID, sp.IsSpeaking); err != nil {
		c.logger.Warn("speak-permission ignored", "participant_id", sp.ParticipantID, "error", err)
		return
	}
	_, _, _ = c.srv.cfg.Registry.Broadcast(sp.SessionID, protocol.NewOutbound(protocol.TypeSpeakPermission, sp))
}

// handleAudio routes one binary PCM frame to the bound speaker stream after
// rate limiting and authorization. Every failure drops the frame silently;
// the connection stays up.
func (c *conn) handleAudio(ctx context.Context, frame []byte) {
	if c.listener == nil || c.participantID == "" {
		c.logger.Debug("unbound audio frame dropped")
		return
	}
	if !c.srv.cfg.Limiter.Allow(c.participantID) {
		return
	}

	p, err := c.srv.cfg.Directory.GetParticipant(ctx, c.sessionID, c.participantID)
	if err != nil {
		c.logger.Debug("audio frame from unknown participant dropped",
			"participant_id", c.participantID)
		return
	}
	if !p.CanSpeak() {
		c.logger.Debug("audio frame without speaking permission dropped",
			"participant_id", c.participantID)
		return
	}
	if p.Role == meeting.RoleHost && !p.IsSpeaking {
		// Hosts are promoted on their first audio frame.
		if err := c.srv.cfg.Directory.SetSpeaking(ctx, c.sessionID, c.participantID, true); err != nil {
			c.logger.Warn("host promotion failed", "error", err)
		}
	}

	// The reaper may have destroyed the stream since the last frame; rebind
	// and push the connection's config into the fresh instance.
	sp := c.srv.cfg.Streams.GetOrCreate(c.sessionID, c.participantID, c.speakerName)
	if sp != c.speaker {
		c.speaker = sp
		if c.sampleRate > 0 {
			sp.Configure(c.sampleRate, c.locale)
		}
	}
	sp.WriteFrame(frame)
}

// writeLoop drains the room listener's outbound queue onto the socket. It
// exits when the listener is closed (session teardown), the context ends, or
// a write fails.
func (c *conn) writeLoop(ctx context.Context, l *room.Listener) {
	for {
		select {
		case msg := <-l.Outbound():
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.ws.Close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		case <-l.Done():
			c.ws.Close(websocket.StatusGoingAway, "session closed")
			return
		case <-ctx.Done():
			return
		}
	}
}

// teardown releases everything the connection owned. The participant record
// stays in the directory so a reconnecting client finds its state again.
func (c *conn) teardown() {
	if c.participantID != "" {
		c.srv.cfg.Limiter.Forget(c.participantID)
		c.srv.cfg.Streams.StopStream(c.sessionID, c.participantID)
		c.announce(protocol.TypeParticipantLeft)
	}
	if c.listener != nil {
		c.srv.cfg.Registry.Leave(c.listener)
		c.logger.Info("connection left session")
	}
	c.ws.Close(websocket.StatusNormalClosure, "")
}
