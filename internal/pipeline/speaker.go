package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lingostream/lingostream/internal/resilience"
	"github.com/lingostream/lingostream/pkg/audio"
	"github.com/lingostream/lingostream/pkg/provider/stt"
)

// Defaults for the speaker stream's timing knobs. Streaming STT providers
// cap sessions at roughly five minutes; rotating at four leaves headroom
// for the drain.
const (
	DefaultRotationAge    = 4 * time.Minute
	DefaultRotationCheck  = 30 * time.Second
	DefaultDrainWindow    = 2 * time.Second
	DefaultRestartDelay   = 500 * time.Millisecond
	DefaultActivityWindow = 5 * time.Second

	frameQueueDepth   = 256
	pendingFrameLimit = 256
)

type speakerState int

const (
	stateIdle speakerState = iota
	stateStarting
	stateActive
	stateRotating
	stateStopped
)

func (s speakerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStarting:
		return "starting"
	case stateActive:
		return "active"
	case stateRotating:
		return "rotating"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SpeakerConfig configures a Speaker.
type SpeakerConfig struct {
	SessionID     string
	ParticipantID string
	SpeakerName   string

	// Provider opens streaming transcription sessions.
	Provider stt.Provider

	// Logger receives structured events. Nil falls back to slog.Default.
	Logger *slog.Logger

	// SampleRate and LanguageCode describe the inbound PCM and primary
	// recognition locale. Updated via [Speaker.Configure].
	SampleRate   int
	LanguageCode string

	// AlternativeLanguageCodes are extra candidate locales for recognition.
	AlternativeLanguageCodes []string

	// SilenceThreshold and SilentFrameFloor tune the voice-activity gate.
	// Zero values use the audio package defaults.
	SilenceThreshold float64
	SilentFrameFloor int

	// RotationAge is the stream age at which rotation begins; RotationCheck
	// is how often age is polled; DrainWindow bounds how long a rotated-out
	// stream may keep delivering finals before the replacement's results are
	// let through.
	RotationAge   time.Duration
	RotationCheck time.Duration
	DrainWindow   time.Duration

	// SilenceFlush is the sentence aggregator's silence trigger.
	SilenceFlush time.Duration

	// RestartDelay is the pause before reopening after a transient stream
	// failure; ActivityWindow is how recent the last frame must be for the
	// reopen to happen at all.
	RestartDelay   time.Duration
	ActivityWindow time.Duration
}

func (c *SpeakerConfig) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.RotationAge <= 0 {
		c.RotationAge = DefaultRotationAge
	}
	if c.RotationCheck <= 0 {
		c.RotationCheck = DefaultRotationCheck
	}
	if c.DrainWindow <= 0 {
		c.DrainWindow = DefaultDrainWindow
	}
	if c.SilenceFlush <= 0 {
		c.SilenceFlush = SentenceSilenceThreshold
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.ActivityWindow <= 0 {
		c.ActivityWindow = DefaultActivityWindow
	}
}

type openResult struct {
	sess stt.SessionHandle
	err  error
}

type sessionEnd struct {
	sess stt.SessionHandle
	err  error
}

type configUpdate struct {
	sampleRate   int
	languageCode string
}

// Speaker drives one participant's audio through voice-activity gating, a
// rotating streaming STT session, and the sentence aggregator. All internal
// state belongs to a single worker goroutine; the exported methods only
// enqueue work, so they are safe to call from any goroutine.
type Speaker struct {
	cfg    SpeakerConfig
	logger *slog.Logger
	gate   *audio.EnergyGate

	ctx    context.Context
	cancel context.CancelFunc

	frames  chan []byte
	ctl     chan configUpdate
	opened  chan openResult
	ended   chan sessionEnd
	restart chan struct{}
	results chan stt.Result

	sentences chan Sentence
	interims  chan Interim
	errs      chan error

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	lastActivity atomic.Int64
	rotations    atomic.Int64

	// Worker-owned state below; never touched outside run().
	state           speakerState
	agg             aggregator
	pendingFrames   [][]byte
	live            stt.SessionHandle
	prevPumpDone    chan struct{}
	streamBorn      time.Time
	lastConfidence  float64
	restartDisabled bool
	silence         *time.Timer
	silenceArmed    bool
}

// NewSpeaker creates and starts a speaker stream. The stream is IDLE until
// the first frame arrives.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		cfg:    cfg,
		logger: cfg.Logger.With("session_id", cfg.SessionID, "participant_id", cfg.ParticipantID),
		gate:   audio.NewEnergyGate(cfg.SilenceThreshold, cfg.SilentFrameFloor),
		ctx:    ctx,
		cancel: cancel,

		frames:  make(chan []byte, frameQueueDepth),
		ctl:     make(chan configUpdate, 4),
		opened:  make(chan openResult, 1),
		ended:   make(chan sessionEnd, 4),
		restart: make(chan struct{}, 1),
		results: make(chan stt.Result, 64),

		sentences: make(chan Sentence, 32),
		interims:  make(chan Interim, 32),
		errs:      make(chan error, 8),

		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.touch()

	s.silence = time.NewTimer(time.Hour)
	if !s.silence.Stop() {
		<-s.silence.C
	}

	go s.run()
	return s
}

// WriteFrame enqueues one PCM frame. Frames are dropped when the worker's
// queue is full or the stream is stopped.
func (s *Speaker) WriteFrame(frame []byte) {
	s.touch()
	select {
	case s.frames <- frame:
	case <-s.stop:
	default:
		// Queue overflow. Dropping beats blocking the transport reader.
	}
}

// Configure replaces the stream's sample rate and primary language, tearing
// down any live STT session so the next frame opens a fresh one. It also
// clears a quota-induced restart ban.
func (s *Speaker) Configure(sampleRate int, languageCode string) {
	select {
	case s.ctl <- configUpdate{sampleRate: sampleRate, languageCode: languageCode}:
	case <-s.stop:
	}
}

// Stop terminates the stream: the live provider session is closed, the
// accumulator is flushed as a last sentence, and the worker exits. Safe to
// call more than once.
func (s *Speaker) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Sentences returns the stream of aggregated sentences.
func (s *Speaker) Sentences() <-chan Sentence { return s.sentences }

// Interims returns the stream of live preview fragments.
func (s *Speaker) Interims() <-chan Interim { return s.interims }

// Errors returns the stream of surfaced provider errors.
func (s *Speaker) Errors() <-chan error { return s.errs }

// Done is closed when the worker has exited.
func (s *Speaker) Done() <-chan struct{} { return s.done }

// LastActivity returns the time of the most recent inbound frame. The
// reaper uses this to destroy inactive streams.
func (s *Speaker) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Rotations returns how many stream rotations have completed.
func (s *Speaker) Rotations() int {
	return int(s.rotations.Load())
}

func (s *Speaker) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// ─── worker ──────────────────────────────────────────────────────────────────

func (s *Speaker) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.RotationCheck)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.frames:
			s.handleFrame(frame)
		case upd := <-s.ctl:
			s.handleConfigure(upd)
		case res := <-s.opened:
			s.handleOpened(res)
		case r := <-s.results:
			s.handleResult(r)
		case end := <-s.ended:
			s.handleSessionEnd(end)
		case <-s.restart:
			s.handleRestartNudge()
		case <-s.silence.C:
			s.silenceArmed = false
			s.flushSentence()
		case <-ticker.C:
			s.maybeRotate()
		case <-s.stop:
			s.teardown()
			return
		}
	}
}

func (s *Speaker) handleFrame(frame []byte) {
	switch s.state {
	case stateIdle:
		if s.restartDisabled {
			return
		}
		s.pendingFrames = append(s.pendingFrames, frame)
		s.state = stateStarting
		go s.openSession(s.streamConfig())

	case stateStarting:
		if len(s.pendingFrames) >= pendingFrameLimit {
			s.pendingFrames = s.pendingFrames[1:]
		}
		s.pendingFrames = append(s.pendingFrames, frame)

	case stateActive, stateRotating:
		if s.gate.Admit(frame) {
			if err := s.live.SendAudio(frame); err != nil {
				s.logger.Debug("send audio failed", "error", err)
			}
		}

	case stateStopped:
	}
}

func (s *Speaker) handleConfigure(upd configUpdate) {
	if upd.sampleRate > 0 {
		s.cfg.SampleRate = upd.sampleRate
	}
	if upd.languageCode != "" {
		s.cfg.LanguageCode = upd.languageCode
	}
	s.restartDisabled = false
	s.gate.Reset()

	hadLive := s.live != nil
	if hadLive {
		old := s.live
		s.live = nil
		go func() { _ = old.Close() }()
	}

	switch s.state {
	case stateActive, stateRotating:
		s.state = stateStarting
		go s.openSession(s.streamConfig())
	case stateStopped:
	default:
		// Idle or starting keeps its course; a starting open will use the
		// old config for one session and the next restart picks up the new
		// one, which is acceptable for a config race.
	}

	s.logger.Info("speaker reconfigured",
		"sample_rate", s.cfg.SampleRate,
		"language", s.cfg.LanguageCode)
}

func (s *Speaker) streamConfig() stt.StreamConfig {
	return stt.StreamConfig{
		SampleRateHertz:          s.cfg.SampleRate,
		LanguageCode:             s.cfg.LanguageCode,
		AlternativeLanguageCodes: s.cfg.AlternativeLanguageCodes,
		InterimResults:           true,
	}
}

// openSession runs off the worker. The result is delivered back into the
// worker loop.
func (s *Speaker) openSession(cfg stt.StreamConfig) {
	sess, err := s.cfg.Provider.StartStream(s.ctx, cfg)
	select {
	case s.opened <- openResult{sess: sess, err: err}:
	case <-s.stop:
		if sess != nil {
			_ = sess.Close()
		}
	}
}

func (s *Speaker) handleOpened(res openResult) {
	if s.state == stateStopped {
		if res.sess != nil {
			go func() { _ = res.sess.Close() }()
		}
		return
	}

	if res.err != nil {
		s.surfaceError(res.err)
		if resilience.IsQuotaExhausted(res.err) {
			s.restartDisabled = true
			s.logger.Warn("stream open hit quota, restarts disabled")
		}
		if s.state == stateRotating {
			// The old stream is still live; keep it and try rotating again
			// on the next check.
			s.state = stateActive
			return
		}
		s.pendingFrames = nil
		s.state = stateIdle
		return
	}

	switch s.state {
	case stateStarting:
		s.live = res.sess
		s.streamBorn = time.Now()
		s.drainPending()
		s.state = stateActive
		done := make(chan struct{})
		go s.pump(res.sess, s.prevPumpDone, done)
		s.prevPumpDone = done
		s.logger.Info("stt stream opened", "language", s.cfg.LanguageCode)

	case stateRotating:
		old := s.live
		s.live = res.sess
		s.streamBorn = time.Now()
		s.state = stateActive
		s.rotations.Add(1)

		done := make(chan struct{})
		go s.pump(res.sess, s.prevPumpDone, done)
		s.prevPumpDone = done

		// Half-close the old session so its tail finals flush; the new
		// pump's drain gate keeps ordering.
		go func() { _ = old.Close() }()
		s.logger.Info("stt stream rotated")

	default:
		// A session end or reconfigure moved the stream off this open while
		// it was in flight. The delivered session is surplus; close it so
		// its provider stream does not linger.
		go func() { _ = res.sess.Close() }()
		s.logger.Debug("surplus stt session closed", "state", s.state.String())
	}
}

func (s *Speaker) drainPending() {
	for _, frame := range s.pendingFrames {
		if s.gate.Admit(frame) {
			if err := s.live.SendAudio(frame); err != nil {
				break
			}
		}
	}
	s.pendingFrames = nil
}

// pump forwards one session's results into the worker. A replacement pump
// waits for its predecessor to finish, bounded by the drain window, so
// sentences stay in arrival order across rotations.
func (s *Speaker) pump(sess stt.SessionHandle, prevDone chan struct{}, done chan struct{}) {
	defer close(done)

	if prevDone != nil {
		drain := time.NewTimer(s.cfg.DrainWindow)
		select {
		case <-prevDone:
			drain.Stop()
		case <-drain.C:
		case <-s.stop:
			drain.Stop()
			return
		}
	}

	for r := range sess.Results() {
		select {
		case s.results <- r:
		case <-s.stop:
			return
		}
	}
	select {
	case s.ended <- sessionEnd{sess: sess, err: sess.Err()}:
	case <-s.stop:
	}
}

func (s *Speaker) handleResult(r stt.Result) {
	if !r.IsFinal {
		if interimNoise(r.Text, r.Confidence) {
			return
		}
		select {
		case s.interims <- Interim{
			Text:          r.Text,
			ParticipantID: s.cfg.ParticipantID,
			SpeakerName:   s.cfg.SpeakerName,
			SessionID:     s.cfg.SessionID,
		}:
		default:
			// Interims are previews; losing one is fine.
		}
		return
	}

	if r.Confidence > 0 {
		s.lastConfidence = r.Confidence
	}
	if text, ready := s.agg.add(r.Text); ready {
		s.emitSentence(text, r.LanguageCode)
	} else if s.agg.pending() {
		s.armSilence()
	}
}

func (s *Speaker) flushSentence() {
	if text, ok := s.agg.flush(); ok {
		s.emitSentence(text, "")
	}
}

func (s *Speaker) emitSentence(text, detectedLanguage string) {
	s.disarmSilence()

	lang := detectedLanguage
	if lang == "" {
		lang = s.cfg.LanguageCode
	}
	ev := Sentence{
		Text:           text,
		SourceLanguage: lang,
		ParticipantID:  s.cfg.ParticipantID,
		SpeakerName:    s.cfg.SpeakerName,
		SessionID:      s.cfg.SessionID,
		Confidence:     s.lastConfidence,
		EmittedAt:      time.Now(),
	}
	select {
	case s.sentences <- ev:
	case <-s.stop:
	}
}

func (s *Speaker) handleSessionEnd(end sessionEnd) {
	if end.sess != s.live || s.state == stateStopped {
		// A rotated-out stream finishing its drain; nothing to do.
		return
	}
	s.live = nil

	switch {
	case end.err == nil:
		// Clean end, typically the provider's duration cap beating the
		// rotation. Reopen like a transient failure.
		s.logger.Info("stt stream ended cleanly, scheduling reopen")
		s.scheduleRestart()

	case resilience.IsQuotaExhausted(end.err):
		s.surfaceError(end.err)
		s.restartDisabled = true
		s.state = stateIdle
		s.logger.Warn("stt stream hit quota, restarts disabled", "error", end.err)

	case resilience.IsTransient(end.err):
		s.surfaceError(end.err)
		s.logger.Warn("stt stream failed, scheduling reopen", "error", end.err)
		s.scheduleRestart()

	default:
		s.surfaceError(end.err)
		s.state = stateStopped
		s.logger.Error("stt stream failed permanently", "error", end.err)
	}
}

// scheduleRestart parks the stream in IDLE and nudges the worker after the
// restart delay. The nudge reopens only if frames arrived recently; a
// silent speaker simply stays idle until the next frame.
func (s *Speaker) scheduleRestart() {
	s.state = stateIdle
	time.AfterFunc(s.cfg.RestartDelay, func() {
		select {
		case s.restart <- struct{}{}:
		case <-s.stop:
		default:
		}
	})
}

func (s *Speaker) handleRestartNudge() {
	if s.state != stateIdle || s.restartDisabled {
		return
	}
	if time.Since(s.LastActivity()) > s.cfg.ActivityWindow {
		return
	}
	s.state = stateStarting
	go s.openSession(s.streamConfig())
}

func (s *Speaker) maybeRotate() {
	if s.state != stateActive {
		return
	}
	if time.Since(s.streamBorn) < s.cfg.RotationAge {
		return
	}
	s.state = stateRotating
	go s.openSession(s.streamConfig())
}

func (s *Speaker) surfaceError(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *Speaker) teardown() {
	s.state = stateStopped
	s.cancel()
	s.disarmSilence()

	if s.live != nil {
		live := s.live
		s.live = nil
		go func() { _ = live.Close() }()
	}

	// Flush the accumulator as a last sentence. The consumer may already be
	// gone, so this send must not block.
	if text, ok := s.agg.flush(); ok {
		lang := s.cfg.LanguageCode
		select {
		case s.sentences <- Sentence{
			Text:           text,
			SourceLanguage: lang,
			ParticipantID:  s.cfg.ParticipantID,
			SpeakerName:    s.cfg.SpeakerName,
			SessionID:      s.cfg.SessionID,
			Confidence:     s.lastConfidence,
			EmittedAt:      time.Now(),
		}:
		default:
		}
	}
	s.pendingFrames = nil
}

func (s *Speaker) armSilence() {
	s.disarmSilence()
	s.silence.Reset(s.cfg.SilenceFlush)
	s.silenceArmed = true
}

func (s *Speaker) disarmSilence() {
	if !s.silence.Stop() && s.silenceArmed {
		select {
		case <-s.silence.C:
		default:
		}
	}
	s.silenceArmed = false
}
