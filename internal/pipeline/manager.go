package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lingostream/lingostream/pkg/provider/stt"
)

// Reaper defaults: a speaker silent for half a minute has walked away from
// the microphone; holding its provider stream open just burns quota.
const (
	DefaultReapInterval = 30 * time.Second
	DefaultIdleTimeout  = 30 * time.Second
)

// Sink consumes the events every speaker stream produces. The manager runs
// one dispatch goroutine per stream, so implementations see events from one
// speaker in order but from different speakers concurrently.
type Sink interface {
	// HandleSentence processes one aggregated sentence (translate,
	// broadcast, persist).
	HandleSentence(ctx context.Context, sentence Sentence)

	// HandleInterim relays a live preview fragment.
	HandleInterim(interim Interim)

	// HandleError reports a surfaced speaker stream error.
	HandleError(sessionID, participantID string, err error)
}

type streamKey struct {
	session     string
	participant string
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Provider opens STT sessions for new speaker streams.
	Provider stt.Provider

	// Sink receives all stream events.
	Sink Sink

	// Logger receives structured events. Nil falls back to slog.Default.
	Logger *slog.Logger

	// SpeakerDefaults seeds every new speaker's tuning knobs (rotation,
	// gate thresholds, alternative languages). Identity fields and Provider
	// are overwritten per stream.
	SpeakerDefaults SpeakerConfig

	// ReapInterval is how often idle streams are scanned for; IdleTimeout
	// is the inactivity age at which a stream is destroyed.
	ReapInterval time.Duration
	IdleTimeout  time.Duration
}

// Manager owns one Speaker per (session, participant). Streams are created
// lazily on first use and destroyed on stop, on inactivity, or with their
// session. Safe for concurrent use.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu      sync.Mutex
	streams map[streamKey]*Speaker

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a Manager and starts its reaper.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}

	m := &Manager{
		cfg:     cfg,
		logger:  cfg.Logger,
		streams: make(map[streamKey]*Speaker),
		stop:    make(chan struct{}),
	}

	m.wg.Add(1)
	go m.reaper()
	return m
}

// GetOrCreate returns the existing stream for (sessionID, participantID) or
// constructs a new one.
func (m *Manager) GetOrCreate(sessionID, participantID, speakerName string) *Speaker {
	key := streamKey{session: sessionID, participant: participantID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sp, ok := m.streams[key]; ok {
		return sp
	}

	cfg := m.cfg.SpeakerDefaults
	cfg.SessionID = sessionID
	cfg.ParticipantID = participantID
	cfg.SpeakerName = speakerName
	cfg.Provider = m.cfg.Provider
	cfg.Logger = m.logger

	sp := NewSpeaker(cfg)
	m.streams[key] = sp

	m.wg.Add(1)
	go m.dispatch(sp)

	m.logger.Info("speaker stream created",
		"session_id", sessionID,
		"participant_id", participantID)
	return sp
}

// Get returns the stream for (sessionID, participantID), if any.
func (m *Manager) Get(sessionID, participantID string) (*Speaker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.streams[streamKey{session: sessionID, participant: participantID}]
	return sp, ok
}

// Len returns the number of live streams.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// StopStream stops and removes one stream. A no-op for unknown keys.
func (m *Manager) StopStream(sessionID, participantID string) {
	key := streamKey{session: sessionID, participant: participantID}

	m.mu.Lock()
	sp, ok := m.streams[key]
	if ok {
		delete(m.streams, key)
	}
	m.mu.Unlock()

	if ok {
		sp.Stop()
		m.logger.Info("speaker stream stopped",
			"session_id", sessionID,
			"participant_id", participantID)
	}
}

// DestroySession stops every stream belonging to a session.
func (m *Manager) DestroySession(sessionID string) {
	m.mu.Lock()
	var victims []*Speaker
	for key, sp := range m.streams {
		if key.session == sessionID {
			victims = append(victims, sp)
			delete(m.streams, key)
		}
	}
	m.mu.Unlock()

	for _, sp := range victims {
		sp.Stop()
	}
	if len(victims) > 0 {
		m.logger.Info("session streams destroyed",
			"session_id", sessionID,
			"count", len(victims))
	}
}

// Destroy stops the reaper and every stream. Called on shutdown.
func (m *Manager) Destroy() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	victims := make([]*Speaker, 0, len(m.streams))
	for key, sp := range m.streams {
		victims = append(victims, sp)
		delete(m.streams, key)
	}
	m.mu.Unlock()

	for _, sp := range victims {
		sp.Stop()
	}
	m.wg.Wait()
}

// reaper periodically destroys streams with no recent frames.
func (m *Manager) reaper() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapIdle()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var victims []*Speaker
	var keys []streamKey
	for key, sp := range m.streams {
		if sp.LastActivity().Before(cutoff) {
			victims = append(victims, sp)
			keys = append(keys, key)
			delete(m.streams, key)
		}
	}
	m.mu.Unlock()

	for i, sp := range victims {
		sp.Stop()
		m.logger.Info("idle speaker stream reaped",
			"session_id", keys[i].session,
			"participant_id", keys[i].participant)
	}
}

// dispatch forwards one stream's events to the sink until the stream ends,
// then drains any sentence flushed during teardown.
func (m *Manager) dispatch(sp *Speaker) {
	defer m.wg.Done()

	ctx := context.Background()
	for {
		select {
		case ev := <-sp.Sentences():
			m.cfg.Sink.HandleSentence(ctx, ev)
		case iv := <-sp.Interims():
			m.cfg.Sink.HandleInterim(iv)
		case err := <-sp.Errors():
			m.cfg.Sink.HandleError(sp.cfg.SessionID, sp.cfg.ParticipantID, err)
		case <-sp.Done():
			for {
				select {
				case ev := <-sp.Sentences():
					m.cfg.Sink.HandleSentence(ctx, ev)
					continue
				default:
				}
				return
			}
		}
	}
}
