package meeting

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Directory is the session and participant store consulted on joins, on
// every audio binding, and by the fan-out stage when it computes target
// languages.
//
// Implementations must be safe for concurrent use.
type Directory interface {
	// CreateSession registers a session. Creating an existing ID overwrites
	// it; sessions are immutable once clients have joined, so this only
	// happens on operator error.
	CreateSession(ctx context.Context, s Session) error

	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (Session, error)

	// EndSession removes the session and all of its participants.
	EndSession(ctx context.Context, sessionID string) error

	// UpsertParticipant inserts or replaces a participant record.
	UpsertParticipant(ctx context.Context, p Participant) error

	// GetParticipant returns the participant or ErrParticipantNotFound.
	GetParticipant(ctx context.Context, sessionID, participantID string) (Participant, error)

	// ListParticipants returns all participants of a session in a stable
	// order. An unknown session yields an empty slice, not an error; rooms
	// may outlive their directory entries briefly during teardown.
	ListParticipants(ctx context.Context, sessionID string) ([]Participant, error)

	// SetSpeaking updates the is-speaking grant for a participant.
	SetSpeaking(ctx context.Context, sessionID, participantID string, speaking bool) error

	// SetHandRaised updates the hand-raise flag for a participant.
	SetHandRaised(ctx context.Context, sessionID, participantID string, raised bool) error

	// RemoveParticipant deletes a participant record.
	RemoveParticipant(ctx context.Context, sessionID, participantID string) error
}

type participantKey struct {
	session     string
	participant string
}

// MemoryDirectory is an in-process Directory. With AllowAdHoc set, lookups
// of unknown sessions create them on the fly, which is how ad-hoc rooms
// (join-before-create) work in development and small deployments.
type MemoryDirectory struct {
	mu           sync.RWMutex
	sessions     map[string]Session
	participants map[participantKey]Participant

	// AllowAdHoc makes GetSession materialize unknown sessions instead of
	// returning ErrSessionNotFound. Set before first use.
	AllowAdHoc bool

	// AdHocTTL bounds the lifetime of ad-hoc sessions. Zero means no expiry.
	AdHocTTL time.Duration
}

// Compile-time interface check.
var _ Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		sessions:     make(map[string]Session),
		participants: make(map[participantKey]Participant),
	}
}

// CreateSession implements [Directory].
func (d *MemoryDirectory) CreateSession(_ context.Context, s Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	d.sessions[s.ID] = s
	return nil
}

// GetSession implements [Directory]. Expired sessions return
// ErrSessionExpired.
func (d *MemoryDirectory) GetSession(_ context.Context, sessionID string) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[sessionID]
	if !ok {
		if !d.AllowAdHoc {
			return Session{}, ErrSessionNotFound
		}
		s = Session{ID: sessionID, CreatedAt: time.Now()}
		if d.AdHocTTL > 0 {
			s.ExpiresAt = s.CreatedAt.Add(d.AdHocTTL)
		}
		d.sessions[sessionID] = s
	}
	if s.Expired(time.Now()) {
		return Session{}, ErrSessionExpired
	}
	return s, nil
}

// EndSession implements [Directory].
func (d *MemoryDirectory) EndSession(_ context.Context, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, sessionID)
	for k := range d.participants {
		if k.session == sessionID {
			delete(d.participants, k)
		}
	}
	return nil
}

// UpsertParticipant implements [Directory].
func (d *MemoryDirectory) UpsertParticipant(_ context.Context, p Participant) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants[participantKey{session: p.SessionID, participant: p.ID}] = p
	return nil
}

// GetParticipant implements [Directory].
func (d *MemoryDirectory) GetParticipant(_ context.Context, sessionID, participantID string) (Participant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.participants[participantKey{session: sessionID, participant: participantID}]
	if !ok {
		return Participant{}, ErrParticipantNotFound
	}
	return p, nil
}

// ListParticipants implements [Directory]. Results are sorted by participant
// ID so fan-out target sets are deterministic.
func (d *MemoryDirectory) ListParticipants(_ context.Context, sessionID string) ([]Participant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Participant, 0, 8)
	for k, p := range d.participants {
		if k.session == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetSpeaking implements [Directory].
func (d *MemoryDirectory) SetSpeaking(_ context.Context, sessionID, participantID string, speaking bool) error {
	return d.update(sessionID, participantID, func(p *Participant) { p.IsSpeaking = speaking })
}

// SetHandRaised implements [Directory].
func (d *MemoryDirectory) SetHandRaised(_ context.Context, sessionID, participantID string, raised bool) error {
	return d.update(sessionID, participantID, func(p *Participant) { p.HandRaised = raised })
}

// RemoveParticipant implements [Directory].
func (d *MemoryDirectory) RemoveParticipant(_ context.Context, sessionID, participantID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.participants, participantKey{session: sessionID, participant: participantID})
	return nil
}

func (d *MemoryDirectory) update(sessionID, participantID string, fn func(*Participant)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := participantKey{session: sessionID, participant: participantID}
	p, ok := d.participants[k]
	if !ok {
		return ErrParticipantNotFound
	}
	fn(&p)
	d.participants[k] = p
	return nil
}
