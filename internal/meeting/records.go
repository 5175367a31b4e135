package meeting

import (
	"context"
	"sync"
	"time"
)

// TranslationRecord is one append-only row of the session transcript: a
// single sentence rendered into a single target language.
type TranslationRecord struct {
	SessionID        string
	ParticipantID    string
	OriginalText     string
	OriginalLanguage string
	TargetLanguage   string
	TranslatedText   string
	Confidence       float64
	Timestamp        time.Time
}

// RecordStore persists translation records. Persistence sits outside the
// broadcast critical path, so implementations may be slow without stalling
// delivery.
//
// Implementations must be safe for concurrent use.
type RecordStore interface {
	// Append writes one record.
	Append(ctx context.Context, rec TranslationRecord) error

	// ListBySession returns records for a session in chronological order.
	// limit <= 0 means no limit.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]TranslationRecord, error)
}

// MemoryRecords is an in-process RecordStore for development and tests.
type MemoryRecords struct {
	mu      sync.RWMutex
	records []TranslationRecord
}

// Compile-time interface check.
var _ RecordStore = (*MemoryRecords)(nil)

// NewMemoryRecords creates an empty MemoryRecords.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{}
}

// Append implements [RecordStore].
func (m *MemoryRecords) Append(_ context.Context, rec TranslationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	m.records = append(m.records, rec)
	return nil
}

// ListBySession implements [RecordStore].
func (m *MemoryRecords) ListBySession(_ context.Context, sessionID string, limit int) ([]TranslationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TranslationRecord, 0, 16)
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
