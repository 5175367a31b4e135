// Package postgres provides a PostgreSQL-backed [meeting.RecordStore].
//
// Usage:
//
//	pool, err := pgxpool.New(ctx, dsn)
//	if err != nil { … }
//	store := postgres.NewRecordStore(pool)
//	if err := store.Migrate(ctx); err != nil { … }
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lingostream/lingostream/internal/meeting"
)

// Schema is the SQL DDL for the translation_records table. Execute it via
// [RecordStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS translation_records (
    id                BIGSERIAL    PRIMARY KEY,
    session_id        TEXT         NOT NULL,
    participant_id    TEXT         NOT NULL DEFAULT '',
    original_text     TEXT         NOT NULL,
    original_language TEXT         NOT NULL DEFAULT '',
    target_language   TEXT         NOT NULL,
    translated_text   TEXT         NOT NULL,
    confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
    timestamp         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_translation_records_session
    ON translation_records (session_id);

CREATE INDEX IF NOT EXISTS idx_translation_records_session_timestamp
    ON translation_records (session_id, timestamp);
`

// DB is the database interface used by [RecordStore]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RecordStore is a [meeting.RecordStore] backed by PostgreSQL.
type RecordStore struct {
	db DB
}

// Compile-time interface check.
var _ meeting.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a RecordStore over the given connection or pool.
// The caller is responsible for calling [RecordStore.Migrate] before issuing
// queries.
func NewRecordStore(db DB) *RecordStore {
	return &RecordStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the translation_records table
// and indexes if they do not already exist.
func (s *RecordStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("record store: migrate: %w", err)
	}
	return nil
}

// Append implements [meeting.RecordStore].
func (s *RecordStore) Append(ctx context.Context, rec meeting.TranslationRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	const q = `
		INSERT INTO translation_records
		    (session_id, participant_id, original_text, original_language,
		     target_language, translated_text, confidence, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.Exec(ctx, q,
		rec.SessionID,
		rec.ParticipantID,
		rec.OriginalText,
		rec.OriginalLanguage,
		rec.TargetLanguage,
		rec.TranslatedText,
		rec.Confidence,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record store: append: %w", err)
	}
	return nil
}

// ListBySession implements [meeting.RecordStore]. Records come back in
// chronological order, oldest first.
func (s *RecordStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]meeting.TranslationRecord, error) {
	q := `
		SELECT session_id, participant_id, original_text, original_language,
		       target_language, translated_text, confidence, timestamp
		FROM   translation_records
		WHERE  session_id = $1
		ORDER  BY timestamp, id`
	args := []any{sessionID}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("record store: list: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (meeting.TranslationRecord, error) {
		var rec meeting.TranslationRecord
		err := row.Scan(
			&rec.SessionID,
			&rec.ParticipantID,
			&rec.OriginalText,
			&rec.OriginalLanguage,
			&rec.TargetLanguage,
			&rec.TranslatedText,
			&rec.Confidence,
			&rec.Timestamp,
		)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("record store: scan rows: %w", err)
	}
	if records == nil {
		records = []meeting.TranslationRecord{}
	}
	return records, nil
}
