package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/chatrelay/internal/domain"
)

// SQLiteTranscripts implements TranscriptStore backed by SQLite.
type SQLiteTranscripts struct {
	db *DB
}

// NewSQLiteTranscripts creates a transcript store using the given database.
func NewSQLiteTranscripts(db *DB) *SQLiteTranscripts {
	return &SQLiteTranscripts{db: db}
}

// Load returns the persisted transcript for sessionID.
func (s *SQLiteTranscripts) Load(ctx context.Context, sessionID string) (domain.Transcript, error) {
	var updatedAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT updated_at FROM transcripts WHERE session_id = ?`, sessionID,
	).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transcript{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, sessionID, err)
	}

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT role, content, timestamp, partial FROM turns WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, sessionID, err)
	}
	defer rows.Close()

	tr := domain.Transcript{SessionID: sessionID, UpdatedAt: parseTime(updatedAt), Turns: []domain.Turn{}}
	for rows.Next() {
		var role, content, ts string
		var partial bool
		if err := rows.Scan(&role, &content, &ts, &partial); err != nil {
			return domain.Transcript{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, sessionID, err)
		}
		tr.Turns = append(tr.Turns, domain.Turn{
			Role:      domain.Role(role),
			Content:   content,
			Timestamp: parseTime(ts),
			Partial:   partial,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.Transcript{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, sessionID, err)
	}
	return tr, nil
}

// Save replaces the stored transcript in a single transaction.
func (s *SQLiteTranscripts) Save(ctx context.Context, t domain.Transcript) error {
	if err := checkID(t.SessionID); err != nil {
		return err
	}
	updatedAt := t.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = domain.Now()
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, t.SessionID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transcripts (session_id, updated_at) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		t.SessionID, formatTime(updatedAt),
	); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, t.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, t.SessionID); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, t.SessionID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO turns (session_id, seq, role, content, timestamp, partial) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, t.SessionID, err)
	}
	defer stmt.Close()

	for i, turn := range t.Turns {
		if _, err := stmt.ExecContext(ctx, t.SessionID, i, string(turn.Role), turn.Content, formatTime(turn.Timestamp), turn.Partial); err != nil {
			return fmt.Errorf("%w: %s: turn %d: %v", ErrSaveFailed, t.SessionID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, t.SessionID, err)
	}
	return nil
}

// List returns a summary of every persisted transcript, most recent first.
func (s *SQLiteTranscripts) List(ctx context.Context) ([]domain.TranscriptSummary, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT t.session_id, t.updated_at, COUNT(u.id)
		FROM transcripts t LEFT JOIN turns u ON u.session_id = t.session_id
		GROUP BY t.session_id, t.updated_at
		ORDER BY t.updated_at DESC, t.session_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	defer rows.Close()

	var out []domain.TranscriptSummary
	for rows.Next() {
		var sum domain.TranscriptSummary
		var updatedAt string
		if err := rows.Scan(&sum.SessionID, &updatedAt, &sum.Turns); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		sum.UpdatedAt = parseTime(updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteTranscripts) Close() error {
	return s.db.Close()
}

// timeLayout is fixed width so stored values sort chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
