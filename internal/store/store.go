// internal/store/store.go

// Package store archives finished sessions and their attempt histories to
// PostgreSQL. The archive is optional and write-mostly: the live loop keeps
// its history in memory and hands it over here once, when the session ends.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// DBPool abstracts pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides the PostgreSQL-backed session archive.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    task        TEXT NOT NULL,
    final_phase TEXT NOT NULL,
    result      TEXT NOT NULL DEFAULT '',
    iterations  INT NOT NULL DEFAULT 0,
    archived_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS attempts (
    id            TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    iteration     INT NOT NULL,
    phase         TEXT NOT NULL,
    element_label TEXT NOT NULL DEFAULT '',
    selector      TEXT NOT NULL DEFAULT '',
    action_kind   TEXT NOT NULL DEFAULT '',
    outcome       TEXT NOT NULL,
    error         TEXT NOT NULL DEFAULT '',
    error_code    TEXT NOT NULL DEFAULT '',
    retry_count   INT NOT NULL DEFAULT 0,
    page_url      TEXT NOT NULL DEFAULT '',
    recorded_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_session_idx ON attempts (session_id, recorded_at);
`

// EnsureSchema creates the archive tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// SessionSummary is the archived header row of one session.
type SessionSummary struct {
	ID         string
	Task       string
	FinalPhase string
	Result     string
	Iterations int
	ArchivedAt time.Time
}

// ArchiveSession writes the session header and its full attempt history in
// one transaction. Archiving a session that is already present replaces its
// header and attempt rows.
func (s *Store) ArchiveSession(ctx context.Context, summary SessionSummary, records []schemas.AttemptRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	const insertSession = `
        INSERT INTO sessions (id, task, final_phase, result, iterations, archived_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            final_phase = EXCLUDED.final_phase,
            result = EXCLUDED.result,
            iterations = EXCLUDED.iterations,
            archived_at = EXCLUDED.archived_at;
    `
	archivedAt := summary.ArchivedAt
	if archivedAt.IsZero() {
		archivedAt = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx, insertSession, summary.ID, summary.Task, summary.FinalPhase, summary.Result, summary.Iterations, archivedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert session %s: %w", summary.ID, err)
	}

	// Re-archiving replaces: the header upserts, so the attempt rows from any
	// earlier archive of this session must go before the copy.
	if _, err := tx.Exec(ctx, `DELETE FROM attempts WHERE session_id = $1`, summary.ID); err != nil {
		return fmt.Errorf("failed to clear archived attempts for session %s: %w", summary.ID, err)
	}

	if len(records) > 0 {
		if err := s.copyAttempts(ctx, tx, records); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Session archived.", zap.String("session_id", summary.ID), zap.Int("attempts", len(records)))
	return nil
}

func (s *Store) copyAttempts(ctx context.Context, tx pgx.Tx, records []schemas.AttemptRecord) error {
	rows := make([][]interface{}, len(records))
	for i, rec := range records {
		rows[i] = []interface{}{
			rec.ID, rec.SessionID, rec.Iteration, string(rec.Phase),
			rec.ElementLabel, rec.Selector, string(rec.ActionKind),
			string(rec.Outcome), rec.Error, rec.ErrorCode,
			rec.RetryCount, rec.PageURL, rec.Timestamp.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"attempts"},
		[]string{"id", "session_id", "iteration", "phase", "element_label", "selector", "action_kind", "outcome", "error", "error_code", "retry_count", "page_url", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy attempts: %w", err)
	}
	if int(copyCount) != len(records) {
		return fmt.Errorf("mismatch in copied attempts count: expected %d, got %d", len(records), copyCount)
	}
	return nil
}

// AttemptsBySession reads an archived session's history back in recorded
// order.
func (s *Store) AttemptsBySession(ctx context.Context, sessionID string) ([]schemas.AttemptRecord, error) {
	const query = `
        SELECT id, iteration, phase, element_label, selector, action_kind, outcome, error, error_code, retry_count, page_url, recorded_at
        FROM attempts
        WHERE session_id = $1
        ORDER BY recorded_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var records []schemas.AttemptRecord
	for rows.Next() {
		var (
			rec        schemas.AttemptRecord
			phase      string
			actionKind string
			outcome    string
		)
		if err := rows.Scan(&rec.ID, &rec.Iteration, &phase, &rec.ElementLabel, &rec.Selector, &actionKind, &outcome, &rec.Error, &rec.ErrorCode, &rec.RetryCount, &rec.PageURL, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		rec.SessionID = sessionID
		rec.Phase = schemas.Phase(phase)
		rec.ActionKind = schemas.ActionKind(actionKind)
		rec.Outcome = schemas.Outcome(outcome)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating attempt rows: %w", err)
	}
	return records, nil
}
