package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore journals utterances in PostgreSQL for hosted deployments.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS utterances (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			voice_id TEXT NOT NULL,
			segments INTEGER NOT NULL,
			native_segments INTEGER NOT NULL,
			chars INTEGER NOT NULL,
			synthetic_marks INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			first_audio_ms BIGINT NOT NULL,
			total_ms BIGINT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_utterances_created ON utterances (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init journal schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) RecordUtterance(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO utterances (id, session_id, voice_id, segments, native_segments,
		   chars, synthetic_marks, outcome, first_audio_ms, total_ms, text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.SessionID, rec.VoiceID, rec.Segments, rec.NativeSegments,
		rec.Chars, rec.SyntheticMarks, rec.Outcome, rec.FirstAudioMs, rec.TotalMs,
		rec.Text, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record utterance: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentUtterances(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, voice_id, segments, native_segments, chars,
		   synthetic_marks, outcome, first_audio_ms, total_ms, text, created_at
		 FROM utterances ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent utterances: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.SessionID, &r.VoiceID, &r.Segments,
			&r.NativeSegments, &r.Chars, &r.SyntheticMarks, &r.Outcome,
			&r.FirstAudioMs, &r.TotalMs, &r.Text, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan utterance row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate utterance rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
