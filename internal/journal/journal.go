// Package journal persists per-utterance records: what was spoken (voice,
// segment mix, timings, outcome), optionally with redacted text. Backends
// cover postgres for hosted deployments, sqlite for the desktop default,
// and an in-process ring for ephemeral runs.
package journal

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("journal: store closed")

// Outcome values for a finished utterance.
const (
	OutcomeDone      = "done"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Record is one utterance's journal row.
type Record struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	VoiceID        string    `json:"voice_id"`
	Segments       int       `json:"segments"`
	NativeSegments int       `json:"native_segments"`
	Chars          int       `json:"chars"`
	SyntheticMarks int       `json:"synthetic_marks"`
	Outcome        string    `json:"outcome"`
	FirstAudioMs   int64     `json:"first_audio_ms"`
	TotalMs        int64     `json:"total_ms"`
	Text           string    `json:"text,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists and retrieves utterance records.
type Store interface {
	RecordUtterance(ctx context.Context, rec Record) error
	RecentUtterances(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
