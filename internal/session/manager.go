// Package session tracks connected speech hosts. Each websocket client
// gets one session carrying its voice and prosody preferences. Sessions
// share a single speaker: a Speak from any session preempts the rest.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID             string    `json:"session_id"`
	ClientName     string    `json:"client_name"`
	Status         Status    `json:"status"`
	VoiceID        string    `json:"voice_id"`
	Rate           int       `json:"rate"`
	Volume         int       `json:"volume"`
	Pitch          int       `json:"pitch"`
	Utterances     int       `json:"utterances"`
	Cancellations  int       `json:"cancellations"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	retention         time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout, retention time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
		retention:         retention,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a session seeded with the daemon's current voice and
// prosody defaults.
func (m *Manager) Create(clientName, voiceID string, rate, volume, pitch int) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		ClientName:     clientName,
		Status:         StatusActive,
		VoiceID:        voiceID,
		Rate:           rate,
		Volume:         volume,
		Pitch:          pitch,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Update applies fn to the live session under the lock.
func (m *Manager) Update(sessionID string, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	fn(s)
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// CountUtterance bumps the session's spoken-utterance counter.
func (m *Manager) CountUtterance(sessionID string) {
	_ = m.Update(sessionID, func(s *Session) { s.Utterances++ })
}

// CountCancel bumps the session's cancellation counter.
func (m *Manager) CountCancel(sessionID string) {
	_ = m.Update(sessionID, func(s *Session) { s.Cancellations++ })
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	endLocked(s)
	return clone(s), nil
}

// List returns every session, newest first, including recently ended ones
// still inside the retention window.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, clone(s))
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartedAt.After(out[i].StartedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// StartJanitor expires inactive sessions and drops ended ones past the
// retention window.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		switch s.Status {
		case StatusActive:
			if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
				continue
			}
			endLocked(s)
			expired = append(expired, clone(s))
		case StatusEnded:
			if now.Sub(s.EndedAt) >= m.retention {
				delete(m.sessions, id)
			}
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func endLocked(s *Session) {
	now := time.Now().UTC()
	s.Status = StatusEnded
	s.LastActivityAt = now
	s.EndedAt = now
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
