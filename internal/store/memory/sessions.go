package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// SessionStore holds conversation-extracted consultation records keyed by visitor id.
type SessionStore struct {
	mu      sync.RWMutex
	records map[string]trip.ConsultationRecord
}

// NewSessionStore constructs an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{records: make(map[string]trip.ConsultationRecord)}
}

// PutConsultation stores rec, replacing the previous record for the visitor.
func (s *SessionStore) PutConsultation(_ context.Context, rec trip.ConsultationRecord) error {
	if rec.VisitorID == "" {
		return fmt.Errorf("visitor id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.VisitorID] = rec
	return nil
}

// Consultation returns the record for visitorID.
func (s *SessionStore) Consultation(_ context.Context, visitorID string) (trip.ConsultationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[visitorID]
	if !ok {
		return trip.ConsultationRecord{}, fmt.Errorf("consultation %q: %w", visitorID, trip.ErrNotFound)
	}
	return rec, nil
}

// DeleteConsultations removes the listed visitors and reports how many existed.
func (s *SessionStore) DeleteConsultations(_ context.Context, visitorIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, id := range visitorIDs {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// ToggleStore keeps bot-enabled flags keyed by visitor id.
type ToggleStore struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewToggleStore constructs an empty ToggleStore.
func NewToggleStore() *ToggleStore {
	return &ToggleStore{flags: make(map[string]bool)}
}

// SetBotEnabled upserts the flag.
func (s *ToggleStore) SetBotEnabled(_ context.Context, visitorID string, enabled bool) error {
	if visitorID == "" {
		return fmt.Errorf("visitor id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[visitorID] = enabled
	return nil
}

// BotEnabled returns the stored flag or ErrNotFound.
func (s *ToggleStore) BotEnabled(_ context.Context, visitorID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled, ok := s.flags[visitorID]
	if !ok {
		return false, fmt.Errorf("toggle %q: %w", visitorID, trip.ErrNotFound)
	}
	return enabled, nil
}

// EventLog appends sync events to a bounded slice.
type EventLog struct {
	mu     sync.Mutex
	events []trip.SyncEvent
	limit  int
}

// NewEventLog keeps at most limit events; zero means 1000.
func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = 1000
	}
	return &EventLog{limit: limit}
}

// RecordEvent appends event, dropping the oldest entry once full.
func (l *EventLog) RecordEvent(_ context.Context, event trip.SyncEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) >= l.limit {
		l.events = l.events[1:]
	}
	l.events = append(l.events, event)
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (l *EventLog) Events() []trip.SyncEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]trip.SyncEvent(nil), l.events...)
}
