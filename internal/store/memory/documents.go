// Package memory provides in-process implementations of the document, session,
// toggle and event stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// DocumentStore keeps confirmation documents in a map.
type DocumentStore struct {
	mu    sync.RWMutex
	docs  map[string]trip.ConfirmationDocument
	clock trip.Clock
}

// NewDocumentStore constructs a DocumentStore. clock stamps UpdatedAt on Update.
func NewDocumentStore(clock trip.Clock) *DocumentStore {
	return &DocumentStore{
		docs:  make(map[string]trip.ConfirmationDocument),
		clock: clock,
	}
}

// Get returns a copy of the document stored under id.
func (s *DocumentStore) Get(_ context.Context, id string) (trip.ConfirmationDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return trip.ConfirmationDocument{}, fmt.Errorf("document %q: %w", id, trip.ErrNotFound)
	}
	return doc.Clone(), nil
}

// Set stores doc under id, replacing any previous value.
func (s *DocumentStore) Set(_ context.Context, id string, doc trip.ConfirmationDocument) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = doc.Clone()
	return nil
}

// Update merges patch over the stored document. Absent ids are never created.
func (s *DocumentStore) Update(_ context.Context, id string, patch trip.DocumentPatch) (trip.ConfirmationDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return trip.ConfirmationDocument{}, fmt.Errorf("document %q: %w", id, trip.ErrNotFound)
	}
	updated := doc.Apply(patch, s.clock.Now())
	s.docs[id] = updated
	return updated.Clone(), nil
}

// Len reports how many documents are stored.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
