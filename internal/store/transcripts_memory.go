package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/chatrelay/internal/domain"
)

// MemoryTranscripts is an in-memory TranscriptStore, used in tests and when
// durability is not wanted.
type MemoryTranscripts struct {
	mu    sync.RWMutex
	items map[string]domain.Transcript
}

// NewMemoryTranscripts creates an empty in-memory store.
func NewMemoryTranscripts() *MemoryTranscripts {
	return &MemoryTranscripts{items: make(map[string]domain.Transcript)}
}

func (s *MemoryTranscripts) Load(_ context.Context, sessionID string) (domain.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.items[sessionID]
	if !ok {
		return domain.Transcript{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	tr.Turns = append([]domain.Turn{}, tr.Turns...)
	return tr, nil
}

func (s *MemoryTranscripts) Save(_ context.Context, t domain.Transcript) error {
	if err := checkID(t.SessionID); err != nil {
		return err
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = domain.Now()
	}
	t.Turns = append([]domain.Turn{}, t.Turns...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[t.SessionID] = t
	return nil
}

func (s *MemoryTranscripts) List(_ context.Context) ([]domain.TranscriptSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TranscriptSummary, 0, len(s.items))
	for _, tr := range s.items {
		out = append(out, domain.TranscriptSummary{SessionID: tr.SessionID, Turns: len(tr.Turns), UpdatedAt: tr.UpdatedAt})
	}
	sortSummaries(out)
	return out, nil
}

func (s *MemoryTranscripts) Close() error { return nil }
