package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/soyeahso/chatrelay/internal/domain"
)

// FileTranscripts implements TranscriptStore as one JSON file per session.
type FileTranscripts struct {
	root string
}

// NewFileTranscripts creates a file-backed store rooted at dir.
func NewFileTranscripts(dir string) *FileTranscripts {
	return &FileTranscripts{root: dir}
}

func (s *FileTranscripts) path(id string) string {
	return filepath.Join(s.root, id+".json")
}

// Load reads the transcript file for sessionID.
func (s *FileTranscripts) Load(_ context.Context, sessionID string) (domain.Transcript, error) {
	if err := checkID(sessionID); err != nil {
		return domain.Transcript{}, err
	}
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Transcript{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return domain.Transcript{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, sessionID, err)
	}

	var tr domain.Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return domain.Transcript{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, sessionID, err)
	}
	if tr.SessionID == "" {
		tr.SessionID = sessionID
	}
	if tr.Turns == nil {
		tr.Turns = []domain.Turn{}
	}
	return tr, nil
}

// Save writes the transcript to a temp file and renames it into place.
func (s *FileTranscripts) Save(_ context.Context, t domain.Transcript) error {
	if err := checkID(t.SessionID); err != nil {
		return err
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = domain.Now()
	}
	if t.Turns == nil {
		t.Turns = []domain.Turn{}
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, t.SessionID, err)
	}
	if err := WriteAtomic(s.path(t.SessionID), data, 0o600); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, t.SessionID, err)
	}
	return nil
}

// List summarizes every transcript file, most recent first.
func (s *FileTranscripts) List(ctx context.Context) ([]domain.TranscriptSummary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	var out []domain.TranscriptSummary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		tr, err := s.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		out = append(out, domain.TranscriptSummary{SessionID: tr.SessionID, Turns: len(tr.Turns), UpdatedAt: tr.UpdatedAt})
	}
	sortSummaries(out)
	return out, nil
}

// Close is a no-op.
func (s *FileTranscripts) Close() error { return nil }

func sortSummaries(s []domain.TranscriptSummary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].SessionID < s[j].SessionID
	})
}
