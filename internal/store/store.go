package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// Sentinel errors for transcript store operations.
var (
	ErrNotFound   = errors.New("transcript not found")
	ErrLoadFailed = errors.New("load failed")
	ErrSaveFailed = errors.New("save failed")
)

// TranscriptStore persists the full transcript of each session. Save replaces
// the stored transcript as a whole; readers never observe a partial write.
type TranscriptStore interface {
	Load(ctx context.Context, sessionID string) (domain.Transcript, error)
	Save(ctx context.Context, t domain.Transcript) error
	List(ctx context.Context) ([]domain.TranscriptSummary, error)
	Close() error
}

// OpenTranscripts opens the store selected by cfg. An empty path falls back
// to the standard location under paths.
func OpenTranscripts(cfg config.StoreConfig, paths config.Paths, log *logging.Logger) (TranscriptStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		path := cfg.Path
		if path == "" {
			path = paths.Database()
		}
		db, err := Open(path, log)
		if err != nil {
			return nil, err
		}
		return NewSQLiteTranscripts(db), nil
	case "file":
		dir := cfg.Path
		if dir == "" {
			dir = paths.Sessions
		}
		return NewFileTranscripts(dir), nil
	case "memory":
		return NewMemoryTranscripts(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// WriteAtomic writes data to path through a temp file in the same directory
// followed by a rename, so the target is either the old or the new content.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func checkID(id string) error {
	if !domain.ValidSessionID(id) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSession, id)
	}
	return nil
}
