package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relay.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"transcripts", "turns"} {
		var name string
		err := db.sql.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

// --- TranscriptStore contract, run against every implementation ---

func stores(t *testing.T) map[string]TranscriptStore {
	t.Helper()
	return map[string]TranscriptStore{
		"sqlite": NewSQLiteTranscripts(testDB(t)),
		"file":   NewFileTranscripts(t.TempDir()),
		"memory": NewMemoryTranscripts(),
	}
}

func sampleTurns() []domain.Turn {
	ts := time.Date(2025, 5, 4, 9, 30, 0, 123456000, time.UTC)
	return []domain.Turn{
		{Role: domain.RoleUser, Content: "Szia! Mi a helyzet?", Timestamp: ts},
		{Role: domain.RoleAssistant, Content: "1. egy\n2. kettő", Timestamp: ts.Add(2 * time.Second)},
		{Role: domain.RoleUser, Content: "és?", Timestamp: ts.Add(5 * time.Second)},
		{Role: domain.RoleAssistant, Content: "fél vál", Timestamp: ts.Add(6 * time.Second), Partial: true},
	}
}

func TestTranscripts_LoadMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestTranscripts_SaveLoadRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			turns := sampleTurns()
			require.NoError(t, s.Save(ctx, domain.Transcript{SessionID: "s1", Turns: turns}))

			got, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "s1", got.SessionID)
			assert.Equal(t, turns, got.Turns)
			assert.False(t, got.UpdatedAt.IsZero())
		})
	}
}

func TestTranscripts_SaveReplacesWholeTranscript(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			turns := sampleTurns()
			require.NoError(t, s.Save(ctx, domain.Transcript{SessionID: "s1", Turns: turns}))
			require.NoError(t, s.Save(ctx, domain.Transcript{SessionID: "s1", Turns: turns[:2]}))

			got, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, turns[:2], got.Turns)
		})
	}
}

func TestTranscripts_EmptyTranscript(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, domain.Transcript{SessionID: "empty"}))
			got, err := s.Load(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, got.Turns)
		})
	}
}

func TestTranscripts_TimestamplessTurns(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			turns := []domain.Turn{{Role: domain.RoleUser, Content: "legacy"}}
			require.NoError(t, s.Save(ctx, domain.Transcript{SessionID: "old", Turns: turns}))
			got, err := s.Load(ctx, "old")
			require.NoError(t, err)
			require.Len(t, got.Turns, 1)
			assert.True(t, got.Turns[0].Timestamp.IsZero())
		})
	}
}

func TestTranscripts_RejectsUnsafeIDs(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Save(context.Background(), domain.Transcript{SessionID: "../escape"})
			assert.ErrorIs(t, err, domain.ErrInvalidSession)
		})
	}
}

func TestTranscripts_List(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			newer := older.Add(time.Hour)
			require.NoError(t, s.Save(ctx, domain.Transcript{SessionID: "a", UpdatedAt: older, Turns: sampleTurns()[:1]}))
			require.NoError(t, s.Save(ctx, domain.Transcript{SessionID: "b", UpdatedAt: newer, Turns: sampleTurns()}))

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "b", list[0].SessionID)
			assert.Equal(t, 4, list[0].Turns)
			assert.Equal(t, "a", list[1].SessionID)
			assert.Equal(t, 1, list[1].Turns)
		})
	}
}

func TestTranscripts_ConcurrentSaves(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			turns := sampleTurns()
			var wg sync.WaitGroup
			for i := range 8 {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					assert.NoError(t, s.Save(ctx, domain.Transcript{SessionID: "shared", Turns: turns[:n%4+1]}))
				}(i)
			}
			wg.Wait()

			got, err := s.Load(ctx, "shared")
			require.NoError(t, err)
			// Whichever save won, the transcript is one of the written versions in full.
			require.NotEmpty(t, got.Turns)
			assert.Equal(t, turns[:len(got.Turns)], got.Turns)
		})
	}
}

func TestMemoryTranscripts_LoadReturnsCopy(t *testing.T) {
	s := NewMemoryTranscripts()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, domain.Transcript{SessionID: "s1", Turns: sampleTurns()}))

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	got.Turns[0].Content = "changed"

	again, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Szia! Mi a helyzet?", again.Turns[0].Content)
}

func TestFileTranscripts_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s := NewFileTranscripts(dir)
	require.NoError(t, s.Save(context.Background(), domain.Transcript{SessionID: "s1", Turns: sampleTurns()}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s1.json", entries[0].Name())
}

func TestFileTranscripts_ListMissingDir(t *testing.T) {
	s := NewFileTranscripts(filepath.Join(t.TempDir(), "nope"))
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.bin")
	require.NoError(t, WriteAtomic(path, []byte("one"), 0o600))
	require.NoError(t, WriteAtomic(path, []byte("two"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestOpenTranscripts(t *testing.T) {
	tmp := t.TempDir()
	paths := config.Paths{Data: filepath.Join(tmp, "data"), Sessions: filepath.Join(tmp, "sessions")}
	log := logging.New(nil, "silent")

	for _, driver := range []string{"sqlite", "file", "memory"} {
		t.Run(driver, func(t *testing.T) {
			s, err := OpenTranscripts(config.StoreConfig{Driver: driver}, paths, log)
			require.NoError(t, err)
			defer s.Close()
			require.NoError(t, s.Save(context.Background(), domain.Transcript{SessionID: "x", Turns: sampleTurns()}))
		})
	}

	_, err := OpenTranscripts(config.StoreConfig{Driver: "mongo"}, paths, log)
	assert.Error(t, err)
}
