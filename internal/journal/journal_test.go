package journal

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestJournal opens a journal in a temp directory.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		j, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		j.Close()
	}

	j, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer j.Close()

	for _, table := range []string{"sessions", "events"} {
		var name string
		err := j.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := createTestJournal(t)
	require.NoError(t, j.verifyPragma("journal_mode", "wal"))
	require.NoError(t, j.verifyPragma("foreign_keys", "1"))
	require.NoError(t, j.verifyPragma("user_version", "1"))
	assert.Equal(t, 1, j.DB().Stats().MaxOpenConnections)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.DB().Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestSessionRecords(t *testing.T) {
	ctx := context.Background()
	j := createTestJournal(t)

	rec := SessionRecord{
		ID:            "s-1",
		RuleSetHash:   "hash",
		EngineVersion: "0.1.0",
		IRVersion:     "1",
		MaxFirings:    10,
		Label:         "colors",
	}
	require.NoError(t, j.WriteSession(ctx, rec))
	require.NoError(t, j.WriteSession(ctx, rec), "duplicate writes are ignored")

	got, err := j.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	rec.State = StateOpen
	assert.Equal(t, rec, got)

	require.NoError(t, j.CloseSession(ctx, "s-1", 42))
	got, err = j.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got.State)
	assert.Equal(t, int64(42), got.LastSeq)

	assert.Error(t, j.CloseSession(ctx, "missing", 1))

	_, err = j.ReadSession(ctx, "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	require.NoError(t, j.WriteSession(ctx, SessionRecord{ID: "a-0", RuleSetHash: "h", EngineVersion: "v", IRVersion: "1"}))
	list, err := j.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a-0", list[0].ID)
}

func TestListSessions_EmptyNotNil(t *testing.T) {
	list, err := createTestJournal(t).ListSessions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
