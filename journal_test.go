package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := openJournal(ctx, path)
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, journalExists(path))

	t0 := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.StartRun(ctx, "a", t0, "/logs/a.log"))
	require.NoError(t, j.RecordTable(ctx, "a", &TableReport{Table: "users", State: TableDone, RowCount: 3, InsertedCount: 3}, t0.Add(time.Second)))
	require.NoError(t, j.RecordTable(ctx, "a", &TableReport{
		Table: "cards", State: TableDone, RowCount: 2, InsertedCount: 1,
		FailedRows: []RowFailure{{RowIndex: 1, Err: ErrRowInsert}},
	}, t0.Add(2*time.Second)))
	require.NoError(t, j.RecordTable(ctx, "a", &TableReport{
		Table: "seo", State: TableFailed, Err: ErrTableExtraction,
	}, t0.Add(3*time.Second)))
	require.NoError(t, j.FinishRun(ctx, "a", RunCompletedWithErrors, t0.Add(4*time.Second)))

	done, err := j.CompletedTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"users": true}, done)

	// A later failure of users supersedes the earlier success.
	t1 := t0.Add(time.Hour)
	require.NoError(t, j.StartRun(ctx, "b", t1, "/logs/b.log"))
	require.NoError(t, j.RecordTable(ctx, "b", &TableReport{Table: "users", State: TableFailed, Err: errors.New("boom")}, t1))
	require.NoError(t, j.RecordTable(ctx, "b", &TableReport{Table: "seo", State: TableDone}, t1))

	done, err = j.CompletedTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"seo": true}, done)

	runs, err := j.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "b", runs[0].RunID)
	assert.Equal(t, string(RunRunning), runs[0].State)
	assert.True(t, runs[0].Finished.IsZero())

	first := runs[1]
	assert.True(t, first.Started.Equal(t0), "Started = %s", first.Started)
	assert.True(t, first.Finished.Equal(t0.Add(4*time.Second)), "Finished = %s", first.Finished)
	first.Started, first.Finished = time.Time{}, time.Time{}
	assert.Equal(t, journalRun{
		RunID:    "a",
		State:    string(RunCompletedWithErrors),
		LogPath:  "/logs/a.log",
		Tables:   3,
		Inserted: 4,
		Failed:   1,
	}, first)

	limited, err := j.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJournalDuplicateRun(t *testing.T) {
	ctx := context.Background()
	j, err := openJournal(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.StartRun(ctx, "same", time.Now(), ""))
	assert.Error(t, j.StartRun(ctx, "same", time.Now(), ""))
}

func TestJournalExists(t *testing.T) {
	err := journalExists(filepath.Join(t.TempDir(), "journal.db"))
	assert.ErrorIs(t, err, errNoJournal)
}
