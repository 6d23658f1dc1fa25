package journal

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/orgsync/internal/db"
)

// setupJournal creates a temporary journal database with migrations applied.
func setupJournal(t *testing.T) *Journal {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	_, err = database.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database)
}

func TestRunLifecycle(t *testing.T) {
	j := setupJournal(t)

	w, err := j.StartRun("workitems", "contoso/Legacy", "fabrikam/Modern")
	require.NoError(t, err)
	require.NotEmpty(t, w.ID())

	require.NoError(t, w.Record(Entry{Unit: "workitem", SourceKey: "100", TargetRef: "https://t/1", Status: StatusMigrated}))
	require.NoError(t, w.Record(Entry{Unit: "attachment", SourceKey: "100/a.png", Status: StatusError, ErrorKind: "transport", Message: "boom"}))
	require.NoError(t, w.Finish(Totals{Migrated: 1, Errors: 1}, nil))

	run, err := j.GetRun(w.ID()[:8])
	require.NoError(t, err)
	assert.Equal(t, w.ID(), run.ID)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 1, run.Migrated)
	assert.Equal(t, 1, run.Errors)
	assert.NotEmpty(t, run.FinishedAt)

	entries, err := j.Outcomes(w.ID())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "100", entries[0].SourceKey)
	assert.Equal(t, "https://t/1", entries[0].TargetRef)
	assert.Equal(t, StatusError, entries[1].Status)
	assert.Equal(t, "transport", entries[1].ErrorKind)
	assert.Equal(t, "boom", entries[1].Message)
}

func TestFinishFailedRun(t *testing.T) {
	j := setupJournal(t)

	w, err := j.StartRun("nodes", "a", "b")
	require.NoError(t, err)
	require.NoError(t, w.Finish(Totals{}, errors.New("enumeration failed")))

	run, err := j.GetRun(w.ID())
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, "enumeration failed", run.Message)
}

func TestListRunsAndLookupErrors(t *testing.T) {
	j := setupJournal(t)

	for i := 0; i < 3; i++ {
		w, err := j.StartRun("states", "a", "b")
		require.NoError(t, err)
		require.NoError(t, w.Finish(Totals{Migrated: i}, nil))
	}

	runs, err := j.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	limited, err := j.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = j.GetRun("does-not-exist")
	assert.Error(t, err)

	_, err = j.GetRun("")
	assert.Error(t, err)
}
