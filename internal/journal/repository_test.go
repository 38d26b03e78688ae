package journal

import (
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/logger"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(dir string) Config {
	return Config{
		DBPath:    filepath.Join(dir, "journal.db"),
		Enabled:   true,
		BatchSize: 2,
	}
}

func TestFlushCommitsBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	ts := time.Unix(1700000000, 0)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO events")
	prep.ExpectExec().
		WithArgs(ts.UnixNano(), "run-1", "startup", "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(ts.UnixNano(), "run-1", "cold_start", "state_not_found", "").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	r := newRepository(db, testConfig(t.TempDir()), logger.Component("journal"))

	require.NoError(t, r.Record(Event{Time: ts, RunID: "run-1", Kind: EventStartup}))
	require.NoError(t, r.Record(Event{Time: ts, RunID: "run-1", Kind: EventColdStart, ErrorCode: "state_not_found"}))
	assert.Empty(t, r.buffer)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlushFailureKeepsEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO events").
		ExpectExec().
		WillReturnError(stderrors.New("database is locked"))
	mock.ExpectRollback()

	r := newRepository(db, testConfig(t.TempDir()), logger.Component("journal"))

	require.NoError(t, r.Record(Event{Time: time.Now(), RunID: "run-1", Kind: EventStartup}))
	err = r.Record(Event{Time: time.Now(), RunID: "run-1", Kind: EventShutdown})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrTransactionFailed))
	assert.Len(t, r.buffer, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(stderrors.New("disk I/O error"))

	cfg := testConfig(t.TempDir())
	cfg.BatchSize = 1
	r := newRepository(db, cfg, logger.Component("journal"))

	err = r.Record(Event{Time: time.Now(), RunID: "run-1", Kind: EventStartup})
	assert.True(t, errors.HasCode(err, ErrTransactionFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRoundTrip(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.BatchSize = 10

	repo, err := NewRepository(cfg, logger.Component("journal"))
	require.NoError(t, err)

	ts := time.Unix(1700000000, 0)
	for _, kind := range []EventKind{EventStartup, EventStateRestored, EventShutdown} {
		require.NoError(t, repo.Record(Event{Time: ts, RunID: "run-1", Kind: kind}))
	}
	// Close flushes the partial batch.
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM events WHERE run_id = ?", "run-1").Scan(&count))
	assert.Equal(t, 3, count)

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	cfg := testConfig(t.TempDir())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := NewRepository(cfg, logger.Component("journal"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	backups, err := os.ReadDir(filepath.Join(filepath.Dir(cfg.DBPath), "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "journal_v99_")
}
