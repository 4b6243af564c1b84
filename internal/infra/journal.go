package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	journalDBName        = "journal.db"
	journalSchemaVersion = "1"
)

// EncryptedJournal implements domain.Journal using a SQLCipher encrypted SQLite database.
// Tick reports are stored as JSON, one row per tick.
type EncryptedJournal struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedJournal opens (or creates) the journal database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedJournal(dataDir string, key []byte) (*EncryptedJournal, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, journalDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	// A wrong key surfaces here: the encrypted pages cannot be read.
	j := &EncryptedJournal{db: db, dbPath: dbPath}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

func (j *EncryptedJournal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		level TEXT NOT NULL,
		seed INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		reason TEXT NOT NULL DEFAULT '',
		ticks INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS ticks (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		report TEXT NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return err
	}
	_, err := j.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`, journalSchemaVersion)
	return err
}

// BeginRun registers a new run.
func (j *EncryptedJournal) BeginRun(info domain.RunInfo) error {
	if info.ID == "" {
		return fmt.Errorf("run id is empty")
	}
	_, err := j.db.Exec(`INSERT INTO runs (id, level, seed, started_at) VALUES (?, ?, ?, ?)`,
		info.ID, info.Level, info.Seed, info.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to begin run %s: %w", info.ID, err)
	}
	return nil
}

// RecordTick appends a tick report to a run.
func (j *EncryptedJournal) RecordTick(runID string, report domain.TickReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode tick %d: %w", report.Tick, err)
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(`UPDATE runs SET ticks = ? WHERE id = ?`, report.Tick, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("run %s not registered", runID)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO ticks (run_id, tick, report) VALUES (?, ?, ?)`,
		runID, report.Tick, string(data)); err != nil {
		return fmt.Errorf("failed to record tick %d: %w", report.Tick, err)
	}
	return tx.Commit()
}

// EndRun stores how and when a run ended.
func (j *EncryptedJournal) EndRun(runID string, t domain.Termination) error {
	result, err := j.db.Exec(`UPDATE runs SET ended_at = ?, reason = ?, ticks = ? WHERE id = ?`,
		time.Now().UnixNano(), string(t.Reason), t.Tick, runID)
	if err != nil {
		return fmt.Errorf("failed to end run %s: %w", runID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("run %s not registered", runID)
	}
	return nil
}

// ListRuns returns every run, newest first.
func (j *EncryptedJournal) ListRuns() ([]domain.RunSummary, error) {
	rows, err := j.db.Query(`SELECT id, level, seed, started_at, ended_at, reason, ticks
		FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var (
			s       domain.RunSummary
			started int64
			ended   sql.NullInt64
			reason  string
		)
		if err := rows.Scan(&s.ID, &s.Level, &s.Seed, &started, &ended, &reason, &s.Ticks); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(0, started)
		if ended.Valid {
			t := time.Unix(0, ended.Int64)
			s.EndedAt = &t
		}
		s.Reason = domain.TerminationReason(reason)
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// Ticks returns a run's reports in tick order.
func (j *EncryptedJournal) Ticks(runID string) ([]domain.TickReport, error) {
	rows, err := j.db.Query(`SELECT report FROM ticks WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.TickReport
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r domain.TickReport
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("failed to decode tick report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Path returns the database file path.
func (j *EncryptedJournal) Path() string {
	return j.dbPath
}

// Close releases the database connection.
func (j *EncryptedJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ensure EncryptedJournal implements domain.Journal.
var _ domain.Journal = (*EncryptedJournal)(nil)
