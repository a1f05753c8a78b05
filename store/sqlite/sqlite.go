/*
Package sqlite provides the SQLite-backed persistence layer for score runs.

PURPOSE:
  Durable storage for members, uploads, score records and training records,
  plus every read view the dashboards consume. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  members:          People tracked across uploads, unique by normalized name
  uploads:          One row per ingestion, carrying the reporting period
  score_records:    One row per (member, upload), raw driving values included
  training_records: Audit copies of training-file entries, optionally linked

REPLACE-ON-REUPLOAD:
  SaveScoreRun (scorerun.go) deletes previous uploads covering the same
  calendar month inside the same transaction that creates the new one, so a
  re-uploaded month never leaves duplicate or partial state behind.

CASCADES:
  score_records and training_records reference uploads with ON DELETE
  CASCADE; deleting an upload is sufficient to remove its children.
  Foreign keys are switched on in the DSN.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Same-month uploads racing on the
  delete-then-create sequence serialize on the write lock.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/scores.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - scorerun.go: the transactional persistence orchestrator
  - queries.go: read views (leaderboard, history, heatmap, cleanup)
*/
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/chapterpulse/score-engine/report"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store backed by the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Members (one row per person, matched by canonical identity key)
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		normalized_name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		chapter TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_chapter
		ON members(chapter);

	-- Uploads (one row per ingestion)
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		chapter TEXT NOT NULL DEFAULT '',
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_weeks INTEGER NOT NULL DEFAULT 4,
		status TEXT NOT NULL DEFAULT 'pending',
		source TEXT NOT NULL DEFAULT 'admin',
		main_file_name TEXT NOT NULL DEFAULT '',
		training_file_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_period
		ON uploads(period_start, period_end);
	CREATE INDEX IF NOT EXISTS idx_uploads_status_source
		ON uploads(status, source);

	-- Score records (exactly one per member per upload)
	CREATE TABLE IF NOT EXISTS score_records (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		upload_id TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
		period_month TEXT NOT NULL,
		total_score INTEGER NOT NULL,
		band TEXT NOT NULL,
		components_json TEXT NOT NULL,
		referrals_per_week REAL NOT NULL DEFAULT 0,
		visitors_per_week REAL NOT NULL DEFAULT 0,
		testimonials_per_week REAL NOT NULL DEFAULT 0,
		training_count INTEGER NOT NULL DEFAULT 0,
		tyfcb TEXT NOT NULL DEFAULT '0',
		absences REAL NOT NULL DEFAULT 0,
		late_count REAL NOT NULL DEFAULT 0,
		total_weeks INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		UNIQUE(member_id, upload_id)
	);

	CREATE INDEX IF NOT EXISTS idx_scores_member_month
		ON score_records(member_id, period_month);
	CREATE INDEX IF NOT EXISTS idx_scores_upload
		ON score_records(upload_id);
	CREATE INDEX IF NOT EXISTS idx_scores_month
		ON score_records(period_month);

	-- Training records (audit trail, optional member linkage)
	CREATE TABLE IF NOT EXISTS training_records (
		id TEXT PRIMARY KEY,
		upload_id TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
		member_id TEXT NOT NULL DEFAULT '',
		normalized_name TEXT NOT NULL,
		training_count INTEGER NOT NULL,
		raw_first_name TEXT NOT NULL DEFAULT '',
		raw_last_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_training_upload
		ON training_records(upload_id);
	CREATE INDEX IF NOT EXISTS idx_training_name
		ON training_records(normalized_name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func marshalComponents(components [report.NumCategories]report.ScoreComponent) string {
	b, _ := json.Marshal(components[:])
	return string(b)
}

func unmarshalComponents(raw string) []report.ScoreComponent {
	var components []report.ScoreComponent
	_ = json.Unmarshal([]byte(raw), &components)
	return components
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type rowScanner interface {
	Scan(dest ...any) error
}

const uploadColumns = `id, label, chapter, period_start, period_end, total_weeks,
	status, source, main_file_name, training_file_name, created_at, updated_at`

func scanUpload(row rowScanner) (report.Upload, error) {
	var (
		u                    report.Upload
		periodStart          string
		periodEnd            string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&u.ID, &u.Label, &u.Chapter, &periodStart, &periodEnd, &u.TotalWeeks,
		&u.Status, &u.Source, &u.MainFileName, &u.TrainingFileName,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return u, err
	}
	u.PeriodStart = parseTime(periodStart)
	u.PeriodEnd = parseTime(periodEnd)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return u, nil
}

const scoreColumns = `id, member_id, upload_id, period_month, total_score, band,
	components_json, referrals_per_week, visitors_per_week, testimonials_per_week,
	training_count, tyfcb, absences, late_count, total_weeks, created_at`

func scanScoreRecord(row rowScanner) (report.ScoreRecord, error) {
	var (
		r              report.ScoreRecord
		periodMonth    string
		componentsJSON string
		tyfcb          string
		createdAt      string
	)
	err := row.Scan(
		&r.ID, &r.MemberID, &r.UploadID, &periodMonth, &r.TotalScore, &r.Band,
		&componentsJSON, &r.ReferralsPerWeek, &r.VisitorsPerWeek,
		&r.TestimonialsPerWeek, &r.TrainingCount, &tyfcb, &r.Absences,
		&r.LateCount, &r.TotalWeeks, &createdAt,
	)
	if err != nil {
		return r, err
	}
	r.PeriodMonth = parseTime(periodMonth)
	r.Components = unmarshalComponents(componentsJSON)
	r.TYFCB = parseDecimal(tyfcb)
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

const memberColumns = `id, normalized_name, display_name, first_name, last_name,
	chapter, created_at, updated_at`

func scanMember(row rowScanner) (report.Member, error) {
	var (
		m                    report.Member
		createdAt, updatedAt string
	)
	err := row.Scan(
		&m.ID, &m.NormalizedName, &m.DisplayName, &m.FirstName, &m.LastName,
		&m.Chapter, &createdAt, &updatedAt,
	)
	if err != nil {
		return m, err
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return m, nil
}
