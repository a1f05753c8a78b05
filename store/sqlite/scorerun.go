/*
scorerun.go - Transactional persistence of one scoring run

PURPOSE:
  SaveScoreRun turns a batch of score results into durable state: it
  resolves the effective reporting period, replaces any previous upload
  covering the same calendar month, creates the new upload with its member,
  score and training rows, and flips the upload to processed - all inside
  one SQL transaction, so a failure leaves prior state untouched.

PERIOD RESOLUTION:
  Explicit period start wins; otherwise the first score's month; otherwise
  the current date. The end defaults to the last second of the start's
  month. Years outside 1900-2100 fall back the same way.

SAME-PERIOD PREDICATE:
  Two uploads cover the same period when both their starts and their ends
  fall in the same calendar month+year. The predicate deliberately ignores
  chapter: a month's admin upload is the month's single source of truth.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/chapterpulse/score-engine/report"
)

// SaveScoreRunParams carries everything one persistence run needs.
type SaveScoreRunParams struct {
	Scores       []report.ScoreResult
	TrainingRows []report.TrainingRow

	Label   string
	Chapter string

	MainFileName     string
	TrainingFileName string

	// PeriodStart/PeriodEnd override period resolution when non-zero.
	PeriodStart time.Time
	PeriodEnd   time.Time

	Source report.UploadSource

	// TotalWeeks overrides the per-score week count when positive.
	TotalWeeks int
}

// SaveScoreRun persists one scoring run and returns the created upload.
func (s *Store) SaveScoreRun(ctx context.Context, p SaveScoreRunParams) (*report.Upload, error) {
	if len(p.Scores) == 0 {
		return nil, report.ErrNoScores
	}

	source := p.Source
	if source == "" {
		source = report.SourceAdmin
	}

	periodStart, periodEnd := resolvePeriod(p)
	totalWeeks := p.TotalWeeks
	if totalWeeks < 1 {
		totalWeeks = p.Scores[0].TotalWeeks
	}
	if totalWeeks < 1 {
		totalWeeks = 4
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.replaceSamePeriod(ctx, tx, source, periodStart, periodEnd); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	upload := report.Upload{
		ID:               uuid.NewString(),
		Label:            p.Label,
		Chapter:          p.Chapter,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		TotalWeeks:       totalWeeks,
		Status:           report.StatusPending,
		Source:           source,
		MainFileName:     p.MainFileName,
		TrainingFileName: p.TrainingFileName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO uploads
		(id, label, chapter, period_start, period_end, total_weeks, status,
		 source, main_file_name, training_file_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.ID, upload.Label, upload.Chapter,
		formatTime(periodStart), formatTime(periodEnd), totalWeeks,
		string(report.StatusPending), string(source),
		upload.MainFileName, upload.TrainingFileName,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}

	// Training rows first, so member linkage can resolve against members
	// that existed before this run; unmatched entries are kept anyway.
	for _, row := range p.TrainingRows {
		if err := s.insertTrainingRecord(ctx, tx, upload.ID, row, now); err != nil {
			return nil, err
		}
	}

	for _, score := range p.Scores {
		memberID, err := s.upsertMember(ctx, tx, score, now)
		if err != nil {
			return nil, err
		}
		if err := s.upsertScoreRecord(ctx, tx, memberID, upload.ID, score, now); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE uploads SET status = ?, updated_at = ? WHERE id = ?`,
		string(report.StatusProcessed), formatTime(time.Now().UTC()), upload.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark upload processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit score run: %w", err)
	}

	upload.Status = report.StatusProcessed
	return &upload, nil
}

// resolvePeriod picks the effective reporting period for a run.
func resolvePeriod(p SaveScoreRunParams) (time.Time, time.Time) {
	fallback := report.NormalizeMonth(time.Now().UTC())

	start := p.PeriodStart
	if !report.ValidYear(start) {
		start = time.Time{}
		if month := p.Scores[0].PeriodMonth; report.ValidYear(month) {
			start = month
		}
	}
	if start.IsZero() {
		log.Printf("sqlite: no usable period start, falling back to %s", report.MonthKey(fallback))
		start = fallback
	}

	end := p.PeriodEnd
	if !report.ValidYear(end) {
		end = report.EndOfMonth(start)
	}
	return start.UTC(), end.UTC()
}

// replaceSamePeriod deletes every processed or pending upload of the same
// source whose period covers the same calendar month as the new one. The
// ON DELETE CASCADE on score_records and training_records removes children.
func (s *Store) replaceSamePeriod(ctx context.Context, tx *sql.Tx, source report.UploadSource, periodStart, periodEnd time.Time) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, period_start, period_end FROM uploads
		WHERE source = ? AND status IN (?, ?)`,
		string(source), string(report.StatusProcessed), string(report.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to query existing uploads: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id, startRaw, endRaw string
		if err := rows.Scan(&id, &startRaw, &endRaw); err != nil {
			return fmt.Errorf("failed to scan upload: %w", err)
		}
		if report.SameCalendarMonth(parseTime(startRaw), periodStart) &&
			report.SameCalendarMonth(parseTime(endRaw), periodEnd) {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		log.Printf("sqlite: replacing upload %s for period %s", id, report.MonthKey(periodStart))
		if _, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete stale upload %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) insertTrainingRecord(ctx context.Context, tx *sql.Tx, uploadID string, row report.TrainingRow, now time.Time) error {
	normalizedName := report.NormalizePersonKey(row.FirstName, row.LastName)

	var memberID string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM members WHERE normalized_name = ?`, normalizedName,
	).Scan(&memberID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to look up member %q: %w", normalizedName, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO training_records
		(id, upload_id, member_id, normalized_name, training_count,
		 raw_first_name, raw_last_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), uploadID, memberID, normalizedName, row.Credits,
		row.FirstName, row.LastName, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert training record: %w", err)
	}
	return nil
}

func (s *Store) upsertMember(ctx context.Context, tx *sql.Tx, score report.ScoreResult, now time.Time) (string, error) {
	firstName, lastName := report.SplitName(score.MemberName)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO members
		(id, normalized_name, display_name, first_name, last_name, chapter,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_name) DO UPDATE SET
			display_name = excluded.display_name,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			chapter = excluded.chapter,
			updated_at = excluded.updated_at`,
		uuid.NewString(), score.NormalizedName, score.MemberName,
		firstName, lastName, score.Chapter, formatTime(now), formatTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert member %q: %w", score.NormalizedName, err)
	}

	var memberID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM members WHERE normalized_name = ?`, score.NormalizedName,
	).Scan(&memberID)
	if err != nil {
		return "", fmt.Errorf("failed to read back member %q: %w", score.NormalizedName, err)
	}
	return memberID, nil
}

func (s *Store) upsertScoreRecord(ctx context.Context, tx *sql.Tx, memberID, uploadID string, score report.ScoreResult, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO score_records
		(id, member_id, upload_id, period_month, total_score, band,
		 components_json, referrals_per_week, visitors_per_week,
		 testimonials_per_week, training_count, tyfcb, absences, late_count,
		 total_weeks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, upload_id) DO UPDATE SET
			period_month = excluded.period_month,
			total_score = excluded.total_score,
			band = excluded.band,
			components_json = excluded.components_json,
			referrals_per_week = excluded.referrals_per_week,
			visitors_per_week = excluded.visitors_per_week,
			testimonials_per_week = excluded.testimonials_per_week,
			training_count = excluded.training_count,
			tyfcb = excluded.tyfcb,
			absences = excluded.absences,
			late_count = excluded.late_count,
			total_weeks = excluded.total_weeks`,
		uuid.NewString(), memberID, uploadID,
		formatTime(report.NormalizeMonth(score.PeriodMonth)),
		score.TotalScore, string(score.Band),
		marshalComponents(score.Components),
		score.ReferralsPerWeek, score.VisitorsPerWeek, score.TestimonialsPerWeek,
		int(score.TrainingCount), score.TYFCB.String(),
		score.Absences, score.LateCount, score.TotalWeeks, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert score record: %w", err)
	}
	return nil
}
