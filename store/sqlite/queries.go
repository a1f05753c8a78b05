/*
queries.go - Read views over persisted score runs

PURPOSE:
  Every query the HTTP layer serves: chapter list, latest leaderboard,
  per-member history, month detail, heatmap matrix, range views and the
  duplicate-cleanup maintenance operation.

VIEW SHAPES:
  Views join score records with their member rows and return flattened
  entry structs; raw driving values come straight from the stored columns,
  never re-derived from rates.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chapterpulse/score-engine/report"
)

// ChapterPatrons is pinned to the top of every chapter list.
const ChapterPatrons = "PATRONS"

// ScoreEntry is one member's stored result joined with their identity.
type ScoreEntry struct {
	Member report.Member      `json:"member"`
	Score  report.ScoreRecord `json:"score"`
}

// Leaderboard is the newest processed upload with its entries, ordered by
// total score descending.
type Leaderboard struct {
	Upload  report.Upload `json:"upload"`
	Entries []ScoreEntry  `json:"entries"`
}

// PeriodInfo summarizes one reporting month present in the store.
type PeriodInfo struct {
	Month       time.Time `json:"month"`
	MonthKey    string    `json:"monthKey"`
	UploadCount int       `json:"uploadCount"`
	MemberCount int       `json:"memberCount"`
}

// HeatmapRow is one member's score per month key over the requested range.
type HeatmapRow struct {
	Member report.Member          `json:"member"`
	Scores map[string]int         `json:"scores"`
	Bands  map[string]report.Band `json:"bands"`
}

// =============================================================================
// CHAPTERS & MEMBERS
// =============================================================================

// ListChapters returns every chapter seen across members and uploads, with
// the flagship chapter pinned first and the rest sorted alphabetically.
func (s *Store) ListChapters(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT chapter FROM members WHERE chapter != ''
		UNION
		SELECT chapter FROM uploads WHERE chapter != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chapters: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var others []string
	for rows.Next() {
		var chapter string
		if err := rows.Scan(&chapter); err != nil {
			return nil, err
		}
		if chapter == ChapterPatrons || seen[chapter] {
			continue
		}
		seen[chapter] = true
		others = append(others, chapter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Strings(others)
	return append([]string{ChapterPatrons}, others...), nil
}

// GetMember fetches one member by id.
func (s *Store) GetMember(ctx context.Context, id string) (report.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return report.Member{}, report.ErrMemberNotFound
	}
	if err != nil {
		return report.Member{}, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// GetMemberByName fetches one member by canonical identity key.
func (s *Store) GetMemberByName(ctx context.Context, normalizedName string) (report.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE normalized_name = ?`, normalizedName)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return report.Member{}, report.ErrMemberNotFound
	}
	if err != nil {
		return report.Member{}, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// ListMembers returns every known member, alphabetically by display name.
func (s *Store) ListMembers(ctx context.Context) ([]report.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY display_name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []report.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// UPLOADS
// =============================================================================

// GetUpload fetches one upload by id.
func (s *Store) GetUpload(ctx context.Context, id string) (report.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if err == sql.ErrNoRows {
		return report.Upload{}, report.ErrUploadNotFound
	}
	if err != nil {
		return report.Upload{}, fmt.Errorf("failed to get upload: %w", err)
	}
	return u, nil
}

// ListUploads returns processed uploads newest first, optionally filtered
// by chapter.
func (s *Store) ListUploads(ctx context.Context, chapter string) ([]report.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE status = ?`
	args := []any{string(report.StatusProcessed)}
	if chapter != "" {
		query += ` AND chapter = ?`
		args = append(args, chapter)
	}
	query += ` ORDER BY period_start DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []report.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// DeleteUpload removes an upload; its score and training records cascade.
func (s *Store) DeleteUpload(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return report.ErrUploadNotFound
	}
	return nil
}

// ListPeriods returns every reporting month present in processed
// administrative uploads, newest first, with upload and member counts.
// Preview uploads never surface here.
func (s *Store) ListPeriods(ctx context.Context) ([]PeriodInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.period_start, COUNT(DISTINCT u.id), COUNT(DISTINCT r.member_id)
		FROM uploads u
		LEFT JOIN score_records r ON r.upload_id = u.id
		WHERE u.status = ? AND u.source = ?
		GROUP BY strftime('%Y-%m', u.period_start)
		ORDER BY u.period_start DESC`,
		string(report.StatusProcessed), string(report.SourceAdmin))
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer rows.Close()

	var periods []PeriodInfo
	for rows.Next() {
		var startRaw string
		var info PeriodInfo
		if err := rows.Scan(&startRaw, &info.UploadCount, &info.MemberCount); err != nil {
			return nil, err
		}
		info.Month = report.NormalizeMonth(parseTime(startRaw))
		info.MonthKey = report.MonthKey(info.Month)
		periods = append(periods, info)
	}
	return periods, rows.Err()
}

// =============================================================================
// SCORE VIEWS
// =============================================================================

// LatestLeaderboard returns the newest processed administrative upload with
// its entries ordered by total score descending, optionally filtered by
// chapter. Returns ErrUploadNotFound when nothing has been uploaded yet.
func (s *Store) LatestLeaderboard(ctx context.Context, chapter string) (*Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE status = ? AND source = ?`
	args := []any{string(report.StatusProcessed), string(report.SourceAdmin)}
	if chapter != "" {
		query += ` AND chapter = ?`
		args = append(args, chapter)
	}
	query += ` ORDER BY period_end DESC, created_at DESC LIMIT 1`

	upload, err := scanUpload(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, report.ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest upload: %w", err)
	}

	entries, err := s.scoreEntries(ctx, `
		WHERE r.upload_id = ? ORDER BY r.total_score DESC, m.display_name COLLATE NOCASE`,
		upload.ID)
	if err != nil {
		return nil, err
	}
	return &Leaderboard{Upload: upload, Entries: entries}, nil
}

// MonthDetail returns every entry for one calendar month, highest score
// first. Preview uploads are excluded.
func (s *Store) MonthDetail(ctx context.Context, month time.Time) ([]ScoreEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scoreEntries(ctx, `
		JOIN uploads u ON u.id = r.upload_id
		WHERE strftime('%Y-%m', r.period_month) = ? AND u.source = ?
		ORDER BY r.total_score DESC, m.display_name COLLATE NOCASE`,
		report.MonthKey(month), string(report.SourceAdmin))
}

// MemberHistory returns a member's most recent monthly records, newest
// first. Limit is clamped to 1-24 and defaults to 12.
func (s *Store) MemberHistory(ctx context.Context, memberID string, limit int) ([]report.ScoreRecord, error) {
	if limit < 1 || limit > 24 {
		limit = 12
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixed(scoreColumns, "r.")+` FROM score_records r
		WHERE r.member_id = ?
		ORDER BY r.period_month DESC, r.created_at DESC
		LIMIT ?`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query member history: %w", err)
	}
	defer rows.Close()

	var records []report.ScoreRecord
	for rows.Next() {
		r, err := scanScoreRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ScoresByRange returns entries whose period month falls inside [from, to].
func (s *Store) ScoresByRange(ctx context.Context, from, to time.Time) ([]ScoreEntry, error) {
	if from.After(to) {
		return nil, report.ErrInvalidDateRange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scoreEntries(ctx, `
		WHERE r.period_month >= ? AND r.period_month <= ?
		ORDER BY r.period_month ASC, r.total_score DESC`,
		formatTime(report.NormalizeMonth(from)), formatTime(to))
}

// DeleteScoresByRange removes uploads whose period falls entirely inside
// [from, to]; their score and training records cascade. Returns how many
// uploads were deleted.
func (s *Store) DeleteScoresByRange(ctx context.Context, from, to time.Time) (int, error) {
	if from.After(to) {
		return 0, report.ErrInvalidDateRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM uploads WHERE period_start >= ? AND period_end <= ?`,
		formatTime(report.NormalizeMonth(from)), formatTime(to))
	if err != nil {
		return 0, fmt.Errorf("failed to delete score range: %w", err)
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// Heatmap builds the member-by-month score matrix for [from, to], one row
// per member who has at least one score in the range.
func (s *Store) Heatmap(ctx context.Context, from, to time.Time) ([]HeatmapRow, error) {
	if from.After(to) {
		return nil, report.ErrInvalidDateRange
	}

	entries, err := s.ScoresByRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	byMember := map[string]*HeatmapRow{}
	var order []string
	for _, e := range entries {
		row, ok := byMember[e.Member.ID]
		if !ok {
			row = &HeatmapRow{
				Member: e.Member,
				Scores: map[string]int{},
				Bands:  map[string]report.Band{},
			}
			byMember[e.Member.ID] = row
			order = append(order, e.Member.ID)
		}
		key := report.MonthKey(e.Score.PeriodMonth)
		// Same member twice in a month: the higher score shows.
		if existing, ok := row.Scores[key]; !ok || e.Score.TotalScore > existing {
			row.Scores[key] = e.Score.TotalScore
			row.Bands[key] = e.Score.Band
		}
	}

	out := make([]HeatmapRow, 0, len(order))
	for _, id := range order {
		out = append(out, *byMember[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Member.DisplayName < out[j].Member.DisplayName
	})
	return out, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// CleanupDuplicates removes redundant score records sharing a member and a
// calendar month, keeping the highest score and breaking ties by newest
// creation time. Returns how many records were deleted.
func (s *Store) CleanupDuplicates(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM score_records WHERE id NOT IN (
			SELECT id FROM (
				SELECT id,
				       ROW_NUMBER() OVER (
				           PARTITION BY member_id, strftime('%Y-%m', period_month)
				           ORDER BY total_score DESC, created_at DESC
				       ) AS rank
				FROM score_records
			) WHERE rank = 1
		)`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up duplicates: %w", err)
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// =============================================================================
// INTERNAL
// =============================================================================

// scoreEntries runs the member-joined score query with a caller-provided
// tail (joins, WHERE, ORDER BY) and scans the flattened entries.
func (s *Store) scoreEntries(ctx context.Context, tail string, args ...any) ([]ScoreEntry, error) {
	query := `
		SELECT ` + prefixed(scoreColumns, "r.") + `, ` + prefixed(memberColumns, "m.") + `
		FROM score_records r
		JOIN members m ON m.id = r.member_id ` + tail

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query score entries: %w", err)
	}
	defer rows.Close()

	var entries []ScoreEntry
	for rows.Next() {
		var (
			e                            ScoreEntry
			periodMonth, componentsRaw   string
			tyfcb                        string
			scoreCreated                 string
			memberCreated, memberUpdated string
		)
		err := rows.Scan(
			&e.Score.ID, &e.Score.MemberID, &e.Score.UploadID, &periodMonth,
			&e.Score.TotalScore, &e.Score.Band, &componentsRaw,
			&e.Score.ReferralsPerWeek, &e.Score.VisitorsPerWeek,
			&e.Score.TestimonialsPerWeek, &e.Score.TrainingCount, &tyfcb,
			&e.Score.Absences, &e.Score.LateCount, &e.Score.TotalWeeks,
			&scoreCreated,
			&e.Member.ID, &e.Member.NormalizedName, &e.Member.DisplayName,
			&e.Member.FirstName, &e.Member.LastName, &e.Member.Chapter,
			&memberCreated, &memberUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score entry: %w", err)
		}
		e.Score.PeriodMonth = parseTime(periodMonth)
		e.Score.Components = unmarshalComponents(componentsRaw)
		e.Score.TYFCB = parseDecimal(tyfcb)
		e.Score.CreatedAt = parseTime(scoreCreated)
		e.Member.CreatedAt = parseTime(memberCreated)
		e.Member.UpdatedAt = parseTime(memberUpdated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// prefixed rewrites a comma-separated column list with a table alias.
func prefixed(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
