package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterpulse/score-engine/report"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func makeScore(name string, total int, month time.Time) report.ScoreResult {
	first, last := report.SplitName(name)
	return report.ScoreResult{
		MemberName:     name,
		Chapter:        "PATRONS",
		NormalizedName: report.NormalizePersonKey(first, last),
		TotalScore:     total,
		Band:           report.BandLow,
		TYFCB:          decimal.Zero,
		TotalWeeks:     4,
		PeriodMonth:    report.NormalizeMonth(month),
	}
}

var (
	may  = time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	june = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
)

func TestSaveScoreRun_CreatesUploadAndRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: two scored members and one training entry
	params := SaveScoreRunParams{
		Scores: []report.ScoreResult{
			makeScore("Jane Doe", 80, may),
			makeScore("John Smith", 40, may),
		},
		TrainingRows: []report.TrainingRow{
			{FirstName: "Jane", LastName: "Doe", Credits: 3},
		},
		Label:        "May 2025",
		Chapter:      "PATRONS",
		MainFileName: "may.xlsx",
	}

	// WHEN
	upload, err := store.SaveScoreRun(ctx, params)
	require.NoError(t, err)

	// THEN: the upload is processed and carries the derived period
	assert.Equal(t, report.StatusProcessed, upload.Status)
	assert.Equal(t, report.SourceAdmin, upload.Source)
	assert.Equal(t, may, upload.PeriodStart)
	assert.Equal(t, report.EndOfMonth(may), upload.PeriodEnd)

	stored, err := store.GetUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, "May 2025", stored.Label)

	// Leaderboard orders by score descending
	board, err := store.LatestLeaderboard(ctx, "")
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "Jane Doe", board.Entries[0].Member.DisplayName)
	assert.Equal(t, 80, board.Entries[0].Score.TotalScore)
	assert.Equal(t, 40, board.Entries[1].Score.TotalScore)
}

func TestSaveScoreRun_NoScores(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveScoreRun(context.Background(), SaveScoreRunParams{})
	assert.ErrorIs(t, err, report.ErrNoScores)
}

func TestSaveScoreRun_ReplacesSamePeriod(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 60, may)},
	})
	require.NoError(t, err)

	// A second upload for the same calendar month displaces the first.
	second, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 75, may)},
	})
	require.NoError(t, err)

	_, err = store.GetUpload(ctx, first.ID)
	assert.ErrorIs(t, err, report.ErrUploadNotFound)

	board, err := store.LatestLeaderboard(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, board.Upload.ID)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, 75, board.Entries[0].Score.TotalScore)
}

func TestSaveScoreRun_DifferentMonthsCoexist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 60, may)},
	})
	require.NoError(t, err)

	_, err = store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 70, june)},
	})
	require.NoError(t, err)

	uploads, err := store.ListUploads(ctx, "")
	require.NoError(t, err)
	assert.Len(t, uploads, 2)

	periods, err := store.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, "2025-06", periods[0].MonthKey)
	assert.Equal(t, "2025-05", periods[1].MonthKey)
}

func TestSaveScoreRun_PreviewDoesNotDisplaceAdmin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	admin, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 60, may)},
	})
	require.NoError(t, err)

	_, err = store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 90, may)},
		Source: report.SourcePreview,
	})
	require.NoError(t, err)

	// The admin upload survives, and the leaderboard ignores previews.
	_, err = store.GetUpload(ctx, admin.ID)
	require.NoError(t, err)

	board, err := store.LatestLeaderboard(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, board.Upload.ID)
	assert.Equal(t, 60, board.Entries[0].Score.TotalScore)
}

func TestSaveScoreRun_UpsertsMemberIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("jane DOE", 60, may)},
	})
	require.NoError(t, err)

	// The same person respelled updates the existing member row.
	_, err = store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 70, june)},
	})
	require.NoError(t, err)

	members, err := store.ListMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Jane Doe", members[0].DisplayName)
	assert.Equal(t, "jane doe", members[0].NormalizedName)

	history, err := store.MemberHistory(ctx, members[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, june, history[0].PeriodMonth)
	assert.Equal(t, may, history[1].PeriodMonth)
}

func TestDeleteUpload_Cascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	upload, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 60, may)},
		TrainingRows: []report.TrainingRow{
			{FirstName: "Jane", LastName: "Doe", Credits: 2},
		},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteUpload(ctx, upload.ID))

	entries, err := store.ScoresByRange(ctx, may, report.EndOfMonth(may))
	require.NoError(t, err)
	assert.Empty(t, entries)

	var trainingCount int
	require.NoError(t, store.db.QueryRow(
		`SELECT COUNT(*) FROM training_records`).Scan(&trainingCount))
	assert.Zero(t, trainingCount)

	assert.ErrorIs(t, store.DeleteUpload(ctx, upload.ID), report.ErrUploadNotFound)
}

func TestCleanupDuplicates_KeepsHighestScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// An admin run and a preview run leave the same member scored twice
	// for the same month.
	_, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 80, may)},
	})
	require.NoError(t, err)
	_, err = store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 60, may)},
		Source: report.SourcePreview,
	})
	require.NoError(t, err)

	deleted, err := store.CleanupDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	member, err := store.GetMemberByName(ctx, "jane doe")
	require.NoError(t, err)
	history, err := store.MemberHistory(ctx, member.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 80, history[0].TotalScore)

	// Idempotent: a second pass has nothing left to remove.
	deleted, err = store.CleanupDuplicates(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestListChapters_PinsFlagshipFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Empty store still pins the flagship chapter.
	chapters, err := store.ListChapters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PATRONS"}, chapters)

	alpha := makeScore("Jane Doe", 60, may)
	alpha.Chapter = "ALPHA"
	zeta := makeScore("John Smith", 50, may)
	zeta.Chapter = "ZETA"
	_, err = store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores:  []report.ScoreResult{alpha, zeta},
		Chapter: "ALPHA",
	})
	require.NoError(t, err)

	chapters, err = store.ListChapters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PATRONS", "ALPHA", "ZETA"}, chapters)
}

func TestHeatmap_MatrixAcrossMonths(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{
			makeScore("Jane Doe", 80, may),
			makeScore("John Smith", 40, may),
		},
	})
	require.NoError(t, err)
	_, err = store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 90, june)},
	})
	require.NoError(t, err)

	heatmap, err := store.Heatmap(ctx, may, report.EndOfMonth(june))
	require.NoError(t, err)
	require.Len(t, heatmap, 2)

	assert.Equal(t, "Jane Doe", heatmap[0].Member.DisplayName)
	assert.Equal(t, map[string]int{"2025-05": 80, "2025-06": 90}, heatmap[0].Scores)
	assert.Equal(t, map[string]int{"2025-05": 40}, heatmap[1].Scores)
}

func TestScoresByRange_InvalidRange(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ScoresByRange(context.Background(), june, may)
	assert.ErrorIs(t, err, report.ErrInvalidDateRange)

	_, err = store.DeleteScoresByRange(context.Background(), june, may)
	assert.ErrorIs(t, err, report.ErrInvalidDateRange)
}

func TestDeleteScoresByRange_RemovesUploads(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mayUpload, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 60, may)},
		TrainingRows: []report.TrainingRow{
			{FirstName: "Jane", LastName: "Doe", Credits: 2},
		},
	})
	require.NoError(t, err)
	_, err = store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 70, june)},
	})
	require.NoError(t, err)

	deleted, err := store.DeleteScoresByRange(ctx, may, report.EndOfMonth(may))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// The upload itself is gone, its training records with it, and its
	// month no longer surfaces in the period list.
	_, err = store.GetUpload(ctx, mayUpload.ID)
	assert.ErrorIs(t, err, report.ErrUploadNotFound)

	var trainingCount int
	require.NoError(t, store.db.QueryRow(
		`SELECT COUNT(*) FROM training_records`).Scan(&trainingCount))
	assert.Zero(t, trainingCount)

	periods, err := store.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "2025-06", periods[0].MonthKey)

	remaining, err := store.ScoresByRange(ctx, may, report.EndOfMonth(june))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, june, remaining[0].Score.PeriodMonth)
}

func TestListPeriods_ExcludesPreviews(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 60, may)},
	})
	require.NoError(t, err)
	_, err = store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 90, june)},
		Source: report.SourcePreview,
	})
	require.NoError(t, err)

	// Only the administrative month is listed.
	periods, err := store.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "2025-05", periods[0].MonthKey)
}

func TestLatestLeaderboard_OrdersByPeriodEnd(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 60, may)},
	})
	require.NoError(t, err)

	// An upload starting earlier but ending later is the newer one.
	april := time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC)
	spanning, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores:      []report.ScoreResult{makeScore("John Smith", 50, april)},
		PeriodStart: april,
		PeriodEnd:   time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	board, err := store.LatestLeaderboard(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, spanning.ID, board.Upload.ID)
}

func TestMonthDetail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{
			makeScore("Jane Doe", 80, may),
			makeScore("John Smith", 40, may),
		},
	})
	require.NoError(t, err)

	entries, err := store.MonthDetail(ctx, time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 80, entries[0].Score.TotalScore)

	empty, err := store.MonthDetail(ctx, june)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTrainingRecords_LinkOnSecondRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// First run: the member does not exist yet when training rows land.
	_, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 60, may)},
		TrainingRows: []report.TrainingRow{
			{FirstName: "Jane", LastName: "Doe", Credits: 2},
		},
	})
	require.NoError(t, err)

	// Second run a month later: the existing member row gets linked.
	upload, err := store.SaveScoreRun(ctx, SaveScoreRunParams{
		Scores: []report.ScoreResult{makeScore("Jane Doe", 70, june)},
		TrainingRows: []report.TrainingRow{
			{FirstName: "Jane", LastName: "Doe", Credits: 1},
		},
	})
	require.NoError(t, err)

	var memberID string
	require.NoError(t, store.db.QueryRow(
		`SELECT member_id FROM training_records WHERE upload_id = ?`, upload.ID,
	).Scan(&memberID))
	assert.NotEmpty(t, memberID)
}
