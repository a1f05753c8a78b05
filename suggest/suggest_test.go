package suggest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterpulse/score-engine/report"
	"github.com/chapterpulse/score-engine/scoring"
)

func scoreRow(t *testing.T, row report.MainReportRow, training []report.TrainingRow) report.ScoreResult {
	t.Helper()
	results := scoring.Score(scoring.DefaultConfig(), []report.MainReportRow{row}, training)
	require.Len(t, results, 1)
	return results[0]
}

func byCategory(suggestions []Suggestion, category string) (Suggestion, bool) {
	for _, s := range suggestions {
		if s.Category == category {
			return s, true
		}
	}
	return Suggestion{}, false
}

func TestGenerate_PerfectScoreIsEmpty(t *testing.T) {
	// Every category at its maximum
	row := report.MainReportRow{
		MemberName: "Jane Doe",
		P:          4,
		RGI:        5, // 1.25/week
		V:          3, // 0.75/week
		T:          1, // 0.25/week
		CEU:        3,
		TYFCB:      decimal.NewFromInt(2_000_000),
	}
	result := scoreRow(t, row, nil)
	require.Equal(t, scoring.MaxTotal, result.TotalScore)

	assert.Empty(t, Generate(scoring.DefaultConfig(), result))

	_, ok := BestNextMove(scoring.DefaultConfig(), result)
	assert.False(t, ok)
}

func TestGenerate_LowScorer(t *testing.T) {
	// GIVEN: a member doing almost nothing (absenteeism 15 and arrival 5 only)
	row := report.MainReportRow{MemberName: "Jane Doe", P: 4, TYFCB: decimal.Zero}
	result := scoreRow(t, row, nil)
	require.Equal(t, 20, result.TotalScore)

	// WHEN
	suggestions := Generate(scoring.DefaultConfig(), result)

	// THEN: overall summary first, then one entry per improvable category
	require.NotEmpty(t, suggestions)
	overall := suggestions[0]
	assert.Equal(t, CategoryOverall, overall.Category)
	assert.Equal(t, PriorityHigh, overall.Priority)
	assert.Equal(t, 80, overall.PointGain)
	assert.Contains(t, overall.Message, "20/100")
	assert.Contains(t, overall.Message, "80-point gap")

	referrals, ok := byCategory(suggestions, string(report.CategoryReferrals))
	require.True(t, ok)
	assert.Equal(t, PriorityHigh, referrals.Priority)
	assert.Contains(t, referrals.Message, "referral")
	assert.Contains(t, referrals.Message, "over 4 weeks")

	// Categories already at max produce nothing.
	_, ok = byCategory(suggestions, string(report.CategoryAbsenteeism))
	assert.False(t, ok)
	_, ok = byCategory(suggestions, string(report.CategoryArrival))
	assert.False(t, ok)
}

func TestGenerate_NextTierNotTopTier(t *testing.T) {
	// Visitors at 10/20 (0.25/week over 4 weeks); the next tier is 15
	// points at 0.5/week, one more visitor over the period.
	row := report.MainReportRow{MemberName: "Jane Doe", P: 4, V: 1, TYFCB: decimal.Zero}
	result := scoreRow(t, row, nil)

	suggestions := Generate(scoring.DefaultConfig(), result)
	visitors, ok := byCategory(suggestions, string(report.CategoryVisitors))
	require.True(t, ok)

	assert.Equal(t, 5, visitors.PointGain)
	assert.Equal(t, PriorityMedium, visitors.Priority)
	assert.Contains(t, visitors.Message, "Invite 1 more visitor ")
	assert.Contains(t, visitors.Message, "15/20")
}

func TestGenerate_ThirdsPriority(t *testing.T) {
	cases := []struct {
		score, max int
		want       Priority
	}{
		{0, 15, PriorityHigh},
		{4, 15, PriorityHigh},
		{5, 15, PriorityMedium},
		{9, 15, PriorityMedium},
		{10, 15, PriorityLow},
		{14, 15, PriorityLow},
	}
	for _, tc := range cases {
		got := componentPriority(report.ScoreComponent{Score: tc.score, MaxScore: tc.max})
		assert.Equal(t, tc.want, got, "score %d/%d", tc.score, tc.max)
	}
}

func TestGenerate_TYFCBGap(t *testing.T) {
	// 600k closed business scores 5/15; next tier is 1M for 10 points.
	row := report.MainReportRow{MemberName: "Jane Doe", P: 4, TYFCB: decimal.NewFromInt(600_000)}
	result := scoreRow(t, row, nil)

	suggestions := Generate(scoring.DefaultConfig(), result)
	tyfcb, ok := byCategory(suggestions, string(report.CategoryTYFCB))
	require.True(t, ok)

	assert.Equal(t, 5, tyfcb.PointGain)
	assert.Contains(t, tyfcb.Message, "400000")
	assert.Contains(t, tyfcb.Message, "10/15")
}

func TestBestNextMove_LargestGainWins(t *testing.T) {
	// Canonical middling member: training is the biggest open gap (15).
	row := report.MainReportRow{
		MemberName: "Jane Doe",
		P:          3,
		RGI:        1,
		RGO:        1,
		V:          1,
		TYFCB:      decimal.Zero,
	}
	result := scoreRow(t, row, nil)

	best, ok := BestNextMove(scoring.DefaultConfig(), result)
	require.True(t, ok)
	assert.Equal(t, string(report.CategoryTraining), best.Category)
	assert.Equal(t, 15, best.PointGain)
}

func TestBestNextMove_EffortBreaksTies(t *testing.T) {
	// Late arrival and a 600k TYFCB both leave a 5-point gain on the
	// table; arriving on time is the cheaper move.
	row := report.MainReportRow{
		MemberName: "Jane Doe",
		P:          4,
		L:          1,
		RGI:        5,
		V:          3,
		T:          1,
		CEU:        3,
		TYFCB:      decimal.NewFromInt(1_000_000),
	}
	result := scoreRow(t, row, nil)

	best, ok := BestNextMove(scoring.DefaultConfig(), result)
	require.True(t, ok)
	assert.Equal(t, string(report.CategoryArrival), best.Category)
	assert.Equal(t, 5, best.PointGain)
}

func TestNextRateTier(t *testing.T) {
	tiers := scoring.DefaultConfig().Referrals

	threshold, points, ok := nextRateTier(tiers, 0)
	require.True(t, ok)
	assert.Equal(t, 0.5, threshold)
	assert.Equal(t, 5, points)

	threshold, points, ok = nextRateTier(tiers, 10)
	require.True(t, ok)
	assert.Equal(t, 1.0, threshold)
	assert.Equal(t, 15, points)

	_, _, ok = nextRateTier(tiers, 20)
	assert.False(t, ok)
}
