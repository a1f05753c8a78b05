/*
engine.go - Pure scoring engine

PURPOSE:
  Turns normalized main-report rows plus aggregated training credits into
  per-member score results. No I/O, no clock reads beyond the current-month
  fallback in period normalization; the same inputs always produce the same
  outputs, so the whole engine is table-testable.

PIPELINE PER ROW:
  1. totalWeeks = max(1, P+A+S+M)
  2. per-week rates for referrals, visitors, testimonials
  3. training credits from the training file by identity key, CEU fallback
  4. seven independent tiered sub-scores, summed and banded

SEE ALSO:
  - config.go: the tier tables
  - report/types.go: ScoreResult and ScoreComponent
*/
package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/chapterpulse/score-engine/report"
)

// categoryLabels are the display labels carried on each component.
var categoryLabels = map[report.CategoryKey]string{
	report.CategoryReferrals:    "Referrals / Week",
	report.CategoryVisitors:     "Visitors / Week",
	report.CategoryAbsenteeism:  "Absenteeism",
	report.CategoryTraining:     "Training Credits",
	report.CategoryTestimonials: "Testimonials / Week",
	report.CategoryTYFCB:        "TYFCB",
	report.CategoryArrival:      "Arrival on Time",
}

// CategoryLabel returns the display label for a scoring category.
func CategoryLabel(key report.CategoryKey) string {
	return categoryLabels[key]
}

// CategoryMax returns the maximum sub-score for a category.
func CategoryMax(key report.CategoryKey) int {
	switch key {
	case report.CategoryReferrals:
		return MaxReferrals
	case report.CategoryVisitors:
		return MaxVisitors
	case report.CategoryAbsenteeism:
		return MaxAbsenteeism
	case report.CategoryTraining:
		return MaxTraining
	case report.CategoryTestimonials:
		return MaxTestimonials
	case report.CategoryTYFCB:
		return MaxTYFCB
	case report.CategoryArrival:
		return MaxPunctuality
	default:
		return 0
	}
}

// BuildTrainingMap aggregates training credits per canonical identity key.
func BuildTrainingMap(rows []report.TrainingRow) map[string]int {
	m := make(map[string]int, len(rows))
	for _, row := range rows {
		key := report.NormalizePersonKey(row.FirstName, row.LastName)
		m[key] += row.Credits
	}
	return m
}

// Score computes one ScoreResult per main-report row. Training credits are
// matched by identity key against the training rows; a member absent from
// the training file falls back to the CEU column of the main sheet.
func Score(cfg Config, mainRows []report.MainReportRow, trainingRows []report.TrainingRow) []report.ScoreResult {
	trainingMap := BuildTrainingMap(trainingRows)
	results := make([]report.ScoreResult, 0, len(mainRows))

	for _, row := range mainRows {
		results = append(results, scoreRow(cfg, row, trainingMap))
	}
	return results
}

func scoreRow(cfg Config, row report.MainReportRow, trainingMap map[string]int) report.ScoreResult {
	totalMeetings := row.P + row.A + row.S + row.M
	totalWeeks := int(math.Round(totalMeetings))
	if totalWeeks < 1 {
		totalWeeks = 1
	}
	weeks := float64(totalWeeks)

	referralsPerWeek := (row.RGI + row.RGO) / weeks
	visitorsPerWeek := row.V / weeks
	testimonialsPerWeek := row.T / weeks

	firstName, lastName := report.SplitName(row.MemberName)
	normalizedName := report.NormalizePersonKey(firstName, lastName)

	trainingCount := row.CEU
	if credits, ok := trainingMap[normalizedName]; ok {
		trainingCount = float64(credits)
	}

	refScore := rateScore(cfg.Referrals, referralsPerWeek)
	visScore := rateScore(cfg.Visitors, visitorsPerWeek)
	absScore := absenteeismScore(cfg.Absenteeism, row.A)
	trnScore := trainingScore(cfg, trainingCount)
	tstScore := testimonialScore(cfg, testimonialsPerWeek)
	bizScore := tyfcbScore(cfg.TYFCB, row.TYFCB)
	arrScore := 0
	if row.L == 0 {
		arrScore = cfg.PunctualityPoints
	}

	total := refScore + visScore + absScore + trnScore + tstScore + bizScore + arrScore

	onTime := 1.0
	if row.L > 0 {
		onTime = 0
	}
	tyfcbDisplay, _ := row.TYFCB.Float64()

	result := report.ScoreResult{
		MemberName:     row.MemberName,
		Chapter:        row.Chapter,
		NormalizedName: normalizedName,
		TotalScore:     total,
		Band:           BandForTotal(cfg.Bands, total),

		ReferralsPerWeek:    referralsPerWeek,
		VisitorsPerWeek:     visitorsPerWeek,
		TestimonialsPerWeek: testimonialsPerWeek,
		TrainingCount:       trainingCount,
		TYFCB:               row.TYFCB,
		Absences:            row.A,
		LateCount:           row.L,
		TotalWeeks:          totalWeeks,
		PeriodMonth:         report.NormalizeMonth(row.Period),
	}

	result.Components = [report.NumCategories]report.ScoreComponent{
		component(report.CategoryReferrals, referralsPerWeek, refScore, MaxReferrals, cfg.Bands),
		component(report.CategoryVisitors, visitorsPerWeek, visScore, MaxVisitors, cfg.Bands),
		component(report.CategoryAbsenteeism, row.A, absScore, MaxAbsenteeism, cfg.Bands),
		component(report.CategoryTraining, trainingCount, trnScore, MaxTraining, cfg.Bands),
		component(report.CategoryTestimonials, testimonialsPerWeek, tstScore, MaxTestimonials, cfg.Bands),
		component(report.CategoryTYFCB, tyfcbDisplay, bizScore, MaxTYFCB, cfg.Bands),
		component(report.CategoryArrival, onTime, arrScore, MaxPunctuality, cfg.Bands),
	}
	return result
}

func component(key report.CategoryKey, value float64, score, max int, bands BandCutoffs) report.ScoreComponent {
	return report.ScoreComponent{
		Key:      key,
		Label:    categoryLabels[key],
		Value:    value,
		Score:    score,
		MaxScore: max,
		Band:     BandForComponent(bands, score, max),
	}
}

// rateScore returns the points of the first tier the rate meets.
func rateScore(tiers []Tier, rate float64) int {
	for _, tier := range tiers {
		if rate >= tier.Threshold {
			return tier.Points
		}
	}
	return 0
}

// absenteeismScore rewards low absence counts; tiers compare <=.
func absenteeismScore(tiers []Tier, absences float64) int {
	for _, tier := range tiers {
		if absences <= tier.Threshold {
			return tier.Points
		}
	}
	return 0
}

func trainingScore(cfg Config, credits float64) int {
	if credits > float64(cfg.TrainingTopCount) {
		return cfg.TrainingTop
	}
	// Exact-count lookup only applies to whole credits.
	whole := int(credits)
	if float64(whole) != credits {
		return 0
	}
	return cfg.TrainingExact[whole]
}

func testimonialScore(cfg Config, rate float64) int {
	if s := rateScore(cfg.Testimonials, rate); s > 0 {
		return s
	}
	if rate > 0 {
		return cfg.TestimonialsAny
	}
	return 0
}

func tyfcbScore(tiers []DecimalTier, value decimal.Decimal) int {
	for _, tier := range tiers {
		if value.GreaterThanOrEqual(tier.Threshold) {
			return tier.Points
		}
	}
	return 0
}

// BandForTotal maps a total score onto the four display bands.
func BandForTotal(cutoffs BandCutoffs, total int) report.Band {
	switch {
	case total >= cutoffs.Top:
		return report.BandTop
	case total >= cutoffs.Mid:
		return report.BandMid
	case total >= cutoffs.Low:
		return report.BandLow
	default:
		return report.BandBottom
	}
}

// BandForComponent applies the total-score cutoffs to a sub-score scaled
// onto the 0-100 range of its own maximum.
func BandForComponent(cutoffs BandCutoffs, score, max int) report.Band {
	if max <= 0 {
		return report.BandBottom
	}
	percent := float64(score) / float64(max) * 100
	switch {
	case percent >= float64(cutoffs.Top):
		return report.BandTop
	case percent >= float64(cutoffs.Mid):
		return report.BandMid
	case percent >= float64(cutoffs.Low):
		return report.BandLow
	default:
		return report.BandBottom
	}
}
