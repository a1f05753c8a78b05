/*
suggest.go - Actionable improvement suggestions from a score breakdown

PURPOSE:
  Pure functions turning one member's latest score result into concrete,
  quantified advice: for every category below its maximum, how far the next
  tier is and what count of actions closes the gap over the period's weeks.

PRIORITY RULE:
  Thirds of the category maximum. A sub-score in the bottom third is high
  priority, the middle third medium, the top third low.

BEST NEXT MOVE:
  Ranks every actionable category by potential point gain to its next tier,
  then by effort (arriving on time is cheaper than closing two million in
  business), then by priority, and returns the single winner.

SEE ALSO:
  - scoring/config.go: the tier tables consulted for next-tier thresholds
*/
package suggest

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/chapterpulse/score-engine/report"
	"github.com/chapterpulse/score-engine/scoring"
)

// Priority grades how urgently a suggestion should be acted on.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// CategoryOverall marks the summary suggestion that is not tied to one
// scoring category.
const CategoryOverall = "overall"

// Suggestion is one piece of advice for one category.
type Suggestion struct {
	Category  string   `json:"category"`
	Message   string   `json:"message"`
	Priority  Priority `json:"priority"`
	PointGain int      `json:"pointGain"`
}

// effortRank orders categories by how hard their next tier typically is to
// reach; lower is easier. Used only for best-next-move tie-breaking.
var effortRank = map[report.CategoryKey]int{
	report.CategoryArrival:      1,
	report.CategoryTestimonials: 2,
	report.CategoryAbsenteeism:  3,
	report.CategoryTraining:     3,
	report.CategoryVisitors:     4,
	report.CategoryReferrals:    4,
	report.CategoryTYFCB:        5,
}

// Generate returns the full ordered suggestion list for one score result:
// an overall-gap summary first, then one entry per category below its
// maximum, in the fixed category order.
func Generate(cfg scoring.Config, result report.ScoreResult) []Suggestion {
	var out []Suggestion

	if gap := scoring.MaxTotal - result.TotalScore; gap > 0 {
		out = append(out, Suggestion{
			Category: CategoryOverall,
			Message: fmt.Sprintf(
				"You're at %d/%d. Improve the areas below to close the %d-point gap.",
				result.TotalScore, scoring.MaxTotal, gap),
			Priority:  overallPriority(gap),
			PointGain: gap,
		})
	}

	for _, c := range result.Components {
		if c.Score >= c.MaxScore {
			continue
		}
		if s, ok := categorySuggestion(cfg, result, c); ok {
			out = append(out, s)
		}
	}
	return out
}

// BestNextMove returns the single highest-ranked category suggestion:
// largest point gain first, then lowest effort, then highest priority.
// The overall summary never wins. Returns false when every category is
// already at its maximum.
func BestNextMove(cfg scoring.Config, result report.ScoreResult) (Suggestion, bool) {
	type ranked struct {
		s      Suggestion
		effort int
	}
	var candidates []ranked

	for _, c := range result.Components {
		if c.Score >= c.MaxScore {
			continue
		}
		if s, ok := categorySuggestion(cfg, result, c); ok {
			candidates = append(candidates, ranked{s: s, effort: effortRank[c.Key]})
		}
	}
	if len(candidates) == 0 {
		return Suggestion{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.s.PointGain != b.s.PointGain {
			return a.s.PointGain > b.s.PointGain
		}
		if a.effort != b.effort {
			return a.effort < b.effort
		}
		return priorityRank(a.s.Priority) < priorityRank(b.s.Priority)
	})
	return candidates[0].s, true
}

func categorySuggestion(cfg scoring.Config, result report.ScoreResult, c report.ScoreComponent) (Suggestion, bool) {
	weeks := result.TotalWeeks
	if weeks < 1 {
		weeks = 1
	}

	var msg string
	var gain int

	switch c.Key {
	case report.CategoryReferrals:
		threshold, points, ok := nextRateTier(cfg.Referrals, c.Score)
		if !ok {
			return Suggestion{}, false
		}
		gain = points - c.Score
		perWeek := countUp(threshold - result.ReferralsPerWeek)
		msg = fmt.Sprintf("Give %d more referral%s per week (%d total over %d weeks) to reach %d/%d.",
			perWeek, plural(perWeek), perWeek*weeks, weeks, points, c.MaxScore)

	case report.CategoryVisitors:
		threshold, points, ok := nextRateTier(cfg.Visitors, c.Score)
		if !ok {
			return Suggestion{}, false
		}
		gain = points - c.Score
		total := countUp((threshold - result.VisitorsPerWeek) * float64(weeks))
		msg = fmt.Sprintf("Invite %d more visitor%s this period to reach %d/%d.",
			total, plural(total), points, c.MaxScore)

	case report.CategoryAbsenteeism:
		points := bestTierPoints(cfg.Absenteeism)
		gain = points - c.Score
		absences := int(result.Absences)
		msg = fmt.Sprintf("You've missed %d meeting%s. Attend every remaining meeting to earn %d/%d.",
			absences, plural(absences), points, c.MaxScore)

	case report.CategoryTraining:
		target := cfg.TrainingTopCount + 1
		needed := target - int(result.TrainingCount)
		if needed < 1 {
			needed = 1
		}
		gain = cfg.TrainingTop - c.Score
		msg = fmt.Sprintf("Complete %d more training session%s to reach %d/%d.",
			needed, plural(needed), cfg.TrainingTop, c.MaxScore)

	case report.CategoryTestimonials:
		threshold, points, ok := nextRateTier(cfg.Testimonials, c.Score)
		if !ok {
			return Suggestion{}, false
		}
		gain = points - c.Score
		total := countUp((threshold - result.TestimonialsPerWeek) * float64(weeks))
		msg = fmt.Sprintf("Give %d more testimonial%s this period to reach %d/%d.",
			total, plural(total), points, c.MaxScore)

	case report.CategoryTYFCB:
		threshold, points, ok := nextDecimalTier(cfg.TYFCB, c.Score)
		if !ok {
			return Suggestion{}, false
		}
		gain = points - c.Score
		needed := threshold.Sub(result.TYFCB)
		if needed.IsNegative() {
			needed = decimal.Zero
		}
		msg = fmt.Sprintf("Generate an additional %s in closed business to reach %d/%d.",
			needed.StringFixed(0), points, c.MaxScore)

	case report.CategoryArrival:
		gain = cfg.PunctualityPoints - c.Score
		msg = fmt.Sprintf("Arrive on time each week to secure all %d/%d points.",
			cfg.PunctualityPoints, c.MaxScore)

	default:
		return Suggestion{}, false
	}

	if gain <= 0 {
		return Suggestion{}, false
	}
	return Suggestion{
		Category:  string(c.Key),
		Message:   msg,
		Priority:  componentPriority(c),
		PointGain: gain,
	}, true
}

// nextRateTier returns the threshold and points of the weakest tier that
// still improves on the current sub-score. Tier tables are ordered best
// first, so the last improving entry is the next step up.
func nextRateTier(tiers []scoring.Tier, current int) (float64, int, bool) {
	for i := len(tiers) - 1; i >= 0; i-- {
		if tiers[i].Points > current {
			return tiers[i].Threshold, tiers[i].Points, true
		}
	}
	return 0, 0, false
}

func nextDecimalTier(tiers []scoring.DecimalTier, current int) (decimal.Decimal, int, bool) {
	for i := len(tiers) - 1; i >= 0; i-- {
		if tiers[i].Points > current {
			return tiers[i].Threshold, tiers[i].Points, true
		}
	}
	return decimal.Zero, 0, false
}

func bestTierPoints(tiers []scoring.Tier) int {
	best := 0
	for _, t := range tiers {
		if t.Points > best {
			best = t.Points
		}
	}
	return best
}

// componentPriority applies the thirds rule to a sub-score.
func componentPriority(c report.ScoreComponent) Priority {
	if c.MaxScore <= 0 {
		return PriorityLow
	}
	ratio := float64(c.Score) / float64(c.MaxScore)
	switch {
	case ratio < 1.0/3.0:
		return PriorityHigh
	case ratio < 2.0/3.0:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func overallPriority(gap int) Priority {
	switch {
	case gap > 30:
		return PriorityHigh
	case gap > 15:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// countUp rounds a fractional shortfall up to a whole action count, with a
// floor of one.
func countUp(v float64) int {
	n := int(math.Ceil(v))
	if n < 1 {
		n = 1
	}
	return n
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
