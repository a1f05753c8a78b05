/*
config.go - Tier tables and band cutoffs for the activity score

PURPOSE:
  Holds every threshold the scoring engine consults: per-category tier
  tables (weekly-rate or absolute-count thresholds mapped to points), the
  per-category maximum, and the cutoffs that translate a total into a
  performance band.

TIER SEMANTICS:
  A tier table is ordered best-first. The first tier whose threshold the
  member's value meets wins; a value below every tier scores zero.
  Rate categories compare value >= threshold, absenteeism compares
  value <= threshold, training compares exact counts with an open top tier.

SEE ALSO:
  - engine.go: applies these tables to parsed report rows
  - factory/: JSON overrides for chapters running custom thresholds
*/
package scoring

import "github.com/shopspring/decimal"

// =============================================================================
// TIER TABLES
// =============================================================================

// Tier pairs a threshold with the points awarded for meeting it.
type Tier struct {
	Threshold float64 `json:"threshold"`
	Points    int     `json:"points"`
}

// DecimalTier is a Tier for monetary categories, compared without float
// rounding.
type DecimalTier struct {
	Threshold decimal.Decimal `json:"threshold"`
	Points    int             `json:"points"`
}

// BandCutoffs are the minimum totals for each band, checked top-down.
type BandCutoffs struct {
	Top int `json:"top"`
	Mid int `json:"mid"`
	Low int `json:"low"`
}

// Config is the complete threshold set for one scoring run. Treat as
// immutable after construction.
type Config struct {
	// Rate categories, value = count / totalWeeks, best tier first.
	Referrals []Tier `json:"referrals"`
	Visitors  []Tier `json:"visitors"`

	// Testimonials score the tier when met, and TestimonialsAny for any
	// positive rate below it.
	Testimonials    []Tier `json:"testimonials"`
	TestimonialsAny int    `json:"testimonialsAny"`

	// Absenteeism tiers compare absences <= threshold, best first.
	Absenteeism []Tier `json:"absenteeism"`

	// Training awards TrainingTop for more than TrainingTopCount credits
	// and looks up exact counts below that.
	TrainingTopCount int         `json:"trainingTopCount"`
	TrainingTop      int         `json:"trainingTop"`
	TrainingExact    map[int]int `json:"trainingExact"`

	// TYFCB tiers compare the monetary total, best first.
	TYFCB []DecimalTier `json:"tyfcb"`

	// Punctuality awards PunctualityPoints when the late count is zero.
	PunctualityPoints int `json:"punctualityPoints"`

	Bands BandCutoffs `json:"bands"`
}

// Per-category maxima, used for component band colouring and suggestion
// effort math.
const (
	MaxReferrals    = 20
	MaxVisitors     = 20
	MaxAbsenteeism  = 15
	MaxTraining     = 15
	MaxTestimonials = 10
	MaxTYFCB        = 15
	MaxPunctuality  = 5

	// MaxTotal is the sum of every category maximum.
	MaxTotal = MaxReferrals + MaxVisitors + MaxAbsenteeism + MaxTraining +
		MaxTestimonials + MaxTYFCB + MaxPunctuality
)

// DefaultConfig returns the standard chapter thresholds.
func DefaultConfig() Config {
	return Config{
		Referrals: []Tier{
			{Threshold: 1.2, Points: 20},
			{Threshold: 1.0, Points: 15},
			{Threshold: 0.75, Points: 10},
			{Threshold: 0.5, Points: 5},
		},
		Visitors: []Tier{
			{Threshold: 0.75, Points: 20},
			{Threshold: 0.5, Points: 15},
			{Threshold: 0.25, Points: 10},
			{Threshold: 0.1, Points: 5},
		},
		Testimonials: []Tier{
			{Threshold: 0.075, Points: 10},
		},
		TestimonialsAny: 5,
		Absenteeism: []Tier{
			{Threshold: 0, Points: 15},
			{Threshold: 1, Points: 10},
			{Threshold: 2, Points: 5},
		},
		TrainingTopCount: 2,
		TrainingTop:      15,
		TrainingExact: map[int]int{
			2: 10,
			1: 5,
		},
		TYFCB: []DecimalTier{
			{Threshold: decimal.NewFromInt(2_000_000), Points: 15},
			{Threshold: decimal.NewFromInt(1_000_000), Points: 10},
			{Threshold: decimal.NewFromInt(500_000), Points: 5},
		},
		PunctualityPoints: 5,
		Bands: BandCutoffs{
			Top: 70,
			Mid: 50,
			Low: 30,
		},
	}
}
