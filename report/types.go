/*
Package report provides the core domain types for the chapter scoring engine.

PURPOSE:
  This package contains the shared vocabulary of the system: normalized report
  rows, score results with their per-category breakdown, persisted entities
  (Member, Upload, ScoreRecord, TrainingRecord), and the canonical identity
  key used to match the same person across files and periods.

KEY CONCEPTS IN THIS FILE (types.go):
  - MainReportRow:  one member's metrics for one reporting period
  - TrainingRow:    aggregated training credits for one person
  - ScoreResult:    the scoring engine's output for one member
  - ScoreComponent: one of the seven fixed scoring categories
  - Band:           four-tier performance classification (top/mid/low/bottom)

DESIGN PRINCIPLES:
  1. Purity: these types carry no I/O; parsing and persistence live elsewhere
  2. Precision: TYFCB money values use decimal.Decimal, never float64
  3. Explicitness: raw driving values (absences, late count, total weeks) are
     carried on ScoreResult so downstream views never re-derive them from rates

SEE ALSO:
  - identity.go: canonical person-key normalization
  - period.go: calendar-month helpers shared by scoring and persistence
  - errors.go: sentinel and structured errors
*/
package report

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// NORMALIZED INPUT ROWS
// =============================================================================

// MainReportRow is one validated row of the main chapter report after header
// mapping and identity resolution. Metric fields default to 0 when the source
// column is absent or non-numeric.
type MainReportRow struct {
	MemberName string
	Chapter    string
	Period     time.Time // zero when the report carries no period column

	// Meeting-status counters: present, absent, late, medical, substitute.
	P float64
	A float64
	L float64
	M float64
	S float64

	// Referrals given inside/outside, received inside/outside.
	RGI float64
	RGO float64
	RRI float64
	RRO float64

	V         float64 // visitors brought
	T         float64 // testimonials given
	OneTwoOne float64 // 1-2-1 meetings held

	TYFCB decimal.Decimal // closed-business value (monetary)
	CEU   float64         // training credits reported on the main sheet
}

// TrainingRow is one person's aggregated credit count from the training
// report. Each source row is one completed training event; rows are counted
// per person during parsing.
type TrainingRow struct {
	FirstName string
	LastName  string
	Credits   int
}

// ReportMetadata is what the header locator could recover from the preamble
// rows above the table header. Zero values mean "not found".
type ReportMetadata struct {
	Chapter  string
	FromDate time.Time
	ToDate   time.Time
}

// =============================================================================
// COLOR BANDS
// =============================================================================

// Band is one of the four fixed performance tiers. The same cutoffs apply to
// total scores and, proportionally, to each category's sub-score.
type Band string

const (
	BandTop    Band = "top"
	BandMid    Band = "mid"
	BandLow    Band = "low"
	BandBottom Band = "bottom"
)

// Hex returns the display color historically associated with the band.
func (b Band) Hex() string {
	switch b {
	case BandTop:
		return "#008000"
	case BandMid:
		return "#FFBF00"
	case BandLow:
		return "#ff0000"
	default:
		return "#808080"
	}
}

// =============================================================================
// SCORE RESULTS
// =============================================================================

// CategoryKey identifies one of the seven scoring categories. The set is
// closed; ScoreResult.Components always holds exactly one entry per key, in
// the order listed here.
type CategoryKey string

const (
	CategoryReferrals    CategoryKey = "referrals"
	CategoryVisitors     CategoryKey = "visitors"
	CategoryAbsenteeism  CategoryKey = "absenteeism"
	CategoryTraining     CategoryKey = "training"
	CategoryTestimonials CategoryKey = "testimonials"
	CategoryTYFCB        CategoryKey = "tyfcb"
	CategoryArrival      CategoryKey = "arrival"
)

// NumCategories is the fixed number of scoring categories.
const NumCategories = 7

// ScoreComponent is one category's contribution to a member's total score.
// Value is the raw driving quantity (a per-week rate, a count, or a monetary
// value rendered as float for display; the authoritative TYFCB decimal lives
// on ScoreResult).
type ScoreComponent struct {
	Key      CategoryKey `json:"key"`
	Label    string      `json:"label"`
	Value    float64     `json:"value"`
	Score    int         `json:"score"`
	MaxScore int         `json:"maxScore"`
	Band     Band        `json:"band"`
}

// ScoreResult is the scoring engine's output for one main-report row.
type ScoreResult struct {
	MemberName     string
	Chapter        string
	NormalizedName string

	TotalScore int
	Band       Band
	Components [NumCategories]ScoreComponent

	// Raw driving values, persisted verbatim so views and the suggestion
	// generator never reconstruct them from stored rates.
	ReferralsPerWeek    float64
	VisitorsPerWeek     float64
	TestimonialsPerWeek float64
	TrainingCount       float64
	TYFCB               decimal.Decimal
	Absences            float64
	LateCount           float64
	TotalWeeks          int
	PeriodMonth         time.Time // first of month
}

// =============================================================================
// PERSISTED ENTITIES
// =============================================================================

// UploadSource classifies an ingestion: administrative uploads feed the
// dashboards, preview uploads are ephemeral user experiments.
type UploadSource string

const (
	SourceAdmin   UploadSource = "admin"
	SourcePreview UploadSource = "preview"
)

// UploadStatus is the upload lifecycle. An upload is created pending, its
// child rows are written, and the status flips to processed as the final
// step of the persistence transaction.
type UploadStatus string

const (
	StatusPending   UploadStatus = "pending"
	StatusProcessed UploadStatus = "processed"
	StatusFailed    UploadStatus = "failed"
)

// Member is a person tracked across uploads. NormalizedName is the canonical
// identity key and is unique.
type Member struct {
	ID             string
	NormalizedName string
	DisplayName    string
	FirstName      string
	LastName       string
	Chapter        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Upload is a single ingestion event covering one reporting period.
type Upload struct {
	ID               string
	Label            string
	Chapter          string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	TotalWeeks       int
	Status           UploadStatus
	Source           UploadSource
	MainFileName     string
	TrainingFileName string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ScoreRecord is one member's stored result for one upload. Exactly one
// record exists per (member, upload) pair.
type ScoreRecord struct {
	ID          string
	MemberID    string
	UploadID    string
	PeriodMonth time.Time
	TotalScore  int
	Band        Band
	Components  []ScoreComponent

	ReferralsPerWeek    float64
	VisitorsPerWeek     float64
	TestimonialsPerWeek float64
	TrainingCount       int
	TYFCB               decimal.Decimal
	Absences            float64
	LateCount           float64
	TotalWeeks          int

	CreatedAt time.Time
}

// TrainingRecord is the audit copy of one training-report entry. MemberID is
// empty when the name matched no known member; unmatched entries are kept
// for traceability, never dropped.
type TrainingRecord struct {
	ID             string
	UploadID       string
	MemberID       string
	NormalizedName string
	TrainingCount  int
	RawFirstName   string
	RawLastName    string
	CreatedAt      time.Time
}
