/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients, decoupled from the
  domain types so storage changes don't leak into the wire format.

SEE ALSO:
  - handlers.go: where these are populated
*/
package api

import (
	"github.com/chapterpulse/score-engine/report"
	"github.com/chapterpulse/score-engine/suggest"
)

// ErrorResponse is the standard error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ScoreDTO is one member's score over the wire.
type ScoreDTO struct {
	MemberID   string                  `json:"memberId,omitempty"`
	MemberName string                  `json:"memberName"`
	Chapter    string                  `json:"chapter,omitempty"`
	TotalScore int                     `json:"totalScore"`
	Band       report.Band             `json:"band"`
	BandColor  string                  `json:"bandColor"`
	Month      string                  `json:"month"`
	TotalWeeks int                     `json:"totalWeeks"`
	Components []report.ScoreComponent `json:"components"`
}

// UploadDTO summarizes one ingestion.
type UploadDTO struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	Chapter          string `json:"chapter"`
	PeriodStart      string `json:"periodStart"`
	PeriodEnd        string `json:"periodEnd"`
	TotalWeeks       int    `json:"totalWeeks"`
	Status           string `json:"status"`
	Source           string `json:"source"`
	MainFileName     string `json:"mainFileName,omitempty"`
	TrainingFileName string `json:"trainingFileName,omitempty"`
	CreatedAt        string `json:"createdAt"`
}

// UploadResponse is returned by the upload ingestion endpoint.
type UploadResponse struct {
	Upload      UploadDTO  `json:"upload"`
	MemberCount int        `json:"memberCount"`
	Scores      []ScoreDTO `json:"scores"`
}

// LeaderboardResponse is the newest upload with its ranked entries.
type LeaderboardResponse struct {
	Upload  UploadDTO  `json:"upload"`
	Entries []ScoreDTO `json:"entries"`
}

// MemberDTO is one tracked person.
type MemberDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Chapter     string `json:"chapter,omitempty"`
}

// HistoryResponse is a member's recent monthly scores, newest first.
type HistoryResponse struct {
	Member MemberDTO  `json:"member"`
	Months []ScoreDTO `json:"months"`
}

// SuggestionsResponse carries the full advice list and the single best
// next move for a member's latest score.
type SuggestionsResponse struct {
	Member       MemberDTO            `json:"member"`
	Month        string               `json:"month"`
	TotalScore   int                  `json:"totalScore"`
	Suggestions  []suggest.Suggestion `json:"suggestions"`
	BestNextMove *suggest.Suggestion  `json:"bestNextMove,omitempty"`
}

// HeatmapRowDTO is one member's row in the score matrix.
type HeatmapRowDTO struct {
	Member MemberDTO         `json:"member"`
	Scores map[string]int    `json:"scores"`
	Colors map[string]string `json:"colors"`
}

// HeatmapResponse is the member-by-month matrix plus the ordered month
// keys covering the requested range.
type HeatmapResponse struct {
	Months []string        `json:"months"`
	Rows   []HeatmapRowDTO `json:"rows"`
}

// PeriodDTO is one reporting month present in the store.
type PeriodDTO struct {
	MonthKey    string `json:"monthKey"`
	Label       string `json:"label"`
	UploadCount int    `json:"uploadCount"`
	MemberCount int    `json:"memberCount"`
}

// CleanupResponse reports a duplicate-cleanup pass.
type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

// DeleteRangeResponse reports a range deletion.
type DeleteRangeResponse struct {
	Deleted int `json:"deleted"`
}
