/*
handlers.go - HTTP API handlers for the chapter scoring engine

PURPOSE:
  Exposes ingestion and every read view via REST. Handles HTTP
  request/response, multipart parsing, JSON serialization, and delegates
  to the ingest/scoring/store packages.

ENDPOINTS:
  Uploads:
    POST   /api/uploads                Ingest a main report (+ optional training report)
    GET    /api/uploads                List processed uploads
    DELETE /api/uploads/{id}           Delete one upload and its records

  Views:
    GET    /api/leaderboard            Latest upload ranked by score
    GET    /api/periods                Reporting months present in the store
    GET    /api/months/{month}         One month's full detail (YYYY-MM)
    GET    /api/heatmap                Member-by-month score matrix
    GET    /api/chapters               Known chapters, flagship first
    GET    /api/scores                 Scores in a month range
    DELETE /api/scores                 Delete scores in a month range

  Members:
    GET    /api/members                All tracked members
    GET    /api/members/{id}/history   Recent monthly scores (1-24, default 12)
    GET    /api/members/{id}/suggestions Improvement advice for the latest month

  Admin:
    POST   /api/admin/cleanup-duplicates Remove redundant same-month records

REQUEST FLOW (upload):
  1. Parse multipart form (main file required, training file optional)
  2. Extract rows, locate header, normalize members
  3. Score against the configured tier tables
  4. Persist as one transaction (replace-on-reupload by calendar month)
  5. Return the created upload with the full score list

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Rejected files, malformed parameters
  - 404: Unknown upload/member/month
  - 413: File over the size cap
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chapterpulse/score-engine/ingest"
	"github.com/chapterpulse/score-engine/report"
	"github.com/chapterpulse/score-engine/scoring"
	"github.com/chapterpulse/score-engine/store/sqlite"
	"github.com/chapterpulse/score-engine/suggest"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Config     scoring.Config
	Dictionary ingest.Dictionary
}

// NewHandler creates a handler with the default scoring configuration and
// header dictionary.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:      store,
		Config:     scoring.DefaultConfig(),
		Dictionary: ingest.DefaultDictionary(),
	}
}

// =============================================================================
// UPLOAD INGESTION
// =============================================================================

// Upload ingests one main report plus an optional training report.
// POST /api/uploads (multipart: mainFile, trainingFile?, chapter?, source?)
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(2 * ingest.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}

	mainData, mainName, err := readFormFile(r, "mainFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Main report file is required", err)
		return
	}

	main, err := ingest.ParseMainReport(mainData, mainName, h.Dictionary)
	if err != nil {
		writeParseError(w, "Failed to parse main report", err)
		return
	}
	if len(main.Rows) == 0 {
		writeParseError(w, "Failed to parse main report", &report.NoValidRowsError{FileName: mainName})
		return
	}

	var trainingRows []report.TrainingRow
	trainingName := ""
	data, name, err := readFormFile(r, "trainingFile")
	switch {
	case err == nil:
		training, err := ingest.ParseTrainingReport(data, name, h.Dictionary)
		if err != nil {
			writeParseError(w, "Failed to parse training report", err)
			return
		}
		trainingRows = training.Rows
		trainingName = name
	case !errors.Is(err, http.ErrMissingFile):
		// Absent is fine; a broken part is not.
		writeError(w, http.StatusBadRequest, "Failed to read training report", err)
		return
	}

	chapter := r.FormValue("chapter")
	if chapter == "" {
		chapter = main.Metadata.Chapter
	}

	source := report.SourceAdmin
	if r.FormValue("source") == string(report.SourcePreview) {
		source = report.SourcePreview
	}

	// Stamp the report period onto rows that carry no period column, so
	// score months follow the preamble dates.
	for i := range main.Rows {
		if main.Rows[i].Period.IsZero() {
			main.Rows[i].Period = main.Metadata.FromDate
		}
		if main.Rows[i].Chapter == "" {
			main.Rows[i].Chapter = chapter
		}
	}

	scores := scoring.Score(h.Config, main.Rows, trainingRows)

	upload, err := h.Store.SaveScoreRun(r.Context(), sqlite.SaveScoreRunParams{
		Scores:           scores,
		TrainingRows:     trainingRows,
		Label:            periodLabel(main.Metadata.FromDate),
		Chapter:          chapter,
		MainFileName:     mainName,
		TrainingFileName: trainingName,
		PeriodStart:      main.Metadata.FromDate,
		PeriodEnd:        main.Metadata.ToDate,
		Source:           source,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist score run", err)
		return
	}

	log.Printf("api: processed upload %s (%d members, header %s)",
		upload.ID, len(scores), main.Header.Confidence)

	dtos := make([]ScoreDTO, len(scores))
	for i, s := range scores {
		dtos[i] = toScoreDTO(s)
	}
	writeJSON(w, http.StatusCreated, UploadResponse{
		Upload:      toUploadDTO(*upload),
		MemberCount: len(scores),
		Scores:      dtos,
	})
}

// ListUploads returns processed uploads, optionally filtered by chapter.
// GET /api/uploads?chapter=
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.Store.ListUploads(r.Context(), r.URL.Query().Get("chapter"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list uploads", err)
		return
	}

	dtos := make([]UploadDTO, len(uploads))
	for i, u := range uploads {
		dtos[i] = toUploadDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteUpload removes one upload; score and training records cascade.
// DELETE /api/uploads/{id}
func (h *Handler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.Store.DeleteUpload(r.Context(), id)
	if errors.Is(err, report.ErrUploadNotFound) {
		writeError(w, http.StatusNotFound, "Upload not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete upload", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SCORE VIEWS
// =============================================================================

// Leaderboard returns the newest upload's entries ranked by score.
// GET /api/leaderboard?chapter=
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.Store.LatestLeaderboard(r.Context(), r.URL.Query().Get("chapter"))
	if errors.Is(err, report.ErrUploadNotFound) {
		writeError(w, http.StatusNotFound, "No uploads yet", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build leaderboard", err)
		return
	}

	entries := make([]ScoreDTO, len(board.Entries))
	for i, e := range board.Entries {
		entries[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{
		Upload:  toUploadDTO(board.Upload),
		Entries: entries,
	})
}

// ListPeriods returns every reporting month present in the store.
// GET /api/periods
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Store.ListPeriods(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list periods", err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = PeriodDTO{
			MonthKey:    p.MonthKey,
			Label:       periodLabel(p.Month),
			UploadCount: p.UploadCount,
			MemberCount: p.MemberCount,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MonthDetail returns every entry for one calendar month.
// GET /api/months/{month} (YYYY-MM)
func (h *Handler) MonthDetail(w http.ResponseWriter, r *http.Request) {
	month, err := time.Parse("2006-01", chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM", err)
		return
	}

	entries, err := h.Store.MonthDetail(r.Context(), month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load month detail", err)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "No scores for that month", nil)
		return
	}

	dtos := make([]ScoreDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Heatmap returns the member-by-month matrix for a range.
// GET /api/heatmap?from=YYYY-MM&to=YYYY-MM
func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseMonthRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month range", err)
		return
	}

	rows, err := h.Store.Heatmap(r.Context(), from, report.EndOfMonth(to))
	if errors.Is(err, report.ErrInvalidDateRange) {
		writeError(w, http.StatusBadRequest, "Invalid month range", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build heatmap", err)
		return
	}

	dtos := make([]HeatmapRowDTO, len(rows))
	for i, row := range rows {
		colors := make(map[string]string, len(row.Bands))
		for key, band := range row.Bands {
			colors[key] = band.Hex()
		}
		dtos[i] = HeatmapRowDTO{
			Member: toMemberDTO(row.Member),
			Scores: row.Scores,
			Colors: colors,
		}
	}
	writeJSON(w, http.StatusOK, HeatmapResponse{
		Months: monthKeys(from, to),
		Rows:   dtos,
	})
}

// ListChapters returns known chapters, flagship first.
// GET /api/chapters
func (h *Handler) ListChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := h.Store.ListChapters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list chapters", err)
		return
	}
	writeJSON(w, http.StatusOK, chapters)
}

// ListScores returns score entries in a month range.
// GET /api/scores?from=YYYY-MM&to=YYYY-MM
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseMonthRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month range", err)
		return
	}

	entries, err := h.Store.ScoresByRange(r.Context(), from, report.EndOfMonth(to))
	if errors.Is(err, report.ErrInvalidDateRange) {
		writeError(w, http.StatusBadRequest, "Invalid month range", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scores", err)
		return
	}

	dtos := make([]ScoreDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteScores removes uploads whose period falls inside a month range;
// score and training records go with them.
// DELETE /api/scores?from=YYYY-MM&to=YYYY-MM
func (h *Handler) DeleteScores(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseMonthRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month range", err)
		return
	}

	deleted, err := h.Store.DeleteScoresByRange(r.Context(), from, report.EndOfMonth(to))
	if errors.Is(err, report.ErrInvalidDateRange) {
		writeError(w, http.StatusBadRequest, "Invalid month range", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete scores", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteRangeResponse{Deleted: deleted})
}

// =============================================================================
// MEMBER VIEWS
// =============================================================================

// ListMembers returns every tracked member.
// GET /api/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MemberHistory returns a member's recent monthly scores, newest first.
// GET /api/members/{id}/history?months=N (1-24, default 12)
func (h *Handler) MemberHistory(w http.ResponseWriter, r *http.Request) {
	member, ok := h.findMember(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("months"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	records, err := h.Store.MemberHistory(r.Context(), member.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load member history", err)
		return
	}

	months := make([]ScoreDTO, len(records))
	for i, rec := range records {
		months[i] = toRecordDTO(member, rec)
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Member: toMemberDTO(member),
		Months: months,
	})
}

// MemberSuggestions returns improvement advice from a member's latest
// monthly score.
// GET /api/members/{id}/suggestions
func (h *Handler) MemberSuggestions(w http.ResponseWriter, r *http.Request) {
	member, ok := h.findMember(w, r)
	if !ok {
		return
	}

	records, err := h.Store.MemberHistory(r.Context(), member.ID, 1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load member history", err)
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "Member has no scores yet", nil)
		return
	}

	result := resultFromRecord(member, records[0])
	suggestions := suggest.Generate(h.Config, result)

	resp := SuggestionsResponse{
		Member:      toMemberDTO(member),
		Month:       report.MonthKey(records[0].PeriodMonth),
		TotalScore:  records[0].TotalScore,
		Suggestions: suggestions,
	}
	if best, ok := suggest.BestNextMove(h.Config, result); ok {
		resp.BestNextMove = &best
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ADMIN
// =============================================================================

// CleanupDuplicates removes redundant same-member same-month records.
// POST /api/admin/cleanup-duplicates
func (h *Handler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Store.CleanupDuplicates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clean up duplicates", err)
		return
	}

	log.Printf("api: duplicate cleanup removed %d score records", deleted)
	writeJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) findMember(w http.ResponseWriter, r *http.Request) (report.Member, bool) {
	id := chi.URLParam(r, "id")

	member, err := h.Store.GetMember(r.Context(), id)
	if errors.Is(err, report.ErrMemberNotFound) {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return report.Member{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return report.Member{}, false
	}
	return member, true
}

func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, ingest.MaxFileSize+1))
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

// periodLabel renders the human upload label, e.g. "May 2025".
func periodLabel(t time.Time) string {
	return report.NormalizeMonth(t).Format("January 2006")
}

// parseMonthRange reads from/to month keys; a missing range defaults to
// the last twelve months.
func parseMonthRange(r *http.Request) (time.Time, time.Time, error) {
	now := report.NormalizeMonth(time.Now().UTC())
	from := now.AddDate(0, -11, 0)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func monthKeys(from, to time.Time) []string {
	var keys []string
	for m := report.NormalizeMonth(from); !m.After(to); m = m.AddDate(0, 1, 0) {
		keys = append(keys, report.MonthKey(m))
	}
	return keys
}

// resultFromRecord rebuilds the scoring result a stored record came from,
// so the suggestion generator works off persisted raw values.
func resultFromRecord(member report.Member, rec report.ScoreRecord) report.ScoreResult {
	result := report.ScoreResult{
		MemberName:          member.DisplayName,
		Chapter:             member.Chapter,
		NormalizedName:      member.NormalizedName,
		TotalScore:          rec.TotalScore,
		Band:                rec.Band,
		ReferralsPerWeek:    rec.ReferralsPerWeek,
		VisitorsPerWeek:     rec.VisitorsPerWeek,
		TestimonialsPerWeek: rec.TestimonialsPerWeek,
		TrainingCount:       float64(rec.TrainingCount),
		TYFCB:               rec.TYFCB,
		Absences:            rec.Absences,
		LateCount:           rec.LateCount,
		TotalWeeks:          rec.TotalWeeks,
		PeriodMonth:         rec.PeriodMonth,
	}
	for i, c := range rec.Components {
		if i >= report.NumCategories {
			break
		}
		result.Components[i] = c
	}
	return result
}

func toScoreDTO(s report.ScoreResult) ScoreDTO {
	return ScoreDTO{
		MemberName: s.MemberName,
		Chapter:    s.Chapter,
		TotalScore: s.TotalScore,
		Band:       s.Band,
		BandColor:  s.Band.Hex(),
		Month:      report.MonthKey(s.PeriodMonth),
		TotalWeeks: s.TotalWeeks,
		Components: s.Components[:],
	}
}

func toEntryDTO(e sqlite.ScoreEntry) ScoreDTO {
	return toRecordDTO(e.Member, e.Score)
}

func toRecordDTO(m report.Member, rec report.ScoreRecord) ScoreDTO {
	return ScoreDTO{
		MemberID:   m.ID,
		MemberName: m.DisplayName,
		Chapter:    m.Chapter,
		TotalScore: rec.TotalScore,
		Band:       rec.Band,
		BandColor:  rec.Band.Hex(),
		Month:      report.MonthKey(rec.PeriodMonth),
		TotalWeeks: rec.TotalWeeks,
		Components: rec.Components,
	}
}

func toUploadDTO(u report.Upload) UploadDTO {
	return UploadDTO{
		ID:               u.ID,
		Label:            u.Label,
		Chapter:          u.Chapter,
		PeriodStart:      u.PeriodStart.Format("2006-01-02"),
		PeriodEnd:        u.PeriodEnd.Format("2006-01-02"),
		TotalWeeks:       u.TotalWeeks,
		Status:           string(u.Status),
		Source:           string(u.Source),
		MainFileName:     u.MainFileName,
		TrainingFileName: u.TrainingFileName,
		CreatedAt:        u.CreatedAt.Format(time.RFC3339),
	}
}

func toMemberDTO(m report.Member) MemberDTO {
	return MemberDTO{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		Chapter:     m.Chapter,
	}
}

// writeParseError maps file-rejection errors onto client statuses.
func writeParseError(w http.ResponseWriter, message string, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, report.ErrFileTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
