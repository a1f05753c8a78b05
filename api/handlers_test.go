package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterpulse/score-engine/store/sqlite"
)

const mainReportCSV = `Running User:,admin@example.com
Chapter:,PATRONS
From:,01-05-25,To:,31-05-25
First Name,Last Name,P,A,L,M,S,RGI,RGO,V,T,TYFCB,CEU
Jane,Doe,3,0,0,0,0,1,1,1,0,0,0
John,Smith,4,0,0,0,0,6,0,3,1,2500000,3
`

const trainingCSV = `First Name,Last Name,Course
Jane,Doe,Member Success 1
Jane,Doe,Member Success 2
`

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRouter(NewHandler(store))
}

// multipartUpload builds the ingestion request body.
func multipartUpload(t *testing.T, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for field, content := range files {
		part, err := writer.CreateFormFile(field, field+".csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doUpload(t *testing.T, router http.Handler, files map[string]string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, files, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestUpload_EndToEnd(t *testing.T) {
	router := newTestRouter(t)

	// WHEN: a main report with a metadata preamble is uploaded
	rec := doUpload(t, router, map[string]string{"mainFile": mainReportCSV}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[UploadResponse](t, rec)
	assert.Equal(t, 2, resp.MemberCount)
	assert.Equal(t, "PATRONS", resp.Upload.Chapter)
	assert.Equal(t, "May 2025", resp.Upload.Label)
	assert.Equal(t, "2025-05-01", resp.Upload.PeriodStart)
	assert.Equal(t, "2025-05-31", resp.Upload.PeriodEnd)
	assert.Equal(t, "processed", resp.Upload.Status)

	require.Len(t, resp.Scores, 2)
	jane, john := resp.Scores[0], resp.Scores[1]
	assert.Equal(t, "Jane Doe", jane.MemberName)
	assert.Equal(t, 35, jane.TotalScore)
	assert.Equal(t, "low", string(jane.Band))
	assert.Equal(t, "John Smith", john.MemberName)
	assert.Equal(t, 100, john.TotalScore)
	assert.Equal(t, "top", string(john.Band))
	assert.Len(t, john.Components, 7)

	// THEN: the leaderboard ranks John first
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	board := decode[LeaderboardResponse](t, rec)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "John Smith", board.Entries[0].MemberName)
	assert.Equal(t, "#008000", board.Entries[0].BandColor)
}

func TestReadFormFile_MissingFileSentinel(t *testing.T) {
	body, contentType := multipartUpload(t, map[string]string{"mainFile": mainReportCSV}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	require.NoError(t, req.ParseMultipartForm(32<<10))

	// Absence is the only error the upload handler tolerates for the
	// optional training file.
	_, _, err := readFormFile(req, "trainingFile")
	assert.ErrorIs(t, err, http.ErrMissingFile)

	data, name, err := readFormFile(req, "mainFile")
	require.NoError(t, err)
	assert.Equal(t, "mainFile.csv", name)
	assert.NotEmpty(t, data)
}

func TestUpload_TrainingReportOverridesCEU(t *testing.T) {
	router := newTestRouter(t)

	rec := doUpload(t, router, map[string]string{
		"mainFile":     mainReportCSV,
		"trainingFile": trainingCSV,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[UploadResponse](t, rec)
	// Jane's two logged trainings lift her from 35 to 45.
	assert.Equal(t, 45, resp.Scores[0].TotalScore)
}

func TestUpload_ChapterOverride(t *testing.T) {
	router := newTestRouter(t)

	rec := doUpload(t, router, map[string]string{"mainFile": mainReportCSV},
		map[string]string{"chapter": "NORTHSIDE"})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[UploadResponse](t, rec)
	assert.Equal(t, "NORTHSIDE", resp.Upload.Chapter)
}

func TestUpload_MissingMainFile(t *testing.T) {
	router := newTestRouter(t)

	rec := doUpload(t, router, nil, map[string]string{"chapter": "PATRONS"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "Main report file is required")
}

func TestUpload_NoValidRows(t *testing.T) {
	router := newTestRouter(t)

	// A file with no recognizable header yields the explanatory error.
	rec := doUpload(t, router, map[string]string{"mainFile": "1,2,3\n4,5,6\n"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Details, "First Name")
	assert.Contains(t, resp.Details, "header row")
}

func TestMonthDetail(t *testing.T) {
	router := newTestRouter(t)
	rec := doUpload(t, router, map[string]string{"mainFile": mainReportCSV}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/months/2025-05", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]ScoreDTO](t, rec)
	assert.Len(t, entries, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/months/2025-06", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/months/???", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemberHistoryAndSuggestions(t *testing.T) {
	router := newTestRouter(t)
	rec := doUpload(t, router, map[string]string{"mainFile": mainReportCSV}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[[]MemberDTO](t, rec)
	require.Len(t, members, 2)
	jane := members[0]
	require.Equal(t, "Jane Doe", jane.DisplayName)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/members/%s/history?months=6", jane.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[HistoryResponse](t, rec)
	require.Len(t, history.Months, 1)
	assert.Equal(t, "2025-05", history.Months[0].Month)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/members/%s/suggestions", jane.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	advice := decode[SuggestionsResponse](t, rec)
	assert.Equal(t, 35, advice.TotalScore)
	assert.NotEmpty(t, advice.Suggestions)
	require.NotNil(t, advice.BestNextMove)
	assert.Equal(t, "training", advice.BestNextMove.Category)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members/nope/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUpload(t *testing.T) {
	router := newTestRouter(t)
	rec := doUpload(t, router, map[string]string{"mainFile": mainReportCSV}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[UploadResponse](t, rec)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/api/uploads/"+created.Upload.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/api/uploads/"+created.Upload.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHeatmapAcrossMonths(t *testing.T) {
	router := newTestRouter(t)

	rec := doUpload(t, router, map[string]string{"mainFile": mainReportCSV}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	juneCSV := `Chapter:,PATRONS
From:,01-06-25,To:,30-06-25
First Name,Last Name,P,A,RGI,V
Jane,Doe,4,0,5,3
`
	rec = doUpload(t, router, map[string]string{"mainFile": juneCSV}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/heatmap?from=2025-05&to=2025-06", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	heatmap := decode[HeatmapResponse](t, rec)
	assert.Equal(t, []string{"2025-05", "2025-06"}, heatmap.Months)
	require.Len(t, heatmap.Rows, 2)
	assert.Equal(t, "Jane Doe", heatmap.Rows[0].Member.DisplayName)
	assert.Contains(t, heatmap.Rows[0].Scores, "2025-05")
	assert.Contains(t, heatmap.Rows[0].Scores, "2025-06")
	assert.Len(t, heatmap.Rows[1].Scores, 1)
}

func TestListChaptersAndPeriods(t *testing.T) {
	router := newTestRouter(t)
	rec := doUpload(t, router, map[string]string{"mainFile": mainReportCSV}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chapters", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	chapters := decode[[]string](t, rec)
	assert.Equal(t, []string{"PATRONS"}, chapters)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/periods", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	periods := decode[[]PeriodDTO](t, rec)
	require.Len(t, periods, 1)
	assert.Equal(t, "2025-05", periods[0].MonthKey)
	assert.Equal(t, "May 2025", periods[0].Label)
	assert.Equal(t, 2, periods[0].MemberCount)
}

func TestCleanupDuplicates(t *testing.T) {
	router := newTestRouter(t)

	rec := doUpload(t, router, map[string]string{"mainFile": mainReportCSV}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// A preview upload for the same month duplicates both members.
	rec = doUpload(t, router, map[string]string{"mainFile": mainReportCSV},
		map[string]string{"source": "preview"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/cleanup-duplicates", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cleanup := decode[CleanupResponse](t, rec)
	assert.Equal(t, 2, cleanup.Deleted)
}
