package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mchmarny/forecast/pkg/data"
	"github.com/mchmarny/forecast/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*httptest.Server, *data.Store) {
	t.Helper()
	s, err := data.Open(context.Background(), data.DriverSQLite, filepath.Join(t.TempDir(), data.DataFileName))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(logRequests(logger, makeRouter(s)))
	t.Cleanup(srv.Close)
	return srv, s
}

func doRequest(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func errorMessage(t *testing.T, b []byte) string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.Unmarshal(b, &m))
	return m["error"]
}

func TestAPI_ForecastFlow(t *testing.T) {
	srv, _ := setupTestServer(t)
	base := srv.URL + "/api/forecasts"

	status, b := doRequest(t, http.MethodPost, base, `{"question": "Will it ship by Q3?", "category": "Tech"}`)
	require.Equal(t, http.StatusCreated, status, string(b))
	var created idResult
	require.NoError(t, json.Unmarshal(b, &created))
	assert.Equal(t, int64(1), created.ID)

	status, b = doRequest(t, http.MethodPost, base+"/1/points", `{"estimate": 0.8, "reason": "on track"}`)
	require.Equal(t, http.StatusCreated, status, string(b))

	status, b = doRequest(t, http.MethodPost, base+"/1/points", `{"estimate": 0.6, "upper_ci": 0.5}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errorMessage(t, b), "upper bound")

	status, b = doRequest(t, http.MethodGet, base+"/1/points", "")
	require.Equal(t, http.StatusOK, status)
	var points []*data.Point
	require.NoError(t, json.Unmarshal(b, &points))
	require.Len(t, points, 1)
	assert.Equal(t, "on track", points[0].Reason)

	status, b = doRequest(t, http.MethodPost, base+"/1/resolution", `{"outcome": "no", "date": "2024-09-30"}`)
	require.Equal(t, http.StatusCreated, status, string(b))
	var res data.Resolution
	require.NoError(t, json.Unmarshal(b, &res))
	assert.Equal(t, score.No, res.Outcome)
	assert.InDelta(t, 0.64, res.Brier, 1e-9)

	status, _ = doRequest(t, http.MethodPost, base+"/1/resolution", `{"outcome": "yes"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = doRequest(t, http.MethodPost, base+"/1/points", `{"estimate": 0.1}`)
	assert.Equal(t, http.StatusConflict, status)

	status, b = doRequest(t, http.MethodGet, base+"/1", "")
	require.Equal(t, http.StatusOK, status)
	var d data.ForecastDetail
	require.NoError(t, json.Unmarshal(b, &d))
	assert.Equal(t, "Will it ship by Q3?", d.Forecast.Question)
	require.NotNil(t, d.Resolution)

	status, b = doRequest(t, http.MethodGet, base+"?status=resolved&category=Te", "")
	require.Equal(t, http.StatusOK, status)
	var list []*data.ForecastListItem
	require.NoError(t, json.Unmarshal(b, &list))
	assert.Len(t, list, 1)

	status, _ = doRequest(t, http.MethodDelete, base+"/1", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = doRequest(t, http.MethodGet, base+"/1", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_Errors(t *testing.T) {
	srv, _ := setupTestServer(t)
	base := srv.URL + "/api"

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad id", http.MethodGet, "/forecasts/abc", "", http.StatusBadRequest},
		{"missing forecast", http.MethodGet, "/forecasts/42", "", http.StatusNotFound},
		{"missing forecast points", http.MethodGet, "/forecasts/42/points", "", http.StatusNotFound},
		{"point on missing forecast", http.MethodPost, "/forecasts/42/points", `{"estimate": 0.5}`, http.StatusNotFound},
		{"bad body", http.MethodPost, "/forecasts", `{"question": `, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/forecasts", `{"title": "x"}`, http.StatusBadRequest},
		{"empty question", http.MethodPost, "/forecasts", `{"question": " "}`, http.StatusBadRequest},
		{"bad status", http.MethodGet, "/forecasts?status=pending", "", http.StatusBadRequest},
		{"bad outcome", http.MethodPost, "/forecasts/1/resolution", `{"outcome": "maybe"}`, http.StatusBadRequest},
		{"bad metric", http.MethodGet, "/scores/average?metric=spherical", "", http.StatusBadRequest},
		{"empty average", http.MethodGet, "/scores/average", "", http.StatusNotFound},
		{"empty summary", http.MethodGet, "/scores/summary?category=None", "", http.StatusNotFound},
		{"empty calibration", http.MethodGet, "/scores/calibration", "", http.StatusNotFound},
		{"bad calibration since", http.MethodGet, "/scores/calibration?since=yesterday", "", http.StatusBadRequest},
		{"stale status", http.MethodGet, "/forecasts?status=stale", "", http.StatusOK},
		{"missing post", http.MethodGet, "/posts/nope", "", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/forecasts/1", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, b := doRequest(t, tt.method, base+tt.path, tt.body)
			assert.Equal(t, tt.status, status, string(b))
		})
	}
}

func TestAPI_Scores(t *testing.T) {
	srv, s := setupTestServer(t)
	ctx := context.Background()

	for _, f := range []struct {
		category string
		estimate float64
		outcome  score.Outcome
	}{
		{"Politics", 1 - 0.316227766016838, score.Yes},
		{"US Politics", 0.547722557505166, score.No},
		{"Sports", 0.5, score.Yes},
	} {
		id, err := s.AddForecast(ctx, &data.Forecast{Question: "Q", Category: f.category})
		require.NoError(t, err)
		_, err = s.AddPoint(ctx, &data.Point{ForecastID: id, Estimate: f.estimate})
		require.NoError(t, err)
		_, err = s.ResolveForecast(ctx, id, f.outcome, time.Now())
		require.NoError(t, err)
	}

	status, b := doRequest(t, http.MethodGet, srv.URL+"/api/scores/average?metric=brier&category=Politics", "")
	require.Equal(t, http.StatusOK, status, string(b))
	var avg AverageResult
	require.NoError(t, json.Unmarshal(b, &avg))
	assert.InDelta(t, 0.20, avg.Average, 1e-9)

	status, b = doRequest(t, http.MethodGet, srv.URL+"/api/scores/average?metric=brier&category=politics", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errorMessage(t, b), "politics")

	status, b = doRequest(t, http.MethodGet, srv.URL+"/api/scores/summary", "")
	require.Equal(t, http.StatusOK, status)
	var sum score.Summary
	require.NoError(t, json.Unmarshal(b, &sum))
	assert.Equal(t, 3, sum.Forecasts)

	status, b = doRequest(t, http.MethodGet, srv.URL+"/api/scores/categories", "")
	require.Equal(t, http.StatusOK, status)
	var cats []*score.Summary
	require.NoError(t, json.Unmarshal(b, &cats))
	assert.Len(t, cats, 3)

	status, b = doRequest(t, http.MethodGet, srv.URL+"/api/scores/calibration?buckets=5", "")
	require.Equal(t, http.StatusOK, status)
	var buckets []*score.Bucket
	require.NoError(t, json.Unmarshal(b, &buckets))
	assert.NotEmpty(t, buckets)

	status, _ = doRequest(t, http.MethodGet, srv.URL+"/api/scores/calibration?since=2999-01-01", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_Posts(t *testing.T) {
	srv, s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.SavePost(ctx, &data.Post{Title: "Year in Review", Body: "Long text"})
	require.NoError(t, err)

	status, b := doRequest(t, http.MethodGet, srv.URL+"/api/posts", "")
	require.Equal(t, http.StatusOK, status)
	var list []*data.Post
	require.NoError(t, json.Unmarshal(b, &list))
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Body)

	status, b = doRequest(t, http.MethodGet, srv.URL+"/api/posts/year-in-review", "")
	require.Equal(t, http.StatusOK, status)
	var p data.Post
	require.NoError(t, json.Unmarshal(b, &p))
	assert.Equal(t, "Long text", p.Body)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{data.ErrNotFound, http.StatusNotFound},
		{score.ErrEmptyInput, http.StatusNotFound},
		{data.ErrAlreadyResolved, http.StatusConflict},
		{score.ErrDomainRange, http.StatusBadRequest},
		{score.ErrInvalidOutcome, http.StatusBadRequest},
		{score.ErrInvalidMetric, http.StatusBadRequest},
		{data.ErrInvalidPoint, http.StatusBadRequest},
		{data.ErrInvalidForecast, http.StatusBadRequest},
		{data.ErrInvalidPost, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestWriteErr_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecasts", nil)
	writeErr(rec, req, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", errorMessage(t, rec.Body.Bytes()))
}

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := logRequests(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	out := buf.String()
	assert.Contains(t, out, "path=/api/posts")
	assert.Contains(t, out, "status=418")
}
