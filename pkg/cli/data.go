package cli

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mchmarny/forecast/pkg/data"
	"github.com/mchmarny/forecast/pkg/score"
)

const maxRequestBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, data.ErrNotFound), errors.Is(err, score.ErrEmptyInput):
		return http.StatusNotFound
	case errors.Is(err, data.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, score.ErrDomainRange),
		errors.Is(err, score.ErrInvalidOutcome),
		errors.Is(err, score.ErrInvalidMetric),
		errors.Is(err, data.ErrInvalidPoint),
		errors.Is(err, data.ErrInvalidForecast),
		errors.Is(err, data.ErrInvalidPost):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v := r.PathValue("id")
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid forecast id: "+v)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("error converting query string to int", "value", v, "error", err)
		return def
	}

	if i < 1 || i > 100 {
		return def
	}

	return i
}

func listForecastsAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := data.ParseStatus(r.URL.Query().Get("status"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		list, err := s.ListForecasts(r.Context(), r.URL.Query().Get("category"), status)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func addForecastAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f data.Forecast
		if !decodeBody(w, r, &f) {
			return
		}
		f.ID = 0
		id, err := s.AddForecast(r.Context(), &f)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, &idResult{ID: id})
	}
}

func forecastAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		d, err := s.GetForecastDetail(r.Context(), id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func deleteForecastAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := s.DeleteForecast(r.Context(), id); err != nil {
			writeErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func pointsAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if _, err := s.GetForecast(r.Context(), id); err != nil {
			writeErr(w, r, err)
			return
		}
		list, err := s.GetPoints(r.Context(), id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// pointRequest is the body of a new point.
type pointRequest struct {
	Estimate float64  `json:"estimate"`
	UpperCI  *float64 `json:"upper_ci,omitempty"`
	LowerCI  *float64 `json:"lower_ci,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

func addPointAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req pointRequest
		if !decodeBody(w, r, &req) {
			return
		}
		pid, err := s.AddPoint(r.Context(), &data.Point{
			ForecastID: id,
			Estimate:   req.Estimate,
			UpperCI:    req.UpperCI,
			LowerCI:    req.LowerCI,
			Reason:     req.Reason,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, &idResult{ID: pid})
	}
}

// resolutionRequest is the body of a resolution. Outcome accepts the same
// values as the resolve command.
type resolutionRequest struct {
	Outcome string `json:"outcome"`
	Date    string `json:"date,omitempty"`
}

func resolveAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req resolutionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		outcome, err := score.ParseOutcome(req.Outcome)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		resolvedAt := time.Now().UTC()
		if req.Date != "" {
			if resolvedAt, err = parseDate(req.Date); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		res, err := s.ResolveForecast(r.Context(), id, outcome, resolvedAt)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func averageScoreAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metric := r.URL.Query().Get("metric")
		if metric == "" {
			metric = string(score.MetricBrier)
		}
		res, err := averageScore(r.Context(), s, metric, r.URL.Query().Get("category"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func scoreSummaryAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := score.Summarize(r.Context(), s, r.URL.Query().Get("category"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func categoryScoresAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.CategorySummaries(r.Context())
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func calibrationAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buckets := queryParamInt(r, "buckets", score.DefaultBuckets)
		list, err := calibration(r.Context(), s, r.URL.Query().Get("category"), r.URL.Query().Get("since"), buckets)
		var perr *time.ParseError
		if errors.As(err, &perr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func listPostsAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.ListPosts(r.Context())
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func postAPIHandler(s *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.GetPost(r.Context(), r.PathValue("slug"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
