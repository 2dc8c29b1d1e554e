package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/weatherstation-core/internal/hub"
	"github.com/nerrad567/weatherstation-core/internal/metric"
	"github.com/nerrad567/weatherstation-core/internal/scheduler"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

// Health status values.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

// MetricInfo describes one metric in GET /metrics.
type MetricInfo struct {
	Name   string         `json:"name"`
	Unit   string         `json:"unit"`
	Count  int            `json:"count"`
	Latest *series.Sample `json:"latest,omitempty"`
}

// SeriesResponse is the body of GET /series/{metric}.
type SeriesResponse struct {
	Metric   string          `json:"metric"`
	Unit     string          `json:"unit"`
	Capacity int             `json:"capacity"`
	Count    int             `json:"count"`
	Samples  []series.Sample `json:"samples"`
}

type navigateRequest struct {
	Direction string `json:"direction"`
}

// handleHealth reports "ok" while the hub is connected and "degraded"
// otherwise. The HTTP status is 200 either way: the service itself is up.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.hub.Stats().State
	status := statusOK
	if state != hub.StateConnected {
		status = statusDegraded
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"hub":            state,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleHub(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Stats())
}

// handleStats gathers the counters of every running component.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"hub":               s.hub.Stats(),
		"websocket_clients": s.ws.ClientCount(),
	}
	if s.scheduler != nil {
		body["scheduler"] = s.scheduler.Stats()
	}
	if s.relay != nil {
		body["sinks"] = s.relay.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	infos := make([]MetricInfo, 0, metric.Count)
	for _, m := range metric.All() {
		info := MetricInfo{Name: m.String(), Unit: m.Unit(), Count: s.series.Len(m)}
		if latest, ok := s.series.Latest(m); ok {
			info.Latest = &latest
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": infos})
}

// handleSeries returns a metric's in-memory series, oldest first.
//
// Query parameters:
//   - since: only samples strictly after this time (RFC 3339 or Unix seconds)
//   - limit: keep only the newest N samples
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	m, ok := metricParam(w, r)
	if !ok {
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	samples := s.series.Snapshot(m)
	if !since.IsZero() {
		samples = samplesAfter(samples, since)
	}
	if limit > 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	if samples == nil {
		samples = []series.Sample{}
	}

	writeJSON(w, http.StatusOK, SeriesResponse{
		Metric:   m.String(),
		Unit:     m.Unit(),
		Capacity: s.series.Capacity(),
		Count:    len(samples),
		Samples:  samples,
	})
}

// handleArchive returns archived samples, newest first.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "archive is disabled")
		return
	}

	m, ok := metricParam(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.archive.Recent(r.Context(), m, limit)
	if err != nil {
		s.logger.Error("reading archive failed", "metric", m.String(), "error", err)
		writeInternalError(w, "reading archive failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metric":  m.String(),
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.view.State())
}

// handleNavigate moves the display one metric forward or back.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if s.navigator == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "navigation is not available")
		return
	}

	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	d, err := scheduler.ParseDirection(req.Direction)
	if err != nil {
		writeBadRequest(w, `direction must be "next" or "prev"`)
		return
	}

	s.navigator.Navigate(d)
	writeJSON(w, http.StatusOK, s.view.State())
}

// metricParam resolves the {metric} URL parameter, writing a 404 when it
// names no metric.
func metricParam(w http.ResponseWriter, r *http.Request) (metric.Metric, bool) {
	name := chi.URLParam(r, "metric")
	m, err := metric.Parse(name)
	if err != nil {
		writeNotFound(w, "unknown metric: "+name)
		return 0, false
	}
	return m, true
}

var errBadLimit = errors.New("limit must be a positive integer")

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errBadLimit
	}
	return n, nil
}

func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("since must be RFC 3339 or Unix seconds")
	}
	return t, nil
}

// samplesAfter returns the suffix of a chronological slice later than t.
func samplesAfter(samples []series.Sample, t time.Time) []series.Sample {
	for i, sample := range samples {
		if sample.Time.After(t) {
			return samples[i:]
		}
	}
	return nil
}
