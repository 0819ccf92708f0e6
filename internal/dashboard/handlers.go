package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gridwatt.dev/gridwatt/internal/aggregate"
	"gridwatt.dev/gridwatt/internal/store"
)

// defaultChartDays is how far back the chart endpoint looks when the caller
// does not say.
const defaultChartDays = 7

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// userID parses the {id} path value.
func userID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// handleHealth serves the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSnapshot serves the latest reading per device plus fleet totals.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	snapshot, err := s.stats.LatestSnapshot(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to build snapshot", "user_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to build snapshot")
		return
	}

	s.writeJSON(w, http.StatusOK, snapshot)
}

// handlePeriodStats serves one period's usage and cost rollup.
func (s *Server) handlePeriodStats(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	period := aggregate.Period(r.PathValue("period"))
	stats, err := s.stats.PeriodStats(r.Context(), id, period)
	if errors.Is(err, aggregate.ErrInvalidPeriod) {
		s.writeError(w, http.StatusBadRequest, "invalid period: use hour, day, week or month")
		return
	}
	if err != nil {
		s.logger.Error("failed to compute period stats", "user_id", id, "period", period, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// handleChart serves per-day chart points for the last ?days=N days.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	days := defaultChartDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 {
			s.writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
	}

	points, err := s.stats.ChartSeries(r.Context(), id, days)
	if err != nil {
		s.logger.Error("failed to build chart series", "user_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to build chart series")
		return
	}

	s.writeJSON(w, http.StatusOK, points)
}

// handleReadings serves a device's raw samples since ?since=RFC3339,
// defaulting to the last 24 hours.
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	deviceID := r.PathValue("deviceID")

	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
	}

	samples, err := s.readings.RangeByDevice(r.Context(), id, deviceID, since)
	if err != nil {
		s.logger.Error("failed to load readings",
			"user_id", id,
			"device_id", deviceID,
			"error", err,
		)
		s.writeError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}

	s.writeJSON(w, http.StatusOK, samples)
}

// handleControllerSnapshot serves one controller's rollup.
func (s *Server) handleControllerSnapshot(w http.ResponseWriter, r *http.Request) {
	controllerID := r.PathValue("id")

	snapshot, err := s.stats.ControllerSnapshot(r.Context(), controllerID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "controller not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to build controller snapshot",
			"controller_id", controllerID,
			"error", err,
		)
		s.writeError(w, http.StatusInternalServerError, "failed to build controller snapshot")
		return
	}

	s.writeJSON(w, http.StatusOK, snapshot)
}
