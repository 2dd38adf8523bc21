package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// PlaceService is the application surface served over HTTP.
type PlaceService interface {
	Places() []domain.Place
	Place(id string) (domain.Place, error)
	Ingest(ctx context.Context, req domain.IngestRequest) (domain.Place, error)
	Override(ctx context.Context, placeID string, count *int, level *domain.CrowdLevel) (domain.Place, error)
	Forecast(ctx context.Context, placeID string, hours int) ([]domain.ForecastPoint, error)
	Nearby(ctx context.Context, placeID string, radiusKm float64) ([]domain.NearbyPlace, error)
	RaiseAlert(ctx context.Context, message string, level domain.AlertLevel, placeID string) (domain.Alert, error)
	Alerts() []domain.Alert
	RecentAlerts(n int) []domain.Alert
	CheckReadiness(ctx context.Context) error
}

type handlers struct {
	svc    PlaceService
	logger *slog.Logger
}

type placeResult struct {
	OK    bool         `json:"ok"`
	Place domain.Place `json:"place"`
}

type alertResult struct {
	OK    bool         `json:"ok"`
	Alert domain.Alert `json:"alert"`
}

type forecastResult struct {
	PlaceID  string                 `json:"placeId"`
	Forecast []domain.ForecastPoint `json:"forecast"`
}

type alertRequest struct {
	Message string `json:"message"`
	Level   string `json:"level"`
	PlaceID string `json:"place_id"`
}

type overrideRequest struct {
	PlaceID    string  `json:"place_id"`
	CrowdCount *int    `json:"crowdCount"`
	CrowdLevel *string `json:"crowdLevel"`
}

// listPlaces serves the public view, optionally filtered by level, state or
// category.
func (h *handlers) listPlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var level domain.CrowdLevel
	if s := q.Get("level"); s != "" {
		parsed, err := domain.ParseCrowdLevel(s)
		if err != nil {
			h.fail(w, err)
			return
		}
		level = parsed
	}
	state, category := q.Get("state"), q.Get("category")

	out := make([]domain.Place, 0)
	for _, p := range h.svc.Places() {
		if level != "" && p.CrowdLevel != level {
			continue
		}
		if state != "" && p.State != state {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getPlace(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Place(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) forecast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hours := domain.DefaultForecastHours
	if s := r.URL.Query().Get("h"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.fail(w, domain.Invalid("h", "must be an integer"))
			return
		}
		hours = n
	}
	points, err := h.svc.Forecast(r.Context(), id, hours)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecastResult{PlaceID: id, Forecast: points})
}

func (h *handlers) nearby(w http.ResponseWriter, r *http.Request) {
	radius := domain.DefaultNearbyRadiusKm
	if s := r.URL.Query().Get("radius"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			h.fail(w, domain.Invalid("radius", "must be a number"))
			return
		}
		radius = f
	}
	results, err := h.svc.Nearby(r.Context(), chi.URLParam(r, "id"), radius)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, domain.Invalid("body", "unreadable"))
		return
	}
	req, err := domain.ParseIngestRequest(body)
	if err != nil {
		h.fail(w, err)
		return
	}
	req.Source = domain.SourceHTTP
	p, err := h.svc.Ingest(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, placeResult{OK: true, Place: p})
}

// listAlerts returns every retained alert in insertion order, or the most
// recent ?limit= alerts newest first.
func (h *handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		writeJSON(w, http.StatusOK, h.svc.Alerts())
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		h.fail(w, domain.Invalid("limit", "must be a non-negative integer"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.RecentAlerts(n))
}

func (h *handlers) adminPlaces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Places())
}

func (h *handlers) raiseAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	level, err := domain.ParseAlertLevel(req.Level)
	if err != nil {
		h.fail(w, err)
		return
	}
	alert, err := h.svc.RaiseAlert(r.Context(), req.Message, level, req.PlaceID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alertResult{OK: true, Alert: alert})
}

func (h *handlers) override(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	var level *domain.CrowdLevel
	if req.CrowdLevel != nil {
		parsed, err := domain.ParseCrowdLevel(*req.CrowdLevel)
		if err != nil {
			h.fail(w, err)
			return
		}
		level = &parsed
	}
	p, err := h.svc.Override(r.Context(), req.PlaceID, req.CrowdCount, level)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, placeResult{OK: true, Place: p})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("body", "malformed JSON")
	}
	return nil
}

// fail maps domain errors onto status codes.
func (h *handlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
