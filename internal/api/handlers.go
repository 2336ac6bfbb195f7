// Package api exposes the HTTP control surface of the activity monitor.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/activitymonitor/internal/auth"
	"example.com/activitymonitor/internal/domain"
	"example.com/activitymonitor/internal/monitor"
	"example.com/activitymonitor/internal/persistence"
	"example.com/activitymonitor/internal/settings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// EpisodeLog is the part of the episode log served over HTTP.
type EpisodeLog interface {
	Page(cursor *domain.Cursor, limit int) ([]domain.EpisodeLogEntry, *domain.Cursor)
	Clear()
}

// Monitor is the lifecycle controller driven by the start/stop endpoints.
type Monitor interface {
	Start(ctx context.Context)
	Stop()
	Status() monitor.Status
}

// SettingsStore holds the live enablement configuration.
type SettingsStore interface {
	EnablementConfig() domain.EnablementConfig
	Update(domain.EnablementConfig) error
}

// Handler serves the control API.
type Handler struct {
	episodes EpisodeLog
	monitor  Monitor
	settings SettingsStore
	now      func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(episodes EpisodeLog, mon Monitor, store SettingsStore) *Handler {
	return &Handler{
		episodes: episodes,
		monitor:  mon,
		settings: store,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/episodes", h.episodesRoute)
	mux.HandleFunc("/v1/monitoring", h.monitoringStatus)
	mux.HandleFunc("/v1/monitoring/start", h.startMonitoring)
	mux.HandleFunc("/v1/monitoring/stop", h.stopMonitoring)
	mux.HandleFunc("/v1/settings", h.settingsRoute)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) episodesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listEpisodes(w, r)
	case http.MethodDelete:
		h.clearEpisodes(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listEpisodes(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeEpisodesRead, auth.ScopeEpisodesWrite) {
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxPageSize)
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next := h.episodes.Page(cursor, limit)
	now := h.now()
	items := make([]EpisodeView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toEpisodeView(entry, now))
	}

	writeJSON(w, http.StatusOK, ListEpisodesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) clearEpisodes(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeEpisodesWrite) {
		return
	}
	h.episodes.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) monitoringStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeEpisodesRead, auth.ScopeMonitoringWrite) {
		return
	}
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

func (h *Handler) startMonitoring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeMonitoringWrite) {
		return
	}

	h.monitor.Start(r.Context())
	status := h.monitor.Status()
	if !status.Running {
		writeJSON(w, http.StatusConflict, MonitoringStartFailure{
			Type:   "monitoring_unavailable",
			Detail: startFailureDetail(status),
			Status: status,
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) stopMonitoring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeMonitoringWrite) {
		return
	}

	h.monitor.Stop()
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

func (h *Handler) settingsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, auth.ScopeEpisodesRead, auth.ScopeMonitoringWrite) {
			return
		}
		writeJSON(w, http.StatusOK, toSettingsView(h.settings.EnablementConfig()))
	case http.MethodPut:
		h.updateSettings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeMonitoringWrite) {
		return
	}

	var req SettingsView
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.settings.Update(req.toConfig()); err != nil {
		if errors.Is(err, settings.ErrNegativeDuration) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(h.settings.EnablementConfig()))
}

// requireScope accepts the request when the caller holds any of scopes.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	for _, scope := range scopes {
		if principal.Can(scope) {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return false
}

func startFailureDetail(status monitor.Status) string {
	switch {
	case !status.Available:
		return "activity sensing is unavailable"
	case status.Authorization != domain.AuthorizationAuthorized:
		return "activity sensing is not authorized"
	default:
		return "monitoring did not start"
	}
}

// EpisodeView is the wire form of a log entry.
type EpisodeView struct {
	ID              string     `json:"id"`
	ActivityType    string     `json:"activity_type"`
	OverrideName    string     `json:"override_name,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Open            bool       `json:"open"`
	DurationSeconds int64      `json:"duration_seconds"`
}

// ListEpisodesResponse packages list results.
type ListEpisodesResponse struct {
	Items      []EpisodeView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// MonitoringStartFailure explains why a start request left monitoring stopped.
type MonitoringStartFailure struct {
	Type   string         `json:"type"`
	Detail string         `json:"detail"`
	Status monitor.Status `json:"status"`
}

// ActivitySettingsView carries one activity's preferences.
type ActivitySettingsView struct {
	Enabled      bool   `json:"enabled"`
	OverrideName string `json:"override_name"`
}

// SettingsView is the body of GET and PUT /v1/settings. Durations are whole minutes.
type SettingsView struct {
	Walking               ActivitySettingsView `json:"walking"`
	Running               ActivitySettingsView `json:"running"`
	Cycling               ActivitySettingsView `json:"cycling"`
	Other                 ActivitySettingsView `json:"other"`
	MinimumSustainMinutes int                  `json:"minimum_sustain_minutes"`
	StopGraceMinutes      int                  `json:"stop_grace_minutes"`
}

func (v SettingsView) toConfig() domain.EnablementConfig {
	return domain.EnablementConfig{
		Walking:        domain.ActivitySettings(v.Walking),
		Running:        domain.ActivitySettings(v.Running),
		Cycling:        domain.ActivitySettings(v.Cycling),
		Other:          domain.ActivitySettings(v.Other),
		MinimumSustain: settings.Minutes(v.MinimumSustainMinutes),
		StopGrace:      settings.Minutes(v.StopGraceMinutes),
	}
}

func toSettingsView(cfg domain.EnablementConfig) SettingsView {
	return SettingsView{
		Walking:               ActivitySettingsView(cfg.Walking),
		Running:               ActivitySettingsView(cfg.Running),
		Cycling:               ActivitySettingsView(cfg.Cycling),
		Other:                 ActivitySettingsView(cfg.Other),
		MinimumSustainMinutes: int(cfg.MinimumSustain / time.Minute),
		StopGraceMinutes:      int(cfg.StopGrace / time.Minute),
	}
}

func toEpisodeView(entry domain.EpisodeLogEntry, now time.Time) EpisodeView {
	return EpisodeView{
		ID:              entry.ID,
		ActivityType:    string(entry.ActivityType),
		OverrideName:    strings.TrimSpace(entry.OverrideName),
		StartedAt:       entry.StartedAt,
		EndedAt:         entry.EndedAt,
		Open:            entry.Open(),
		DurationSeconds: int64(entry.Duration(now) / time.Second),
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
