package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prismkeys/prism/internal/model"
)

const (
	defaultRecentKeys = 10
	defaultRecentLogs = 50
	maxListLimit      = 500
)

// DashboardStore is the read side of the store used by the dashboard.
type DashboardStore interface {
	ListRecentKeys(ctx context.Context, limit int) ([]model.Key, error)
	ListCooldowns(ctx context.Context) ([]model.Cooldown, error)
	ListRecentLogs(ctx context.Context, limit int) ([]model.LogEntry, error)
}

// StatsSource computes the dashboard summary.
type StatsSource interface {
	Stats(ctx context.Context) (*model.Stats, error)
}

// DashboardHandler serves the VIP-only dashboard reads.
type DashboardHandler struct {
	store  DashboardStore
	stats  StatsSource
	logger *slog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(store DashboardStore, stats StatsSource, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{store: store, stats: stats, logger: logger}
}

// Stats handles GET /api/stats.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("fetch stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RecentKeys handles GET /api/keys/recent?limit=N.
func (h *DashboardHandler) RecentKeys(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", defaultRecentKeys), 1, maxListLimit)
	keys, err := h.store.ListRecentKeys(r.Context(), limit)
	if err != nil {
		h.logger.Error("fetch recent keys", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch recent keys")
		return
	}
	if keys == nil {
		keys = []model.Key{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// Cooldowns handles GET /api/cooldowns.
func (h *DashboardHandler) Cooldowns(w http.ResponseWriter, r *http.Request) {
	cooldowns, err := h.store.ListCooldowns(r.Context())
	if err != nil {
		h.logger.Error("fetch cooldowns", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch cooldowns")
		return
	}
	if cooldowns == nil {
		cooldowns = []model.Cooldown{}
	}
	writeJSON(w, http.StatusOK, cooldowns)
}

// Logs handles GET /api/logs?limit=N.
func (h *DashboardHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", defaultRecentLogs), 1, maxListLimit)
	logs, err := h.store.ListRecentLogs(r.Context(), limit)
	if err != nil {
		h.logger.Error("fetch logs", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch logs")
		return
	}
	if logs == nil {
		logs = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}
