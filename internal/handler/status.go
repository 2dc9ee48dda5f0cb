package handler

import (
	"net/http"

	"github.com/prismkeys/prism/internal/model"
)

// StatusReporter reports the command front-end's connection state.
type StatusReporter interface {
	Online() bool
	Uptime() string
}

// StatusHandler serves GET /api/bot/status.
type StatusHandler struct {
	reporter StatusReporter
}

// NewStatusHandler creates a StatusHandler. A nil reporter always reports
// offline.
func NewStatusHandler(reporter StatusReporter) *StatusHandler {
	return &StatusHandler{reporter: reporter}
}

// BotStatus is public and never fails.
func (h *StatusHandler) BotStatus(w http.ResponseWriter, r *http.Request) {
	status := model.BotStatus{Online: false, Uptime: "0s"}
	if h.reporter != nil {
		status.Online = h.reporter.Online()
		status.Uptime = h.reporter.Uptime()
	}
	writeJSON(w, http.StatusOK, status)
}
