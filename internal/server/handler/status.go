package handler

import (
	"net/http"

	"ladderbot/internal/domain"
)

// BotController is the control surface the HTTP handlers need from the
// trading loop: start, stop, and a status snapshot.
type BotController interface {
	StartBot() error
	StopBot() error
	Status() domain.BotStatus
}

// StatusHandler serves the controller status for the dashboard.
type StatusHandler struct {
	bot  BotController
	mode string
}

// NewStatusHandler creates a StatusHandler for the given controller.
func NewStatusHandler(bot BotController, mode string) *StatusHandler {
	return &StatusHandler{bot: bot, mode: mode}
}

// GetStatus responds with the current loop state and ladder summary.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.mode,
		"status": h.bot.Status(),
	})
}
