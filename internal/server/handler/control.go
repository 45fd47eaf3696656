package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"ladderbot/internal/domain"
)

// ControlHandler starts and stops the trading loop over HTTP.
type ControlHandler struct {
	bot    BotController
	logger *slog.Logger
}

// NewControlHandler creates a ControlHandler for the given controller.
func NewControlHandler(bot BotController, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{bot: bot, logger: logger.With(slog.String("handler", "control"))}
}

// StartBot starts the trading loop. Starting an already-running loop returns
// 409 without side effects.
// POST /api/bot/start
func (h *ControlHandler) StartBot(w http.ResponseWriter, r *http.Request) {
	if err := h.bot.StartBot(); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "bot already running")
			return
		}
		h.logger.Error("start failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// StopBot stops the trading loop. Stopping an already-stopped loop is a
// no-op and still returns 200.
// POST /api/bot/stop
func (h *ControlHandler) StopBot(w http.ResponseWriter, r *http.Request) {
	if err := h.bot.StopBot(); err != nil {
		h.logger.Error("stop failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to stop bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
