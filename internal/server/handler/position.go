package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"ladderbot/internal/domain"
)

// PositionHandler serves position queries from the durable store.
type PositionHandler struct {
	store  domain.PositionStore
	pair   string
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler for the given pair.
func NewPositionHandler(store domain.PositionStore, pair string, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		store:  store,
		pair:   pair,
		logger: logger.With(slog.String("handler", "positions")),
	}
}

// ListPositions returns positions for the traded pair. With ?status=open only
// the open ladder is returned; otherwise full history with pagination.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var (
		positions []domain.Position
		err       error
	)

	if r.URL.Query().Get("status") == "open" {
		positions, err = h.store.GetOpen(r.Context(), h.pair)
	} else {
		positions, err = h.store.ListHistory(r.Context(), h.pair, parseListOpts(r))
	}
	if err != nil {
		h.logger.Error("list positions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pair":      h.pair,
		"positions": positions,
		"count":     len(positions),
	})
}

// GetPosition returns a single position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	pos, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.Error("get position failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
