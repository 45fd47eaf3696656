package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladderbot/internal/domain"
)

type fakePositionStore struct {
	byID    map[string]domain.Position
	open    []domain.Position
	history []domain.Position
	err     error
}

func (s *fakePositionStore) Create(ctx context.Context, pos domain.Position) error { return s.err }

func (s *fakePositionStore) Close(ctx context.Context, id string, exit domain.PositionExit) error {
	return s.err
}

func (s *fakePositionStore) GetOpen(ctx context.Context, pair string) ([]domain.Position, error) {
	return s.open, s.err
}

func (s *fakePositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	if s.err != nil {
		return domain.Position{}, s.err
	}
	pos, ok := s.byID[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *fakePositionStore) ListHistory(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.Position, error) {
	return s.history, s.err
}

func (s *fakePositionStore) ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Position, error) {
	return nil, s.err
}

func getRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/positions/"+id, nil)
	req.SetPathValue("id", id)
	return req
}

func TestGetPosition(t *testing.T) {
	store := &fakePositionStore{byID: map[string]domain.Position{
		"pos-1": {
			ID:             "pos-1",
			Pair:           "BTCB/USDT",
			EntryPrice:     50000,
			NotionalAmount: 2000,
			AssetAmount:    0.04,
			Status:         domain.PositionStatusOpen,
			OpenedAt:       time.Now().UTC(),
		},
	}}
	h := NewPositionHandler(store, "BTCB/USDT", discardLogger())

	rec := httptest.NewRecorder()
	h.GetPosition(rec, getRequest("pos-1"))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pos-1", body.ID)
	assert.Equal(t, 50000.0, body.EntryPrice)
}

func TestGetPositionNotFound(t *testing.T) {
	store := &fakePositionStore{byID: map[string]domain.Position{}}
	h := NewPositionHandler(store, "BTCB/USDT", discardLogger())

	rec := httptest.NewRecorder()
	h.GetPosition(rec, getRequest("missing"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPositionStoreError(t *testing.T) {
	store := &fakePositionStore{err: errors.New("pool closed")}
	h := NewPositionHandler(store, "BTCB/USDT", discardLogger())

	rec := httptest.NewRecorder()
	h.GetPosition(rec, getRequest("pos-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
