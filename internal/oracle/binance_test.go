package oracle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladderbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"65432.10000000"}`))
	}))
	defer srv.Close()

	o := NewBinanceOracle(srv.URL, "BTCUSDT", testLogger())
	price, err := o.GetPrice(context.Background(), "BTCB/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 65432.1, price, 1e-9)
}

func TestGetPriceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	o := NewBinanceOracle(srv.URL, "NOPEUSDT", testLogger())
	_, err := o.GetPrice(context.Background(), "NOPE/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceFetch)
}

func TestGetPriceMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	o := NewBinanceOracle(srv.URL, "BTCUSDT", testLogger())
	_, err := o.GetPrice(context.Background(), "BTCB/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceFetch)
}

func TestGetPriceRejectsNonPositive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"0.00000000"}`))
	}))
	defer srv.Close()

	o := NewBinanceOracle(srv.URL, "BTCUSDT", testLogger())
	_, err := o.GetPrice(context.Background(), "BTCB/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceFetch)
}

func TestGetPriceConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	o := NewBinanceOracle(srv.URL, "BTCUSDT", testLogger())
	_, err := o.GetPrice(context.Background(), "BTCB/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceFetch)
}
