package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConverter(t *testing.T, handler http.HandlerFunc) (*CoinGeckoConverter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewCoinGeckoConverter("test-key")
	require.NoError(t, err)
	c.baseURL = srv.URL
	c.client = srv.Client()
	return c, srv
}

func TestCoinGeckoConverter(t *testing.T) {
	ctx := context.Background()

	t.Run("requires an api key", func(t *testing.T) {
		_, err := NewCoinGeckoConverter("")
		require.Error(t, err)
	})

	t.Run("divides fiat amount by the live rate", func(t *testing.T) {
		c, _ := newTestConverter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.Header.Get("x-cg-demo-api-key"))
			assert.Equal(t, "solana", r.URL.Query().Get("ids"))
			assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
			w.Write([]byte(`{"solana":{"usd":200}}`))
		})

		got, err := c.ToSol(ctx, decimal.NewFromInt(100), "USD")
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString("0.5")), "got %s", got)
	})

	t.Run("caches the rate for five minutes", func(t *testing.T) {
		var calls atomic.Int32
		c, _ := newTestConverter(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write([]byte(`{"solana":{"usd":100}}`))
		})

		base := time.Now()
		c.now = func() time.Time { return base }

		_, err := c.ToSol(ctx, decimal.NewFromInt(10), "usd")
		require.NoError(t, err)
		_, err = c.ToSol(ctx, decimal.NewFromInt(20), "usd")
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())

		c.now = func() time.Time { return base.Add(rateCacheTTL + time.Second) }
		_, err = c.ToSol(ctx, decimal.NewFromInt(30), "usd")
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("caches per currency", func(t *testing.T) {
		var calls atomic.Int32
		c, _ := newTestConverter(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			cur := r.URL.Query().Get("vs_currencies")
			w.Write([]byte(`{"solana":{"` + cur + `":100}}`))
		})

		_, err := c.ToSol(ctx, decimal.NewFromInt(10), "usd")
		require.NoError(t, err)
		_, err = c.ToSol(ctx, decimal.NewFromInt(10), "eur")
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("upstream failure is an error", func(t *testing.T) {
		c, _ := newTestConverter(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		})

		_, err := c.ToSol(ctx, decimal.NewFromInt(10), "usd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "usd")
	})

	t.Run("missing rate in the body is an error", func(t *testing.T) {
		c, _ := newTestConverter(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"solana":{}}`))
		})

		_, err := c.ToSol(ctx, decimal.NewFromInt(10), "usd")
		require.Error(t, err)
	})
}
