package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	coinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	rateCacheTTL     = 5 * time.Minute
)

// CoinGeckoConverter fetches the live SOL price and divides the fiat amount
// by it. Rates are cached per currency for five minutes; past the TTL a
// failed fetch is an error, never a stale substitute.
type CoinGeckoConverter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedRate
}

type cachedRate struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

func NewCoinGeckoConverter(apiKey string) (*CoinGeckoConverter, error) {
	if apiKey == "" {
		return nil, errors.New("coingecko api key is required")
	}
	return &CoinGeckoConverter{
		apiKey:  apiKey,
		baseURL: coinGeckoBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
		cache:   map[string]cachedRate{},
	}, nil
}

func (c *CoinGeckoConverter) ToSol(ctx context.Context, amount decimal.Decimal, currencyCode string) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", amount)
	}
	rate, err := c.rate(ctx, strings.ToLower(currencyCode))
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(rate).Truncate(SolDecimals), nil
}

// rate returns the fiat price of one SOL for the given currency.
func (c *CoinGeckoConverter) rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	c.mu.RLock()
	cached, ok := c.cache[currency]
	c.mu.RUnlock()
	if ok && c.now().Sub(cached.fetchedAt) < rateCacheTTL {
		return cached.rate, nil
	}

	rate, err := c.fetchRate(ctx, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch SOL/%s rate: %w", currency, err)
	}

	c.mu.Lock()
	c.cache[currency] = cachedRate{rate: rate, fetchedAt: c.now()}
	c.mu.Unlock()
	return rate, nil
}

func (c *CoinGeckoConverter) fetchRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	endpoint := c.baseURL + "/simple/price?ids=solana&vs_currencies=" + url.QueryEscape(currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("x-cg-demo-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return decimal.Zero, fmt.Errorf("coingecko http status %d: %s", resp.StatusCode, msg)
		}
		return decimal.Zero, fmt.Errorf("coingecko http status %d", resp.StatusCode)
	}

	var out map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}
	rate, ok := out["solana"][currency]
	if !ok || rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("no rate in response for %q", currency)
	}
	return rate, nil
}
