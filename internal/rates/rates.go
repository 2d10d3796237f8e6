package rates

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SolDecimals is the lamport granularity: quotes never carry more than nine
// fractional digits.
const SolDecimals = 9

// Converter turns a fiat amount into SOL.
type Converter interface {
	ToSol(ctx context.Context, amount decimal.Decimal, currencyCode string) (decimal.Decimal, error)
}

// StaticConverter prices with a fixed SOL-per-unit rate table. Unknown
// currencies are an error, never a default rate.
type StaticConverter struct {
	Rates map[string]decimal.Decimal
}

func NewStaticConverter() *StaticConverter {
	return &StaticConverter{
		Rates: map[string]decimal.Decimal{
			"usd": decimal.RequireFromString("0.0075"),
			"eur": decimal.RequireFromString("0.008"),
		},
	}
}

func (c *StaticConverter) ToSol(_ context.Context, amount decimal.Decimal, currencyCode string) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", amount)
	}
	rate, ok := c.Rates[strings.ToLower(currencyCode)]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency %q", currencyCode)
	}
	return amount.Mul(rate).Truncate(SolDecimals), nil
}
