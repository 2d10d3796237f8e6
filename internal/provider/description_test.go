package provider

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatSolAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.75", "0.75"},
		{"1", "1.00"},
		{"0.5", "0.50"},
		{"0.123456789", "0.123456789"},
		{"0.1234567891234", "0.123456789"},
		{"2.000000001", "2.000000001"},
	}
	for _, c := range cases {
		got := FormatSolAmount(decimal.RequireFromString(c.in))
		assert.Equal(t, c.want, got, "input %s", c.in)
	}
}

func TestPaymentDescription(t *testing.T) {
	got := PaymentDescription("order_42", decimal.NewFromInt(100), "USD", decimal.RequireFromString("0.75"))
	assert.Equal(t, "Payment for order order_42: 100 usd (0.75 SOL)", got)

	got = PaymentDescription("", decimal.NewFromInt(100), "usd", decimal.RequireFromString("0.75"))
	assert.Equal(t, "Payment for order unknown: 100 usd (0.75 SOL)", got)
}
