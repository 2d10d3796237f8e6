package provider

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatSolAmount renders a SOL amount with at least two and at most nine
// fractional digits.
func FormatSolAmount(amount decimal.Decimal) string {
	amount = amount.Truncate(9)
	if amount.Exponent() > -2 {
		return amount.StringFixed(2)
	}
	return amount.String()
}

// PaymentDescription builds the customer-facing summary line for a payment.
func PaymentDescription(orderID string, amount decimal.Decimal, currencyCode string, solAmount decimal.Decimal) string {
	if orderID == "" {
		orderID = "unknown"
	}
	return fmt.Sprintf("Payment for order %s: %s %s (%s SOL)",
		orderID, amount, strings.ToLower(currencyCode), FormatSolAmount(solAmount))
}
