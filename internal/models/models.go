package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusAuthorized PaymentStatus = "authorized"
	StatusCaptured   PaymentStatus = "captured"
	StatusCanceled   PaymentStatus = "canceled"
	StatusRefunded   PaymentStatus = "refunded"
	// StatusRequiresMore is part of the status vocabulary but no
	// reconciliation path emits it; it is only passed through verbatim.
	StatusRequiresMore PaymentStatus = "requires_more"
)

// Terminal reports whether a status can no longer change.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusCaptured, StatusCanceled, StatusRefunded:
		return true
	}
	return false
}

// PaymentRecord is the unit of state for one checkout payment. The engine is
// stateless: callers hand the full record in and get an updated copy back.
// OneTimeAddress is a cache of a derivation that is always recomputable from
// ID alone; ReceivedSolAmount is recomputed from the ledger on every check.
type PaymentRecord struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"order_id,omitempty"`
	FiatAmount        decimal.Decimal `json:"amount"`
	FiatCurrency      string          `json:"currency_code"`
	QuotedSolAmount   decimal.Decimal `json:"sol_amount"`
	ReceivedSolAmount decimal.Decimal `json:"received_sol_amount"`
	OneTimeAddress    string          `json:"solana_one_time_address"`
	Status            PaymentStatus   `json:"status"`
	Description       string          `json:"description,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	ExpirationAt      time.Time       `json:"expiration_date"`
}

// Clone returns a copy so reconciliation can hand back an updated record
// without mutating the caller's.
func (r *PaymentRecord) Clone() *PaymentRecord {
	cp := *r
	return &cp
}
