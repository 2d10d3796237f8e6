package services

import (
	"context"
	"errors"

	"SolPayCheckout/internal/models"
	"SolPayCheckout/internal/provider"
	"SolPayCheckout/internal/store"

	"github.com/shopspring/decimal"
)

var (
	ErrSessionClosed = errors.New("session already in a terminal state")
	ErrNotCaptured   = errors.New("session not captured")
)

// SessionService glues the stateless payment engine to the session store.
// Every mutation goes through a guarded update so a concurrent worker pass
// and an API call cannot clobber each other.
type SessionService struct {
	Store    *store.Store
	Payments *provider.Provider
}

func (s SessionService) Create(ctx context.Context, orderID string, amount decimal.Decimal, currencyCode string) (*models.PaymentRecord, error) {
	rec, err := s.Payments.Initiate(ctx, amount, currencyCode, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.Store.CreateSession(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get reconciles a pending session against the ledger before returning it,
// so a status read is always as fresh as one worker pass.
func (s SessionService) Get(ctx context.Context, sessionID string) (*models.PaymentRecord, error) {
	rec, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.StatusPending {
		return rec, nil
	}

	_, updated, err := s.Payments.Authorize(ctx, rec)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.UpdateSession(ctx, updated, models.StatusPending); err != nil {
		return nil, err
	}
	return updated, nil
}

// Capture finalizes an authorized session and sweeps its one-time address.
func (s SessionService) Capture(ctx context.Context, sessionID string) (*models.PaymentRecord, error) {
	rec, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, ErrSessionClosed
	}

	updated, err := s.Payments.Capture(ctx, rec)
	if err != nil {
		return nil, err
	}
	n, err := s.Store.UpdateSession(ctx, updated, models.StatusPending, models.StatusAuthorized)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrSessionClosed
	}
	return updated, nil
}

func (s SessionService) Cancel(ctx context.Context, sessionID string) (*models.PaymentRecord, error) {
	rec, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, ErrSessionClosed
	}

	updated, err := s.Payments.Cancel(ctx, rec)
	if err != nil {
		return nil, err
	}
	n, err := s.Store.UpdateSession(ctx, updated, models.StatusPending, models.StatusAuthorized)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrSessionClosed
	}
	return updated, nil
}

func (s SessionService) Refund(ctx context.Context, sessionID string, amount decimal.Decimal) (*models.PaymentRecord, error) {
	rec, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.StatusCaptured {
		return nil, ErrNotCaptured
	}

	updated, err := s.Payments.Refund(ctx, rec, amount)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.UpdateSession(ctx, updated, models.StatusCaptured); err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateQuote re-prices a pending session after the cart changed.
func (s SessionService) UpdateQuote(ctx context.Context, sessionID string, amount decimal.Decimal, currencyCode string) (*models.PaymentRecord, error) {
	rec, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.StatusPending {
		return nil, ErrSessionClosed
	}

	updated, err := s.Payments.Update(ctx, rec, amount, currencyCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.UpdateSession(ctx, updated, models.StatusPending); err != nil {
		return nil, err
	}
	return updated, nil
}
