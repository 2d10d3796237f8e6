package provider

import (
	"context"
	"log"
	"strings"
	"time"

	"SolPayCheckout/internal/chain"
	"SolPayCheckout/internal/models"
	"SolPayCheckout/internal/rates"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultSessionTTL = 5 * time.Minute

// Options configures the provider. Mnemonic and ColdStorageAddress are
// validated at construction; a bad value there is a deployment problem and
// must stop startup.
type Options struct {
	Mnemonic           string
	ColdStorageAddress string
	SessionTTL         time.Duration
	SignatureScanLimit int
}

// Provider is the payment engine: quoting, address derivation, verification,
// reconciliation and settlement sweep. It holds no per-payment state; every
// operation takes the full record and returns an updated copy.
type Provider struct {
	converter  rates.Converter
	deriver    *chain.AddressDeriver
	verifier   chain.Verifier
	sweeper    chain.Sweeper
	sessionTTL time.Duration
	logger     *log.Logger
	now        func() time.Time
}

func New(ledger chain.Ledger, converter rates.Converter, opts Options) (*Provider, error) {
	deriver, err := chain.NewAddressDeriver(opts.Mnemonic)
	if err != nil {
		return nil, wrapError(KindDerivationFailed, "", err)
	}
	custody, err := solana.PublicKeyFromBase58(opts.ColdStorageAddress)
	if err != nil {
		return nil, newError(KindInvalidData, "", "cold storage wallet address is missing or malformed")
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Provider{
		converter:  converter,
		deriver:    deriver,
		verifier:   chain.Verifier{Ledger: ledger, SignatureLimit: opts.SignatureScanLimit},
		sweeper:    chain.Sweeper{Ledger: ledger, Deriver: deriver, Custody: custody},
		sessionTTL: ttl,
		logger:     log.Default(),
		now:        time.Now,
	}, nil
}

// SetLogger replaces the default stdlib logger.
func (p *Provider) SetLogger(l *log.Logger) { p.logger = l }

// Initiate quotes a fiat amount in SOL and opens a pending payment with a
// freshly derived one-time address.
func (p *Provider) Initiate(ctx context.Context, amount decimal.Decimal, currencyCode, orderID string) (*models.PaymentRecord, error) {
	if amount.Sign() <= 0 {
		return nil, newError(KindInvalidData, "", "amount must be positive")
	}
	if currencyCode == "" {
		return nil, newError(KindInvalidData, "", "currency code is required")
	}

	id := "sol_" + uuid.NewString()
	solAmount, err := p.converter.ToSol(ctx, amount, currencyCode)
	if err != nil {
		return nil, wrapError(KindRateUnavailable, id, err)
	}

	address := p.deriver.Address(id)
	now := p.now().UTC()
	rec := &models.PaymentRecord{
		ID:                id,
		OrderID:           orderID,
		FiatAmount:        amount,
		FiatCurrency:      strings.ToLower(currencyCode),
		QuotedSolAmount:   solAmount,
		ReceivedSolAmount: decimal.Zero,
		OneTimeAddress:    address.String(),
		Status:            models.StatusPending,
		Description:       PaymentDescription(orderID, amount, currencyCode, solAmount),
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpirationAt:      now.Add(p.sessionTTL),
	}
	p.logger.Printf("initiated payment %s: %s %s = %s SOL, address %s", id, amount, rec.FiatCurrency, solAmount, address)
	return rec, nil
}

// Authorize runs one reconciliation pass: fresh ledger scan, then the
// pending/authorized/renewal decision. The received amount is always taken
// from the scan, never from the record handed in.
func (p *Provider) Authorize(ctx context.Context, rec *models.PaymentRecord) (models.PaymentStatus, *models.PaymentRecord, error) {
	if err := validateRecord(rec); err != nil {
		return "", nil, err
	}
	if rec.Status.Terminal() {
		return rec.Status, rec.Clone(), nil
	}

	address, err := solana.PublicKeyFromBase58(rec.OneTimeAddress)
	if err != nil {
		return "", nil, newError(KindInvalidData, rec.ID, "one-time address is malformed")
	}
	// The stored address is only a cache of a reproducible derivation.
	if derived := p.deriver.Address(rec.ID); !derived.Equals(address) {
		return "", nil, newError(KindInvalidData, rec.ID, "one-time address does not match derivation")
	}

	scan, err := p.verifier.Verify(ctx, address, rec.CreatedAt)
	if err != nil {
		return "", nil, wrapError(KindLedgerQueryFailed, rec.ID, err)
	}
	received := scan.ReceivedSol()

	now := p.now().UTC()
	out := rec.Clone()
	out.ReceivedSolAmount = received
	out.UpdatedAt = now

	expired := !rec.ExpirationAt.IsZero() && now.After(rec.ExpirationAt)
	if !expired {
		if received.GreaterThanOrEqual(rec.QuotedSolAmount) {
			out.Status = models.StatusAuthorized
			p.logger.Printf("payment %s authorized (on time)", rec.ID)
			return models.StatusAuthorized, out, nil
		}
		out.Status = models.StatusPending
		return models.StatusPending, out, nil
	}

	// Paid within the deadline but observed late: the customer must not be
	// penalized for our observation lag.
	paidOnTime := !scan.LastActivity.IsZero() &&
		!scan.LastActivity.After(rec.ExpirationAt) &&
		received.GreaterThanOrEqual(rec.QuotedSolAmount)
	if paidOnTime {
		out.Status = models.StatusAuthorized
		p.logger.Printf("payment %s authorized (late confirmation, paid on time)", rec.ID)
		return models.StatusAuthorized, out, nil
	}

	// Paid late or underpaid: requote at the current rate.
	renewedAmount, err := p.converter.ToSol(ctx, rec.FiatAmount, rec.FiatCurrency)
	if err != nil {
		return "", nil, wrapError(KindRateUnavailable, rec.ID, err)
	}
	if received.GreaterThanOrEqual(renewedAmount) {
		out.Status = models.StatusAuthorized
		p.logger.Printf("payment %s authorized (paid late, covers current price)", rec.ID)
		return models.StatusAuthorized, out, nil
	}

	// Renew: new price, new deadline, same address. The customer only needs
	// to top up the difference.
	out.QuotedSolAmount = renewedAmount
	out.ExpirationAt = now.Add(p.sessionTTL)
	out.Status = models.StatusPending
	p.logger.Printf("payment %s renewed: %s SOL due until %s, %s SOL received so far",
		rec.ID, renewedAmount, out.ExpirationAt.Format(time.RFC3339), received)
	return models.StatusPending, out, nil
}

// Capture marks the payment captured and sweeps the one-time address to cold
// storage. The sweep is best effort: on failure the funds stay on the
// one-time address and the capture still stands.
func (p *Provider) Capture(ctx context.Context, rec *models.PaymentRecord) (*models.PaymentRecord, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	out := rec.Clone()
	out.Status = models.StatusCaptured
	out.UpdatedAt = p.now().UTC()
	p.logger.Printf("payment %s captured", rec.ID)

	if sig, err := p.sweeper.Sweep(ctx, rec.ID); err != nil {
		p.logger.Printf("sweep of payment %s failed: %v (funds remain on %s, retry later)", rec.ID, err, rec.OneTimeAddress)
	} else {
		p.logger.Printf("payment %s swept to cold storage: %s", rec.ID, sig)
	}
	return out, nil
}

// Sweep retries moving a captured payment's funds to cold storage.
func (p *Provider) Sweep(ctx context.Context, paymentID string) (solana.Signature, error) {
	if paymentID == "" {
		return solana.Signature{}, newError(KindInvalidData, "", "payment id is required")
	}
	sig, err := p.sweeper.Sweep(ctx, paymentID)
	if err != nil {
		kind := KindLedgerQueryFailed
		if chain.IsInsufficientBalance(err) {
			kind = KindInsufficientBalance
		}
		return solana.Signature{}, wrapError(kind, paymentID, err)
	}
	return sig, nil
}

// Cancel marks the payment canceled. Funds already received stay on the
// one-time address and need manual handling.
func (p *Provider) Cancel(_ context.Context, rec *models.PaymentRecord) (*models.PaymentRecord, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	out := rec.Clone()
	out.Status = models.StatusCanceled
	out.UpdatedAt = p.now().UTC()
	p.logger.Printf("payment %s canceled", rec.ID)
	return out, nil
}

// Refund marks the payment refunded. No on-chain transaction is issued; the
// actual refund is an operator task.
func (p *Provider) Refund(_ context.Context, rec *models.PaymentRecord, amount decimal.Decimal) (*models.PaymentRecord, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	out := rec.Clone()
	out.Status = models.StatusRefunded
	out.UpdatedAt = p.now().UTC()
	p.logger.Printf("payment %s marked refunded for %s %s", rec.ID, amount, rec.FiatCurrency)
	return out, nil
}

// Update re-quotes the payment after a deliberate amount or currency change.
// The one-time address and the expiration stay as they are.
func (p *Provider) Update(ctx context.Context, rec *models.PaymentRecord, amount decimal.Decimal, currencyCode string) (*models.PaymentRecord, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, newError(KindInvalidData, rec.ID, "amount must be positive")
	}
	solAmount, err := p.converter.ToSol(ctx, amount, currencyCode)
	if err != nil {
		return nil, wrapError(KindRateUnavailable, rec.ID, err)
	}
	out := rec.Clone()
	out.FiatAmount = amount
	out.FiatCurrency = strings.ToLower(currencyCode)
	out.QuotedSolAmount = solAmount
	out.Description = PaymentDescription(rec.OrderID, amount, currencyCode, solAmount)
	out.UpdatedAt = p.now().UTC()
	p.logger.Printf("payment %s updated to %s SOL", rec.ID, solAmount)
	return out, nil
}

// Status returns terminal statuses verbatim and re-derives everything else
// from a fresh verification pass.
func (p *Provider) Status(ctx context.Context, rec *models.PaymentRecord) (models.PaymentStatus, error) {
	if err := validateRecord(rec); err != nil {
		return "", err
	}
	switch rec.Status {
	case models.StatusCaptured, models.StatusCanceled, models.StatusRefunded, models.StatusRequiresMore:
		return rec.Status, nil
	case models.StatusAuthorized:
		return models.StatusAuthorized, nil
	}
	status, _, err := p.Authorize(ctx, rec)
	return status, err
}

func validateRecord(rec *models.PaymentRecord) error {
	if rec == nil {
		return newError(KindInvalidData, "", "no payment data found")
	}
	if rec.ID == "" {
		return newError(KindInvalidData, "", "payment id is missing")
	}
	if rec.OneTimeAddress == "" {
		return newError(KindInvalidData, rec.ID, "one-time address is missing")
	}
	return nil
}
