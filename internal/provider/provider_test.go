package provider

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"SolPayCheckout/internal/chain"
	"SolPayCheckout/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testCustody  = "Vote111111111111111111111111111111111111111"
)

type fakeLedger struct {
	sigs      map[string][]chain.SignatureInfo
	transfers map[string][]chain.Transfer
	blockTime map[string]time.Time

	sigErr error

	balance      uint64
	balanceErr   error
	fee          uint64
	broadcastSig solana.Signature
	broadcastErr error
	sentTx       *solana.Transaction
}

func (f *fakeLedger) RecentSignatures(_ context.Context, address solana.PublicKey, _ int) ([]chain.SignatureInfo, error) {
	if f.sigErr != nil {
		return nil, f.sigErr
	}
	return f.sigs[address.String()], nil
}

func (f *fakeLedger) TransactionTransfers(_ context.Context, sig solana.Signature) ([]chain.Transfer, time.Time, error) {
	return f.transfers[sig.String()], f.blockTime[sig.String()], nil
}

func (f *fakeLedger) Balance(context.Context, solana.PublicKey) (uint64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeLedger) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, nil
}

func (f *fakeLedger) FeeForMessage(context.Context, *solana.Message) (uint64, error) {
	return f.fee, nil
}

func (f *fakeLedger) BroadcastAndConfirm(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.broadcastErr != nil {
		return solana.Signature{}, f.broadcastErr
	}
	f.sentTx = tx
	return f.broadcastSig, nil
}

// pay records one confirmed inbound transfer to the session's address.
func (f *fakeLedger) pay(rec *models.PaymentRecord, sol string, at time.Time) {
	if f.sigs == nil {
		f.sigs = map[string][]chain.SignatureInfo{}
		f.transfers = map[string][]chain.Transfer{}
		f.blockTime = map[string]time.Time{}
	}
	addr := solana.MustPublicKeyFromBase58(rec.OneTimeAddress)
	var sig solana.Signature
	sig[0] = byte(len(f.sigs[addr.String()]) + 1)
	copy(sig[1:], addr[:])

	f.sigs[addr.String()] = append(f.sigs[addr.String()], chain.SignatureInfo{Signature: sig, BlockTime: at})
	f.transfers[sig.String()] = []chain.Transfer{{
		Destination: addr,
		Lamports:    chain.SolToLamports(decimal.RequireFromString(sol)),
	}}
	f.blockTime[sig.String()] = at
}

type fakeConverter struct {
	rate decimal.Decimal
	err  error
}

func (c *fakeConverter) ToSol(_ context.Context, amount decimal.Decimal, _ string) (decimal.Decimal, error) {
	if c.err != nil {
		return decimal.Zero, c.err
	}
	return amount.Mul(c.rate).Truncate(9), nil
}

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestProvider(t *testing.T, ledger chain.Ledger, conv *fakeConverter) *Provider {
	t.Helper()
	p, err := New(ledger, conv, Options{
		Mnemonic:           testMnemonic,
		ColdStorageAddress: testCustody,
		SessionTTL:         5 * time.Minute,
	})
	require.NoError(t, err)
	p.logger = log.New(io.Discard, "", 0)
	p.now = func() time.Time { return testBase }
	return p
}

func usdConverter() *fakeConverter {
	return &fakeConverter{rate: decimal.RequireFromString("0.0075")}
}

func TestNew(t *testing.T) {
	t.Run("rejects a malformed mnemonic", func(t *testing.T) {
		_, err := New(&fakeLedger{}, usdConverter(), Options{
			Mnemonic:           "not a phrase",
			ColdStorageAddress: testCustody,
		})
		require.Error(t, err)
		assert.Equal(t, KindDerivationFailed, KindOf(err))
	})

	t.Run("rejects a malformed custody address", func(t *testing.T) {
		_, err := New(&fakeLedger{}, usdConverter(), Options{
			Mnemonic:           testMnemonic,
			ColdStorageAddress: "nonsense",
		})
		require.Error(t, err)
		assert.Equal(t, KindInvalidData, KindOf(err))
	})
}

func TestInitiate(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, &fakeLedger{}, usdConverter())

	t.Run("opens a pending payment with a derived address", func(t *testing.T) {
		rec, err := p.Initiate(ctx, decimal.NewFromInt(100), "USD", "order_1")
		require.NoError(t, err)

		assert.Contains(t, rec.ID, "sol_")
		assert.Equal(t, models.StatusPending, rec.Status)
		assert.Equal(t, "usd", rec.FiatCurrency)
		assert.True(t, rec.QuotedSolAmount.Equal(decimal.RequireFromString("0.75")))
		assert.True(t, rec.ReceivedSolAmount.IsZero())
		assert.Equal(t, testBase, rec.CreatedAt)
		assert.Equal(t, testBase.Add(5*time.Minute), rec.ExpirationAt)
		assert.Contains(t, rec.Description, "order_1")
		assert.Contains(t, rec.Description, "0.75 SOL")

		deriver, err := chain.NewAddressDeriver(testMnemonic)
		require.NoError(t, err)
		assert.Equal(t, deriver.Address(rec.ID).String(), rec.OneTimeAddress)
	})

	t.Run("two payments get distinct ids and addresses", func(t *testing.T) {
		a, err := p.Initiate(ctx, decimal.NewFromInt(10), "usd", "order_2")
		require.NoError(t, err)
		b, err := p.Initiate(ctx, decimal.NewFromInt(10), "usd", "order_2")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
		assert.NotEqual(t, a.OneTimeAddress, b.OneTimeAddress)
	})

	t.Run("rejects a non-positive amount", func(t *testing.T) {
		_, err := p.Initiate(ctx, decimal.Zero, "usd", "order_3")
		require.Error(t, err)
		assert.Equal(t, KindInvalidData, KindOf(err))
	})

	t.Run("rejects a missing currency", func(t *testing.T) {
		_, err := p.Initiate(ctx, decimal.NewFromInt(10), "", "order_4")
		require.Error(t, err)
		assert.Equal(t, KindInvalidData, KindOf(err))
	})

	t.Run("rate failure surfaces as rate_unavailable", func(t *testing.T) {
		p := newTestProvider(t, &fakeLedger{}, &fakeConverter{err: errors.New("api down")})
		_, err := p.Initiate(ctx, decimal.NewFromInt(10), "usd", "order_5")
		require.Error(t, err)
		assert.Equal(t, KindRateUnavailable, KindOf(err))
	})
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()

	initiate := func(t *testing.T, p *Provider) *models.PaymentRecord {
		t.Helper()
		rec, err := p.Initiate(ctx, decimal.NewFromInt(100), "usd", "order_1")
		require.NoError(t, err)
		return rec
	}

	t.Run("underpaid before the deadline stays pending", func(t *testing.T) {
		ledger := &fakeLedger{}
		p := newTestProvider(t, ledger, usdConverter())
		rec := initiate(t, p)
		ledger.pay(rec, "0.5", testBase.Add(time.Minute))

		status, out, err := p.Authorize(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, status)
		assert.True(t, out.ReceivedSolAmount.Equal(decimal.RequireFromString("0.5")))
		assert.Equal(t, rec.ExpirationAt, out.ExpirationAt, "deadline untouched while pending")
	})

	t.Run("paid in full authorizes, partials accumulate", func(t *testing.T) {
		ledger := &fakeLedger{}
		p := newTestProvider(t, ledger, usdConverter())
		rec := initiate(t, p)
		ledger.pay(rec, "0.5", testBase.Add(time.Minute))
		ledger.pay(rec, "0.25", testBase.Add(2*time.Minute))

		status, out, err := p.Authorize(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAuthorized, status)
		assert.True(t, out.ReceivedSolAmount.Equal(decimal.RequireFromString("0.75")))
	})

	t.Run("exact amount is enough", func(t *testing.T) {
		ledger := &fakeLedger{}
		p := newTestProvider(t, ledger, usdConverter())
		rec := initiate(t, p)
		ledger.pay(rec, "0.75", testBase.Add(time.Minute))

		status, _, err := p.Authorize(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAuthorized, status)
	})

	t.Run("terminal records pass through without a scan", func(t *testing.T) {
		p := newTestProvider(t, &fakeLedger{sigErr: errors.New("must not be called")}, usdConverter())
		rec := initiate(t, p)
		rec.Status = models.StatusCaptured

		status, out, err := p.Authorize(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCaptured, status)
		assert.Equal(t, models.StatusCaptured, out.Status)
	})

	t.Run("address not matching the derivation is rejected", func(t *testing.T) {
		p := newTestProvider(t, &fakeLedger{}, usdConverter())
		rec := initiate(t, p)
		rec.OneTimeAddress = testCustody

		_, _, err := p.Authorize(ctx, rec)
		require.Error(t, err)
		assert.Equal(t, KindInvalidData, KindOf(err))
	})

	t.Run("scan failure aborts with ledger_query_failed", func(t *testing.T) {
		ledger := &fakeLedger{}
		p := newTestProvider(t, ledger, usdConverter())
		rec := initiate(t, p)
		ledger.sigErr = errors.New("rpc down")

		_, _, err := p.Authorize(ctx, rec)
		require.Error(t, err)
		assert.Equal(t, KindLedgerQueryFailed, KindOf(err))
	})

	t.Run("paid within the deadline but observed late authorizes", func(t *testing.T) {
		ledger := &fakeLedger{}
		p := newTestProvider(t, ledger, usdConverter())
		rec := initiate(t, p)
		ledger.pay(rec, "0.75", testBase.Add(4*time.Minute))

		p.now = func() time.Time { return testBase.Add(10 * time.Minute) }
		status, out, err := p.Authorize(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAuthorized, status)
		assert.Equal(t, models.StatusAuthorized, out.Status)
	})

	t.Run("paid late but covering the current price authorizes", func(t *testing.T) {
		ledger := &fakeLedger{}
		conv := usdConverter()
		p := newTestProvider(t, ledger, conv)
		rec := initiate(t, p)
		ledger.pay(rec, "0.6", testBase.Add(8*time.Minute))

		// Price dropped since the original quote: 100 usd is now 0.6 SOL.
		conv.rate = decimal.RequireFromString("0.006")
		p.now = func() time.Time { return testBase.Add(10 * time.Minute) }

		status, _, err := p.Authorize(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAuthorized, status)
	})

	t.Run("expired and underpaid renews the quote and deadline", func(t *testing.T) {
		ledger := &fakeLedger{}
		conv := usdConverter()
		p := newTestProvider(t, ledger, conv)
		rec := initiate(t, p)
		ledger.pay(rec, "0.5", testBase.Add(8*time.Minute))

		conv.rate = decimal.RequireFromString("0.008")
		later := testBase.Add(10 * time.Minute)
		p.now = func() time.Time { return later }

		status, out, err := p.Authorize(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, status)
		assert.True(t, out.QuotedSolAmount.Equal(decimal.RequireFromString("0.8")), "got %s", out.QuotedSolAmount)
		assert.Equal(t, later.Add(5*time.Minute), out.ExpirationAt)
		assert.True(t, out.ReceivedSolAmount.Equal(decimal.RequireFromString("0.5")), "received amount carries over")
		assert.Equal(t, rec.OneTimeAddress, out.OneTimeAddress, "address never changes")
	})

	t.Run("each renewal pushes the deadline strictly later", func(t *testing.T) {
		ledger := &fakeLedger{}
		p := newTestProvider(t, ledger, usdConverter())
		rec := initiate(t, p)

		first := testBase.Add(10 * time.Minute)
		p.now = func() time.Time { return first }
		_, out, err := p.Authorize(ctx, rec)
		require.NoError(t, err)

		second := first.Add(10 * time.Minute)
		p.now = func() time.Time { return second }
		_, out2, err := p.Authorize(ctx, out)
		require.NoError(t, err)
		assert.True(t, out2.ExpirationAt.After(out.ExpirationAt))
	})

	t.Run("requote failure during renewal surfaces as rate_unavailable", func(t *testing.T) {
		ledger := &fakeLedger{}
		conv := usdConverter()
		p := newTestProvider(t, ledger, conv)
		rec := initiate(t, p)

		conv.err = errors.New("api down")
		p.now = func() time.Time { return testBase.Add(10 * time.Minute) }

		_, _, err := p.Authorize(ctx, rec)
		require.Error(t, err)
		assert.Equal(t, KindRateUnavailable, KindOf(err))
	})

	t.Run("nil record is invalid data", func(t *testing.T) {
		p := newTestProvider(t, &fakeLedger{}, usdConverter())
		_, _, err := p.Authorize(ctx, nil)
		require.Error(t, err)
		assert.Equal(t, KindInvalidData, KindOf(err))
		assert.Contains(t, err.Error(), "no payment data found")
	})
}

func TestCapture(t *testing.T) {
	ctx := context.Background()

	t.Run("captures and sweeps to cold storage", func(t *testing.T) {
		ledger := &fakeLedger{balance: 750_000_000, fee: 5000, broadcastSig: solana.Signature{7}}
		p := newTestProvider(t, ledger, usdConverter())
		rec, err := p.Initiate(ctx, decimal.NewFromInt(100), "usd", "order_1")
		require.NoError(t, err)
		rec.Status = models.StatusAuthorized

		out, err := p.Capture(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCaptured, out.Status)
		assert.NotNil(t, ledger.sentTx, "sweep transaction broadcast")
	})

	t.Run("sweep failure does not fail the capture", func(t *testing.T) {
		ledger := &fakeLedger{balanceErr: errors.New("rpc down")}
		p := newTestProvider(t, ledger, usdConverter())
		rec, err := p.Initiate(ctx, decimal.NewFromInt(100), "usd", "order_1")
		require.NoError(t, err)

		out, err := p.Capture(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCaptured, out.Status)
	})
}

func TestSweepRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("empty address maps to insufficient_balance", func(t *testing.T) {
		p := newTestProvider(t, &fakeLedger{balance: 0}, usdConverter())
		_, err := p.Sweep(ctx, "sol_abc")
		require.Error(t, err)
		assert.Equal(t, KindInsufficientBalance, KindOf(err))
	})

	t.Run("ledger failure maps to ledger_query_failed", func(t *testing.T) {
		p := newTestProvider(t, &fakeLedger{balanceErr: errors.New("rpc down")}, usdConverter())
		_, err := p.Sweep(ctx, "sol_abc")
		require.Error(t, err)
		assert.Equal(t, KindLedgerQueryFailed, KindOf(err))
	})

	t.Run("missing payment id is invalid data", func(t *testing.T) {
		p := newTestProvider(t, &fakeLedger{}, usdConverter())
		_, err := p.Sweep(ctx, "")
		require.Error(t, err)
		assert.Equal(t, KindInvalidData, KindOf(err))
	})
}

func TestCancelRefundUpdate(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, &fakeLedger{}, usdConverter())
	rec, err := p.Initiate(ctx, decimal.NewFromInt(100), "usd", "order_1")
	require.NoError(t, err)

	t.Run("cancel marks the record canceled", func(t *testing.T) {
		out, err := p.Cancel(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCanceled, out.Status)
		assert.Equal(t, models.StatusPending, rec.Status, "input untouched")
	})

	t.Run("refund marks the record refunded", func(t *testing.T) {
		out, err := p.Refund(ctx, rec, decimal.NewFromInt(100))
		require.NoError(t, err)
		assert.Equal(t, models.StatusRefunded, out.Status)
	})

	t.Run("update requotes but keeps address and deadline", func(t *testing.T) {
		out, err := p.Update(ctx, rec, decimal.NewFromInt(200), "USD")
		require.NoError(t, err)
		assert.True(t, out.FiatAmount.Equal(decimal.NewFromInt(200)))
		assert.Equal(t, "usd", out.FiatCurrency)
		assert.True(t, out.QuotedSolAmount.Equal(decimal.RequireFromString("1.5")))
		assert.Equal(t, rec.OneTimeAddress, out.OneTimeAddress)
		assert.Equal(t, rec.ExpirationAt, out.ExpirationAt)
	})

	t.Run("update rejects a non-positive amount", func(t *testing.T) {
		_, err := p.Update(ctx, rec, decimal.Zero, "usd")
		require.Error(t, err)
		assert.Equal(t, KindInvalidData, KindOf(err))
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("terminal and authorized are returned verbatim", func(t *testing.T) {
		p := newTestProvider(t, &fakeLedger{sigErr: errors.New("must not be called")}, usdConverter())
		rec, err := p.Initiate(ctx, decimal.NewFromInt(100), "usd", "order_1")
		require.NoError(t, err)

		for _, st := range []models.PaymentStatus{
			models.StatusCaptured,
			models.StatusCanceled,
			models.StatusRefunded,
			models.StatusRequiresMore,
			models.StatusAuthorized,
		} {
			rec.Status = st
			got, err := p.Status(ctx, rec)
			require.NoError(t, err)
			assert.Equal(t, st, got)
		}
	})

	t.Run("pending re-derives from the ledger", func(t *testing.T) {
		ledger := &fakeLedger{}
		p := newTestProvider(t, ledger, usdConverter())
		rec, err := p.Initiate(ctx, decimal.NewFromInt(100), "usd", "order_1")
		require.NoError(t, err)
		ledger.pay(rec, "0.75", testBase.Add(time.Minute))

		got, err := p.Status(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAuthorized, got)
	})
}
