package chain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// LamportsPerSol is the native unit granularity (9 fractional digits).
const LamportsPerSol = 1_000_000_000

func LamportsToSol(lamports uint64) decimal.Decimal {
	return decimal.New(int64(lamports), -9)
}

func SolToLamports(sol decimal.Decimal) uint64 {
	return uint64(sol.Shift(9).IntPart())
}

// VerifyResult is what a fresh ledger scan reports for one payment address.
type VerifyResult struct {
	ReceivedLamports uint64
	// LastActivity is the confirmation time of the most recent relevant
	// transfer; zero when no relevant activity was found.
	LastActivity time.Time
}

func (r VerifyResult) ReceivedSol() decimal.Decimal {
	return LamportsToSol(r.ReceivedLamports)
}

// Verifier sums confirmed inbound transfers to a one-time address. Payment
// records have a bounded lifetime, so only a small recent-signature window is
// inspected; activity older than the window is not relevant.
type Verifier struct {
	Ledger         Ledger
	SignatureLimit int
}

// Verify scans the address history and accumulates transfers confirmed
// strictly after createdAt. Any ledger failure aborts the scan: a partial sum
// must never drive a reconciliation decision, the caller retries on its next
// poll.
func (v Verifier) Verify(ctx context.Context, address solana.PublicKey, createdAt time.Time) (VerifyResult, error) {
	limit := v.SignatureLimit
	if limit <= 0 {
		limit = 20
	}

	sigs, err := v.Ledger.RecentSignatures(ctx, address, limit)
	if err != nil {
		return VerifyResult{}, err
	}

	var res VerifyResult
	for _, info := range sigs {
		if info.Failed {
			continue
		}
		if info.BlockTime.IsZero() || !info.BlockTime.After(createdAt) {
			continue
		}

		transfers, blockTime, err := v.Ledger.TransactionTransfers(ctx, info.Signature)
		if err != nil {
			return VerifyResult{}, err
		}
		when := blockTime
		if when.IsZero() {
			when = info.BlockTime
		}
		for _, t := range transfers {
			if !t.Destination.Equals(address) {
				continue
			}
			res.ReceivedLamports += t.Lamports
			if when.After(res.LastActivity) {
				res.LastActivity = when
			}
		}
	}
	return res, nil
}
