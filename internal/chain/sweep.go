package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// ErrInsufficientBalance means the one-time address cannot pay the network
// fee for its own sweep.
var ErrInsufficientBalance = errors.New("insufficient balance")

func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// Sweeper empties a one-time address into the custody wallet after capture.
// The one-time keypair is the sole signer and fee payer.
type Sweeper struct {
	Ledger  Ledger
	Deriver *AddressDeriver
	Custody solana.PublicKey
}

// Sweep re-derives the keypair for a payment, transfers balance minus fee to
// custody and waits for confirmation. Failures leave the funds on the
// one-time address; the sweep is retryable.
func (s Sweeper) Sweep(ctx context.Context, paymentID string) (solana.Signature, error) {
	wallet := s.Deriver.Derive(paymentID)
	from := wallet.PublicKey()

	balance, err := s.Ledger.Balance(ctx, from)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("balance of %s: %w", from, err)
	}
	if balance == 0 {
		return solana.Signature{}, fmt.Errorf("%w: address %s holds nothing", ErrInsufficientBalance, from)
	}

	blockhash, err := s.Ledger.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	// The fee does not depend on the transfer amount, so price a draft
	// moving the full balance and rebuild with the fee subtracted.
	draft, err := buildSweepTx(balance, from, s.Custody, blockhash)
	if err != nil {
		return solana.Signature{}, err
	}
	fee, err := s.Ledger.FeeForMessage(ctx, &draft.Message)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("estimate fee: %w", err)
	}
	if balance <= fee {
		return solana.Signature{}, fmt.Errorf("%w: balance %d lamports does not cover fee %d", ErrInsufficientBalance, balance, fee)
	}

	tx, err := buildSweepTx(balance-fee, from, s.Custody, blockhash)
	if err != nil {
		return solana.Signature{}, err
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &wallet
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign sweep: %w", err)
	}

	sig, err := s.Ledger.BroadcastAndConfirm(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("broadcast sweep: %w", err)
	}
	return sig, nil
}

func buildSweepTx(lamports uint64, from, to solana.PublicKey, blockhash solana.Hash) (*solana.Transaction, error) {
	ix := system.NewTransferInstruction(lamports, from, to).Build()
	return solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(from))
}
