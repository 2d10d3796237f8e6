package chain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// fakeLedger serves canned history keyed by address and signature.
type fakeLedger struct {
	sigs      map[string][]SignatureInfo
	transfers map[string][]Transfer
	blockTime map[string]time.Time

	sigErr error
	txErr  error

	balance      uint64
	balanceErr   error
	blockhash    solana.Hash
	blockhashErr error
	fee          uint64
	feeErr       error

	broadcastErr error
	broadcastSig solana.Signature
	sentTx       *solana.Transaction
}

func (f *fakeLedger) RecentSignatures(_ context.Context, address solana.PublicKey, _ int) ([]SignatureInfo, error) {
	if f.sigErr != nil {
		return nil, f.sigErr
	}
	return f.sigs[address.String()], nil
}

func (f *fakeLedger) TransactionTransfers(_ context.Context, sig solana.Signature) ([]Transfer, time.Time, error) {
	if f.txErr != nil {
		return nil, time.Time{}, f.txErr
	}
	return f.transfers[sig.String()], f.blockTime[sig.String()], nil
}

func (f *fakeLedger) Balance(context.Context, solana.PublicKey) (uint64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeLedger) LatestBlockhash(context.Context) (solana.Hash, error) {
	return f.blockhash, f.blockhashErr
}

func (f *fakeLedger) FeeForMessage(context.Context, *solana.Message) (uint64, error) {
	return f.fee, f.feeErr
}

func (f *fakeLedger) BroadcastAndConfirm(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.broadcastErr != nil {
		return solana.Signature{}, f.broadcastErr
	}
	f.sentTx = tx
	return f.broadcastSig, nil
}
