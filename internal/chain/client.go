package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	sendandconfirmtransaction "github.com/gagliardetto/solana-go/rpc/sendAndConfirmTransaction"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// SignatureInfo is one entry of an address's recent transaction history.
type SignatureInfo struct {
	Signature solana.Signature
	// BlockTime is zero while the ledger has not reported a confirmation
	// time yet.
	BlockTime time.Time
	Failed    bool
}

// Transfer is a native SOL movement found in a confirmed transaction.
type Transfer struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Lamports    uint64
}

// Ledger is the narrow ledger-access surface the engine depends on. The RPC
// client implements it; tests substitute a fake.
type Ledger interface {
	RecentSignatures(ctx context.Context, address solana.PublicKey, limit int) ([]SignatureInfo, error)
	TransactionTransfers(ctx context.Context, sig solana.Signature) ([]Transfer, time.Time, error)
	Balance(ctx context.Context, address solana.PublicKey) (uint64, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	FeeForMessage(ctx context.Context, msg *solana.Message) (uint64, error)
	BroadcastAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Client wraps the Solana JSON-RPC and WS endpoints behind Ledger.
type Client struct {
	RPC        *rpc.Client
	WS         *ws.Client
	Commitment rpc.CommitmentType
}

// Dial connects both endpoints. The WS side backs broadcast confirmation and
// the worker's account-change notifications.
func Dial(ctx context.Context, rpcEndpoint, wsEndpoint string) (*Client, error) {
	if rpcEndpoint == "" {
		return nil, errors.New("rpc endpoint is required")
	}
	c := &Client{
		RPC:        rpc.New(rpcEndpoint),
		Commitment: rpc.CommitmentConfirmed,
	}
	if wsEndpoint != "" {
		wsClient, err := ws.Connect(ctx, wsEndpoint)
		if err != nil {
			return nil, fmt.Errorf("ws connect: %w", err)
		}
		c.WS = wsClient
	}
	return c, nil
}

func (c *Client) Close() {
	if c.WS != nil {
		c.WS.Close()
	}
}

func (c *Client) RecentSignatures(ctx context.Context, address solana.PublicKey, limit int) ([]SignatureInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	sigs, err := c.RPC.GetSignaturesForAddressWithOpts(ctx, address, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: c.Commitment,
	})
	if err != nil {
		return nil, err
	}
	out := make([]SignatureInfo, 0, len(sigs))
	for _, s := range sigs {
		info := SignatureInfo{Signature: s.Signature, Failed: s.Err != nil}
		if s.BlockTime != nil {
			info.BlockTime = s.BlockTime.Time()
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *Client) TransactionTransfers(ctx context.Context, sig solana.Signature) ([]Transfer, time.Time, error) {
	maxVersion := uint64(0)
	res, err := c.RPC.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.Commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	if res == nil || res.Transaction == nil {
		return nil, time.Time{}, fmt.Errorf("transaction %s not found", sig)
	}

	var blockTime time.Time
	if res.BlockTime != nil {
		blockTime = res.BlockTime.Time()
	}
	// A transaction that errored on-chain moved nothing.
	if res.Meta != nil && res.Meta.Err != nil {
		return nil, blockTime, nil
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, blockTime, fmt.Errorf("decode transaction %s: %w", sig, err)
	}

	msg := &tx.Message
	var transfers []Transfer
	for _, ix := range msg.Instructions {
		progID, err := msg.Program(ix.ProgramIDIndex)
		if err != nil || !progID.Equals(solana.SystemProgramID) {
			continue
		}
		accounts, err := ix.ResolveInstructionAccounts(msg)
		if err != nil {
			return nil, blockTime, fmt.Errorf("resolve accounts for %s: %w", sig, err)
		}
		decoded, err := system.DecodeInstruction(accounts, ix.Data)
		if err != nil {
			// Some other system-program instruction.
			continue
		}
		transfer, ok := decoded.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil {
			continue
		}
		transfers = append(transfers, Transfer{
			Source:      transfer.GetFundingAccount().PublicKey,
			Destination: transfer.GetRecipientAccount().PublicKey,
			Lamports:    *transfer.Lamports,
		})
	}
	return transfers, blockTime, nil
}

func (c *Client) Balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	res, err := c.RPC.GetBalance(ctx, address, c.Commitment)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := c.RPC.GetLatestBlockhash(ctx, c.Commitment)
	if err != nil {
		return solana.Hash{}, err
	}
	return res.Value.Blockhash, nil
}

func (c *Client) FeeForMessage(ctx context.Context, msg *solana.Message) (uint64, error) {
	data, err := msg.MarshalBinary()
	if err != nil {
		return 0, err
	}
	res, err := c.RPC.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(data), c.Commitment)
	if err != nil {
		return 0, err
	}
	if res.Value == nil {
		return 0, errors.New("node returned no fee for message")
	}
	return *res.Value, nil
}

func (c *Client) BroadcastAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if c.WS == nil {
		return solana.Signature{}, errors.New("ws endpoint is required for broadcast confirmation")
	}
	return sendandconfirmtransaction.SendAndConfirmTransaction(ctx, c.RPC, c.WS, tx)
}
