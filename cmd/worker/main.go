package main

import (
	"context"
	"log"
	"time"

	"SolPayCheckout/internal/chain"
	"SolPayCheckout/internal/config"
	"SolPayCheckout/internal/db"
	"SolPayCheckout/internal/provider"
	"SolPayCheckout/internal/rates"
	"SolPayCheckout/internal/store"
	"SolPayCheckout/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	ledger, err := chain.Dial(ctx, cfg.Solana.RPCEndpoint, cfg.Solana.WSEndpoint)
	if err != nil {
		log.Fatalf("solana dial failed: %v", err)
	}
	defer ledger.Close()

	converter, err := buildConverter(cfg)
	if err != nil {
		log.Fatalf("converter init failed: %v", err)
	}

	payments, err := provider.New(ledger, converter, provider.Options{
		Mnemonic:           cfg.Wallet.Mnemonic,
		ColdStorageAddress: cfg.Wallet.ColdStorageAddress,
		SessionTTL:         time.Duration(cfg.Payments.SessionTTLSeconds) * time.Second,
		SignatureScanLimit: cfg.Payments.SignatureScanLimit,
	})
	if err != nil {
		log.Fatalf("payment engine init failed: %v", err)
	}

	w := &worker.Worker{
		Store:      store.New(pool),
		Payments:   payments,
		WSEndpoint: cfg.Solana.WSEndpoint,
		Interval:   time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
	}

	log.Printf("worker started (rpc=%s)", cfg.Solana.RPCEndpoint)
	w.Run(ctx)
}

func buildConverter(cfg *config.Config) (rates.Converter, error) {
	if cfg.Converter.Provider == "coingecko" {
		return rates.NewCoinGeckoConverter(cfg.Converter.APIKey)
	}
	return rates.NewStaticConverter(), nil
}
