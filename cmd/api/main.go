package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SolPayCheckout/internal/chain"
	"SolPayCheckout/internal/config"
	"SolPayCheckout/internal/db"
	internalhttp "SolPayCheckout/internal/http"
	"SolPayCheckout/internal/provider"
	"SolPayCheckout/internal/rates"
	"SolPayCheckout/internal/services"
	"SolPayCheckout/internal/store"
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

	sessionSvc := services.SessionService{Store: store.New(pool), Payments: payments}
	h := internalhttp.NewHandler(sessionSvc)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

func buildConverter(cfg *config.Config) (rates.Converter, error) {
	if cfg.Converter.Provider == "coingecko" {
		return rates.NewCoinGeckoConverter(cfg.Converter.APIKey)
	}
	return rates.NewStaticConverter(), nil
}
