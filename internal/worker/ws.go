package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"SolPayCheckout/internal/models"
)

// watchCycle bounds one subscription round so the watch list picks up
// sessions created after the subscriptions were opened.
const watchCycle = time.Minute

func (w *Worker) RunWS(ctx context.Context) {
	if w.WSEndpoint == "" {
		log.Printf("ws disabled: ws_endpoint is empty")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		client, err := ws.Connect(ctx, w.WSEndpoint)
		if err != nil {
			log.Printf("ws connect failed: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}
		log.Printf("ws connected %s", w.WSEndpoint)

		for {
			if err := w.watchOnce(ctx, client); err != nil {
				log.Printf("ws watch failed: %v", err)
				break
			}
			select {
			case <-ctx.Done():
				client.Close()
				return
			default:
			}
		}

		client.Close()
		time.Sleep(2 * time.Second)
	}
}

// watchOnce subscribes to every pending one-time address for one cycle and
// reconciles a session as soon as its account changes.
func (w *Worker) watchOnce(ctx context.Context, client *ws.Client) error {
	sessions, err := w.Store.ListPendingSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(watchCycle):
		}
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, watchCycle)
	defer cancel()

	var wg sync.WaitGroup
	for _, rec := range sessions {
		wg.Add(1)
		go func(rec *models.PaymentRecord) {
			defer wg.Done()
			w.watchSession(wctx, client, rec)
		}(rec)
	}
	wg.Wait()
	return nil
}

func (w *Worker) watchSession(ctx context.Context, client *ws.Client, rec *models.PaymentRecord) {
	address, err := solana.PublicKeyFromBase58(rec.OneTimeAddress)
	if err != nil {
		log.Printf("ws session %s has malformed address %q: %v", rec.ID, rec.OneTimeAddress, err)
		return
	}

	sub, err := client.AccountSubscribeWithOpts(address, rpc.CommitmentConfirmed, solana.EncodingBase64)
	if err != nil {
		log.Printf("ws subscribe %s failed: %v", rec.OneTimeAddress, err)
		return
	}
	defer sub.Unsubscribe()

	for {
		if _, err := sub.Recv(ctx); err != nil {
			return
		}
		log.Printf("ws activity on %s, reconciling session %s", rec.OneTimeAddress, rec.ID)
		if err := w.reconcileSession(ctx, rec.ID); err != nil {
			log.Printf("ws reconcile session %s failed: %v", rec.ID, err)
		}
	}
}
