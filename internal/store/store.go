package store

import (
	"context"

	"SolPayCheckout/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists payment sessions for the host checkout workflow. The engine
// itself is stateless; this is the collaborator that keeps records between
// polls.
type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const sessionColumns = `
	id, order_id, fiat_amount, fiat_currency, sol_amount,
	received_sol_amount, one_time_address, status, description,
	created_at, updated_at, expiration_at`

func (s *Store) CreateSession(ctx context.Context, rec *models.PaymentRecord) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payment_sessions (
			id, order_id, fiat_amount, fiat_currency, sol_amount,
			received_sol_amount, one_time_address, status, description,
			created_at, updated_at, expiration_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		rec.ID,
		rec.OrderID,
		rec.FiatAmount,
		rec.FiatCurrency,
		rec.QuotedSolAmount,
		rec.ReceivedSolAmount,
		rec.OneTimeAddress,
		rec.Status,
		rec.Description,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.ExpirationAt,
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.PaymentRecord, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT`+sessionColumns+`
		FROM payment_sessions WHERE id=$1
	`, id)

	var rec models.PaymentRecord
	if err := row.Scan(
		&rec.ID,
		&rec.OrderID,
		&rec.FiatAmount,
		&rec.FiatCurrency,
		&rec.QuotedSolAmount,
		&rec.ReceivedSolAmount,
		&rec.OneTimeAddress,
		&rec.Status,
		&rec.Description,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ExpirationAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListPendingSessions(ctx context.Context) ([]*models.PaymentRecord, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT`+sessionColumns+`
		FROM payment_sessions
		WHERE status='pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.PaymentRecord
	for rows.Next() {
		var rec models.PaymentRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.OrderID,
			&rec.FiatAmount,
			&rec.FiatCurrency,
			&rec.QuotedSolAmount,
			&rec.ReceivedSolAmount,
			&rec.OneTimeAddress,
			&rec.Status,
			&rec.Description,
			&rec.CreatedAt,
			&rec.UpdatedAt,
			&rec.ExpirationAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// UpdateSession writes a reconciled record back, guarded by the statuses the
// caller saw. A concurrent update that already moved the session past one of
// them makes this a no-op, so a lost race cannot resurrect a terminal state.
func (s *Store) UpdateSession(ctx context.Context, rec *models.PaymentRecord, expected ...models.PaymentStatus) (int64, error) {
	exp := make([]string, 0, len(expected))
	for _, st := range expected {
		exp = append(exp, string(st))
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE payment_sessions
		SET order_id=$2, fiat_amount=$3, fiat_currency=$4, sol_amount=$5,
			received_sol_amount=$6, status=$7, description=$8,
			updated_at=$9, expiration_at=$10
		WHERE id=$1 AND status = ANY($11)
	`,
		rec.ID,
		rec.OrderID,
		rec.FiatAmount,
		rec.FiatCurrency,
		rec.QuotedSolAmount,
		rec.ReceivedSolAmount,
		rec.Status,
		rec.Description,
		rec.UpdatedAt,
		rec.ExpirationAt,
		exp,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
