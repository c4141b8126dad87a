package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pesalink/internal/domain"
	"pesalink/internal/domain/model"
	"pesalink/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

// transactionRepo is append-only: there is deliberately no update statement.
type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const txnColumns = `id, order_id, tracking_id, merchant_reference, payment_method, confirmation_code, status_code, status_message, amount, currency, payment_account, created_at`

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (` + txnColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.OrderID, t.TrackingID, t.MerchantReference, t.PaymentMethod,
		t.ConfirmationCode, t.StatusCode, t.StatusMessage, t.Amount, t.Currency,
		t.PaymentAccount, t.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string) ([]*model.Transaction, error) {
	const q = `SELECT ` + txnColumns + ` FROM transactions WHERE order_id=$1 ORDER BY created_at ASC;`
	return r.list(ctx, tx, q, orderID)
}

func (r *transactionRepo) ListByTrackingID(ctx context.Context, tx repository.Tx, trackingID string) ([]*model.Transaction, error) {
	const q = `SELECT ` + txnColumns + ` FROM transactions WHERE tracking_id=$1 ORDER BY created_at ASC;`
	return r.list(ctx, tx, q, trackingID)
}

func (r *transactionRepo) list(ctx context.Context, tx repository.Tx, q string, arg string) ([]*model.Transaction, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, arg)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t := &model.Transaction{}
		if err := rows.Scan(
			&t.ID, &t.OrderID, &t.TrackingID, &t.MerchantReference, &t.PaymentMethod,
			&t.ConfirmationCode, &t.StatusCode, &t.StatusMessage, &t.Amount, &t.Currency,
			&t.PaymentAccount, &t.CreatedAt,
		); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, nil
}
