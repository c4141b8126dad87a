package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pesalink/internal/domain"
	"pesalink/internal/domain/model"
	"pesalink/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, merchant_ref, tracking_id, business_id, amount, currency, status, redirect_url, description, callback_url, notification_id, customer_email, customer_phone, customer_first, customer_last, account_number, created_at, updated_at`

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (` + orderColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  status=$7, redirect_url=$8, updated_at=$18;`
	_, err := execSQL(ctx, r.pool, tx, q,
		o.ID, o.MerchantRef, o.TrackingID, o.BusinessID, o.Amount, o.Currency, o.Status,
		o.RedirectURL, o.Description, o.CallbackURL, o.NotificationID,
		o.CustomerEmail, o.CustomerPhone, o.CustomerFirst, o.CustomerLast, o.AccountNumber,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *orderRepo) FindByTrackingID(ctx context.Context, tx repository.Tx, trackingID string) (*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE tracking_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, trackingID)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

func (r *orderRepo) ListByBusiness(ctx context.Context, tx repository.Tx, businessID string) ([]*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE business_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, businessID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, trackingID string, status model.OrderStatus) error {
	const q = `UPDATE orders SET status=$2, updated_at=NOW() WHERE tracking_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, trackingID, status)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *orderRepo) ListActiveOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE status='ACTIVE' AND updated_at < $1 ORDER BY updated_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectOrders(rows)
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	if err := row.Scan(
		&o.ID, &o.MerchantRef, &o.TrackingID, &o.BusinessID, &o.Amount, &o.Currency, &o.Status,
		&o.RedirectURL, &o.Description, &o.CallbackURL, &o.NotificationID,
		&o.CustomerEmail, &o.CustomerPhone, &o.CustomerFirst, &o.CustomerLast, &o.AccountNumber,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]*model.Order, error) {
	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
