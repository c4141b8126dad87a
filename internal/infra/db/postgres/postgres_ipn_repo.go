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

var _ repository.IpnRegistrationRepository = (*ipnRepo)(nil)

type ipnRepo struct{ pool *pgxpool.Pool }

func NewIpnRepo(pool *pgxpool.Pool) *ipnRepo {
	return &ipnRepo{pool: pool}
}

func (r *ipnRepo) Save(ctx context.Context, tx repository.Tx, reg *model.IpnRegistration) error {
	const q = `
INSERT INTO ipn_registrations (id, business_id, ipn_id, url, notification_type, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  ipn_id=$3, url=$4, notification_type=$5, updated_at=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, reg.ID, reg.BusinessID, reg.IpnID, reg.URL, reg.NotificationType, reg.CreatedAt, reg.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *ipnRepo) ListByBusiness(ctx context.Context, tx repository.Tx, businessID string) ([]*model.IpnRegistration, error) {
	const q = `SELECT id, business_id, ipn_id, url, notification_type, created_at, updated_at FROM ipn_registrations WHERE business_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, businessID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.IpnRegistration
	for rows.Next() {
		reg := &model.IpnRegistration{}
		if err := rows.Scan(&reg.ID, &reg.BusinessID, &reg.IpnID, &reg.URL, &reg.NotificationType, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, reg)
	}
	return out, nil
}
