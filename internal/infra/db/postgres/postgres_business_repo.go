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

var _ repository.BusinessRepository = (*businessRepo)(nil)

type businessRepo struct{ pool *pgxpool.Pool }

func NewBusinessRepo(pool *pgxpool.Pool) *businessRepo {
	return &businessRepo{pool: pool}
}

func (r *businessRepo) Save(ctx context.Context, tx repository.Tx, b *model.Business) error {
	const q = `
INSERT INTO businesses (id, name, consumer_key, consumer_secret, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  name=$2, consumer_key=$3, consumer_secret=$4, updated_at=$6;`
	_, err := execSQL(ctx, r.pool, tx, q, b.ID, b.Name, b.ConsumerKey, b.ConsumerSecret, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *businessRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Business, error) {
	const q = `SELECT id, name, consumer_key, consumer_secret, created_at, updated_at FROM businesses WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanBusiness(row)
}

func (r *businessRepo) FindByName(ctx context.Context, tx repository.Tx, name string) (*model.Business, error) {
	const q = `SELECT id, name, consumer_key, consumer_secret, created_at, updated_at FROM businesses WHERE name=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, name)
	if err != nil {
		return nil, err
	}
	return scanBusiness(row)
}

func (r *businessRepo) UpdateCredentials(ctx context.Context, tx repository.Tx, id, encKey, encSecret string) error {
	const q = `UPDATE businesses SET consumer_key=$2, consumer_secret=$3, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, encKey, encSecret)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBusiness(row pgx.Row) (*model.Business, error) {
	b := &model.Business{}
	if err := row.Scan(&b.ID, &b.Name, &b.ConsumerKey, &b.ConsumerSecret, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return b, nil
}
