package repository

import (
	"context"

	"pesalink/internal/domain/model"
)

// TransactionRepository is append-only: rows are written once per confirmed
// status observation and never updated in place.
type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	ListByOrder(ctx context.Context, tx Tx, orderID string) ([]*model.Transaction, error)
	ListByTrackingID(ctx context.Context, tx Tx, trackingID string) ([]*model.Transaction, error)
}
