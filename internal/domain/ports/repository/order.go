package repository

import (
	"context"
	"time"

	"pesalink/internal/domain/model"
)

type OrderRepository interface {
	Save(ctx context.Context, tx Tx, o *model.Order) error
	FindByTrackingID(ctx context.Context, tx Tx, trackingID string) (*model.Order, error)
	ListByBusiness(ctx context.Context, tx Tx, businessID string) ([]*model.Order, error)
	UpdateStatus(ctx context.Context, tx Tx, trackingID string, status model.OrderStatus) error
	// ListActiveOlderThan feeds the status reconciler: ACTIVE orders whose
	// last update predates the cutoff.
	ListActiveOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Order, error)
}
