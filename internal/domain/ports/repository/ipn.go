package repository

import (
	"context"

	"pesalink/internal/domain/model"
)

type IpnRegistrationRepository interface {
	Save(ctx context.Context, tx Tx, reg *model.IpnRegistration) error
	ListByBusiness(ctx context.Context, tx Tx, businessID string) ([]*model.IpnRegistration, error)
}
