package repository

import (
	"context"

	"pesalink/internal/domain/model"
)

// BusinessRepository reads and writes tenant records. Business CRUD itself
// is handled by an onboarding flow outside this module; the payment core
// only needs lookups plus credential rotation (re-encrypted envelopes).
type BusinessRepository interface {
	Save(ctx context.Context, tx Tx, b *model.Business) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Business, error)
	FindByName(ctx context.Context, tx Tx, name string) (*model.Business, error)
	UpdateCredentials(ctx context.Context, tx Tx, id, encKey, encSecret string) error
}
