//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"pesalink/internal/domain"
	"pesalink/internal/domain/model"
	"pesalink/internal/domain/ports/adapter"
	"pesalink/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func now() time.Time { return time.Now().Truncate(time.Millisecond) }

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu        sync.Mutex
	AuthCalls int

	AuthenticateFunc func(ctx context.Context, key, secret string) (*adapter.AuthResponse, error)
	SubmitOrderFunc  func(ctx context.Context, token string, req *adapter.SubmitOrderRequest) (*adapter.SubmitOrderResponse, error)
	GetStatusFunc    func(ctx context.Context, token, trackingID string) (*adapter.TransactionStatusResponse, error)
	CancelOrderFunc  func(ctx context.Context, token, trackingID string) (*adapter.CancelOrderResponse, error)
	RegisterIPNFunc  func(ctx context.Context, token, url, notificationType string) (*adapter.RegisterIPNResponse, error)
	GetIPNListFunc   func(ctx context.Context, token string) ([]adapter.IPNListItem, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Authenticate(ctx context.Context, key, secret string) (*adapter.AuthResponse, error) {
	m.mu.Lock()
	m.AuthCalls++
	m.mu.Unlock()
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, key, secret)
	}
	return &adapter.AuthResponse{
		Token:      "tok-" + uuid.NewString(),
		ExpiryDate: now().Add(5 * time.Minute).Format(time.RFC3339),
		Status:     "200",
	}, nil
}

func (m *MockPaymentGateway) SubmitOrder(ctx context.Context, token string, req *adapter.SubmitOrderRequest) (*adapter.SubmitOrderResponse, error) {
	if m.SubmitOrderFunc != nil {
		return m.SubmitOrderFunc(ctx, token, req)
	}
	return &adapter.SubmitOrderResponse{
		OrderTrackingID:   "trk-" + uuid.NewString(),
		MerchantReference: req.ID,
		RedirectURL:       "https://pay.pesapal.test/redirect",
		Status:            "200",
	}, nil
}

func (m *MockPaymentGateway) GetTransactionStatus(ctx context.Context, token, trackingID string) (*adapter.TransactionStatusResponse, error) {
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, token, trackingID)
	}
	return &adapter.TransactionStatusResponse{
		OrderTrackingID: trackingID,
		StatusCode:      int(model.PesapalStatusPending),
		Status:          "200",
	}, nil
}

func (m *MockPaymentGateway) CancelOrder(ctx context.Context, token, trackingID string) (*adapter.CancelOrderResponse, error) {
	if m.CancelOrderFunc != nil {
		return m.CancelOrderFunc(ctx, token, trackingID)
	}
	return &adapter.CancelOrderResponse{OrderTrackingID: trackingID, Status: "200", Message: "cancelled"}, nil
}

func (m *MockPaymentGateway) RegisterIPN(ctx context.Context, token, url, notificationType string) (*adapter.RegisterIPNResponse, error) {
	if m.RegisterIPNFunc != nil {
		return m.RegisterIPNFunc(ctx, token, url, notificationType)
	}
	return &adapter.RegisterIPNResponse{
		URL:         url,
		CreatedDate: now().Format(time.RFC3339),
		IpnID:       "ipn-" + uuid.NewString(),
		Status:      "200",
	}, nil
}

func (m *MockPaymentGateway) GetIPNList(ctx context.Context, token string) ([]adapter.IPNListItem, error) {
	if m.GetIPNListFunc != nil {
		return m.GetIPNListFunc(ctx, token)
	}
	return nil, nil
}

// ---- Mock CredentialVault ----

// MockVault "encrypts" by prefixing; good enough to verify the orchestrator
// decrypts before authenticating.
type MockVault struct {
	DecryptFunc func(envelope string) (string, error)
}

func (v *MockVault) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func (v *MockVault) Decrypt(envelope string) (string, error) {
	if v.DecryptFunc != nil {
		return v.DecryptFunc(envelope)
	}
	if len(envelope) > 4 && envelope[:4] == "enc:" {
		return envelope[4:], nil
	}
	return "", domain.ErrMalformedEnvelope
}

// =============================
// Repositories
// =============================

// ---- Mock BusinessRepository ----

type MockBusinessRepo struct {
	mu    sync.Mutex
	store map[string]*model.Business

	FindByIDErr error
}

func NewMockBusinessRepo() *MockBusinessRepo {
	return &MockBusinessRepo{store: make(map[string]*model.Business)}
}

var _ repository.BusinessRepository = (*MockBusinessRepo)(nil)

func (m *MockBusinessRepo) Save(ctx context.Context, tx repository.Tx, b *model.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.store[b.ID] = &cp
	return nil
}

func (m *MockBusinessRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Business, error) {
	if m.FindByIDErr != nil {
		return nil, m.FindByIDErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MockBusinessRepo) FindByName(ctx context.Context, tx repository.Tx, name string) (*model.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.store {
		if b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockBusinessRepo) UpdateCredentials(ctx context.Context, tx repository.Tx, id, encKey, encSecret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.ConsumerKey = encKey
	b.ConsumerSecret = encSecret
	return nil
}

// ---- Mock OrderRepository ----

type MockOrderRepo struct {
	mu    sync.Mutex
	store map[string]*model.Order // by tracking id

	SaveFunc         func(ctx context.Context, tx repository.Tx, o *model.Order) error
	UpdateStatusFunc func(ctx context.Context, tx repository.Tx, trackingID string, status model.OrderStatus) error
}

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{store: make(map[string]*model.Order)}
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func (m *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.store[o.TrackingID] = &cp
	return nil
}

func (m *MockOrderRepo) FindByTrackingID(ctx context.Context, tx repository.Tx, trackingID string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[trackingID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepo) ListByBusiness(ctx context.Context, tx repository.Tx, businessID string) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.store {
		if o.BusinessID == businessID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, trackingID string, status model.OrderStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, tx, trackingID, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[trackingID]
	if !ok {
		return nil
	}
	o.Status = status
	o.UpdatedAt = now()
	return nil
}

func (m *MockOrderRepo) ListActiveOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.store {
		if o.Status == model.OrderStatusActive && o.UpdatedAt.Before(olderThan) {
			cp := *o
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---- Mock TransactionRepository ----

type MockTransactionRepo struct {
	mu   sync.Mutex
	rows []*model.Transaction

	SaveErr error
}

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{}
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func (m *MockTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockTransactionRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.rows {
		if t.OrderID == orderID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTransactionRepo) ListByTrackingID(ctx context.Context, tx repository.Tx, trackingID string) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.rows {
		if t.TrackingID == trackingID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTransactionRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ---- Mock TransactionManager ----

// MockTxManager runs the callback directly; the mock repositories have no
// transactional state to roll back.
type MockTxManager struct {
	WithTxErr error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxErr != nil {
		return m.WithTxErr
	}
	return fn(ctx, nil)
}

// ---- Mock IpnRegistrationRepository ----

type MockIpnRepo struct {
	mu   sync.Mutex
	rows []*model.IpnRegistration
}

func NewMockIpnRepo() *MockIpnRepo { return &MockIpnRepo{} }

var _ repository.IpnRegistrationRepository = (*MockIpnRepo)(nil)

func (m *MockIpnRepo) Save(ctx context.Context, tx repository.Tx, reg *model.IpnRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *reg
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockIpnRepo) ListByBusiness(ctx context.Context, tx repository.Tx, businessID string) ([]*model.IpnRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.IpnRegistration
	for _, reg := range m.rows {
		if reg.BusinessID == businessID {
			cp := *reg
			out = append(out, &cp)
		}
	}
	return out, nil
}
