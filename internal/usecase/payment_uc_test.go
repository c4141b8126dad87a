//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pesalink/internal/domain"
	"pesalink/internal/domain/model"
	"pesalink/internal/domain/ports/adapter"
	"pesalink/internal/usecase"
)

type ucFixture struct {
	businesses   *MockBusinessRepo
	orders       *MockOrderRepo
	transactions *MockTransactionRepo
	ipns         *MockIpnRepo
	txm          *MockTxManager
	gateway      *MockPaymentGateway
	tokens       *usecase.TokenCache
	vault        *MockVault
	uc           usecase.PaymentUseCase
}

func newFixture(t *testing.T) *ucFixture {
	t.Helper()
	f := &ucFixture{
		businesses:   NewMockBusinessRepo(),
		orders:       NewMockOrderRepo(),
		transactions: NewMockTransactionRepo(),
		ipns:         NewMockIpnRepo(),
		txm:          &MockTxManager{},
		gateway:      &MockPaymentGateway{},
		tokens:       usecase.NewTokenCache(),
		vault:        &MockVault{},
	}
	f.uc = usecase.NewPaymentUseCase(
		f.businesses, f.orders, f.transactions, f.ipns, f.txm,
		f.gateway, f.tokens, f.vault, newTestLogger(),
	)
	return f
}

func (f *ucFixture) seedBusiness(t *testing.T, id string) {
	t.Helper()
	err := f.businesses.Save(context.Background(), nil, &model.Business{
		ID:             id,
		Name:           "Acme " + id,
		ConsumerKey:    "enc:key-" + id,
		ConsumerSecret: "enc:secret-" + id,
		CreatedAt:      now(),
		UpdatedAt:      now(),
	})
	if err != nil {
		t.Fatalf("seed business: %v", err)
	}
}

func TestCreateOrderSuccess(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")

	var submitted *adapter.SubmitOrderRequest
	f.gateway.SubmitOrderFunc = func(ctx context.Context, token string, req *adapter.SubmitOrderRequest) (*adapter.SubmitOrderResponse, error) {
		submitted = req
		return &adapter.SubmitOrderResponse{
			OrderTrackingID:   "trk-abc",
			MerchantReference: req.ID,
			RedirectURL:       "https://pay.pesapal.test/r/abc",
			Status:            "200",
		}, nil
	}

	order, err := f.uc.CreateOrder(context.Background(), "biz-1", &usecase.CreateOrderInput{
		MerchantRef: "REF-001",
		Amount:      500,
		Currency:    "KES",
		Description: "monthly plan",
		CallbackURL: "https://merchant.test/callback",
		Billing:     &usecase.BillingInput{EmailAddress: "jane@acme.test", FirstName: "Jane"},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != model.OrderStatusActive {
		t.Errorf("status = %q, want %q", order.Status, model.OrderStatusActive)
	}
	if order.TrackingID != "trk-abc" {
		t.Errorf("tracking id = %q, want trk-abc", order.TrackingID)
	}
	if order.RedirectURL == "" {
		t.Error("redirect url not carried onto the order")
	}
	if submitted == nil || submitted.ID != "REF-001" {
		t.Fatalf("gateway did not receive the merchant reference: %+v", submitted)
	}
	if submitted.BillingAddress.EmailAddress != "jane@acme.test" {
		t.Errorf("billing email = %q", submitted.BillingAddress.EmailAddress)
	}

	persisted, err := f.orders.FindByTrackingID(context.Background(), nil, "trk-abc")
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if persisted.BusinessID != "biz-1" || persisted.CustomerEmail != "jane@acme.test" {
		t.Errorf("persisted order = %+v", persisted)
	}
}

func TestCreateOrderGeneratesMerchantRef(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")

	order, err := f.uc.CreateOrder(context.Background(), "biz-1", &usecase.CreateOrderInput{
		Amount:   100,
		Currency: "KES",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(order.MerchantRef) != 10 {
		t.Fatalf("merchant ref %q: want 10 characters", order.MerchantRef)
	}
	for _, r := range order.MerchantRef {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			t.Fatalf("merchant ref %q contains %q", order.MerchantRef, r)
		}
	}
}

func TestCreateOrderUnknownBusiness(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.CreateOrder(context.Background(), "ghost", &usecase.CreateOrderInput{Amount: 1, Currency: "KES"})
	if !errors.Is(err, domain.ErrBusinessNotFound) {
		t.Fatalf("err = %v, want ErrBusinessNotFound", err)
	}
	if f.gateway.AuthCalls != 0 {
		t.Errorf("authenticated %d times for an unknown business", f.gateway.AuthCalls)
	}
}

func TestCreateOrderGatewayRejection(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	f.gateway.SubmitOrderFunc = func(ctx context.Context, token string, req *adapter.SubmitOrderRequest) (*adapter.SubmitOrderResponse, error) {
		return nil, &adapter.GatewayError{Op: "submit_order", Status: "500", Message: "invalid currency"}
	}

	_, err := f.uc.CreateOrder(context.Background(), "biz-1", &usecase.CreateOrderInput{Amount: 1, Currency: "XXX"})
	if !errors.Is(err, domain.ErrOrderSubmissionFailed) {
		t.Fatalf("err = %v, want ErrOrderSubmissionFailed", err)
	}
	if orders, _ := f.orders.ListByBusiness(context.Background(), nil, "biz-1"); len(orders) != 0 {
		t.Errorf("rejected order was persisted: %d rows", len(orders))
	}
}

func TestTokenCachedAcrossCalls(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")

	for i := 0; i < 3; i++ {
		if _, err := f.uc.CreateOrder(context.Background(), "biz-1", &usecase.CreateOrderInput{Amount: 10, Currency: "KES"}); err != nil {
			t.Fatalf("CreateOrder #%d: %v", i, err)
		}
	}
	if f.gateway.AuthCalls != 1 {
		t.Errorf("Authenticate called %d times, want 1", f.gateway.AuthCalls)
	}
}

func TestEnsureTokenDecryptFailure(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	f.vault.DecryptFunc = func(envelope string) (string, error) {
		return "", domain.ErrDecryptionFailed
	}

	_, err := f.uc.GetStatus(context.Background(), "biz-1", "trk-x")
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("err = %v, want ErrDecryptionFailed", err)
	}
}

func TestEnsureTokenAuthRejected(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	f.gateway.AuthenticateFunc = func(ctx context.Context, key, secret string) (*adapter.AuthResponse, error) {
		return nil, &adapter.GatewayError{Op: "authenticate", Status: "500", Message: "invalid credentials"}
	}

	_, err := f.uc.GetStatus(context.Background(), "biz-1", "trk-x")
	if !errors.Is(err, domain.ErrGatewayAuthFailed) {
		t.Fatalf("err = %v, want ErrGatewayAuthFailed", err)
	}
}

func TestGetStatusUpdatesOrderWithoutTransaction(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	if err := f.orders.Save(context.Background(), nil, &model.Order{
		ID:         "ord-1",
		TrackingID: "trk-1",
		BusinessID: "biz-1",
		Status:     model.OrderStatusActive,
	}); err != nil {
		t.Fatal(err)
	}
	f.gateway.GetStatusFunc = func(ctx context.Context, token, trackingID string) (*adapter.TransactionStatusResponse, error) {
		return &adapter.TransactionStatusResponse{
			OrderTrackingID: trackingID,
			StatusCode:      int(model.PesapalStatusCompleted),
			PaymentMethod:   "MPESA",
			Status:          "200",
		}, nil
	}

	resp, err := f.uc.GetStatus(context.Background(), "biz-1", "trk-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if resp.PaymentMethod != "MPESA" {
		t.Errorf("payment method = %q", resp.PaymentMethod)
	}
	order, _ := f.orders.FindByTrackingID(context.Background(), nil, "trk-1")
	if order.Status != model.OrderStatusCompleted {
		t.Errorf("order status = %q, want %q", order.Status, model.OrderStatusCompleted)
	}
	if n := f.transactions.Count(); n != 0 {
		t.Errorf("polling wrote %d transaction rows, want 0", n)
	}
}

func TestGetStatusGatewayRejection(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	f.gateway.GetStatusFunc = func(ctx context.Context, token, trackingID string) (*adapter.TransactionStatusResponse, error) {
		return nil, &adapter.GatewayError{Op: "get_status", Status: "500", Message: "unknown tracking id"}
	}

	_, err := f.uc.GetStatus(context.Background(), "biz-1", "trk-missing")
	if !errors.Is(err, domain.ErrStatusQueryFailed) {
		t.Fatalf("err = %v, want ErrStatusQueryFailed", err)
	}
}

func TestCancelOrderForcesRecalled(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	if err := f.orders.Save(context.Background(), nil, &model.Order{
		ID:         "ord-1",
		TrackingID: "trk-1",
		BusinessID: "biz-1",
		Status:     model.OrderStatusActive,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := f.uc.CancelOrder(context.Background(), "biz-1", "trk-1")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if res.OrderTrackingID != "trk-1" {
		t.Errorf("result tracking id = %q", res.OrderTrackingID)
	}
	order, _ := f.orders.FindByTrackingID(context.Background(), nil, "trk-1")
	if order.Status != model.OrderStatusRecalled {
		t.Errorf("order status = %q, want %q", order.Status, model.OrderStatusRecalled)
	}
}

func TestCancelOrderGatewayRejection(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	f.gateway.CancelOrderFunc = func(ctx context.Context, token, trackingID string) (*adapter.CancelOrderResponse, error) {
		return nil, &adapter.GatewayError{Op: "cancel_order", Status: "500", Message: "already completed"}
	}

	_, err := f.uc.CancelOrder(context.Background(), "biz-1", "trk-1")
	if !errors.Is(err, domain.ErrCancellationFailed) {
		t.Fatalf("err = %v, want ErrCancellationFailed", err)
	}
}

func TestRegisterIPNPersistsRegistration(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")

	reg, err := f.uc.RegisterIPN(context.Background(), "biz-1", "https://merchant.test/ipn", model.IpnNotifyGET)
	if err != nil {
		t.Fatalf("RegisterIPN: %v", err)
	}
	if reg.IpnID == "" || reg.URL != "https://merchant.test/ipn" {
		t.Errorf("registration = %+v", reg)
	}
	regs, err := f.uc.ListIPNs(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("ListIPNs: %v", err)
	}
	if len(regs) != 1 || regs[0].NotificationType != model.IpnNotifyGET {
		t.Errorf("listed registrations = %+v", regs)
	}
}

func TestHandleCallbackReconciles(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	if err := f.orders.Save(context.Background(), nil, &model.Order{
		ID:          "ord-1",
		MerchantRef: "REF-001",
		TrackingID:  "trk-1",
		BusinessID:  "biz-1",
		Amount:      500,
		Currency:    "KES",
		Status:      model.OrderStatusActive,
	}); err != nil {
		t.Fatal(err)
	}
	f.gateway.GetStatusFunc = func(ctx context.Context, token, trackingID string) (*adapter.TransactionStatusResponse, error) {
		return &adapter.TransactionStatusResponse{
			OrderTrackingID:          trackingID,
			StatusCode:               int(model.PesapalStatusCompleted),
			PaymentMethod:            "MPESA",
			ConfirmationCode:         "QGH12345",
			PaymentStatusDescription: "Completed",
			Amount:                   500,
			Currency:                 "KES",
			PaymentAccount:           "2547xxxx",
			Status:                   "200",
		}, nil
	}

	ack := f.uc.HandleCallback(context.Background(), usecase.IpnCallback{
		OrderTrackingID:        "trk-1",
		OrderMerchantReference: "REF-001",
		OrderNotificationType:  "IPNCHANGE",
	})
	if ack.Status != 200 || ack.OrderTrackingID != "trk-1" {
		t.Fatalf("ack = %+v", ack)
	}

	order, _ := f.orders.FindByTrackingID(context.Background(), nil, "trk-1")
	if order.Status != model.OrderStatusCompleted {
		t.Errorf("order status = %q, want %q", order.Status, model.OrderStatusCompleted)
	}
	txns, _ := f.transactions.ListByTrackingID(context.Background(), nil, "trk-1")
	if len(txns) != 1 {
		t.Fatalf("transaction rows = %d, want 1", len(txns))
	}
	txn := txns[0]
	if txn.ConfirmationCode != "QGH12345" || txn.StatusCode != model.PesapalStatusCompleted || txn.OrderID != "ord-1" {
		t.Errorf("transaction = %+v", txn)
	}
}

func TestOrderLifecycleCreateThenWebhookCompletes(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "T1")

	order, err := f.uc.CreateOrder(context.Background(), "T1", &usecase.CreateOrderInput{
		Amount:   500,
		Currency: "KES",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != model.OrderStatusActive || order.TrackingID == "" {
		t.Fatalf("created order = %+v", order)
	}

	f.gateway.GetStatusFunc = func(ctx context.Context, token, trackingID string) (*adapter.TransactionStatusResponse, error) {
		return &adapter.TransactionStatusResponse{
			OrderTrackingID: trackingID,
			StatusCode:      int(model.PesapalStatusCompleted),
			Amount:          500,
			Currency:        "KES",
			Status:          "200",
		}, nil
	}
	ack := f.uc.HandleCallback(context.Background(), usecase.IpnCallback{
		OrderTrackingID:        order.TrackingID,
		OrderMerchantReference: order.MerchantRef,
	})
	if ack.Status != 200 {
		t.Fatalf("ack = %+v", ack)
	}

	reloaded, _ := f.orders.FindByTrackingID(context.Background(), nil, order.TrackingID)
	if reloaded.Status != model.OrderStatusCompleted {
		t.Errorf("order status = %q, want %q", reloaded.Status, model.OrderStatusCompleted)
	}
	txns, _ := f.transactions.ListByTrackingID(context.Background(), nil, order.TrackingID)
	if len(txns) != 1 {
		t.Errorf("transaction rows = %d, want exactly 1", len(txns))
	}
}

func TestHandleCallbackUnknownOrderStillAcks(t *testing.T) {
	f := newFixture(t)

	ack := f.uc.HandleCallback(context.Background(), usecase.IpnCallback{
		OrderTrackingID: "trk-nobody",
	})
	if ack.Status != 200 {
		t.Fatalf("ack status = %d, want 200", ack.Status)
	}
	if ack.OrderNotificationType != "IPNCHANGE" {
		t.Errorf("default notification type = %q", ack.OrderNotificationType)
	}
	if f.gateway.AuthCalls != 0 {
		t.Errorf("authenticated for an unknown order")
	}
	if n := f.transactions.Count(); n != 0 {
		t.Errorf("wrote %d transaction rows", n)
	}
}

func TestHandleCallbackInternalErrorStillAcks(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	if err := f.orders.Save(context.Background(), nil, &model.Order{
		ID:         "ord-1",
		TrackingID: "trk-1",
		BusinessID: "biz-1",
		Status:     model.OrderStatusActive,
	}); err != nil {
		t.Fatal(err)
	}
	f.gateway.GetStatusFunc = func(ctx context.Context, token, trackingID string) (*adapter.TransactionStatusResponse, error) {
		return nil, &adapter.TransportError{Op: "get_status", Err: errors.New("connection reset")}
	}

	ack := f.uc.HandleCallback(context.Background(), usecase.IpnCallback{
		OrderTrackingID:        "trk-1",
		OrderMerchantReference: "REF-001",
	})
	if ack.Status != 200 {
		t.Fatalf("ack status = %d, want 200", ack.Status)
	}
	order, _ := f.orders.FindByTrackingID(context.Background(), nil, "trk-1")
	if order.Status != model.OrderStatusActive {
		t.Errorf("order mutated on a failed reconciliation: %q", order.Status)
	}
}

func TestHandleCallbackTransactionAppendFailureStillAcks(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	if err := f.orders.Save(context.Background(), nil, &model.Order{
		ID:         "ord-1",
		TrackingID: "trk-1",
		BusinessID: "biz-1",
		Status:     model.OrderStatusActive,
	}); err != nil {
		t.Fatal(err)
	}
	f.transactions.SaveErr = errors.New("disk full")

	ack := f.uc.HandleCallback(context.Background(), usecase.IpnCallback{OrderTrackingID: "trk-1"})
	if ack.Status != 200 {
		t.Fatalf("ack status = %d, want 200", ack.Status)
	}
}

func TestListOrdersScopedToBusiness(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")
	f.seedBusiness(t, "biz-2")
	for i, biz := range []string{"biz-1", "biz-1", "biz-2"} {
		if err := f.orders.Save(context.Background(), nil, &model.Order{
			ID:         "ord-" + string(rune('a'+i)),
			TrackingID: "trk-" + string(rune('a'+i)),
			BusinessID: biz,
			Status:     model.OrderStatusActive,
		}); err != nil {
			t.Fatal(err)
		}
	}

	orders, err := f.uc.ListOrders(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("orders for biz-1 = %d, want 2", len(orders))
	}
}

func TestExpiredCachedTokenTriggersRefresh(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")

	// Within the 4 minute safety buffer, so Get must treat it as expired.
	f.tokens.Put("biz-1", "stale-token", time.Now().Add(2*time.Minute))

	if _, err := f.uc.CreateOrder(context.Background(), "biz-1", &usecase.CreateOrderInput{Amount: 10, Currency: "KES"}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if f.gateway.AuthCalls != 1 {
		t.Errorf("Authenticate called %d times, want 1", f.gateway.AuthCalls)
	}
}

func TestRotateCredentialsReEncryptsAndEvictsToken(t *testing.T) {
	f := newFixture(t)
	f.seedBusiness(t, "biz-1")

	// A token minted under the old credentials is still cached.
	f.tokens.Put("biz-1", "old-token", time.Now().Add(time.Hour))

	if err := f.uc.RotateCredentials(context.Background(), "biz-1", "new-key", "new-secret"); err != nil {
		t.Fatalf("RotateCredentials: %v", err)
	}

	b, err := f.businesses.FindByID(context.Background(), nil, "biz-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if b.ConsumerKey != "enc:new-key" {
		t.Errorf("ConsumerKey = %q, want %q", b.ConsumerKey, "enc:new-key")
	}
	if b.ConsumerSecret != "enc:new-secret" {
		t.Errorf("ConsumerSecret = %q, want %q", b.ConsumerSecret, "enc:new-secret")
	}

	// The cached token must be gone, forcing a fresh Authenticate.
	if _, err := f.uc.CreateOrder(context.Background(), "biz-1", &usecase.CreateOrderInput{Amount: 10, Currency: "KES"}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if f.gateway.AuthCalls != 1 {
		t.Errorf("Authenticate called %d times after rotation, want 1", f.gateway.AuthCalls)
	}
}

func TestRotateCredentialsUnknownBusiness(t *testing.T) {
	f := newFixture(t)

	err := f.uc.RotateCredentials(context.Background(), "ghost", "k", "s")
	if !errors.Is(err, domain.ErrBusinessNotFound) {
		t.Fatalf("err = %v, want ErrBusinessNotFound", err)
	}
}
