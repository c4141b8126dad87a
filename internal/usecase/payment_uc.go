// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"pesalink/internal/domain"
	"pesalink/internal/domain/model"
	"pesalink/internal/domain/ports/adapter"
	"pesalink/internal/domain/ports/repository"
	"pesalink/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// CredentialVault decrypts tenant gateway credentials. Implemented by
// infra/security.EncryptionService.
type CredentialVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}

// CreateOrderInput is the caller-facing shape for order submission.
// MerchantRef is optional; one is generated when absent.
type CreateOrderInput struct {
	MerchantRef     string
	Amount          float64
	Currency        string
	Description     string
	CallbackURL     string
	NotificationID  string
	CancellationURL string
	AccountNumber   string
	Billing         *BillingInput
	Subscription    *SubscriptionInput
}

type BillingInput struct {
	EmailAddress string
	PhoneNumber  string
	CountryCode  string
	FirstName    string
	MiddleName   string
	LastName     string
	Line1        string
	Line2        string
	City         string
	State        string
	PostalCode   string
	ZipCode      string
}

type SubscriptionInput struct {
	StartDate string
	EndDate   string
	Frequency string
}

// IpnCallback is the payload of a gateway webhook. The gateway only signals
// "something changed"; the authoritative state is re-queried live.
type IpnCallback struct {
	OrderTrackingID        string
	OrderMerchantReference string
	OrderNotificationType  string
}

// IpnCallbackAck is what the webhook transport returns to the gateway.
// Status is always 200: failing the acknowledgment only guarantees the
// gateway retries relentlessly.
type IpnCallbackAck struct {
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`
}

// CancelResult mirrors the gateway's cancellation response.
type CancelResult struct {
	OrderTrackingID string
	Status          string
	Message         string
}

type PaymentUseCase interface {
	// CreateOrder submits a purchase intent to the gateway and persists the
	// resulting Order with status ACTIVE.
	CreateOrder(ctx context.Context, businessID string, in *CreateOrderInput) (*model.Order, error)
	// GetStatus polls the gateway for the live state of an order and, when a
	// local Order exists, reapplies the status mapping. No Transaction row is
	// written on this path.
	GetStatus(ctx context.Context, businessID, trackingID string) (*adapter.TransactionStatusResponse, error)
	// CancelOrder cancels at the gateway and forces a local RECALLED status.
	CancelOrder(ctx context.Context, businessID, trackingID string) (*CancelResult, error)
	// RegisterIPN registers a webhook endpoint with the gateway and records it.
	RegisterIPN(ctx context.Context, businessID, url string, notificationType model.IpnNotificationType) (*model.IpnRegistration, error)
	// ListIPNs returns the locally recorded webhook registrations.
	ListIPNs(ctx context.Context, businessID string) ([]*model.IpnRegistration, error)
	// HandleCallback reconciles a webhook delivery. It never fails: internal
	// errors are logged and counted, and the acknowledgment is returned anyway.
	HandleCallback(ctx context.Context, cb IpnCallback) *IpnCallbackAck
	// ListOrders returns all orders of a business.
	ListOrders(ctx context.Context, businessID string) ([]*model.Order, error)
	// GetOrder returns the local order for a gateway tracking id.
	GetOrder(ctx context.Context, trackingID string) (*model.Order, error)
	// RotateCredentials re-encrypts and stores new gateway credentials for a
	// business and drops its cached token.
	RotateCredentials(ctx context.Context, businessID, consumerKey, consumerSecret string) error
}

type paymentUC struct {
	businesses   repository.BusinessRepository
	orders       repository.OrderRepository
	transactions repository.TransactionRepository
	ipns         repository.IpnRegistrationRepository
	txm          repository.TransactionManager
	gateway      adapter.PaymentGateway
	tokens       *TokenCache
	vault        CredentialVault
	log          *zerolog.Logger
}

func NewPaymentUseCase(
	businesses repository.BusinessRepository,
	orders repository.OrderRepository,
	transactions repository.TransactionRepository,
	ipns repository.IpnRegistrationRepository,
	txm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	tokens *TokenCache,
	vault CredentialVault,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		businesses:   businesses,
		orders:       orders,
		transactions: transactions,
		ipns:         ipns,
		txm:          txm,
		gateway:      gateway,
		tokens:       tokens,
		vault:        vault,
		log:          logger,
	}
}

// ensureToken returns a usable access token for the business, refreshing
// through the gateway on a cache miss. Two concurrent misses may both
// authenticate; the last Put wins, which costs one extra call at worst.
func (u *paymentUC) ensureToken(ctx context.Context, businessID string) (string, error) {
	if tok := u.tokens.Get(businessID); tok != "" {
		metrics.IncTokenCacheLookup("hit")
		return tok, nil
	}
	metrics.IncTokenCacheLookup("miss")

	biz, err := u.businesses.FindByID(ctx, nil, businessID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrBusinessNotFound
		}
		return "", err
	}
	key, err := u.vault.Decrypt(biz.ConsumerKey)
	if err != nil {
		return "", fmt.Errorf("decrypt consumer key: %w", err)
	}
	secret, err := u.vault.Decrypt(biz.ConsumerSecret)
	if err != nil {
		return "", fmt.Errorf("decrypt consumer secret: %w", err)
	}

	auth, err := observeGateway("authenticate", func() (*adapter.AuthResponse, error) {
		return u.gateway.Authenticate(ctx, key, secret)
	})
	if err != nil {
		var gw *adapter.GatewayError
		if errors.As(err, &gw) {
			return "", fmt.Errorf("%w: %s", domain.ErrGatewayAuthFailed, gw.Message)
		}
		return "", err
	}

	expiresAt, perr := time.Parse(time.RFC3339, auth.ExpiryDate)
	if perr != nil {
		// Tokens live ~5 minutes; assume that when the gateway sends an
		// unparsable expiry rather than failing the whole operation.
		expiresAt = time.Now().Add(5 * time.Minute)
	}
	u.tokens.Put(businessID, auth.Token, expiresAt)
	return auth.Token, nil
}

func (u *paymentUC) CreateOrder(ctx context.Context, businessID string, in *CreateOrderInput) (*model.Order, error) {
	if _, err := u.businesses.FindByID(ctx, nil, businessID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBusinessNotFound
		}
		return nil, err
	}
	token, err := u.ensureToken(ctx, businessID)
	if err != nil {
		return nil, err
	}

	merchantRef := in.MerchantRef
	if merchantRef == "" {
		merchantRef = generateMerchantRef()
	}

	req := &adapter.SubmitOrderRequest{
		ID:              merchantRef,
		Currency:        in.Currency,
		Amount:          in.Amount,
		Description:     in.Description,
		CallbackURL:     in.CallbackURL,
		NotificationID:  in.NotificationID,
		CancellationURL: in.CancellationURL,
		AccountNumber:   in.AccountNumber,
	}
	if b := in.Billing; b != nil {
		req.BillingAddress = adapter.BillingAddress{
			EmailAddress: b.EmailAddress,
			PhoneNumber:  b.PhoneNumber,
			CountryCode:  b.CountryCode,
			FirstName:    b.FirstName,
			MiddleName:   b.MiddleName,
			LastName:     b.LastName,
			Line1:        b.Line1,
			Line2:        b.Line2,
			City:         b.City,
			State:        b.State,
			PostalCode:   b.PostalCode,
			ZipCode:      b.ZipCode,
		}
	}
	if s := in.Subscription; s != nil {
		req.SubscriptionDetails = &adapter.SubscriptionDetails{
			StartDate: s.StartDate,
			EndDate:   s.EndDate,
			Frequency: s.Frequency,
		}
	}

	resp, err := observeGateway("submit_order", func() (*adapter.SubmitOrderResponse, error) {
		return u.gateway.SubmitOrder(ctx, token, req)
	})
	if err != nil {
		var gw *adapter.GatewayError
		if errors.As(err, &gw) {
			metrics.IncOrderSubmitted("rejected")
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderSubmissionFailed, gw.Message)
		}
		metrics.IncOrderSubmitted("transport_error")
		return nil, err
	}

	now := time.Now()
	order := &model.Order{
		ID:             uuid.NewString(),
		MerchantRef:    merchantRef,
		TrackingID:     resp.OrderTrackingID,
		BusinessID:     businessID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		Status:         model.OrderStatusActive,
		RedirectURL:    resp.RedirectURL,
		Description:    in.Description,
		CallbackURL:    in.CallbackURL,
		NotificationID: in.NotificationID,
		AccountNumber:  in.AccountNumber,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if b := in.Billing; b != nil {
		order.CustomerEmail = b.EmailAddress
		order.CustomerPhone = b.PhoneNumber
		order.CustomerFirst = b.FirstName
		order.CustomerLast = b.LastName
	}
	if err := u.orders.Save(ctx, nil, order); err != nil {
		return nil, err
	}
	metrics.IncOrderSubmitted("ok")
	u.log.Info().
		Str("business_id", businessID).
		Str("tracking_id", order.TrackingID).
		Str("merchant_ref", merchantRef).
		Msg("order submitted")
	return order, nil
}

func (u *paymentUC) GetStatus(ctx context.Context, businessID, trackingID string) (*adapter.TransactionStatusResponse, error) {
	token, err := u.ensureToken(ctx, businessID)
	if err != nil {
		return nil, err
	}
	resp, err := observeGateway("get_status", func() (*adapter.TransactionStatusResponse, error) {
		return u.gateway.GetTransactionStatus(ctx, token, trackingID)
	})
	if err != nil {
		var gw *adapter.GatewayError
		if errors.As(err, &gw) {
			return nil, fmt.Errorf("%w: %s", domain.ErrStatusQueryFailed, gw.Error())
		}
		return nil, err
	}

	// Polling is read-mostly: reapply the mapping if we know the order, but
	// leave the Transaction audit trail to the IPN path.
	if order, ferr := u.orders.FindByTrackingID(ctx, nil, trackingID); ferr == nil {
		newStatus := model.MapPesapalStatus(model.PesapalStatusCode(resp.StatusCode))
		if uerr := u.orders.UpdateStatus(ctx, nil, trackingID, newStatus); uerr != nil {
			return nil, uerr
		}
		metrics.IncOrderTransition(string(newStatus), "poll")
		if order.Status != newStatus {
			u.log.Info().
				Str("tracking_id", trackingID).
				Str("old_status", string(order.Status)).
				Str("new_status", string(newStatus)).
				Msg("order status updated from poll")
		}
	}
	return resp, nil
}

func (u *paymentUC) CancelOrder(ctx context.Context, businessID, trackingID string) (*CancelResult, error) {
	token, err := u.ensureToken(ctx, businessID)
	if err != nil {
		return nil, err
	}
	resp, err := observeGateway("cancel_order", func() (*adapter.CancelOrderResponse, error) {
		return u.gateway.CancelOrder(ctx, token, trackingID)
	})
	if err != nil {
		var gw *adapter.GatewayError
		if errors.As(err, &gw) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCancellationFailed, gw.Message)
		}
		return nil, err
	}

	// Force RECALLED regardless of prior state; the gateway accepted the
	// cancellation, so the local record follows.
	if _, ferr := u.orders.FindByTrackingID(ctx, nil, trackingID); ferr == nil {
		if uerr := u.orders.UpdateStatus(ctx, nil, trackingID, model.OrderStatusRecalled); uerr != nil {
			return nil, uerr
		}
		metrics.IncOrderTransition(string(model.OrderStatusRecalled), "cancel")
	}
	return &CancelResult{
		OrderTrackingID: resp.OrderTrackingID,
		Status:          resp.Status,
		Message:         resp.Message,
	}, nil
}

func (u *paymentUC) RegisterIPN(ctx context.Context, businessID, url string, notificationType model.IpnNotificationType) (*model.IpnRegistration, error) {
	if _, err := u.businesses.FindByID(ctx, nil, businessID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBusinessNotFound
		}
		return nil, err
	}
	token, err := u.ensureToken(ctx, businessID)
	if err != nil {
		return nil, err
	}
	resp, err := observeGateway("register_ipn", func() (*adapter.RegisterIPNResponse, error) {
		return u.gateway.RegisterIPN(ctx, token, url, string(notificationType))
	})
	if err != nil {
		var gw *adapter.GatewayError
		if errors.As(err, &gw) {
			return nil, fmt.Errorf("%w: %s", domain.ErrIpnRegistrationFailed, gw.Message)
		}
		return nil, err
	}

	createdAt, perr := time.Parse(time.RFC3339, resp.CreatedDate)
	if perr != nil {
		createdAt = time.Now()
	}
	reg := &model.IpnRegistration{
		ID:               uuid.NewString(),
		BusinessID:       businessID,
		IpnID:            resp.IpnID,
		URL:              resp.URL,
		NotificationType: notificationType,
		CreatedAt:        createdAt,
		UpdatedAt:        time.Now(),
	}
	if err := u.ipns.Save(ctx, nil, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (u *paymentUC) ListIPNs(ctx context.Context, businessID string) ([]*model.IpnRegistration, error) {
	if _, err := u.businesses.FindByID(ctx, nil, businessID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBusinessNotFound
		}
		return nil, err
	}
	return u.ipns.ListByBusiness(ctx, nil, businessID)
}

// HandleCallback is the webhook reconciliation path. The gateway retries
// delivery until it sees success, and the payload itself is not
// trustworthy, so: look up the order, re-query live status, apply the
// mapping, and append a Transaction audit row. Every internal failure is
// logged and counted but still acknowledged; a dropped update is repaired
// by the next poll or retry, whereas a failed acknowledgment guarantees a
// retry storm.
func (u *paymentUC) HandleCallback(ctx context.Context, cb IpnCallback) *IpnCallbackAck {
	start := time.Now()
	result := u.processCallback(ctx, cb)
	metrics.IncIpnCallback(result)
	metrics.ObserveIpnCallback(result, time.Since(start).Seconds())
	return ackFor(cb)
}

func (u *paymentUC) processCallback(ctx context.Context, cb IpnCallback) string {
	log := u.log.With().
		Str("tracking_id", cb.OrderTrackingID).
		Str("merchant_ref", cb.OrderMerchantReference).
		Logger()
	log.Info().Msg("ipn callback received")

	order, err := u.orders.FindByTrackingID(ctx, nil, cb.OrderTrackingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Nothing to reconcile; also the defense against callback
			// floods for tracking ids we never issued.
			log.Warn().Msg("ipn callback for unknown tracking id")
			return "no_order"
		}
		log.Error().Err(err).Msg("ipn callback: order lookup failed")
		return "internal_error"
	}

	token, err := u.ensureToken(ctx, order.BusinessID)
	if err != nil {
		log.Error().Err(err).Msg("ipn callback: token acquisition failed")
		return "internal_error"
	}

	resp, err := observeGateway("get_status", func() (*adapter.TransactionStatusResponse, error) {
		return u.gateway.GetTransactionStatus(ctx, token, cb.OrderTrackingID)
	})
	if err != nil {
		var gw *adapter.GatewayError
		if errors.As(err, &gw) {
			// The gateway answered but not with a confirmed status; leave
			// the order alone and let the next delivery or poll settle it.
			log.Warn().Str("gateway_message", gw.Message).Msg("ipn callback: status not confirmed")
			return "not_confirmed"
		}
		log.Error().Err(err).Msg("ipn callback: status query failed")
		return "internal_error"
	}

	newStatus := model.MapPesapalStatus(model.PesapalStatusCode(resp.StatusCode))
	txn := &model.Transaction{
		ID:                ulid.Make().String(),
		OrderID:           order.ID,
		TrackingID:        cb.OrderTrackingID,
		MerchantReference: cb.OrderMerchantReference,
		PaymentMethod:     resp.PaymentMethod,
		ConfirmationCode:  resp.ConfirmationCode,
		StatusCode:        model.PesapalStatusCode(resp.StatusCode),
		StatusMessage:     resp.PaymentStatusDescription,
		Amount:            resp.Amount,
		Currency:          resp.Currency,
		PaymentAccount:    resp.PaymentAccount,
		CreatedAt:         time.Now(),
	}
	// The status move and its audit row commit together or not at all.
	err = u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.orders.UpdateStatus(ctx, tx, cb.OrderTrackingID, newStatus); err != nil {
			return err
		}
		return u.transactions.Save(ctx, tx, txn)
	})
	if err != nil {
		log.Error().Err(err).Msg("ipn callback: reconciliation write failed")
		return "internal_error"
	}
	metrics.IncOrderTransition(string(newStatus), "ipn")

	log.Info().
		Str("old_status", string(order.Status)).
		Str("new_status", string(newStatus)).
		Msg("ipn callback reconciled")
	return "ok"
}

func (u *paymentUC) ListOrders(ctx context.Context, businessID string) ([]*model.Order, error) {
	if _, err := u.businesses.FindByID(ctx, nil, businessID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBusinessNotFound
		}
		return nil, err
	}
	return u.orders.ListByBusiness(ctx, nil, businessID)
}

func (u *paymentUC) GetOrder(ctx context.Context, trackingID string) (*model.Order, error) {
	return u.orders.FindByTrackingID(ctx, nil, trackingID)
}

func (u *paymentUC) RotateCredentials(ctx context.Context, businessID, consumerKey, consumerSecret string) error {
	encKey, err := u.vault.Encrypt(consumerKey)
	if err != nil {
		return fmt.Errorf("encrypt consumer key: %w", err)
	}
	encSecret, err := u.vault.Encrypt(consumerSecret)
	if err != nil {
		return fmt.Errorf("encrypt consumer secret: %w", err)
	}
	if err := u.businesses.UpdateCredentials(ctx, nil, businessID, encKey, encSecret); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrBusinessNotFound
		}
		return err
	}
	// A token minted under the old credentials must not outlive them.
	u.tokens.Evict(businessID)
	u.log.Info().Str("business_id", businessID).Msg("gateway credentials rotated")
	return nil
}

func ackFor(cb IpnCallback) *IpnCallbackAck {
	typ := cb.OrderNotificationType
	if typ == "" {
		typ = "IPNCHANGE"
	}
	return &IpnCallbackAck{
		OrderNotificationType:  typ,
		OrderTrackingID:        cb.OrderTrackingID,
		OrderMerchantReference: cb.OrderMerchantReference,
		Status:                 200,
	}
}

// generateMerchantRef builds a 10-character uppercase alphanumeric
// reference. No uniqueness check: collision odds over a tenant's order
// volume are accepted as negligible.
func generateMerchantRef() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:10])
}

// observeGateway wraps one gateway call with request metrics.
func observeGateway[T any](op string, call func() (T, error)) (T, error) {
	start := time.Now()
	out, err := call()
	result := "ok"
	if err != nil {
		var gw *adapter.GatewayError
		if errors.As(err, &gw) {
			result = "rejected"
		} else {
			result = "transport_error"
		}
	}
	metrics.ObserveGatewayRequest(op, result, time.Since(start).Seconds())
	return out, err
}
