package adapter

import (
	"context"
	"fmt"
)

// GatewayErrorBody is the error object PesaPal attaches to any response.
type GatewayErrorBody struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// TransportError means the request never produced a usable gateway response:
// timeout, DNS failure, connection reset, or a 5xx. Retrying may help.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("gateway transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// GatewayError means the gateway answered and said no: the error object was
// present or the response-level status was not success. Carries the
// provider's own message so the use case can surface it.
type GatewayError struct {
	Op      string
	Status  string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway rejected %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("gateway rejected %s: status=%s", e.Op, e.Status)
}

// --- Wire shapes (PesaPal API v3) ---

type AuthResponse struct {
	Token      string            `json:"token"`
	ExpiryDate string            `json:"expiryDate"` // RFC3339
	Status     string            `json:"status"`
	Message    string            `json:"message"`
	Error      *GatewayErrorBody `json:"error,omitempty"`
}

type BillingAddress struct {
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	MiddleName   string `json:"middle_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Line1        string `json:"line_1,omitempty"`
	Line2        string `json:"line_2,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`
}

type SubscriptionDetails struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Frequency string `json:"frequency"`
}

type SubmitOrderRequest struct {
	ID                  string               `json:"id"` // merchant reference
	Currency            string               `json:"currency"`
	Amount              float64              `json:"amount"`
	Description         string               `json:"description"`
	CallbackURL         string               `json:"callback_url"`
	NotificationID      string               `json:"notification_id"`
	BillingAddress      BillingAddress       `json:"billing_address"`
	CancellationURL     string               `json:"cancellation_url,omitempty"`
	SubscriptionDetails *SubscriptionDetails `json:"subscription_details,omitempty"`
	AccountNumber       string               `json:"account_number,omitempty"`
}

type SubmitOrderResponse struct {
	OrderTrackingID   string            `json:"order_tracking_id"`
	MerchantReference string            `json:"merchant_reference"`
	RedirectURL       string            `json:"redirect_url"`
	Status            string            `json:"status"`
	Error             *GatewayErrorBody `json:"error,omitempty"`
}

type TransactionStatusResponse struct {
	PaymentMethod            string            `json:"payment_method"`
	Amount                   float64           `json:"amount"`
	CreatedDate              string            `json:"created_date"`
	ConfirmationCode         string            `json:"confirmation_code"`
	OrderTrackingID          string            `json:"order_tracking_id"`
	PaymentStatusDescription string            `json:"payment_status_description"`
	Description              string            `json:"description"`
	Message                  string            `json:"message"`
	PaymentAccount           string            `json:"payment_account"`
	CallBackURL              string            `json:"call_back_url"`
	StatusCode               int               `json:"status_code"`
	MerchantReference        string            `json:"merchant_reference"`
	Currency                 string            `json:"currency"`
	Status                   string            `json:"status"`
	Error                    *GatewayErrorBody `json:"error,omitempty"`
}

type CancelOrderResponse struct {
	OrderTrackingID string            `json:"order_tracking_id"`
	Status          string            `json:"status"`
	Message         string            `json:"message"`
	Error           *GatewayErrorBody `json:"error,omitempty"`
}

type RegisterIPNResponse struct {
	URL         string            `json:"url"`
	CreatedDate string            `json:"created_date"`
	IpnID       string            `json:"ipn_id"`
	Status      string            `json:"status"`
	Error       *GatewayErrorBody `json:"error,omitempty"`
}

type IPNListItem struct {
	URL                            string `json:"url"`
	CreatedDate                    string `json:"created_date"`
	IpnID                          string `json:"ipn_id"`
	NotificationType               string `json:"notification_type"`
	IpnNotificationTypeDescription string `json:"ipn_notification_type_description"`
	IpnStatus                      int    `json:"ipn_status"`
	IpnStatusDescription           string `json:"ipn_status_description"`
}

// PaymentGateway is the hex port for the external payment provider. One
// concrete PesaPal adapter implements it today; future providers implement
// the same interface and are selected by configuration.
//
// The adapter is a thin wire translation: it distinguishes transport
// failures (*TransportError) from application-level rejections
// (*GatewayError) but does not interpret payment semantics. Response-level
// status strings are surfaced verbatim for the orchestrator to judge.
type PaymentGateway interface {
	// Authenticate exchanges a tenant's consumer key/secret for a
	// short-lived bearer token (~5 minutes).
	Authenticate(ctx context.Context, consumerKey, consumerSecret string) (*AuthResponse, error)
	// SubmitOrder creates a payment request; the response carries the
	// gateway tracking id and a hosted redirect URL.
	SubmitOrder(ctx context.Context, token string, req *SubmitOrderRequest) (*SubmitOrderResponse, error)
	// GetTransactionStatus queries the current state of an order.
	GetTransactionStatus(ctx context.Context, token, orderTrackingID string) (*TransactionStatusResponse, error)
	// CancelOrder cancels a pending order; completed orders need refunds.
	CancelOrder(ctx context.Context, token, orderTrackingID string) (*CancelOrderResponse, error)
	// RegisterIPN registers a webhook endpoint and returns its ipn_id.
	RegisterIPN(ctx context.Context, token, url string, notificationType string) (*RegisterIPNResponse, error)
	// GetIPNList returns all webhook endpoints registered for the merchant.
	GetIPNList(ctx context.Context, token string) ([]IPNListItem, error)
}
