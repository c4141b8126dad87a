// File: internal/infra/adapters/payment/pesapal_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"pesalink/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*PesapalGateway)(nil)

const defaultBaseURL = "https://cybqa.pesapal.com/pesapalv3/api"

// PesapalGateway implements adapter.PaymentGateway against the PesaPal v3
// REST API. It is stateless: tenant tokens are passed in per call, never
// stored here.
type PesapalGateway struct {
	baseURL string
	client  *http.Client
}

// NewPesapalGateway builds the adapter. baseURL may be empty (sandbox
// default). The request timeout bounds every call so a hung gateway cannot
// starve the process; a timeout surfaces as *adapter.TransportError.
func NewPesapalGateway(baseURL string, timeout time.Duration) (*PesapalGateway, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PesapalGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (g *PesapalGateway) Authenticate(ctx context.Context, consumerKey, consumerSecret string) (*adapter.AuthResponse, error) {
	body := map[string]string{
		"consumer_key":    consumerKey,
		"consumer_secret": consumerSecret,
	}
	var out adapter.AuthResponse
	if err := g.post(ctx, "/Auth/RequestToken", "", body, &out); err != nil {
		return nil, err
	}
	if err := classify("authenticate", out.Status, out.Error); err != nil {
		return &out, err
	}
	return &out, nil
}

func (g *PesapalGateway) SubmitOrder(ctx context.Context, token string, req *adapter.SubmitOrderRequest) (*adapter.SubmitOrderResponse, error) {
	var out adapter.SubmitOrderResponse
	if err := g.post(ctx, "/Transactions/SubmitOrderRequest", token, req, &out); err != nil {
		return nil, err
	}
	if err := classify("submit order", out.Status, out.Error); err != nil {
		return &out, err
	}
	return &out, nil
}

func (g *PesapalGateway) GetTransactionStatus(ctx context.Context, token, orderTrackingID string) (*adapter.TransactionStatusResponse, error) {
	path := "/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(orderTrackingID)
	var out adapter.TransactionStatusResponse
	if err := g.get(ctx, path, token, &out); err != nil {
		return nil, err
	}
	if err := classify("get transaction status", out.Status, out.Error); err != nil {
		return &out, err
	}
	return &out, nil
}

func (g *PesapalGateway) CancelOrder(ctx context.Context, token, orderTrackingID string) (*adapter.CancelOrderResponse, error) {
	body := map[string]string{"order_tracking_id": orderTrackingID}
	var out adapter.CancelOrderResponse
	if err := g.post(ctx, "/Transactions/CancelOrder", token, body, &out); err != nil {
		return nil, err
	}
	if err := classify("cancel order", out.Status, out.Error); err != nil {
		return &out, err
	}
	return &out, nil
}

func (g *PesapalGateway) RegisterIPN(ctx context.Context, token, ipnURL string, notificationType string) (*adapter.RegisterIPNResponse, error) {
	body := map[string]string{
		"url":                   ipnURL,
		"ipn_notification_type": notificationType,
	}
	var out adapter.RegisterIPNResponse
	if err := g.post(ctx, "/URLSetup/RegisterIPN", token, body, &out); err != nil {
		return nil, err
	}
	if err := classify("register ipn", out.Status, out.Error); err != nil {
		return &out, err
	}
	return &out, nil
}

func (g *PesapalGateway) GetIPNList(ctx context.Context, token string) ([]adapter.IPNListItem, error) {
	var out []adapter.IPNListItem
	if err := g.get(ctx, "/URLSetup/GetIpnList", token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// classify turns an application-level rejection into *adapter.GatewayError.
// PesaPal reports success as status "200" (a string) with no error object.
func classify(op, status string, gerr *adapter.GatewayErrorBody) error {
	if gerr != nil && gerr.Message != "" {
		return &adapter.GatewayError{Op: op, Status: status, Message: gerr.Message}
	}
	if status != "" && status != "200" {
		return &adapter.GatewayError{Op: op, Status: status}
	}
	return nil
}

func (g *PesapalGateway) post(ctx context.Context, path, token string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return g.do(req, path, token, out)
}

func (g *PesapalGateway) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return g.do(req, path, token, out)
}

func (g *PesapalGateway) do(req *http.Request, op, token string, out any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return &adapter.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &adapter.TransportError{Op: op, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if resp.StatusCode >= 400 {
			return &adapter.TransportError{Op: op, Err: fmt.Errorf("http %d", resp.StatusCode)}
		}
		return &adapter.TransportError{Op: op, Err: errors.New("undecodable response body")}
	}
	return nil
}
