package web

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pesalink/internal/domain"
	"pesalink/internal/domain/model"
	"pesalink/internal/domain/ports/adapter"
	"pesalink/internal/infra/logging"
	"pesalink/internal/infra/metrics"
	"pesalink/internal/infra/redis"
	"pesalink/internal/usecase"
)

type billingRequest struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	CountryCode  string `json:"country_code"`
	FirstName    string `json:"first_name"`
	MiddleName   string `json:"middle_name"`
	LastName     string `json:"last_name"`
	Line1        string `json:"line_1"`
	Line2        string `json:"line_2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	ZipCode      string `json:"zip_code"`
}

type subscriptionRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Frequency string `json:"frequency"`
}

type createOrderRequest struct {
	MerchantRef     string               `json:"merchant_ref"`
	Amount          float64              `json:"amount"`
	Currency        string               `json:"currency"`
	Description     string               `json:"description"`
	CallbackURL     string               `json:"callback_url"`
	NotificationID  string               `json:"notification_id"`
	CancellationURL string               `json:"cancellation_url"`
	AccountNumber   string               `json:"account_number"`
	Billing         *billingRequest      `json:"billing_address"`
	Subscription    *subscriptionRequest `json:"subscription_details"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	businessID := logging.BusinessID(r.Context())

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 || req.Currency == "" {
		http.Error(w, "amount and currency are required", http.StatusBadRequest)
		return
	}

	in := &usecase.CreateOrderInput{
		MerchantRef:     req.MerchantRef,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Description:     req.Description,
		CallbackURL:     req.CallbackURL,
		NotificationID:  req.NotificationID,
		CancellationURL: req.CancellationURL,
		AccountNumber:   req.AccountNumber,
	}
	if b := req.Billing; b != nil {
		in.Billing = &usecase.BillingInput{
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
	if sub := req.Subscription; sub != nil {
		in.Subscription = &usecase.SubscriptionInput{
			StartDate: sub.StartDate,
			EndDate:   sub.EndDate,
			Frequency: sub.Frequency,
		}
	}

	order, err := s.paymentUC.CreateOrder(r.Context(), businessID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.paymentUC.ListOrders(r.Context(), logging.BusinessID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")
	order, err := s.paymentUC.GetOrder(r.Context(), trackingID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Tenants only see their own orders.
	if order.BusinessID != logging.BusinessID(r.Context()) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")
	status, err := s.paymentUC.GetStatus(r.Context(), logging.BusinessID(r.Context()), trackingID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")
	res, err := s.paymentUC.CancelOrder(r.Context(), logging.BusinessID(r.Context()), trackingID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"orderTrackingId": res.OrderTrackingID,
		"status":          res.Status,
		"message":         res.Message,
	})
}

type registerIpnRequest struct {
	URL              string `json:"url"`
	NotificationType string `json:"ipn_notification_type"`
}

func (s *Server) handleRegisterIpn(w http.ResponseWriter, r *http.Request) {
	var req registerIpnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	typ := model.IpnNotificationType(req.NotificationType)
	if typ != model.IpnNotifyGET && typ != model.IpnNotifyPOST {
		http.Error(w, "ipn_notification_type must be GET or POST", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	reg, err := s.paymentUC.RegisterIPN(r.Context(), logging.BusinessID(r.Context()), req.URL, typ)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) handleListIpns(w http.ResponseWriter, r *http.Request) {
	regs, err := s.paymentUC.ListIPNs(r.Context(), logging.BusinessID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if regs == nil {
		regs = []*model.IpnRegistration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

type rotateCredentialsRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

func (s *Server) handleRotateCredentials(w http.ResponseWriter, r *http.Request) {
	var req rotateCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConsumerKey == "" || req.ConsumerSecret == "" {
		http.Error(w, "consumer_key and consumer_secret are required", http.StatusBadRequest)
		return
	}
	if err := s.paymentUC.RotateCredentials(r.Context(), logging.BusinessID(r.Context()), req.ConsumerKey, req.ConsumerSecret); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ipnCallbackBody struct {
	OrderTrackingID        string `json:"OrderTrackingId"`
	OrderMerchantReference string `json:"OrderMerchantReference"`
	OrderNotificationType  string `json:"OrderNotificationType"`
}

// handleIpnCallback accepts the gateway's notification via query parameters
// (GET registrations) or a JSON body (POST registrations) and always
// acknowledges with status 200. Rate-limited or malformed deliveries are
// acknowledged too: failing them only makes the gateway retry harder.
func (s *Server) handleIpnCallback(w http.ResponseWriter, r *http.Request) {
	cb := usecase.IpnCallback{
		OrderTrackingID:        r.URL.Query().Get("OrderTrackingId"),
		OrderMerchantReference: r.URL.Query().Get("OrderMerchantReference"),
		OrderNotificationType:  r.URL.Query().Get("OrderNotificationType"),
	}
	if cb.OrderTrackingID == "" && r.Body != nil {
		var body ipnCallbackBody
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			cb.OrderTrackingID = body.OrderTrackingID
			cb.OrderMerchantReference = body.OrderMerchantReference
			cb.OrderNotificationType = body.OrderNotificationType
		}
	}

	if !s.allowCallback(r) {
		metrics.IncIpnCallback("rate_limited")
		writeJSON(w, http.StatusOK, map[string]any{
			"orderNotificationType":  cb.OrderNotificationType,
			"orderTrackingId":        cb.OrderTrackingID,
			"orderMerchantReference": cb.OrderMerchantReference,
			"status":                 200,
		})
		return
	}

	ack := s.paymentUC.HandleCallback(r.Context(), cb)
	writeJSON(w, http.StatusOK, ack)
}

// allowCallback consults the redis fixed-window limiter keyed by remote
// address. Fails open: a broken limiter must not drop genuine gateway
// notifications.
func (s *Server) allowCallback(r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ok, err := s.limiter.Allow(r.Context(), redis.CallbackKey(host), s.rateLimit, s.rateWin)
	if err != nil {
		s.log.Warn().Err(err).Msg("callback rate limiter unavailable")
		return true
	}
	return ok
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	l := logging.With(r.Context(), s.log)
	switch {
	case errors.Is(err, domain.ErrBusinessNotFound), errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrGatewayAuthFailed),
		errors.Is(err, domain.ErrOrderSubmissionFailed),
		errors.Is(err, domain.ErrStatusQueryFailed),
		errors.Is(err, domain.ErrCancellationFailed),
		errors.Is(err, domain.ErrIpnRegistrationFailed):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		var te *adapter.TransportError
		if errors.As(err, &te) {
			l.Error().Err(err).Msg("gateway unreachable")
			http.Error(w, "Payment gateway unreachable", http.StatusBadGateway)
			return
		}
		l.Error().Err(err).Msg("internal error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
