package model

import "time"

// Transaction is one confirmed payment-status observation for an Order,
// captured when an IPN callback is reconciled against the gateway. Rows are
// append-only: repeated callbacks for the same event append repeated rows,
// preserving the audit trail even if the order status later flips again.
type Transaction struct {
	ID                string // ULID, sortable by creation time
	OrderID           string
	TrackingID        string
	MerchantReference string
	PaymentMethod     string
	ConfirmationCode  string
	StatusCode        PesapalStatusCode
	StatusMessage     string
	Amount            float64
	Currency          string
	PaymentAccount    string
	CreatedAt         time.Time
}
