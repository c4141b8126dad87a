package model

import "time"

type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "ACTIVE"    // submitted to gateway, awaiting outcome
	OrderStatusCompleted OrderStatus = "COMPLETED" // gateway reported COMPLETED
	OrderStatusFailed    OrderStatus = "FAILED"    // gateway reported FAILED
	OrderStatusRecalled  OrderStatus = "RECALLED"  // reversed at the gateway or cancelled locally
)

// PesapalStatusCode is the gateway's own transaction status enum as returned
// in GetTransactionStatus.status_code.
type PesapalStatusCode int

const (
	PesapalStatusPending   PesapalStatusCode = 0
	PesapalStatusCompleted PesapalStatusCode = 1
	PesapalStatusFailed    PesapalStatusCode = 2
	PesapalStatusReversed  PesapalStatusCode = 3
)

// MapPesapalStatus is the single source of truth for translating the
// gateway's status code into an order status. Both the polling and the IPN
// callback paths go through it. Unknown codes map to ACTIVE so a new or
// unexpected gateway code never strands an order in a false terminal state.
func MapPesapalStatus(code PesapalStatusCode) OrderStatus {
	switch code {
	case PesapalStatusCompleted:
		return OrderStatusCompleted
	case PesapalStatusFailed:
		return OrderStatusFailed
	case PesapalStatusReversed:
		return OrderStatusRecalled
	default:
		return OrderStatusActive
	}
}

// Order is one purchase intent (payment link) submitted to the gateway.
// TrackingID is assigned by the gateway on submission and immutable after.
// Orders are never hard-deleted; status changes only through MapPesapalStatus
// or an explicit cancellation.
type Order struct {
	ID             string // UUID
	MerchantRef    string // caller-supplied or generated; unique per business
	TrackingID     string // gateway order_tracking_id
	BusinessID     string
	Amount         float64
	Currency       string
	Status         OrderStatus
	RedirectURL    string // gateway-hosted payment page
	Description    string
	CallbackURL    string
	NotificationID string // IPN registration used for this order
	CustomerEmail  string
	CustomerPhone  string
	CustomerFirst  string
	CustomerLast   string
	AccountNumber  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
