package model

import "time"

type IpnNotificationType string

const (
	IpnNotifyGET  IpnNotificationType = "GET"
	IpnNotifyPOST IpnNotificationType = "POST"
)

// IpnRegistration is a webhook endpoint a business has registered with the
// gateway. The gateway assigns IpnID and requires it as notification_id on
// order submission. One registration per (business, URL) is expected;
// deduplication is the provider's concern.
type IpnRegistration struct {
	ID               string // UUID
	BusinessID       string
	IpnID            string // gateway-assigned
	URL              string
	NotificationType IpnNotificationType
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
