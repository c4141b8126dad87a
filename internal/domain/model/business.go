package model

import "time"

// Business is a tenant: a merchant with its own PesaPal credentials and its
// own payment records. ConsumerKey and ConsumerSecret hold vault envelopes,
// never plaintext.
type Business struct {
	ID             string // UUID
	Name           string // globally unique
	ConsumerKey    string // encrypted envelope (nonce:tag:ciphertext, hex)
	ConsumerSecret string // encrypted envelope
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
