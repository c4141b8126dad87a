package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Payment flow errors. Wrapped with the provider message where one is
	// available, so callers can match with errors.Is and still show a
	// human-readable reason.
	ErrBusinessNotFound      = errors.New("business not found")
	ErrGatewayAuthFailed     = errors.New("gateway authentication failed")
	ErrOrderSubmissionFailed = errors.New("order submission failed")
	ErrStatusQueryFailed     = errors.New("transaction status query failed")
	ErrCancellationFailed    = errors.New("order cancellation failed")
	ErrIpnRegistrationFailed = errors.New("ipn registration failed")

	// Credential vault errors
	ErrMalformedEnvelope = errors.New("malformed credential envelope")
	ErrDecryptionFailed  = errors.New("credential decryption failed")
)
