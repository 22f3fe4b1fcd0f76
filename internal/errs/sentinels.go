// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across api/query/checkout layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the backend (or local throttle) rejected the call.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the item exists but cannot be bought (sold or delisted).
	ErrUnavailable = errors.New("item unavailable")

	// ErrVerifyFailed indicates an encrypted checkout payload did not verify.
	ErrVerifyFailed = errors.New("checkout payload verification failed")

	// ErrNoItem indicates a payment was attempted before an item was resolved.
	ErrNoItem = errors.New("no item resolved")

	// ErrNoBuyer indicates no buyer id could be resolved for an order.
	ErrNoBuyer = errors.New("buyer not authenticated")

	// ErrNoPaymentLink indicates the order response carried no payment link.
	ErrNoPaymentLink = errors.New("payment link not received")

	// ErrMalformedResponse indicates a 2xx response whose body did not match the contract.
	ErrMalformedResponse = errors.New("malformed response")
)
