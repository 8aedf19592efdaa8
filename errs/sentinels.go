// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the spar's current status does not permit the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrForbidden indicates the acting identity may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrOpponentMismatch indicates a pinned spar was accepted by someone other than the pinned handle.
	ErrOpponentMismatch = errors.New("opponent mismatch")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUpstreamFetch indicates the commit source was unreachable or errored.
	ErrUpstreamFetch = errors.New("upstream fetch failed")

	// ErrRateLimited indicates the commit source refused the call until its rate window resets.
	ErrRateLimited = errors.New("rate limited")

	// ErrPersistence indicates a storage read or write failed.
	ErrPersistence = errors.New("persistence failure")
)
