package shared

import "errors"

var (
	// ErrNotFound indicates the operation target does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates the operation is not legal in the current ledger state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidAmount indicates a non-positive or over-cap amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNoLoss indicates the appeal carries no outstanding loss to collect.
	ErrNoLoss = errors.New("no outstanding loss")
	// ErrNoRemainder indicates nothing is left to absorb.
	ErrNoRemainder = errors.New("no remainder to absorb")
	// ErrValidation indicates a malformed input record or request payload.
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamUnavailable indicates a collaborator fetch failed. Background
	// jobs log it and retry on the next scheduled iteration.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
