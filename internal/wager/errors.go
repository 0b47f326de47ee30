package wager

import "errors"

// Engine errors. Every failure is one of these kinds, reported
// immediately with no state change; none are retried inside the engine.
var (
	// Validation errors — caller-fixable.
	ErrInvalidOptions  = errors.New("wager: event needs at least two distinct options")
	ErrInvalidDeadline = errors.New("wager: deadline must be strictly in the future")
	ErrInvalidOption   = errors.New("wager: option index out of range")
	ErrZeroAmount      = errors.New("wager: amount must be greater than zero")
	ErrZeroBalance     = errors.New("wager: balance is zero")

	// State-conflict errors — legitimate attempt, wrong lifecycle moment.
	ErrEventClosed        = errors.New("wager: event is closed for staking")
	ErrDeadlinePassed     = errors.New("wager: staking deadline has passed")
	ErrDeadlineNotReached = errors.New("wager: deadline not reached")
	ErrAlreadyClosed      = errors.New("wager: event already settled")

	// Lookup and authorization.
	ErrNotFound     = errors.New("wager: event not found")
	ErrUnauthorized = errors.New("wager: caller not authorized")
)
