package domain

import "errors"

var (
	ErrFutureNotFound    = errors.New("future_payment_not_found")
	ErrNotActive         = errors.New("future_payment_not_active")
	ErrInvalidState      = errors.New("invalid_future_payment_state")
	ErrInvalidAmount     = errors.New("invalid_future_payment_amount")
	ErrFuturesNotAllowed = errors.New("currency_does_not_allow_futures")
	ErrInvalidOrigin     = errors.New("invalid_future_payment_origin")
)
