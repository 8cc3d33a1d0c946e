package domain

import "errors"

var (
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrCurrencyMismatch     = errors.New("currency_mismatch")
	ErrConcurrencyConflict  = errors.New("stash_concurrency_conflict")
	ErrStashNotFound        = errors.New("stash_not_found")
	ErrCurrencyNotFound     = errors.New("currency_not_found")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrIOTypeNotFound       = errors.New("stash_io_type_not_found")
	ErrDirectionMismatch    = errors.New("stash_io_direction_mismatch")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidOperationType = errors.New("invalid_stash_operation_type")
	ErrSameStash            = errors.New("transfer_to_same_stash")
	ErrCreditNotAllowed     = errors.New("currency_does_not_allow_credit")
)
