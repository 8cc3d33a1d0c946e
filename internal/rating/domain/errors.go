package domain

import "errors"

var (
	ErrAccountNotFound    = errors.New("access_account_not_found")
	ErrAccountNotActive   = errors.New("access_account_not_active")
	ErrAccountsNotAllowed = errors.New("currency_accounts_not_allowed")
	ErrRateMismatch       = errors.New("access_account_rate_mismatch")
	ErrInvalidState       = errors.New("invalid_state")
	ErrInvalidUsage       = errors.New("invalid_session_usage")
	ErrEventNotFound      = errors.New("rating_event_not_found")
	ErrEventNotFlagged    = errors.New("rating_event_not_flagged")
)
