package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid or missing rate reference data.
	ErrConfiguration = errors.New("rate_configuration_invalid")
	// ErrNoMatch is returned when no destination or filter matches a session.
	ErrNoMatch = errors.New("rate_no_match")

	ErrNoDestinationMatch = fmt.Errorf("%w: destination", ErrNoMatch)
	ErrNoFilterMatch      = fmt.Errorf("%w: filter", ErrNoMatch)

	ErrRateNotFound = errors.New("rate_not_found")
	ErrInvalidID    = errors.New("invalid_id")
)
