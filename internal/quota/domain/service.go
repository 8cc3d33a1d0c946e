package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrQuotaDisabled             = errors.New("quota_disabled")
	ErrSimultaneousLimitExceeded = errors.New("simultaneous_session_limit_exceeded")
)

type Service interface {
	// CanStartSession takes a session slot for the account. A zero limit
	// means unlimited.
	CanStartSession(ctx context.Context, accountID snowflake.ID, limit uint32) error
	EndSession(ctx context.Context, accountID snowflake.ID) error

	// Get current usage
	ActiveSessions(ctx context.Context, accountID snowflake.ID) (int64, error)
}
