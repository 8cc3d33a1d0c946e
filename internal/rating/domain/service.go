package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/pkg/money"
)

type Service interface {
	// RateSession prices one accounting record against rateID and posts the
	// resulting debit to the account's stash.
	RateSession(ctx context.Context, rateID snowflake.ID, usage SessionUsage) (*Result, error)

	ActivateAccount(ctx context.Context, req ActivateRequest) (*AccessAccount, error)
	GetAccount(ctx context.Context, id snowflake.ID) (*AccessAccount, error)
	ListAccounts(ctx context.Context, entityID snowflake.ID) ([]AccessAccount, error)

	// StartSession admits a new session for the account, enforcing its
	// state and the rate's simultaneous session limit.
	StartSession(ctx context.Context, accountID snowflake.ID) error
	EndSession(ctx context.Context, accountID snowflake.ID) error

	Rollover(ctx context.Context, accountID snowflake.ID, now time.Time) (*RolloverOutcome, error)
	RunRollover(ctx context.Context, now time.Time) (SweepResult, error)

	ListFlagged(ctx context.Context, limit int) ([]RatingEvent, error)
	MarkReviewed(ctx context.Context, eventID snowflake.ID, operatorID *snowflake.ID) (*RatingEvent, error)
}

type ActivateRequest struct {
	EntityID snowflake.ID
	StashID  snowflake.ID
	RateID   snowflake.ID
	// At defaults to the current clock.
	At *time.Time
}

// RolloverOutcome describes what a rollover did to one account.
type RolloverOutcome struct {
	Account AccessAccount
	// Periods is the number of period boundaries crossed; zero means the
	// window was still current.
	Periods int64
	Fee     money.Money
	Blocked bool
}

type SweepResult struct {
	Scanned int
	Rolled  int
	Blocked int
	Failed  int
}
