package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	"github.com/netprofile/netbill/pkg/money"
)

type Service interface {
	// AfterPost fulfills active futures of the stash when a qualifying
	// deposit is posted. It runs inside the ledger transaction.
	ledgerdomain.PostHook

	Create(ctx context.Context, req CreateRequest) (*FuturePayment, error)
	Cancel(ctx context.Context, req CancelRequest) (*FuturePayment, error)
	PollExpired(ctx context.Context, now time.Time) (PollResult, error)

	Get(ctx context.Context, id snowflake.ID) (*FuturePayment, error)
	ListByStash(ctx context.Context, stashID snowflake.ID, state *State) ([]FuturePayment, error)
	ListEvents(ctx context.Context, futureID snowflake.ID) ([]Event, error)
}

type CreateRequest struct {
	EntityID    *snowflake.ID
	StashID     snowflake.ID
	Amount      money.Money
	Origin      Origin
	CreatedBy   *snowflake.ID
	Description *string
}

type CancelRequest struct {
	ID         snowflake.ID
	OperatorID *snowflake.ID
	Reason     string
}

type PollResult struct {
	Scanned   int
	Cancelled int
	Failed    int
}
