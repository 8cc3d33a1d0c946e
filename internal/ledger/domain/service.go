package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/pkg/money"
	"gorm.io/gorm"
)

type Service interface {
	CreateCurrency(ctx context.Context, currency *Currency) error
	GetCurrency(ctx context.Context, id snowflake.ID) (*Currency, error)

	CreateStash(ctx context.Context, req CreateStashRequest) (*Stash, error)
	GetStash(ctx context.Context, id snowflake.ID) (*Stash, error)
	ListStashes(ctx context.Context, entityID snowflake.ID) ([]Stash, error)
	SetCredit(ctx context.Context, stashID snowflake.ID, credit money.Money) (*Stash, error)

	IOTypeByFunction(ctx context.Context, db *gorm.DB, fn IOFunction) (*StashIOType, error)

	Post(ctx context.Context, req PostRequest) (*StashIO, error)
	PostTx(ctx context.Context, tx *gorm.DB, req PostRequest) (*StashIO, error)
	RecordOperation(ctx context.Context, req OperationRequest) (*StashOperation, error)
	RecordOperationTx(ctx context.Context, tx *gorm.DB, req OperationRequest) (*StashOperation, error)

	Credit(ctx context.Context, req AdjustmentRequest) (*StashIO, error)
	Debit(ctx context.Context, req AdjustmentRequest) (*StashIO, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)

	ListIO(ctx context.Context, filter StashIOFilter) ([]StashIO, error)
	ListOperations(ctx context.Context, filter OperationFilter) ([]StashOperation, error)
	Reconcile(ctx context.Context, stashID snowflake.ID) (*Reconciliation, error)
}

// PostHook runs inside the posting transaction after the balance has been
// updated. An error rolls the whole post back.
type PostHook interface {
	AfterPost(ctx context.Context, tx *gorm.DB, stash *Stash, io *StashIO, ioType *StashIOType) error
}

type CreateStashRequest struct {
	EntityID   snowflake.ID
	CurrencyID snowflake.ID
	Name       string
	Credit     money.Money
}

type PostRequest struct {
	StashID    snowflake.ID
	TypeID     snowflake.ID
	Difference money.Money
	// CurrencyID is the currency Difference is expressed in. Nil means the
	// stash currency.
	CurrencyID  *snowflake.ID
	UserID      *snowflake.ID
	EntityID    *snowflake.ID
	Description *string
	Data        map[string]any
	Timestamp   time.Time
	// AllowNegative skips the available funds check for debits.
	AllowNegative bool
}

type OperationRequest struct {
	StashID          snowflake.ID
	IOID             *snowflake.ID
	Type             OperationType
	Difference       money.Money
	OperatorID       *snowflake.ID
	EntityID         *snowflake.ID
	AccountedIngress *money.Traffic
	AccountedEgress  *money.Traffic
	AccountedSeconds *uint32
	Comments         *string
	Timestamp        time.Time
}

// AdjustmentRequest is a manual operator credit or debit. Amount must be
// positive; the direction comes from the method called.
type AdjustmentRequest struct {
	StashID     snowflake.ID
	Amount      money.Money
	OperatorID  *snowflake.ID
	Description *string
	// Cash marks a credit as a cash deposit (add_cash).
	Cash bool
}

type TransferRequest struct {
	FromStashID snowflake.ID
	ToStashID   snowflake.ID
	Amount      money.Money
	UserID      *snowflake.ID
	Description *string
}

type TransferResult struct {
	Withdrawal StashIO
	Deposit    StashIO
}

// Reconciliation compares a stash balance against the sum of its ledger.
type Reconciliation struct {
	StashID   snowflake.ID
	Balance   money.Money
	LedgerSum money.Money
	Entries   int
}

func (r Reconciliation) Balanced() bool {
	return r.Balance.Equal(r.LedgerSum)
}
