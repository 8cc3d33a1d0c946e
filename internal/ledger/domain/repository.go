package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/pkg/money"
	"gorm.io/gorm"
)

type Repository interface {
	InsertCurrency(ctx context.Context, db *gorm.DB, currency *Currency) error
	FindCurrency(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Currency, error)
	FindCurrencyByCode(ctx context.Context, db *gorm.DB, code string) (*Currency, error)

	InsertStash(ctx context.Context, db *gorm.DB, stash *Stash) error
	FindStash(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Stash, error)
	// LockStash reads the stash holding a row lock until the transaction ends.
	LockStash(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Stash, error)
	ListStashes(ctx context.Context, db *gorm.DB, entityID snowflake.ID) ([]Stash, error)
	// UpdateStashBalance writes the balance fields of stash when its stored
	// version still equals stash.Version, and bumps the version.
	UpdateStashBalance(ctx context.Context, db *gorm.DB, stash *Stash) error
	UpdateStashCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, credit money.Money, at time.Time) error
	UpdateStashFuturesCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, credit money.Money, at time.Time) error

	InsertIOType(ctx context.Context, db *gorm.DB, t *StashIOType) error
	FindIOType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*StashIOType, error)
	FindIOTypeByName(ctx context.Context, db *gorm.DB, name string) (*StashIOType, error)
	FindIOTypeByFunction(ctx context.Context, db *gorm.DB, fn IOFunction) (*StashIOType, error)

	InsertIO(ctx context.Context, db *gorm.DB, io *StashIO) error
	ListIO(ctx context.Context, db *gorm.DB, filter StashIOFilter) ([]StashIO, error)
	ListIODifferences(ctx context.Context, db *gorm.DB, stashID snowflake.ID) ([]money.Money, error)

	InsertOperation(ctx context.Context, db *gorm.DB, op *StashOperation) error
	ListOperations(ctx context.Context, db *gorm.DB, filter OperationFilter) ([]StashOperation, error)
}

type StashIOFilter struct {
	StashID  *snowflake.ID
	EntityID *snowflake.ID
	TypeID   *snowflake.ID
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

type OperationFilter struct {
	StashID *snowflake.ID
	Type    *OperationType
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}
