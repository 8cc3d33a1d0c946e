package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/internal/config"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	"github.com/netprofile/netbill/pkg/money"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ioTypeSeed struct {
	Name            string
	Class           ledgerdomain.IOClass
	Direction       ledgerdomain.IODirection
	Function        ledgerdomain.IOFunction
	FulfillsFutures bool
}

var systemIOTypes = []ioTypeSeed{
	{"Prepaid subscription fee", ledgerdomain.IOClassSystem, ledgerdomain.IOOutgoing, ledgerdomain.FunctionRateQuotaPrepaid, false},
	{"Postpaid service fee", ledgerdomain.IOClassSystem, ledgerdomain.IOOutgoing, ledgerdomain.FunctionRateQuotaPostpaid, false},
	{"Over-quota usage", ledgerdomain.IOClassSystem, ledgerdomain.IOOutgoing, ledgerdomain.FunctionRateUsage, false},
	{"Reimbursement on rate conversion", ledgerdomain.IOClassSystem, ledgerdomain.IOIncoming, ledgerdomain.FunctionRateRollback, false},
	{"Confirmation of promised payment", ledgerdomain.IOClassSystem, ledgerdomain.IOIncoming, ledgerdomain.FunctionFutureConfirm, true},
	{"Transfer from another account", ledgerdomain.IOClassSystem, ledgerdomain.IOIncoming, ledgerdomain.FunctionTransferIn, true},
	{"Transfer to another account", ledgerdomain.IOClassSystem, ledgerdomain.IOOutgoing, ledgerdomain.FunctionTransferOut, false},
	{"Service activation fee", ledgerdomain.IOClassSystem, ledgerdomain.IOOutgoing, ledgerdomain.FunctionServiceInitial, false},
	{"Service subscription fee", ledgerdomain.IOClassSystem, ledgerdomain.IOOutgoing, ledgerdomain.FunctionServiceQuota, false},
}

// SeedSystem inserts the base currency and the StashIO types the engine
// dispatches on. Existing rows, matched by name or code, are left alone.
func SeedSystem(ctx context.Context, db *gorm.DB, node *snowflake.Node, cfg config.LedgerConfig) error {
	if db == nil || node == nil {
		return errors.New("system seed requires database handle and id node")
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedBaseCurrency(tx, node, cfg.BaseCurrency); err != nil {
			return err
		}
		if err := seedIOTypes(tx, node, cfg); err != nil {
			return err
		}
		return nil
	})
}

func seedBaseCurrency(tx *gorm.DB, node *snowflake.Node, code string) error {
	if code == "" {
		return nil
	}
	currency := ledgerdomain.Currency{
		ID:              node.Generate(),
		Name:            code,
		Code:            code,
		ExchangeRate:    money.NewFactor(decimal.NewFromInt(1)),
		CanExchangeFrom: true,
		CanExchangeTo:   true,
		AllowCredit:     true,
		AllowAccounts:   true,
		AllowServices:   true,
		AllowFutures:    true,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&currency).Error
	if err != nil {
		return fmt.Errorf("seed base currency %s: %w", code, err)
	}
	return nil
}

func seedIOTypes(tx *gorm.DB, node *snowflake.Node, cfg config.LedgerConfig) error {
	seeds := make([]ioTypeSeed, 0, len(systemIOTypes)+2)
	seeds = append(seeds, systemIOTypes...)
	if cfg.OperatorCreditType != "" {
		seeds = append(seeds, ioTypeSeed{Name: cfg.OperatorCreditType, Class: ledgerdomain.IOClassUser, Direction: ledgerdomain.IOIncoming, FulfillsFutures: true})
	}
	if cfg.OperatorDebitType != "" {
		seeds = append(seeds, ioTypeSeed{Name: cfg.OperatorDebitType, Class: ledgerdomain.IOClassUser, Direction: ledgerdomain.IOOutgoing})
	}

	for _, seed := range seeds {
		row := ledgerdomain.StashIOType{
			ID:              node.Generate(),
			Name:            seed.Name,
			Class:           seed.Class,
			Direction:       seed.Direction,
			FulfillsFutures: seed.FulfillsFutures,
		}
		if seed.Function != "" {
			fn := seed.Function
			row.Function = &fn
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("seed stash io type %q: %w", seed.Name, err)
		}
	}
	return nil
}
