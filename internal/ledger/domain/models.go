// Package domain holds the stash ledger model: currencies, stashes and the
// append-only StashIO and StashOperation logs.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/pkg/money"
	"gorm.io/datatypes"
)

type Currency struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	Name   string       `gorm:"type:text;not null;uniqueIndex"`
	Code   string       `gorm:"type:text;not null;uniqueIndex"`
	Prefix *string      `gorm:"type:text"`
	Suffix *string      `gorm:"type:text"`
	// ExchangeRate is the value of one unit in the base currency.
	ExchangeRate    money.Factor `gorm:"not null"`
	CanExchangeFrom bool         `gorm:"not null"`
	CanExchangeTo   bool         `gorm:"not null"`
	CanConvertFrom  bool         `gorm:"not null"`
	CanConvertTo    bool         `gorm:"not null"`
	AllowCredit     bool         `gorm:"not null"`
	AllowAccounts   bool         `gorm:"not null"`
	AllowServices   bool         `gorm:"not null"`
	AllowFutures    bool         `gorm:"not null"`
	Description     *string      `gorm:"type:text"`
}

func (Currency) TableName() string { return "currencies_def" }

// Stash is an entity's balance in one currency. Amount only changes through
// StashIO rows. Credit is the negative headroom an operator allows for
// spending; FuturesCredit is the headroom held by active future payments.
type Stash struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	EntityID   snowflake.ID `gorm:"not null;index"`
	CurrencyID snowflake.ID `gorm:"not null;index"`
	Name       string       `gorm:"type:text;not null"`
	Amount     money.Money  `gorm:"not null"`
	Credit     money.Money  `gorm:"not null"`
	// FuturesCredit is owned by the futurepayment service.
	FuturesCredit money.Money `gorm:"not null"`
	AlltimeMax    money.Money `gorm:"not null"`
	AlltimeMin    money.Money `gorm:"not null"`
	Version       int64       `gorm:"not null"`
	CreatedAt     time.Time   `gorm:"not null"`
	UpdatedAt     time.Time   `gorm:"not null"`
}

func (Stash) TableName() string { return "stashes_def" }

// Available is the amount that may be spent: balance plus both kinds of
// credit headroom.
func (s Stash) Available() money.Money {
	return s.Amount.Add(s.Credit).Add(s.FuturesCredit)
}

type StashIOType struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	Name            string       `gorm:"type:text;not null;uniqueIndex"`
	Class           IOClass      `gorm:"type:text;not null"`
	Direction       IODirection  `gorm:"type:text;not null"`
	Function        *IOFunction  `gorm:"type:text;index"`
	FulfillsFutures bool         `gorm:"not null"`
	Description     *string      `gorm:"type:text"`
}

func (StashIOType) TableName() string { return "stashes_io_types" }

// StashIO is an immutable ledger entry. Difference is always expressed in
// the stash currency; CurrencyID records the posting currency when it was
// converted.
type StashIO struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	TypeID      snowflake.ID      `gorm:"not null;index"`
	StashID     snowflake.ID      `gorm:"not null;index"`
	CurrencyID  *snowflake.ID     `gorm:"index"`
	UserID      *snowflake.ID     `gorm:"index"`
	EntityID    *snowflake.ID     `gorm:"index"`
	Timestamp   time.Time         `gorm:"not null;index"`
	Difference  money.Money       `gorm:"not null"`
	Data        datatypes.JSONMap `gorm:"type:json"`
	Description *string           `gorm:"type:text"`
}

func (StashIO) TableName() string { return "stashes_io_def" }

// StashOperation explains a balance change, carrying the traffic accounted
// for the period that triggered it. It never moves the balance itself.
type StashOperation struct {
	ID               snowflake.ID   `gorm:"primaryKey"`
	StashID          snowflake.ID   `gorm:"not null;index"`
	IOID             *snowflake.ID  `gorm:"column:io_id;index"`
	Type             OperationType  `gorm:"type:text;not null"`
	Timestamp        time.Time      `gorm:"not null;index"`
	OperatorID       *snowflake.ID  `gorm:"index"`
	EntityID         *snowflake.ID  `gorm:"index"`
	Difference       money.Money    `gorm:"not null"`
	AccountedIngress *money.Traffic `gorm:"column:accounted_ingress"`
	AccountedEgress  *money.Traffic `gorm:"column:accounted_egress"`
	AccountedSeconds *uint32        `gorm:"column:accounted_seconds"`
	Comments         *string        `gorm:"type:text"`
}

func (StashOperation) TableName() string { return "stashes_ops" }
