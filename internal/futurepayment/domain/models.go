// Package domain models promised payments: credit extended to a stash ahead
// of real funds, closed by a fulfilling deposit, an operator or expiry.
package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/pkg/money"
)

type State string

const (
	StateActive    State = "A"
	StatePaid      State = "P"
	StateCancelled State = "C"
)

func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateActive, StatePaid, StateCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
}

func (s State) Value() (driver.Value, error) {
	if _, err := ParseState(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

func (s *State) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidState, value)
	}
	parsed, err := ParseState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Origin string

const (
	OriginOperator Origin = "oper"
	OriginUser     Origin = "user"
)

type FuturePayment struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	EntityID    *snowflake.ID `gorm:"index"`
	StashID     snowflake.ID  `gorm:"not null;index"`
	Difference  money.Money   `gorm:"column:diff;not null"`
	State       State         `gorm:"type:text;not null;index:futures_def_i_futures,priority:1"`
	Origin      Origin        `gorm:"type:text;not null"`
	CreatedAt   time.Time     `gorm:"column:ctime;not null"`
	ModifiedAt  time.Time     `gorm:"column:mtime;not null"`
	PaymentTime *time.Time    `gorm:"column:ptime;index:futures_def_i_futures,priority:2"`
	CreatedBy   *snowflake.ID `gorm:"column:cby;index"`
	ModifiedBy  *snowflake.ID `gorm:"column:mby;index"`
	PaidBy      *snowflake.ID `gorm:"column:pby;index"`
	Description *string       `gorm:"type:text"`
}

func (FuturePayment) TableName() string { return "futures_def" }

// Event is the audit row appended on every state transition.
type Event struct {
	ID        snowflake.ID  `gorm:"primaryKey"`
	FutureID  snowflake.ID  `gorm:"not null;index"`
	StashID   snowflake.ID  `gorm:"not null;index"`
	FromState *State        `gorm:"type:text"`
	ToState   State         `gorm:"type:text;not null"`
	Reason    string        `gorm:"type:text;not null"`
	ActorID   *snowflake.ID `gorm:"index"`
	IOID      *snowflake.ID `gorm:"column:io_id"`
	CreatedAt time.Time     `gorm:"not null"`
}

func (Event) TableName() string { return "futures_events" }

const (
	ReasonCreated   = "created"
	ReasonFulfilled = "fulfilled"
	ReasonCancelled = "cancelled"
	ReasonExpired   = "expired"
)
