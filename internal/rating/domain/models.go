// Package domain holds access accounts and the audit trail of rated
// accounting sessions.
package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	"github.com/netprofile/netbill/pkg/money"
)

type AccountState string

const (
	AccountActive AccountState = "active"
	// AccountBlocked is a prepaid account that could not pay its quota fee.
	AccountBlocked AccountState = "blocked"
	// AccountDisabled accounts are no longer rated or rolled over.
	AccountDisabled AccountState = "disabled"
)

func ParseAccountState(s string) (AccountState, error) {
	switch st := AccountState(s); st {
	case AccountActive, AccountBlocked, AccountDisabled:
		return st, nil
	}
	return "", fmt.Errorf("%w: account state %q", ErrInvalidState, s)
}

func (s AccountState) Value() (driver.Value, error) {
	if _, err := ParseAccountState(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

func (s *AccountState) Scan(value any) error {
	raw, err := scanString(value)
	if err != nil {
		return err
	}
	parsed, err := ParseAccountState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AccessAccount binds an entity to a rate and a stash, tracking the current
// quota window and the traffic used inside it.
type AccessAccount struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	EntityID snowflake.ID `gorm:"not null;index"`
	StashID  snowflake.ID `gorm:"not null;index"`
	RateID   snowflake.ID `gorm:"not null;index"`
	State    AccountState `gorm:"type:text;not null;index"`
	// PeriodAnchor is where absolute and fixed quota periods are counted from.
	PeriodAnchor     time.Time     `gorm:"column:qpanchor;not null"`
	QuotaPeriodStart time.Time     `gorm:"column:qpstart;not null"`
	QuotaPeriodEnd   time.Time     `gorm:"column:qpend;not null;index"`
	UsedIngress      money.Traffic `gorm:"column:ut_ingress;not null"`
	UsedEgress       money.Traffic `gorm:"column:ut_egress;not null"`
	UsedSeconds      uint32        `gorm:"column:u_sec;not null"`
	// BlockedPeriods counts consecutive windows a blocked account went unpaid.
	BlockedPeriods uint16    `gorm:"not null"`
	Version        int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (AccessAccount) TableName() string { return "entities_access" }

// SessionUsage is one accounting record reported for an account.
type SessionUsage struct {
	AccountID snowflake.ID
	// IdempotencyKey makes retried deliveries of the same record return the
	// first result instead of charging twice.
	IdempotencyKey string
	SessionName    string
	CalledStation  string
	Attributes     ratedomain.SessionAttributes
	Timestamp      time.Time
	Ingress        money.Traffic
	Egress         money.Traffic
	Seconds        uint32
}

type EventStatus string

const (
	EventRated    EventStatus = "rated"
	EventFlagged  EventStatus = "flagged"
	EventReviewed EventStatus = "reviewed"
)

func (s EventStatus) Value() (driver.Value, error) {
	switch s {
	case EventRated, EventFlagged, EventReviewed:
		return string(s), nil
	}
	return nil, fmt.Errorf("%w: event status %q", ErrInvalidState, s)
}

func (s *EventStatus) Scan(value any) error {
	raw, err := scanString(value)
	if err != nil {
		return err
	}
	st := EventStatus(raw)
	if _, err := st.Value(); err != nil {
		return err
	}
	*s = st
	return nil
}

const (
	ReasonNoFilterMatch      = "no_filter_match"
	ReasonNoDestinationMatch = "no_destination_match"
	ReasonRejectDestination  = "reject_destination"
	ReasonAccountNotActive   = "account_not_active"
)

// RatingEvent records the outcome of one rated or flagged session.
type RatingEvent struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	AccountID      snowflake.ID  `gorm:"not null;index"`
	StashID        snowflake.ID  `gorm:"not null;index"`
	RateID         snowflake.ID  `gorm:"not null"`
	IdempotencyKey *string       `gorm:"type:text;uniqueIndex"`
	SessionName    *string       `gorm:"type:text"`
	Status         EventStatus   `gorm:"type:text;not null;index"`
	Reason         *string       `gorm:"type:text"`
	DestinationID  *snowflake.ID `gorm:"index"`
	FilterID       *snowflake.ID
	OperationID    *snowflake.ID
	IOID           *snowflake.ID `gorm:"column:io_id"`

	OperationType *ledgerdomain.OperationType `gorm:"type:text"`
	Ingress       money.Traffic               `gorm:"not null"`
	Egress        money.Traffic               `gorm:"not null"`
	Seconds       uint32                      `gorm:"not null"`
	OverIngress   money.Traffic               `gorm:"not null"`
	OverEgress    money.Traffic               `gorm:"not null"`
	OverSeconds   uint32                      `gorm:"not null"`
	Charged       money.Money                 `gorm:"not null"`

	Timestamp  time.Time `gorm:"not null;index"`
	ReviewedBy *snowflake.ID
	ReviewedAt *time.Time
	CreatedAt  time.Time `gorm:"not null"`
}

func (RatingEvent) TableName() string { return "rating_events" }

// Result is what RateSession hands back to the accounting layer.
type Result struct {
	Event     RatingEvent
	Operation *ledgerdomain.StashOperation
	IO        *ledgerdomain.StashIO
	// Duplicate is set when the idempotency key was already rated.
	Duplicate bool
}

func (r Result) Flagged() bool { return r.Event.Status == EventFlagged }

func scanString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidState, value)
}
