// Package domain holds rate reference data: rates, destination and filter
// sets, billing periods and rate modifiers.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/internal/quotaperiod"
	"github.com/netprofile/netbill/pkg/money"
)

type RateClass struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Name        string       `gorm:"type:text;not null;uniqueIndex"`
	Description *string      `gorm:"type:text"`
}

func (RateClass) TableName() string { return "rates_classes_def" }

// Rate is the principal pricing entity.
type Rate struct {
	ID                    snowflake.ID  `gorm:"primaryKey"`
	ClassID               *snowflake.ID `gorm:"index"`
	Type                  RateType      `gorm:"type:text;not null"`
	Name                  string        `gorm:"type:text;not null;uniqueIndex"`
	Polled                bool          `gorm:"not null;index"`
	AllowOverquotaIngress bool          `gorm:"not null"`
	AllowOverquotaEgress  bool          `gorm:"not null"`
	DestinationSetID      *snowflake.ID `gorm:"index"`
	FilterSetID           *snowflake.ID `gorm:"index"`

	QuotaPeriodAmount uint16           `gorm:"not null"`
	QuotaPeriodUnit   quotaperiod.Unit `gorm:"type:text;not null"`

	QuotaSum            money.Money   `gorm:"not null"`
	AuxiliarySum        money.Money   `gorm:"not null"`
	QuotaIngressTraffic money.Traffic `gorm:"not null"`
	QuotaEgressTraffic  money.Traffic `gorm:"not null"`
	QuotaSeconds        uint32        `gorm:"not null"`

	OverquotaSumIngress money.Money `gorm:"not null"`
	OverquotaSumEgress  money.Money `gorm:"not null"`
	OverquotaSumSeconds money.Money `gorm:"not null"`

	Simultaneous  uint32  `gorm:"not null"`
	IngressPolicy *string `gorm:"type:text"`
	EgressPolicy  *string `gorm:"type:text"`
	// BlockTimeframe caps how many periods a prepaid account may stay blocked
	// for lack of funds before it is no longer rolled over.
	BlockTimeframe *uint16
	Description    *string   `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	// UpdatedAt is stamped by the service clock; gorm must not overwrite it on Save.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (Rate) TableName() string { return "rates_def" }

func (r Rate) Period() quotaperiod.Period {
	return quotaperiod.Period{Amount: r.QuotaPeriodAmount, Unit: r.QuotaPeriodUnit}
}

// Validate rejects rates the engine cannot price.
func (r Rate) Validate() error {
	if _, err := ParseRateType(string(r.Type)); err != nil {
		return err
	}
	if err := r.Period().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	for name, v := range map[string]money.Money{
		"quota_sum":             r.QuotaSum,
		"auxiliary_sum":         r.AuxiliarySum,
		"overquota_sum_ingress": r.OverquotaSumIngress,
		"overquota_sum_egress":  r.OverquotaSumEgress,
		"overquota_sum_seconds": r.OverquotaSumSeconds,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrConfiguration, name)
		}
	}
	return nil
}

type DestinationSet struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string       `gorm:"type:text;not null;uniqueIndex"`
}

func (DestinationSet) TableName() string { return "dest_sets_def" }

// Destination classifies a called-station id within a set.
type Destination struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	SetID       snowflake.ID    `gorm:"not null;index"`
	Name        string          `gorm:"type:text;not null"`
	Type        DestinationType `gorm:"type:text;not null"`
	MatchType   MatchType       `gorm:"type:text;not null"`
	Active      bool            `gorm:"not null;index"`
	LookupOrder uint16          `gorm:"not null;index"`
	MatchString string          `gorm:"type:text;not null"`
	// OverquotaSumSeconds replaces the rate's per-second price for this destination.
	OverquotaSumSeconds *money.Money
	// OverquotaMultiplierSeconds scales the per-second price after modifiers.
	OverquotaMultiplierSeconds money.NullFactor
}

func (Destination) TableName() string { return "dest_def" }

type FilterSet struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string       `gorm:"type:text;not null;uniqueIndex"`
}

func (FilterSet) TableName() string { return "filters_sets_def" }

// Filter lists required RADIUS attribute values. Nil fields match anything.
type Filter struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	SetID            snowflake.ID `gorm:"not null;index"`
	NASPortType      *uint32      `gorm:"column:nas_port_type"`
	ServiceType      *uint32
	FramedProtocol   *uint32
	TunnelType       *uint32
	TunnelMediumType *uint32
}

func (Filter) TableName() string { return "filters_def" }

type RateModifierType struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	Name            string        `gorm:"type:text;not null;uniqueIndex"`
	Enabled         bool          `gorm:"not null"`
	BillingPeriodID *snowflake.ID `gorm:"index"`

	OverquotaMultiplierIngress money.NullFactor
	OverquotaMultiplierEgress  money.NullFactor
	OverquotaMultiplierSeconds money.NullFactor

	OverwriteIngressPolicy bool    `gorm:"not null"`
	OverwriteEgressPolicy  bool    `gorm:"not null"`
	IngressPolicy          *string `gorm:"type:text"`
	EgressPolicy           *string `gorm:"type:text"`
	Description            *string `gorm:"type:text"`
}

func (RateModifierType) TableName() string { return "rates_mods_types" }

// GlobalRateModifier attaches a modifier type to a rate.
type GlobalRateModifier struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TypeID      snowflake.ID `gorm:"not null;uniqueIndex:rates_mods_global_u_mapping"`
	RateID      snowflake.ID `gorm:"not null;uniqueIndex:rates_mods_global_u_mapping;index"`
	Enabled     bool         `gorm:"not null"`
	LookupOrder uint16       `gorm:"not null;index"`
	CreatedAt   time.Time    `gorm:"not null"`
}

func (GlobalRateModifier) TableName() string { return "rates_mods_global" }
