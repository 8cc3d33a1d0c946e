package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/pkg/money"
)

type Service interface {
	GetRate(ctx context.Context, id snowflake.ID) (*Rate, error)
	ListRates(ctx context.Context, filter ListRatesFilter) ([]Rate, error)

	// ResolveDestination returns the first active destination of the set
	// matching called, or ErrNoDestinationMatch.
	ResolveDestination(ctx context.Context, setID snowflake.ID, called string) (*Destination, error)
	// ResolveFilter returns the first filter of the set matching attrs, or
	// ErrNoFilterMatch.
	ResolveFilter(ctx context.Context, setID snowflake.ID, attrs SessionAttributes) (*Filter, error)
	// EffectivePricing applies the rate's modifiers, and the destination's
	// per-second adjustments when dest is not nil, at the given instant.
	EffectivePricing(ctx context.Context, rate *Rate, dest *Destination, at time.Time) (EffectivePricing, error)

	SaveRate(ctx context.Context, rate *Rate) error
	SaveRateClass(ctx context.Context, class *RateClass) error
	SaveDestinationSet(ctx context.Context, set *DestinationSet) error
	SaveDestination(ctx context.Context, dest *Destination) error
	DeleteDestination(ctx context.Context, id snowflake.ID) error
	SaveFilterSet(ctx context.Context, set *FilterSet) error
	SaveFilter(ctx context.Context, filter *Filter) error
	DeleteFilter(ctx context.Context, id snowflake.ID) error
	SaveBillingPeriod(ctx context.Context, period *BillingPeriod) error
	SaveModifierType(ctx context.Context, modType *RateModifierType) error
	SaveGlobalModifier(ctx context.Context, mod *GlobalRateModifier) error
}

// SessionAttributes carries the RADIUS attributes filters are matched on.
// A nil field means the session did not report the attribute.
type SessionAttributes struct {
	NASPortType      *uint32
	ServiceType      *uint32
	FramedProtocol   *uint32
	TunnelType       *uint32
	TunnelMediumType *uint32
}

// EffectivePricing is the over-quota pricing and traffic policy in force at
// one instant.
type EffectivePricing struct {
	Ingress       money.Money
	Egress        money.Money
	Seconds       money.Money
	IngressPolicy *string
	EgressPolicy  *string
}

// BasePricing is the rate's own over-quota pricing before any modifier.
func BasePricing(r Rate) EffectivePricing {
	return EffectivePricing{
		Ingress:       r.OverquotaSumIngress,
		Egress:        r.OverquotaSumEgress,
		Seconds:       r.OverquotaSumSeconds,
		IngressPolicy: r.IngressPolicy,
		EgressPolicy:  r.EgressPolicy,
	}
}

// BoundModifier is a rate's modifier with its type and billing period loaded.
type BoundModifier struct {
	Modifier GlobalRateModifier
	Type     RateModifierType
	Period   *BillingPeriod
}
