package service

import (
	"fmt"
	"sort"
	"time"

	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
)

// ApplyModifiers folds mods over base in lookup order (ties by id). Disabled
// modifiers, disabled types and types whose billing period does not contain
// at are skipped. Multipliers compound; policy overwrites replace, so the
// last applicable overwrite wins.
func ApplyModifiers(base ratedomain.EffectivePricing, mods []ratedomain.BoundModifier, at time.Time) (ratedomain.EffectivePricing, error) {
	ordered := make([]ratedomain.BoundModifier, len(mods))
	copy(ordered, mods)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Modifier, ordered[j].Modifier
		if a.LookupOrder != b.LookupOrder {
			return a.LookupOrder < b.LookupOrder
		}
		return a.ID < b.ID
	})

	out := base
	for _, m := range ordered {
		if !m.Modifier.Enabled || !m.Type.Enabled {
			continue
		}
		if m.Type.BillingPeriodID != nil {
			if m.Period == nil {
				return ratedomain.EffectivePricing{}, fmt.Errorf("%w: modifier type %s references missing billing period %s",
					ratedomain.ErrConfiguration, m.Type.ID, *m.Type.BillingPeriodID)
			}
			ok, err := m.Period.Contains(at)
			if err != nil {
				return ratedomain.EffectivePricing{}, err
			}
			if !ok {
				continue
			}
		}

		if m.Type.OverquotaMultiplierIngress.Valid {
			out.Ingress = out.Ingress.Mul(m.Type.OverquotaMultiplierIngress.Decimal)
		}
		if m.Type.OverquotaMultiplierEgress.Valid {
			out.Egress = out.Egress.Mul(m.Type.OverquotaMultiplierEgress.Decimal)
		}
		if m.Type.OverquotaMultiplierSeconds.Valid {
			out.Seconds = out.Seconds.Mul(m.Type.OverquotaMultiplierSeconds.Decimal)
		}
		if m.Type.OverwriteIngressPolicy {
			out.IngressPolicy = m.Type.IngressPolicy
		}
		if m.Type.OverwriteEgressPolicy {
			out.EgressPolicy = m.Type.EgressPolicy
		}
	}
	return out, nil
}

// PriceFor combines the rate, its modifiers and the matched destination.
// The destination's per-second override replaces the base price before the
// modifiers run; its multiplier applies to the result.
func PriceFor(rate ratedomain.Rate, dest *ratedomain.Destination, mods []ratedomain.BoundModifier, at time.Time) (ratedomain.EffectivePricing, error) {
	base := ratedomain.BasePricing(rate)
	if dest != nil && dest.OverquotaSumSeconds != nil {
		base.Seconds = *dest.OverquotaSumSeconds
	}
	out, err := ApplyModifiers(base, mods, at)
	if err != nil {
		return ratedomain.EffectivePricing{}, err
	}
	if dest != nil && dest.OverquotaMultiplierSeconds.Valid {
		out.Seconds = out.Seconds.Mul(dest.OverquotaMultiplierSeconds.Decimal)
	}
	return out, nil
}
