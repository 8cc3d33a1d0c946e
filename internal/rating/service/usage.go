package service

import (
	"fmt"
	"math"

	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	ratingdomain "github.com/netprofile/netbill/internal/rating/domain"
	"github.com/netprofile/netbill/pkg/money"
)

// usageSplit divides one session's usage into the part covered by the
// remaining quota and the part beyond it.
type usageSplit struct {
	usage ratingdomain.SessionUsage

	overIngress money.Traffic
	overEgress  money.Traffic
	overSeconds uint32
	// bypass is set for noquota destinations: nothing is drawn from or
	// counted against the quota.
	bypass bool
}

func splitUsage(account *ratingdomain.AccessAccount, rate *ratedomain.Rate, dest *ratedomain.Destination, usage ratingdomain.SessionUsage) usageSplit {
	sp := usageSplit{usage: usage}
	if dest != nil && dest.Type == ratedomain.DestinationNoQuota {
		sp.bypass = true
		sp.overIngress = usage.Ingress
		sp.overEgress = usage.Egress
		sp.overSeconds = usage.Seconds
		return sp
	}

	leftIn := rate.QuotaIngressTraffic.Sub(account.UsedIngress)
	sp.overIngress = usage.Ingress.Sub(leftIn)

	leftEg := rate.QuotaEgressTraffic.Sub(account.UsedEgress)
	sp.overEgress = usage.Egress.Sub(leftEg)

	var leftSec uint32
	if rate.QuotaSeconds > account.UsedSeconds {
		leftSec = rate.QuotaSeconds - account.UsedSeconds
	}
	if usage.Seconds > leftSec {
		sp.overSeconds = usage.Seconds - leftSec
	}
	return sp
}

func billable(dest *ratedomain.Destination) bool {
	return dest == nil || dest.Type != ratedomain.DestinationOnlyQuota
}

func quotaState(over money.Traffic, price money.Money, dest *ratedomain.Destination) ledgerdomain.QuotaState {
	switch {
	case over == 0:
		return ledgerdomain.UnderQuota
	case billable(dest) && price.IsPositive():
		return ledgerdomain.OverQuota
	default:
		return ledgerdomain.Mixed
	}
}

func (sp usageSplit) ingressState(p ratedomain.EffectivePricing, dest *ratedomain.Destination) ledgerdomain.QuotaState {
	return quotaState(sp.overIngress, p.Ingress, dest)
}

func (sp usageSplit) egressState(p ratedomain.EffectivePricing, dest *ratedomain.Destination) ledgerdomain.QuotaState {
	return quotaState(sp.overEgress, p.Egress, dest)
}

// charge prices the over-quota part. Destinations limited to the quota
// never produce a charge.
func (sp usageSplit) charge(p ratedomain.EffectivePricing, dest *ratedomain.Destination) money.Money {
	if !billable(dest) {
		return money.Zero()
	}
	total := p.Ingress.MulTraffic(sp.overIngress).
		Add(p.Egress.MulTraffic(sp.overEgress)).
		Add(p.Seconds.MulInt(int64(sp.overSeconds)))
	if total.IsNegative() {
		return money.Zero()
	}
	return total
}

// accumulate adds the session to the account's period counters.
func (sp usageSplit) accumulate(account *ratingdomain.AccessAccount) error {
	if sp.bypass {
		return nil
	}
	in, err := account.UsedIngress.Add(sp.usage.Ingress)
	if err != nil {
		return fmt.Errorf("account %s ingress: %w", account.ID, err)
	}
	eg, err := account.UsedEgress.Add(sp.usage.Egress)
	if err != nil {
		return fmt.Errorf("account %s egress: %w", account.ID, err)
	}
	account.UsedIngress = in
	account.UsedEgress = eg
	if uint64(account.UsedSeconds)+uint64(sp.usage.Seconds) > math.MaxUint32 {
		account.UsedSeconds = math.MaxUint32
	} else {
		account.UsedSeconds += sp.usage.Seconds
	}
	return nil
}
