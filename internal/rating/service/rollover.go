package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	"github.com/netprofile/netbill/internal/quotaperiod"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	ratingdomain "github.com/netprofile/netbill/internal/rating/domain"
	"github.com/netprofile/netbill/pkg/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Rollover(ctx context.Context, accountID snowflake.ID, now time.Time) (*ratingdomain.RolloverOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "rating.Rollover")
	defer span.End()

	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rate, err := s.rates.GetRate(ctx, account.RateID)
	if err != nil {
		return nil, err
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}

	var out *ratingdomain.RolloverOutcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, stash, err := s.lockAccount(ctx, tx, accountID, rate.ID)
		if err != nil {
			return err
		}
		out, err = s.rollTx(ctx, tx, account, stash, rate, now.UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunRollover rolls every due account, one transaction each. A failing
// account is logged and counted, the sweep carries on.
func (s *Service) RunRollover(ctx context.Context, now time.Time) (ratingdomain.SweepResult, error) {
	var result ratingdomain.SweepResult
	ids, err := s.repo.ListDueAccountIDs(ctx, s.db, now.UTC(), s.batch)
	if err != nil {
		return result, err
	}
	result.Scanned = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		out, err := s.Rollover(ctx, id, now)
		if err != nil {
			result.Failed++
			s.metrics.rollovers.WithLabelValues("failed").Inc()
			s.log.Error("account rollover failed", zap.Stringer("account_id", id), zap.Error(err))
			continue
		}
		if out.Periods > 0 {
			result.Rolled++
			s.metrics.rollovers.WithLabelValues("rolled").Inc()
		}
		if out.Blocked {
			result.Blocked++
			s.metrics.rollovers.WithLabelValues("blocked").Inc()
		}
	}

	s.log.Info("rollover sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("rolled", result.Rolled),
		zap.Int("blocked", result.Blocked),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// anchor is where absolute and fixed periods are counted from: the
// account's activation. Calendar periods ignore it.
func (s *Service) anchor(rate *ratedomain.Rate, account *ratingdomain.AccessAccount) *time.Time {
	if rate.QuotaPeriodUnit.Kind() == quotaperiod.KindCalendar {
		return nil
	}
	anchor := account.PeriodAnchor
	return &anchor
}

// rollTx closes the account's quota window when now is past its end and
// opens the window containing now, charging the quota fee the rate type
// asks for. Blocked prepaid accounts get a fresh attempt at paying for the
// current window. The account and its stash must be locked by tx.
func (s *Service) rollTx(
	ctx context.Context,
	tx *gorm.DB,
	account *ratingdomain.AccessAccount,
	stash *ledgerdomain.Stash,
	rate *ratedomain.Rate,
	now time.Time,
) (*ratingdomain.RolloverOutcome, error) {
	out := &ratingdomain.RolloverOutcome{Account: *account, Fee: money.Zero()}
	if account.State == ratingdomain.AccountDisabled {
		return out, nil
	}
	ended := !now.Before(account.QuotaPeriodEnd)
	if !ended && account.State != ratingdomain.AccountBlocked {
		return out, nil
	}

	closed := closedPeriod{
		ingress: account.UsedIngress,
		egress:  account.UsedEgress,
		seconds: account.UsedSeconds,
	}
	if ended {
		p := rate.Period()
		anchor := s.anchor(rate, account)
		periods, err := s.calc.PeriodCount(p, account.QuotaPeriodStart, now, anchor)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ratedomain.ErrConfiguration, err)
		}
		if periods < 1 {
			periods = 1
		}
		window, err := s.calc.Window(p, now, anchor)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ratedomain.ErrConfiguration, err)
		}
		out.Periods = periods
		account.QuotaPeriodStart = window.Start.UTC()
		account.QuotaPeriodEnd = window.End.UTC()
		account.UsedIngress = 0
		account.UsedEgress = 0
		account.UsedSeconds = 0
	}

	var fee money.Money
	allowNegative := true
	switch {
	case rate.Type == ratedomain.RateTypeFree:
		fee = money.Zero()
	case account.State == ratingdomain.AccountBlocked:
		// Only the current window is owed; the windows spent blocked are not.
		account.BlockedPeriods = addPeriods(account.BlockedPeriods, out.Periods)
		if rate.BlockTimeframe != nil && account.BlockedPeriods > *rate.BlockTimeframe {
			account.State = ratingdomain.AccountDisabled
			s.log.Info("access account disabled after block timeframe",
				zap.Stringer("account_id", account.ID),
				zap.Uint16("blocked_periods", account.BlockedPeriods),
			)
			return s.saveRolled(ctx, tx, account, out)
		}
		fee = rate.QuotaSum
		allowNegative = false
	default:
		fee = rate.QuotaSum.MulInt(out.Periods)
		allowNegative = rate.Type != ratedomain.RateTypePrepaid
	}

	if fee.IsPositive() && !allowNegative && stash.Available().LessThan(fee) {
		if account.State != ratingdomain.AccountBlocked {
			account.State = ratingdomain.AccountBlocked
			account.BlockedPeriods = 1
			s.log.Info("access account blocked for unpaid quota fee",
				zap.Stringer("account_id", account.ID),
				zap.Stringer("fee", fee),
				zap.Stringer("available", stash.Available()),
			)
		}
		return s.saveRolled(ctx, tx, account, out)
	}

	if fee.IsPositive() {
		if err := s.chargeQuota(ctx, tx, account, rate, fee, closed, now, allowNegative); err != nil {
			return nil, err
		}
		out.Fee = fee
	}
	account.State = ratingdomain.AccountActive
	account.BlockedPeriods = 0
	return s.saveRolled(ctx, tx, account, out)
}

type closedPeriod struct {
	ingress money.Traffic
	egress  money.Traffic
	seconds uint32
}

func (s *Service) saveRolled(ctx context.Context, tx *gorm.DB, account *ratingdomain.AccessAccount, out *ratingdomain.RolloverOutcome) (*ratingdomain.RolloverOutcome, error) {
	account.UpdatedAt = s.clock.Now(ctx).UTC()
	if err := s.repo.UpdateAccount(ctx, tx, account); err != nil {
		return nil, err
	}
	out.Account = *account
	out.Blocked = account.State == ratingdomain.AccountBlocked
	return out, nil
}

// chargeQuota posts the quota fee and the operation explaining it, carrying
// the traffic accounted in the period just closed.
func (s *Service) chargeQuota(
	ctx context.Context,
	tx *gorm.DB,
	account *ratingdomain.AccessAccount,
	rate *ratedomain.Rate,
	fee money.Money,
	closed closedPeriod,
	at time.Time,
	allowNegative bool,
) error {
	fn := ledgerdomain.FunctionRateQuotaPostpaid
	if rate.Type.ChargesInAdvance() {
		fn = ledgerdomain.FunctionRateQuotaPrepaid
	}
	ioType, err := s.ledger.IOTypeByFunction(ctx, tx, fn)
	if err != nil {
		return err
	}
	io, err := s.ledger.PostTx(ctx, tx, ledgerdomain.PostRequest{
		StashID:    account.StashID,
		TypeID:     ioType.ID,
		Difference: fee.Neg(),
		EntityID:   &account.EntityID,
		Data: map[string]any{
			"account_id": account.ID.String(),
			"rate_id":    rate.ID.String(),
			"qpstart":    account.QuotaPeriodStart.Format(time.RFC3339),
			"qpend":      account.QuotaPeriodEnd.Format(time.RFC3339),
		},
		Timestamp:     at,
		AllowNegative: allowNegative,
	})
	if err != nil {
		return err
	}
	_, err = s.ledger.RecordOperationTx(ctx, tx, ledgerdomain.OperationRequest{
		StashID:          account.StashID,
		IOID:             &io.ID,
		Type:             ledgerdomain.OpSubQinQeg,
		Difference:       fee.Neg(),
		EntityID:         &account.EntityID,
		AccountedIngress: &closed.ingress,
		AccountedEgress:  &closed.egress,
		AccountedSeconds: &closed.seconds,
		Timestamp:        at,
	})
	return err
}

func addPeriods(n uint16, periods int64) uint16 {
	if periods <= 0 {
		return n
	}
	if int64(n)+periods > math.MaxUint16 {
		return math.MaxUint16
	}
	return n + uint16(periods)
}
