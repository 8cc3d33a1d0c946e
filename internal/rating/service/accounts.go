package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	"github.com/netprofile/netbill/internal/quotaperiod"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	ratingdomain "github.com/netprofile/netbill/internal/rating/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ActivateAccount opens an access account on a rate. Rates charged in
// advance pay the first window's quota fee straight away, pro-rated by the
// part of the window left unless the period is fixed and starts now.
func (s *Service) ActivateAccount(ctx context.Context, req ratingdomain.ActivateRequest) (*ratingdomain.AccessAccount, error) {
	if req.EntityID == 0 || req.StashID == 0 || req.RateID == 0 {
		return nil, ratedomain.ErrInvalidID
	}
	at := s.clock.Now(ctx)
	if req.At != nil {
		at = *req.At
	}
	at = at.UTC()

	rate, err := s.rates.GetRate(ctx, req.RateID)
	if err != nil {
		return nil, err
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}

	account := &ratingdomain.AccessAccount{
		ID:           s.genID.Generate(),
		EntityID:     req.EntityID,
		StashID:      req.StashID,
		RateID:       rate.ID,
		State:        ratingdomain.AccountActive,
		PeriodAnchor: at,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	window, err := s.calc.Window(rate.Period(), at, s.anchor(rate, account))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ratedomain.ErrConfiguration, err)
	}
	account.QuotaPeriodStart = window.Start.UTC()
	account.QuotaPeriodEnd = window.End.UTC()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stash, err := s.ledgerRepo.LockStash(ctx, tx, req.StashID)
		if err != nil {
			return err
		}
		if stash == nil {
			return fmt.Errorf("%w: %s", ledgerdomain.ErrStashNotFound, req.StashID)
		}
		if stash.EntityID != req.EntityID {
			return fmt.Errorf("%w: stash %s belongs to entity %s", ratingdomain.ErrInvalidUsage, stash.ID, stash.EntityID)
		}
		currency, err := s.ledgerRepo.FindCurrency(ctx, tx, stash.CurrencyID)
		if err != nil {
			return err
		}
		if currency == nil || !currency.AllowAccounts {
			return fmt.Errorf("%w: stash %s", ratingdomain.ErrAccountsNotAllowed, stash.ID)
		}

		if err := s.repo.InsertAccount(ctx, tx, account); err != nil {
			return err
		}

		if !rate.Type.ChargesInAdvance() || !rate.QuotaSum.IsPositive() {
			return nil
		}
		fee := rate.QuotaSum
		if rate.QuotaPeriodUnit.Kind() == quotaperiod.KindCalendar {
			fee = fee.Mul(window.FractionRemaining(at))
		}
		if !fee.IsPositive() {
			return nil
		}
		return s.chargeQuota(ctx, tx, account, rate, fee, closedPeriod{}, at,
			rate.Type == ratedomain.RateTypePrepaidCont)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("access account activated",
		zap.Stringer("account_id", account.ID),
		zap.Stringer("rate_id", rate.ID),
		zap.Time("qpend", account.QuotaPeriodEnd),
	)
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, id snowflake.ID) (*ratingdomain.AccessAccount, error) {
	if id == 0 {
		return nil, ratedomain.ErrInvalidID
	}
	account, err := s.repo.FindAccount(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ratingdomain.ErrAccountNotFound, id)
	}
	return account, nil
}

func (s *Service) ListAccounts(ctx context.Context, entityID snowflake.ID) ([]ratingdomain.AccessAccount, error) {
	return s.repo.ListAccountsByEntity(ctx, s.db, entityID)
}

func (s *Service) StartSession(ctx context.Context, accountID snowflake.ID) error {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.State != ratingdomain.AccountActive {
		return fmt.Errorf("%w: %s is %s", ratingdomain.ErrAccountNotActive, account.ID, account.State)
	}
	if s.sessions == nil {
		return nil
	}
	rate, err := s.rates.GetRate(ctx, account.RateID)
	if err != nil {
		return err
	}
	return s.sessions.CanStartSession(ctx, account.ID, rate.Simultaneous)
}

func (s *Service) EndSession(ctx context.Context, accountID snowflake.ID) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.EndSession(ctx, accountID)
}

func (s *Service) ListFlagged(ctx context.Context, limit int) ([]ratingdomain.RatingEvent, error) {
	status := ratingdomain.EventFlagged
	return s.repo.ListEvents(ctx, s.db, ratingdomain.EventFilter{Status: &status, Limit: limit})
}

func (s *Service) MarkReviewed(ctx context.Context, eventID snowflake.ID, operatorID *snowflake.ID) (*ratingdomain.RatingEvent, error) {
	var event *ratingdomain.RatingEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		event, err = s.repo.FindEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if event == nil {
			return fmt.Errorf("%w: %s", ratingdomain.ErrEventNotFound, eventID)
		}
		if event.Status != ratingdomain.EventFlagged {
			return fmt.Errorf("%w: %s is %s", ratingdomain.ErrEventNotFlagged, eventID, event.Status)
		}
		now := s.clock.Now(ctx).UTC()
		event.Status = ratingdomain.EventReviewed
		event.ReviewedBy = operatorID
		event.ReviewedAt = &now
		return s.repo.UpdateEvent(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}
