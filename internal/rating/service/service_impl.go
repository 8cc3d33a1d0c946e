package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/internal/clock"
	"github.com/netprofile/netbill/internal/config"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	quotadomain "github.com/netprofile/netbill/internal/quota/domain"
	"github.com/netprofile/netbill/internal/quotaperiod"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	ratingdomain "github.com/netprofile/netbill/internal/rating/domain"
	"github.com/netprofile/netbill/pkg/money"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ratingdomain.Repository
	Rates      ratedomain.Service
	Ledger     ledgerdomain.Service
	LedgerRepo ledgerdomain.Repository
	Sessions   quotadomain.Service `optional:"true"`
	Clock      clock.Clock
	Config     config.Config
	Registerer prometheus.Registerer `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ratingdomain.Repository
	rates      ratedomain.Service
	ledger     ledgerdomain.Service
	ledgerRepo ledgerdomain.Repository
	sessions   quotadomain.Service
	clock      clock.Clock
	calc       quotaperiod.Calculator
	policy     string
	maxRetries int
	batch      int
	metrics    *metrics
	tracer     trace.Tracer
}

func New(p Params) (ratingdomain.Service, error) {
	loc, err := p.Config.Rating.Location()
	if err != nil {
		return nil, err
	}
	weekday, err := p.Config.Rating.Weekday()
	if err != nil {
		return nil, err
	}
	policy := p.Config.Rating.NoMatchPolicy
	if policy == "" {
		policy = config.NoMatchReject
	}
	m, err := newMetrics(p.Registerer)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("rating.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		rates:      p.Rates,
		ledger:     p.Ledger,
		ledgerRepo: p.LedgerRepo,
		sessions:   p.Sessions,
		clock:      p.Clock,
		calc:       quotaperiod.NewCalculator(loc, weekday),
		policy:     policy,
		maxRetries: p.Config.Rating.MaxRetries,
		batch:      p.Config.Rating.SweepBatch,
		metrics:    m,
		tracer:     otel.Tracer("github.com/netprofile/netbill/internal/rating"),
	}, nil
}

// route is where a session lands after filter and destination lookup. A
// non-empty reason means the session is flagged instead of rated.
type route struct {
	filter *ratedomain.Filter
	dest   *ratedomain.Destination
	reason string
}

func (s *Service) RateSession(ctx context.Context, rateID snowflake.ID, usage ratingdomain.SessionUsage) (res *ratingdomain.Result, err error) {
	ctx, span := s.tracer.Start(ctx, "rating.RateSession", trace.WithAttributes(
		attribute.String("account_id", usage.AccountID.String()),
		attribute.String("rate_id", rateID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.observeSession(res, err)
		span.End()
	}()

	if usage.AccountID == 0 || rateID == 0 {
		return nil, ratingdomain.ErrInvalidUsage
	}
	if usage.Timestamp.IsZero() {
		usage.Timestamp = s.clock.Now(ctx)
	}
	usage.Timestamp = usage.Timestamp.UTC()

	if prior, err := s.findDuplicate(ctx, usage.IdempotencyKey); err != nil || prior != nil {
		return prior, err
	}

	account, err := s.repo.FindAccount(ctx, s.db, usage.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ratingdomain.ErrAccountNotFound, usage.AccountID)
	}
	if account.RateID != rateID {
		return nil, fmt.Errorf("%w: account %s is on rate %s", ratingdomain.ErrRateMismatch, account.ID, account.RateID)
	}

	rate, err := s.rates.GetRate(ctx, rateID)
	if err != nil {
		return nil, err
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}

	rt, err := s.route(ctx, rate, usage)
	if err != nil {
		return nil, err
	}
	var pricing ratedomain.EffectivePricing
	if rt.reason == "" {
		pricing, err = s.rates.EffectivePricing(ctx, rate, rt.dest, usage.Timestamp)
		if err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		res, err = s.rateOnce(ctx, account.ID, rate, rt, pricing, usage)
		if err == nil || !errors.Is(err, ledgerdomain.ErrConcurrencyConflict) || attempt >= s.maxRetries {
			break
		}
		s.log.Warn("retrying session after concurrent update",
			zap.Stringer("account_id", account.ID),
			zap.Int("attempt", attempt+1),
		)
	}
	if err != nil && usage.IdempotencyKey != "" {
		// A concurrent delivery of the same record may have won the unique key.
		if prior, findErr := s.findDuplicate(ctx, usage.IdempotencyKey); findErr == nil && prior != nil {
			return prior, nil
		}
	}
	return res, err
}

func (s *Service) findDuplicate(ctx context.Context, key string) (*ratingdomain.Result, error) {
	if key == "" {
		return nil, nil
	}
	event, err := s.repo.FindEventByKey(ctx, s.db, key)
	if err != nil || event == nil {
		return nil, err
	}
	return &ratingdomain.Result{Event: *event, Duplicate: true}, nil
}

func (s *Service) route(ctx context.Context, rate *ratedomain.Rate, usage ratingdomain.SessionUsage) (route, error) {
	var rt route
	if rate.FilterSetID != nil {
		filter, err := s.rates.ResolveFilter(ctx, *rate.FilterSetID, usage.Attributes)
		switch {
		case err == nil:
			rt.filter = filter
		case errors.Is(err, ratedomain.ErrNoMatch):
			if rt.reason, err = s.noMatch(err, ratingdomain.ReasonNoFilterMatch); err != nil || rt.reason != "" {
				return rt, err
			}
		default:
			return rt, err
		}
	}
	if rate.DestinationSetID != nil {
		dest, err := s.rates.ResolveDestination(ctx, *rate.DestinationSetID, usage.CalledStation)
		switch {
		case err == nil:
			rt.dest = dest
			if dest.Type == ratedomain.DestinationReject {
				rt.reason = ratingdomain.ReasonRejectDestination
			}
		case errors.Is(err, ratedomain.ErrNoMatch):
			if rt.reason, err = s.noMatch(err, ratingdomain.ReasonNoDestinationMatch); err != nil {
				return rt, err
			}
		default:
			return rt, err
		}
	}
	return rt, nil
}

// noMatch applies the configured policy to a failed lookup. It returns the
// flag reason under the reject policy, nothing under normal, and the lookup
// error under error.
func (s *Service) noMatch(err error, reason string) (string, error) {
	switch s.policy {
	case config.NoMatchError:
		return "", err
	case config.NoMatchNormal:
		return "", nil
	default:
		return reason, nil
	}
}

func (s *Service) rateOnce(
	ctx context.Context,
	accountID snowflake.ID,
	rate *ratedomain.Rate,
	rt route,
	pricing ratedomain.EffectivePricing,
	usage ratingdomain.SessionUsage,
) (*ratingdomain.Result, error) {
	var res ratingdomain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, stash, err := s.lockAccount(ctx, tx, accountID, rate.ID)
		if err != nil {
			return err
		}
		if account.State != ratingdomain.AccountActive {
			return fmt.Errorf("%w: %s is %s", ratingdomain.ErrAccountNotActive, account.ID, account.State)
		}

		event := s.newEvent(account, rate, rt, usage, s.clock.Now(ctx).UTC())
		if rt.reason != "" {
			event.Status = ratingdomain.EventFlagged
			event.Reason = &rt.reason
			res.Event = *event
			return s.repo.InsertEvent(ctx, tx, event)
		}

		rolled, err := s.rollTx(ctx, tx, account, stash, rate, usage.Timestamp)
		if err != nil {
			return err
		}
		if rolled.Account.State != ratingdomain.AccountActive {
			// The new window went unpaid; keep the block and draw nothing from it.
			reason := ratingdomain.ReasonAccountNotActive
			event.Status = ratingdomain.EventFlagged
			event.Reason = &reason
			res.Event = *event
			return s.repo.InsertEvent(ctx, tx, event)
		}

		sp := splitUsage(account, rate, rt.dest, usage)
		ingress := sp.ingressState(pricing, rt.dest)
		egress := sp.egressState(pricing, rt.dest)
		opType := ledgerdomain.SubtractOperation(ingress, egress)
		charge := sp.charge(pricing, rt.dest)

		if err := sp.accumulate(account); err != nil {
			return err
		}

		var ioID *snowflake.ID
		if charge.IsPositive() {
			io, err := s.postUsage(ctx, tx, account, rate, usage, charge, ingress, egress)
			if err != nil {
				return err
			}
			res.IO = io
			ioID = &io.ID
		}

		op, err := s.ledger.RecordOperationTx(ctx, tx, ledgerdomain.OperationRequest{
			StashID:          account.StashID,
			IOID:             ioID,
			Type:             opType,
			Difference:       charge.Neg(),
			EntityID:         &account.EntityID,
			AccountedIngress: &usage.Ingress,
			AccountedEgress:  &usage.Egress,
			AccountedSeconds: &usage.Seconds,
			Comments:         nonEmpty(usage.SessionName),
			Timestamp:        usage.Timestamp,
		})
		if err != nil {
			return err
		}
		res.Operation = op

		account.UpdatedAt = s.clock.Now(ctx).UTC()
		if err := s.repo.UpdateAccount(ctx, tx, account); err != nil {
			return err
		}

		event.Status = ratingdomain.EventRated
		event.OperationID = &op.ID
		event.OperationType = &opType
		event.IOID = ioID
		event.OverIngress = sp.overIngress
		event.OverEgress = sp.overEgress
		event.OverSeconds = sp.overSeconds
		event.Charged = charge
		if err := s.repo.InsertEvent(ctx, tx, event); err != nil {
			return err
		}
		res.Event = *event

		s.log.Debug("rated session",
			zap.Stringer("account_id", account.ID),
			zap.String("operation", string(opType)),
			zap.Stringer("charged", charge),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Service) postUsage(
	ctx context.Context,
	tx *gorm.DB,
	account *ratingdomain.AccessAccount,
	rate *ratedomain.Rate,
	usage ratingdomain.SessionUsage,
	charge money.Money,
	ingress, egress ledgerdomain.QuotaState,
) (*ledgerdomain.StashIO, error) {
	ioType, err := s.ledger.IOTypeByFunction(ctx, tx, ledgerdomain.FunctionRateUsage)
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"account_id": account.ID.String(),
		"rate_id":    rate.ID.String(),
	}
	if usage.SessionName != "" {
		data["session"] = usage.SessionName
	}
	return s.ledger.PostTx(ctx, tx, ledgerdomain.PostRequest{
		StashID:       account.StashID,
		TypeID:        ioType.ID,
		Difference:    charge.Neg(),
		EntityID:      &account.EntityID,
		Data:          data,
		Timestamp:     usage.Timestamp,
		AllowNegative: overdraftAllowed(rate, ingress, egress),
	})
}

// overdraftAllowed reports whether an over-quota charge may take the stash
// below its credit limit: every direction actually charged must allow
// over-quota use.
func overdraftAllowed(rate *ratedomain.Rate, ingress, egress ledgerdomain.QuotaState) bool {
	chargedIn := ingress == ledgerdomain.OverQuota
	chargedEg := egress == ledgerdomain.OverQuota
	if !chargedIn && !chargedEg {
		return rate.AllowOverquotaIngress && rate.AllowOverquotaEgress
	}
	return (!chargedIn || rate.AllowOverquotaIngress) && (!chargedEg || rate.AllowOverquotaEgress)
}

// lockAccount locks the account's stash and then the account itself, the
// same order every writer uses.
func (s *Service) lockAccount(ctx context.Context, tx *gorm.DB, id, rateID snowflake.ID) (*ratingdomain.AccessAccount, *ledgerdomain.Stash, error) {
	account, err := s.repo.FindAccount(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, fmt.Errorf("%w: %s", ratingdomain.ErrAccountNotFound, id)
	}
	stash, err := s.ledgerRepo.LockStash(ctx, tx, account.StashID)
	if err != nil {
		return nil, nil, err
	}
	if stash == nil {
		return nil, nil, fmt.Errorf("%w: %s", ledgerdomain.ErrStashNotFound, account.StashID)
	}
	account, err = s.repo.LockAccount(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, fmt.Errorf("%w: %s", ratingdomain.ErrAccountNotFound, id)
	}
	if account.RateID != rateID {
		// The rate was switched after it was loaded; let the caller retry.
		return nil, nil, ledgerdomain.ErrConcurrencyConflict
	}
	return account, stash, nil
}

func (s *Service) newEvent(account *ratingdomain.AccessAccount, rate *ratedomain.Rate, rt route, usage ratingdomain.SessionUsage, now time.Time) *ratingdomain.RatingEvent {
	event := &ratingdomain.RatingEvent{
		ID:          s.genID.Generate(),
		AccountID:   account.ID,
		StashID:     account.StashID,
		RateID:      rate.ID,
		SessionName: nonEmpty(usage.SessionName),
		Ingress:     usage.Ingress,
		Egress:      usage.Egress,
		Seconds:     usage.Seconds,
		Timestamp:   usage.Timestamp,
		CreatedAt:   now,
	}
	if usage.IdempotencyKey != "" {
		key := usage.IdempotencyKey
		event.IdempotencyKey = &key
	}
	if rt.filter != nil {
		event.FilterID = &rt.filter.ID
	}
	if rt.dest != nil {
		event.DestinationID = &rt.dest.ID
	}
	return event
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
