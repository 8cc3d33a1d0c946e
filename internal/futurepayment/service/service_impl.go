package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/internal/clock"
	"github.com/netprofile/netbill/internal/config"
	futuredomain "github.com/netprofile/netbill/internal/futurepayment/domain"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	"github.com/netprofile/netbill/pkg/money"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       futuredomain.Repository
	LedgerRepo ledgerdomain.Repository
	Clock      clock.Clock
	Config     config.Config
	Registerer prometheus.Registerer `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        futuredomain.Repository
	ledgerRepo  ledgerdomain.Repository
	clock       clock.Clock
	expiry      time.Duration
	transitions *prometheus.CounterVec
}

func New(p Params) (futuredomain.Service, error) {
	if p.Config.Futures.Expiry <= 0 {
		return nil, fmt.Errorf("futures expiry must be positive, got %s", p.Config.Futures.Expiry)
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netbill",
		Subsystem: "futures",
		Name:      "transitions_total",
		Help:      "Future payment state transitions by reason.",
	}, []string{"reason"})
	if p.Registerer != nil {
		if err := p.Registerer.Register(transitions); err != nil {
			return nil, err
		}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("futurepayment.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		ledgerRepo:  p.LedgerRepo,
		clock:       p.Clock,
		expiry:      p.Config.Futures.Expiry,
		transitions: transitions,
	}, nil
}

// Create records a promise and raises the stash futures headroom by its
// amount until the promise is paid or cancelled.
func (s *Service) Create(ctx context.Context, req futuredomain.CreateRequest) (*futuredomain.FuturePayment, error) {
	if !req.Amount.IsPositive() {
		return nil, futuredomain.ErrInvalidAmount
	}
	switch req.Origin {
	case futuredomain.OriginOperator, futuredomain.OriginUser:
	case "":
		req.Origin = futuredomain.OriginOperator
	default:
		return nil, fmt.Errorf("%w: %q", futuredomain.ErrInvalidOrigin, req.Origin)
	}

	var future *futuredomain.FuturePayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stash, err := s.lockStash(ctx, tx, req.StashID)
		if err != nil {
			return err
		}
		currency, err := s.ledgerRepo.FindCurrency(ctx, tx, stash.CurrencyID)
		if err != nil {
			return err
		}
		if currency == nil || !currency.AllowFutures {
			return futuredomain.ErrFuturesNotAllowed
		}

		entityID := req.EntityID
		if entityID == nil {
			entityID = &stash.EntityID
		}
		now := s.clock.Now(ctx).UTC()
		future = &futuredomain.FuturePayment{
			ID:          s.genID.Generate(),
			EntityID:    entityID,
			StashID:     stash.ID,
			Difference:  req.Amount,
			State:       futuredomain.StateActive,
			Origin:      req.Origin,
			CreatedAt:   now,
			ModifiedAt:  now,
			CreatedBy:   req.CreatedBy,
			ModifiedBy:  req.CreatedBy,
			Description: req.Description,
		}
		if err := s.repo.Insert(ctx, tx, future); err != nil {
			return err
		}
		if err := s.ledgerRepo.UpdateStashFuturesCredit(ctx, tx, stash.ID, stash.FuturesCredit.Add(req.Amount), now); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, future, nil, futuredomain.ReasonCreated, req.CreatedBy, nil, now)
	})
	if err != nil {
		return nil, err
	}
	s.transitions.WithLabelValues(futuredomain.ReasonCreated).Inc()
	return future, nil
}

// AfterPost walks the active futures of the stash oldest first and marks
// each one paid while some of the credited amount is still unallocated.
// Allocation is whole-record: a future reached with any remainder left is
// paid in full.
func (s *Service) AfterPost(ctx context.Context, tx *gorm.DB, stash *ledgerdomain.Stash, io *ledgerdomain.StashIO, ioType *ledgerdomain.StashIOType) error {
	if ioType == nil || !ioType.FulfillsFutures || !io.Difference.IsPositive() {
		return nil
	}

	active, err := s.repo.ListActiveByStash(ctx, tx, stash.ID)
	if err != nil || len(active) == 0 {
		return err
	}

	now := s.clock.Now(ctx).UTC()
	remainder := io.Difference
	released := money.Zero()
	paid := 0
	for i := range active {
		if !remainder.IsPositive() {
			break
		}
		future := &active[i]
		from := future.State
		paidAt := io.Timestamp
		future.State = futuredomain.StatePaid
		future.PaymentTime = &paidAt
		future.PaidBy = io.UserID
		future.ModifiedBy = io.UserID
		future.ModifiedAt = now
		if err := s.repo.Update(ctx, tx, future); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, future, &from, futuredomain.ReasonFulfilled, io.UserID, &io.ID, now); err != nil {
			return err
		}
		remainder = remainder.Sub(future.Difference)
		released = released.Add(future.Difference)
		paid++
	}

	if err := s.releaseCredit(ctx, tx, stash, released, now); err != nil {
		return err
	}
	s.transitions.WithLabelValues(futuredomain.ReasonFulfilled).Add(float64(paid))
	s.log.Info("future payments fulfilled",
		zap.Stringer("stash_id", stash.ID),
		zap.Stringer("io_id", io.ID),
		zap.Int("paid", paid),
	)
	return nil
}

func (s *Service) Cancel(ctx context.Context, req futuredomain.CancelRequest) (*futuredomain.FuturePayment, error) {
	var out *futuredomain.FuturePayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		future, err := s.lockFuture(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if future.State != futuredomain.StateActive {
			return fmt.Errorf("%w: %s is %s", futuredomain.ErrNotActive, future.ID, future.State)
		}
		reason := futuredomain.ReasonCancelled
		if req.Reason != "" {
			reason = reason + ": " + req.Reason
		}
		if err := s.cancelTx(ctx, tx, future, req.OperatorID, reason); err != nil {
			return err
		}
		out = future
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.transitions.WithLabelValues(futuredomain.ReasonCancelled).Inc()
	return out, nil
}

// PollExpired cancels active futures older than the configured expiry. Each
// future is handled in its own transaction; failures are logged and the
// sweep continues.
func (s *Service) PollExpired(ctx context.Context, now time.Time) (futuredomain.PollResult, error) {
	var result futuredomain.PollResult
	cutoff := now.UTC().Add(-s.expiry)

	ids, err := s.repo.ListExpiredIDs(ctx, s.db, cutoff, 0)
	if err != nil {
		return result, err
	}
	result.Scanned = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		expired, err := s.expireOne(ctx, id, cutoff)
		if err != nil {
			result.Failed++
			s.log.Error("failed to expire future payment", zap.Stringer("future_id", id), zap.Error(err))
			continue
		}
		if expired {
			result.Cancelled++
		}
	}

	s.transitions.WithLabelValues(futuredomain.ReasonExpired).Add(float64(result.Cancelled))
	s.log.Info("future payment poll finished",
		zap.Time("cutoff", cutoff),
		zap.Int("scanned", result.Scanned),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) expireOne(ctx context.Context, id snowflake.ID, cutoff time.Time) (bool, error) {
	expired := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		future, err := s.lockFuture(ctx, tx, id)
		if err != nil {
			return err
		}
		// Paid or cancelled while the sweep was running.
		if future.State != futuredomain.StateActive || future.CreatedAt.After(cutoff) {
			return nil
		}
		if err := s.cancelTx(ctx, tx, future, nil, futuredomain.ReasonExpired); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

func (s *Service) cancelTx(ctx context.Context, tx *gorm.DB, future *futuredomain.FuturePayment, actor *snowflake.ID, reason string) error {
	stash, err := s.lockStash(ctx, tx, future.StashID)
	if err != nil {
		return err
	}
	now := s.clock.Now(ctx).UTC()
	from := future.State
	future.State = futuredomain.StateCancelled
	future.ModifiedAt = now
	future.ModifiedBy = actor
	if err := s.repo.Update(ctx, tx, future); err != nil {
		return err
	}
	if err := s.releaseCredit(ctx, tx, stash, future.Difference, now); err != nil {
		return err
	}
	return s.appendEvent(ctx, tx, future, &from, reason, actor, nil, now)
}

// lockFuture takes the owning stash lock before re-reading the future so
// sweeps and fulfilment serialize on the same row.
func (s *Service) lockFuture(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*futuredomain.FuturePayment, error) {
	future, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if future == nil {
		return nil, futuredomain.ErrFutureNotFound
	}
	if _, err := s.lockStash(ctx, tx, future.StashID); err != nil {
		return nil, err
	}
	future, err = s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if future == nil {
		return nil, futuredomain.ErrFutureNotFound
	}
	return future, nil
}

func (s *Service) lockStash(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*ledgerdomain.Stash, error) {
	stash, err := s.ledgerRepo.LockStash(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if stash == nil {
		return nil, fmt.Errorf("%w: %s", ledgerdomain.ErrStashNotFound, id)
	}
	return stash, nil
}

func (s *Service) releaseCredit(ctx context.Context, tx *gorm.DB, stash *ledgerdomain.Stash, amount money.Money, at time.Time) error {
	if amount.IsZero() {
		return nil
	}
	credit := money.Max(stash.FuturesCredit.Sub(amount), money.Zero())
	if err := s.ledgerRepo.UpdateStashFuturesCredit(ctx, tx, stash.ID, credit, at); err != nil {
		return err
	}
	stash.FuturesCredit = credit
	return nil
}

func (s *Service) appendEvent(ctx context.Context, tx *gorm.DB, future *futuredomain.FuturePayment, from *futuredomain.State, reason string, actor, ioID *snowflake.ID, at time.Time) error {
	return s.repo.InsertEvent(ctx, tx, &futuredomain.Event{
		ID:        s.genID.Generate(),
		FutureID:  future.ID,
		StashID:   future.StashID,
		FromState: from,
		ToState:   future.State,
		Reason:    reason,
		ActorID:   actor,
		IOID:      ioID,
		CreatedAt: at,
	})
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*futuredomain.FuturePayment, error) {
	future, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if future == nil {
		return nil, futuredomain.ErrFutureNotFound
	}
	return future, nil
}

func (s *Service) ListByStash(ctx context.Context, stashID snowflake.ID, state *futuredomain.State) ([]futuredomain.FuturePayment, error) {
	return s.repo.ListByStash(ctx, s.db, stashID, state)
}

func (s *Service) ListEvents(ctx context.Context, futureID snowflake.ID) ([]futuredomain.Event, error) {
	return s.repo.ListEvents(ctx, s.db, futureID)
}
