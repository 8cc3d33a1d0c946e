package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/internal/clock"
	"github.com/netprofile/netbill/internal/config"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	"github.com/netprofile/netbill/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// exchangePlaces is the precision of the cross rate between two currencies.
const exchangePlaces int32 = 16

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    ledgerdomain.Repository
	Clock   clock.Clock
	Config  config.Config
	Metrics *Metrics                `optional:"true"`
	Hooks   []ledgerdomain.PostHook `group:"ledger_post_hooks"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    ledgerdomain.Repository
	clock   clock.Clock
	cfg     config.LedgerConfig
	metrics *Metrics
	hooks   []ledgerdomain.PostHook
	tracer  trace.Tracer
}

func New(p Params) ledgerdomain.Service {
	metrics := p.Metrics
	if metrics == nil {
		metrics = newMetrics()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		cfg:     p.Config.Ledger,
		metrics: metrics,
		hooks:   p.Hooks,
		tracer:  otel.Tracer("github.com/netprofile/netbill/internal/ledger"),
	}
}

func (s *Service) CreateCurrency(ctx context.Context, currency *ledgerdomain.Currency) error {
	if currency.Code == "" || currency.Name == "" {
		return fmt.Errorf("%w: name and code are required", ledgerdomain.ErrInvalidCurrency)
	}
	if !currency.ExchangeRate.IsPositive() {
		return fmt.Errorf("%w: exchange rate must be positive", ledgerdomain.ErrInvalidCurrency)
	}
	if currency.ID == 0 {
		currency.ID = s.genID.Generate()
	}
	return s.repo.InsertCurrency(ctx, s.db, currency)
}

func (s *Service) GetCurrency(ctx context.Context, id snowflake.ID) (*ledgerdomain.Currency, error) {
	currency, err := s.repo.FindCurrency(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if currency == nil {
		return nil, ledgerdomain.ErrCurrencyNotFound
	}
	return currency, nil
}

func (s *Service) CreateStash(ctx context.Context, req ledgerdomain.CreateStashRequest) (*ledgerdomain.Stash, error) {
	if req.Credit.IsNegative() {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	var stash *ledgerdomain.Stash
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		currency, err := s.repo.FindCurrency(ctx, tx, req.CurrencyID)
		if err != nil {
			return err
		}
		if currency == nil {
			return ledgerdomain.ErrCurrencyNotFound
		}
		if !req.Credit.IsZero() && !currency.AllowCredit {
			return ledgerdomain.ErrCreditNotAllowed
		}

		now := s.clock.Now(ctx).UTC()
		stash = &ledgerdomain.Stash{
			ID:         s.genID.Generate(),
			EntityID:   req.EntityID,
			CurrencyID: req.CurrencyID,
			Name:       req.Name,
			Credit:     req.Credit,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return s.repo.InsertStash(ctx, tx, stash)
	})
	if err != nil {
		return nil, err
	}
	return stash, nil
}

func (s *Service) GetStash(ctx context.Context, id snowflake.ID) (*ledgerdomain.Stash, error) {
	stash, err := s.repo.FindStash(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if stash == nil {
		return nil, ledgerdomain.ErrStashNotFound
	}
	return stash, nil
}

func (s *Service) ListStashes(ctx context.Context, entityID snowflake.ID) ([]ledgerdomain.Stash, error) {
	return s.repo.ListStashes(ctx, s.db, entityID)
}

// SetCredit replaces the credit headroom configured by an operator. Headroom
// held by future payments is kept apart and left alone.
func (s *Service) SetCredit(ctx context.Context, stashID snowflake.ID, credit money.Money) (*ledgerdomain.Stash, error) {
	if credit.IsNegative() {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	var out *ledgerdomain.Stash
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stash, err := s.lockStash(ctx, tx, stashID)
		if err != nil {
			return err
		}
		if !credit.IsZero() {
			currency, err := s.repo.FindCurrency(ctx, tx, stash.CurrencyID)
			if err != nil {
				return err
			}
			if currency == nil || !currency.AllowCredit {
				return ledgerdomain.ErrCreditNotAllowed
			}
		}
		now := s.clock.Now(ctx).UTC()
		if err := s.repo.UpdateStashCredit(ctx, tx, stash.ID, credit, now); err != nil {
			return err
		}
		stash.Credit = credit
		stash.UpdatedAt = now
		out = stash
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) IOTypeByFunction(ctx context.Context, db *gorm.DB, fn ledgerdomain.IOFunction) (*ledgerdomain.StashIOType, error) {
	if db == nil {
		db = s.db
	}
	t, err := s.repo.FindIOTypeByFunction(ctx, db, fn)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: function %s", ledgerdomain.ErrIOTypeNotFound, fn)
	}
	return t, nil
}

func (s *Service) Post(ctx context.Context, req ledgerdomain.PostRequest) (*ledgerdomain.StashIO, error) {
	var io *ledgerdomain.StashIO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		io, err = s.PostTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return io, nil
}

// PostTx appends a StashIO row and moves the stash balance inside tx. The
// caller owns the transaction; any error leaves tx in a state that must be
// rolled back.
func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostRequest) (_ *ledgerdomain.StashIO, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Post", trace.WithAttributes(
		attribute.String("stash_id", req.StashID.String()),
		attribute.String("difference", req.Difference.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.observePost(err)
		span.End()
	}()

	ioType, err := s.repo.FindIOType(ctx, tx, req.TypeID)
	if err != nil {
		return nil, err
	}
	if ioType == nil {
		return nil, fmt.Errorf("%w: %s", ledgerdomain.ErrIOTypeNotFound, req.TypeID)
	}
	if !ioType.Direction.Allows(req.Difference.Cmp(money.Zero())) {
		return nil, fmt.Errorf("%w: %s does not accept %s", ledgerdomain.ErrDirectionMismatch, ioType.Name, req.Difference)
	}

	stash, err := s.lockStash(ctx, tx, req.StashID)
	if err != nil {
		return nil, err
	}

	diff, data, err := s.exchange(ctx, tx, stash, req)
	if err != nil {
		return nil, err
	}

	newAmount := stash.Amount.Add(diff)
	if diff.IsNegative() && !req.AllowNegative && newAmount.Add(stash.Credit).Add(stash.FuturesCredit).IsNegative() {
		return nil, fmt.Errorf("%w: stash %s has %s available, needs %s",
			ledgerdomain.ErrInsufficientFunds, stash.ID, stash.Available(), diff.Neg())
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now(ctx)
	}
	ts = ts.UTC()

	io := &ledgerdomain.StashIO{
		ID:          s.genID.Generate(),
		TypeID:      ioType.ID,
		StashID:     stash.ID,
		UserID:      req.UserID,
		EntityID:    req.EntityID,
		Timestamp:   ts,
		Difference:  diff,
		Data:        data,
		Description: req.Description,
	}
	if req.CurrencyID != nil && *req.CurrencyID != stash.CurrencyID {
		io.CurrencyID = req.CurrencyID
	}
	if err := s.repo.InsertIO(ctx, tx, io); err != nil {
		return nil, err
	}

	stash.Amount = newAmount
	if stash.Amount.GreaterThan(stash.AlltimeMax) {
		stash.AlltimeMax = stash.Amount
	}
	if stash.Amount.LessThan(stash.AlltimeMin) {
		stash.AlltimeMin = stash.Amount
	}
	stash.UpdatedAt = s.clock.Now(ctx).UTC()
	if err := s.repo.UpdateStashBalance(ctx, tx, stash); err != nil {
		return nil, err
	}

	for _, hook := range s.hooks {
		if err := hook.AfterPost(ctx, tx, stash, io, ioType); err != nil {
			return nil, err
		}
	}

	s.log.Debug("posted stash io",
		zap.Stringer("stash_id", stash.ID),
		zap.Stringer("io_id", io.ID),
		zap.String("type", ioType.Name),
		zap.Stringer("difference", diff),
		zap.Stringer("balance", stash.Amount),
	)
	return io, nil
}

// exchange converts the posted difference into the stash currency. The
// posting currency must allow exchanging from it and the stash currency
// must allow exchanging to it.
func (s *Service) exchange(ctx context.Context, tx *gorm.DB, stash *ledgerdomain.Stash, req ledgerdomain.PostRequest) (money.Money, datatypes.JSONMap, error) {
	data := datatypes.JSONMap{}
	for k, v := range req.Data {
		data[k] = v
	}
	if req.CurrencyID == nil || *req.CurrencyID == stash.CurrencyID {
		return req.Difference, nilIfEmpty(data), nil
	}

	from, err := s.repo.FindCurrency(ctx, tx, *req.CurrencyID)
	if err != nil {
		return money.Money{}, nil, err
	}
	to, err := s.repo.FindCurrency(ctx, tx, stash.CurrencyID)
	if err != nil {
		return money.Money{}, nil, err
	}
	if from == nil || to == nil {
		return money.Money{}, nil, ledgerdomain.ErrCurrencyNotFound
	}
	if !from.CanExchangeFrom || !to.CanExchangeTo || !from.ExchangeRate.IsPositive() || !to.ExchangeRate.IsPositive() {
		return money.Money{}, nil, fmt.Errorf("%w: %s -> %s", ledgerdomain.ErrCurrencyMismatch, from.Code, to.Code)
	}

	factor := from.ExchangeRate.DivRound(to.ExchangeRate.Decimal, exchangePlaces)
	data["original_amount"] = req.Difference.String()
	data["original_currency"] = from.Code
	data["exchange_factor"] = factor.String()
	return req.Difference.Mul(factor), data, nil
}

func nilIfEmpty(m datatypes.JSONMap) datatypes.JSONMap {
	if len(m) == 0 {
		return nil
	}
	return m
}

func (s *Service) lockStash(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*ledgerdomain.Stash, error) {
	stash, err := s.repo.LockStash(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if stash == nil {
		return nil, fmt.Errorf("%w: %s", ledgerdomain.ErrStashNotFound, id)
	}
	return stash, nil
}

func (s *Service) RecordOperation(ctx context.Context, req ledgerdomain.OperationRequest) (*ledgerdomain.StashOperation, error) {
	var op *ledgerdomain.StashOperation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		op, err = s.RecordOperationTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (s *Service) RecordOperationTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.OperationRequest) (*ledgerdomain.StashOperation, error) {
	if _, err := ledgerdomain.ParseOperationType(string(req.Type)); err != nil {
		return nil, err
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now(ctx)
	}
	op := &ledgerdomain.StashOperation{
		ID:               s.genID.Generate(),
		StashID:          req.StashID,
		IOID:             req.IOID,
		Type:             req.Type,
		Timestamp:        ts.UTC(),
		OperatorID:       req.OperatorID,
		EntityID:         req.EntityID,
		Difference:       req.Difference,
		AccountedIngress: req.AccountedIngress,
		AccountedEgress:  req.AccountedEgress,
		AccountedSeconds: req.AccountedSeconds,
		Comments:         req.Comments,
	}
	if err := s.repo.InsertOperation(ctx, tx, op); err != nil {
		return nil, err
	}
	return op, nil
}

func (s *Service) Credit(ctx context.Context, req ledgerdomain.AdjustmentRequest) (*ledgerdomain.StashIO, error) {
	opType := ledgerdomain.OpOperator
	if req.Cash {
		opType = ledgerdomain.OpAddCash
	}
	return s.adjust(ctx, req, s.cfg.OperatorCreditType, req.Amount, opType)
}

func (s *Service) Debit(ctx context.Context, req ledgerdomain.AdjustmentRequest) (*ledgerdomain.StashIO, error) {
	return s.adjust(ctx, req, s.cfg.OperatorDebitType, req.Amount.Neg(), ledgerdomain.OpOperator)
}

func (s *Service) adjust(ctx context.Context, req ledgerdomain.AdjustmentRequest, typeName string, diff money.Money, opType ledgerdomain.OperationType) (*ledgerdomain.StashIO, error) {
	if !req.Amount.IsPositive() {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	var io *ledgerdomain.StashIO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ioType, err := s.repo.FindIOTypeByName(ctx, tx, typeName)
		if err != nil {
			return err
		}
		if ioType == nil {
			return fmt.Errorf("%w: %q", ledgerdomain.ErrIOTypeNotFound, typeName)
		}

		io, err = s.PostTx(ctx, tx, ledgerdomain.PostRequest{
			StashID:     req.StashID,
			TypeID:      ioType.ID,
			Difference:  diff,
			UserID:      req.OperatorID,
			Description: req.Description,
		})
		if err != nil {
			return err
		}

		_, err = s.RecordOperationTx(ctx, tx, ledgerdomain.OperationRequest{
			StashID:    req.StashID,
			IOID:       &io.ID,
			Type:       opType,
			Difference: diff,
			OperatorID: req.OperatorID,
			Comments:   req.Description,
			Timestamp:  io.Timestamp,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("manual stash adjustment",
		zap.Stringer("stash_id", req.StashID),
		zap.Stringer("difference", diff),
		zap.String("operation", string(opType)),
	)
	return io, nil
}

// Transfer withdraws from one stash and deposits into another in a single
// transaction. The deposit is posted in the source currency and exchanged
// into the target currency when they differ.
func (s *Service) Transfer(ctx context.Context, req ledgerdomain.TransferRequest) (*ledgerdomain.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if req.FromStashID == req.ToStashID {
		return nil, ledgerdomain.ErrSameStash
	}

	var result ledgerdomain.TransferResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		first, second := req.FromStashID, req.ToStashID
		if second < first {
			first, second = second, first
		}
		locked := make(map[snowflake.ID]*ledgerdomain.Stash, 2)
		for _, id := range []snowflake.ID{first, second} {
			stash, err := s.lockStash(ctx, tx, id)
			if err != nil {
				return err
			}
			locked[id] = stash
		}

		outType, err := s.IOTypeByFunction(ctx, tx, ledgerdomain.FunctionTransferOut)
		if err != nil {
			return err
		}
		inType, err := s.IOTypeByFunction(ctx, tx, ledgerdomain.FunctionTransferIn)
		if err != nil {
			return err
		}

		from := locked[req.FromStashID]
		ts := s.clock.Now(ctx).UTC()
		data := map[string]any{
			"from_stash_id": req.FromStashID.String(),
			"to_stash_id":   req.ToStashID.String(),
		}

		withdrawal, err := s.PostTx(ctx, tx, ledgerdomain.PostRequest{
			StashID:     req.FromStashID,
			TypeID:      outType.ID,
			Difference:  req.Amount.Neg(),
			UserID:      req.UserID,
			EntityID:    &locked[req.ToStashID].EntityID,
			Description: req.Description,
			Data:        data,
			Timestamp:   ts,
		})
		if err != nil {
			return err
		}
		deposit, err := s.PostTx(ctx, tx, ledgerdomain.PostRequest{
			StashID:     req.ToStashID,
			TypeID:      inType.ID,
			Difference:  req.Amount,
			CurrencyID:  &from.CurrencyID,
			UserID:      req.UserID,
			EntityID:    &from.EntityID,
			Description: req.Description,
			Data:        data,
			Timestamp:   ts,
		})
		if err != nil {
			return err
		}
		result = ledgerdomain.TransferResult{Withdrawal: *withdrawal, Deposit: *deposit}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) ListIO(ctx context.Context, filter ledgerdomain.StashIOFilter) ([]ledgerdomain.StashIO, error) {
	return s.repo.ListIO(ctx, s.db, filter)
}

func (s *Service) ListOperations(ctx context.Context, filter ledgerdomain.OperationFilter) ([]ledgerdomain.StashOperation, error) {
	return s.repo.ListOperations(ctx, s.db, filter)
}

// Reconcile compares the stored balance with the sum of the stash ledger.
func (s *Service) Reconcile(ctx context.Context, stashID snowflake.ID) (*ledgerdomain.Reconciliation, error) {
	var rec *ledgerdomain.Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stash, err := s.lockStash(ctx, tx, stashID)
		if err != nil {
			return err
		}
		diffs, err := s.repo.ListIODifferences(ctx, tx, stashID)
		if err != nil {
			return err
		}
		sum := money.Zero()
		for _, d := range diffs {
			sum = sum.Add(d)
		}
		rec = &ledgerdomain.Reconciliation{
			StashID:   stashID,
			Balance:   stash.Amount,
			LedgerSum: sum,
			Entries:   len(diffs),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rec.Balanced() {
		s.log.Error("stash balance does not match ledger",
			zap.Stringer("stash_id", stashID),
			zap.Stringer("balance", rec.Balance),
			zap.Stringer("ledger_sum", rec.LedgerSum),
		)
	}
	return rec, nil
}

func postResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledgerdomain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledgerdomain.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ledgerdomain.ErrCurrencyMismatch):
		return "currency_mismatch"
	}
	return "error"
}
