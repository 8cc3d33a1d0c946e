package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/internal/clock"
	"github.com/netprofile/netbill/internal/config"
	futuredomain "github.com/netprofile/netbill/internal/futurepayment/domain"
	"github.com/netprofile/netbill/internal/futurepayment/repository"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	ledgerrepository "github.com/netprofile/netbill/internal/ledger/repository"
	ledgerservice "github.com/netprofile/netbill/internal/ledger/service"
	"github.com/netprofile/netbill/internal/migration"
	"github.com/netprofile/netbill/internal/testutil"
	"github.com/netprofile/netbill/pkg/money"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	db      *gorm.DB
	node    *snowflake.Node
	ledger  ledgerdomain.Service
	futures *Service
	usd     *ledgerdomain.Currency
}

type stashLockFailure struct {
	ledgerdomain.Repository
	stashID snowflake.ID
}

func (r *stashLockFailure) LockStash(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.Stash, error) {
	if id == r.stashID {
		return nil, errors.New("lock timeout")
	}
	return r.Repository.LockStash(ctx, db, id)
}

func newEnv(t *testing.T, ledgerRepo ledgerdomain.Repository) *env {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	cfg := config.Config{
		Ledger: config.LedgerConfig{
			OperatorCreditType: "Operator deposit",
			OperatorDebitType:  "Operator withdrawal",
			BaseCurrency:       "USD",
		},
		Futures: config.FuturesConfig{Expiry: 72 * time.Hour},
	}
	require.NoError(t, migration.SeedSystem(context.Background(), db, node, cfg.Ledger))

	if ledgerRepo == nil {
		ledgerRepo = ledgerrepository.Provide()
	}
	fut, err := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		LedgerRepo: ledgerRepo,
		Clock:      clock.FixedClock{At: t0},
		Config:     cfg,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	ledger := ledgerservice.New(ledgerservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   ledgerrepository.Provide(),
		Clock:  clock.FixedClock{At: t0},
		Config: cfg,
		Hooks:  []ledgerdomain.PostHook{fut},
	})

	usd, err := ledgerrepository.Provide().FindCurrencyByCode(context.Background(), db, "USD")
	require.NoError(t, err)

	return &env{db: db, node: node, ledger: ledger, futures: fut.(*Service), usd: usd}
}

func (e *env) stash(t *testing.T, currencyID snowflake.ID) *ledgerdomain.Stash {
	t.Helper()
	stash, err := e.ledger.CreateStash(context.Background(), ledgerdomain.CreateStashRequest{
		EntityID:   e.node.Generate(),
		CurrencyID: currencyID,
		Name:       "main",
	})
	require.NoError(t, err)
	return stash
}

func (e *env) promise(t *testing.T, stashID snowflake.ID, amount string) *futuredomain.FuturePayment {
	t.Helper()
	future, err := e.futures.Create(context.Background(), futuredomain.CreateRequest{
		StashID: stashID,
		Amount:  money.MustParse(amount),
		Origin:  futuredomain.OriginUser,
	})
	require.NoError(t, err)
	return future
}

func (e *env) state(t *testing.T, id snowflake.ID) futuredomain.State {
	t.Helper()
	future, err := e.futures.Get(context.Background(), id)
	require.NoError(t, err)
	return future.State
}

func TestFulfillmentIsWholeRecordFIFO(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	stash := e.stash(t, e.usd.ID)

	ten := e.promise(t, stash.ID, "10")
	twenty := e.promise(t, stash.ID, "20")
	thirty := e.promise(t, stash.ID, "30")

	got, err := e.ledger.GetStash(ctx, stash.ID)
	require.NoError(t, err)
	assert.Equal(t, "60.00000000", got.FuturesCredit.String())
	assert.True(t, got.Credit.IsZero())

	operator := e.node.Generate()
	io, err := e.ledger.Credit(ctx, ledgerdomain.AdjustmentRequest{StashID: stash.ID, Amount: money.MustParse("25"), OperatorID: &operator})
	require.NoError(t, err)

	assert.Equal(t, futuredomain.StatePaid, e.state(t, ten.ID))
	assert.Equal(t, futuredomain.StatePaid, e.state(t, twenty.ID))
	assert.Equal(t, futuredomain.StateActive, e.state(t, thirty.ID))

	paid, err := e.futures.Get(ctx, ten.ID)
	require.NoError(t, err)
	require.NotNil(t, paid.PaymentTime)
	assert.True(t, paid.PaymentTime.Equal(t0))
	require.NotNil(t, paid.PaidBy)
	assert.Equal(t, operator, *paid.PaidBy)

	events, err := e.futures.ListEvents(ctx, twenty.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, futuredomain.ReasonCreated, events[0].Reason)
	assert.Equal(t, futuredomain.StatePaid, events[1].ToState)
	require.NotNil(t, events[1].IOID)
	assert.Equal(t, io.ID, *events[1].IOID)

	got, err = e.ledger.GetStash(ctx, stash.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00000000", got.FuturesCredit.String())
	assert.Equal(t, "25.00000000", got.Amount.String())
	assert.Equal(t, float64(2), promtestutil.ToFloat64(e.futures.transitions.WithLabelValues(futuredomain.ReasonFulfilled)))
}

func TestNonFulfillingDepositLeavesFuturesActive(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	stash := e.stash(t, e.usd.ID)
	future := e.promise(t, stash.ID, "10")

	rollback, err := e.ledger.IOTypeByFunction(ctx, nil, ledgerdomain.FunctionRateRollback)
	require.NoError(t, err)
	_, err = e.ledger.Post(ctx, ledgerdomain.PostRequest{StashID: stash.ID, TypeID: rollback.ID, Difference: money.MustParse("50")})
	require.NoError(t, err)

	assert.Equal(t, futuredomain.StateActive, e.state(t, future.ID))
}

func TestPromiseExtendsSpendableCredit(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	stash := e.stash(t, e.usd.ID)
	fee, err := e.ledger.IOTypeByFunction(ctx, nil, ledgerdomain.FunctionRateQuotaPrepaid)
	require.NoError(t, err)

	_, err = e.ledger.Post(ctx, ledgerdomain.PostRequest{StashID: stash.ID, TypeID: fee.ID, Difference: money.MustParse("-10")})
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientFunds)

	e.promise(t, stash.ID, "10")
	_, err = e.ledger.Post(ctx, ledgerdomain.PostRequest{StashID: stash.ID, TypeID: fee.ID, Difference: money.MustParse("-10")})
	require.NoError(t, err)
}

func TestOperatorCreditSurvivesFutureConfirmation(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	stash := e.stash(t, e.usd.ID)

	future := e.promise(t, stash.ID, "20")
	_, err := e.ledger.SetCredit(ctx, stash.ID, money.MustParse("50"))
	require.NoError(t, err)

	got, err := e.ledger.GetStash(ctx, stash.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00000000", got.Credit.String())
	assert.Equal(t, "20.00000000", got.FuturesCredit.String())
	assert.Equal(t, "70.00000000", got.Available().String())

	confirm, err := e.ledger.IOTypeByFunction(ctx, nil, ledgerdomain.FunctionFutureConfirm)
	require.NoError(t, err)
	_, err = e.ledger.Post(ctx, ledgerdomain.PostRequest{StashID: stash.ID, TypeID: confirm.ID, Difference: money.MustParse("20")})
	require.NoError(t, err)
	assert.Equal(t, futuredomain.StatePaid, e.state(t, future.ID))

	got, err = e.ledger.GetStash(ctx, stash.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00000000", got.Credit.String(), "operator credit is untouched")
	assert.True(t, got.FuturesCredit.IsZero())
	assert.Equal(t, "70.00000000", got.Available().String())
}

func TestCreateValidatesCurrencyAndAmount(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	points := &ledgerdomain.Currency{Name: "Points", Code: "PTS", ExchangeRate: money.NewFactor(decimal.NewFromInt(1))}
	require.NoError(t, e.ledger.CreateCurrency(ctx, points))
	stash := e.stash(t, points.ID)

	_, err := e.futures.Create(ctx, futuredomain.CreateRequest{StashID: stash.ID, Amount: money.MustParse("5")})
	assert.ErrorIs(t, err, futuredomain.ErrFuturesNotAllowed)

	usdStash := e.stash(t, e.usd.ID)
	_, err = e.futures.Create(ctx, futuredomain.CreateRequest{StashID: usdStash.ID, Amount: money.Zero()})
	assert.ErrorIs(t, err, futuredomain.ErrInvalidAmount)

	_, err = e.futures.Create(ctx, futuredomain.CreateRequest{StashID: usdStash.ID, Amount: money.MustParse("1"), Origin: "bank"})
	assert.ErrorIs(t, err, futuredomain.ErrInvalidOrigin)

	future, err := e.futures.Create(ctx, futuredomain.CreateRequest{StashID: usdStash.ID, Amount: money.MustParse("1")})
	require.NoError(t, err)
	assert.Equal(t, futuredomain.OriginOperator, future.Origin)
	require.NotNil(t, future.EntityID)
	assert.Equal(t, usdStash.EntityID, *future.EntityID)
}

func TestCancelReleasesCredit(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	stash := e.stash(t, e.usd.ID)
	future := e.promise(t, stash.ID, "10")
	operator := e.node.Generate()

	cancelled, err := e.futures.Cancel(ctx, futuredomain.CancelRequest{ID: future.ID, OperatorID: &operator, Reason: "customer request"})
	require.NoError(t, err)
	assert.Equal(t, futuredomain.StateCancelled, cancelled.State)
	assert.Equal(t, operator, *cancelled.ModifiedBy)

	got, err := e.ledger.GetStash(ctx, stash.ID)
	require.NoError(t, err)
	assert.True(t, got.FuturesCredit.IsZero())

	_, err = e.futures.Cancel(ctx, futuredomain.CancelRequest{ID: future.ID})
	assert.ErrorIs(t, err, futuredomain.ErrNotActive)

	_, err = e.futures.Cancel(ctx, futuredomain.CancelRequest{ID: e.node.Generate()})
	assert.ErrorIs(t, err, futuredomain.ErrFutureNotFound)

	events, err := e.futures.ListEvents(ctx, future.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "cancelled: customer request", events[1].Reason)
	require.NotNil(t, events[1].FromState)
	assert.Equal(t, futuredomain.StateActive, *events[1].FromState)

	cancelledState := futuredomain.StateCancelled
	list, err := e.futures.ListByStash(ctx, stash.ID, &cancelledState)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPollExpiredCancelsOnlyOldFutures(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	stash := e.stash(t, e.usd.ID)

	old := e.promise(t, stash.ID, "10")
	e.futures.clock = clock.FixedClock{At: t0.Add(48 * time.Hour)}
	recent := e.promise(t, stash.ID, "20")

	res, err := e.futures.PollExpired(ctx, t0.Add(73*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, futuredomain.PollResult{Scanned: 1, Cancelled: 1}, res)

	assert.Equal(t, futuredomain.StateCancelled, e.state(t, old.ID))
	assert.Equal(t, futuredomain.StateActive, e.state(t, recent.ID))

	events, err := e.futures.ListEvents(ctx, old.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, futuredomain.ReasonExpired, events[1].Reason)

	got, err := e.ledger.GetStash(ctx, stash.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00000000", got.FuturesCredit.String())
}

func TestPollExpiredContinuesAfterFailure(t *testing.T) {
	failing := &stashLockFailure{Repository: ledgerrepository.Provide()}
	e := newEnv(t, failing)
	ctx := context.Background()

	broken := e.stash(t, e.usd.ID)
	healthy := e.stash(t, e.usd.ID)
	first := e.promise(t, broken.ID, "5")
	second := e.promise(t, healthy.ID, "5")
	failing.stashID = broken.ID

	res, err := e.futures.PollExpired(ctx, t0.Add(100*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, futuredomain.PollResult{Scanned: 2, Cancelled: 1, Failed: 1}, res)
	assert.Equal(t, futuredomain.StateActive, e.state(t, first.ID))
	assert.Equal(t, futuredomain.StateCancelled, e.state(t, second.ID))
}
