package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	"github.com/smallbiznis/mealsub/internal/events"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	"github.com/smallbiznis/mealsub/internal/payment/adapters/sandbox"
	paymentdomain "github.com/smallbiznis/mealsub/internal/payment/domain"
	"github.com/smallbiznis/mealsub/internal/redislock"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"github.com/smallbiznis/mealsub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const userID snowflake.ID = 11

var today = testutil.Date(2025, time.March, 1)

func amount(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// stubProcessor settles every charge and lets tests hook into processing.
type stubProcessor struct {
	mu        sync.Mutex
	onProcess func()
	refunds   []string
}

func (p *stubProcessor) Name() string      { return "stub" }
func (p *stubProcessor) Methods() []string { return []string{"stub"} }

func (p *stubProcessor) Process(_ context.Context, req paymentdomain.ProcessRequest) (paymentdomain.ProcessResult, error) {
	if p.onProcess != nil {
		p.onProcess()
	}
	return paymentdomain.ProcessResult{Success: true, TransactionRef: "stub_" + req.PaymentID.String()}, nil
}

func (p *stubProcessor) Refund(_ context.Context, transactionRef string, _ decimal.Decimal) (paymentdomain.ProcessResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, transactionRef)
	return paymentdomain.ProcessResult{Success: true, TransactionRef: "stub_rf"}, nil
}

// cancellingProcessor drops the caller's context mid-call, like a client that
// disconnects while the processor is working.
type cancellingProcessor struct {
	stubProcessor
	cancelProcess context.CancelFunc
	cancelRefund  context.CancelFunc
}

func (p *cancellingProcessor) Process(ctx context.Context, req paymentdomain.ProcessRequest) (paymentdomain.ProcessResult, error) {
	if p.cancelProcess != nil {
		p.cancelProcess()
		<-ctx.Done()
		return paymentdomain.ProcessResult{}, ctx.Err()
	}
	return p.stubProcessor.Process(ctx, req)
}

func (p *cancellingProcessor) Refund(ctx context.Context, transactionRef string, value decimal.Decimal) (paymentdomain.ProcessResult, error) {
	if p.cancelRefund != nil {
		p.cancelRefund()
	}
	return p.stubProcessor.Refund(ctx, transactionRef, value)
}

type fixture struct {
	*testutil.Stack
	vendorID snowflake.ID
	menuID   snowflake.ID
}

func newFixture(t *testing.T, opts ...testutil.StackOption) fixture {
	t.Helper()
	if len(opts) == 0 {
		opts = []testutil.StackOption{testutil.WithProcessors(sandbox.New(sandbox.Options{}))}
	}
	stack := testutil.NewStack(t, today.Add(10*time.Hour), opts...)
	vendor := testutil.SeedVendor(t, stack.DB, stack.Node, 10)
	menu := testutil.SeedMenu(t, stack.DB, stack.Node, vendor.ID, menudomain.MealTypeDinner, "25.00")
	return fixture{Stack: stack, vendorID: vendor.ID, menuID: menu.ID}
}

func (f fixture) subscription(t *testing.T) subscriptiondomain.MealSubscription {
	t.Helper()
	sub, err := f.Subscriptions.Create(context.Background(), subscriptiondomain.CreateRequest{
		UserID:    userID,
		VendorID:  f.vendorID,
		MenuID:    f.menuID,
		StartDate: today,
		EndDate:   today.AddDate(0, 0, 30),
	})
	require.NoError(t, err)
	return sub
}

func (f fixture) status(t *testing.T, id snowflake.ID) subscriptiondomain.Status {
	t.Helper()
	sub, err := f.Subscriptions.FindOwned(context.Background(), userID, id)
	require.NoError(t, err)
	return sub.Status
}

func charge(subscriptionID snowflake.ID, method, value string) paymentdomain.ChargeRequest {
	return paymentdomain.ChargeRequest{
		UserID:         userID,
		SubscriptionID: subscriptionID,
		PaymentMethod:  method,
		Amount:         amount(value),
	}
}

func TestChargeActivatesSubscriptionAndRefundReducesNet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscription(t)

	paid, err := f.Payments.Charge(ctx, charge(sub.ID, "card", "25.00"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, "sbx_ch_"+paid.ID.String(), paid.Details().TransactionRef)
	assert.Equal(t, "IDR", paid.Details().Currency)
	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, sub.ID))
	assert.Equal(t, []events.Type{events.PaymentCompleted, events.SubscriptionActivated}, f.Emitter.Types())

	summary, err := f.Payments.Summarize(ctx, userID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", summary.TotalPaid.StringFixed(2))
	assert.Equal(t, "25.00", summary.NetAmount.StringFixed(2))
	assert.Equal(t, paymentdomain.StatusCompleted, summary.PaymentStatus)

	refund, err := f.Payments.Refund(ctx, paymentdomain.RefundRequest{
		UserID:         userID,
		SubscriptionID: sub.ID,
		Amount:         amount("10.00"),
	})
	require.NoError(t, err)
	assert.True(t, amount("-10.00").Equal(refund.Amount))
	assert.Equal(t, paymentdomain.StatusCompleted, refund.Status)
	assert.Equal(t, paid.ID.String(), refund.Details().OriginalPaymentID)
	assert.Equal(t, "requested_by_customer", refund.Details().RefundReason)

	summary, err = f.Payments.Summarize(ctx, userID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", summary.TotalPaid.StringFixed(2))
	assert.Equal(t, "10.00", summary.TotalRefunded.StringFixed(2))
	assert.Equal(t, "15.00", summary.NetAmount.StringFixed(2))
	assert.Equal(t, 2, summary.PaymentCount)

	_, err = f.Payments.Refund(ctx, paymentdomain.RefundRequest{UserID: userID, SubscriptionID: sub.ID, Amount: amount("15.01")})
	require.ErrorIs(t, err, paymentdomain.ErrRefundExceedsNet)

	// Refunds do not touch the subscription status.
	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, sub.ID))
}

func TestChargeValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscription(t)

	cases := []struct {
		name string
		req  paymentdomain.ChargeRequest
		want error
	}{
		{name: "zero amount", req: charge(sub.ID, "card", "0"), want: paymentdomain.ErrInvalidAmount},
		{name: "negative amount", req: charge(sub.ID, "card", "-25.00"), want: paymentdomain.ErrInvalidAmount},
		{name: "sub-cent amount", req: charge(sub.ID, "card", "25.001"), want: paymentdomain.ErrInvalidAmount},
		{name: "amount differs from price", req: charge(sub.ID, "card", "24.99"), want: paymentdomain.ErrAmountMismatch},
		{name: "missing method", req: charge(sub.ID, " ", "25.00"), want: paymentdomain.ErrInvalidMethod},
		{name: "unknown method", req: charge(sub.ID, "cash", "25.00"), want: paymentdomain.ErrUnsupportedMethod},
		{name: "bad currency", req: func() paymentdomain.ChargeRequest {
			r := charge(sub.ID, "card", "25.00")
			r.Currency = "rupiah"
			return r
		}(), want: paymentdomain.ErrInvalidCurrency},
		{name: "unknown subscription", req: charge(f.Node.Generate(), "card", "25.00"), want: subscriptiondomain.ErrSubscriptionNotFound},
		{name: "other user", req: func() paymentdomain.ChargeRequest {
			r := charge(sub.ID, "card", "25.00")
			r.UserID = userID + 1
			return r
		}(), want: subscriptiondomain.ErrSubscriptionNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Payments.Charge(ctx, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}

	ledger, err := f.Payments.ListPayments(ctx, userID, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, ledger)
	assert.Equal(t, subscriptiondomain.StatusPending, f.status(t, sub.ID))
}

func TestChargeMethodIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	sub := f.subscription(t)

	paid, err := f.Payments.Charge(context.Background(), charge(sub.ID, " Card ", "25.00"))
	require.NoError(t, err)
	assert.Equal(t, "card", paid.PaymentMethod)
}

func TestProcessorErrorLeavesSubscriptionPendingAndRetryAddsRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscription(t)

	failed, err := f.Payments.Charge(ctx, charge(sub.ID, sandbox.MethodError, "25.00"))
	require.ErrorIs(t, err, paymentdomain.ErrPaymentFailed)
	assert.Equal(t, paymentdomain.StatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Contains(t, *failed.FailureReason, "processor_error")
	assert.Equal(t, subscriptiondomain.StatusPending, f.status(t, sub.ID))

	summary, err := f.Payments.Summarize(ctx, userID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusFailed, summary.PaymentStatus)
	assert.True(t, summary.TotalPaid.IsZero())

	paid, err := f.Payments.Charge(ctx, charge(sub.ID, "ewallet", "25.00"))
	require.NoError(t, err)
	assert.NotEqual(t, failed.ID, paid.ID)

	ledger, err := f.Payments.ListPayments(ctx, userID, sub.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, failed.ID, ledger[0].ID)
	assert.Equal(t, paymentdomain.StatusFailed, ledger[0].Status)
	assert.Equal(t, paid.ID, ledger[1].ID)
	assert.Equal(t, paymentdomain.StatusCompleted, ledger[1].Status)
	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, sub.ID))

	_, err = f.Payments.Charge(ctx, charge(sub.ID, "card", "25.00"))
	require.ErrorIs(t, err, paymentdomain.ErrAlreadyPaid)
}

func TestDeclinedChargesFailSubscriptionAfterLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		testutil.WithProcessors(sandbox.New(sandbox.Options{})),
		testutil.WithMaxFailedAttempts(2),
	)
	sub := f.subscription(t)

	failed, err := f.Payments.Charge(ctx, charge(sub.ID, sandbox.MethodDecline, "25.00"))
	require.ErrorIs(t, err, paymentdomain.ErrPaymentFailed)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "card_declined", *failed.FailureReason)
	assert.Equal(t, subscriptiondomain.StatusPending, f.status(t, sub.ID))

	_, err = f.Payments.Charge(ctx, charge(sub.ID, sandbox.MethodDecline, "25.00"))
	require.ErrorIs(t, err, paymentdomain.ErrPaymentFailed)
	assert.Equal(t, subscriptiondomain.StatusFailed, f.status(t, sub.ID))

	_, err = f.Payments.Charge(ctx, charge(sub.ID, "card", "25.00"))
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestRefundRequiresSettledCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscription(t)

	_, err := f.Payments.Refund(ctx, paymentdomain.RefundRequest{UserID: userID, SubscriptionID: sub.ID, Amount: amount("5.00")})
	require.ErrorIs(t, err, paymentdomain.ErrNothingToRefund)

	_, err = f.Payments.Charge(ctx, charge(sub.ID, sandbox.MethodDecline, "25.00"))
	require.ErrorIs(t, err, paymentdomain.ErrPaymentFailed)

	_, err = f.Payments.Refund(ctx, paymentdomain.RefundRequest{UserID: userID, SubscriptionID: sub.ID, Amount: amount("5.00")})
	require.ErrorIs(t, err, paymentdomain.ErrNothingToRefund)

	_, err = f.Payments.Refund(ctx, paymentdomain.RefundRequest{UserID: userID, SubscriptionID: sub.ID, Amount: amount("0")})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
}

func TestCompletionFailureIsCompensated(t *testing.T) {
	ctx := context.Background()
	stub := &stubProcessor{}
	f := newFixture(t, testutil.WithProcessors(stub))
	sub := f.subscription(t)

	// The subscription leaves PENDING while the processor is settling the charge.
	stub.onProcess = func() {
		require.NoError(t, f.DB.Exec("UPDATE meal_subscriptions SET status = ? WHERE id = ?", subscriptiondomain.StatusFailed, sub.ID).Error)
	}

	_, err := f.Payments.Charge(ctx, charge(sub.ID, "stub", "25.00"))
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	ledger, err := f.Payments.ListPayments(ctx, userID, sub.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, paymentdomain.StatusFailed, ledger[0].Status)
	require.NotNil(t, ledger[0].FailureReason)
	assert.Contains(t, *ledger[0].FailureReason, "completion_failed")
	assert.Equal(t, "stub_"+ledger[0].ID.String(), ledger[0].Details().TransactionRef)

	require.Len(t, stub.refunds, 1)
	assert.Equal(t, "stub_"+ledger[0].ID.String(), stub.refunds[0])
	assert.Empty(t, f.Emitter.Events())
}

func TestConcurrentChargesSettleOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscription(t)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		unexpect  []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Payments.Charge(ctx, charge(sub.ID, "card", "25.00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, paymentdomain.ErrChargeInProgress), errors.Is(err, paymentdomain.ErrAlreadyPaid):
			default:
				unexpect = append(unexpect, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unexpect)
	assert.Equal(t, 1, successes)

	ledger, err := f.Payments.ListPayments(ctx, userID, sub.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, paymentdomain.StatusCompleted, ledger[0].Status)
	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, sub.ID))
}

func TestBundleIsChargedAsOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	second := testutil.SeedVendor(t, f.DB, f.Node, 10)
	secondMenu := testutil.SeedMenu(t, f.DB, f.Node, second.ID, menudomain.MealTypeDinner, "30.00")

	bundle, err := f.Bundles.CreateBundle(ctx, bundledomain.CreateBundleRequest{
		UserID: userID,
		Items: []bundledomain.BundleItem{
			{VendorID: f.vendorID, MenuID: f.menuID},
			{VendorID: second.ID, MenuID: secondMenu.ID},
		},
		MealType:  menudomain.MealTypeDinner,
		StartDate: today,
		EndDate:   testutil.Date(2025, time.March, 31),
		AddressID: 1,
	})
	require.NoError(t, err)

	_, err = f.Payments.Charge(ctx, charge(bundle.MemberSubscriptionIDs[0], "card", "25.00"))
	require.ErrorIs(t, err, paymentdomain.ErrBilledThroughBundle)

	paid, err := f.Payments.Charge(ctx, charge(bundle.ID, "card", "55.00"))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.KindMonthly, paid.SubscriptionKind)

	loaded, err := f.Bundles.FindOwned(ctx, userID, bundle.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, loaded.Status)
	require.NotNil(t, loaded.PaymentID)
	assert.Equal(t, paid.ID, *loaded.PaymentID)
	for _, id := range bundle.MemberSubscriptionIDs {
		assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, id))
	}

	assert.Equal(t, []events.Type{
		events.PaymentCompleted,
		events.SubscriptionActivated,
		events.SubscriptionActivated,
		events.SubscriptionActivated,
	}, f.Emitter.Types())

	summary, err := f.Payments.Summarize(ctx, userID, bundle.ID)
	require.NoError(t, err)
	assert.Equal(t, "55.00", summary.NetAmount.StringFixed(2))
}

func TestCancelledCallerStillRecordsFailedCharge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &cancellingProcessor{cancelProcess: cancel}
	f := newFixture(t, testutil.WithProcessors(sandbox.New(sandbox.Options{}), proc))
	sub := f.subscription(t)

	failed, err := f.Payments.Charge(ctx, charge(sub.ID, "stub", "25.00"))
	require.ErrorIs(t, err, paymentdomain.ErrPaymentFailed)
	assert.Equal(t, paymentdomain.StatusFailed, failed.Status)

	ledger, err := f.Payments.ListPayments(context.Background(), userID, sub.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, paymentdomain.StatusFailed, ledger[0].Status)

	// Nothing is left PENDING, so the retry goes through.
	_, err = f.Payments.Charge(context.Background(), charge(sub.ID, "card", "25.00"))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, sub.ID))
}

func TestCancelledCallerStillRecordsSettledRefund(t *testing.T) {
	proc := &cancellingProcessor{}
	f := newFixture(t, testutil.WithProcessors(proc))
	sub := f.subscription(t)

	_, err := f.Payments.Charge(context.Background(), charge(sub.ID, "stub", "25.00"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc.cancelRefund = cancel
	refund, err := f.Payments.Refund(ctx, paymentdomain.RefundRequest{UserID: userID, SubscriptionID: sub.ID, Amount: amount("5.00")})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, refund.Status)

	summary, err := f.Payments.Summarize(context.Background(), userID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", summary.NetAmount.StringFixed(2))
}

func TestStalePendingChargeStopsBlockingRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscription(t)

	now := f.Clock.Now()
	abandoned := paymentdomain.Payment{
		ID:               f.Node.Generate(),
		UserID:           userID,
		SubscriptionID:   sub.ID,
		SubscriptionKind: subscriptiondomain.KindSingle,
		Amount:           amount("25.00"),
		Status:           paymentdomain.StatusPending,
		PaymentMethod:    "card",
		PaymentDetails:   datatypes.NewJSONType(paymentdomain.Details{Currency: "IDR"}),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, f.PaymentRepo.Insert(ctx, f.DB, &abandoned))

	_, err := f.Payments.Charge(ctx, charge(sub.ID, "card", "25.00"))
	require.ErrorIs(t, err, paymentdomain.ErrChargeInProgress)

	f.Clock.Advance(16 * time.Minute)
	paid, err := f.Payments.Charge(ctx, charge(sub.ID, "card", "25.00"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, paid.Status)

	stale, err := f.PaymentRepo.FindByID(ctx, f.DB, abandoned.ID)
	require.NoError(t, err)
	require.NotNil(t, stale)
	assert.Equal(t, paymentdomain.StatusFailed, stale.Status)
	require.NotNil(t, stale.FailureReason)
	assert.Equal(t, "abandoned_pending", *stale.FailureReason)
	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, sub.ID))
}

func TestActivationRechecksVendorCapacity(t *testing.T) {
	ctx := context.Background()
	stub := &stubProcessor{}
	f := newFixture(t, testutil.WithProcessors(stub))
	full := testutil.SeedVendor(t, f.DB, f.Node, 1)
	menu := testutil.SeedMenu(t, f.DB, f.Node, full.ID, menudomain.MealTypeDinner, "25.00")

	create := func() subscriptiondomain.MealSubscription {
		sub, err := f.Subscriptions.Create(ctx, subscriptiondomain.CreateRequest{
			UserID:    userID,
			VendorID:  full.ID,
			MenuID:    menu.ID,
			StartDate: today,
			EndDate:   today.AddDate(0, 0, 30),
		})
		require.NoError(t, err)
		return sub
	}
	// Both fit while PENDING, since only ACTIVE rows hold a slot.
	first := create()
	second := create()

	_, err := f.Payments.Charge(ctx, charge(first.ID, "stub", "25.00"))
	require.NoError(t, err)

	_, err = f.Payments.Charge(ctx, charge(second.ID, "stub", "25.00"))
	require.ErrorIs(t, err, subscriptiondomain.ErrCapacityExceeded)

	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, first.ID))
	assert.Equal(t, subscriptiondomain.StatusPending, f.status(t, second.ID))

	ledger, err := f.Payments.ListPayments(ctx, userID, second.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, paymentdomain.StatusFailed, ledger[0].Status)
	require.NotNil(t, ledger[0].FailureReason)
	assert.Contains(t, *ledger[0].FailureReason, "completion_failed")
	require.Len(t, stub.refunds, 1)
	assert.Equal(t, "stub_"+ledger[0].ID.String(), stub.refunds[0])
}

func TestBundleActivationRechecksVendorCapacity(t *testing.T) {
	ctx := context.Background()
	stub := &stubProcessor{}
	f := newFixture(t, testutil.WithProcessors(stub))
	full := testutil.SeedVendor(t, f.DB, f.Node, 1)
	menu := testutil.SeedMenu(t, f.DB, f.Node, full.ID, menudomain.MealTypeDinner, "25.00")

	bundle, err := f.Bundles.CreateBundle(ctx, bundledomain.CreateBundleRequest{
		UserID:    userID,
		Items:     []bundledomain.BundleItem{{VendorID: full.ID, MenuID: menu.ID}},
		MealType:  menudomain.MealTypeDinner,
		StartDate: today,
		EndDate:   testutil.Date(2025, time.March, 31),
		AddressID: 1,
	})
	require.NoError(t, err)

	single, err := f.Subscriptions.Create(ctx, subscriptiondomain.CreateRequest{
		UserID:    userID,
		VendorID:  full.ID,
		MenuID:    menu.ID,
		StartDate: today,
		EndDate:   today.AddDate(0, 0, 30),
	})
	require.NoError(t, err)
	_, err = f.Payments.Charge(ctx, charge(single.ID, "stub", "25.00"))
	require.NoError(t, err)

	_, err = f.Payments.Charge(ctx, charge(bundle.ID, "stub", bundle.TotalPrice.StringFixed(2)))
	require.ErrorIs(t, err, subscriptiondomain.ErrCapacityExceeded)

	loaded, err := f.Bundles.FindOwned(ctx, userID, bundle.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusPending, loaded.Status)
	assert.Equal(t, subscriptiondomain.StatusPending, f.status(t, bundle.MemberSubscriptionIDs[0]))
	require.Len(t, stub.refunds, 1)
}

func TestChargeLockIsSharedThroughRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.NewLocker(client, "mealsub:")

	stub := &stubProcessor{}
	f := newFixture(t, testutil.WithProcessors(stub), testutil.WithLocker(locker))
	sub := f.subscription(t)
	key := "mealsub:charge:" + sub.ID.String()

	// Another instance is charging the same subscription.
	lease, ok, err := locker.Acquire(ctx, "charge:"+sub.ID.String(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.Payments.Charge(ctx, charge(sub.ID, "stub", "25.00"))
	require.ErrorIs(t, err, paymentdomain.ErrChargeInProgress)

	_, err = locker.Release(ctx, lease)
	require.NoError(t, err)

	var heldDuringCharge bool
	stub.onProcess = func() { heldDuringCharge = mr.Exists(key) }
	_, err = f.Payments.Charge(ctx, charge(sub.ID, "stub", "25.00"))
	require.NoError(t, err)
	assert.True(t, heldDuringCharge)
	assert.False(t, mr.Exists(key), "the lease is given back after the charge")
}
