package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/mealsub/internal/events"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"github.com/smallbiznis/mealsub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID snowflake.ID = 42

var today = testutil.Date(2025, time.March, 1)

type fixture struct {
	*testutil.Stack
	vendorID snowflake.ID
	menuID   snowflake.ID
}

func newFixture(t *testing.T, capacity int) fixture {
	t.Helper()
	stack := testutil.NewStack(t, today.Add(9*time.Hour))
	vendor := testutil.SeedVendor(t, stack.DB, stack.Node, capacity)
	menu := testutil.SeedMenu(t, stack.DB, stack.Node, vendor.ID, menudomain.MealTypeLunch, "25.00")
	return fixture{Stack: stack, vendorID: vendor.ID, menuID: menu.ID}
}

func (f fixture) request(start, end time.Time) subscriptiondomain.CreateRequest {
	return subscriptiondomain.CreateRequest{
		UserID:    userID,
		VendorID:  f.vendorID,
		MenuID:    f.menuID,
		StartDate: start,
		EndDate:   end,
	}
}

func (f fixture) create(t *testing.T, start, end time.Time) subscriptiondomain.MealSubscription {
	t.Helper()
	sub, err := f.Subscriptions.Create(context.Background(), f.request(start, end))
	require.NoError(t, err)
	return sub
}

func (f fixture) active(t *testing.T, start, end time.Time) subscriptiondomain.MealSubscription {
	t.Helper()
	sub := f.create(t, start, end)
	activated, err := f.Subscriptions.Activate(context.Background(), sub.ID)
	require.NoError(t, err)
	return activated
}

func TestCreateLocksMenuPriceAndStartsPending(t *testing.T) {
	f := newFixture(t, 10)
	sub := f.create(t, today, today.AddDate(0, 0, 30))

	assert.Equal(t, subscriptiondomain.StatusPending, sub.Status)
	assert.True(t, decimal.RequireFromString("25.00").Equal(sub.Price))
	assert.Equal(t, menudomain.MealTypeLunch, sub.MealType)

	require.NoError(t, f.DB.Exec("UPDATE menus SET price = ? WHERE id = ?", "40.00", f.menuID).Error)
	stored, err := f.Subscriptions.FindOwned(context.Background(), userID, sub.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25.00").Equal(stored.Price), "price stays locked after a menu change")
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t, 10)
	other := testutil.SeedVendor(t, f.DB, f.Node, 10)

	cases := []struct {
		name string
		req  subscriptiondomain.CreateRequest
		want error
	}{
		{name: "missing user", req: func() subscriptiondomain.CreateRequest {
			r := f.request(today, today.AddDate(0, 0, 7))
			r.UserID = 0
			return r
		}(), want: subscriptiondomain.ErrInvalidUser},
		{name: "start equals end", req: f.request(today, today), want: subscriptiondomain.ErrInvalidPeriod},
		{name: "start after end", req: f.request(today.AddDate(0, 0, 7), today), want: subscriptiondomain.ErrInvalidPeriod},
		{name: "already ended", req: f.request(today.AddDate(0, 0, -10), today.AddDate(0, 0, -1)), want: subscriptiondomain.ErrInvalidPeriod},
		{name: "menu of another vendor", req: func() subscriptiondomain.CreateRequest {
			r := f.request(today, today.AddDate(0, 0, 7))
			r.VendorID = other.ID
			return r
		}(), want: subscriptiondomain.ErrInvalidReference},
		{name: "unknown menu", req: func() subscriptiondomain.CreateRequest {
			r := f.request(today, today.AddDate(0, 0, 7))
			r.MenuID = f.Node.Generate()
			return r
		}(), want: subscriptiondomain.ErrInvalidReference},
		{name: "meal type mismatch", req: func() subscriptiondomain.CreateRequest {
			r := f.request(today, today.AddDate(0, 0, 7))
			r.MealType = menudomain.MealTypeDinner
			return r
		}(), want: subscriptiondomain.ErrMealTypeMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Subscriptions.Create(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.DB.Model(&subscriptiondomain.MealSubscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateEnforcesVendorCapacity(t *testing.T) {
	f := newFixture(t, 1)
	f.active(t, today, testutil.Date(2025, time.March, 31))

	_, err := f.Subscriptions.Create(context.Background(), f.request(testutil.Date(2025, time.March, 15), testutil.Date(2025, time.April, 14)))
	require.ErrorIs(t, err, subscriptiondomain.ErrCapacityExceeded)

	// Touching the last day counts as overlap.
	_, err = f.Subscriptions.Create(context.Background(), f.request(testutil.Date(2025, time.March, 31), testutil.Date(2025, time.April, 30)))
	require.ErrorIs(t, err, subscriptiondomain.ErrCapacityExceeded)

	_, err = f.Subscriptions.Create(context.Background(), f.request(testutil.Date(2025, time.April, 1), testutil.Date(2025, time.April, 30)))
	require.NoError(t, err)
}

func TestPendingSubscriptionsDoNotConsumeCapacity(t *testing.T) {
	f := newFixture(t, 1)
	f.create(t, today, today.AddDate(0, 0, 30))
	f.create(t, today, today.AddDate(0, 0, 30))
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	sub := f.create(t, today, today.AddDate(0, 0, 30))
	activated, err := f.Subscriptions.Activate(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, activated.Status)
	require.NotNil(t, activated.ActivatedAt)

	_, err = f.Subscriptions.Activate(ctx, sub.ID)
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
	require.ErrorIs(t, f.Subscriptions.Fail(ctx, sub.ID), subscriptiondomain.ErrInvalidTransition)

	cancelled, err := f.Subscriptions.Cancel(ctx, userID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	assert.Equal(t, []events.Type{events.SubscriptionActivated, events.SubscriptionCancelled}, f.Emitter.Types())
}

func TestTerminalStatesRejectEveryTransition(t *testing.T) {
	ctx := context.Background()
	for _, status := range []subscriptiondomain.Status{
		subscriptiondomain.StatusExpired,
		subscriptiondomain.StatusCancelled,
		subscriptiondomain.StatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, 10)
			sub := f.create(t, today, today.AddDate(0, 0, 30))
			f.ForceStatus(t, "meal_subscriptions", sub.ID, status)

			_, err := f.Subscriptions.Activate(ctx, sub.ID)
			assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
			_, err = f.Subscriptions.Cancel(ctx, userID, sub.ID)
			assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
			assert.ErrorIs(t, f.Subscriptions.Expire(ctx, sub.ID, today.AddDate(0, 2, 0)), subscriptiondomain.ErrInvalidTransition)
			assert.ErrorIs(t, f.Subscriptions.Fail(ctx, sub.ID), subscriptiondomain.ErrInvalidTransition)

			stored, err := f.Subscriptions.FindOwned(ctx, userID, sub.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status)
		})
	}
}

func TestCancelPendingIsInvalidTransition(t *testing.T) {
	f := newFixture(t, 10)
	sub := f.create(t, today, today.AddDate(0, 0, 30))

	_, err := f.Subscriptions.Cancel(context.Background(), userID, sub.ID)
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestCancelAfterEndDateIsAlreadyExpired(t *testing.T) {
	for _, status := range []subscriptiondomain.Status{
		subscriptiondomain.StatusActive,
		subscriptiondomain.StatusPending,
		subscriptiondomain.StatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, 10)
			sub := f.create(t, today, today.AddDate(0, 0, 7))
			f.ForceStatus(t, "meal_subscriptions", sub.ID, status)
			f.Clock.AdvanceDays(8)

			_, err := f.Subscriptions.Cancel(context.Background(), userID, sub.ID)
			require.ErrorIs(t, err, subscriptiondomain.ErrAlreadyExpired)
		})
	}
}

func TestCancelOnLastDayIsAllowed(t *testing.T) {
	f := newFixture(t, 10)
	sub := f.active(t, today, today.AddDate(0, 0, 7))
	f.Clock.AdvanceDays(7)

	cancelled, err := f.Subscriptions.Cancel(context.Background(), userID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCancelled, cancelled.Status)
}

func TestForeignSubscriptionLooksMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	sub := f.active(t, today, today.AddDate(0, 0, 7))

	_, err := f.Subscriptions.FindOwned(ctx, userID+1, sub.ID)
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	_, err = f.Subscriptions.Cancel(ctx, userID+1, sub.ID)
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	stored, err := f.Subscriptions.FindOwned(ctx, userID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, stored.Status)
}

func TestExpireAndCancelRaceHasOneWinner(t *testing.T) {
	ctx := context.Background()

	t.Run("expire first", func(t *testing.T) {
		f := newFixture(t, 10)
		sub := f.active(t, today, today.AddDate(0, 0, 7))

		require.NoError(t, f.Subscriptions.Expire(ctx, sub.ID, today.AddDate(0, 0, 8)))
		_, err := f.Subscriptions.Cancel(ctx, userID, sub.ID)
		require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
	})

	t.Run("cancel first", func(t *testing.T) {
		f := newFixture(t, 10)
		sub := f.active(t, today, today.AddDate(0, 0, 7))

		_, err := f.Subscriptions.Cancel(ctx, userID, sub.ID)
		require.NoError(t, err)
		require.ErrorIs(t, f.Subscriptions.Expire(ctx, sub.ID, today.AddDate(0, 0, 8)), subscriptiondomain.ErrInvalidTransition)
	})
}

func TestExpireRequiresEndDateInThePast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	sub := f.active(t, today, today.AddDate(0, 0, 7))

	require.ErrorIs(t, f.Subscriptions.Expire(ctx, sub.ID, today.AddDate(0, 0, 7)), subscriptiondomain.ErrInvalidTransition)
	require.NoError(t, f.Subscriptions.Expire(ctx, sub.ID, today.AddDate(0, 0, 8)))

	stored, err := f.Subscriptions.FindOwned(ctx, userID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusExpired, stored.Status)
	require.NotNil(t, stored.ExpiredAt)
}

func TestListExpirableSelectsEndedActiveRowsInIDOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	first := f.active(t, today, today.AddDate(0, 0, 3))
	second := f.active(t, today, today.AddDate(0, 0, 4))
	f.active(t, today, today.AddDate(0, 0, 30))
	f.create(t, today, today.AddDate(0, 0, 3))

	sweepDay := today.AddDate(0, 0, 10)
	items, err := f.Subscriptions.ListExpirable(ctx, sweepDay, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)

	items, err = f.Subscriptions.ListExpirable(ctx, sweepDay, first.ID, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, second.ID, items[0].ID)
}

func TestListOwnedPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	var created []snowflake.ID
	for i := 0; i < 3; i++ {
		created = append(created, f.create(t, today, today.AddDate(0, 0, 30)).ID)
		f.Clock.Advance(time.Minute)
	}

	page, err := f.Subscriptions.ListOwned(ctx, subscriptiondomain.ListRequest{UserID: userID, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Subscriptions, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, created[2], page.Subscriptions[0].ID)
	assert.Equal(t, created[1], page.Subscriptions[1].ID)

	next, err := f.Subscriptions.ListOwned(ctx, subscriptiondomain.ListRequest{UserID: userID, PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Subscriptions, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, created[0], next.Subscriptions[0].ID)

	other, err := f.Subscriptions.ListOwned(ctx, subscriptiondomain.ListRequest{UserID: userID + 1})
	require.NoError(t, err)
	assert.Empty(t, other.Subscriptions)

	_, err = f.Subscriptions.ListOwned(ctx, subscriptiondomain.ListRequest{UserID: userID, Status: "bogus"})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidStatus)
}
