package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func payment(amount string, status Status, paidAt *time.Time) Payment {
	p := Payment{
		SubscriptionID: 1,
		Amount:         decimal.RequireFromString(amount),
		Status:         status,
		PaidAt:         paidAt,
		PaymentDetails: datatypes.NewJSONType(Details{Currency: "IDR"}),
	}
	if p.IsRefund() {
		p.PaymentDetails = datatypes.NewJSONType(Details{Currency: "IDR", RefundReason: "requested_by_customer"})
	}
	return p
}

func at(day int) *time.Time {
	t := time.Date(2025, time.March, day, 10, 0, 0, 0, time.UTC)
	return &t
}

func TestSummarizeEmptyLedger(t *testing.T) {
	s := Summarize(nil)

	assert.True(t, s.TotalPaid.IsZero())
	assert.True(t, s.TotalRefunded.IsZero())
	assert.True(t, s.NetAmount.IsZero())
	assert.Zero(t, s.PaymentCount)
	assert.Nil(t, s.LastPaymentDate)
	assert.Equal(t, StatusPending, s.PaymentStatus)
}

func TestSummarizeChargeAndRefund(t *testing.T) {
	s := Summarize([]Payment{
		payment("25.00", StatusCompleted, at(1)),
		payment("-10.00", StatusCompleted, at(3)),
	})

	assert.Equal(t, "25.00", s.TotalPaid.StringFixed(2))
	assert.Equal(t, "10.00", s.TotalRefunded.StringFixed(2))
	assert.Equal(t, "15.00", s.NetAmount.StringFixed(2))
	assert.Equal(t, 2, s.PaymentCount)
	require.NotNil(t, s.LastPaymentDate)
	assert.Equal(t, *at(1), *s.LastPaymentDate, "refunds do not move the last payment date")
	assert.Equal(t, StatusCompleted, s.PaymentStatus)
}

func TestSummarizeStatusPriority(t *testing.T) {
	cases := []struct {
		name   string
		ledger []Payment
		want   Status
	}{
		{name: "pending only", ledger: []Payment{payment("25.00", StatusPending, nil)}, want: StatusPending},
		{name: "failed only", ledger: []Payment{payment("25.00", StatusFailed, nil)}, want: StatusFailed},
		{name: "failed then pending retry", ledger: []Payment{
			payment("25.00", StatusFailed, nil),
			payment("25.00", StatusPending, nil),
		}, want: StatusFailed},
		{name: "failed then completed", ledger: []Payment{
			payment("25.00", StatusFailed, nil),
			payment("25.00", StatusCompleted, at(2)),
		}, want: StatusCompleted},
		{name: "failed refund does not fail the ledger", ledger: []Payment{
			payment("-5.00", StatusFailed, nil),
		}, want: StatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Summarize(tc.ledger).PaymentStatus)
		})
	}
}

func TestSummarizeIgnoresOrder(t *testing.T) {
	ledger := []Payment{
		payment("25.00", StatusFailed, nil),
		payment("25.00", StatusCompleted, at(2)),
		payment("-7.50", StatusCompleted, at(4)),
		payment("30.00", StatusCompleted, at(9)),
		payment("-2.25", StatusFailed, nil),
		payment("30.00", StatusPending, nil),
	}
	want := Summarize(ledger)

	assert.Equal(t, "55.00", want.TotalPaid.StringFixed(2))
	assert.Equal(t, "7.50", want.TotalRefunded.StringFixed(2))
	assert.Equal(t, "47.50", want.NetAmount.StringFixed(2))

	permute(ledger, 0, func(p []Payment) {
		got := Summarize(p)
		assert.True(t, want.TotalPaid.Equal(got.TotalPaid))
		assert.True(t, want.TotalRefunded.Equal(got.TotalRefunded))
		assert.True(t, want.NetAmount.Equal(got.NetAmount))
		assert.Equal(t, want.PaymentCount, got.PaymentCount)
		assert.Equal(t, want.PaymentStatus, got.PaymentStatus)
		require.NotNil(t, got.LastPaymentDate)
		assert.Equal(t, *want.LastPaymentDate, *got.LastPaymentDate)
	})
}

// permute calls fn with every ordering of items.
func permute(items []Payment, k int, fn func([]Payment)) {
	if k == len(items) {
		fn(items)
		return
	}
	for i := k; i < len(items); i++ {
		items[k], items[i] = items[i], items[k]
		permute(items, k+1, fn)
		items[k], items[i] = items[i], items[k]
	}
}

func TestParseDetails(t *testing.T) {
	details, err := ParseDetails([]byte(`{"transactionRef":"sbx_ch_1","currency":"idr"}`))
	require.NoError(t, err)
	assert.Equal(t, "sbx_ch_1", details.TransactionRef)
	assert.Equal(t, "IDR", details.Currency)

	_, err = ParseDetails([]byte(`{"cardNumber":"4111111111111111"}`))
	require.ErrorIs(t, err, ErrInvalidPaymentDetails)

	_, err = ParseDetails([]byte(`not json`))
	require.ErrorIs(t, err, ErrInvalidPaymentDetails)
}
