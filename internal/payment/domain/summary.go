package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary aggregates the payment ledger of one subscription or bundle.
type Summary struct {
	TotalPaid       decimal.Decimal `json:"total_paid"`
	TotalRefunded   decimal.Decimal `json:"total_refunded"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	PaymentCount    int             `json:"payment_count"`
	LastPaymentDate *time.Time      `json:"last_payment_date,omitempty"`
	PaymentStatus   Status          `json:"payment_status"`
}

// Summarize folds a ledger into a Summary. The result does not depend on the
// order of payments.
func Summarize(payments []Payment) Summary {
	summary := Summary{
		TotalPaid:     decimal.Zero,
		TotalRefunded: decimal.Zero,
		PaymentStatus: StatusPending,
	}

	var completedCharge, failed bool
	for _, p := range payments {
		summary.PaymentCount++
		switch p.Status {
		case StatusCompleted:
			if p.IsRefund() {
				summary.TotalRefunded = summary.TotalRefunded.Add(p.Amount.Abs())
				continue
			}
			summary.TotalPaid = summary.TotalPaid.Add(p.Amount)
			if p.Amount.IsPositive() {
				completedCharge = true
			}
			if p.PaidAt != nil && (summary.LastPaymentDate == nil || p.PaidAt.After(*summary.LastPaymentDate)) {
				paidAt := *p.PaidAt
				summary.LastPaymentDate = &paidAt
			}
		case StatusFailed:
			if !p.IsRefund() {
				failed = true
			}
		}
	}

	summary.NetAmount = summary.TotalPaid.Sub(summary.TotalRefunded)
	switch {
	case completedCharge:
		summary.PaymentStatus = StatusCompleted
	case failed:
		summary.PaymentStatus = StatusFailed
	}
	return summary
}
