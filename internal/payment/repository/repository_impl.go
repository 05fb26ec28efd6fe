package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mealsub/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, user_id, subscription_id, subscription_kind, amount, status,
	payment_method, payment_details, failure_reason, created_at, paid_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.UserID,
		payment.SubscriptionID,
		payment.SubscriptionKind,
		payment.Amount,
		payment.Status,
		payment.PaymentMethod,
		payment.PaymentDetails,
		payment.FailureReason,
		payment.CreatedAt,
		payment.PaidAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE subscription_id = ?
		 ORDER BY created_at ASC, id ASC`,
		subscriptionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, cmd domain.TransitionCmd) (bool, error) {
	var paidAt any
	if cmd.To == domain.StatusCompleted {
		paidAt = cmd.At
	}
	var failureReason any
	if cmd.FailureReason != "" {
		failureReason = cmd.FailureReason
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, payment_details = ?, failure_reason = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		cmd.To,
		datatypes.NewJSONType(cmd.Details),
		failureReason,
		paidAt,
		cmd.At,
		cmd.ID,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) CountCharges(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, status domain.Status) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payments
		 WHERE subscription_id = ? AND status = ? AND amount > 0`,
		subscriptionID,
		status,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) FailStaleCharges(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, cutoff, at time.Time, reason string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE subscription_id = ? AND status = ? AND amount > 0 AND created_at < ?`,
		domain.StatusFailed,
		reason,
		at,
		subscriptionID,
		domain.StatusPending,
		cutoff,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
