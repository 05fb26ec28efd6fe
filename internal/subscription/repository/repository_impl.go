package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, user_id, vendor_id, menu_id, meal_type, price, status, start_date, end_date,
	monthly_subscription_id, activated_at, cancelled_at, expired_at, failed_at, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.MealSubscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO meal_subscriptions (
			id, user_id, vendor_id, menu_id, meal_type, price, status, start_date, end_date,
			monthly_subscription_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.UserID,
		subscription.VendorID,
		subscription.MenuID,
		subscription.MealType,
		subscription.Price,
		subscription.Status,
		subscription.StartDate,
		subscription.EndDate,
		subscription.MonthlySubscriptionID,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.MealSubscription, error) {
	var subscription subscriptiondomain.MealSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM meal_subscriptions WHERE id = ?`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindOwned(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*subscriptiondomain.MealSubscription, error) {
	var subscription subscriptiondomain.MealSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM meal_subscriptions WHERE user_id = ? AND id = ?`,
		userID,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]subscriptiondomain.MealSubscription, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var subscriptions []subscriptiondomain.MealSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM meal_subscriptions WHERE id IN ? ORDER BY id ASC`,
		ids,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, cmd subscriptiondomain.TransitionCmd) (bool, error) {
	set := []string{"status = ?", "updated_at = ?"}
	args := []any{cmd.To, cmd.At}
	if column := subscriptiondomain.TimestampColumn(cmd.To); column != "" {
		set = append(set, column+" = ?")
		args = append(args, cmd.At)
	}

	where := []string{"id = ?", "status = ?"}
	args = append(args, cmd.ID, cmd.From)
	if cmd.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, cmd.UserID)
	}
	if cmd.NotEndedBefore != nil {
		where = append(where, "end_date >= ?")
		args = append(args, *cmd.NotEndedBefore)
	}
	if cmd.EndedBefore != nil {
		where = append(where, "end_date < ?")
		args = append(args, *cmd.EndedBefore)
	}

	result := db.WithContext(ctx).Exec(
		`UPDATE meal_subscriptions SET `+strings.Join(set, ", ")+` WHERE `+strings.Join(where, " AND "),
		args...,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) AttachToBundle(ctx context.Context, db *gorm.DB, ids []snowflake.ID, bundleID snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE meal_subscriptions SET monthly_subscription_id = ?, updated_at = ?
		 WHERE id IN ? AND monthly_subscription_id IS NULL`,
		bundleID,
		at,
		ids,
	).Error
}

func (r *repo) ListExpirable(ctx context.Context, db *gorm.DB, today time.Time, afterID snowflake.ID, limit int) ([]subscriptiondomain.MealSubscription, error) {
	var subscriptions []subscriptiondomain.MealSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM meal_subscriptions
		 WHERE status = ? AND end_date < ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		subscriptiondomain.StatusActive,
		today,
		afterID,
		limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
