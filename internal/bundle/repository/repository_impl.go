package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"gorm.io/gorm"
)

const bundleColumns = `id, user_id, meal_type, total_price, start_date, end_date, status, address_id,
	payment_id, activated_at, cancelled_at, expired_at, failed_at, created_at, updated_at`

type repo struct{}

func Provide() bundledomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, bundle *bundledomain.MonthlySubscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO monthly_subscriptions (
			id, user_id, meal_type, total_price, start_date, end_date, status, address_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bundle.ID,
		bundle.UserID,
		bundle.MealType,
		bundle.TotalPrice,
		bundle.StartDate,
		bundle.EndDate,
		bundle.Status,
		bundle.AddressID,
		bundle.CreatedAt,
		bundle.UpdatedAt,
	).Error
}

func (r *repo) InsertMembers(ctx context.Context, db *gorm.DB, members []bundledomain.Member) error {
	for _, member := range members {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO monthly_subscription_members (
				monthly_subscription_id, position, vendor_id, subscription_id
			) VALUES (?, ?, ?, ?)`,
			member.MonthlySubscriptionID,
			member.Position,
			member.VendorID,
			member.SubscriptionID,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*bundledomain.MonthlySubscription, error) {
	var bundle bundledomain.MonthlySubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+bundleColumns+` FROM monthly_subscriptions WHERE id = ?`,
		id,
	).Scan(&bundle).Error
	if err != nil {
		return nil, err
	}
	if bundle.ID == 0 {
		return nil, nil
	}
	return &bundle, nil
}

func (r *repo) FindOwned(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*bundledomain.MonthlySubscription, error) {
	var bundle bundledomain.MonthlySubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+bundleColumns+` FROM monthly_subscriptions WHERE user_id = ? AND id = ?`,
		userID,
		id,
	).Scan(&bundle).Error
	if err != nil {
		return nil, err
	}
	if bundle.ID == 0 {
		return nil, nil
	}
	return &bundle, nil
}

func (r *repo) ListMembers(ctx context.Context, db *gorm.DB, bundleID snowflake.ID) ([]bundledomain.Member, error) {
	var members []bundledomain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT monthly_subscription_id, position, vendor_id, subscription_id
		 FROM monthly_subscription_members
		 WHERE monthly_subscription_id = ?
		 ORDER BY position ASC`,
		bundleID,
	).Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, cmd bundledomain.TransitionCmd) (bool, error) {
	set := []string{"status = ?", "updated_at = ?"}
	args := []any{cmd.To, cmd.At}
	if column := subscriptiondomain.TimestampColumn(cmd.To); column != "" {
		set = append(set, column+" = ?")
		args = append(args, cmd.At)
	}
	if cmd.PaymentID != nil {
		set = append(set, "payment_id = ?")
		args = append(args, *cmd.PaymentID)
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
		`UPDATE monthly_subscriptions SET `+strings.Join(set, ", ")+` WHERE `+strings.Join(where, " AND "),
		args...,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListExpirable(ctx context.Context, db *gorm.DB, today time.Time, afterID snowflake.ID, limit int) ([]bundledomain.MonthlySubscription, error) {
	var bundles []bundledomain.MonthlySubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+bundleColumns+` FROM monthly_subscriptions
		 WHERE status = ? AND end_date < ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		subscriptiondomain.StatusActive,
		today,
		afterID,
		limit,
	).Scan(&bundles).Error
	if err != nil {
		return nil, err
	}
	return bundles, nil
}
