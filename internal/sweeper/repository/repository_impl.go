package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/mealsub/internal/sweeper/domain"
	"github.com/smallbiznis/mealsub/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Claim(ctx context.Context, conn *gorm.DB, day, startedAt time.Time) (bool, error) {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO sweep_runs (run_date, started_at, selected, expired, skipped, failed)
		 VALUES (?, ?, 0, 0, 0, 0)`,
		day,
		startedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) Release(ctx context.Context, conn *gorm.DB, day time.Time) error {
	return conn.WithContext(ctx).Exec(
		`DELETE FROM sweep_runs
		 WHERE run_date = ? AND finished_at IS NULL`,
		day,
	).Error
}

func (r *repo) Record(ctx context.Context, conn *gorm.DB, run domain.SweepRun) error {
	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"finished_at", "selected", "expired", "skipped", "failed"}),
		}).
		Create(&run).Error
}

func (r *repo) FindByDate(ctx context.Context, conn *gorm.DB, day time.Time) (*domain.SweepRun, error) {
	var item domain.SweepRun
	err := conn.WithContext(ctx).Raw(
		`SELECT run_date, started_at, finished_at, selected, expired, skipped, failed
		 FROM sweep_runs
		 WHERE run_date = ?
		 LIMIT 1`,
		day,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.RunDate.IsZero() {
		return nil, nil
	}
	return &item, nil
}
