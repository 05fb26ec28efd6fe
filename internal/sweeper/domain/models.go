package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// SweepRun records that a calendar day has been swept.
type SweepRun struct {
	RunDate    time.Time  `gorm:"primaryKey" json:"run_date"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Selected   int        `gorm:"not null;default:0" json:"selected"`
	Expired    int        `gorm:"not null;default:0" json:"expired"`
	Skipped    int        `gorm:"not null;default:0" json:"skipped"`
	Failed     int        `gorm:"not null;default:0" json:"failed"`
}

func (SweepRun) TableName() string { return "sweep_runs" }

// Report summarizes one sweep. Err joins every per-record failure.
type Report struct {
	RunDate  time.Time `json:"run_date"`
	Selected int       `json:"selected"`
	Expired  int       `json:"expired"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Err      error     `json:"-"`
}

func (r *Report) Add(other Report) {
	r.Selected += other.Selected
	r.Expired += other.Expired
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Err = errors.Join(r.Err, other.Err)
}

type Repository interface {
	// Claim inserts the run row for day and reports false when it already exists.
	Claim(ctx context.Context, db *gorm.DB, day, startedAt time.Time) (bool, error)
	// Release removes an unfinished claim so the day can be swept again.
	Release(ctx context.Context, db *gorm.DB, day time.Time) error
	// Record stores the outcome of a run, creating the row if needed.
	Record(ctx context.Context, db *gorm.DB, run SweepRun) error
	FindByDate(ctx context.Context, db *gorm.DB, day time.Time) (*SweepRun, error)
}

var (
	ErrAlreadySwept = errors.New("already_swept")
	ErrSweepLocked  = errors.New("sweep_locked")
	ErrDisabled     = errors.New("sweeper_disabled")
)
