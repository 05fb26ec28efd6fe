package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"gorm.io/gorm"
)

const (
	SweeperJobReasonDeadlineExceeded     = "deadline_exceeded"
	SweeperJobReasonDBLockTimeout        = "db_lock_timeout"
	SweeperJobReasonSerializationFailure = "serialization_failure"
	SweeperJobReasonUniqueViolation      = "unique_violation"
	SweeperJobReasonLostRace             = "lost_race"
	SweeperJobReasonDB                   = "db"
	SweeperJobReasonUnknown              = "unknown"
)

const (
	SweeperSkipAlreadySwept = "already_swept"
	SweeperSkipLockHeld     = "lock_held"
	SweeperSkipDisabled     = "disabled"
)

const (
	SweeperOutcomeExpired = "expired"
	SweeperOutcomeSkipped = "skipped"
	SweeperOutcomeFailed  = "failed"
)

// SweeperMetrics captures expiration sweep health signals.
type SweeperMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	recordsProcessed *prometheus.CounterVec
	runsSkipped      *prometheus.CounterVec
	lastSuccess      prometheus.Gauge
}

var (
	sweeperMetricsOnce sync.Once
	sweeperMetrics     *SweeperMetrics
)

// Sweeper returns the singleton sweeper metrics registry.
func Sweeper() *SweeperMetrics {
	return SweeperWithConfig(Config{})
}

// SweeperWithConfig returns the singleton sweeper metrics registry using config labels.
func SweeperWithConfig(cfg Config) *SweeperMetrics {
	sweeperMetricsOnce.Do(func() {
		sweeperMetrics = newSweeperMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweeperMetrics
}

// ResetSweeperMetricsForTest resets the sweeper metrics singleton for tests.
func ResetSweeperMetricsForTest() {
	sweeperMetricsOnce = sync.Once{}
	sweeperMetrics = nil
}

func newSweeperMetrics(registerer prometheus.Registerer, cfg Config) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "mealsub"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "mealsub_sweeper_job_runs_total",
		Help:        "Sweeper job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "mealsub_sweeper_job_duration_seconds",
		Help:        "Sweeper job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "mealsub_sweeper_job_timeouts_total",
		Help:        "Sweeper job timeouts.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "mealsub_sweeper_job_errors_total",
		Help:        "Sweeper job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	recordsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "mealsub_sweeper_records_total",
		Help:        "Subscriptions visited by the sweeper by resource and outcome.",
		ConstLabels: constLabels,
	}, []string{"resource", "outcome"})
	runsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "mealsub_sweeper_runs_skipped_total",
		Help:        "Daily sweeps that did not run, by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "mealsub_sweeper_last_success_timestamp_seconds",
		Help:        "Unix time of the last sweep that finished without record errors.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		recordsProcessed,
		runsSkipped,
		lastSuccess,
	)

	return &SweeperMetrics{
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		recordsProcessed: recordsProcessed,
		runsSkipped:      runsSkipped,
		lastSuccess:      lastSuccess,
	}
}

// IncJobRun increments the run counter for a sweeper job.
func (m *SweeperMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records sweeper job latency in seconds.
func (m *SweeperMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SweeperMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SweeperMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySweeperJobReason(err)).Inc()
}

func (m *SweeperMetrics) AddRecords(resource, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recordsProcessed.WithLabelValues(resource, outcome).Add(float64(count))
}

func (m *SweeperMetrics) IncRunSkipped(reason string) {
	if m == nil {
		return
	}
	m.runsSkipped.WithLabelValues(reason).Inc()
}

func (m *SweeperMetrics) MarkSuccess(at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.Set(float64(at.Unix()))
}

func ClassifySweeperJobReason(err error) string {
	if err == nil {
		return SweeperJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SweeperJobReasonDeadlineExceeded
	}
	if errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
		return SweeperJobReasonLostRace
	}
	if hasPGCode(err, "55P03") {
		return SweeperJobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return SweeperJobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return SweeperJobReasonUniqueViolation
	}
	if isDBError(err) {
		return SweeperJobReasonDB
	}
	return SweeperJobReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
