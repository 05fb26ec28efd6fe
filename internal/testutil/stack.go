package testutil

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	bundlerepo "github.com/smallbiznis/mealsub/internal/bundle/repository"
	bundleservice "github.com/smallbiznis/mealsub/internal/bundle/service"
	"github.com/smallbiznis/mealsub/internal/clock"
	"github.com/smallbiznis/mealsub/internal/config"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	menurepo "github.com/smallbiznis/mealsub/internal/menu/repository"
	menuservice "github.com/smallbiznis/mealsub/internal/menu/service"
	"github.com/smallbiznis/mealsub/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/mealsub/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/mealsub/internal/payment/repository"
	paymentservice "github.com/smallbiznis/mealsub/internal/payment/service"
	"github.com/smallbiznis/mealsub/internal/redislock"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/mealsub/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/mealsub/internal/subscription/service"
	vendordomain "github.com/smallbiznis/mealsub/internal/vendors/domain"
	vendorrepo "github.com/smallbiznis/mealsub/internal/vendors/repository"
	vendorservice "github.com/smallbiznis/mealsub/internal/vendors/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stack is the full service graph over one test database.
type Stack struct {
	DB      *gorm.DB
	Node    *snowflake.Node
	Clock   *clock.FakeClock
	Emitter *RecordingEmitter

	Menus         menudomain.Service
	Vendors       vendordomain.Service
	Subscriptions subscriptiondomain.Service
	Bundles       bundledomain.Service
	Payments      paymentdomain.Service
	PaymentRepo   paymentdomain.Repository
}

type StackOption func(*stackOptions)

type stackOptions struct {
	processors        []paymentdomain.Processor
	maxFailedAttempts int
	pendingStaleAfter time.Duration
	locker            *redislock.Locker
}

func WithProcessors(processors ...paymentdomain.Processor) StackOption {
	return func(o *stackOptions) { o.processors = processors }
}

func WithMaxFailedAttempts(n int) StackOption {
	return func(o *stackOptions) { o.maxFailedAttempts = n }
}

func WithPendingStaleAfter(d time.Duration) StackOption {
	return func(o *stackOptions) { o.pendingStaleAfter = d }
}

// WithLocker makes payments lock targets through Redis leases.
func WithLocker(locker *redislock.Locker) StackOption {
	return func(o *stackOptions) { o.locker = locker }
}

// NewStack builds every service with the clock frozen at now.
func NewStack(t testing.TB, now time.Time, opts ...StackOption) *Stack {
	t.Helper()

	options := stackOptions{maxFailedAttempts: 3, pendingStaleAfter: 15 * time.Minute}
	for _, opt := range opts {
		opt(&options)
	}

	db := OpenDB(t)
	node := Node(t)
	fake := clock.NewFakeClock(now)
	emitter := &RecordingEmitter{}
	log := zap.NewNop()

	menus := menuservice.NewService(menuservice.ServiceParam{DB: db, Log: log, Repo: menurepo.Provide()})
	vendors := vendorservice.NewService(vendorservice.ServiceParam{DB: db, Log: log, Repo: vendorrepo.Provide()})
	subscriptions := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Repo:      subscriptionrepo.Provide(),
		Emitter:   emitter,
		MenuSvc:   menus,
		VendorSvc: vendors,
	})
	bundles := bundleservice.NewService(bundleservice.ServiceParam{
		DB:              db,
		Log:             log,
		GenID:           node,
		Clock:           fake,
		Repo:            bundlerepo.Provide(),
		Emitter:         emitter,
		SubscriptionSvc: subscriptions,
	})

	payRepo := paymentrepo.Provide()
	payments := paymentservice.NewService(paymentservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Config: config.Config{Payment: config.PaymentConfig{
			MaxFailedAttempts: options.maxFailedAttempts,
			DefaultCurrency:   "IDR",
			PendingStaleAfter: options.pendingStaleAfter,
			LockTTL:           time.Minute,
		}},
		Repo:            payRepo,
		Registry:        adapters.NewRegistry(options.processors...),
		Emitter:         emitter,
		Locker:          options.locker,
		SubscriptionSvc: subscriptions,
		BundleSvc:       bundles,
	})

	return &Stack{
		DB:            db,
		Node:          node,
		Clock:         fake,
		Emitter:       emitter,
		Menus:         menus,
		Vendors:       vendors,
		Subscriptions: subscriptions,
		Bundles:       bundles,
		Payments:      payments,
		PaymentRepo:   payRepo,
	}
}

// ForceStatus rewrites a subscription status directly, for arranging fixtures.
func (s *Stack) ForceStatus(t testing.TB, table string, id snowflake.ID, status subscriptiondomain.Status) {
	t.Helper()
	if err := s.DB.Exec("UPDATE "+table+" SET status = ? WHERE id = ?", status, id).Error; err != nil {
		t.Fatalf("force status: %v", err)
	}
}
