package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mealsub/internal/clock"
	"github.com/smallbiznis/mealsub/internal/events"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	obslogger "github.com/smallbiznis/mealsub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mealsub/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	vendordomain "github.com/smallbiznis/mealsub/internal/vendors/domain"
	"github.com/smallbiznis/mealsub/pkg/db/option"
	"github.com/smallbiznis/mealsub/pkg/db/pagination"
	"github.com/smallbiznis/mealsub/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	store   repository.Repository[subscriptiondomain.MealSubscription]
	emitter events.Emitter
	metrics *obsmetrics.Metrics

	menusvc   menudomain.Service
	vendorsvc vendordomain.Service
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	Emitter events.Emitter
	Metrics *obsmetrics.Metrics `optional:"true"`

	MenuSvc   menudomain.Service
	VendorSvc vendordomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		store:   repository.ProvideStore[subscriptiondomain.MealSubscription](p.DB),
		emitter: p.Emitter,
		metrics: p.Metrics,

		menusvc:   p.MenuSvc,
		vendorsvc: p.VendorSvc,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (subscriptiondomain.MealSubscription, error) {
	var created subscriptiondomain.MealSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.CreateTx(ctx, tx, req)
		if err != nil {
			return err
		}
		created = subscription
		return nil
	})
	if err != nil {
		return subscriptiondomain.MealSubscription{}, err
	}

	obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), string(subscriptiondomain.KindSingle), created.ID.String()).
		Info("subscription created",
			zap.String("vendor_id", created.VendorID.String()),
			zap.String("price", created.Price.StringFixed(2)),
		)
	return created, nil
}

func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, req subscriptiondomain.CreateRequest) (subscriptiondomain.MealSubscription, error) {
	if req.UserID == 0 {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrInvalidUser
	}

	start := clock.DateOf(req.StartDate)
	end := clock.DateOf(req.EndDate)
	if req.StartDate.IsZero() || req.EndDate.IsZero() || !start.Before(end) {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrInvalidPeriod
	}
	if end.Before(clock.Today(s.clock)) {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrInvalidPeriod
	}

	quote, err := s.menusvc.ResolvePriceTx(ctx, tx, req.VendorID, req.MenuID)
	if err != nil {
		if errors.Is(err, menudomain.ErrMenuNotFound) || errors.Is(err, menudomain.ErrMenuVendorMismatch) {
			return subscriptiondomain.MealSubscription{}, fmt.Errorf("%w: %w", subscriptiondomain.ErrInvalidReference, err)
		}
		return subscriptiondomain.MealSubscription{}, err
	}
	if req.MealType != "" && quote.MealType != req.MealType {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrMealTypeMismatch
	}

	period := vendordomain.Period{Start: start, End: end}
	ok, err := s.vendorsvc.HasCapacity(ctx, tx, req.VendorID, period)
	if err != nil {
		if errors.Is(err, vendordomain.ErrVendorNotFound) {
			return subscriptiondomain.MealSubscription{}, fmt.Errorf("%w: %w", subscriptiondomain.ErrInvalidReference, err)
		}
		return subscriptiondomain.MealSubscription{}, err
	}
	if !ok {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrCapacityExceeded
	}

	now := s.clock.Now()
	subscription := subscriptiondomain.MealSubscription{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		VendorID:  req.VendorID,
		MenuID:    req.MenuID,
		MealType:  quote.MealType,
		Price:     quote.Price,
		Status:    subscriptiondomain.StatusPending,
		StartDate: start,
		EndDate:   end,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, tx, &subscription); err != nil {
		return subscriptiondomain.MealSubscription{}, err
	}

	return subscription, nil
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) (subscriptiondomain.MealSubscription, error) {
	var activated subscriptiondomain.MealSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.ActivateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		activated = subscription
		return nil
	})
	if err != nil {
		return subscriptiondomain.MealSubscription{}, err
	}

	s.emitter.Emit(ctx, lifecycleEvent(events.SubscriptionActivated, activated, s.clock.Now()))
	return activated, nil
}

// ActivateTx moves a PENDING subscription to ACTIVE. Callers must only use it
// once a payment covering the subscription has completed. Vendor capacity is
// checked again under a vendor row lock, since PENDING rows never hold a slot.
func (s *Service) ActivateTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (subscriptiondomain.MealSubscription, error) {
	if tx == nil {
		tx = s.db
	}
	current, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return subscriptiondomain.MealSubscription{}, err
	}
	if current == nil {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	if current.Status == subscriptiondomain.StatusPending {
		period := vendordomain.Period{Start: current.StartDate, End: current.EndDate}
		ok, err := s.vendorsvc.HoldCapacity(ctx, tx, current.VendorID, period)
		if err != nil {
			return subscriptiondomain.MealSubscription{}, err
		}
		if !ok {
			return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrCapacityExceeded
		}
	}

	return s.transition(ctx, tx, subscriptiondomain.TransitionCmd{
		ID:   id,
		From: subscriptiondomain.StatusPending,
		To:   subscriptiondomain.StatusActive,
		At:   s.clock.Now(),
	})
}

func (s *Service) Cancel(ctx context.Context, userID, id snowflake.ID) (subscriptiondomain.MealSubscription, error) {
	today := clock.Today(s.clock)

	var cancelled subscriptiondomain.MealSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.CancelTx(ctx, tx, userID, id, today)
		if err != nil {
			return err
		}
		cancelled = subscription
		return nil
	})
	if err != nil {
		return subscriptiondomain.MealSubscription{}, err
	}

	obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), string(subscriptiondomain.KindSingle), cancelled.ID.String()).
		Info("subscription cancelled")
	s.emitter.Emit(ctx, lifecycleEvent(events.SubscriptionCancelled, cancelled, s.clock.Now()))
	return cancelled, nil
}

// CancelTx rejects cancellation once the end date has passed, whatever the
// stored status is, so a late cancel never masks a pending expiration.
func (s *Service) CancelTx(ctx context.Context, tx *gorm.DB, userID, id snowflake.ID, today time.Time) (subscriptiondomain.MealSubscription, error) {
	subscription, err := s.repo.FindOwned(ctx, tx, userID, id)
	if err != nil {
		return subscriptiondomain.MealSubscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	if subscription.EndedBefore(today) {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrAlreadyExpired
	}
	if !subscriptiondomain.IsTransitionAllowed(subscription.Status, subscriptiondomain.StatusCancelled) {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrInvalidTransition
	}

	cancelled, err := s.transition(ctx, tx, subscriptiondomain.TransitionCmd{
		ID:             id,
		UserID:         userID,
		From:           subscriptiondomain.StatusActive,
		To:             subscriptiondomain.StatusCancelled,
		At:             s.clock.Now(),
		NotEndedBefore: &today,
	})
	if errors.Is(err, subscriptiondomain.ErrInvalidTransition) && subscription.EndedBefore(today) {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrAlreadyExpired
	}
	return cancelled, err
}

// Expire is only driven by the expiration sweeper.
func (s *Service) Expire(ctx context.Context, id snowflake.ID, now time.Time) error {
	today := clock.DateOf(now)
	expired, err := s.transition(ctx, s.db, subscriptiondomain.TransitionCmd{
		ID:          id,
		From:        subscriptiondomain.StatusActive,
		To:          subscriptiondomain.StatusExpired,
		At:          now.UTC(),
		EndedBefore: &today,
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(ctx, lifecycleEvent(events.SubscriptionExpired, expired, now))
	return nil
}

func (s *Service) Fail(ctx context.Context, id snowflake.ID) error {
	return s.FailTx(ctx, s.db, id)
}

func (s *Service) FailTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	_, err := s.transition(ctx, tx, subscriptiondomain.TransitionCmd{
		ID:   id,
		From: subscriptiondomain.StatusPending,
		To:   subscriptiondomain.StatusFailed,
		At:   s.clock.Now(),
	})
	return err
}

// FindOwned hides subscriptions of other users behind the same not-found error.
func (s *Service) FindOwned(ctx context.Context, userID, id snowflake.ID) (subscriptiondomain.MealSubscription, error) {
	if userID == 0 || id == 0 {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	subscription, err := s.repo.FindOwned(ctx, s.db, userID, id)
	if err != nil {
		return subscriptiondomain.MealSubscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *subscription, nil
}

func (s *Service) ListOwned(ctx context.Context, req subscriptiondomain.ListRequest) (subscriptiondomain.ListResponse, error) {
	if req.UserID == 0 {
		return subscriptiondomain.ListResponse{}, subscriptiondomain.ErrInvalidUser
	}

	filter := &subscriptiondomain.MealSubscription{UserID: req.UserID}
	if req.Status != "" {
		status, err := subscriptiondomain.ParseStatus(req.Status)
		if err != nil {
			return subscriptiondomain.ListResponse{}, err
		}
		filter.Status = status
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.MaxPageSize {
		pageSize = pagination.MaxPageSize
	}

	items, err := s.store.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  pageSize,
		}),
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", map[string]bool{"created_at": true})),
	)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return subscriptiondomain.ListResponse{}, pagination.ErrInvalidPageToken
		}
		return subscriptiondomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *subscriptiondomain.MealSubscription) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	subscriptions := make([]subscriptiondomain.MealSubscription, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		subscriptions = append(subscriptions, *item)
	}

	return subscriptiondomain.ListResponse{
		PageInfo:      *pageInfo,
		Subscriptions: subscriptions,
	}, nil
}

func (s *Service) ListExpirable(ctx context.Context, today time.Time, afterID snowflake.ID, limit int) ([]subscriptiondomain.MealSubscription, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListExpirable(ctx, s.db, clock.DateOf(today), afterID, limit)
}

func (s *Service) AttachToBundleTx(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, bundleID snowflake.ID) error {
	return s.repo.AttachToBundle(ctx, tx, ids, bundleID, s.clock.Now())
}

// transition runs the compare-and-set and resolves a lost race into a typed error.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, cmd subscriptiondomain.TransitionCmd) (subscriptiondomain.MealSubscription, error) {
	if tx == nil {
		tx = s.db
	}
	if !subscriptiondomain.IsTransitionAllowed(cmd.From, cmd.To) {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrInvalidTransition
	}

	changed, err := s.repo.Transition(ctx, tx, cmd)
	if err != nil {
		return subscriptiondomain.MealSubscription{}, err
	}

	current, err := s.repo.FindByID(ctx, tx, cmd.ID)
	if err != nil {
		return subscriptiondomain.MealSubscription{}, err
	}
	if current == nil || (cmd.UserID != 0 && current.UserID != cmd.UserID) {
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	if !changed {
		obslogger.WithContext(ctx, s.log).Info("subscription transition rejected",
			zap.String("subscription_id", cmd.ID.String()),
			zap.String("from", string(cmd.From)),
			zap.String("to", string(cmd.To)),
			zap.String("current", string(current.Status)),
		)
		return subscriptiondomain.MealSubscription{}, subscriptiondomain.ErrInvalidTransition
	}

	s.metrics.RecordTransition(ctx, string(subscriptiondomain.KindSingle), string(cmd.From), string(cmd.To))
	return *current, nil
}

func lifecycleEvent(eventType events.Type, subscription subscriptiondomain.MealSubscription, at time.Time) events.Event {
	evt := events.New(eventType, at)
	evt.UserID = subscription.UserID.String()
	evt.SubscriptionID = subscription.ID.String()
	evt.SubscriptionKind = string(subscriptiondomain.KindSingle)
	evt.Status = string(subscription.Status)
	return evt
}
