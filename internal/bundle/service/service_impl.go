package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	"github.com/smallbiznis/mealsub/internal/clock"
	"github.com/smallbiznis/mealsub/internal/events"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	obslogger "github.com/smallbiznis/mealsub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mealsub/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    bundledomain.Repository
	emitter events.Emitter
	metrics *obsmetrics.Metrics

	subscriptionsvc subscriptiondomain.Service
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    bundledomain.Repository
	Emitter events.Emitter
	Metrics *obsmetrics.Metrics `optional:"true"`

	SubscriptionSvc subscriptiondomain.Service
}

func NewService(p ServiceParam) bundledomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("bundle.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		emitter: p.Emitter,
		metrics: p.Metrics,

		subscriptionsvc: p.SubscriptionSvc,
	}
}

// CreateBundle creates every member and the bundle in one transaction; any
// failing member rolls back everything created by the call.
func (s *Service) CreateBundle(ctx context.Context, req bundledomain.CreateBundleRequest) (bundledomain.MonthlySubscription, error) {
	mealType, err := validateCreate(req)
	if err != nil {
		return bundledomain.MonthlySubscription{}, err
	}

	var created bundledomain.MonthlySubscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bundleID := s.genID.Generate()
		members := make([]bundledomain.Member, 0, len(req.Items))
		memberIDs := make([]snowflake.ID, 0, len(req.Items))
		total := decimal.Zero

		var start, end time.Time
		for i, item := range req.Items {
			subscription, err := s.subscriptionsvc.CreateTx(ctx, tx, subscriptiondomain.CreateRequest{
				UserID:    req.UserID,
				VendorID:  item.VendorID,
				MenuID:    item.MenuID,
				StartDate: req.StartDate,
				EndDate:   req.EndDate,
				MealType:  mealType,
			})
			if err != nil {
				return fmt.Errorf("bundle item %d: %w", i+1, err)
			}
			start, end = subscription.StartDate, subscription.EndDate
			total = total.Add(subscription.Price)
			memberIDs = append(memberIDs, subscription.ID)
			members = append(members, bundledomain.Member{
				MonthlySubscriptionID: bundleID,
				Position:              i,
				VendorID:              item.VendorID,
				SubscriptionID:        subscription.ID,
			})
		}

		now := s.clock.Now()
		bundle := bundledomain.MonthlySubscription{
			ID:         bundleID,
			UserID:     req.UserID,
			MealType:   mealType,
			TotalPrice: total,
			StartDate:  start,
			EndDate:    end,
			Status:     subscriptiondomain.StatusPending,
			AddressID:  req.AddressID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.repo.Insert(ctx, tx, &bundle); err != nil {
			return err
		}
		if err := s.repo.InsertMembers(ctx, tx, members); err != nil {
			return err
		}
		if err := s.subscriptionsvc.AttachToBundleTx(ctx, tx, memberIDs, bundleID); err != nil {
			return err
		}

		bundle.SetMembers(members)
		created = bundle
		return nil
	})
	if err != nil {
		return bundledomain.MonthlySubscription{}, err
	}

	obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), string(subscriptiondomain.KindMonthly), created.ID.String()).
		Info("bundle created",
			zap.Int("members", len(created.MemberSubscriptionIDs)),
			zap.String("total_price", created.TotalPrice.StringFixed(2)),
		)
	return created, nil
}

func validateCreate(req bundledomain.CreateBundleRequest) (menudomain.MealType, error) {
	if req.UserID == 0 {
		return "", subscriptiondomain.ErrInvalidUser
	}
	if len(req.Items) < bundledomain.MinVendors || len(req.Items) > bundledomain.MaxVendors {
		return "", bundledomain.ErrInvalidBundleSize
	}

	seen := make(map[snowflake.ID]struct{}, len(req.Items))
	for _, item := range req.Items {
		if item.VendorID == 0 || item.MenuID == 0 {
			return "", subscriptiondomain.ErrInvalidReference
		}
		if _, dup := seen[item.VendorID]; dup {
			return "", bundledomain.ErrDuplicateVendor
		}
		seen[item.VendorID] = struct{}{}
	}

	mealType, err := menudomain.ParseMealType(string(req.MealType))
	if err != nil {
		return "", err
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() || !clock.DateOf(req.StartDate).Before(clock.DateOf(req.EndDate)) {
		return "", subscriptiondomain.ErrInvalidPeriod
	}
	if req.AddressID == 0 {
		return "", bundledomain.ErrInvalidAddress
	}
	return mealType, nil
}

// ActivateBundle must run inside the transaction that completes the payment.
// A member that cannot follow the bundle aborts the whole cascade.
func (s *Service) ActivateBundle(ctx context.Context, tx *gorm.DB, id snowflake.ID, paymentID snowflake.ID) (bundledomain.MonthlySubscription, error) {
	if tx == nil {
		return bundledomain.MonthlySubscription{}, gorm.ErrInvalidTransaction
	}

	var paymentRef *snowflake.ID
	if paymentID != 0 {
		paymentRef = &paymentID
	}
	bundle, err := s.transition(ctx, tx, bundledomain.TransitionCmd{
		ID:        id,
		From:      subscriptiondomain.StatusPending,
		To:        subscriptiondomain.StatusActive,
		At:        s.clock.Now(),
		PaymentID: paymentRef,
	})
	if err != nil {
		return bundledomain.MonthlySubscription{}, err
	}

	members, err := s.repo.ListMembers(ctx, tx, id)
	if err != nil {
		return bundledomain.MonthlySubscription{}, err
	}
	for _, member := range members {
		if _, err := s.subscriptionsvc.ActivateTx(ctx, tx, member.SubscriptionID); err != nil {
			if errors.Is(err, subscriptiondomain.ErrCapacityExceeded) {
				return bundledomain.MonthlySubscription{}, err
			}
			s.logIntegrityViolation(ctx, "bundle.activate.member_failed", id, member.SubscriptionID, err)
			return bundledomain.MonthlySubscription{}, fmt.Errorf("%w: %w", bundledomain.ErrMemberOutOfSync, err)
		}
	}

	bundle.SetMembers(members)
	return bundle, nil
}

// CancelBundle cancels the bundle and cascades to members that are still
// ACTIVE. Members already in a terminal state are skipped.
func (s *Service) CancelBundle(ctx context.Context, userID, id snowflake.ID) (bundledomain.CancelResult, error) {
	today := clock.Today(s.clock)

	current, err := s.FindOwned(ctx, userID, id)
	if err != nil {
		return bundledomain.CancelResult{}, err
	}
	if current.EndedBefore(today) {
		return bundledomain.CancelResult{}, subscriptiondomain.ErrAlreadyExpired
	}
	if !subscriptiondomain.IsTransitionAllowed(current.Status, subscriptiondomain.StatusCancelled) {
		return bundledomain.CancelResult{}, subscriptiondomain.ErrInvalidTransition
	}

	result := bundledomain.CancelResult{}
	var cancelledMembers []subscriptiondomain.MealSubscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bundle, err := s.transition(ctx, tx, bundledomain.TransitionCmd{
			ID:             id,
			UserID:         userID,
			From:           subscriptiondomain.StatusActive,
			To:             subscriptiondomain.StatusCancelled,
			At:             s.clock.Now(),
			NotEndedBefore: &today,
		})
		if err != nil {
			return err
		}

		members, err := s.repo.ListMembers(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, member := range members {
			cancelled, err := s.subscriptionsvc.CancelTx(ctx, tx, userID, member.SubscriptionID, today)
			switch {
			case err == nil:
				result.Cancelled = append(result.Cancelled, member.SubscriptionID)
				cancelledMembers = append(cancelledMembers, cancelled)
			case errors.Is(err, subscriptiondomain.ErrInvalidTransition), errors.Is(err, subscriptiondomain.ErrAlreadyExpired):
				result.Skipped = append(result.Skipped, member.SubscriptionID)
			default:
				return err
			}
		}

		bundle.SetMembers(members)
		result.Bundle = bundle
		return nil
	})
	if err != nil {
		return bundledomain.CancelResult{}, err
	}

	obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), string(subscriptiondomain.KindMonthly), id.String()).
		Info("bundle cancelled",
			zap.Int("cancelled_members", len(result.Cancelled)),
			zap.Int("skipped_members", len(result.Skipped)),
		)

	now := s.clock.Now()
	evts := []events.Event{bundleEvent(events.SubscriptionCancelled, result.Bundle, now)}
	for _, member := range cancelledMembers {
		evt := events.New(events.SubscriptionCancelled, now)
		evt.UserID = member.UserID.String()
		evt.SubscriptionID = member.ID.String()
		evt.SubscriptionKind = string(subscriptiondomain.KindSingle)
		evt.Status = string(member.Status)
		evts = append(evts, evt)
	}
	s.emitter.Emit(ctx, evts...)

	return result, nil
}

// FailBundle marks a bundle that can no longer be paid for, together with its members.
func (s *Service) FailBundle(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	if tx == nil {
		tx = s.db
	}
	if _, err := s.transition(ctx, tx, bundledomain.TransitionCmd{
		ID:   id,
		From: subscriptiondomain.StatusPending,
		To:   subscriptiondomain.StatusFailed,
		At:   s.clock.Now(),
	}); err != nil {
		return err
	}

	members, err := s.repo.ListMembers(ctx, tx, id)
	if err != nil {
		return err
	}
	for _, member := range members {
		if err := s.subscriptionsvc.FailTx(ctx, tx, member.SubscriptionID); err != nil {
			s.logIntegrityViolation(ctx, "bundle.fail.member_failed", id, member.SubscriptionID, err)
			return fmt.Errorf("%w: %w", bundledomain.ErrMemberOutOfSync, err)
		}
	}
	return nil
}

// ExpireBundle expires the bundle row only; members carry the same end date and
// are expired by the same sweep on their own.
func (s *Service) ExpireBundle(ctx context.Context, id snowflake.ID, now time.Time) error {
	today := clock.DateOf(now)
	bundle, err := s.transition(ctx, s.db, bundledomain.TransitionCmd{
		ID:          id,
		From:        subscriptiondomain.StatusActive,
		To:          subscriptiondomain.StatusExpired,
		At:          now.UTC(),
		EndedBefore: &today,
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(ctx, bundleEvent(events.SubscriptionExpired, bundle, now))
	return nil
}

func (s *Service) FindOwned(ctx context.Context, userID, id snowflake.ID) (bundledomain.MonthlySubscription, error) {
	if userID == 0 || id == 0 {
		return bundledomain.MonthlySubscription{}, bundledomain.ErrBundleNotFound
	}
	bundle, err := s.repo.FindOwned(ctx, s.db, userID, id)
	if err != nil {
		return bundledomain.MonthlySubscription{}, err
	}
	if bundle == nil {
		return bundledomain.MonthlySubscription{}, bundledomain.ErrBundleNotFound
	}

	members, err := s.repo.ListMembers(ctx, s.db, id)
	if err != nil {
		return bundledomain.MonthlySubscription{}, err
	}
	bundle.SetMembers(members)
	return *bundle, nil
}

func (s *Service) ListExpirable(ctx context.Context, today time.Time, afterID snowflake.ID, limit int) ([]bundledomain.MonthlySubscription, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListExpirable(ctx, s.db, clock.DateOf(today), afterID, limit)
}

func (s *Service) transition(ctx context.Context, tx *gorm.DB, cmd bundledomain.TransitionCmd) (bundledomain.MonthlySubscription, error) {
	if !subscriptiondomain.IsTransitionAllowed(cmd.From, cmd.To) {
		return bundledomain.MonthlySubscription{}, subscriptiondomain.ErrInvalidTransition
	}

	changed, err := s.repo.Transition(ctx, tx, cmd)
	if err != nil {
		return bundledomain.MonthlySubscription{}, err
	}

	current, err := s.repo.FindByID(ctx, tx, cmd.ID)
	if err != nil {
		return bundledomain.MonthlySubscription{}, err
	}
	if current == nil || (cmd.UserID != 0 && current.UserID != cmd.UserID) {
		return bundledomain.MonthlySubscription{}, bundledomain.ErrBundleNotFound
	}
	if !changed {
		if cmd.NotEndedBefore != nil && current.EndedBefore(*cmd.NotEndedBefore) {
			return bundledomain.MonthlySubscription{}, subscriptiondomain.ErrAlreadyExpired
		}
		obslogger.WithContext(ctx, s.log).Info("bundle transition rejected",
			zap.String("bundle_id", cmd.ID.String()),
			zap.String("from", string(cmd.From)),
			zap.String("to", string(cmd.To)),
			zap.String("current", string(current.Status)),
		)
		return bundledomain.MonthlySubscription{}, subscriptiondomain.ErrInvalidTransition
	}

	s.metrics.RecordTransition(ctx, string(subscriptiondomain.KindMonthly), string(cmd.From), string(cmd.To))
	return *current, nil
}

func (s *Service) logIntegrityViolation(ctx context.Context, msg string, bundleID, memberID snowflake.ID, err error) {
	obslogger.WithContext(ctx, s.log).Error(msg,
		zap.Bool("integrity_violation", true),
		zap.String("bundle_id", bundleID.String()),
		zap.String("member_subscription_id", memberID.String()),
		zap.Error(err),
	)
}

func bundleEvent(eventType events.Type, bundle bundledomain.MonthlySubscription, at time.Time) events.Event {
	evt := events.New(eventType, at)
	evt.UserID = bundle.UserID.String()
	evt.SubscriptionID = bundle.ID.String()
	evt.SubscriptionKind = string(subscriptiondomain.KindMonthly)
	evt.Amount = bundle.TotalPrice.StringFixed(2)
	evt.Status = string(bundle.Status)
	return evt
}
