package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	"github.com/smallbiznis/mealsub/internal/clock"
	"github.com/smallbiznis/mealsub/internal/config"
	"github.com/smallbiznis/mealsub/internal/events"
	obslogger "github.com/smallbiznis/mealsub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mealsub/internal/observability/metrics"
	"github.com/smallbiznis/mealsub/internal/observability/tracing"
	"github.com/smallbiznis/mealsub/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/mealsub/internal/payment/domain"
	"github.com/smallbiznis/mealsub/internal/redislock"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeCompleted   = "completed"
	outcomeDeclined    = "declined"
	outcomeError       = "error"
	outcomeCompensated = "compensated"

	defaultRefundReason = "requested_by_customer"
	staleChargeReason   = "abandoned_pending"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       paymentdomain.Repository
	Registry   *adapters.Registry
	Emitter    events.Emitter
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Locker     *redislock.Locker   `optional:"true"`

	SubscriptionSvc subscriptiondomain.Service
	BundleSvc       bundledomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	registry   *adapters.Registry
	emitter    events.Emitter
	obsMetrics *obsmetrics.Metrics
	tracer     trace.Tracer

	subscriptionSvc subscriptiondomain.Service
	bundleSvc       bundledomain.Service

	maxFailedAttempts int
	defaultCurrency   string
	pendingStaleAfter time.Duration
	locks             targetLocker
}

func NewService(p Params) paymentdomain.Service {
	currency := strings.ToUpper(strings.TrimSpace(p.Config.Payment.DefaultCurrency))
	if currency == "" {
		currency = "IDR"
	}
	log := p.Log.Named("payment.service")
	var locks targetLocker = newTargetLocks()
	if p.Locker != nil {
		locks = newLeaseLocks(p.Locker, p.Config.Payment.LockTTL, log)
	}
	return &Service{
		db:         p.DB,
		log:        log,
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		registry:   p.Registry,
		emitter:    p.Emitter,
		obsMetrics: p.ObsMetrics,
		tracer:     otel.Tracer("mealsub/payment"),

		subscriptionSvc: p.SubscriptionSvc,
		bundleSvc:       p.BundleSvc,

		maxFailedAttempts: p.Config.Payment.MaxFailedAttempts,
		defaultCurrency:   currency,
		pendingStaleAfter: p.Config.Payment.PendingStaleAfter,
		locks:             locks,
	}
}

// target is whatever a payment is booked against: a single subscription or a bundle.
type target struct {
	ID     snowflake.ID
	UserID snowflake.ID
	Kind   subscriptiondomain.Kind
	Status subscriptiondomain.Status
	Price  decimal.Decimal

	// member is set when a single subscription belongs to a bundle.
	member bool
}

func (s *Service) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.Payment, error) {
	method := adapters.NormalizeMethod(req.PaymentMethod)
	currency, err := s.validateCharge(req, method)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	processor, err := s.registry.ProcessorFor(method)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	unlock, err := s.lockTarget(ctx, req.SubscriptionID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	defer unlock()

	tgt, err := s.resolveTarget(ctx, req.UserID, req.SubscriptionID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if tgt.member {
		return paymentdomain.Payment{}, paymentdomain.ErrBilledThroughBundle
	}
	switch tgt.Status {
	case subscriptiondomain.StatusPending:
	case subscriptiondomain.StatusActive:
		return paymentdomain.Payment{}, paymentdomain.ErrAlreadyPaid
	default:
		return paymentdomain.Payment{}, subscriptiondomain.ErrInvalidTransition
	}
	if !req.Amount.Equal(tgt.Price) {
		return paymentdomain.Payment{}, paymentdomain.ErrAmountMismatch
	}

	if err := s.failStaleCharges(ctx, tgt); err != nil {
		return paymentdomain.Payment{}, err
	}
	inFlight, err := s.repo.CountCharges(ctx, s.db, tgt.ID, paymentdomain.StatusPending)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if inFlight > 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrChargeInProgress
	}

	now := s.clock.Now()
	payment := paymentdomain.Payment{
		ID:               s.genID.Generate(),
		UserID:           req.UserID,
		SubscriptionID:   tgt.ID,
		SubscriptionKind: tgt.Kind,
		Amount:           req.Amount,
		Status:           paymentdomain.StatusPending,
		PaymentMethod:    method,
		PaymentDetails:   datatypes.NewJSONType(paymentdomain.Details{Currency: currency}),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return paymentdomain.Payment{}, err
	}

	log := obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), string(tgt.Kind), tgt.ID.String()).
		With(zap.String("payment_id", payment.ID.String()), zap.String("payment_method", method))

	result, procErr := s.callProcessor(ctx, "payment.process", method, payment.ID, func(ctx context.Context) (paymentdomain.ProcessResult, error) {
		return processor.Process(ctx, paymentdomain.ProcessRequest{
			PaymentID: payment.ID,
			Amount:    payment.Amount,
			Currency:  currency,
			Method:    method,
			Details:   payment.Details(),
		})
	})

	// Settlement must be recorded even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	if procErr != nil || !result.Success {
		reason := result.DeclineReason
		outcome := outcomeDeclined
		if procErr != nil {
			reason = "processor_error: " + procErr.Error()
			outcome = outcomeError
		}
		if reason == "" {
			reason = "declined"
		}
		s.obsMetrics.RecordCharge(ctx, method, outcome)
		log.Info("charge not settled", zap.String("outcome", outcome), zap.String("reason", reason))

		failed, err := s.markFailed(ctx, payment, payment.Details(), reason)
		if err != nil {
			return paymentdomain.Payment{}, err
		}
		s.failTargetAfterAttempts(ctx, tgt, log)
		return failed, fmt.Errorf("%w: %s", paymentdomain.ErrPaymentFailed, reason)
	}

	details := payment.Details()
	details.TransactionRef = result.TransactionRef

	var activated []events.Event
	completedAt := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := s.repo.Transition(ctx, tx, paymentdomain.TransitionCmd{
			ID:      payment.ID,
			To:      paymentdomain.StatusCompleted,
			At:      completedAt,
			Details: details,
		})
		if err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("complete payment %s: %w", payment.ID, subscriptiondomain.ErrInvalidTransition)
		}

		activated, err = s.activateTarget(ctx, tx, tgt, payment.ID, completedAt)
		return err
	})
	if err != nil {
		s.compensate(ctx, processor, payment, details, err, log)
		return paymentdomain.Payment{}, err
	}

	payment.Status = paymentdomain.StatusCompleted
	payment.PaidAt = &completedAt
	payment.UpdatedAt = completedAt
	payment.PaymentDetails = datatypes.NewJSONType(details)

	s.obsMetrics.RecordCharge(ctx, method, outcomeCompleted)
	log.Info("charge completed", zap.String("amount", payment.Amount.StringFixed(2)))

	s.emitter.Emit(ctx, append([]events.Event{paymentEvent(events.PaymentCompleted, payment, completedAt)}, activated...)...)
	return payment, nil
}

func (s *Service) validateCharge(req paymentdomain.ChargeRequest, method string) (string, error) {
	if req.UserID == 0 {
		return "", subscriptiondomain.ErrInvalidUser
	}
	if req.SubscriptionID == 0 {
		return "", subscriptiondomain.ErrSubscriptionNotFound
	}
	if method == "" {
		return "", paymentdomain.ErrInvalidMethod
	}
	if err := validateAmount(req.Amount); err != nil {
		return "", err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return "", paymentdomain.ErrInvalidCurrency
	}
	return currency, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return paymentdomain.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return paymentdomain.ErrInvalidAmount
	}
	return nil
}

// resolveTarget looks the id up as a bundle first, then as a single subscription.
func (s *Service) resolveTarget(ctx context.Context, userID, id snowflake.ID) (target, error) {
	bundle, err := s.bundleSvc.FindOwned(ctx, userID, id)
	switch {
	case err == nil:
		return target{
			ID:     bundle.ID,
			UserID: bundle.UserID,
			Kind:   subscriptiondomain.KindMonthly,
			Status: bundle.Status,
			Price:  bundle.TotalPrice,
		}, nil
	case !errors.Is(err, bundledomain.ErrBundleNotFound):
		return target{}, err
	}

	subscription, err := s.subscriptionSvc.FindOwned(ctx, userID, id)
	if err != nil {
		return target{}, err
	}
	return target{
		ID:     subscription.ID,
		UserID: subscription.UserID,
		Kind:   subscriptiondomain.KindSingle,
		Status: subscription.Status,
		Price:  subscription.Price,
		member: subscription.InBundle(),
	}, nil
}

func (s *Service) activateTarget(ctx context.Context, tx *gorm.DB, tgt target, paymentID snowflake.ID, at time.Time) ([]events.Event, error) {
	if tgt.Kind == subscriptiondomain.KindMonthly {
		bundle, err := s.bundleSvc.ActivateBundle(ctx, tx, tgt.ID, paymentID)
		if err != nil {
			return nil, err
		}
		evts := make([]events.Event, 0, len(bundle.MemberSubscriptionIDs)+1)
		evts = append(evts, activationEvent(bundle.UserID, bundle.ID, subscriptiondomain.KindMonthly, at))
		for _, memberID := range bundle.MemberSubscriptionIDs {
			evts = append(evts, activationEvent(bundle.UserID, memberID, subscriptiondomain.KindSingle, at))
		}
		return evts, nil
	}

	subscription, err := s.subscriptionSvc.ActivateTx(ctx, tx, tgt.ID)
	if err != nil {
		return nil, err
	}
	return []events.Event{activationEvent(subscription.UserID, subscription.ID, subscriptiondomain.KindSingle, at)}, nil
}

// compensate reverses a processor charge whose completion could not be
// recorded. Failing to do so leaves money captured for an inactive
// subscription and is logged as an integrity violation.
func (s *Service) compensate(ctx context.Context, processor paymentdomain.Processor, payment paymentdomain.Payment, details paymentdomain.Details, cause error, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)

	result, err := s.callProcessor(ctx, "payment.compensate", payment.PaymentMethod, payment.ID, func(ctx context.Context) (paymentdomain.ProcessResult, error) {
		return processor.Refund(ctx, details.TransactionRef, payment.Amount)
	})
	if err == nil && !result.Success {
		err = errors.New(result.DeclineReason)
	}
	if err != nil {
		log.Error("charge compensation failed",
			zap.Bool("integrity_violation", true),
			zap.String("transaction_ref", details.TransactionRef),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	} else {
		log.Warn("charge compensated after completion failure", zap.Error(cause))
	}

	if _, markErr := s.markFailed(ctx, payment, details, "completion_failed: "+cause.Error()); markErr != nil {
		log.Error("mark compensated payment failed",
			zap.Bool("integrity_violation", true),
			zap.Error(markErr),
		)
	}
	s.obsMetrics.RecordCharge(ctx, payment.PaymentMethod, outcomeCompensated)
}

func (s *Service) lockTarget(ctx context.Context, id snowflake.ID) (func(), error) {
	unlock, ok, err := s.locks.TryLock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock target %s: %w", id, err)
	}
	if !ok {
		return nil, paymentdomain.ErrChargeInProgress
	}
	return unlock, nil
}

// failStaleCharges fails PENDING charges older than pendingStaleAfter so an
// abandoned attempt stops blocking retries.
func (s *Service) failStaleCharges(ctx context.Context, tgt target) error {
	if s.pendingStaleAfter <= 0 {
		return nil
	}
	now := s.clock.Now()
	failed, err := s.repo.FailStaleCharges(ctx, s.db, tgt.ID, now.Add(-s.pendingStaleAfter), now, staleChargeReason)
	if err != nil {
		return err
	}
	if failed > 0 {
		obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), string(tgt.Kind), tgt.ID.String()).
			Warn("abandoned pending charges failed",
				zap.Int64("count", failed),
				zap.Duration("stale_after", s.pendingStaleAfter),
			)
	}
	return nil
}

func (s *Service) markFailed(ctx context.Context, payment paymentdomain.Payment, details paymentdomain.Details, reason string) (paymentdomain.Payment, error) {
	now := s.clock.Now()
	changed, err := s.repo.Transition(ctx, s.db, paymentdomain.TransitionCmd{
		ID:            payment.ID,
		To:            paymentdomain.StatusFailed,
		At:            now,
		Details:       details,
		FailureReason: reason,
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if !changed {
		return paymentdomain.Payment{}, fmt.Errorf("fail payment %s: %w", payment.ID, subscriptiondomain.ErrInvalidTransition)
	}

	payment.Status = paymentdomain.StatusFailed
	payment.FailureReason = &reason
	payment.PaymentDetails = datatypes.NewJSONType(details)
	payment.UpdatedAt = now
	return payment, nil
}

// failTargetAfterAttempts gives up on a pending target once enough charges
// were declined. The decline itself is already recorded, so errors here are
// only logged.
func (s *Service) failTargetAfterAttempts(ctx context.Context, tgt target, log *zap.Logger) {
	if s.maxFailedAttempts <= 0 {
		return
	}
	failedCount, err := s.repo.CountCharges(ctx, s.db, tgt.ID, paymentdomain.StatusFailed)
	if err != nil {
		log.Warn("count failed charges", zap.Error(err))
		return
	}
	if failedCount < int64(s.maxFailedAttempts) {
		return
	}

	if tgt.Kind == subscriptiondomain.KindMonthly {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.bundleSvc.FailBundle(ctx, tx, tgt.ID)
		})
	} else {
		err = s.subscriptionSvc.Fail(ctx, tgt.ID)
	}
	switch {
	case err == nil:
		log.Info("subscription failed after declined charges", zap.Int64("failed_attempts", failedCount))
	case errors.Is(err, subscriptiondomain.ErrInvalidTransition):
		log.Info("subscription left pending state before it could be failed")
	default:
		log.Warn("fail subscription after declined charges", zap.Error(err))
	}
}

func (s *Service) Refund(ctx context.Context, req paymentdomain.RefundRequest) (paymentdomain.Payment, error) {
	if req.UserID == 0 {
		return paymentdomain.Payment{}, subscriptiondomain.ErrInvalidUser
	}
	if req.SubscriptionID == 0 {
		return paymentdomain.Payment{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	if err := validateAmount(req.Amount); err != nil {
		return paymentdomain.Payment{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultRefundReason
	}

	unlock, err := s.lockTarget(ctx, req.SubscriptionID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	defer unlock()

	tgt, err := s.resolveTarget(ctx, req.UserID, req.SubscriptionID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	ledger, err := s.repo.ListBySubscription(ctx, s.db, tgt.ID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	original := latestCompletedCharge(ledger)
	if original == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrNothingToRefund
	}
	summary := paymentdomain.Summarize(ledger)
	if req.Amount.GreaterThan(summary.NetAmount) {
		return paymentdomain.Payment{}, paymentdomain.ErrRefundExceedsNet
	}

	processor, err := s.registry.ProcessorFor(original.PaymentMethod)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	originalDetails := original.Details()
	details := paymentdomain.Details{
		Currency:          originalDetails.Currency,
		RefundReason:      reason,
		OriginalPaymentID: original.ID.String(),
	}
	now := s.clock.Now()
	refund := paymentdomain.Payment{
		ID:               s.genID.Generate(),
		UserID:           req.UserID,
		SubscriptionID:   tgt.ID,
		SubscriptionKind: tgt.Kind,
		Amount:           req.Amount.Neg(),
		Status:           paymentdomain.StatusPending,
		PaymentMethod:    original.PaymentMethod,
		PaymentDetails:   datatypes.NewJSONType(details),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &refund); err != nil {
		return paymentdomain.Payment{}, err
	}

	log := obslogger.WithSubscription(obslogger.WithContext(ctx, s.log), string(tgt.Kind), tgt.ID.String()).
		With(zap.String("payment_id", refund.ID.String()), zap.String("original_payment_id", original.ID.String()))

	result, procErr := s.callProcessor(ctx, "payment.refund", refund.PaymentMethod, refund.ID, func(ctx context.Context) (paymentdomain.ProcessResult, error) {
		return processor.Refund(ctx, originalDetails.TransactionRef, req.Amount)
	})

	ctx = context.WithoutCancel(ctx)
	if procErr != nil || !result.Success {
		failure := result.DeclineReason
		if procErr != nil {
			failure = "processor_error: " + procErr.Error()
		}
		if failure == "" {
			failure = "declined"
		}
		s.obsMetrics.RecordRefund(ctx, outcomeDeclined)
		log.Info("refund not settled", zap.String("reason", failure))

		failed, err := s.markFailed(ctx, refund, details, failure)
		if err != nil {
			return paymentdomain.Payment{}, err
		}
		return failed, fmt.Errorf("%w: %s", paymentdomain.ErrRefundFailed, failure)
	}

	details.TransactionRef = result.TransactionRef
	completedAt := s.clock.Now()
	changed, err := s.repo.Transition(ctx, s.db, paymentdomain.TransitionCmd{
		ID:      refund.ID,
		To:      paymentdomain.StatusCompleted,
		At:      completedAt,
		Details: details,
	})
	if err == nil && !changed {
		err = fmt.Errorf("complete refund %s: %w", refund.ID, subscriptiondomain.ErrInvalidTransition)
	}
	if err != nil {
		log.Error("refund settled by processor but not recorded",
			zap.Bool("integrity_violation", true),
			zap.String("transaction_ref", details.TransactionRef),
			zap.Error(err),
		)
		return paymentdomain.Payment{}, err
	}

	refund.Status = paymentdomain.StatusCompleted
	refund.PaidAt = &completedAt
	refund.UpdatedAt = completedAt
	refund.PaymentDetails = datatypes.NewJSONType(details)

	s.obsMetrics.RecordRefund(ctx, outcomeCompleted)
	log.Info("refund completed", zap.String("amount", req.Amount.StringFixed(2)))

	s.emitter.Emit(ctx, paymentEvent(events.PaymentRefunded, refund, completedAt))
	return refund, nil
}

// latestCompletedCharge picks the most recent settled positive payment.
func latestCompletedCharge(ledger []paymentdomain.Payment) *paymentdomain.Payment {
	var latest *paymentdomain.Payment
	for i := range ledger {
		p := &ledger[i]
		if p.Status != paymentdomain.StatusCompleted || !p.Amount.IsPositive() {
			continue
		}
		if latest == nil || settledAt(*p).After(settledAt(*latest)) {
			latest = p
		}
	}
	return latest
}

func settledAt(p paymentdomain.Payment) time.Time {
	if p.PaidAt != nil {
		return *p.PaidAt
	}
	return p.CreatedAt
}

func (s *Service) Summarize(ctx context.Context, userID, subscriptionID snowflake.ID) (paymentdomain.Summary, error) {
	ledger, err := s.ListPayments(ctx, userID, subscriptionID)
	if err != nil {
		return paymentdomain.Summary{}, err
	}
	return paymentdomain.Summarize(ledger), nil
}

func (s *Service) ListPayments(ctx context.Context, userID, subscriptionID snowflake.ID) ([]paymentdomain.Payment, error) {
	if userID == 0 {
		return nil, subscriptiondomain.ErrInvalidUser
	}
	tgt, err := s.resolveTarget(ctx, userID, subscriptionID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.repo.ListBySubscription(ctx, s.db, tgt.ID)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = []paymentdomain.Payment{}
	}
	return ledger, nil
}

func (s *Service) callProcessor(
	ctx context.Context,
	spanName string,
	method string,
	paymentID snowflake.ID,
	call func(ctx context.Context) (paymentdomain.ProcessResult, error),
) (paymentdomain.ProcessResult, error) {
	ctx, span := s.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.SafeAttributes(
			attribute.String("payment.method", method),
			attribute.String("payment.id", paymentID.String()),
		)...),
	)
	defer span.End()

	start := time.Now()
	result, err := call(ctx)
	s.obsMetrics.ObserveProcessorCall(ctx, method, time.Since(start))

	switch {
	case err != nil:
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "processor_error")
	case !result.Success:
		span.SetStatus(codes.Error, "declined")
	default:
		span.SetStatus(codes.Ok, "")
	}
	return result, err
}

func paymentEvent(eventType events.Type, payment paymentdomain.Payment, at time.Time) events.Event {
	evt := events.New(eventType, at)
	evt.UserID = payment.UserID.String()
	evt.SubscriptionID = payment.SubscriptionID.String()
	evt.SubscriptionKind = string(payment.SubscriptionKind)
	evt.PaymentID = payment.ID.String()
	evt.Amount = payment.Amount.StringFixed(2)
	evt.Status = string(payment.Status)
	return evt
}

func activationEvent(userID, subscriptionID snowflake.ID, kind subscriptiondomain.Kind, at time.Time) events.Event {
	evt := events.New(events.SubscriptionActivated, at)
	evt.UserID = userID.String()
	evt.SubscriptionID = subscriptionID.String()
	evt.SubscriptionKind = string(kind)
	evt.Status = string(subscriptiondomain.StatusActive)
	return evt
}
