package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
)

// CreateOrderInput is everything a customer submits at checkout.
type CreateOrderInput struct {
	Orderer      domain.Orderer
	Items        []domain.OrderItem
	PaymentKey   string
	RestaurantID string

	// IdempotencyKey makes a retried checkout return the first order
	// instead of placing a second one. Empty disables the check.
	IdempotencyKey string
}

// Service owns the order side of the saga.
type Service struct {
	repo        Repository
	events      EventPublisher
	notifier    Notifier
	idempotency IdempotencyStore
	now         func() time.Time
}

type Option func(*Service)

// WithIdempotency deduplicates CreateOrder calls that carry the same key.
func WithIdempotency(store IdempotencyStore) Option {
	return func(s *Service) {
		s.idempotency = store
	}
}

func NewService(repo Repository, events EventPublisher, notifier Notifier, opts ...Option) *Service {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	s := &Service{
		repo:     repo,
		events:   events,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder stores a PAYMENT_PENDING order and raises PaymentRequested.
// The payment itself happens asynchronously. A repeated idempotency key
// returns the order the first call created.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	key := s.idempotencyKey(in)
	if key != "" {
		existing, reserved, err := s.idempotency.Reserve(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !reserved {
			if existing == "" {
				return nil, domain.ErrRequestInProgress
			}
			slog.InfoContext(ctx, "replaying order for idempotency key", "order_id", existing, "user_id", in.Orderer.UserID)
			return s.repo.Get(ctx, existing)
		}
	}

	order, err := s.placeOrder(ctx, in)
	if err != nil {
		if key != "" {
			if rerr := s.idempotency.Release(ctx, key); rerr != nil {
				slog.WarnContext(ctx, "release idempotency key", "error", rerr)
			}
		}
		return nil, err
	}
	if key != "" {
		if err := s.idempotency.Complete(ctx, key, order.ID); err != nil {
			slog.WarnContext(ctx, "complete idempotency key", "order_id", order.ID, "error", err)
		}
	}

	if err := s.events.PublishPaymentRequested(ctx, order); err != nil {
		return order, fmt.Errorf("request payment for order %s: %w", order.ID, err)
	}
	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	order, err := domain.NewOrder(uuid.NewString(), in.Orderer, in.Items, in.PaymentKey, s.now())
	if err != nil {
		return nil, err
	}
	order.RestaurantID = in.RestaurantID
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}
	slog.InfoContext(ctx, "order created", "order_id", order.ID, "user_id", order.Orderer.UserID, "status", order.Status)
	return order, nil
}

// idempotencyKey scopes the client key to the user so two customers can
// never collide.
func (s *Service) idempotencyKey(in CreateOrderInput) string {
	if s.idempotency == nil || in.IdempotencyKey == "" {
		return ""
	}
	return in.Orderer.UserID + ":" + in.IdempotencyKey
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.Get(ctx, id)
}

// CancelOrder checks that the customer may cancel and asks payments for a
// refund. The order only becomes CANCELED once the refund is confirmed.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason, userID string) error {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.IsOrderedBy(userID) {
		return domain.ErrForbidden
	}
	if reason == "" {
		return domain.ErrCancelReasonRequired
	}
	if order.Status == domain.StatusCanceled {
		return domain.ErrAlreadyCanceled
	}
	if order.Status == domain.StatusPaymentPending {
		// nothing to refund yet; the payment may still be in flight
		return domain.ErrPaymentNotCompleted
	}
	if !order.CancelableAt(s.now()) {
		return fmt.Errorf("%w: %s", domain.ErrNotCancelable, order.Status)
	}

	if err := s.events.PublishOrderCancelRequested(ctx, order, reason, userID); err != nil {
		return fmt.Errorf("request refund for order %s: %w", orderID, err)
	}
	slog.InfoContext(ctx, "order cancel requested", "order_id", orderID, "payment_id", order.Payment.PaymentID)
	return nil
}

// AdvanceOrder moves a paid order to its next fulfilment status. Reaching
// COMPLETED raises OrderCompleted for orders placed at a restaurant.
func (s *Service) AdvanceOrder(ctx context.Context, orderID, actor string) (*domain.Order, error) {
	order, err := s.repo.Update(ctx, orderID, func(o *domain.Order) error {
		return o.Advance(s.now(), actor)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "order advanced", "order_id", orderID, "status", order.Status, "by", actor)

	if order.Status == domain.StatusCompleted && order.RestaurantID != "" {
		if err := s.events.PublishOrderCompleted(ctx, order); err != nil {
			return order, fmt.Errorf("report completion of order %s: %w", orderID, err)
		}
	}
	return order, nil
}

// CompletePayment applies an approved payment and moves the order on to
// PENDING. Redelivery for an order that is already paid is a no-op.
func (s *Service) CompletePayment(ctx context.Context, orderID, paymentID string, completedAt time.Time, userID string) error {
	skipped := false
	order, err := s.repo.Update(ctx, orderID, func(o *domain.Order) error {
		if !o.IsOrderedBy(userID) {
			slog.ErrorContext(ctx, "payment user mismatch", "order_id", orderID, "expected_user", o.Orderer.UserID, "actual_user", userID)
			return domain.ErrForbidden
		}
		if o.Status.IsPaymentCompleted() {
			skipped = true
			return nil
		}
		if err := o.CompletePayment(paymentID, completedAt, domain.SystemActor); err != nil {
			return err
		}
		return o.ToPending(s.now(), domain.SystemActor)
	})
	if err != nil {
		return fmt.Errorf("complete payment for order %s: %w", orderID, err)
	}

	if skipped {
		slog.WarnContext(ctx, "order already paid", "order_id", orderID, "status", order.Status)
		return nil
	}
	slog.InfoContext(ctx, "order paid", "order_id", orderID, "payment_id", paymentID, "status", order.Status)
	return nil
}

// CompleteCancellation cancels the order after a successful refund.
func (s *Service) CompleteCancellation(ctx context.Context, orderID, paymentID, reason, userID string) error {
	_, err := s.repo.Update(ctx, orderID, func(o *domain.Order) error {
		if o.Payment.PaymentID != paymentID {
			slog.ErrorContext(ctx, "refund payment mismatch", "order_id", orderID, "expected_payment", o.Payment.PaymentID, "actual_payment", paymentID)
			return fmt.Errorf("%w: payment %s does not belong to order", domain.ErrInvalidPayment, paymentID)
		}
		return o.CompleteCancellation(reason, s.now(), domain.SystemActor)
	})
	if errors.Is(err, domain.ErrAlreadyCanceled) {
		slog.WarnContext(ctx, "order already canceled", "order_id", orderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete cancellation for order %s: %w", orderID, err)
	}

	slog.InfoContext(ctx, "order canceled", "order_id", orderID, "payment_id", paymentID, "canceled_by", userID)
	return nil
}

// HandleRefundFailure is the compensating path for a refused refund: the
// order is flagged and an operator is notified. It does not fail for the
// refusal itself, so the event is not retried.
func (s *Service) HandleRefundFailure(ctx context.Context, orderID, reason, userID string) error {
	order, err := s.repo.Update(ctx, orderID, func(o *domain.Order) error {
		o.MarkRefundFailed(reason, s.now(), domain.SystemActor)
		return nil
	})
	if err != nil {
		return fmt.Errorf("flag refund failure for order %s: %w", orderID, err)
	}

	cause := fmt.Errorf("%w: %s", domain.ErrRefundFailed, order.RefundFailure)
	if err := s.notifier.NotifyRefundFailure(ctx, order, cause); err != nil {
		return fmt.Errorf("notify refund failure for order %s: %w", orderID, err)
	}

	slog.WarnContext(ctx, "refund failed, order flagged for manual handling",
		"order_id", orderID, "reason", order.RefundFailure, "user_id", userID)
	return nil
}
