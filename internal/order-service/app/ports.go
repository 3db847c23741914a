package app

import (
	"context"
	"log/slog"

	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
)

// EventPublisher raises the events the order module sends to payments and
// restaurants.
// events.OrderEventPublisher implements it.
type EventPublisher interface {
	PublishPaymentRequested(ctx context.Context, o *domain.Order) error
	PublishOrderCancelRequested(ctx context.Context, o *domain.Order, reason, canceledBy string) error
	PublishOrderCompleted(ctx context.Context, o *domain.Order) error
}

// IdempotencyStore remembers which order a checkout idempotency key
// produced. Reserve returns reserved=true when the caller now owns the key;
// otherwise orderID is the order the key already produced, or empty while
// the first request is still running.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (orderID string, reserved bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

// Notifier alerts an operator about orders that need manual handling.
type Notifier interface {
	NotifyRefundFailure(ctx context.Context, o *domain.Order, cause error) error
}

// LogNotifier reports through the structured logger.
type LogNotifier struct{}

func (LogNotifier) NotifyRefundFailure(ctx context.Context, o *domain.Order, cause error) error {
	slog.ErrorContext(ctx, "refund failed, manual handling required",
		"order_id", o.ID,
		"payment_id", o.Payment.PaymentID,
		"user_id", o.Orderer.UserID,
		"amount", o.Total().String(),
		"error", cause,
	)
	return nil
}
