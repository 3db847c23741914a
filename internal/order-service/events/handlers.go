package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/contracts"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus"
)

// OrderSaga is the part of the order service the handlers drive.
type OrderSaga interface {
	CompletePayment(ctx context.Context, orderID, paymentID string, completedAt time.Time, userID string) error
	CompleteCancellation(ctx context.Context, orderID, paymentID, reason, userID string) error
	HandleRefundFailure(ctx context.Context, orderID, reason, userID string) error
}

// Handlers returns the order module's event handlers for registration.
func Handlers(orders OrderSaga) []eventbus.Handler {
	return []eventbus.Handler{
		eventbus.On(contracts.PaymentCompletedEvent, paymentCompleted(orders)),
		eventbus.On(contracts.PaymentCanceledEvent, paymentCanceled(orders)),
	}
}

func paymentCompleted(orders OrderSaga) func(context.Context, contracts.PaymentCompleted) error {
	return func(ctx context.Context, ev contracts.PaymentCompleted) error {
		slog.InfoContext(ctx, "payment completed event received", "order_id", ev.OrderID, "payment_id", ev.PaymentID)
		return orders.CompletePayment(ctx, ev.OrderID, ev.PaymentID, ev.CompletedAt, ev.UserID)
	}
}

// paymentCanceled finishes the cancellation when the refund went through
// and runs the refund-failure compensation otherwise. A refused refund is
// not an error of this handler.
func paymentCanceled(orders OrderSaga) func(context.Context, contracts.PaymentCanceled) error {
	return func(ctx context.Context, ev contracts.PaymentCanceled) error {
		slog.InfoContext(ctx, "payment canceled event received",
			"order_id", ev.OrderID, "payment_id", ev.PaymentID, "refund_successful", ev.IsRefundSuccessful)

		if ev.IsRefundSuccessful {
			return orders.CompleteCancellation(ctx, ev.OrderID, ev.PaymentID, ev.CancelReason, ev.UserID)
		}
		slog.ErrorContext(ctx, "refund failed", "order_id", ev.OrderID, "payment_id", ev.PaymentID, "reason", ev.RefundFailureReason)
		return orders.HandleRefundFailure(ctx, ev.OrderID, ev.RefundFailureReason, ev.UserID)
	}
}
