// Package events connects the payment module to the event bus.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/contracts"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus"
	"github.com/jcmexdev/ecommerce-choreography/internal/payment-service/app"
	"github.com/jcmexdev/ecommerce-choreography/internal/payment-service/domain"
)

// PaymentSaga is the part of the payment service the handlers drive.
type PaymentSaga interface {
	Approve(ctx context.Context, in app.ApproveInput) (*domain.Payment, error)
	Cancel(ctx context.Context, in app.CancelInput) (app.RefundResult, error)
}

// Handlers returns the payment module's event handlers for registration.
// Follow-up events are raised through the publisher in the handler context.
func Handlers(payments PaymentSaga) []eventbus.Handler {
	pub := NewPaymentEventPublisher(nil)
	return []eventbus.Handler{
		eventbus.On(contracts.PaymentRequestedEvent, paymentRequested(payments, pub)),
		eventbus.On(contracts.OrderCancelRequestedEvent, orderCancelRequested(payments, pub)),
	}
}

func paymentRequested(payments PaymentSaga, pub *PaymentEventPublisher) func(context.Context, contracts.PaymentRequested) error {
	return func(ctx context.Context, ev contracts.PaymentRequested) error {
		slog.InfoContext(ctx, "payment requested event received", "order_id", ev.OrderID, "amount", ev.Amount.String())

		p, err := payments.Approve(ctx, app.ApproveInput{
			OrderID:    ev.OrderID,
			UserID:     ev.UserID,
			PaymentKey: ev.PaymentKey,
			Amount:     ev.Amount,
		})
		if err != nil {
			return err
		}
		if p.Status != domain.StatusApproved {
			slog.WarnContext(ctx, "payment not approved", "order_id", ev.OrderID, "status", p.Status, "reason", p.FailureReason)
			return nil
		}
		return pub.PublishPaymentCompleted(ctx, p)
	}
}

func orderCancelRequested(payments PaymentSaga, pub *PaymentEventPublisher) func(context.Context, contracts.OrderCancelRequested) error {
	return func(ctx context.Context, ev contracts.OrderCancelRequested) error {
		slog.InfoContext(ctx, "order cancel requested event received",
			"order_id", ev.OrderID, "payment_id", ev.PaymentID, "refund_amount", ev.RefundAmount.String())

		res, err := payments.Cancel(ctx, app.CancelInput{
			OrderID:   ev.OrderID,
			PaymentID: ev.PaymentID,
			UserID:    ev.UserID,
			Amount:    ev.RefundAmount,
			Reason:    ev.CancelReason,
		})
		if err != nil {
			return err
		}
		return pub.PublishPaymentCanceled(ctx, ev, res)
	}
}

// PaymentEventPublisher raises the events payments send back to orders.
type PaymentEventPublisher struct {
	publisher eventbus.Publisher
	now       func() time.Time
}

// NewPaymentEventPublisher uses p, or the publisher carried by the context
// when p is nil.
func NewPaymentEventPublisher(p eventbus.Publisher) *PaymentEventPublisher {
	return &PaymentEventPublisher{
		publisher: p,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *PaymentEventPublisher) PublishPaymentCompleted(ctx context.Context, pay *domain.Payment) error {
	ev := contracts.PaymentCompleted{
		OrderID:     pay.OrderID,
		PaymentID:   pay.ID,
		UserID:      pay.UserID,
		CompletedAt: pay.ApprovedAt,
	}
	if err := p.raise(ctx, ev); err != nil {
		return err
	}
	slog.InfoContext(ctx, "payment completed published", "order_id", ev.OrderID, "payment_id", ev.PaymentID)
	return nil
}

func (p *PaymentEventPublisher) PublishPaymentCanceled(ctx context.Context, req contracts.OrderCancelRequested, res app.RefundResult) error {
	ev := contracts.PaymentCanceled{
		OrderID:             req.OrderID,
		PaymentID:           req.PaymentID,
		UserID:              req.UserID,
		RefundAmount:        req.RefundAmount,
		CancelReason:        req.CancelReason,
		CanceledAt:          p.now(),
		IsRefundSuccessful:  res.Successful,
		RefundFailureReason: res.FailureReason,
	}
	if res.Payment != nil && !res.Payment.CanceledAt.IsZero() {
		ev.CanceledAt = res.Payment.CanceledAt
	}
	if err := p.raise(ctx, ev); err != nil {
		return err
	}
	slog.InfoContext(ctx, "payment canceled published",
		"order_id", ev.OrderID, "payment_id", ev.PaymentID, "refund_successful", ev.IsRefundSuccessful)
	return nil
}

func (p *PaymentEventPublisher) raise(ctx context.Context, ev eventbus.Event) error {
	if p.publisher != nil {
		return p.publisher.Raise(ctx, ev)
	}
	return eventbus.Raise(ctx, ev)
}
