// Package events connects the order module to the event bus: it raises the
// events orders send to payments and restaurants and handles the ones
// payments send back.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/contracts"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
)

// OrderEventPublisher builds outbound events from an order's current state.
type OrderEventPublisher struct {
	publisher eventbus.Publisher
	now       func() time.Time
}

var _ app.EventPublisher = (*OrderEventPublisher)(nil)

func NewOrderEventPublisher(p eventbus.Publisher) *OrderEventPublisher {
	return &OrderEventPublisher{
		publisher: p,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *OrderEventPublisher) PublishPaymentRequested(ctx context.Context, o *domain.Order) error {
	ev := contracts.PaymentRequested{
		OrderID:         o.ID,
		UserID:          o.Orderer.UserID,
		UserName:        o.Orderer.Name,
		UserPhone:       o.Orderer.Phone,
		PaymentKey:      o.Payment.PaymentKey,
		Amount:          o.Total(),
		OrderName:       o.Label(),
		DeliveryAddress: o.Orderer.Address,
		DeliveryRequest: o.Orderer.DeliveryRequest,
	}
	if err := p.raise(ctx, ev); err != nil {
		return err
	}

	slog.InfoContext(ctx, "payment requested", "order_id", o.ID, "amount", ev.Amount.String(), "order_name", ev.OrderName)
	return nil
}

// PublishOrderCancelRequested asks for a refund of the full order total.
func (p *OrderEventPublisher) PublishOrderCancelRequested(ctx context.Context, o *domain.Order, reason, canceledBy string) error {
	ev := contracts.OrderCancelRequested{
		OrderID:      o.ID,
		PaymentID:    o.Payment.PaymentID,
		UserID:       o.Orderer.UserID,
		RefundAmount: o.Total(),
		CancelReason: reason,
		RequestedAt:  p.now(),
		CanceledBy:   canceledBy,
	}
	if err := p.raise(ctx, ev); err != nil {
		return err
	}

	slog.InfoContext(ctx, "refund requested", "order_id", o.ID, "payment_id", ev.PaymentID, "amount", ev.RefundAmount.String())
	return nil
}

// PublishOrderCompleted tells the restaurant module which menus were sold.
func (p *OrderEventPublisher) PublishOrderCompleted(ctx context.Context, o *domain.Order) error {
	items := make([]contracts.OrderMenuItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = contracts.OrderMenuItem{MenuID: it.MenuID, Quantity: it.Quantity}
	}
	ev := contracts.OrderCompleted{
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		MenuItems:    items,
		TotalAmount:  o.Total(),
		CompletedAt:  o.CompletedAt,
	}
	if err := p.raise(ctx, ev); err != nil {
		return err
	}

	slog.InfoContext(ctx, "order completion reported", "order_id", o.ID, "restaurant_id", o.RestaurantID)
	return nil
}

// raise uses the injected publisher, or the one carried by ctx when the
// call comes from inside a handler.
func (p *OrderEventPublisher) raise(ctx context.Context, ev eventbus.Event) error {
	if p.publisher != nil {
		return p.publisher.Raise(ctx, ev)
	}
	return eventbus.Raise(ctx, ev)
}
