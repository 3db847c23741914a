// Package contracts holds the events exchanged between the order, payment
// and restaurant modules. Field names are part of the persisted payload
// format.
package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentRequestedEvent     = "PaymentRequested"
	PaymentCompletedEvent     = "PaymentCompleted"
	PaymentCanceledEvent      = "PaymentCanceled"
	OrderCancelRequestedEvent = "OrderCancelRequested"

	OrderCompletedEvent  = "OrderCompleted"
	ReviewCreatedEvent   = "ReviewCreated"
	WishlistChangedEvent = "WishlistChanged"
)

// SagaEvents lists every event the order saga depends on. main requires a
// handler for each before serving traffic.
var SagaEvents = []string{
	PaymentRequestedEvent,
	PaymentCompletedEvent,
	PaymentCanceledEvent,
	OrderCancelRequestedEvent,
}

// RestaurantEvents lists the events that keep restaurant statistics current.
var RestaurantEvents = []string{
	OrderCompletedEvent,
	ReviewCreatedEvent,
	WishlistChangedEvent,
}

// PaymentRequested is raised by the order module when an order is placed.
type PaymentRequested struct {
	OrderID         string          `json:"orderId" validate:"required"`
	UserID          string          `json:"userId" validate:"required"`
	UserName        string          `json:"userName,omitempty"`
	UserPhone       string          `json:"userPhone,omitempty"`
	PaymentKey      string          `json:"paymentKey" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	OrderName       string          `json:"orderName" validate:"required"`
	DeliveryAddress string          `json:"deliveryAddress" validate:"required"`
	DeliveryRequest string          `json:"deliveryRequest,omitempty"`
}

func (PaymentRequested) EventName() string        { return PaymentRequestedEvent }
func (e PaymentRequested) CorrelationKey() string { return e.OrderID }

// PaymentCompleted is raised by the payment module once a payment is approved.
type PaymentCompleted struct {
	OrderID     string    `json:"orderId" validate:"required"`
	PaymentID   string    `json:"paymentId" validate:"required"`
	UserID      string    `json:"userId" validate:"required"`
	CompletedAt time.Time `json:"completedAt" validate:"required"`
}

func (PaymentCompleted) EventName() string        { return PaymentCompletedEvent }
func (e PaymentCompleted) CorrelationKey() string { return e.OrderID }

// PaymentCanceled is raised by the payment module after a refund attempt.
// IsRefundSuccessful false means the gateway refused the refund and the
// order needs manual follow-up.
type PaymentCanceled struct {
	OrderID             string          `json:"orderId" validate:"required"`
	PaymentID           string          `json:"paymentId" validate:"required"`
	UserID              string          `json:"userId" validate:"required"`
	RefundAmount        decimal.Decimal `json:"refundAmount"`
	CancelReason        string          `json:"cancelReason"`
	CanceledAt          time.Time       `json:"canceledAt" validate:"required"`
	IsRefundSuccessful  bool            `json:"isRefundSuccessful"`
	RefundFailureReason string          `json:"refundFailureReason,omitempty"`
}

func (PaymentCanceled) EventName() string        { return PaymentCanceledEvent }
func (e PaymentCanceled) CorrelationKey() string { return e.OrderID }

// OrderCancelRequested is raised by the order module to ask for a refund.
type OrderCancelRequested struct {
	OrderID      string          `json:"orderId" validate:"required"`
	PaymentID    string          `json:"paymentId" validate:"required"`
	UserID       string          `json:"userId" validate:"required"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	CancelReason string          `json:"cancelReason"`
	RequestedAt  time.Time       `json:"requestedAt" validate:"required"`
	CanceledBy   string          `json:"canceledBy" validate:"required"`
}

func (OrderCancelRequested) EventName() string        { return OrderCancelRequestedEvent }
func (e OrderCancelRequested) CorrelationKey() string { return e.OrderID }

// OrderCompleted is raised by the order module when a restaurant order is
// delivered. The restaurant module counts the purchases.
type OrderCompleted struct {
	OrderID      string          `json:"orderId" validate:"required"`
	RestaurantID string          `json:"restaurantId" validate:"required"`
	MenuItems    []OrderMenuItem `json:"menuItems" validate:"dive"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	CompletedAt  time.Time       `json:"completedAt" validate:"required"`
}

type OrderMenuItem struct {
	MenuID   string `json:"menuId" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

func (OrderCompleted) EventName() string        { return OrderCompletedEvent }
func (e OrderCompleted) CorrelationKey() string { return e.OrderID }

// ReviewCreated is raised when a customer rates a restaurant.
type ReviewCreated struct {
	ReviewID     string          `json:"reviewId" validate:"required"`
	RestaurantID string          `json:"restaurantId" validate:"required"`
	Rating       decimal.Decimal `json:"rating"`
}

func (ReviewCreated) EventName() string        { return ReviewCreatedEvent }
func (e ReviewCreated) CorrelationKey() string { return e.RestaurantID }

type WishlistAction string

const (
	WishlistAdded   WishlistAction = "ADDED"
	WishlistRemoved WishlistAction = "REMOVED"
)

// WishlistChanged is raised when a customer adds or removes a restaurant or
// one of its menus from their wishlist. MenuID is empty for the restaurant
// itself.
type WishlistChanged struct {
	RestaurantID string         `json:"restaurantId" validate:"required"`
	MenuID       string         `json:"menuId,omitempty"`
	Action       WishlistAction `json:"action" validate:"required,oneof=ADDED REMOVED"`
}

func (WishlistChanged) EventName() string        { return WishlistChangedEvent }
func (e WishlistChanged) CorrelationKey() string { return e.RestaurantID }
