package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CancelWindow is how long after payment an order can still be canceled.
const CancelWindow = 5 * time.Minute

// SystemActor marks changes made by event handlers rather than a user.
const SystemActor = "SYSTEM"

type Order struct {
	ID      string
	Orderer Orderer

	// RestaurantID is optional. Orders that carry it report their completion
	// to the restaurant module.
	RestaurantID string

	Items   []OrderItem
	Payment Payment
	Status  OrderStatus

	CancelReason string
	CanceledAt   time.Time
	CompletedAt  time.Time

	// RefundFailure is set when a refund was refused and the order waits
	// for manual follow-up.
	RefundFailure string

	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy string
}

type Orderer struct {
	UserID          string
	Name            string
	Phone           string
	Address         string
	DeliveryRequest string
}

type OrderItem struct {
	MenuID    string
	MenuName  string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Payment tracks the payment side of an order. PaymentKey comes from the
// client at checkout; PaymentID is assigned once the payment module
// approves the charge.
type Payment struct {
	PaymentKey  string
	PaymentID   string
	CompletedAt time.Time
}

type OrderStatus string

const (
	StatusPaymentPending   OrderStatus = "PAYMENT_PENDING"
	StatusPaymentCompleted OrderStatus = "PAYMENT_COMPLETED"
	StatusPending          OrderStatus = "PENDING"
	StatusConfirmed        OrderStatus = "CONFIRMED"
	StatusPreparing        OrderStatus = "PREPARING"
	StatusDelivering       OrderStatus = "DELIVERING"
	StatusCompleted        OrderStatus = "COMPLETED"
	StatusCanceled         OrderStatus = "CANCELED"
)

// IsPaymentCompleted reports whether the order has moved past payment.
func (s OrderStatus) IsPaymentCompleted() bool {
	switch s {
	case StatusPaymentCompleted, StatusPending, StatusConfirmed, StatusPreparing, StatusDelivering, StatusCompleted:
		return true
	}
	return false
}

func (s OrderStatus) IsCancelable() bool {
	switch s {
	case StatusPaymentPending, StatusPaymentCompleted, StatusPending, StatusConfirmed, StatusPreparing:
		return true
	}
	return false
}

// NewOrder validates the input and returns an order waiting for payment.
func NewOrder(id string, orderer Orderer, items []OrderItem, paymentKey string, now time.Time) (*Order, error) {
	if orderer.UserID == "" || orderer.Address == "" {
		return nil, ErrInvalidOrderer
	}
	if len(items) == 0 {
		return nil, ErrInvalidItems
	}
	for _, it := range items {
		if it.MenuName == "" || it.Quantity <= 0 || !it.UnitPrice.IsPositive() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidItems, it.MenuName)
		}
	}
	if paymentKey == "" {
		return nil, ErrInvalidPayment
	}

	return &Order{
		ID:        id,
		Orderer:   orderer,
		Items:     append([]OrderItem(nil), items...),
		Payment:   Payment{PaymentKey: paymentKey},
		Status:    StatusPaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
		UpdatedBy: orderer.UserID,
	}, nil
}

func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Label is the human-readable order name shown on the payment screen:
// the first item's name, followed by "외 N건" when there are more items.
func (o *Order) Label() string {
	switch len(o.Items) {
	case 0:
		return "주문"
	case 1:
		return o.Items[0].MenuName
	}
	return fmt.Sprintf("%s 외 %d건", o.Items[0].MenuName, len(o.Items)-1)
}

func (o *Order) IsOrderedBy(userID string) bool {
	return o.Orderer.UserID == userID
}

// CompletePayment records the approved payment. Only PAYMENT_PENDING orders
// accept it.
func (o *Order) CompletePayment(paymentID string, at time.Time, by string) error {
	if o.Status != StatusPaymentPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, StatusPaymentCompleted)
	}
	if paymentID == "" {
		return ErrInvalidPayment
	}
	o.Status = StatusPaymentCompleted
	o.Payment.PaymentID = paymentID
	o.Payment.CompletedAt = at
	o.audit(at, by)
	return nil
}

// ToPending hands a paid order to the restaurant queue.
func (o *Order) ToPending(at time.Time, by string) error {
	if o.Status != StatusPaymentCompleted {
		return ErrPaymentNotCompleted
	}
	o.Status = StatusPending
	o.audit(at, by)
	return nil
}

// nextStatus is the fulfilment path a paid order follows.
var nextStatus = map[OrderStatus]OrderStatus{
	StatusPending:    StatusConfirmed,
	StatusConfirmed:  StatusPreparing,
	StatusPreparing:  StatusDelivering,
	StatusDelivering: StatusCompleted,
}

// Advance moves the order one step along PENDING -> CONFIRMED ->
// PREPARING -> DELIVERING -> COMPLETED.
func (o *Order) Advance(at time.Time, by string) error {
	next, ok := nextStatus[o.Status]
	if !ok {
		return fmt.Errorf("%w: %s has no next status", ErrInvalidStatusTransition, o.Status)
	}
	o.Status = next
	if next == StatusCompleted {
		o.CompletedAt = at
	}
	o.audit(at, by)
	return nil
}

// CancelableAt reports whether the order may be canceled at t: its status
// allows it and, once paid, t is within CancelWindow of the payment.
func (o *Order) CancelableAt(t time.Time) bool {
	if !o.Status.IsCancelable() {
		return false
	}
	if o.Payment.CompletedAt.IsZero() {
		return true
	}
	return !t.After(o.Payment.CompletedAt.Add(CancelWindow))
}

// Cancel moves the order to CANCELED.
func (o *Order) Cancel(reason string, at time.Time, by string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrCancelReasonRequired
	}
	if o.Status == StatusCanceled {
		return ErrAlreadyCanceled
	}
	if !o.CancelableAt(at) {
		return fmt.Errorf("%w: %s", ErrNotCancelable, o.Status)
	}
	o.Status = StatusCanceled
	o.CancelReason = reason
	o.CanceledAt = at
	o.audit(at, by)
	return nil
}

// CompleteCancellation cancels the order once its refund went through. The
// cancel window was already checked when the cancellation was requested.
func (o *Order) CompleteCancellation(reason string, at time.Time, by string) error {
	if o.Status == StatusCanceled {
		return ErrAlreadyCanceled
	}
	if !o.Status.IsCancelable() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, StatusCanceled)
	}
	o.Status = StatusCanceled
	o.CancelReason = reason
	o.CanceledAt = at
	o.audit(at, by)
	return nil
}

// MarkRefundFailed flags the order for manual review. The status is left
// unchanged: the customer was not refunded, so the order is not canceled.
func (o *Order) MarkRefundFailed(reason string, at time.Time, by string) {
	if reason == "" {
		reason = "refund refused"
	}
	o.RefundFailure = reason
	o.audit(at, by)
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

func (o *Order) audit(at time.Time, by string) {
	o.UpdatedAt = at
	o.UpdatedBy = by
}
