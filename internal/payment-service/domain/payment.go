package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound     = errors.New("payment: not found")
	ErrDuplicatePayment    = errors.New("payment: order already has a payment")
	ErrInvalidPayment      = errors.New("payment: invalid payment")
	ErrInvalidAmount       = errors.New("payment: invalid amount")
	ErrNotCancellable      = errors.New("payment: not cancellable")
	ErrRefundExceedsAmount = errors.New("payment: refund exceeds remaining amount")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

type Payment struct {
	ID         string
	OrderID    string
	UserID     string
	PaymentKey string
	Amount     decimal.Decimal
	Status     Status

	ApprovedAt    time.Time
	FailureReason string

	RefundedAmount decimal.Decimal
	CancelReason   string
	CanceledAt     time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewPayment(id, orderID, userID, paymentKey string, amount decimal.Decimal, now time.Time) (*Payment, error) {
	if orderID == "" || userID == "" || paymentKey == "" {
		return nil, ErrInvalidPayment
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return &Payment{
		ID:         id,
		OrderID:    orderID,
		UserID:     userID,
		PaymentKey: paymentKey,
		Amount:     amount,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (p *Payment) Approve(at time.Time) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: approve from %s", ErrInvalidPayment, p.Status)
	}
	p.Status = StatusApproved
	p.ApprovedAt = at
	p.UpdatedAt = at
	return nil
}

func (p *Payment) Fail(reason string, at time.Time) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: fail from %s", ErrInvalidPayment, p.Status)
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.UpdatedAt = at
	return nil
}

// Remaining is the amount that can still be refunded.
func (p *Payment) Remaining() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// Cancel refunds amount. Only full refunds are supported, so the payment
// always ends CANCELLED.
func (p *Payment) Cancel(amount decimal.Decimal, reason string, at time.Time) error {
	if p.Status != StatusApproved {
		return fmt.Errorf("%w: %s", ErrNotCancellable, p.Status)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(p.Remaining()) {
		return fmt.Errorf("%w: %s > %s", ErrRefundExceedsAmount, amount, p.Remaining())
	}
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.Status = StatusCancelled
	p.CancelReason = reason
	p.CanceledAt = at
	p.UpdatedAt = at
	return nil
}

func (p *Payment) IsPaidBy(userID string) bool {
	return p.UserID == userID
}

func (p *Payment) Clone() *Payment {
	c := *p
	return &c
}
