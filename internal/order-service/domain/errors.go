package domain

import "errors"

var (
	ErrInvalidOrderer          = errors.New("order: invalid orderer")
	ErrInvalidItems            = errors.New("order: invalid order items")
	ErrInvalidPayment          = errors.New("order: invalid payment")
	ErrOrderNotFound           = errors.New("order: not found")
	ErrForbidden               = errors.New("order: forbidden")
	ErrInvalidStatusTransition = errors.New("order: invalid status transition")
	ErrPaymentNotCompleted     = errors.New("order: payment not completed")
	ErrAlreadyCanceled         = errors.New("order: already canceled")
	ErrNotCancelable           = errors.New("order: cannot be canceled")
	ErrCancelReasonRequired    = errors.New("order: cancel reason is required")
	ErrRequestInProgress       = errors.New("order: request with this idempotency key is in progress")

	// ErrRefundFailed is the cause recorded when the payment module could
	// not refund a canceled order. It is resolved by an operator, never by
	// event retries.
	ErrRefundFailed = errors.New("order: refund failed")
)
