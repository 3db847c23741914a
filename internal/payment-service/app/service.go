package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-choreography/internal/payment-service/domain"
)

type ApproveInput struct {
	OrderID    string
	UserID     string
	PaymentKey string
	Amount     decimal.Decimal
}

type CancelInput struct {
	OrderID   string
	PaymentID string
	UserID    string
	Amount    decimal.Decimal
	Reason    string
}

// RefundResult is the outcome of Cancel. A refused refund is reported here,
// not as an error.
type RefundResult struct {
	Payment       *domain.Payment
	Successful    bool
	FailureReason string
}

// Service owns payments. Every operation is safe to repeat for the same
// order, since it runs behind at-least-once event delivery.
type Service struct {
	mu      sync.Mutex
	repo    Repository
	gateway Gateway
	now     func() time.Time
}

func NewService(repo Repository, gateway Gateway) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Approve charges the order once. A repeated call returns the payment from
// the first call; a payment left PENDING by a transient gateway error is
// charged again.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.repo.GetByOrderID(ctx, in.OrderID)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		p, err = domain.NewPayment(uuid.NewString(), in.OrderID, in.UserID, in.PaymentKey, in.Amount, s.now())
		if err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case p.Status != domain.StatusPending:
		slog.InfoContext(ctx, "payment already processed", "order_id", in.OrderID, "payment_id", p.ID, "status", p.Status)
		return p, nil
	}

	gerr := s.gateway.Approve(ctx, p.PaymentKey, p.OrderID, p.Amount)
	switch {
	case gerr == nil:
		err = p.Approve(s.now())
	case errors.Is(gerr, ErrDeclined):
		err = p.Fail(gerr.Error(), s.now())
	default:
		return nil, fmt.Errorf("approve payment for order %s: %w", in.OrderID, gerr)
	}
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "payment processed", "order_id", p.OrderID, "payment_id", p.ID, "status", p.Status)
	return p, nil
}

// Cancel refunds a payment through the gateway. Repeating it for a payment
// that is already cancelled reports success again.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.repo.Get(ctx, in.PaymentID)
	if err != nil {
		return RefundResult{}, err
	}
	if p.OrderID != in.OrderID || !p.IsPaidBy(in.UserID) {
		return RefundResult{}, fmt.Errorf("%w: payment %s does not belong to order %s", domain.ErrInvalidPayment, in.PaymentID, in.OrderID)
	}
	if p.Status == domain.StatusCancelled {
		return RefundResult{Payment: p, Successful: true}, nil
	}
	if p.Status != domain.StatusApproved {
		return RefundResult{Payment: p, FailureReason: fmt.Sprintf("payment is %s", p.Status)}, nil
	}

	amount := in.Amount
	if !amount.IsPositive() {
		amount = p.Remaining()
	}

	gerr := s.gateway.Cancel(ctx, p.PaymentKey, in.Reason, amount)
	if errors.Is(gerr, ErrRefundRejected) {
		slog.WarnContext(ctx, "refund rejected", "order_id", p.OrderID, "payment_id", p.ID, "error", gerr)
		return RefundResult{Payment: p, FailureReason: gerr.Error()}, nil
	}
	if gerr != nil {
		return RefundResult{}, fmt.Errorf("refund payment %s: %w", p.ID, gerr)
	}

	if err := p.Cancel(amount, in.Reason, s.now()); err != nil {
		return RefundResult{}, err
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return RefundResult{}, err
	}

	slog.InfoContext(ctx, "payment refunded", "order_id", p.OrderID, "payment_id", p.ID, "amount", amount.String())
	return RefundResult{Payment: p, Successful: true}, nil
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}
