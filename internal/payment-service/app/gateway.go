package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrDeclined is returned by a Gateway that refused a charge.
	ErrDeclined = errors.New("payment gateway: declined")
	// ErrRefundRejected is returned by a Gateway that refused a refund.
	ErrRefundRejected = errors.New("payment gateway: refund rejected")
)

// Gateway is the external payment provider. ErrDeclined and
// ErrRefundRejected are business outcomes; any other error is treated as
// transient and retried through the event log.
type Gateway interface {
	Approve(ctx context.Context, paymentKey, orderID string, amount decimal.Decimal) error
	Cancel(ctx context.Context, paymentKey, reason string, amount decimal.Decimal) error
}

// SimulatedGateway approves charges up to a limit and keeps them in memory.
type SimulatedGateway struct {
	mu      sync.Mutex
	limit   decimal.Decimal
	charges map[string]decimal.Decimal
}

// NewSimulatedGateway declines every charge above limit. A zero limit
// approves everything.
func NewSimulatedGateway(limit decimal.Decimal) *SimulatedGateway {
	return &SimulatedGateway{
		limit:   limit,
		charges: make(map[string]decimal.Decimal),
	}
}

func (g *SimulatedGateway) Approve(ctx context.Context, paymentKey, orderID string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	slog.InfoContext(ctx, "gateway charge", "order_id", orderID, "amount", amount.String())
	if g.limit.IsPositive() && amount.GreaterThan(g.limit) {
		slog.WarnContext(ctx, "gateway declined charge", "order_id", orderID, "amount", amount.String(), "limit", g.limit.String())
		return fmt.Errorf("%w: amount %s exceeds limit", ErrDeclined, amount)
	}

	g.charges[paymentKey] = amount
	return nil
}

func (g *SimulatedGateway) Cancel(ctx context.Context, paymentKey, reason string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	charged, ok := g.charges[paymentKey]
	if !ok {
		return fmt.Errorf("%w: no charge for payment key", ErrRefundRejected)
	}
	if amount.GreaterThan(charged) {
		return fmt.Errorf("%w: refund %s exceeds charge %s", ErrRefundRejected, amount, charged)
	}

	slog.InfoContext(ctx, "gateway refund", "amount", amount.String(), "reason", reason)
	delete(g.charges, paymentKey)
	return nil
}
