package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
)

// Sweeper periodically retries FAILED records, settles RETRYING records
// whose attempt was interrupted and replays PENDING records whose dispatch
// was lost.
type Sweeper struct {
	dispatcher *Dispatcher
	cfg        Config
}

func NewSweeper(d *Dispatcher) *Sweeper {
	if d == nil {
		panic("eventbus: nil Dispatcher")
	}
	return &Sweeper{dispatcher: d, cfg: d.cfg}
}

// Run sweeps every RetryInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()

	s.cfg.Logger.InfoContext(ctx, "retry sweeper started",
		"interval", s.cfg.RetryInterval.String(), "max_retries", s.cfg.MaxRetries)
	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.InfoContext(ctx, "retry sweeper stopped")
			return nil
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.cfg.Logger.ErrorContext(ctx, "retry sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce runs a single pass over FAILED records, then settles stalled
// RETRYING records and replays stale PENDING ones.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	failed, err := s.dispatcher.bus.store.List(ctx, eventlog.Filter{
		Status: eventlog.StatusFailed,
		Limit:  s.cfg.RetryBatch,
	})
	if err != nil {
		return fmt.Errorf("eventbus: list failed: %w", err)
	}

	for _, rec := range failed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.dispatcher.Redeliver(ctx, rec); err != nil {
			s.cfg.Logger.ErrorContext(ctx, "redeliver failed", "event", rec.EventName, "event_id", rec.ID, "err", err)
		}
	}

	cutoff := s.cfg.Clock.Now().Add(-s.cfg.PendingGrace)
	if _, err := s.dispatcher.RecoverStalled(ctx, cutoff); err != nil {
		return err
	}
	_, err = s.dispatcher.RecoverPending(ctx, cutoff)
	return err
}
