package app

import (
	"context"
	"sync"

	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
)

// Repository persists orders. Update applies fn atomically, which is how
// concurrent saga handlers for one order are serialised.
type Repository interface {
	Save(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	Update(ctx context.Context, id string, fn func(o *domain.Order) error) (*domain.Order, error)
}

type memoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		orders: make(map[string]*domain.Order),
	}
}

func (r *memoryRepository) Save(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// Update runs fn on a copy and stores it only when fn succeeds.
func (r *memoryRepository) Update(_ context.Context, id string, fn func(o *domain.Order) error) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.orders[id] = next
	return next.Clone(), nil
}
