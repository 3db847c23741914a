package app

import (
	"context"
	"sync"

	"github.com/jcmexdev/ecommerce-choreography/internal/payment-service/domain"
)

// Repository persists payments. An order has at most one payment.
type Repository interface {
	// Create fails with domain.ErrDuplicatePayment when the order already has one.
	Create(ctx context.Context, p *domain.Payment) error
	Save(ctx context.Context, p *domain.Payment) error
	Get(ctx context.Context, id string) (*domain.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
}

type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Payment
	byOrder map[string]string
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:    make(map[string]*domain.Payment),
		byOrder: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrder[p.OrderID]; exists {
		return domain.ErrDuplicatePayment
	}
	r.byID[p.ID] = p.Clone()
	r.byOrder[p.OrderID] = p.ID
	return nil
}

func (r *memoryRepository) Save(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.byID[p.ID] = p.Clone()
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return p.Clone(), nil
}

func (r *memoryRepository) GetByOrderID(_ context.Context, orderID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return r.byID[id].Clone(), nil
}
