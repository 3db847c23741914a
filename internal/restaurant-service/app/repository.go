package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jcmexdev/ecommerce-choreography/internal/restaurant-service/domain"
)

// Repository persists restaurants. Update applies fn atomically so two
// statistics events for one restaurant never interleave.
type Repository interface {
	Create(ctx context.Context, r *domain.Restaurant) error
	Get(ctx context.Context, id string) (*domain.Restaurant, error)
	Update(ctx context.Context, id string, fn func(r *domain.Restaurant) error) (*domain.Restaurant, error)
}

type memoryRepository struct {
	mu          sync.RWMutex
	restaurants map[string]*domain.Restaurant
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		restaurants: make(map[string]*domain.Restaurant),
	}
}

func (m *memoryRepository) Create(_ context.Context, r *domain.Restaurant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.restaurants[r.ID]; exists {
		return fmt.Errorf("%w: %s already exists", domain.ErrInvalidRestaurant, r.ID)
	}
	m.restaurants[r.ID] = r.Clone()
	return nil
}

func (m *memoryRepository) Get(_ context.Context, id string) (*domain.Restaurant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.restaurants[id]
	if !ok {
		return nil, domain.ErrRestaurantNotFound
	}
	return r.Clone(), nil
}

// Update runs fn on a copy and stores it only when fn succeeds.
func (m *memoryRepository) Update(_ context.Context, id string, fn func(r *domain.Restaurant) error) (*domain.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.restaurants[id]
	if !ok {
		return nil, domain.ErrRestaurantNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.restaurants[id] = next
	return next.Clone(), nil
}
