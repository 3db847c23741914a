package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-choreography/internal/restaurant-service/domain"
)

// Service keeps restaurant statistics in step with what happens in the
// order, review and wishlist flows.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRestaurant creates a restaurant with its menu. Menus without an id
// get one.
func (s *Service) RegisterRestaurant(ctx context.Context, name string, menus []domain.Menu) (*domain.Restaurant, error) {
	menus = append([]domain.Menu(nil), menus...)
	for i := range menus {
		if menus[i].ID == "" {
			menus[i].ID = uuid.NewString()
		}
	}

	r, err := domain.NewRestaurant(uuid.NewString(), name, menus, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create restaurant: %w", err)
	}
	slog.InfoContext(ctx, "restaurant registered", "restaurant_id", r.ID, "menus", len(r.Menus))
	return r, nil
}

func (s *Service) GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error) {
	return s.repo.Get(ctx, id)
}

// RecordPurchase counts a completed order. An unknown restaurant is an
// error; menus deleted since the order was placed are only logged.
func (s *Service) RecordPurchase(ctx context.Context, restaurantID, orderID string, items []domain.PurchasedMenu) error {
	var (
		applied bool
		missing []string
	)
	r, err := s.repo.Update(ctx, restaurantID, func(r *domain.Restaurant) error {
		applied, missing = r.RecordPurchase(orderID, items, s.now())
		return nil
	})
	if err != nil {
		return fmt.Errorf("record purchase for restaurant %s: %w", restaurantID, err)
	}

	for _, id := range missing {
		slog.WarnContext(ctx, "menu not found, purchase not counted", "restaurant_id", restaurantID, "menu_id", id, "order_id", orderID)
	}
	if !applied {
		slog.WarnContext(ctx, "order already counted", "restaurant_id", restaurantID, "order_id", orderID)
		return nil
	}
	slog.InfoContext(ctx, "purchase recorded", "restaurant_id", restaurantID, "order_id", orderID, "purchase_count", r.PurchaseCount)
	return nil
}

// RecordReview folds a new rating into the restaurant's average.
func (s *Service) RecordReview(ctx context.Context, restaurantID, reviewID string, rating decimal.Decimal) error {
	applied := false
	r, err := s.repo.Update(ctx, restaurantID, func(r *domain.Restaurant) error {
		var err error
		applied, err = r.AddReview(reviewID, rating, s.now())
		return err
	})
	if err != nil {
		return fmt.Errorf("record review for restaurant %s: %w", restaurantID, err)
	}

	if !applied {
		slog.WarnContext(ctx, "review already counted", "restaurant_id", restaurantID, "review_id", reviewID)
		return nil
	}
	slog.InfoContext(ctx, "review recorded",
		"restaurant_id", restaurantID, "review_id", reviewID,
		"review_count", r.ReviewCount, "average_rating", r.AverageRating.StringFixed(domain.RatingScale))
	return nil
}

// ChangeWishlist adjusts the restaurant or menu wishlist counter.
func (s *Service) ChangeWishlist(ctx context.Context, restaurantID, menuID string, added bool) error {
	_, err := s.repo.Update(ctx, restaurantID, func(r *domain.Restaurant) error {
		return r.ChangeWishlist(menuID, added, s.now())
	})
	if err != nil {
		return fmt.Errorf("change wishlist for restaurant %s: %w", restaurantID, err)
	}
	slog.InfoContext(ctx, "wishlist changed", "restaurant_id", restaurantID, "menu_id", menuID, "added", added)
	return nil
}
