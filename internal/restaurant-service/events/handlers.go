// Package events connects the restaurant module to the event bus. Its
// handlers keep purchase, review and wishlist statistics current.
package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-choreography/internal/contracts"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus"
	"github.com/jcmexdev/ecommerce-choreography/internal/restaurant-service/domain"
)

// RestaurantStats is the part of the restaurant service the handlers drive.
type RestaurantStats interface {
	RecordPurchase(ctx context.Context, restaurantID, orderID string, items []domain.PurchasedMenu) error
	RecordReview(ctx context.Context, restaurantID, reviewID string, rating decimal.Decimal) error
	ChangeWishlist(ctx context.Context, restaurantID, menuID string, added bool) error
}

// Handlers returns the restaurant module's event handlers for registration.
func Handlers(stats RestaurantStats) []eventbus.Handler {
	return []eventbus.Handler{
		eventbus.On(contracts.OrderCompletedEvent, orderCompleted(stats)),
		eventbus.On(contracts.ReviewCreatedEvent, reviewCreated(stats)),
		eventbus.On(contracts.WishlistChangedEvent, wishlistChanged(stats)),
	}
}

func orderCompleted(stats RestaurantStats) func(context.Context, contracts.OrderCompleted) error {
	return func(ctx context.Context, ev contracts.OrderCompleted) error {
		slog.InfoContext(ctx, "order completed event received", "order_id", ev.OrderID, "restaurant_id", ev.RestaurantID)

		items := make([]domain.PurchasedMenu, len(ev.MenuItems))
		for i, it := range ev.MenuItems {
			items[i] = domain.PurchasedMenu{MenuID: it.MenuID, Quantity: it.Quantity}
		}
		return stats.RecordPurchase(ctx, ev.RestaurantID, ev.OrderID, items)
	}
}

func reviewCreated(stats RestaurantStats) func(context.Context, contracts.ReviewCreated) error {
	return func(ctx context.Context, ev contracts.ReviewCreated) error {
		slog.InfoContext(ctx, "review created event received",
			"review_id", ev.ReviewID, "restaurant_id", ev.RestaurantID, "rating", ev.Rating.String())
		return stats.RecordReview(ctx, ev.RestaurantID, ev.ReviewID, ev.Rating)
	}
}

func wishlistChanged(stats RestaurantStats) func(context.Context, contracts.WishlistChanged) error {
	return func(ctx context.Context, ev contracts.WishlistChanged) error {
		slog.InfoContext(ctx, "wishlist changed event received",
			"restaurant_id", ev.RestaurantID, "menu_id", ev.MenuID, "action", ev.Action)
		return stats.ChangeWishlist(ctx, ev.RestaurantID, ev.MenuID, ev.Action == contracts.WishlistAdded)
	}
}

// RestaurantEventPublisher raises the customer-facing restaurant events.
type RestaurantEventPublisher struct {
	publisher eventbus.Publisher
}

// NewRestaurantEventPublisher uses p, or the publisher carried by the
// context when p is nil.
func NewRestaurantEventPublisher(p eventbus.Publisher) *RestaurantEventPublisher {
	return &RestaurantEventPublisher{publisher: p}
}

// PublishReviewCreated raises ReviewCreated for a new review and returns
// the review id.
func (p *RestaurantEventPublisher) PublishReviewCreated(ctx context.Context, restaurantID string, rating decimal.Decimal) (string, error) {
	ev := contracts.ReviewCreated{
		ReviewID:     uuid.NewString(),
		RestaurantID: restaurantID,
		Rating:       rating,
	}
	if err := p.raise(ctx, ev); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "review created", "review_id", ev.ReviewID, "restaurant_id", restaurantID)
	return ev.ReviewID, nil
}

func (p *RestaurantEventPublisher) PublishWishlistChanged(ctx context.Context, restaurantID, menuID string, action contracts.WishlistAction) error {
	return p.raise(ctx, contracts.WishlistChanged{
		RestaurantID: restaurantID,
		MenuID:       menuID,
		Action:       action,
	})
}

func (p *RestaurantEventPublisher) raise(ctx context.Context, ev eventbus.Event) error {
	if p.publisher != nil {
		return p.publisher.Raise(ctx, ev)
	}
	return eventbus.Raise(ctx, ev)
}
