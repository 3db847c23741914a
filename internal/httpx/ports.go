package httpx

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-choreography/internal/contracts"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
	restaurantdomain "github.com/jcmexdev/ecommerce-choreography/internal/restaurant-service/domain"
)

// OrderService is the part of the order module the HTTP layer drives.
type OrderService interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID, reason, userID string) error
	AdvanceOrder(ctx context.Context, orderID, actor string) (*domain.Order, error)
}

// RestaurantService is the part of the restaurant module the HTTP layer reads
// and registers through.
type RestaurantService interface {
	RegisterRestaurant(ctx context.Context, name string, menus []restaurantdomain.Menu) (*restaurantdomain.Restaurant, error)
	GetRestaurant(ctx context.Context, id string) (*restaurantdomain.Restaurant, error)
}

// RestaurantFeedback raises the customer events that update restaurant
// statistics asynchronously.
type RestaurantFeedback interface {
	PublishReviewCreated(ctx context.Context, restaurantID string, rating decimal.Decimal) (string, error)
	PublishWishlistChanged(ctx context.Context, restaurantID, menuID string, action contracts.WishlistAction) error
}

// EventLogReader exposes the event log for inspection.
type EventLogReader interface {
	Get(ctx context.Context, id string) (*eventlog.Record, error)
	List(ctx context.Context, f eventlog.Filter) ([]*eventlog.Record, error)
}
