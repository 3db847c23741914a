package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-choreography/internal/contracts"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
	restaurantdomain "github.com/jcmexdev/ecommerce-choreography/internal/restaurant-service/domain"
)

type CreateOrderRequest struct {
	UserID          string               `json:"userId" validate:"required"`
	UserName        string               `json:"userName" validate:"required"`
	UserPhone       string               `json:"userPhone" validate:"required"`
	DeliveryAddress string               `json:"deliveryAddress" validate:"required"`
	DeliveryRequest string               `json:"deliveryRequest"`
	PaymentKey      string               `json:"paymentKey" validate:"required"`
	RestaurantID    string               `json:"restaurantId"`
	Items           []CreateOrderItemDTO `json:"items" validate:"required,min=1,dive"`
}

type CreateOrderItemDTO struct {
	MenuID    string          `json:"menuId" validate:"required"`
	MenuName  string          `json:"menuName" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type CancelOrderRequest struct {
	UserID string `json:"userId" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type AdvanceOrderRequest struct {
	Actor string `json:"actor" validate:"required"`
}

type CreateRestaurantRequest struct {
	Name  string          `json:"name" validate:"required"`
	Menus []CreateMenuDTO `json:"menus" validate:"dive"`
}

type CreateMenuDTO struct {
	ID    string          `json:"id"`
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price"`
}

type CreateReviewRequest struct {
	Rating decimal.Decimal `json:"rating"`
}

type WishlistRequest struct {
	MenuID string                   `json:"menuId"`
	Action contracts.WishlistAction `json:"action" validate:"required,oneof=ADDED REMOVED"`
}

type RestaurantResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	PurchaseCount int64          `json:"purchaseCount"`
	WishlistCount int64          `json:"wishlistCount"`
	ReviewCount   int64          `json:"reviewCount"`
	AverageRating string         `json:"averageRating"`
	Menus         []MenuResponse `json:"menus"`
	UpdatedAt     string         `json:"updatedAt"`
}

type MenuResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	PurchaseCount int64           `json:"purchaseCount"`
	WishlistCount int64           `json:"wishlistCount"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"userId"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	RestaurantID  string              `json:"restaurantId,omitempty"`
	Total         decimal.Decimal     `json:"total"`
	PaymentID     string              `json:"paymentId,omitempty"`
	CancelReason  string              `json:"cancelReason,omitempty"`
	RefundFailure string              `json:"refundFailure,omitempty"`
	Items         []OrderItemResponse `json:"items"`
	CreatedAt     string              `json:"createdAt"`
	UpdatedAt     string              `json:"updatedAt"`
}

type OrderItemResponse struct {
	MenuID    string          `json:"menuId"`
	MenuName  string          `json:"menuName"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type EventLogResponse struct {
	ID         string `json:"id"`
	EventName  string `json:"eventName"`
	Payload    string `json:"payload"`
	Status     string `json:"status"`
	RetryCount int    `json:"retryCount"`
	LastError  string `json:"lastError,omitempty"`
	TraceID    string `json:"traceId,omitempty"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (r CreateOrderRequest) toDomain() (domain.Orderer, []domain.OrderItem) {
	orderer := domain.Orderer{
		UserID:          r.UserID,
		Name:            r.UserName,
		Phone:           r.UserPhone,
		Address:         r.DeliveryAddress,
		DeliveryRequest: r.DeliveryRequest,
	}
	items := make([]domain.OrderItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = domain.OrderItem{
			MenuID:    it.MenuID,
			MenuName:  it.MenuName,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return orderer, items
}

func mapOrderToResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			MenuID:    it.MenuID,
			MenuName:  it.MenuName,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return OrderResponse{
		ID:            o.ID,
		UserID:        o.Orderer.UserID,
		Name:          o.Label(),
		Status:        string(o.Status),
		RestaurantID:  o.RestaurantID,
		Total:         o.Total(),
		PaymentID:     o.Payment.PaymentID,
		CancelReason:  o.CancelReason,
		RefundFailure: o.RefundFailure,
		Items:         items,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.Format(time.RFC3339),
	}
}

func mapRecordToResponse(r *eventlog.Record) EventLogResponse {
	return EventLogResponse{
		ID:         r.ID,
		EventName:  r.EventName,
		Payload:    r.Payload,
		Status:     string(r.Status),
		RetryCount: r.RetryCount,
		LastError:  r.LastError,
		TraceID:    r.TraceID,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (r CreateRestaurantRequest) toDomain() []restaurantdomain.Menu {
	menus := make([]restaurantdomain.Menu, len(r.Menus))
	for i, m := range r.Menus {
		menus[i] = restaurantdomain.Menu{ID: m.ID, Name: m.Name, Price: m.Price}
	}
	return menus
}

func mapRestaurantToResponse(r *restaurantdomain.Restaurant) RestaurantResponse {
	menus := make([]MenuResponse, len(r.Menus))
	for i, m := range r.Menus {
		menus[i] = MenuResponse{
			ID:            m.ID,
			Name:          m.Name,
			Price:         m.Price,
			PurchaseCount: m.PurchaseCount,
			WishlistCount: m.WishlistCount,
		}
	}
	return RestaurantResponse{
		ID:            r.ID,
		Name:          r.Name,
		PurchaseCount: r.PurchaseCount,
		WishlistCount: r.WishlistCount,
		ReviewCount:   r.ReviewCount,
		AverageRating: r.AverageRating.StringFixed(restaurantdomain.RatingScale),
		Menus:         menus,
		UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
	}
}
