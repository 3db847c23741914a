package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/ecommerce-choreography/internal/httpx/middlewares"
)

// NewRouter mounts the order, restaurant and event log routes. metrics may
// be nil.
func NewRouter(handler *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestMetadata)
	r.Use(middlewares.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middlewares.Tracing("choreography"))

		r.Post("/orders", handler.CreateOrder)
		r.Get("/orders/{id}", handler.GetOrderByID)
		r.Post("/orders/{id}/cancel", handler.CancelOrder)
		r.Post("/orders/{id}/advance", handler.AdvanceOrder)

		r.Post("/restaurants", handler.CreateRestaurant)
		r.Get("/restaurants/{id}", handler.GetRestaurant)
		r.Post("/restaurants/{id}/reviews", handler.CreateReview)
		r.Post("/restaurants/{id}/wishlist", handler.ChangeWishlist)

		r.Get("/event-logs", handler.ListEventLogs)
		r.Get("/event-logs/{id}", handler.GetEventLog)
	})
	return r
}
