package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/ecommerce-choreography/internal/restaurant-service/domain"
)

func (h *Handler) CreateRestaurant(w http.ResponseWriter, r *http.Request) {
	var req CreateRestaurantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	restaurant, err := h.restaurants.RegisterRestaurant(r.Context(), req.Name, req.toDomain())
	if err != nil {
		writeRestaurantError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapRestaurantToResponse(restaurant))
}

func (h *Handler) GetRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurant, err := h.restaurants.GetRestaurant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRestaurantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRestaurantToResponse(restaurant))
}

// CreateReview raises ReviewCreated. The average rating is updated by the
// event handler, so the response is 202.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := domain.ValidateRating(req.Rating); err != nil {
		writeRestaurantError(w, err)
		return
	}

	ctx := r.Context()
	restaurantID := chi.URLParam(r, "id")
	if _, err := h.restaurants.GetRestaurant(ctx, restaurantID); err != nil {
		writeRestaurantError(w, err)
		return
	}

	reviewID, err := h.feedback.PublishReviewCreated(ctx, restaurantID, req.Rating)
	if err != nil {
		writeRestaurantError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"reviewId": reviewID, "restaurantId": restaurantID})
}

// ChangeWishlist raises WishlistChanged for the restaurant or one of its menus.
func (h *Handler) ChangeWishlist(w http.ResponseWriter, r *http.Request) {
	var req WishlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := r.Context()
	restaurantID := chi.URLParam(r, "id")
	restaurant, err := h.restaurants.GetRestaurant(ctx, restaurantID)
	if err != nil {
		writeRestaurantError(w, err)
		return
	}
	if req.MenuID != "" {
		if _, err := restaurant.Menu(req.MenuID); err != nil {
			writeRestaurantError(w, err)
			return
		}
	}

	if err := h.feedback.PublishWishlistChanged(ctx, restaurantID, req.MenuID, req.Action); err != nil {
		writeRestaurantError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"restaurantId": restaurantID, "action": string(req.Action)})
}

func writeRestaurantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRestaurantNotFound):
		writeError(w, http.StatusNotFound, "restaurant_not_found", err.Error())
	case errors.Is(err, domain.ErrMenuNotFound):
		writeError(w, http.StatusNotFound, "menu_not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidRestaurant),
		errors.Is(err, domain.ErrInvalidMenu),
		errors.Is(err, domain.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
