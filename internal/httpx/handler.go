package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/interceptors"
)

const defaultListLimit = 100

// Handler drives the order saga and the restaurant statistics over HTTP and
// exposes the event log.
type Handler struct {
	orders      OrderService
	restaurants RestaurantService
	feedback    RestaurantFeedback
	events      EventLogReader
	validate    *validator.Validate
}

func NewHandler(orders OrderService, restaurants RestaurantService, feedback RestaurantFeedback, events EventLogReader) *Handler {
	return &Handler{
		orders:      orders,
		restaurants: restaurants,
		feedback:    feedback,
		events:      events,
		validate:    validator.New(),
	}
}

// CreateOrder stores a PAYMENT_PENDING order. Payment happens afterwards
// through the event bus, so 201 only means the order was accepted. A
// repeated x-idempotency-key returns the first order again.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	orderer, items := req.toDomain()
	ctx := r.Context()
	slog.InfoContext(ctx, "creating order",
		"request_id", interceptors.RequestIDFromContext(ctx),
		"user_id", req.UserID,
		"items", len(items),
	)

	order, err := h.orders.CreateOrder(ctx, app.CreateOrderInput{
		Orderer:        orderer,
		Items:          items,
		PaymentKey:     req.PaymentKey,
		RestaurantID:   req.RestaurantID,
		IdempotencyKey: interceptors.IdempotencyKeyFromContext(ctx),
	})
	if err != nil {
		if order != nil {
			slog.ErrorContext(ctx, "order stored but payment request failed", "order_id", order.ID, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// CancelOrder requests a refund. The order turns CANCELED once the payment
// module confirms it, so the response is 202.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	orderID := chi.URLParam(r, "id")
	if err := h.orders.CancelOrder(r.Context(), orderID, req.Reason, req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"orderId": orderID, "status": "CANCEL_REQUESTED"})
}

// AdvanceOrder moves a paid order one step towards COMPLETED.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	var req AdvanceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := h.orders.AdvanceOrder(r.Context(), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		if order != nil {
			slog.ErrorContext(r.Context(), "order advanced but completion event failed", "order_id", order.ID, "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) ListEventLogs(w http.ResponseWriter, r *http.Request) {
	filter := eventlog.Filter{Limit: defaultListLimit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := eventlog.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}
		filter.Status = status
	}

	records, err := h.events.List(r.Context(), filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "list event logs", "error", err)
		writeError(w, http.StatusInternalServerError, "event_log_error", "")
		return
	}

	out := make([]EventLogResponse, len(records))
	for i, rec := range records {
		out[i] = mapRecordToResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetEventLog(w http.ResponseWriter, r *http.Request) {
	rec, err := h.events.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, eventlog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event_log_not_found", "")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "get event log", "error", err)
		writeError(w, http.StatusInternalServerError, "event_log_error", "")
		return
	}
	writeJSON(w, http.StatusOK, mapRecordToResponse(rec))
}

func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrInvalidOrderer),
		errors.Is(err, domain.ErrInvalidItems),
		errors.Is(err, domain.ErrInvalidPayment),
		errors.Is(err, domain.ErrCancelReasonRequired):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrAlreadyCanceled),
		errors.Is(err, domain.ErrNotCancelable),
		errors.Is(err, domain.ErrPaymentNotCompleted),
		errors.Is(err, domain.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrRequestInProgress):
		writeError(w, http.StatusConflict, "request_in_progress", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
