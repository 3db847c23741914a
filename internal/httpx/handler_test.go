package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-choreography/internal/contracts"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog/memory"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/interceptors/constants"
	restaurantapp "github.com/jcmexdev/ecommerce-choreography/internal/restaurant-service/app"
)

type fakePublisher struct {
	requested []string
	canceled  []string
	completed []string
	err       error
}

func (p *fakePublisher) PublishOrderCompleted(_ context.Context, o *domain.Order) error {
	p.completed = append(p.completed, o.ID)
	return p.err
}

func (p *fakePublisher) PublishPaymentRequested(_ context.Context, o *domain.Order) error {
	p.requested = append(p.requested, o.ID)
	return p.err
}

func (p *fakePublisher) PublishOrderCancelRequested(_ context.Context, o *domain.Order, _, _ string) error {
	p.canceled = append(p.canceled, o.ID)
	return p.err
}

type fakeFeedback struct {
	reviews  []string
	wishlist []string
}

func (f *fakeFeedback) PublishReviewCreated(_ context.Context, restaurantID string, rating decimal.Decimal) (string, error) {
	f.reviews = append(f.reviews, restaurantID+":"+rating.String())
	return "v-1", nil
}

func (f *fakeFeedback) PublishWishlistChanged(_ context.Context, restaurantID, menuID string, action contracts.WishlistAction) error {
	f.wishlist = append(f.wishlist, restaurantID+":"+menuID+":"+string(action))
	return nil
}

type fixture struct {
	orders      *app.Service
	restaurants *restaurantapp.Service
	publisher   *fakePublisher
	feedback    *fakeFeedback
	events      *memory.Store
	redis       *miniredis.Miniredis
	server      *httptest.Server
}

// newFixture serves the router over a real order service whose checkout
// idempotency keys live in an in-memory Redis.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		restaurants: restaurantapp.NewService(restaurantapp.NewMemoryRepository()),
		publisher:   &fakePublisher{},
		feedback:    &fakeFeedback{},
		events:      memory.NewStore(),
		redis:       miniredis.RunT(t),
	}
	client := redis.NewClient(&redis.Options{Addr: f.redis.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	idempotency := cache.NewIdempotencyStore(client, "choreography", time.Hour)
	f.orders = app.NewService(app.NewMemoryRepository(), f.publisher, nil, app.WithIdempotency(idempotency))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	f.server = httptest.NewServer(NewRouter(NewHandler(f.orders, f.restaurants, f.feedback, f.events), metrics))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	return f.doWithHeader(t, method, path, body, nil)
}

func (f *fixture) doWithHeader(t *testing.T, method, path, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

const createBody = `{
	"userId": "u-1",
	"userName": "Kim",
	"userPhone": "010-0000-0000",
	"deliveryAddress": "Seoul",
	"paymentKey": "pk-1",
	"items": [
		{"menuId": "m-1", "menuName": "Bibimbap", "quantity": 2, "unitPrice": "9000"},
		{"menuId": "m-2", "menuName": "Tea", "quantity": 1, "unitPrice": "500.5"}
	]
}`

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/orders", createBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	got := decode[OrderResponse](t, resp)
	assert.Equal(t, "PAYMENT_PENDING", got.Status)
	assert.Equal(t, "18500.5", got.Total.String())
	assert.Equal(t, "Bibimbap 외 1건", got.Name)
	assert.Equal(t, []string{got.ID}, f.publisher.requested)
}

func TestCreateOrder_BadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{`, "invalid_json"},
		{"missing user", `{"paymentKey":"pk","items":[{"menuId":"m","menuName":"x","quantity":1,"unitPrice":"1"}]}`, "invalid_request"},
		{"no items", strings.Replace(createBody, `"items": [`, `"ignored": [`, 1), "invalid_request"},
		{"zero price", strings.Replace(createBody, `"9000"`, `"0"`, 1), "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, resp).Error)
		})
	}
	assert.Empty(t, f.publisher.requested)
}

func TestCreateOrder_PublishFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("bus down")

	resp := f.do(t, http.MethodPost, "/orders", createBody)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCreateOrder_IdempotencyKeyReplaysOrder(t *testing.T) {
	f := newFixture(t)
	header := map[string]string{constants.HeaderXIdempotencyKey: "checkout-1"}

	first := f.doWithHeader(t, http.MethodPost, "/orders", createBody, header)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	created := decode[OrderResponse](t, first)

	again := f.doWithHeader(t, http.MethodPost, "/orders", createBody, header)
	require.Equal(t, http.StatusCreated, again.StatusCode)
	assert.Equal(t, created.ID, decode[OrderResponse](t, again).ID)
	assert.Equal(t, []string{created.ID}, f.publisher.requested)

	stored, err := f.redis.Get("choreography:idempotency:u-1:checkout-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored)

	other := f.do(t, http.MethodPost, "/orders", createBody)
	require.Equal(t, http.StatusCreated, other.StatusCode)
	assert.NotEqual(t, created.ID, decode[OrderResponse](t, other).ID)
}

func TestCreateOrder_IdempotencyKeyInProgress(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.redis.Set("choreography:idempotency:u-1:checkout-1", "PENDING"))

	resp := f.doWithHeader(t, http.MethodPost, "/orders", createBody,
		map[string]string{constants.HeaderXIdempotencyKey: "checkout-1"})

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "request_in_progress", decode[ErrorResponse](t, resp).Error)
	assert.Empty(t, f.publisher.requested)
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	created := decode[OrderResponse](t, f.do(t, http.MethodPost, "/orders", createBody))

	resp := f.do(t, http.MethodGet, "/orders/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decode[OrderResponse](t, resp).ID)

	resp = f.do(t, http.MethodGet, "/orders/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	created := decode[OrderResponse](t, f.do(t, http.MethodPost, "/orders", createBody))

	resp := f.do(t, http.MethodPost, "/orders/"+created.ID+"/cancel", `{"userId":"u-1","reason":"changed mind"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "unpaid order")

	require.NoError(t, f.orders.CompletePayment(context.Background(), created.ID, "p-1", time.Now().UTC(), "u-1"))

	resp = f.do(t, http.MethodPost, "/orders/"+created.ID+"/cancel", `{"userId":"u-2","reason":"changed mind"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/orders/"+created.ID+"/cancel", `{"userId":"u-1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/orders/"+created.ID+"/cancel", `{"userId":"u-1","reason":"changed mind"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{created.ID}, f.publisher.canceled)
}

func TestEventLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := eventlog.NewRecord(ctx, "PaymentRequested", `{"orderId":"o-1"}`)
	require.NoError(t, err)
	require.NoError(t, f.events.Insert(ctx, pending))

	failed, err := eventlog.NewRecord(ctx, "PaymentCompleted", `{"orderId":"o-1"}`)
	require.NoError(t, err)
	require.NoError(t, failed.Fail(errors.New("order locked")))
	require.NoError(t, f.events.Insert(ctx, failed))

	resp := f.do(t, http.MethodGet, "/event-logs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]EventLogResponse](t, resp), 2)

	resp = f.do(t, http.MethodGet, "/event-logs?status=FAILED", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]EventLogResponse](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, failed.ID, list[0].ID)
	assert.Equal(t, "order locked", list[0].LastError)

	resp = f.do(t, http.MethodGet, "/event-logs?status=BOGUS", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/event-logs/"+pending.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PENDING", decode[EventLogResponse](t, resp).Status)

	resp = f.do(t, http.MethodGet, "/event-logs/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdvanceOrder(t *testing.T) {
	f := newFixture(t)
	body := strings.Replace(createBody, `"paymentKey": "pk-1",`, `"paymentKey": "pk-1", "restaurantId": "r-1",`, 1)
	created := decode[OrderResponse](t, f.do(t, http.MethodPost, "/orders", body))
	assert.Equal(t, "r-1", created.RestaurantID)

	resp := f.do(t, http.MethodPost, "/orders/"+created.ID+"/advance", `{"actor":"owner-1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "unpaid order")

	require.NoError(t, f.orders.CompletePayment(context.Background(), created.ID, "p-1", time.Now().UTC(), "u-1"))

	resp = f.do(t, http.MethodPost, "/orders/"+created.ID+"/advance", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var last OrderResponse
	for i := 0; i < 4; i++ {
		resp = f.do(t, http.MethodPost, "/orders/"+created.ID+"/advance", `{"actor":"owner-1"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		last = decode[OrderResponse](t, resp)
	}
	assert.Equal(t, "COMPLETED", last.Status)
	assert.Equal(t, []string{created.ID}, f.publisher.completed)

	resp = f.do(t, http.MethodPost, "/orders/missing/advance", `{"actor":"owner-1"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

const restaurantBody = `{
	"name": "Manjok Chicken",
	"menus": [
		{"id": "m-1", "name": "Fried", "price": "18000"},
		{"name": "Spicy", "price": "19000"}
	]
}`

func TestRestaurants(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/restaurants", restaurantBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[RestaurantResponse](t, resp)
	require.Len(t, created.Menus, 2)
	assert.Equal(t, "0.00", created.AverageRating)
	assert.NotEmpty(t, created.Menus[1].ID)

	resp = f.do(t, http.MethodGet, "/restaurants/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Manjok Chicken", decode[RestaurantResponse](t, resp).Name)

	resp = f.do(t, http.MethodGet, "/restaurants/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/restaurants", `{"menus":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReviewsAndWishlist(t *testing.T) {
	f := newFixture(t)
	created := decode[RestaurantResponse](t, f.do(t, http.MethodPost, "/restaurants", restaurantBody))
	base := "/restaurants/" + created.ID

	resp := f.do(t, http.MethodPost, base+"/reviews", `{"rating":"4.5"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "v-1", decode[map[string]string](t, resp)["reviewId"])

	resp = f.do(t, http.MethodPost, base+"/reviews", `{"rating":"6"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/restaurants/missing/reviews", `{"rating":"3"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, []string{created.ID + ":4.5"}, f.feedback.reviews)

	resp = f.do(t, http.MethodPost, base+"/wishlist", `{"action":"ADDED"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = f.do(t, http.MethodPost, base+"/wishlist", `{"menuId":"m-1","action":"REMOVED"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = f.do(t, http.MethodPost, base+"/wishlist", `{"menuId":"gone","action":"ADDED"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodPost, base+"/wishlist", `{"action":"TOGGLED"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, []string{created.ID + "::ADDED", created.ID + ":m-1:REMOVED"}, f.feedback.wishlist)
}
