package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventNamesAreStable(t *testing.T) {
	assert.Equal(t, "PaymentRequested", PaymentRequested{}.EventName())
	assert.Equal(t, "PaymentCompleted", PaymentCompleted{}.EventName())
	assert.Equal(t, "PaymentCanceled", PaymentCanceled{}.EventName())
	assert.Equal(t, "OrderCancelRequested", OrderCancelRequested{}.EventName())
	assert.ElementsMatch(t, []string{
		"PaymentRequested", "PaymentCompleted", "PaymentCanceled", "OrderCancelRequested",
	}, SagaEvents)
}

func TestCorrelationKeyIsOrderID(t *testing.T) {
	assert.Equal(t, "o-1", PaymentRequested{OrderID: "o-1"}.CorrelationKey())
	assert.Equal(t, "o-1", PaymentCompleted{OrderID: "o-1"}.CorrelationKey())
	assert.Equal(t, "o-1", PaymentCanceled{OrderID: "o-1"}.CorrelationKey())
	assert.Equal(t, "o-1", OrderCancelRequested{OrderID: "o-1"}.CorrelationKey())
}

func TestPaymentCanceledPayloadKeepsDecimalPrecision(t *testing.T) {
	ev := PaymentCanceled{
		OrderID:            "o-1",
		PaymentID:          "p-1",
		UserID:             "u-1",
		RefundAmount:       decimal.RequireFromString("18000.50"),
		CanceledAt:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		IsRefundSuccessful: false,
	}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"refundAmount":"18000.5"`)
	assert.Contains(t, string(raw), `"isRefundSuccessful":false`)
	assert.Contains(t, string(raw), `"canceledAt":"2025-03-01T12:00:00Z"`)
}

func TestValidationTags(t *testing.T) {
	v := validator.New(validator.WithRequiredStructEnabled())

	require.NoError(t, v.Struct(PaymentCompleted{
		OrderID: "o-1", PaymentID: "p-1", UserID: "u-1", CompletedAt: time.Now(),
	}))

	err := v.Struct(PaymentCompleted{OrderID: "o-1", UserID: "u-1"})
	require.Error(t, err)
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	assert.ElementsMatch(t, []string{"PaymentID", "CompletedAt"}, fields)
}

func TestRestaurantEvents(t *testing.T) {
	assert.Equal(t, "OrderCompleted", OrderCompleted{}.EventName())
	assert.Equal(t, "ReviewCreated", ReviewCreated{}.EventName())
	assert.Equal(t, "WishlistChanged", WishlistChanged{}.EventName())
	assert.ElementsMatch(t, []string{"OrderCompleted", "ReviewCreated", "WishlistChanged"}, RestaurantEvents)

	assert.Equal(t, "o-1", OrderCompleted{OrderID: "o-1", RestaurantID: "r-1"}.CorrelationKey())
	assert.Equal(t, "r-1", ReviewCreated{ReviewID: "v-1", RestaurantID: "r-1"}.CorrelationKey())
	assert.Equal(t, "r-1", WishlistChanged{RestaurantID: "r-1"}.CorrelationKey())
}

func TestWishlistChangedRejectsUnknownAction(t *testing.T) {
	v := validator.New(validator.WithRequiredStructEnabled())

	require.NoError(t, v.Struct(WishlistChanged{RestaurantID: "r-1", Action: WishlistAdded}))
	require.NoError(t, v.Struct(WishlistChanged{RestaurantID: "r-1", MenuID: "m-1", Action: WishlistRemoved}))
	assert.Error(t, v.Struct(WishlistChanged{RestaurantID: "r-1", Action: "TOGGLED"}))
}

func TestOrderCompletedPayload(t *testing.T) {
	ev := OrderCompleted{
		OrderID:      "o-1",
		RestaurantID: "r-1",
		MenuItems:    []OrderMenuItem{{MenuID: "m-1", Quantity: 2}},
		TotalAmount:  decimal.RequireFromString("36000"),
		CompletedAt:  time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"orderId":"o-1","restaurantId":"r-1",
		"menuItems":[{"menuId":"m-1","quantity":2}],
		"totalAmount":"36000","completedAt":"2025-03-01T13:00:00Z"
	}`, string(raw))
}
