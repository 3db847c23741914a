package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRestaurantNotFound = errors.New("restaurant: not found")
	ErrMenuNotFound       = errors.New("restaurant: menu not found")
	ErrInvalidRestaurant  = errors.New("restaurant: invalid restaurant")
	ErrInvalidMenu        = errors.New("restaurant: invalid menu")
	ErrInvalidRating      = errors.New("restaurant: rating must be between 0 and 5")
)

// RatingScale is the number of decimal places kept on an average rating.
const RatingScale = 2

var (
	minRating = decimal.Zero
	maxRating = decimal.NewFromInt(5)
)

// Restaurant carries the storefront data plus the statistics that events
// from other modules keep current.
type Restaurant struct {
	ID    string
	Name  string
	Menus []Menu

	PurchaseCount int64
	WishlistCount int64
	ReviewCount   int64
	AverageRating decimal.Decimal

	// counted holds the ids of orders and reviews already applied, so a
	// redelivered event does not count twice.
	counted map[string]struct{}

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Menu struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	PurchaseCount int64
	WishlistCount int64
}

// PurchasedMenu is one line of a completed order.
type PurchasedMenu struct {
	MenuID   string
	Quantity int
}

// ValidateRating checks that rating lies on the 0 to 5 scale.
func ValidateRating(rating decimal.Decimal) error {
	if rating.LessThan(minRating) || rating.GreaterThan(maxRating) {
		return fmt.Errorf("%w: %s", ErrInvalidRating, rating)
	}
	return nil
}

func NewRestaurant(id, name string, menus []Menu, now time.Time) (*Restaurant, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidRestaurant
	}
	seen := make(map[string]bool, len(menus))
	for _, m := range menus {
		if m.ID == "" || strings.TrimSpace(m.Name) == "" || m.Price.IsNegative() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMenu, m.Name)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("%w: duplicate menu %s", ErrInvalidMenu, m.ID)
		}
		seen[m.ID] = true
	}

	return &Restaurant{
		ID:            id,
		Name:          name,
		Menus:         append([]Menu(nil), menus...),
		AverageRating: decimal.Zero,
		counted:       make(map[string]struct{}),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (r *Restaurant) Menu(id string) (*Menu, error) {
	for i := range r.Menus {
		if r.Menus[i].ID == id {
			return &r.Menus[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMenuNotFound, id)
}

// RecordPurchase counts one completed order and adds each line's quantity to
// its menu. Menus that no longer exist are skipped and returned. It reports
// applied=false when the order was already counted.
func (r *Restaurant) RecordPurchase(orderID string, items []PurchasedMenu, at time.Time) (applied bool, missing []string) {
	if !r.markCounted("order:" + orderID) {
		return false, nil
	}
	r.PurchaseCount++
	for _, it := range items {
		m, err := r.Menu(it.MenuID)
		if err != nil {
			missing = append(missing, it.MenuID)
			continue
		}
		m.PurchaseCount += int64(it.Quantity)
	}
	r.UpdatedAt = at
	return true, missing
}

// AddReview folds rating into the running average, rounded half up to
// RatingScale places. It reports false when the review was already counted.
func (r *Restaurant) AddReview(reviewID string, rating decimal.Decimal, at time.Time) (bool, error) {
	if err := ValidateRating(rating); err != nil {
		return false, err
	}
	if !r.markCounted("review:" + reviewID) {
		return false, nil
	}

	if r.ReviewCount == 0 {
		r.AverageRating = rating.Round(RatingScale)
	} else {
		count := decimal.NewFromInt(r.ReviewCount)
		total := r.AverageRating.Mul(count).Add(rating)
		r.AverageRating = total.Div(count.Add(decimal.NewFromInt(1))).Round(RatingScale)
	}
	r.ReviewCount++
	r.UpdatedAt = at
	return true, nil
}

// ChangeWishlist adjusts the wishlist counter of the restaurant, or of one
// of its menus when menuID is set. Counters never go below zero.
func (r *Restaurant) ChangeWishlist(menuID string, added bool, at time.Time) error {
	counter := &r.WishlistCount
	if menuID != "" {
		m, err := r.Menu(menuID)
		if err != nil {
			return err
		}
		counter = &m.WishlistCount
	}

	switch {
	case added:
		*counter++
	case *counter > 0:
		*counter--
	}
	r.UpdatedAt = at
	return nil
}

// Clone returns a deep copy.
func (r *Restaurant) Clone() *Restaurant {
	c := *r
	c.Menus = append([]Menu(nil), r.Menus...)
	c.counted = make(map[string]struct{}, len(r.counted))
	for k := range r.counted {
		c.counted[k] = struct{}{}
	}
	return &c
}

func (r *Restaurant) markCounted(key string) bool {
	if r.counted == nil {
		r.counted = make(map[string]struct{})
	}
	if _, ok := r.counted[key]; ok {
		return false
	}
	r.counted[key] = struct{}{}
	return true
}
