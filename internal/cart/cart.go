package cart

import (
	"time"

	"github.com/dermashop/dermashop-backend/pkg/pricing"
	"github.com/google/uuid"
)

// Cart is the per-user snapshot kept in the ephemeral store. Totals are
// derived and rewritten on every mutation.
type Cart struct {
	Items      []CartItem `json:"items"`
	TotalItems int        `json:"total_items"`
	TotalPrice int64      `json:"total_price"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CartItem is a point-in-time copy of catalog pricing plus the held quantity.
type CartItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Price          int64     `json:"price"`
	OriginalPrice  int64     `json:"original_price"`
	SalePercentage *float64  `json:"sale_percentage"`
	Quantity       int       `json:"quantity"`
	Selected       bool      `json:"selected"`
	AddedAt        time.Time `json:"added_at"`
}

func emptyCart(now time.Time) *Cart {
	return &Cart{Items: []CartItem{}, UpdatedAt: now}
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

func (c *Cart) indexOf(productID uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) recalculate(now time.Time) {
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	totalItems := 0
	var totalPrice int64
	for _, item := range c.Items {
		totalItems += item.Quantity
		totalPrice += pricing.LineTotal(item.Price, item.Quantity)
	}
	c.TotalItems = totalItems
	c.TotalPrice = totalPrice
	c.UpdatedAt = now
}

func (c *Cart) retain(keep func(CartItem) bool) {
	kept := make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if keep(item) {
			kept = append(kept, item)
		}
	}
	c.Items = kept
}

// SelectedItems returns the lines flagged for checkout without touching the cart.
func SelectedItems(c *Cart) []CartItem {
	selected := []CartItem{}
	if c == nil {
		return selected
	}
	for _, item := range c.Items {
		if item.Selected {
			selected = append(selected, item)
		}
	}
	return selected
}
