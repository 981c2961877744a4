package products

import (
	"time"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/pricing"
	"github.com/google/uuid"
)

// CatalogEntry is the pricing snapshot the cart copies onto a line item.
type CatalogEntry struct {
	ProductID      uuid.UUID
	ProductName    string
	SellingPrice   int64
	SalePercentage *float64
}

// ReservationResult reports whether stock was held. Available is filled on refusal.
type ReservationResult struct {
	Success   bool
	Reason    string
	Available int
}

// ProductDTO is the public product representation.
type ProductDTO struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	SellingPrice   int64     `json:"selling_price"`
	SalePercentage *float64  `json:"sale_percentage,omitempty"`
	EffectivePrice int64     `json:"effective_price"`
	IsActive       bool      `json:"is_active"`
	RatingAverage  float64   `json:"rating_average"`
	RatingCount    int       `json:"rating_count"`
	AvailableQty   int       `json:"available_qty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateProductInput is the admin payload for a new listing.
type CreateProductInput struct {
	Name           string
	Description    *string
	SellingPrice   int64
	SalePercentage *float64
	InitialStock   int
}

// ListParams configures catalog pagination.
type ListParams struct {
	Limit  int
	Cursor string
}

// ListResult wraps a catalog page.
type ListResult struct {
	Items  []ProductDTO `json:"items"`
	Cursor string       `json:"cursor,omitempty"`
}

func toDTO(p models.Product) ProductDTO {
	dto := ProductDTO{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		SellingPrice:   p.SellingPrice,
		SalePercentage: p.SalePercentage,
		EffectivePrice: pricing.EffectivePrice(p.SellingPrice, p.SalePercentage),
		IsActive:       p.IsActive,
		RatingAverage:  p.RatingAverage,
		RatingCount:    p.RatingCount,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.Inventory != nil {
		dto.AvailableQty = p.Inventory.AvailableQty
	}
	return dto
}
