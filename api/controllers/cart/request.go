package cart

import "github.com/google/uuid"

type addItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type selectRequest struct {
	Selected *bool `json:"selected" validate:"required"`
}

type removeItemsRequest struct {
	ProductIDs []uuid.UUID `json:"product_ids" validate:"required,min=1,max=100"`
}
