package products

import (
	"context"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReasonInsufficientStock = "insufficient stock"
	ReasonNoInventory       = "product has no inventory record"
)

// Inventory moves stock between the available and reserved counters. Every
// call is a single conditional UPDATE so concurrent callers cannot oversell.
type Inventory struct {
	db *gorm.DB
}

// NewInventory builds the inventory ledger on db.
func NewInventory(db *gorm.DB) *Inventory {
	return &Inventory{db: db}
}

// WithTx binds the ledger to tx so moves commit with the caller's writes.
func (i *Inventory) WithTx(tx *gorm.DB) *Inventory {
	if tx == nil {
		return i
	}
	return &Inventory{db: tx}
}

// Reserve holds qty units when at least qty are available.
func (i *Inventory) Reserve(ctx context.Context, productID uuid.UUID, qty int) (ReservationResult, error) {
	if qty <= 0 {
		return ReservationResult{}, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}

	res := i.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty - ?,
			reserved_qty = reserved_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND available_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return ReservationResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 1 {
		return ReservationResult{Success: true}, nil
	}

	var item models.InventoryItem
	if err := i.db.WithContext(ctx).First(&item, "product_id = ?", productID).Error; err != nil {
		if isNotFound(err) {
			return ReservationResult{Reason: ReasonNoInventory}, nil
		}
		return ReservationResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	return ReservationResult{Reason: ReasonInsufficientStock, Available: item.AvailableQty}, nil
}

// Release returns qty reserved units to available. Releasing more than is
// reserved leaves the row untouched.
func (i *Inventory) Release(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	res := i.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + ?,
			reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	return nil
}

// Commit consumes qty reserved units once an order is paid.
func (i *Inventory) Commit(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	res := i.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "commit inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reserved stock lower than committed quantity").
			WithDetails(map[string]any{"product_id": productID, "quantity": qty})
	}
	return nil
}

// ReleaseTx runs Release inside the caller's transaction.
func (i *Inventory) ReleaseTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	return i.WithTx(tx).Release(ctx, productID, qty)
}

// CommitTx runs Commit inside the caller's transaction.
func (i *Inventory) CommitTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	return i.WithTx(tx).Commit(ctx, productID, qty)
}
