package orders

import (
	"context"
	"testing"

	"github.com/dermashop/dermashop-backend/internal/products"
	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

// seedReservedProduct creates a product whose stock is already partly held by a cart.
func seedReservedProduct(t *testing.T, conn *gorm.DB, price int64, available, reserved int) *models.Product {
	t.Helper()
	product := &models.Product{Name: "Retinol Night Cream", SellingPrice: price, IsActive: true}
	require.NoError(t, products.NewRepository(conn).CreateWithInventory(context.Background(), product, available+reserved))
	if reserved > 0 {
		res, err := products.NewInventory(conn).Reserve(context.Background(), product.ID, reserved)
		require.NoError(t, err)
		require.True(t, res.Success)
	}
	return product
}

func inventoryOf(t *testing.T, conn *gorm.DB, productID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, conn.First(&item, "product_id = ?", productID).Error)
	return item
}
