package products

import (
	"context"
	"testing"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:products_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func mustCreateProduct(t *testing.T, conn *gorm.DB, price int64, sale *float64, stock int) *models.Product {
	t.Helper()
	product := &models.Product{Name: "Niacinamide Serum", SellingPrice: price, SalePercentage: sale, IsActive: true}
	require.NoError(t, NewRepository(conn).CreateWithInventory(context.Background(), product, stock))
	return product
}
