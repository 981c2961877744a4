package products

import (
	"context"
	"strings"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/pagination"
	"github.com/google/uuid"
)

type productStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListActive(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Product, error)
	CreateWithInventory(ctx context.Context, product *models.Product, stock int) error
}

// Service exposes catalog reads and admin listing management.
type Service interface {
	FindOne(ctx context.Context, productID uuid.UUID) (*CatalogEntry, error)
	Get(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
}

type service struct {
	repo productStore
}

// NewService builds the catalog service.
func NewService(repo productStore) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product repository required")
	}
	return &service{repo: repo}, nil
}

// FindOne resolves a purchasable product. Inactive listings are reported as missing.
func (s *service) FindOne(ctx context.Context, productID uuid.UUID) (*CatalogEntry, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &CatalogEntry{
		ProductID:      product.ID,
		ProductName:    product.Name,
		SellingPrice:   product.SellingPrice,
		SalePercentage: product.SalePercentage,
	}, nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*product)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListActive(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	page := pagination.Paginate(rows, params.Limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	items := make([]ProductDTO, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, toDTO(p))
	}
	return &ListResult{Items: items, Cursor: page.NextCursor}, nil
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.SellingPrice < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "selling price must be non-negative")
	}
	if input.SalePercentage != nil && (*input.SalePercentage < 0 || *input.SalePercentage > 100) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale percentage must be between 0 and 100")
	}
	if input.InitialStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock must be non-negative")
	}

	product := &models.Product{
		Name:           name,
		Description:    input.Description,
		SellingPrice:   input.SellingPrice,
		SalePercentage: input.SalePercentage,
		IsActive:       true,
	}
	if err := s.repo.CreateWithInventory(ctx, product, input.InitialStock); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	dto := toDTO(*product)
	return &dto, nil
}

func (s *service) load(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}
