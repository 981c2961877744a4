package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/pkg/db"
	"github.com/dermashop/dermashop-backend/pkg/db/models"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/pagination"
	"github.com/dermashop/dermashop-backend/pkg/pricing"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	minRating        = 1
	maxRating        = 5
	maxCommentLength = 2000

	uniqueReviewConstraint = "reviews_user_product_key"
)

type CreateInput struct {
	ProductID uuid.UUID
	Rating    int
	Comment   *string
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Rating  *int
	Comment *string
}

type ReviewDTO struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReviewList struct {
	Reviews    []ReviewDTO `json:"reviews"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*ReviewDTO, error)
	Update(ctx context.Context, userID, reviewID uuid.UUID, input UpdateInput) (*ReviewDTO, error)
	Delete(ctx context.Context, userID, reviewID uuid.UUID) error
	ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ReviewList, error)
}

// PurchaseVerifier confirms the reviewer received the product.
type PurchaseVerifier interface {
	HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

// RatingWriter stores the recomputed product rating.
type RatingWriter interface {
	UpdateRating(ctx context.Context, productID uuid.UUID, average float64, count int) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo      Repository
	Purchases PurchaseVerifier
	Ratings   func(tx *gorm.DB) RatingWriter
	Tx        txRunner
}

type service struct {
	repo      Repository
	purchases PurchaseVerifier
	ratings   func(tx *gorm.DB) RatingWriter
	tx        txRunner
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchase verifier required")
	}
	if params.Ratings == nil {
		return nil, fmt.Errorf("rating writer required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:      params.Repo,
		purchases: params.Purchases,
		ratings:   params.Ratings,
		tx:        params.Tx,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*ReviewDTO, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if err := validateRating(input.Rating); err != nil {
		return nil, err
	}
	comment, err := normalizeComment(input.Comment)
	if err != nil {
		return nil, err
	}

	delivered, err := s.purchases.HasDeliveredProduct(ctx, userID, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify purchase")
	}
	if !delivered {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only customers who received the product can review it")
	}

	review := &models.Review{
		UserID:    userID,
		ProductID: input.ProductID,
		Rating:    input.Rating,
		Comment:   comment,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, uniqueReviewConstraint) || db.IsUniqueViolation(err, "reviews.user_id") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product already reviewed")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
		}
		return s.recompute(ctx, tx, review.ProductID)
	})
	if err != nil {
		return nil, err
	}
	return toDTO(review), nil
}

func (s *service) Update(ctx context.Context, userID, reviewID uuid.UUID, input UpdateInput) (*ReviewDTO, error) {
	if input.Rating != nil {
		if err := validateRating(*input.Rating); err != nil {
			return nil, err
		}
	}
	comment, err := normalizeComment(input.Comment)
	if err != nil {
		return nil, err
	}

	var review *models.Review
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := s.owned(ctx, repo, userID, reviewID)
		if err != nil {
			return err
		}
		if input.Rating != nil {
			found.Rating = *input.Rating
		}
		if input.Comment != nil {
			found.Comment = comment
		}
		if err := repo.Update(ctx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update review")
		}
		review = found
		return s.recompute(ctx, tx, found.ProductID)
	})
	if err != nil {
		return nil, err
	}
	return toDTO(review), nil
}

func (s *service) Delete(ctx context.Context, userID, reviewID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := s.owned(ctx, repo, userID, reviewID)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, found.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete review")
		}
		return s.recompute(ctx, tx, found.ProductID)
	})
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ReviewList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByProduct(ctx, productID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	page := pagination.Paginate(rows, params.Limit, func(r models.Review) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	list := &ReviewList{Reviews: make([]ReviewDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		list.Reviews = append(list.Reviews, *toDTO(&page.Items[i]))
	}
	return list, nil
}

func (s *service) owned(ctx context.Context, repo Repository, userID, reviewID uuid.UUID) (*models.Review, error) {
	review, err := repo.FindByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review")
	}
	if review.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "review belongs to another user")
	}
	return review, nil
}

// recompute derives the product rating from the stored reviews.
func (s *service) recompute(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	agg, err := s.repo.WithTx(tx).Aggregate(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate ratings")
	}
	average := pricing.Average(agg.Sum, agg.Count)
	if err := s.ratings(tx).UpdateRating(ctx, productID, average, int(agg.Count)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product rating")
	}
	return nil
}

func validateRating(rating int) error {
	if rating < minRating || rating > maxRating {
		return pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5").
			WithDetails(map[string]any{"rating": rating})
	}
	return nil
}

func normalizeComment(comment *string) (*string, error) {
	if comment == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*comment)
	if len(trimmed) > maxCommentLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment too long").
			WithDetails(map[string]any{"max_length": maxCommentLength})
	}
	if trimmed == "" {
		return nil, nil
	}
	return &trimmed, nil
}

func toDTO(r *models.Review) *ReviewDTO {
	return &ReviewDTO{
		ID:        r.ID,
		UserID:    r.UserID,
		ProductID: r.ProductID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
