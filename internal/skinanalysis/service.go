package skinanalysis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/pkg/config"
	"github.com/dermashop/dermashop-backend/pkg/db/models"
	dbtypes "github.com/dermashop/dermashop-backend/pkg/db/types"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/dermashop/dermashop-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const rateLimitScope = "skin_analysis"

// AnalyzeInput is one uploaded photo plus the context the model needs.
type AnalyzeInput struct {
	Image     []byte
	Filename  string
	BodyPart  enums.BodyPart
	BirthDate *time.Time
}

type AnalysisDTO struct {
	ID          uuid.UUID      `json:"id"`
	ImageName   string         `json:"image_name"`
	ContentType string         `json:"content_type"`
	BodyPart    enums.BodyPart `json:"body_part"`
	PatientAge  *int           `json:"patient_age,omitempty"`
	Label       string         `json:"label"`
	Confidence  float64        `json:"confidence"`
	Predictions dbtypes.JSON   `json:"predictions"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

type AnalysisList struct {
	Analyses   []AnalysisDTO `json:"analyses"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type Service interface {
	Analyze(ctx context.Context, userID uuid.UUID, input AnalyzeInput) (*AnalysisDTO, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*AnalysisDTO, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*AnalysisList, error)
}

// RateLimiter is satisfied by the redis client's fixed-window counter.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type ServiceParams struct {
	Repo      Repository
	Predictor Predictor
	Limiter   RateLimiter
	Logger    *logger.Logger
	Config    config.SkinAnalysisConfig
}

type service struct {
	repo      Repository
	predictor Predictor
	limiter   RateLimiter
	logg      *logger.Logger
	cfg       config.SkinAnalysisConfig
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("skin analysis repository required")
	}
	if params.Predictor == nil {
		return nil, fmt.Errorf("predictor required")
	}
	return &service{
		repo:      params.Repo,
		predictor: params.Predictor,
		limiter:   params.Limiter,
		logg:      params.Logger,
		cfg:       params.Config,
		now:       time.Now,
	}, nil
}

func (s *service) Analyze(ctx context.Context, userID uuid.UUID, input AnalyzeInput) (*AnalysisDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if len(input.Image) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image is required")
	}
	if limit := s.cfg.MaxUploadBytes(); int64(len(input.Image)) > limit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image too large").
			WithDetails(map[string]any{"max_bytes": limit, "size_bytes": len(input.Image)})
	}
	bodyPart := input.BodyPart
	if bodyPart == "" {
		bodyPart = enums.BodyPartOther
	}
	if !bodyPart.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid body part").
			WithDetails(map[string]any{"body_part": input.BodyPart})
	}
	contentType, err := sniffImageType(input.Image)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported image type")
	}

	now := s.now().UTC()
	var age *int
	if input.BirthDate != nil {
		years, err := ageAt(*input.BirthDate, now)
		if err != nil {
			return nil, err
		}
		age = &years
	}

	if err := s.allow(ctx, userID); err != nil {
		return nil, err
	}

	filename := imageName(input.Filename, contentType)
	result, err := s.predictor.Predict(ctx, filename, contentType, input.Image)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "skin analysis unavailable")
	}
	predictions, err := dbtypes.Marshal(result.Predictions)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode predictions")
	}

	analysis := &models.SkinAnalysis{
		UserID:      userID,
		ImageName:   filename,
		ContentType: contentType,
		BodyPart:    bodyPart,
		PatientAge:  age,
		Label:       result.Label,
		Confidence:  result.Confidence,
		Predictions: predictions,
		Status:      models.SkinAnalysisStatusCompleted,
	}
	if err := s.repo.Create(ctx, analysis); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store skin analysis")
	}
	return toDTO(analysis), nil
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (*AnalysisDTO, error) {
	analysis, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return toDTO(analysis), nil
}

func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	analysis, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, analysis.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete skin analysis")
	}
	return nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*AnalysisList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list skin analyses")
	}
	page := pagination.Paginate(rows, params.Limit, func(a models.SkinAnalysis) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	list := &AnalysisList{Analyses: make([]AnalysisDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		list.Analyses = append(list.Analyses, *toDTO(&page.Items[i]))
	}
	return list, nil
}

func (s *service) owned(ctx context.Context, userID, id uuid.UUID) (*models.SkinAnalysis, error) {
	analysis, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "skin analysis not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load skin analysis")
	}
	if analysis.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "skin analysis belongs to another user")
	}
	return analysis, nil
}

// allow applies the per-user inference quota. A limiter outage lets the request through.
func (s *service) allow(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil || s.cfg.RateLimit <= 0 {
		return nil
	}
	window := s.cfg.RateLimitWindow
	if window <= 0 {
		window = time.Hour
	}
	ok, count, err := s.limiter.FixedWindowAllow(ctx, rateLimitScope+":"+userID.String(), s.cfg.RateLimit, window)
	if err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"user_id": userID.String(), "error": err.Error()})
			s.logg.Warn(logCtx, "skin_analysis.rate_limit_unavailable")
		}
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many skin analyses, try again later").
			WithDetails(map[string]any{"limit": s.cfg.RateLimit, "count": count})
	}
	return nil
}

// ageAt returns full years elapsed between birth and at.
func ageAt(birth, at time.Time) (int, error) {
	birth = birth.UTC()
	if birth.After(at) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "birth date is in the future")
	}
	years := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		years--
	}
	return years, nil
}

func imageName(filename, contentType string) string {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "upload" + extensionFor(contentType)
	}
	return name
}

func toDTO(a *models.SkinAnalysis) *AnalysisDTO {
	return &AnalysisDTO{
		ID:          a.ID,
		ImageName:   a.ImageName,
		ContentType: a.ContentType,
		BodyPart:    a.BodyPart,
		PatientAge:  a.PatientAge,
		Label:       a.Label,
		Confidence:  a.Confidence,
		Predictions: a.Predictions,
		Status:      a.Status,
		CreatedAt:   a.CreatedAt,
	}
}
