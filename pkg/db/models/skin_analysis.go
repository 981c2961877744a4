package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/dermashop/dermashop-backend/pkg/db/types"
	"github.com/dermashop/dermashop-backend/pkg/enums"
)

// SkinAnalysisStatusCompleted is stored once inference returned a result.
const SkinAnalysisStatusCompleted = "completed"

// SkinAnalysis persists one inference run over an uploaded skin photo.
type SkinAnalysis struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index"`
	ImageName   string         `gorm:"column:image_name;not null"`
	ContentType string         `gorm:"column:content_type;not null"`
	BodyPart    enums.BodyPart `gorm:"column:body_part;type:text;not null"`
	PatientAge  *int           `gorm:"column:patient_age"`
	Label       string         `gorm:"column:label;not null"`
	Confidence  float64        `gorm:"column:confidence;not null"`
	Predictions dbtypes.JSON   `gorm:"column:predictions;type:jsonb"`
	Status      string         `gorm:"column:status;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (SkinAnalysis) TableName() string {
	return "skin_analyses"
}

func (s *SkinAnalysis) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
