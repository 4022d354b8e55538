package serving

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/diagnoml/platform/pkg/common/models"
)

type predictionModel struct {
	ID           string    `gorm:"primaryKey;column:id"`
	PID          string    `gorm:"column:pid;index"`
	Probability  float64   `gorm:"column:probability"`
	RiskCategory string    `gorm:"column:risk_category"`
	Confidence   float64   `gorm:"column:confidence"`
	ModelVersion int       `gorm:"column:model_version"`
	Timestamp    time.Time `gorm:"column:timestamp"`
}

func (predictionModel) TableName() string {
	return "predictions"
}

type GormPredictionStore struct {
	db *gorm.DB
}

func NewGormPredictionStore(db *gorm.DB) *GormPredictionStore {
	return &GormPredictionStore{db: db}
}

func (s *GormPredictionStore) AutoMigrate() error {
	return s.db.AutoMigrate(&predictionModel{})
}

func (s *GormPredictionStore) Append(ctx context.Context, p models.Prediction) error {
	return s.db.WithContext(ctx).Create(&predictionModel{
		ID:           p.ID,
		PID:          p.PID,
		Probability:  p.Probability,
		RiskCategory: p.RiskCategory,
		Confidence:   p.Confidence,
		ModelVersion: p.ModelVersion,
		Timestamp:    p.Timestamp,
	}).Error
}

func (s *GormPredictionStore) HasPrediction(ctx context.Context, pid string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&predictionModel{}).Where("pid = ?", pid).Limit(1).Count(&count).Error
	return count > 0, err
}

func (s *GormPredictionStore) ListByPID(ctx context.Context, pid string, limit int) ([]models.Prediction, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []predictionModel
	err := s.db.WithContext(ctx).
		Where("pid = ?", pid).
		Order("timestamp desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	predictions := make([]models.Prediction, 0, len(rows))
	for _, row := range rows {
		predictions = append(predictions, models.Prediction{
			ID:           row.ID,
			PID:          row.PID,
			Probability:  row.Probability,
			RiskCategory: row.RiskCategory,
			Confidence:   row.Confidence,
			ModelVersion: row.ModelVersion,
			Timestamp:    row.Timestamp,
		})
	}
	return predictions, nil
}
