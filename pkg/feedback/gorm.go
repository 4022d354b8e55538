package feedback

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/diagnoml/platform/pkg/common/models"
)

type feedbackModel struct {
	Seq             int64     `gorm:"primaryKey;autoIncrement;column:seq"`
	ID              string    `gorm:"column:id;uniqueIndex"`
	PID             string    `gorm:"column:pid;index"`
	Outcome         bool      `gorm:"column:outcome"`
	DiagnosisMethod string    `gorm:"column:diagnosis_method"`
	Timestamp       time.Time `gorm:"column:timestamp"`
}

func (feedbackModel) TableName() string {
	return "feedback_records"
}

type watermarkModel struct {
	Lineage string `gorm:"primaryKey;column:lineage"`
	Seq     int64  `gorm:"column:seq"`
}

func (watermarkModel) TableName() string {
	return "feedback_watermarks"
}

const defaultLineage = "default"

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&feedbackModel{}, &watermarkModel{})
}

func (s *GormStore) Append(ctx context.Context, fb models.FeedbackRecord) (int64, error) {
	record := feedbackModel{
		ID:              fb.ID,
		PID:             fb.PID,
		Outcome:         fb.Outcome,
		DiagnosisMethod: fb.DiagnosisMethod,
		Timestamp:       fb.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return 0, err
	}
	return record.Seq, nil
}

func (s *GormStore) All(ctx context.Context) ([]models.FeedbackRecord, error) {
	var rows []feedbackModel
	if err := s.db.WithContext(ctx).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]models.FeedbackRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.FeedbackRecord{
			ID:              row.ID,
			PID:             row.PID,
			Outcome:         row.Outcome,
			DiagnosisMethod: row.DiagnosisMethod,
			Timestamp:       row.Timestamp,
		})
	}
	return records, nil
}

func (s *GormStore) CountAfter(ctx context.Context, seq int64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&feedbackModel{}).Where("seq > ?", seq).Count(&count).Error
	return int(count), err
}

func (s *GormStore) LatestSeq(ctx context.Context) (int64, error) {
	var row feedbackModel
	result := s.db.WithContext(ctx).Order("seq desc").First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return row.Seq, nil
}

func (s *GormStore) Watermark(ctx context.Context) (int64, error) {
	var row watermarkModel
	result := s.db.WithContext(ctx).First(&row, "lineage = ?", defaultLineage)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return row.Seq, nil
}

func (s *GormStore) SetWatermark(ctx context.Context, seq int64) error {
	return s.db.WithContext(ctx).Save(&watermarkModel{Lineage: defaultLineage, Seq: seq}).Error
}
