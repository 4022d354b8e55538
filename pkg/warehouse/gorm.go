package warehouse

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/diagnoml/platform/pkg/common/models"
)

type recordModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey;column:id"`
	PID                 string    `gorm:"column:pid;index"`
	Sex                 string    `gorm:"column:sex"`
	AgeBand             string    `gorm:"column:age_band"`
	SmokingStatus       string    `gorm:"column:smoking_status"`
	SmokingDurationBand *string   `gorm:"column:smoking_duration_band"`
	SmokingAmountBand   *string   `gorm:"column:smoking_amount_band"`
	AlcoholStatus       string    `gorm:"column:alcohol_status"`
	AlcoholDurationBand *string   `gorm:"column:alcohol_duration_band"`
	DrugsStatus         string    `gorm:"column:drugs_status"`
	DrugsDurationBand   *string   `gorm:"column:drugs_duration_band"`
	SportLevel          string    `gorm:"column:sport_level"`
	SportHoursBand      *string   `gorm:"column:sport_hours_band"`
	HbA1c               float64   `gorm:"column:hba1c"`
	CholesterolTotal    float64   `gorm:"column:cholesterol_total"`
	CRP                 float64   `gorm:"column:crp"`
	CreatedAt           time.Time `gorm:"column:created_at;index"`
	DataVersion         string    `gorm:"column:data_version"`
}

func (recordModel) TableName() string {
	return "minimal_dataset_records"
}

// GormStore writes minimal records to the warehouse schema. There are no
// update or delete paths on purpose.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&recordModel{})
}

func (s *GormStore) Append(ctx context.Context, rec models.MinimalRecord) error {
	return s.db.WithContext(ctx).Create(toRecordModel(rec)).Error
}

func (s *GormStore) Window(ctx context.Context, from, to time.Time) ([]models.MinimalRecord, error) {
	var rows []recordModel
	result := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at asc").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	records := make([]models.MinimalRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toMinimalRecord(row))
	}
	return records, nil
}

func (s *GormStore) LatestByPID(ctx context.Context, pid string) (models.MinimalRecord, error) {
	var row recordModel
	result := s.db.WithContext(ctx).
		Where("pid = ?", pid).
		Order("created_at desc").
		First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.MinimalRecord{}, ErrRecordNotFound
	}
	if result.Error != nil {
		return models.MinimalRecord{}, result.Error
	}
	return toMinimalRecord(row), nil
}

func toRecordModel(rec models.MinimalRecord) *recordModel {
	return &recordModel{
		ID:                  uuid.New(),
		PID:                 rec.PID,
		Sex:                 rec.Sex,
		AgeBand:             rec.AgeBand,
		SmokingStatus:       rec.SmokingStatus,
		SmokingDurationBand: rec.SmokingDurationBand,
		SmokingAmountBand:   rec.SmokingAmountBand,
		AlcoholStatus:       rec.AlcoholStatus,
		AlcoholDurationBand: rec.AlcoholDurationBand,
		DrugsStatus:         rec.DrugsStatus,
		DrugsDurationBand:   rec.DrugsDurationBand,
		SportLevel:          rec.SportLevel,
		SportHoursBand:      rec.SportHoursBand,
		HbA1c:               rec.HbA1c,
		CholesterolTotal:    rec.CholesterolTotal,
		CRP:                 rec.CRP,
		CreatedAt:           rec.CreatedAt,
		DataVersion:         rec.DataVersion,
	}
}

func toMinimalRecord(row recordModel) models.MinimalRecord {
	return models.MinimalRecord{
		PID:                 row.PID,
		Sex:                 row.Sex,
		AgeBand:             row.AgeBand,
		SmokingStatus:       row.SmokingStatus,
		SmokingDurationBand: row.SmokingDurationBand,
		SmokingAmountBand:   row.SmokingAmountBand,
		AlcoholStatus:       row.AlcoholStatus,
		AlcoholDurationBand: row.AlcoholDurationBand,
		DrugsStatus:         row.DrugsStatus,
		DrugsDurationBand:   row.DrugsDurationBand,
		SportLevel:          row.SportLevel,
		SportHoursBand:      row.SportHoursBand,
		HbA1c:               row.HbA1c,
		CholesterolTotal:    row.CholesterolTotal,
		CRP:                 row.CRP,
		CreatedAt:           row.CreatedAt,
		DataVersion:         row.DataVersion,
	}
}
