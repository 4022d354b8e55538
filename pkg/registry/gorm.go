package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/diagnoml/platform/pkg/ml/linear"
)

type versionModel struct {
	Version         int            `gorm:"primaryKey;column:version"`
	SnapshotID      string         `gorm:"column:snapshot_id"`
	SchemaHash      string         `gorm:"column:schema_hash"`
	EncoderState    datatypes.JSON `gorm:"column:encoder_state"`
	Weights         datatypes.JSON `gorm:"column:weights"`
	Hyperparameters datatypes.JSON `gorm:"column:hyperparameters"`
	Metrics         datatypes.JSON `gorm:"column:metrics"`
	TrainingTimeNS  int64          `gorm:"column:training_time_ns"`
	Status          string         `gorm:"column:status;index"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	PromotedAt      *time.Time     `gorm:"column:promoted_at"`
	RetiredAt       *time.Time     `gorm:"column:retired_at"`
}

func (versionModel) TableName() string {
	return "model_versions"
}

// GormStore is the durable registry. All status flips run inside a single
// database transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&versionModel{})
}

func (s *GormStore) RegisterCandidate(ctx context.Context, mv ModelVersion) (ModelVersion, error) {
	record, err := toModel(mv)
	if err != nil {
		return ModelVersion{}, err
	}
	record.Status = StatusCandidate
	record.CreatedAt = time.Now().UTC()
	record.PromotedAt = nil
	record.RetiredAt = nil

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		row := tx.Model(&versionModel{}).Select("COALESCE(MAX(version), 0)").Row()
		if err := row.Scan(&maxVersion); err != nil {
			return err
		}
		record.Version = maxVersion + 1
		return tx.Create(&record).Error
	})
	if err != nil {
		return ModelVersion{}, fmt.Errorf("registering candidate: %w", err)
	}
	return toDomain(record)
}

func (s *GormStore) Get(ctx context.Context, version int) (ModelVersion, error) {
	var record versionModel
	result := s.db.WithContext(ctx).First(&record, "version = ?", version)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return ModelVersion{}, ErrModelNotFound
	}
	if result.Error != nil {
		return ModelVersion{}, result.Error
	}
	return toDomain(record)
}

func (s *GormStore) Production(ctx context.Context) (ModelVersion, error) {
	var record versionModel
	result := s.db.WithContext(ctx).First(&record, "status = ?", StatusProduction)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return ModelVersion{}, ErrNoProduction
	}
	if result.Error != nil {
		return ModelVersion{}, result.Error
	}
	return toDomain(record)
}

func (s *GormStore) Promote(ctx context.Context, version int) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidate versionModel
		result := tx.First(&candidate, "version = ?", version)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrModelNotFound
		}
		if result.Error != nil {
			return result.Error
		}
		if candidate.Status != StatusCandidate {
			return ErrNotCandidate
		}

		if err := tx.Model(&versionModel{}).
			Where("status = ?", StatusProduction).
			Updates(map[string]interface{}{"status": StatusRetired, "retired_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&versionModel{}).
			Where("version = ?", version).
			Updates(map[string]interface{}{"status": StatusProduction, "promoted_at": now}).Error
	})
}

func (s *GormStore) Retire(ctx context.Context, version int) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&versionModel{}).
		Where("version = ?", version).
		Updates(map[string]interface{}{"status": StatusRetired, "retired_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrModelNotFound
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, limit int) ([]ModelVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []versionModel
	result := s.db.WithContext(ctx).Order("version desc").Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	versions := make([]ModelVersion, 0, len(records))
	for _, record := range records {
		mv, err := toDomain(record)
		if err != nil {
			return nil, err
		}
		versions = append(versions, mv)
	}
	return versions, nil
}

func toModel(mv ModelVersion) (versionModel, error) {
	weights, err := json.Marshal(mv.Weights)
	if err != nil {
		return versionModel{}, err
	}
	hyper, err := json.Marshal(mv.Hyperparameters)
	if err != nil {
		return versionModel{}, err
	}
	metrics, err := json.Marshal(mv.Metrics)
	if err != nil {
		return versionModel{}, err
	}
	return versionModel{
		Version:         mv.Version,
		SnapshotID:      mv.SnapshotID,
		SchemaHash:      mv.SchemaHash,
		EncoderState:    datatypes.JSON(mv.EncoderState),
		Weights:         datatypes.JSON(weights),
		Hyperparameters: datatypes.JSON(hyper),
		Metrics:         datatypes.JSON(metrics),
		TrainingTimeNS:  int64(mv.TrainingTime),
		Status:          mv.Status,
		CreatedAt:       mv.CreatedAt,
		PromotedAt:      mv.PromotedAt,
		RetiredAt:       mv.RetiredAt,
	}, nil
}

func toDomain(record versionModel) (ModelVersion, error) {
	var weights linear.Weights
	if err := json.Unmarshal(record.Weights, &weights); err != nil {
		return ModelVersion{}, err
	}
	var hyper linear.Options
	if err := json.Unmarshal(record.Hyperparameters, &hyper); err != nil {
		return ModelVersion{}, err
	}
	var metrics Metrics
	if err := json.Unmarshal(record.Metrics, &metrics); err != nil {
		return ModelVersion{}, err
	}
	return ModelVersion{
		Version:         record.Version,
		SnapshotID:      record.SnapshotID,
		SchemaHash:      record.SchemaHash,
		EncoderState:    []byte(record.EncoderState),
		Weights:         weights,
		Hyperparameters: hyper,
		Metrics:         metrics,
		TrainingTime:    time.Duration(record.TrainingTimeNS),
		Status:          record.Status,
		CreatedAt:       record.CreatedAt,
		PromotedAt:      record.PromotedAt,
		RetiredAt:       record.RetiredAt,
	}, nil
}
