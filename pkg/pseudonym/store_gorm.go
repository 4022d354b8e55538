package pseudonym

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type mappingModel struct {
	PID                 string    `gorm:"primaryKey;column:pid"`
	IdentityFingerprint string    `gorm:"column:identity_fingerprint;uniqueIndex"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

func (mappingModel) TableName() string {
	return "pseudonym_audit_vault"
}

// GormStore persists the audit vault in the intake-boundary database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&mappingModel{})
}

func (s *GormStore) Save(ctx context.Context, m Mapping) error {
	record := mappingModel{
		PID:                 m.PID,
		IdentityFingerprint: m.IdentityFingerprint,
		CreatedAt:           time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

func (s *GormStore) GetByPID(ctx context.Context, pid string) (Mapping, error) {
	var record mappingModel
	result := s.db.WithContext(ctx).First(&record, "pid = ?", pid)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return Mapping{}, ErrMappingNotFound
	}
	if result.Error != nil {
		return Mapping{}, result.Error
	}
	return Mapping{
		PID:                 record.PID,
		IdentityFingerprint: record.IdentityFingerprint,
		CreatedAt:           record.CreatedAt,
	}, nil
}
