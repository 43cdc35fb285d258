package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/models"
)

// CodeRepository handles database operations for VerificationCode
type CodeRepository struct {
	db *gorm.DB
}

// NewCodeRepository creates a new CodeRepository
func NewCodeRepository(db *gorm.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// Create stores a fresh verification code
func (r *CodeRepository) Create(ctx context.Context, code *models.VerificationCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

// GetByCode looks a code up by its primary key
func (r *CodeRepository) GetByCode(ctx context.Context, code string) (*models.VerificationCode, error) {
	var record models.VerificationCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bridge.ErrCodeNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Consume flips used from false to true in a single guarded UPDATE; the
// row count tells whether this caller won the race.
func (r *CodeRepository) Consume(ctx context.Context, code string, targetChatID int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.VerificationCode{}).
		Where("code = ? AND used = ?", code, false).
		Updates(map[string]interface{}{"used": true, "target_chat_id": targetChatID})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DeleteUnused drops outstanding unused codes for an identity
func (r *CodeRepository) DeleteUnused(ctx context.Context, platform models.Platform, externalUserID int64) error {
	return r.db.WithContext(ctx).
		Where("platform = ? AND external_user_id = ? AND used = ?", platform, externalUserID, false).
		Delete(&models.VerificationCode{}).Error
}

// PurgeStale drops used or expired codes for an identity
func (r *CodeRepository) PurgeStale(ctx context.Context, platform models.Platform, externalUserID int64, now time.Time) error {
	return r.db.WithContext(ctx).
		Where("platform = ? AND external_user_id = ? AND (used = ? OR expires_at <= ?)", platform, externalUserID, true, now).
		Delete(&models.VerificationCode{}).Error
}
