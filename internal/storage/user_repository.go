package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/models"
)

// UserRepository handles database operations for User
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreateByIdentity resolves the user owning an external identity,
// creating one if needed. A concurrent create of the same identity loses
// the unique-index race and re-reads the winner's row.
func (r *UserRepository) GetOrCreateByIdentity(ctx context.Context, platform models.Platform, externalUserID int64) (*models.User, error) {
	user, err := r.getByIdentity(ctx, platform, externalUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &models.User{
		UserID:    uuid.NewString(),
		CreatedAt: time.Now(),
	}
	if platform == models.PlatformTelegram {
		fresh.TelegramUserID = &externalUserID
	} else {
		fresh.BaleUserID = &externalUserID
	}
	if err := r.db.WithContext(ctx).Create(fresh).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.getByIdentity(ctx, platform, externalUserID)
		}
		return nil, err
	}
	return fresh, nil
}

func (r *UserRepository) getByIdentity(ctx context.Context, platform models.Platform, externalUserID int64) (*models.User, error) {
	column := "telegram_user_id"
	if platform == models.PlatformBale {
		column = "bale_user_id"
	}
	var user models.User
	if err := r.db.WithContext(ctx).Where(column+" = ?", externalUserID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID retrieves a user by internal id
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bridge.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
