package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/models"
)

// LinkRepository handles database operations for Link
type LinkRepository struct {
	db *gorm.DB
}

// NewLinkRepository creates a new LinkRepository
func NewLinkRepository(db *gorm.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Insert creates a link. The unique index on (platform, external_chat_id)
// makes the uniqueness check and the insert a single atomic step.
func (r *LinkRepository) Insert(ctx context.Context, link *models.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return bridge.ErrAlreadyLinked
		}
		return err
	}
	return nil
}

// GetByID retrieves a link by id
func (r *LinkRepository) GetByID(ctx context.Context, id uint) (*models.Link, error) {
	var link models.Link
	if err := r.db.WithContext(ctx).First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bridge.ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

// GetByExternalChat is the indexed point lookup used on inbound events
func (r *LinkRepository) GetByExternalChat(ctx context.Context, platform models.Platform, externalChatID int64) (*models.Link, error) {
	var link models.Link
	err := r.db.WithContext(ctx).
		Where("platform = ? AND external_chat_id = ?", platform, externalChatID).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bridge.ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

// ListByOwner returns a user's links ordered by creation time
func (r *LinkRepository) ListByOwner(ctx context.Context, ownerUserID uint) ([]*models.Link, error) {
	var links []*models.Link
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at, id").
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

// Delete removes a link row
func (r *LinkRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Link{}, id).Error
}
