package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/models"
)

// PairRepository handles database operations for Pair
type PairRepository struct {
	db *gorm.DB
}

// NewPairRepository creates a new PairRepository
func NewPairRepository(db *gorm.DB) *PairRepository {
	return &PairRepository{db: db}
}

// Insert creates a pair
func (r *PairRepository) Insert(ctx context.Context, pair *models.Pair) error {
	return r.db.WithContext(ctx).Create(pair).Error
}

// GetByID retrieves a pair by id
func (r *PairRepository) GetByID(ctx context.Context, id uint) (*models.Pair, error) {
	var pair models.Pair
	if err := r.db.WithContext(ctx).First(&pair, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bridge.ErrPairNotFound
		}
		return nil, err
	}
	return &pair, nil
}

// GetEnabledByLink returns the enabled pair a link participates in
func (r *PairRepository) GetEnabledByLink(ctx context.Context, linkID uint) (*models.Pair, error) {
	var pair models.Pair
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND (link_a_id = ? OR link_b_id = ?)", true, linkID, linkID).
		First(&pair).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bridge.ErrPairNotFound
		}
		return nil, err
	}
	return &pair, nil
}

// ListEnabled returns all enabled pairs, used to build the route table
func (r *PairRepository) ListEnabled(ctx context.Context) ([]*models.Pair, error) {
	var pairs []*models.Pair
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&pairs).Error; err != nil {
		return nil, err
	}
	return pairs, nil
}

// ListByOwner returns a user's pairs
func (r *PairRepository) ListByOwner(ctx context.Context, ownerUserID uint) ([]*models.Pair, error) {
	var pairs []*models.Pair
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("id").
		Find(&pairs).Error
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// SetEnabled toggles a pair
func (r *PairRepository) SetEnabled(ctx context.Context, id uint, enabled bool) error {
	return r.db.WithContext(ctx).Model(&models.Pair{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"enabled": enabled, "updated_at": time.Now()}).Error
}

// DisableByLink disables every pair referencing the link and returns the
// pairs that changed, so the route table can be updated.
func (r *PairRepository) DisableByLink(ctx context.Context, linkID uint) ([]*models.Pair, error) {
	var pairs []*models.Pair
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND (link_a_id = ? OR link_b_id = ?)", true, linkID, linkID).
		Find(&pairs).Error
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		if err := r.SetEnabled(ctx, pair.ID, false); err != nil {
			return nil, err
		}
		pair.Enabled = false
	}
	return pairs, nil
}
