package bridge

import (
	"context"
	"fmt"
	"time"

	"tg-bale-bridge/internal/logger"
	"tg-bale-bridge/internal/models"
)

// LinkRegistry records which external chats belong to which user and
// enforces the one-owner-per-chat invariant.
type LinkRegistry struct {
	store   Store
	pairing *PairingEngine
}

func NewLinkRegistry(store Store, pairing *PairingEngine) *LinkRegistry {
	return &LinkRegistry{store: store, pairing: pairing}
}

// CreateLink claims an external chat for a user. The uniqueness check and
// insert are atomic in the store, so concurrent claims of the same chat
// succeed at most once.
func (r *LinkRegistry) CreateLink(ctx context.Context, userID uint, platform models.Platform, externalChatID int64, kind models.ChatKind, title string) (*models.Link, error) {
	link := &models.Link{
		OwnerUserID:    userID,
		Platform:       platform,
		ExternalChatID: externalChatID,
		Kind:           kind,
		Title:          title,
		CreatedAt:      time.Now(),
	}
	if err := r.store.Links().Insert(ctx, link); err != nil {
		return nil, err
	}
	logger.Infof("Linked %s chat %d (%s) to user %d", platform, externalChatID, kind, userID)
	return link, nil
}

// DeleteLink removes a link after an ownership check and cascades: every
// pair referencing the link is disabled and its routes evicted before the
// link row goes away.
func (r *LinkRegistry) DeleteLink(ctx context.Context, linkID, requestingUserID uint) error {
	link, err := r.store.Links().GetByID(ctx, linkID)
	if err != nil {
		return err
	}
	if link.OwnerUserID != requestingUserID {
		return ErrNotOwner
	}
	if err := r.pairing.RemoveLink(ctx, linkID); err != nil {
		return fmt.Errorf("failed to remove link %d: %w", linkID, err)
	}
	logger.Infof("Unlinked %s chat %d from user %d", link.Platform, link.ExternalChatID, requestingUserID)
	return nil
}

// FindLinkByExternalChat is the point lookup used on inbound events.
func (r *LinkRegistry) FindLinkByExternalChat(ctx context.Context, platform models.Platform, externalChatID int64) (*models.Link, error) {
	return r.store.Links().GetByExternalChat(ctx, platform, externalChatID)
}

// ListLinksForUser returns the user's links ordered by creation time.
func (r *LinkRegistry) ListLinksForUser(ctx context.Context, userID uint) ([]*models.Link, error) {
	return r.store.Links().ListByOwner(ctx, userID)
}
