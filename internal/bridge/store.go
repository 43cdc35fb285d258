package bridge

import (
	"context"
	"time"

	"tg-bale-bridge/internal/models"
)

// UserStore resolves external platform identities to bridge users.
type UserStore interface {
	// GetOrCreateByIdentity returns the user owning the given external
	// identity, creating one if it does not exist yet.
	GetOrCreateByIdentity(ctx context.Context, platform models.Platform, externalUserID int64) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// CodeStore persists verification codes.
type CodeStore interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	// GetByCode returns ErrCodeNotFound if no such code exists.
	GetByCode(ctx context.Context, code string) (*models.VerificationCode, error)
	// Consume atomically flips used from false to true and records the
	// target chat. Returns false when the code was already consumed, so
	// concurrent redemption attempts succeed at most once.
	Consume(ctx context.Context, code string, targetChatID int64) (bool, error)
	// DeleteUnused drops any outstanding unused codes for an identity.
	DeleteUnused(ctx context.Context, platform models.Platform, externalUserID int64) error
	// PurgeStale drops used or expired codes for an identity.
	PurgeStale(ctx context.Context, platform models.Platform, externalUserID int64, now time.Time) error
}

// LinkStore persists chat links.
type LinkStore interface {
	// Insert returns ErrAlreadyLinked when (platform, external_chat_id)
	// is already taken; the uniqueness check and insert are atomic.
	Insert(ctx context.Context, link *models.Link) error
	// GetByID returns ErrLinkNotFound if no such link exists.
	GetByID(ctx context.Context, id uint) (*models.Link, error)
	// GetByExternalChat returns ErrLinkNotFound if the chat is unlinked.
	GetByExternalChat(ctx context.Context, platform models.Platform, externalChatID int64) (*models.Link, error)
	// ListByOwner returns the owner's links ordered by creation time.
	ListByOwner(ctx context.Context, ownerUserID uint) ([]*models.Link, error)
	Delete(ctx context.Context, id uint) error
}

// PairStore persists relay pairs.
type PairStore interface {
	Insert(ctx context.Context, pair *models.Pair) error
	// GetByID returns ErrPairNotFound if no such pair exists.
	GetByID(ctx context.Context, id uint) (*models.Pair, error)
	// GetEnabledByLink returns the enabled pair a link participates in,
	// or ErrPairNotFound.
	GetEnabledByLink(ctx context.Context, linkID uint) (*models.Pair, error)
	ListEnabled(ctx context.Context) ([]*models.Pair, error)
	ListByOwner(ctx context.Context, ownerUserID uint) ([]*models.Pair, error)
	SetEnabled(ctx context.Context, id uint, enabled bool) error
	// DisableByLink disables every pair referencing the link and returns
	// the pairs that were disabled.
	DisableByLink(ctx context.Context, linkID uint) ([]*models.Pair, error)
}

// Store aggregates the persistence operations the bridge core needs.
type Store interface {
	Users() UserStore
	Codes() CodeStore
	Links() LinkStore
	Pairs() PairStore
}
