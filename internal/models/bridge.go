package models

import "time"

// Platform identifies one of the two bridged chat networks.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformBale     Platform = "bale"
)

// Other returns the opposite platform.
func (p Platform) Other() Platform {
	if p == PlatformTelegram {
		return PlatformBale
	}
	return PlatformTelegram
}

// ChatKind classifies a linked chat.
type ChatKind string

const (
	ChatKindGroup   ChatKind = "group"
	ChatKindChannel ChatKind = "channel"
	ChatKindDM      ChatKind = "dm"
)

// User is an internal bridge account. A single user may hold external
// identities on both platforms; links and pairs always reference exactly
// one owning user.
type User struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	UserID         string `gorm:"size:36;uniqueIndex;not null"`
	TelegramUserID *int64 `gorm:"uniqueIndex"`
	BaleUserID     *int64 `gorm:"uniqueIndex"`
	CreatedAt      time.Time
}

// Link binds one external chat to one user. (platform, external_chat_id)
// is unique across all links: a chat can be claimed by at most one user.
type Link struct {
	ID             uint     `gorm:"primaryKey;autoIncrement"`
	OwnerUserID    uint     `gorm:"index;not null"`
	Platform       Platform `gorm:"size:16;not null;uniqueIndex:idx_links_platform_chat"`
	ExternalChatID int64    `gorm:"not null;uniqueIndex:idx_links_platform_chat"`
	Kind           ChatKind `gorm:"size:16;not null"`
	Title          string   `gorm:"type:text"`
	CreatedAt      time.Time
}

// Pair is a bidirectional relay route between two links of the same user
// on different platforms. A link participates in at most one enabled pair.
type Pair struct {
	ID          uint `gorm:"primaryKey;autoIncrement"`
	OwnerUserID uint `gorm:"index;not null"`
	LinkAID     uint `gorm:"index;not null"`
	LinkBID     uint `gorm:"index;not null"`
	Enabled     bool `gorm:"default:true"`
	DMMirroring bool `gorm:"default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VerificationCode is a single-use, time-bound token proving that the
// account that requested a link controls the chat it is presented in.
// At most one unused code exists per (platform, external_user_id).
type VerificationCode struct {
	Code           string   `gorm:"primaryKey;size:16"`
	Platform       Platform `gorm:"size:16;index:idx_codes_identity"`
	ExternalUserID int64    `gorm:"index:idx_codes_identity"`
	Kind           ChatKind `gorm:"size:16"`
	TargetChatID   *int64
	Used           bool `gorm:"default:false"`
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the code is no longer redeemable at now.
// A code issued at T is valid within [T, T+TTL).
func (c *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
