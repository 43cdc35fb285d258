package bridge

import (
	"context"

	"tg-bale-bridge/internal/models"
)

// MessageKind classifies inbound message content.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessagePhoto    MessageKind = "photo"
	MessageDocument MessageKind = "document"
	MessageVideo    MessageKind = "video"
	MessageOther    MessageKind = "other"
)

// InboundEvent is the normalized form of a new-message notification from
// either platform. Listeners emit these; nothing downstream touches the
// platform SDK types.
type InboundEvent struct {
	Platform   models.Platform
	ChatID     int64
	ChatKind   models.ChatKind
	ChatTitle  string
	SenderID   int64
	SenderName string
	// FromSelf marks messages authored by the bridge's own platform
	// account; the dispatcher drops them before any lookup.
	FromSelf bool
	Kind     MessageKind
	Text     string
	Caption  string
	MediaRef string
	FileName string
}

// PlatformClient is the boundary to one platform's API. One instance per
// platform; implementations live in internal/telegram and internal/bale.
type PlatformClient interface {
	Platform() models.Platform
	// Listen starts receiving updates and returns the ordered stream of
	// normalized events for this platform. The channel closes when ctx
	// is cancelled.
	Listen(ctx context.Context) (<-chan InboundEvent, error)
	SendText(ctx context.Context, chatID int64, text string) error
	SendMedia(ctx context.Context, chatID int64, kind MessageKind, payload []byte, fileName, caption string) error
	FetchMedia(ctx context.Context, mediaRef string) ([]byte, error)
}
