package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mymmrac/telego"

	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/config"
	"tg-bale-bridge/internal/crash"
	"tg-bale-bridge/internal/logger"
	"tg-bale-bridge/internal/models"
)

// Client is the Telegram side of the bridge. Updates arrive via long
// polling by default, or via the webhook server when an endpoint is
// configured.
type Client struct {
	bot    *telego.Bot
	cfg    config.TelegramConfig
	selfID int64
	http   *http.Client
	server *WebhookServer
}

// NewClient initializes the bot and resolves its own account id, which
// the dispatcher needs for loop prevention.
func NewClient(ctx context.Context, cfg config.TelegramConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	bot, err := telego.NewBot(cfg.Token, telego.WithDefaultDebugLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	botUser, err := bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get telegram bot info: %w", err)
	}
	logger.Infof("Authorized on telegram account %s", botUser.Username)

	return &Client{
		bot:    bot,
		cfg:    cfg,
		selfID: botUser.ID,
		http:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *Client) Platform() models.Platform {
	return models.PlatformTelegram
}

// Listen starts receiving updates and emits normalized events. With a
// webhook endpoint configured the webhook server is started; otherwise
// long polling is used.
func (c *Client) Listen(ctx context.Context) (<-chan bridge.InboundEvent, error) {
	var updates <-chan telego.Update
	var err error

	if c.cfg.Webhook.Endpoint != "" {
		updates, c.server, err = SetupWebhook(ctx, c.bot, c.cfg.Webhook)
		if err != nil {
			return nil, err
		}
		crash.SafeGoroutine("telegram-webhook-server", func() {
			if serveErr := c.server.Start(); serveErr != nil && serveErr != http.ErrServerClosed {
				logger.Errorf("Webhook server error: %v", serveErr)
			}
		})
	} else {
		if err = c.bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{}); err != nil {
			return nil, fmt.Errorf("failed to delete existing webhook: %w", err)
		}
		updates, err = c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
			AllowedUpdates: []string{"message", "channel_post"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start telegram long polling: %w", err)
		}
	}

	events := make(chan bridge.InboundEvent)
	go func() {
		defer close(events)
		defer crash.RecoverWithStack("telegram-listener")
		for update := range updates {
			message := update.Message
			if message == nil {
				message = update.ChannelPost
			}
			if message == nil {
				continue
			}
			events <- c.normalize(message)
		}
		if c.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.server.Shutdown(shutdownCtx); err != nil {
				logger.Warningf("Webhook server shutdown error: %v", err)
			}
		}
	}()
	return events, nil
}

func (c *Client) normalize(message *telego.Message) bridge.InboundEvent {
	event := bridge.InboundEvent{
		Platform:  models.PlatformTelegram,
		ChatID:    message.Chat.ID,
		ChatKind:  chatKind(message.Chat.Type),
		ChatTitle: message.Chat.Title,
	}
	if message.From != nil {
		event.SenderID = message.From.ID
		event.SenderName = senderName(message.From)
		event.FromSelf = message.From.ID == c.selfID
	}

	switch {
	case message.Text != "":
		event.Kind = bridge.MessageText
		event.Text = message.Text
	case len(message.Photo) > 0:
		event.Kind = bridge.MessagePhoto
		// last entry is the largest size
		event.MediaRef = message.Photo[len(message.Photo)-1].FileID
		event.Caption = message.Caption
		event.FileName = "photo.jpg"
	case message.Document != nil:
		event.Kind = bridge.MessageDocument
		event.MediaRef = message.Document.FileID
		event.Caption = message.Caption
		event.FileName = message.Document.FileName
	case message.Video != nil:
		event.Kind = bridge.MessageVideo
		event.MediaRef = message.Video.FileID
		event.Caption = message.Caption
		event.FileName = "video.mp4"
	default:
		event.Kind = bridge.MessageOther
	}
	return event
}

// SendText delivers plain text to a chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	})
	return err
}

// SendMedia re-uploads fetched media bytes to a chat, preserving kind
// and caption.
func (c *Client) SendMedia(ctx context.Context, chatID int64, kind bridge.MessageKind, payload []byte, fileName, caption string) error {
	file := telego.InputFile{File: namedReader{Reader: bytes.NewReader(payload), name: fileName}}
	var err error
	switch kind {
	case bridge.MessagePhoto:
		_, err = c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID:  telego.ChatID{ID: chatID},
			Photo:   file,
			Caption: caption,
		})
	case bridge.MessageDocument:
		_, err = c.bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID:   telego.ChatID{ID: chatID},
			Document: file,
			Caption:  caption,
		})
	case bridge.MessageVideo:
		_, err = c.bot.SendVideo(ctx, &telego.SendVideoParams{
			ChatID:  telego.ChatID{ID: chatID},
			Video:   file,
			Caption: caption,
		})
	default:
		return fmt.Errorf("unsupported media kind: %s", kind)
	}
	return err
}

// FetchMedia downloads a file by its Telegram file id.
func (c *Client) FetchMedia(ctx context.Context, mediaRef string) ([]byte, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: mediaRef})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bot.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return nil, err
	}
	response, err := c.http.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", response.StatusCode)
	}
	return io.ReadAll(response.Body)
}

func chatKind(chatType string) models.ChatKind {
	switch chatType {
	case telego.ChatTypeGroup, telego.ChatTypeSupergroup:
		return models.ChatKindGroup
	case telego.ChatTypeChannel:
		return models.ChatKindChannel
	default:
		return models.ChatKindDM
	}
}

func senderName(user *telego.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" {
		name = fmt.Sprintf("id:%d", user.ID)
	}
	return name
}

// namedReader satisfies the named-reader contract telego uploads expect.
type namedReader struct {
	io.Reader
	name string
}

func (n namedReader) Name() string { return n.name }
