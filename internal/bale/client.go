package bale

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/config"
	"tg-bale-bridge/internal/crash"
	"tg-bale-bridge/internal/logger"
	"tg-bale-bridge/internal/models"
)

// Client talks to the Bale Bot API. Bale exposes a Telegram-compatible
// HTTP surface, so the client is a thin JSON/multipart wrapper with
// offset-based polling.
type Client struct {
	token        string
	apiURL       string
	pollInterval time.Duration
	selfID       int64
	http         *http.Client
}

// NewClient verifies the token against getMe and records the bot's own
// id for loop prevention.
func NewClient(ctx context.Context, cfg config.BaleConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bale token is required")
	}
	interval := time.Duration(cfg.PollInterval * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}
	c := &Client{
		token:        cfg.Token,
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		pollInterval: interval,
		http:         &http.Client{Timeout: 60 * time.Second},
	}
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, fmt.Errorf("failed to get bale bot info: %w", err)
	}
	logger.Infof("Authorized on bale account %s", me.Username)
	c.selfID = me.ID
	return c, nil
}

func (c *Client) Platform() models.Platform {
	return models.PlatformBale
}

// Listen polls getUpdates and emits normalized events until the context
// is cancelled.
func (c *Client) Listen(ctx context.Context) (<-chan bridge.InboundEvent, error) {
	events := make(chan bridge.InboundEvent)
	go func() {
		defer close(events)
		defer crash.RecoverWithStack("bale-listener")
		var offset int64
		for {
			updates, err := c.getUpdates(ctx, offset)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warningf("Bale getUpdates failed: %v", err)
			}
			for _, update := range updates {
				if update.UpdateID >= offset {
					offset = update.UpdateID + 1
				}
				message := update.Message
				if message == nil {
					message = update.ChannelPost
				}
				if message == nil {
					continue
				}
				select {
				case events <- c.normalize(message):
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-time.After(c.pollInterval):
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	params := map[string]interface{}{
		"timeout": 30,
	}
	if offset > 0 {
		params["offset"] = offset
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) normalize(message *Message) bridge.InboundEvent {
	event := bridge.InboundEvent{
		Platform:  models.PlatformBale,
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
		event.MediaRef = largestPhoto(message.Photo).FileID
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
	return c.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}, nil)
}

// SendMedia re-uploads fetched media bytes via the matching multipart
// upload method.
func (c *Client) SendMedia(ctx context.Context, chatID int64, kind bridge.MessageKind, payload []byte, fileName, caption string) error {
	var method, field string
	switch kind {
	case bridge.MessagePhoto:
		method, field = "sendPhoto", "photo"
	case bridge.MessageDocument:
		method, field = "sendDocument", "document"
	case bridge.MessageVideo:
		method, field = "sendVideo", "video"
	default:
		return fmt.Errorf("unsupported media kind: %s", kind)
	}
	fields := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	if caption != "" {
		fields["caption"] = caption
	}
	return c.upload(ctx, method, field, fileName, payload, fields)
}

// FetchMedia downloads a file by its Bale file id.
func (c *Client) FetchMedia(ctx context.Context, mediaRef string) ([]byte, error) {
	var file File
	if err := c.call(ctx, "getFile", map[string]interface{}{"file_id": mediaRef}, &file); err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	downloadURL := fmt.Sprintf("%s/file/bot%s/%s", c.apiURL, c.token, file.FilePath)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
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

// call performs a JSON method call and decodes the result.
func (c *Client) call(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	var body io.Reader
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), body)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	return c.do(request, method, result)
}

// upload performs a multipart method call with a single file field.
func (c *Client) upload(ctx context.Context, method, field, fileName string, payload []byte, fields map[string]string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile(field, fileName)
	if err != nil {
		return err
	}
	if _, err := part.Write(payload); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), &buf)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(request, method, nil)
}

func (c *Client) do(request *http.Request, method string, result interface{}) error {
	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("bale %s request failed: %w", method, err)
	}
	defer response.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("bale %s: failed to decode response: %w", method, err)
	}
	if !decoded.OK {
		return fmt.Errorf("bale %s failed: [%d] %s", method, decoded.ErrorCode, decoded.Description)
	}
	if result != nil {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return fmt.Errorf("bale %s: failed to decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiURL, url.PathEscape(c.token), method)
}

func chatKind(chatType string) models.ChatKind {
	switch chatType {
	case "group", "supergroup":
		return models.ChatKindGroup
	case "channel":
		return models.ChatKindChannel
	default:
		return models.ChatKindDM
	}
}

func largestPhoto(sizes []PhotoSize) PhotoSize {
	best := sizes[0]
	for _, size := range sizes[1:] {
		if size.Width*size.Height > best.Width*best.Height {
			best = size
		}
	}
	return best
}

func senderName(user *User) string {
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
