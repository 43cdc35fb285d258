package telegram

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"

	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/models"
)

func TestChatKind(t *testing.T) {
	assert.Equal(t, models.ChatKindGroup, chatKind(telego.ChatTypeGroup))
	assert.Equal(t, models.ChatKindGroup, chatKind(telego.ChatTypeSupergroup))
	assert.Equal(t, models.ChatKindChannel, chatKind(telego.ChatTypeChannel))
	assert.Equal(t, models.ChatKindDM, chatKind(telego.ChatTypePrivate))
}

func TestSenderName(t *testing.T) {
	assert.Equal(t, "@ali", senderName(&telego.User{ID: 1, Username: "ali", FirstName: "Ali"}))
	assert.Equal(t, "Ali Rezai", senderName(&telego.User{ID: 1, FirstName: "Ali", LastName: "Rezai"}))
	assert.Equal(t, "Ali", senderName(&telego.User{ID: 1, FirstName: "Ali"}))
	assert.Equal(t, "id:7", senderName(&telego.User{ID: 7}))
}

func TestNormalize(t *testing.T) {
	client := &Client{selfID: 777}

	text := client.normalize(&telego.Message{
		Chat: telego.Chat{ID: -200, Type: telego.ChatTypeSupergroup, Title: "Friends"},
		From: &telego.User{ID: 42, Username: "ali"},
		Text: "hello",
	})
	assert.Equal(t, models.PlatformTelegram, text.Platform)
	assert.Equal(t, int64(-200), text.ChatID)
	assert.Equal(t, models.ChatKindGroup, text.ChatKind)
	assert.Equal(t, "Friends", text.ChatTitle)
	assert.Equal(t, "@ali", text.SenderName)
	assert.False(t, text.FromSelf)
	assert.Equal(t, bridge.MessageText, text.Kind)
	assert.Equal(t, "hello", text.Text)

	self := client.normalize(&telego.Message{
		Chat: telego.Chat{ID: -200, Type: telego.ChatTypeSupergroup},
		From: &telego.User{ID: 777, Username: "bridge_bot"},
		Text: "forwarded copy",
	})
	assert.True(t, self.FromSelf)

	photo := client.normalize(&telego.Message{
		Chat:    telego.Chat{ID: 42, Type: telego.ChatTypePrivate},
		From:    &telego.User{ID: 42, Username: "ali"},
		Caption: "pic",
		Photo: []telego.PhotoSize{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "large", Width: 800, Height: 800},
		},
	})
	assert.Equal(t, bridge.MessagePhoto, photo.Kind)
	assert.Equal(t, "large", photo.MediaRef)
	assert.Equal(t, "pic", photo.Caption)

	document := client.normalize(&telego.Message{
		Chat:     telego.Chat{ID: 42, Type: telego.ChatTypePrivate},
		From:     &telego.User{ID: 42},
		Document: &telego.Document{FileID: "doc-1", FileName: "notes.pdf"},
	})
	assert.Equal(t, bridge.MessageDocument, document.Kind)
	assert.Equal(t, "doc-1", document.MediaRef)
	assert.Equal(t, "notes.pdf", document.FileName)

	sticker := client.normalize(&telego.Message{
		Chat: telego.Chat{ID: 42, Type: telego.ChatTypePrivate},
		From: &telego.User{ID: 42},
	})
	assert.Equal(t, bridge.MessageOther, sticker.Kind)
}
