package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlatformOther(t *testing.T) {
	assert.Equal(t, PlatformBale, PlatformTelegram.Other())
	assert.Equal(t, PlatformTelegram, PlatformBale.Other())
}

func TestVerificationCodeExpired(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	code := VerificationCode{CreatedAt: issued, ExpiresAt: issued.Add(10 * time.Minute)}

	assert.False(t, code.Expired(issued))
	assert.False(t, code.Expired(issued.Add(10*time.Minute-time.Nanosecond)))
	assert.True(t, code.Expired(issued.Add(10*time.Minute)))
	assert.True(t, code.Expired(issued.Add(time.Hour)))
}

func TestRouteTable(t *testing.T) {
	table := NewRouteTable()

	keyA := RouteKey{Platform: PlatformTelegram, ChatID: -200}
	keyB := RouteKey{Platform: PlatformBale, ChatID: -300}
	table.Put(keyA, Route{PairID: 1, TargetPlatform: PlatformBale, TargetChatID: -300})
	table.Put(keyB, Route{PairID: 1, TargetPlatform: PlatformTelegram, TargetChatID: -200})
	assert.Equal(t, 2, table.Len())

	route, ok := table.Get(PlatformTelegram, -200)
	assert.True(t, ok)
	assert.Equal(t, int64(-300), route.TargetChatID)

	_, ok = table.Get(PlatformTelegram, -999)
	assert.False(t, ok)

	table.RemovePair(1)
	assert.Equal(t, 0, table.Len())
	_, ok = table.Get(PlatformBale, -300)
	assert.False(t, ok)
}
