package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-bale-bridge/internal/models"
)

func TestCreateLinkRejectsDuplicateChat(t *testing.T) {
	store, _, registry, _ := newTestEngines()
	ctx := context.Background()

	alice, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	bob, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 2)
	require.NoError(t, err)

	_, err = registry.CreateLink(ctx, alice.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
	require.NoError(t, err)

	// neither the owner nor anyone else can claim the chat twice
	_, err = registry.CreateLink(ctx, alice.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
	assert.ErrorIs(t, err, ErrAlreadyLinked)
	_, err = registry.CreateLink(ctx, bob.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
	assert.ErrorIs(t, err, ErrAlreadyLinked)

	// the same chat id on the other platform is a different chat
	_, err = registry.CreateLink(ctx, bob.ID, models.PlatformBale, -200, models.ChatKindGroup, "")
	require.NoError(t, err)
}

func TestConcurrentCreateLinkExactlyOne(t *testing.T) {
	store, _, registry, _ := newTestEngines()
	ctx := context.Background()

	user, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = registry.CreateLink(ctx, user.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyLinked)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestDeleteLinkRequiresOwner(t *testing.T) {
	store, _, registry, _ := newTestEngines()
	ctx := context.Background()

	alice, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	bob, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 2)
	require.NoError(t, err)

	link, err := registry.CreateLink(ctx, alice.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
	require.NoError(t, err)

	err = registry.DeleteLink(ctx, link.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	err = registry.DeleteLink(ctx, link.ID, alice.ID)
	require.NoError(t, err)

	_, err = registry.FindLinkByExternalChat(ctx, models.PlatformTelegram, -200)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestDeleteLinkDisablesPairs(t *testing.T) {
	store, pairing, registry, _ := newTestEngines()
	ctx := context.Background()

	user, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	tgLink, err := registry.CreateLink(ctx, user.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
	require.NoError(t, err)
	baleLink, err := registry.CreateLink(ctx, user.ID, models.PlatformBale, -300, models.ChatKindGroup, "")
	require.NoError(t, err)

	pair, err := pairing.CreatePair(ctx, user.ID, tgLink.ID, baleLink.ID, false)
	require.NoError(t, err)

	_, err = pairing.ResolveRoute(models.PlatformTelegram, -200)
	require.NoError(t, err)

	err = registry.DeleteLink(ctx, tgLink.ID, user.ID)
	require.NoError(t, err)

	// the pair is disabled and both directions stop routing
	stored, err := store.Pairs().GetByID(ctx, pair.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	_, err = pairing.ResolveRoute(models.PlatformTelegram, -200)
	assert.ErrorIs(t, err, ErrNoRoute)
	_, err = pairing.ResolveRoute(models.PlatformBale, -300)
	assert.ErrorIs(t, err, ErrNoRoute)

	// the surviving link can be paired again
	otherTg, err := registry.CreateLink(ctx, user.ID, models.PlatformTelegram, -201, models.ChatKindGroup, "")
	require.NoError(t, err)
	_, err = pairing.CreatePair(ctx, user.ID, otherTg.ID, baleLink.ID, false)
	require.NoError(t, err)
}

func TestDeleteLinkRacingCreatePair(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		store, pairing, registry, _ := newTestEngines()

		user, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
		require.NoError(t, err)
		tgLink, err := registry.CreateLink(ctx, user.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
		require.NoError(t, err)
		baleLink, err := registry.CreateLink(ctx, user.ID, models.PlatformBale, -300, models.ChatKindGroup, "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		var pairErr, deleteErr error
		go func() {
			defer wg.Done()
			_, pairErr = pairing.CreatePair(ctx, user.ID, tgLink.ID, baleLink.ID, false)
		}()
		go func() {
			defer wg.Done()
			deleteErr = registry.DeleteLink(ctx, tgLink.ID, user.ID)
		}()
		wg.Wait()

		require.NoError(t, deleteErr)
		if pairErr != nil {
			assert.ErrorIs(t, pairErr, ErrLinkNotFound)
		}

		// whichever side won, no enabled pair may reference the deleted
		// link and nothing routes for its chat
		enabled, err := store.Pairs().ListEnabled(ctx)
		require.NoError(t, err)
		for _, pair := range enabled {
			_, err := store.Links().GetByID(ctx, pair.LinkAID)
			assert.NoError(t, err)
			_, err = store.Links().GetByID(ctx, pair.LinkBID)
			assert.NoError(t, err)
		}
		_, err = pairing.ResolveRoute(models.PlatformTelegram, -200)
		assert.ErrorIs(t, err, ErrNoRoute)
	}
}

func TestListLinksForUser(t *testing.T) {
	store, _, registry, _ := newTestEngines()
	ctx := context.Background()

	alice, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	bob, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformBale, 2)
	require.NoError(t, err)

	_, err = registry.CreateLink(ctx, alice.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
	require.NoError(t, err)
	_, err = registry.CreateLink(ctx, alice.ID, models.PlatformBale, -300, models.ChatKindChannel, "")
	require.NoError(t, err)
	_, err = registry.CreateLink(ctx, bob.ID, models.PlatformBale, -400, models.ChatKindGroup, "")
	require.NoError(t, err)

	links, err := registry.ListLinksForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, link := range links {
		assert.Equal(t, alice.ID, link.OwnerUserID)
	}
}
