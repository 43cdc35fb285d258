package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-bale-bridge/internal/models"
)

func TestCreatePairRoutesBothDirections(t *testing.T) {
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
	assert.True(t, pair.Enabled)

	route, err := pairing.ResolveRoute(models.PlatformTelegram, -200)
	require.NoError(t, err)
	assert.Equal(t, models.PlatformBale, route.TargetPlatform)
	assert.Equal(t, int64(-300), route.TargetChatID)

	route, err = pairing.ResolveRoute(models.PlatformBale, -300)
	require.NoError(t, err)
	assert.Equal(t, models.PlatformTelegram, route.TargetPlatform)
	assert.Equal(t, int64(-200), route.TargetChatID)
}

func TestCreatePairValidations(t *testing.T) {
	store, pairing, registry, _ := newTestEngines()
	ctx := context.Background()

	alice, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	bob, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 2)
	require.NoError(t, err)

	aliceTg, err := registry.CreateLink(ctx, alice.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
	require.NoError(t, err)
	aliceTg2, err := registry.CreateLink(ctx, alice.ID, models.PlatformTelegram, -201, models.ChatKindGroup, "")
	require.NoError(t, err)
	aliceBale, err := registry.CreateLink(ctx, alice.ID, models.PlatformBale, -300, models.ChatKindGroup, "")
	require.NoError(t, err)
	bobBale, err := registry.CreateLink(ctx, bob.ID, models.PlatformBale, -301, models.ChatKindGroup, "")
	require.NoError(t, err)

	// someone else's link
	_, err = pairing.CreatePair(ctx, alice.ID, aliceTg.ID, bobBale.ID, false)
	assert.ErrorIs(t, err, ErrCrossOwnership)

	// both links on one platform
	_, err = pairing.CreatePair(ctx, alice.ID, aliceTg.ID, aliceTg2.ID, false)
	assert.ErrorIs(t, err, ErrSamePlatform)

	// unknown link id
	_, err = pairing.CreatePair(ctx, alice.ID, aliceTg.ID, 9999, false)
	assert.ErrorIs(t, err, ErrLinkNotFound)

	// a link can participate in only one enabled pair
	_, err = pairing.CreatePair(ctx, alice.ID, aliceTg.ID, aliceBale.ID, false)
	require.NoError(t, err)
	_, err = pairing.CreatePair(ctx, alice.ID, aliceTg2.ID, aliceBale.ID, false)
	assert.ErrorIs(t, err, ErrLinkAlreadyPaired)
}

func TestCreatePairDMRequiresOptIn(t *testing.T) {
	store, pairing, registry, _ := newTestEngines()
	ctx := context.Background()

	user, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	dmLink, err := registry.CreateLink(ctx, user.ID, models.PlatformTelegram, 100, models.ChatKindDM, "")
	require.NoError(t, err)
	baleLink, err := registry.CreateLink(ctx, user.ID, models.PlatformBale, -300, models.ChatKindGroup, "")
	require.NoError(t, err)

	_, err = pairing.CreatePair(ctx, user.ID, dmLink.ID, baleLink.ID, false)
	assert.ErrorIs(t, err, ErrDMNotOptedIn)

	_, err = pairing.CreatePair(ctx, user.ID, dmLink.ID, baleLink.ID, true)
	require.NoError(t, err)

	route, err := pairing.ResolveRoute(models.PlatformTelegram, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(-300), route.TargetChatID)
}

func TestResolveRouteDMWithoutMirroring(t *testing.T) {
	// A pair whose DM side never opted in can exist in stored data; the
	// DM direction must stay silent while the group direction routes.
	store, _, registry, _ := newTestEngines()
	ctx := context.Background()

	user, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	dmLink, err := registry.CreateLink(ctx, user.ID, models.PlatformTelegram, 100, models.ChatKindDM, "")
	require.NoError(t, err)
	baleLink, err := registry.CreateLink(ctx, user.ID, models.PlatformBale, -300, models.ChatKindGroup, "")
	require.NoError(t, err)
	require.NoError(t, store.Pairs().Insert(ctx, &models.Pair{
		OwnerUserID: user.ID,
		LinkAID:     dmLink.ID,
		LinkBID:     baleLink.ID,
		Enabled:     true,
		DMMirroring: false,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}))

	fresh := NewPairingEngine(store)
	require.NoError(t, fresh.LoadRoutes(ctx))

	_, err = fresh.ResolveRoute(models.PlatformTelegram, 100)
	assert.ErrorIs(t, err, ErrNoRoute)

	route, err := fresh.ResolveRoute(models.PlatformBale, -300)
	require.NoError(t, err)
	assert.Equal(t, int64(100), route.TargetChatID)
}

func TestDisablePair(t *testing.T) {
	store, pairing, registry, _ := newTestEngines()
	ctx := context.Background()

	alice, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	bob, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 2)
	require.NoError(t, err)
	tgLink, err := registry.CreateLink(ctx, alice.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
	require.NoError(t, err)
	baleLink, err := registry.CreateLink(ctx, alice.ID, models.PlatformBale, -300, models.ChatKindGroup, "")
	require.NoError(t, err)
	pair, err := pairing.CreatePair(ctx, alice.ID, tgLink.ID, baleLink.ID, false)
	require.NoError(t, err)

	err = pairing.DisablePair(ctx, pair.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, pairing.DisablePair(ctx, pair.ID, alice.ID))
	_, err = pairing.ResolveRoute(models.PlatformTelegram, -200)
	assert.ErrorIs(t, err, ErrNoRoute)
	_, err = pairing.ResolveRoute(models.PlatformBale, -300)
	assert.ErrorIs(t, err, ErrNoRoute)

	err = pairing.DisablePair(ctx, 9999, alice.ID)
	assert.ErrorIs(t, err, ErrPairNotFound)
}

func TestLoadRoutesRebuildsTable(t *testing.T) {
	store, pairing, registry, _ := newTestEngines()
	ctx := context.Background()

	user, err := store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	tgLink, err := registry.CreateLink(ctx, user.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "")
	require.NoError(t, err)
	baleLink, err := registry.CreateLink(ctx, user.ID, models.PlatformBale, -300, models.ChatKindGroup, "")
	require.NoError(t, err)
	_, err = pairing.CreatePair(ctx, user.ID, tgLink.ID, baleLink.ID, false)
	require.NoError(t, err)

	// a fresh engine over the same store sees the routes after loading
	fresh := NewPairingEngine(store)
	_, err = fresh.ResolveRoute(models.PlatformTelegram, -200)
	assert.ErrorIs(t, err, ErrNoRoute)

	require.NoError(t, fresh.LoadRoutes(ctx))
	route, err := fresh.ResolveRoute(models.PlatformTelegram, -200)
	require.NoError(t, err)
	assert.Equal(t, int64(-300), route.TargetChatID)
}
