package command

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/models"
)

// replyRecorder captures SendText calls; the rest of the client surface
// is unused by the command handler.
type replyRecorder struct {
	platform models.Platform
	mu       sync.Mutex
	replies  []string
	chatIDs  []int64
}

func (r *replyRecorder) Platform() models.Platform { return r.platform }

func (r *replyRecorder) Listen(ctx context.Context) (<-chan bridge.InboundEvent, error) {
	return nil, fmt.Errorf("not used in tests")
}

func (r *replyRecorder) SendText(ctx context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	r.chatIDs = append(r.chatIDs, chatID)
	return nil
}

func (r *replyRecorder) SendMedia(ctx context.Context, chatID int64, kind bridge.MessageKind, payload []byte, fileName, caption string) error {
	return fmt.Errorf("not used in tests")
}

func (r *replyRecorder) FetchMedia(ctx context.Context, mediaRef string) ([]byte, error) {
	return nil, fmt.Errorf("not used in tests")
}

func (r *replyRecorder) lastReply() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1]
}

type fixture struct {
	handler      *Handler
	store        bridge.Store
	pairing      *bridge.PairingEngine
	registry     *bridge.LinkRegistry
	verification *bridge.VerificationEngine
	tg           *replyRecorder
	bale         *replyRecorder
}

func newFixture() *fixture {
	store := bridge.NewMemoryStore()
	pairing := bridge.NewPairingEngine(store)
	registry := bridge.NewLinkRegistry(store, pairing)
	verification := bridge.NewVerificationEngine(store, registry)
	handler := NewHandler(verification, registry, pairing, store)

	tg := &replyRecorder{platform: models.PlatformTelegram}
	bale := &replyRecorder{platform: models.PlatformBale}
	handler.RegisterClient(tg)
	handler.RegisterClient(bale)
	return &fixture{
		handler:      handler,
		store:        store,
		pairing:      pairing,
		registry:     registry,
		verification: verification,
		tg:           tg,
		bale:         bale,
	}
}

func dmText(platform models.Platform, chatID, senderID int64, text string) bridge.InboundEvent {
	return bridge.InboundEvent{
		Platform: platform,
		ChatID:   chatID,
		ChatKind: models.ChatKindDM,
		SenderID: senderID,
		Kind:     bridge.MessageText,
		Text:     text,
	}
}

var codePattern = regexp.MustCompile(`[GCD]-[A-Z0-9]{6}`)

func TestNonCommandsNotConsumed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.False(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "just chatting")))

	media := dmText(models.PlatformTelegram, 100, 1, "")
	media.Kind = bridge.MessagePhoto
	media.MediaRef = "file-1"
	assert.False(t, f.handler.Handle(ctx, media))
}

func TestUnknownCommandConsumedOnlyInDM(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/bogus")))
	assert.Contains(t, f.tg.lastReply(), "/help")

	group := dmText(models.PlatformTelegram, -200, 1, "/bogus")
	group.ChatKind = models.ChatKindGroup
	assert.False(t, f.handler.Handle(ctx, group))
}

func TestHelpOnlyInDM(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/help")))
	assert.Contains(t, f.tg.lastReply(), "/pair")

	group := dmText(models.PlatformTelegram, -200, 1, "/help")
	group.ChatKind = models.ChatKindGroup
	assert.False(t, f.handler.Handle(ctx, group))
}

func TestMyID(t *testing.T) {
	f := newFixture()

	assert.True(t, f.handler.Handle(context.Background(), dmText(models.PlatformBale, 100, 42, "/myid")))
	reply := f.bale.lastReply()
	assert.Contains(t, reply, "42")
	assert.Contains(t, reply, "100")
}

func TestLinkCommandIssuesCode(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/link_group")))
	reply := f.tg.lastReply()
	code := codePattern.FindString(reply)
	require.NotEmpty(t, code, "reply should contain a code: %q", reply)
	assert.Equal(t, byte('G'), code[0])

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/link_channel")))
	code = codePattern.FindString(f.tg.lastReply())
	require.NotEmpty(t, code)
	assert.Equal(t, byte('C'), code[0])
}

func TestLinkCommandRefusedOutsideDM(t *testing.T) {
	f := newFixture()

	group := dmText(models.PlatformTelegram, -200, 1, "/link_group")
	group.ChatKind = models.ChatKindGroup
	assert.True(t, f.handler.Handle(context.Background(), group))
	assert.Contains(t, f.tg.lastReply(), "direct message")
}

func TestVerifyFlowLinksChat(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/link_group")))
	code := codePattern.FindString(f.tg.lastReply())
	require.NotEmpty(t, code)

	verify := bridge.InboundEvent{
		Platform:  models.PlatformTelegram,
		ChatID:    -200,
		ChatKind:  models.ChatKindGroup,
		ChatTitle: "My Group",
		SenderID:  1,
		Kind:      bridge.MessageText,
		Text:      "/verify " + code,
	}
	assert.True(t, f.handler.Handle(ctx, verify))
	assert.Contains(t, f.tg.lastReply(), "Linked!")

	link, err := f.registry.FindLinkByExternalChat(ctx, models.PlatformTelegram, -200)
	require.NoError(t, err)
	assert.Equal(t, "My Group", link.Title)
}

func TestVerifyRejectionsAreActionable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	verify := bridge.InboundEvent{
		Platform: models.PlatformTelegram,
		ChatID:   -200,
		ChatKind: models.ChatKindGroup,
		SenderID: 1,
		Kind:     bridge.MessageText,
		Text:     "/verify G-NOSUCH",
	}
	assert.True(t, f.handler.Handle(ctx, verify))
	assert.Contains(t, f.tg.lastReply(), "don't recognize")

	// wrong kind: code issued for a channel, presented in a group
	require.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/link_channel")))
	code := codePattern.FindString(f.tg.lastReply())
	require.NotEmpty(t, code)
	verify.Text = "/verify " + code
	assert.True(t, f.handler.Handle(ctx, verify))
	assert.Contains(t, f.tg.lastReply(), "different kind")

	// wrong identity
	require.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/link_group")))
	code = codePattern.FindString(f.tg.lastReply())
	require.NotEmpty(t, code)
	verify.Text = "/verify " + code
	verify.SenderID = 999
	assert.True(t, f.handler.Handle(ctx, verify))
	assert.Contains(t, f.tg.lastReply(), "different account")
}

// linkChat drives the full link flow for a chat and returns the link id.
func (f *fixture) linkChat(t *testing.T, platform models.Platform, dmChatID, senderID, chatID int64, kind models.ChatKind) uint {
	t.Helper()
	ctx := context.Background()

	var linkCmd string
	switch kind {
	case models.ChatKindGroup:
		linkCmd = "/link_group"
	case models.ChatKindChannel:
		linkCmd = "/link_channel"
	default:
		linkCmd = "/link_dm"
	}
	require.True(t, f.handler.Handle(ctx, dmText(platform, dmChatID, senderID, linkCmd)))

	recorder := f.tg
	if platform == models.PlatformBale {
		recorder = f.bale
	}
	code := codePattern.FindString(recorder.lastReply())
	require.NotEmpty(t, code)

	verify := bridge.InboundEvent{
		Platform: platform,
		ChatID:   chatID,
		ChatKind: kind,
		SenderID: senderID,
		Kind:     bridge.MessageText,
		Text:     "/verify " + code,
	}
	require.True(t, f.handler.Handle(ctx, verify))

	link, err := f.registry.FindLinkByExternalChat(ctx, platform, chatID)
	require.NoError(t, err)
	return link.ID
}

func TestPairRejectsForeignLinkAndUnlink(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tgLinkID := f.linkChat(t, models.PlatformTelegram, 100, 1, -200, models.ChatKindGroup)
	baleLinkID := f.linkChat(t, models.PlatformBale, 500, 9, -300, models.ChatKindGroup)

	// the telegram user does not own the bale user's link
	pairCmd := dmText(models.PlatformTelegram, 100, 1, fmt.Sprintf("/pair %d %d", tgLinkID, baleLinkID))
	assert.True(t, f.handler.Handle(ctx, pairCmd))
	assert.Contains(t, f.tg.lastReply(), "only pair links you own")

	// /list shows only the caller's own links
	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/list")))
	listing := f.tg.lastReply()
	assert.Contains(t, listing, fmt.Sprintf("#%d", tgLinkID))
	assert.NotContains(t, listing, fmt.Sprintf("#%d", baleLinkID))

	// unlinking someone else's link is refused
	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, fmt.Sprintf("/unlink %d", baleLinkID))))
	assert.Contains(t, f.tg.lastReply(), "someone else")

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, fmt.Sprintf("/unlink %d", tgLinkID))))
	assert.Contains(t, f.tg.lastReply(), "removed")
	_, err := f.registry.FindLinkByExternalChat(ctx, models.PlatformTelegram, -200)
	assert.ErrorIs(t, err, bridge.ErrLinkNotFound)
}

func TestPairHappyPathAndUnpair(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// one user links a chat on each platform; same telegram identity owns
	// both because both codes were redeemed by accounts resolving to the
	// same stored user only when identities match, so create both links
	// from a single telegram user via the engines directly
	user, err := f.store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	tgLink, err := f.registry.CreateLink(ctx, user.ID, models.PlatformTelegram, -200, models.ChatKindGroup, "tg group")
	require.NoError(t, err)
	baleLink, err := f.registry.CreateLink(ctx, user.ID, models.PlatformBale, -300, models.ChatKindGroup, "bale group")
	require.NoError(t, err)

	pairCmd := dmText(models.PlatformTelegram, 100, 1, fmt.Sprintf("/pair %d %d", tgLink.ID, baleLink.ID))
	assert.True(t, f.handler.Handle(ctx, pairCmd))
	assert.Contains(t, f.tg.lastReply(), "Paired!")

	route, err := f.pairing.ResolveRoute(models.PlatformTelegram, -200)
	require.NoError(t, err)
	assert.Equal(t, int64(-300), route.TargetChatID)

	// /list shows the pair
	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/list")))
	assert.Contains(t, f.tg.lastReply(), "enabled")

	// /unpair needs the pair id from the reply; fetch it from the store
	pairs, err := f.pairing.ListPairsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, fmt.Sprintf("/unpair %d", pairs[0].ID))))
	assert.Contains(t, f.tg.lastReply(), "stopped")
	_, err = f.pairing.ResolveRoute(models.PlatformTelegram, -200)
	assert.ErrorIs(t, err, bridge.ErrNoRoute)
}

func TestPairDMOptIn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	user, err := f.store.Users().GetOrCreateByIdentity(ctx, models.PlatformTelegram, 1)
	require.NoError(t, err)
	dmLink, err := f.registry.CreateLink(ctx, user.ID, models.PlatformTelegram, 100, models.ChatKindDM, "")
	require.NoError(t, err)
	baleLink, err := f.registry.CreateLink(ctx, user.ID, models.PlatformBale, -300, models.ChatKindGroup, "")
	require.NoError(t, err)

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, fmt.Sprintf("/pair %d %d", dmLink.ID, baleLink.ID))))
	assert.Contains(t, f.tg.lastReply(), "opt-in")

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, fmt.Sprintf("/pair %d %d dm", dmLink.ID, baleLink.ID))))
	assert.Contains(t, f.tg.lastReply(), "Paired!")
}

func TestPairUsageErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/pair")))
	assert.Contains(t, f.tg.lastReply(), "Usage")

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/pair one two")))
	assert.Contains(t, f.tg.lastReply(), "numbers")

	assert.True(t, f.handler.Handle(ctx, dmText(models.PlatformTelegram, 100, 1, "/pair 1 2 loud")))
	assert.Contains(t, f.tg.lastReply(), "Usage")
}

func TestCommandWithBotMentionSuffix(t *testing.T) {
	f := newFixture()

	assert.True(t, f.handler.Handle(context.Background(), dmText(models.PlatformTelegram, 100, 1, "/help@my_bridge_bot")))
	assert.Contains(t, f.tg.lastReply(), "/pair")
}
