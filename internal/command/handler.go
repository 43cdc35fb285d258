package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/logger"
	"tg-bale-bridge/internal/models"
)

const helpText = `Available commands:
/myid - show your user id and this chat's id
/link_group - get a code to link a group
/link_channel - get a code to link a channel
/link_dm - get a code to link this DM
/verify CODE - present a code inside the chat to be linked
/list - show your links and pairs
/pair LINK_A LINK_B [dm] - bridge two of your links
/unpair PAIR_ID - stop a bridge
/unlink LINK_ID - remove a link

Link a chat from your DM with the bot, then send /verify with the code
inside the target chat. Pair two links on different platforms to start
relaying.`

// Handler implements the command surface. Consumed events never reach
// the relay path.
type Handler struct {
	verification *bridge.VerificationEngine
	registry     *bridge.LinkRegistry
	pairing      *bridge.PairingEngine
	store        bridge.Store
	clients      map[models.Platform]bridge.PlatformClient
}

func NewHandler(verification *bridge.VerificationEngine, registry *bridge.LinkRegistry, pairing *bridge.PairingEngine, store bridge.Store) *Handler {
	return &Handler{
		verification: verification,
		registry:     registry,
		pairing:      pairing,
		store:        store,
		clients:      make(map[models.Platform]bridge.PlatformClient),
	}
}

// RegisterClient wires the client used to reply on a platform.
func (h *Handler) RegisterClient(client bridge.PlatformClient) {
	h.clients[client.Platform()] = client
}

// Handle inspects an event and runs it as a command if it is one.
// Returns true when the event was consumed. In groups and channels only
// the commands that must work there (/verify, /myid, the link refusals)
// are consumed; anything else stays on the relay path so ordinary
// messages starting with "/" still bridge.
func (h *Handler) Handle(ctx context.Context, event bridge.InboundEvent) bool {
	if event.Kind != bridge.MessageText || !strings.HasPrefix(event.Text, "/") {
		return false
	}
	cmd, usageErr := parseCommand(event.Text)
	if !h.consumes(cmd, event.ChatKind) {
		return false
	}
	if usageErr != nil {
		h.reply(ctx, event, usageErr.Error())
		return true
	}

	switch cmd.kind {
	case cmdHelp:
		h.reply(ctx, event, helpText)
	case cmdMyID:
		h.reply(ctx, event, fmt.Sprintf("Your user id: %d\nThis chat's id: %d", event.SenderID, event.ChatID))
	case cmdLinkGroup:
		h.handleLink(ctx, event, models.ChatKindGroup)
	case cmdLinkChannel:
		h.handleLink(ctx, event, models.ChatKindChannel)
	case cmdLinkDM:
		h.handleLink(ctx, event, models.ChatKindDM)
	case cmdVerify:
		h.handleVerify(ctx, event, cmd)
	case cmdList:
		h.handleList(ctx, event)
	case cmdPair:
		h.handlePair(ctx, event, cmd)
	case cmdUnpair:
		h.handleUnpair(ctx, event, cmd)
	case cmdUnlink:
		h.handleUnlink(ctx, event, cmd)
	default:
		h.reply(ctx, event, "Unknown command. Send /help for the command list.")
	}
	return true
}

// consumes decides whether a command is handled in this chat kind. DMs
// take everything; shared chats take only verification, /myid, and the
// link commands (which answer with a redirect to DM).
func (h *Handler) consumes(cmd command, kind models.ChatKind) bool {
	if kind == models.ChatKindDM {
		return true
	}
	switch cmd.kind {
	case cmdVerify, cmdMyID, cmdLinkGroup, cmdLinkChannel, cmdLinkDM:
		return true
	default:
		return false
	}
}

// handleLink issues a verification code. Codes are only handed out in
// the user's DM so they never leak into a shared chat.
func (h *Handler) handleLink(ctx context.Context, event bridge.InboundEvent, kind models.ChatKind) {
	if event.ChatKind != models.ChatKindDM {
		h.reply(ctx, event, "Please request link codes in a direct message with me.")
		return
	}
	code, err := h.verification.IssueCode(ctx, event.Platform, event.SenderID, kind)
	if err != nil {
		logger.Errorf("Failed to issue code for %s/%d: %v", event.Platform, event.SenderID, err)
		h.reply(ctx, event, "Something went wrong issuing your code. Please try again.")
		return
	}
	var where string
	switch kind {
	case models.ChatKindGroup:
		where = "the group you want to link (add me there first)"
	case models.ChatKindChannel:
		where = "the channel you want to link (add me as an admin first)"
	default:
		where = "this chat"
	}
	h.reply(ctx, event, fmt.Sprintf(
		"Your code: %s\n\nSend /verify %s in %s within 10 minutes. The code works once and only for you.",
		code, code, where))
}

func (h *Handler) handleVerify(ctx context.Context, event bridge.InboundEvent, cmd command) {
	link, err := h.verification.RedeemCode(ctx, cmd.code, event.Platform, event.SenderID, event.ChatID, event.ChatKind, event.ChatTitle)
	if err != nil {
		h.reply(ctx, event, verifyErrorMessage(err))
		if !bridge.IsCodeRejection(err) && !bridge.IsConflict(err) {
			logger.Errorf("Failed to redeem code in %s chat %d: %v", event.Platform, event.ChatID, err)
		}
		return
	}
	h.reply(ctx, event, fmt.Sprintf(
		"Linked! This chat is now link #%d. Use /pair in our DM to bridge it with a chat on the other platform.",
		link.ID))
}

func verifyErrorMessage(err error) string {
	switch {
	case errors.Is(err, bridge.ErrCodeNotFound):
		return "I don't recognize that code. Check for typos or request a new one with /link_group, /link_channel or /link_dm."
	case errors.Is(err, bridge.ErrCodeExpired):
		return "That code has expired. Codes last 10 minutes; request a new one in our DM."
	case errors.Is(err, bridge.ErrCodeAlreadyUsed):
		return "That code was already used. Each code works exactly once; request a new one in our DM."
	case errors.Is(err, bridge.ErrIdentityMismatch):
		return "That code was issued to a different account. Request your own code in a DM with me."
	case errors.Is(err, bridge.ErrKindMismatch):
		return "That code is for a different kind of chat. Request a matching code: /link_group for groups, /link_channel for channels, /link_dm for DMs."
	case errors.Is(err, bridge.ErrAlreadyLinked):
		return "This chat is already linked."
	default:
		return "Verification failed. Please try again."
	}
}

func (h *Handler) handleList(ctx context.Context, event bridge.InboundEvent) {
	user, err := h.store.Users().GetOrCreateByIdentity(ctx, event.Platform, event.SenderID)
	if err != nil {
		logger.Errorf("Failed to resolve user %s/%d: %v", event.Platform, event.SenderID, err)
		h.reply(ctx, event, "Something went wrong. Please try again.")
		return
	}
	links, err := h.registry.ListLinksForUser(ctx, user.ID)
	if err != nil {
		logger.Errorf("Failed to list links for user %d: %v", user.ID, err)
		h.reply(ctx, event, "Something went wrong. Please try again.")
		return
	}
	pairs, err := h.pairing.ListPairsForUser(ctx, user.ID)
	if err != nil {
		logger.Errorf("Failed to list pairs for user %d: %v", user.ID, err)
		h.reply(ctx, event, "Something went wrong. Please try again.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your links:\n")
	if len(links) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, link := range links {
		title := link.Title
		if title == "" {
			title = "untitled"
		}
		fmt.Fprintf(&sb, "  #%d %s %s %q (chat %d)\n", link.ID, link.Platform, link.Kind, title, link.ExternalChatID)
	}
	sb.WriteString("\nYour pairs:\n")
	if len(pairs) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, pair := range pairs {
		state := "enabled"
		if !pair.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&sb, "  #%d links %d <-> %d (%s)\n", pair.ID, pair.LinkAID, pair.LinkBID, state)
	}
	h.reply(ctx, event, sb.String())
}

func (h *Handler) handlePair(ctx context.Context, event bridge.InboundEvent, cmd command) {
	user, err := h.store.Users().GetOrCreateByIdentity(ctx, event.Platform, event.SenderID)
	if err != nil {
		logger.Errorf("Failed to resolve user %s/%d: %v", event.Platform, event.SenderID, err)
		h.reply(ctx, event, "Something went wrong. Please try again.")
		return
	}
	pair, err := h.pairing.CreatePair(ctx, user.ID, cmd.linkAID, cmd.linkBID, cmd.dmMirroring)
	if err != nil {
		h.reply(ctx, event, pairErrorMessage(err))
		if !bridge.IsConflict(err) && !errors.Is(err, bridge.ErrLinkNotFound) && !errors.Is(err, bridge.ErrDMNotOptedIn) {
			logger.Errorf("Failed to create pair for user %d: %v", user.ID, err)
		}
		return
	}
	h.reply(ctx, event, fmt.Sprintf("Paired! Messages now relay both ways. Pair id: %d. Stop with /unpair %d.", pair.ID, pair.ID))
}

func pairErrorMessage(err error) string {
	switch {
	case errors.Is(err, bridge.ErrLinkNotFound):
		return "One of those links does not exist. Check /list."
	case errors.Is(err, bridge.ErrCrossOwnership):
		return "You can only pair links you own."
	case errors.Is(err, bridge.ErrSamePlatform):
		return "Pairs must bridge different platforms; both of those links are on the same one."
	case errors.Is(err, bridge.ErrLinkAlreadyPaired):
		return "One of those links is already in an active pair. Unpair it first."
	case errors.Is(err, bridge.ErrDMNotOptedIn):
		return "Pairing a DM requires explicit opt-in: /pair LINK_A LINK_B dm"
	default:
		return "Pairing failed. Please try again."
	}
}

func (h *Handler) handleUnpair(ctx context.Context, event bridge.InboundEvent, cmd command) {
	user, err := h.store.Users().GetOrCreateByIdentity(ctx, event.Platform, event.SenderID)
	if err != nil {
		logger.Errorf("Failed to resolve user %s/%d: %v", event.Platform, event.SenderID, err)
		h.reply(ctx, event, "Something went wrong. Please try again.")
		return
	}
	if err := h.pairing.DisablePair(ctx, cmd.targetID, user.ID); err != nil {
		switch {
		case errors.Is(err, bridge.ErrPairNotFound):
			h.reply(ctx, event, "No such pair. Check /list.")
		case errors.Is(err, bridge.ErrNotOwner):
			h.reply(ctx, event, "That pair belongs to someone else.")
		default:
			logger.Errorf("Failed to disable pair %d: %v", cmd.targetID, err)
			h.reply(ctx, event, "Something went wrong. Please try again.")
		}
		return
	}
	h.reply(ctx, event, fmt.Sprintf("Pair %d stopped. Its chats no longer relay.", cmd.targetID))
}

func (h *Handler) handleUnlink(ctx context.Context, event bridge.InboundEvent, cmd command) {
	user, err := h.store.Users().GetOrCreateByIdentity(ctx, event.Platform, event.SenderID)
	if err != nil {
		logger.Errorf("Failed to resolve user %s/%d: %v", event.Platform, event.SenderID, err)
		h.reply(ctx, event, "Something went wrong. Please try again.")
		return
	}
	if err := h.registry.DeleteLink(ctx, cmd.targetID, user.ID); err != nil {
		switch {
		case errors.Is(err, bridge.ErrLinkNotFound):
			h.reply(ctx, event, "No such link. Check /list.")
		case errors.Is(err, bridge.ErrNotOwner):
			h.reply(ctx, event, "That link belongs to someone else.")
		default:
			logger.Errorf("Failed to delete link %d: %v", cmd.targetID, err)
			h.reply(ctx, event, "Something went wrong. Please try again.")
		}
		return
	}
	h.reply(ctx, event, fmt.Sprintf("Link %d removed. Any pair using it has been stopped.", cmd.targetID))
}

func (h *Handler) reply(ctx context.Context, event bridge.InboundEvent, text string) {
	client, ok := h.clients[event.Platform]
	if !ok {
		logger.Errorf("No client registered for platform %s", event.Platform)
		return
	}
	if err := client.SendText(ctx, event.ChatID, text); err != nil {
		logger.Warningf("Failed to reply in %s chat %d: %v", event.Platform, event.ChatID, err)
	}
}
