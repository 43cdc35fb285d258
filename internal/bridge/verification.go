package bridge

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"tg-bale-bridge/internal/logger"
	"tg-bale-bridge/internal/models"
)

// CodeTTL is how long an issued verification code stays redeemable.
const CodeTTL = 10 * time.Minute

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

// VerificationEngine issues and redeems the single-use codes that prove a
// user controls the chat they want to link.
type VerificationEngine struct {
	store    Store
	registry *LinkRegistry
	ttl      time.Duration
	clock    func() time.Time

	identityMu sync.Mutex
	identities map[models.RouteKey]*sync.Mutex
}

func NewVerificationEngine(store Store, registry *LinkRegistry) *VerificationEngine {
	return &VerificationEngine{
		store:      store,
		registry:   registry,
		ttl:        CodeTTL,
		clock:      time.Now,
		identities: make(map[models.RouteKey]*sync.Mutex),
	}
}

// lockIdentity serializes code mutations per (platform, external user id).
func (e *VerificationEngine) lockIdentity(platform models.Platform, externalUserID int64) func() {
	key := models.RouteKey{Platform: platform, ChatID: externalUserID}
	e.identityMu.Lock()
	mu, ok := e.identities[key]
	if !ok {
		mu = &sync.Mutex{}
		e.identities[key] = mu
	}
	e.identityMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// IssueCode generates a fresh code for the identity, invalidating any
// prior unused code it still holds. The kind records which chat kind the
// code may link and selects the human-visible prefix.
func (e *VerificationEngine) IssueCode(ctx context.Context, platform models.Platform, externalUserID int64, kind models.ChatKind) (string, error) {
	unlock := e.lockIdentity(platform, externalUserID)
	defer unlock()

	now := e.clock()
	if err := e.store.Codes().PurgeStale(ctx, platform, externalUserID, now); err != nil {
		logger.Warningf("Error purging stale codes for %s/%d: %v", platform, externalUserID, err)
	}
	if err := e.store.Codes().DeleteUnused(ctx, platform, externalUserID); err != nil {
		return "", fmt.Errorf("failed to invalidate prior code: %w", err)
	}

	code, err := generateCode(kind)
	if err != nil {
		return "", err
	}
	record := &models.VerificationCode{
		Code:           code,
		Platform:       platform,
		ExternalUserID: externalUserID,
		Kind:           kind,
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.ttl),
	}
	if err := e.store.Codes().Create(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store verification code: %w", err)
	}
	return code, nil
}

// RedeemCode consumes a code presented inside the chat to be linked and
// creates the link. The presenting identity must match the issuing one,
// and consumption is exactly-once even under concurrent attempts.
func (e *VerificationEngine) RedeemCode(ctx context.Context, code string, platform models.Platform, presentingUserID int64, targetChatID int64, kind models.ChatKind, title string) (*models.Link, error) {
	record, err := e.store.Codes().GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if record.Platform != platform || record.ExternalUserID != presentingUserID {
		return nil, ErrIdentityMismatch
	}
	if record.Used {
		return nil, ErrCodeAlreadyUsed
	}
	if record.Expired(e.clock()) {
		return nil, ErrCodeExpired
	}
	if record.Kind != kind {
		return nil, ErrKindMismatch
	}

	consumed, err := e.store.Codes().Consume(ctx, code, targetChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume code: %w", err)
	}
	if !consumed {
		return nil, ErrCodeAlreadyUsed
	}

	user, err := e.store.Users().GetOrCreateByIdentity(ctx, platform, presentingUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	// The consumed record is kept so later attempts on this code report
	// already-used rather than not-found; IssueCode purges it eventually.
	return e.registry.CreateLink(ctx, user.ID, platform, targetChatID, kind, title)
}

// generateCode builds a human-typeable code like G-7KQ2DN. The prefix
// reflects the chat kind the code is meant for.
func generateCode(kind models.ChatKind) (string, error) {
	prefix := "G"
	switch kind {
	case models.ChatKindChannel:
		prefix = "C"
	case models.ChatKindDM:
		prefix = "D"
	}
	body := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range body {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		body[i] = codeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s-%s", prefix, body), nil
}
