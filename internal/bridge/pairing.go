package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tg-bale-bridge/internal/logger"
	"tg-bale-bridge/internal/models"
)

// PairingEngine builds and maintains the bidirectional routes between a
// user's links and owns the in-memory routing table the dispatcher reads.
type PairingEngine struct {
	store  Store
	routes *models.RouteTable

	// serializes pair mutations so the already-paired check and the
	// insert cannot interleave
	pairMu sync.Mutex
}

func NewPairingEngine(store Store) *PairingEngine {
	return &PairingEngine{
		store:  store,
		routes: models.NewRouteTable(),
	}
}

// LoadRoutes rebuilds the routing table from the enabled pairs in the
// store. Called once at startup.
func (p *PairingEngine) LoadRoutes(ctx context.Context) error {
	pairs, err := p.store.Pairs().ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled pairs: %w", err)
	}
	for _, pair := range pairs {
		linkA, err := p.store.Links().GetByID(ctx, pair.LinkAID)
		if err != nil {
			logger.Warningf("Pair %d references missing link %d, skipping", pair.ID, pair.LinkAID)
			continue
		}
		linkB, err := p.store.Links().GetByID(ctx, pair.LinkBID)
		if err != nil {
			logger.Warningf("Pair %d references missing link %d, skipping", pair.ID, pair.LinkBID)
			continue
		}
		p.addRoutes(pair, linkA, linkB)
	}
	logger.Infof("Loaded %d pairs into the routing table", len(pairs))
	return nil
}

// CreatePair validates and creates a route between two of the user's own
// links. DM links may only be paired with dmMirroring explicitly set.
func (p *PairingEngine) CreatePair(ctx context.Context, userID, linkAID, linkBID uint, dmMirroring bool) (*models.Pair, error) {
	p.pairMu.Lock()
	defer p.pairMu.Unlock()

	linkA, err := p.store.Links().GetByID(ctx, linkAID)
	if err != nil {
		return nil, err
	}
	linkB, err := p.store.Links().GetByID(ctx, linkBID)
	if err != nil {
		return nil, err
	}
	if linkA.OwnerUserID != userID || linkB.OwnerUserID != userID {
		return nil, ErrCrossOwnership
	}
	if linkA.Platform == linkB.Platform {
		return nil, ErrSamePlatform
	}
	for _, id := range []uint{linkAID, linkBID} {
		if _, err := p.store.Pairs().GetEnabledByLink(ctx, id); err == nil {
			return nil, ErrLinkAlreadyPaired
		} else if !errors.Is(err, ErrPairNotFound) {
			return nil, err
		}
	}
	if (linkA.Kind == models.ChatKindDM || linkB.Kind == models.ChatKindDM) && !dmMirroring {
		return nil, ErrDMNotOptedIn
	}

	pair := &models.Pair{
		OwnerUserID: userID,
		LinkAID:     linkAID,
		LinkBID:     linkBID,
		Enabled:     true,
		DMMirroring: dmMirroring,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := p.store.Pairs().Insert(ctx, pair); err != nil {
		return nil, fmt.Errorf("failed to store pair: %w", err)
	}
	p.addRoutes(pair, linkA, linkB)
	logger.Infof("Paired link %d (%s:%d) with link %d (%s:%d) for user %d",
		linkA.ID, linkA.Platform, linkA.ExternalChatID,
		linkB.ID, linkB.Platform, linkB.ExternalChatID, userID)
	return pair, nil
}

// DisablePair turns a pair off after an ownership check.
func (p *PairingEngine) DisablePair(ctx context.Context, pairID, requestingUserID uint) error {
	p.pairMu.Lock()
	defer p.pairMu.Unlock()

	pair, err := p.store.Pairs().GetByID(ctx, pairID)
	if err != nil {
		return err
	}
	if pair.OwnerUserID != requestingUserID {
		return ErrNotOwner
	}
	if err := p.store.Pairs().SetEnabled(ctx, pairID, false); err != nil {
		return fmt.Errorf("failed to disable pair %d: %w", pairID, err)
	}
	p.routes.RemovePair(pairID)
	logger.Infof("Disabled pair %d for user %d", pairID, requestingUserID)
	return nil
}

// RemoveLink deletes a link and cascades: every pair referencing it is
// disabled and evicted before the link row goes away. The whole cascade
// runs under the pair mutex, so a concurrent CreatePair either finishes
// first and gets disabled here, or finds the link already gone.
func (p *PairingEngine) RemoveLink(ctx context.Context, linkID uint) error {
	p.pairMu.Lock()
	defer p.pairMu.Unlock()

	disabled, err := p.store.Pairs().DisableByLink(ctx, linkID)
	if err != nil {
		return err
	}
	for _, pair := range disabled {
		p.routes.RemovePair(pair.ID)
	}
	if err := p.store.Links().Delete(ctx, linkID); err != nil {
		return fmt.Errorf("failed to delete link %d: %w", linkID, err)
	}
	return nil
}

// ResolveRoute is the hot-path lookup the dispatcher calls on every
// inbound event: a single map read, no store access. DM sources route
// nowhere unless their pair opted into mirroring.
func (p *PairingEngine) ResolveRoute(platform models.Platform, externalChatID int64) (models.Route, error) {
	route, ok := p.routes.Get(platform, externalChatID)
	if !ok {
		return models.Route{}, ErrNoRoute
	}
	if route.SourceKind == models.ChatKindDM && !route.DMMirroring {
		return models.Route{}, ErrNoRoute
	}
	return route, nil
}

// ListPairsForUser returns the user's pairs for listing UI.
func (p *PairingEngine) ListPairsForUser(ctx context.Context, userID uint) ([]*models.Pair, error) {
	return p.store.Pairs().ListByOwner(ctx, userID)
}

func (p *PairingEngine) addRoutes(pair *models.Pair, linkA, linkB *models.Link) {
	p.routes.Put(models.RouteKey{Platform: linkA.Platform, ChatID: linkA.ExternalChatID}, models.Route{
		PairID:         pair.ID,
		SourceKind:     linkA.Kind,
		TargetPlatform: linkB.Platform,
		TargetChatID:   linkB.ExternalChatID,
		DMMirroring:    pair.DMMirroring,
	})
	p.routes.Put(models.RouteKey{Platform: linkB.Platform, ChatID: linkB.ExternalChatID}, models.Route{
		PairID:         pair.ID,
		SourceKind:     linkB.Kind,
		TargetPlatform: linkA.Platform,
		TargetChatID:   linkA.ExternalChatID,
		DMMirroring:    pair.DMMirroring,
	})
}
