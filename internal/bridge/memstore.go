package bridge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tg-bale-bridge/internal/models"
)

// MemoryStore is an in-memory Store. It backs the bridge when the
// database is disabled in configuration and the engine tests; state is
// lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[uint]*models.User
	codes  map[string]*models.VerificationCode
	links  map[uint]*models.Link
	pairs  map[uint]*models.Pair
	nextID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[uint]*models.User),
		codes:  make(map[string]*models.VerificationCode),
		links:  make(map[uint]*models.Link),
		pairs:  make(map[uint]*models.Pair),
		nextID: 1,
	}
}

func (s *MemoryStore) Users() UserStore { return (*memoryUsers)(s) }
func (s *MemoryStore) Codes() CodeStore { return (*memoryCodes)(s) }
func (s *MemoryStore) Links() LinkStore { return (*memoryLinks)(s) }
func (s *MemoryStore) Pairs() PairStore { return (*memoryPairs)(s) }

func (s *MemoryStore) allocID() uint {
	id := s.nextID
	s.nextID++
	return id
}

type memoryUsers MemoryStore

func (s *memoryUsers) GetOrCreateByIdentity(ctx context.Context, platform models.Platform, externalUserID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if matchesIdentity(user, platform, externalUserID) {
			copied := *user
			return &copied, nil
		}
	}
	user := &models.User{
		ID:        (*MemoryStore)(s).allocID(),
		UserID:    uuid.NewString(),
		CreatedAt: time.Now(),
	}
	if platform == models.PlatformTelegram {
		user.TelegramUserID = &externalUserID
	} else {
		user.BaleUserID = &externalUserID
	}
	s.users[user.ID] = user
	copied := *user
	return &copied, nil
}

func (s *memoryUsers) GetByID(ctx context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func matchesIdentity(user *models.User, platform models.Platform, externalUserID int64) bool {
	if platform == models.PlatformTelegram {
		return user.TelegramUserID != nil && *user.TelegramUserID == externalUserID
	}
	return user.BaleUserID != nil && *user.BaleUserID == externalUserID
}

type memoryCodes MemoryStore

func (s *memoryCodes) Create(ctx context.Context, code *models.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *code
	s.codes[code.Code] = &copied
	return nil
}

func (s *memoryCodes) GetByCode(ctx context.Context, code string) (*models.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *memoryCodes) Consume(ctx context.Context, code string, targetChatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[code]
	if !ok || record.Used {
		return false, nil
	}
	record.Used = true
	record.TargetChatID = &targetChatID
	return true, nil
}

func (s *memoryCodes) DeleteUnused(ctx context.Context, platform models.Platform, externalUserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.codes {
		if record.Platform == platform && record.ExternalUserID == externalUserID && !record.Used {
			delete(s.codes, key)
		}
	}
	return nil
}

func (s *memoryCodes) PurgeStale(ctx context.Context, platform models.Platform, externalUserID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.codes {
		if record.Platform == platform && record.ExternalUserID == externalUserID &&
			(record.Used || record.Expired(now)) {
			delete(s.codes, key)
		}
	}
	return nil
}

type memoryLinks MemoryStore

func (s *memoryLinks) Insert(ctx context.Context, link *models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.links {
		if existing.Platform == link.Platform && existing.ExternalChatID == link.ExternalChatID {
			return ErrAlreadyLinked
		}
	}
	link.ID = (*MemoryStore)(s).allocID()
	copied := *link
	s.links[link.ID] = &copied
	return nil
}

func (s *memoryLinks) GetByID(ctx context.Context, id uint) (*models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok {
		return nil, ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (s *memoryLinks) GetByExternalChat(ctx context.Context, platform models.Platform, externalChatID int64) (*models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range s.links {
		if link.Platform == platform && link.ExternalChatID == externalChatID {
			copied := *link
			return &copied, nil
		}
	}
	return nil, ErrLinkNotFound
}

func (s *memoryLinks) ListByOwner(ctx context.Context, ownerUserID uint) ([]*models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var links []*models.Link
	for _, link := range s.links {
		if link.OwnerUserID == ownerUserID {
			copied := *link
			links = append(links, &copied)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].ID < links[j].ID
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	return links, nil
}

func (s *memoryLinks) Delete(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, id)
	return nil
}

type memoryPairs MemoryStore

func (s *memoryPairs) Insert(ctx context.Context, pair *models.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair.ID = (*MemoryStore)(s).allocID()
	copied := *pair
	s.pairs[pair.ID] = &copied
	return nil
}

func (s *memoryPairs) GetByID(ctx context.Context, id uint) (*models.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.pairs[id]
	if !ok {
		return nil, ErrPairNotFound
	}
	copied := *pair
	return &copied, nil
}

func (s *memoryPairs) GetEnabledByLink(ctx context.Context, linkID uint) (*models.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range s.pairs {
		if pair.Enabled && (pair.LinkAID == linkID || pair.LinkBID == linkID) {
			copied := *pair
			return &copied, nil
		}
	}
	return nil, ErrPairNotFound
}

func (s *memoryPairs) ListEnabled(ctx context.Context) ([]*models.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pairs []*models.Pair
	for _, pair := range s.pairs {
		if pair.Enabled {
			copied := *pair
			pairs = append(pairs, &copied)
		}
	}
	return pairs, nil
}

func (s *memoryPairs) ListByOwner(ctx context.Context, ownerUserID uint) ([]*models.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pairs []*models.Pair
	for _, pair := range s.pairs {
		if pair.OwnerUserID == ownerUserID {
			copied := *pair
			pairs = append(pairs, &copied)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })
	return pairs, nil
}

func (s *memoryPairs) SetEnabled(ctx context.Context, id uint, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.pairs[id]
	if !ok {
		return ErrPairNotFound
	}
	pair.Enabled = enabled
	pair.UpdatedAt = time.Now()
	return nil
}

func (s *memoryPairs) DisableByLink(ctx context.Context, linkID uint) ([]*models.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var disabled []*models.Pair
	for _, pair := range s.pairs {
		if pair.Enabled && (pair.LinkAID == linkID || pair.LinkBID == linkID) {
			pair.Enabled = false
			pair.UpdatedAt = time.Now()
			copied := *pair
			disabled = append(disabled, &copied)
		}
	}
	return disabled, nil
}
