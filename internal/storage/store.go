package storage

import (
	"gorm.io/gorm"

	"tg-bale-bridge/internal/bridge"
)

// GormStore bundles the repositories into the store the bridge core
// consumes.
type GormStore struct {
	users *UserRepository
	codes *CodeRepository
	links *LinkRepository
	pairs *PairRepository
}

// NewGormStore creates the store on an initialized connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		users: NewUserRepository(db),
		codes: NewCodeRepository(db),
		links: NewLinkRepository(db),
		pairs: NewPairRepository(db),
	}
}

func (s *GormStore) Users() bridge.UserStore { return s.users }
func (s *GormStore) Codes() bridge.CodeStore { return s.codes }
func (s *GormStore) Links() bridge.LinkStore { return s.links }
func (s *GormStore) Pairs() bridge.PairStore { return s.pairs }
