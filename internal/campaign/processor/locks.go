package processor

import (
	"sync"

	"github.com/google/uuid"
)

// campaignLocks serializes mutations per campaign. Entries are never evicted.
type campaignLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newCampaignLocks() *campaignLocks {
	return &campaignLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *campaignLocks) get(campaignID uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[campaignID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[campaignID] = lock
	}
	return lock
}
