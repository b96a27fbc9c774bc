package sync

import (
	"fmt"
	stdsync "sync"
)

// accountLocks is the per-(user, account) advisory lock preventing two syncs
// from running against the same account at once. Concurrent syncs would race
// on cursor advancement. In-memory only: the lock guards a single process,
// which matches the single-process ledger store.
type accountLocks struct {
	mu   stdsync.Mutex
	held map[string]bool
}

func newAccountLocks() *accountLocks {
	return &accountLocks{held: make(map[string]bool)}
}

func lockKey(userID, accountID int64) string {
	return fmt.Sprintf("%d/%d", userID, accountID)
}

// tryAcquire takes the lock for (user, account), reporting false when a sync
// already holds it.
func (l *accountLocks) tryAcquire(userID, accountID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := lockKey(userID, accountID)
	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

// release frees the lock for (user, account).
func (l *accountLocks) release(userID, accountID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, lockKey(userID, accountID))
}
