package businessflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/Amaterasu/utils"
)

// Locker hands out exclusive, expiring locks keyed by string.
// release must be called exactly once by the holder.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

type memoryLock struct {
	owner     uint64
	expiresAt time.Time
}

// MemoryLocker is an in-process Locker. Expired entries are treated as free.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	seq   uint64
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]memoryLock)}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if cur, ok := l.locks[key]; ok && now.Before(cur.expiresAt) {
		return nil, false, nil
	}
	l.seq++
	owner := l.seq
	l.locks[key] = memoryLock{owner: owner, expiresAt: now.Add(ttl)}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.locks[key]; ok && cur.owner == owner {
				delete(l.locks, key)
			}
		})
	}
	return release, true, nil
}

func runLockKey(runID uint) string {
	return fmt.Sprintf("%s%d", utils.RunLockPrefix, runID)
}

func campaignLockKey(campaignID uint) string {
	return fmt.Sprintf("%s%d", utils.CampaignLockPrefix, campaignID)
}

const lockPollInterval = 25 * time.Millisecond

// lockWithWait retries TryLock until it succeeds, wait elapses or ctx ends
func lockWithWait(ctx context.Context, locker Locker, key string, ttl, wait time.Duration) (func(), bool, error) {
	deadline := time.Now().Add(wait)
	for {
		release, ok, err := locker.TryLock(ctx, key, ttl)
		if err != nil || ok {
			return release, ok, err
		}
		if !time.Now().Before(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
