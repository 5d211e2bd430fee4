package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/shritish20/volguard/pkg/logger"
)

const leaderLockName = "supervisor:leader"

// SupervisorLock defines the leader election contract. The no-op
// implementation is used when Redis is disabled (single instance deploys).
type SupervisorLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Held() bool
}

// LeaderLock is a Redlock-backed supervisor leader lock with automatic
// renewal. locked is shared between the supervisor loop and the renew
// goroutine, hence the mutex.
type LeaderLock struct {
	lockManager *redlock.RedLock
	instanceID  string
	ttl         time.Duration

	mu     sync.Mutex
	locked bool
}

func (ll *LeaderLock) setLocked(v bool) {
	ll.mu.Lock()
	ll.locked = v
	ll.mu.Unlock()
}

// NewLeaderLock creates new leader lock for a supervisor instance
func NewLeaderLock(lockManager *redlock.RedLock, instanceID string, ttl time.Duration) *LeaderLock {
	return &LeaderLock{
		lockManager: lockManager,
		instanceID:  instanceID,
		ttl:         ttl,
	}
}

// TryAcquire attempts to become the leader. Returns false without error when
// another instance already holds the lock.
func (ll *LeaderLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := ll.lockManager.Lock(ctx, leaderLockName, ll.ttl)
	if err != nil {
		logger.Debug("leader lock held by another instance",
			zap.String("instance_id", ll.instanceID),
		)
		return false, nil
	}

	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire leader lock: invalid expiry %v", expiry)
	}

	ll.setLocked(true)

	logger.Info("supervisor leader lock acquired",
		zap.String("instance_id", ll.instanceID),
		zap.Duration("ttl", ll.ttl),
	)

	go ll.renew(ctx)

	return true, nil
}

// Release releases the leader lock
func (ll *LeaderLock) Release(ctx context.Context) error {
	if !ll.Held() {
		return nil
	}

	if err := ll.lockManager.UnLock(ctx, leaderLockName); err != nil {
		// Lock may have already expired naturally
		logger.Warn("failed to release leader lock",
			zap.String("instance_id", ll.instanceID),
			zap.Error(err),
		)
	} else {
		logger.Info("supervisor leader lock released",
			zap.String("instance_id", ll.instanceID),
		)
	}

	ll.setLocked(false)
	return nil
}

// Held reports whether this instance believes it holds the lock
func (ll *LeaderLock) Held() bool {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	return ll.locked
}

// renew extends the lock at 2/3 of TTL. Redlock has no built-in renewal, so
// renewal is unlock followed by re-lock; losing the re-lock means another
// instance took over and this one must stop trading.
func (ll *LeaderLock) renew(ctx context.Context) {
	renewInterval := (ll.ttl * 2) / 3
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !ll.Held() {
				return
			}

			if err := ll.lockManager.UnLock(ctx, leaderLockName); err != nil {
				logger.Error("leader lock renewal failed (unlock)",
					zap.String("instance_id", ll.instanceID),
					zap.Error(err),
				)
				ll.setLocked(false)
				return
			}

			expiry, err := ll.lockManager.Lock(ctx, leaderLockName, ll.ttl)
			if err != nil || expiry <= 0 {
				logger.Error("leader lock lost, another instance may have taken over",
					zap.String("instance_id", ll.instanceID),
					zap.Error(err),
				)
				ll.setLocked(false)
				return
			}
		}
	}
}

// NopLock always reports leadership. Used when Redis is disabled.
type NopLock struct{}

func (NopLock) TryAcquire(ctx context.Context) (bool, error) { return true, nil }
func (NopLock) Release(ctx context.Context) error            { return nil }
func (NopLock) Held() bool                                   { return true }
