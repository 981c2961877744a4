package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/dermashop/dermashop-backend/pkg/config"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/google/uuid"
)

const lockScope = "cart"

// Locker serialises read-modify-write cycles on one user's cart.
type Locker interface {
	Lock(ctx context.Context, userID uuid.UUID) (unlock func(context.Context) error, err error)
}

type lockClient interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
	LockKey(scope, id string) string
}

// RedisLocker is a SETNX lock with an owner token. The TTL bounds how long a
// crashed holder can block the cart.
type RedisLocker struct {
	client lockClient
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker builds a locker from the cart lock settings.
func NewRedisLocker(client lockClient, cfg config.CartConfig) (*RedisLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("lock client required")
	}
	if cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("cart lock ttl must be positive")
	}
	poll := cfg.LockPollInterval
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: cfg.LockTTL, wait: cfg.LockWait, poll: poll}, nil
}

// Lock polls until the lock is free, the wait budget runs out (CONFLICT) or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, userID uuid.UUID) (func(context.Context) error, error) {
	key := l.client.LockKey(lockScope, userID.String())
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.AcquireLock(ctx, key, token, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
		}
		if ok {
			return func(ctx context.Context) error {
				return l.client.ReleaseLock(ctx, key, token)
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart is being updated by another request, retry shortly")
		}

		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "wait for cart lock")
		case <-timer.C:
		}
	}
}
