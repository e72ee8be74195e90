package db

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/config"
	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
	maxRetryBackoff      = 2 * time.Second
	retryJitterWindow    = 25 * time.Millisecond
)

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// RetryPolicy bounds how often a transaction is re-run after lock contention.
type RetryPolicy struct {
	Attempts    int
	Backoff     time.Duration
	LockTimeout time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// PolicyFromConfig maps reservation settings onto a retry policy.
func PolicyFromConfig(cfg config.ReservationConfig) RetryPolicy {
	return RetryPolicy{
		Attempts:    cfg.RetryAttempts,
		Backoff:     cfg.RetryBackoff,
		LockTimeout: cfg.LockTimeout,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = defaultRetryAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultRetryBackoff
	}
	if p.sleep == nil {
		p.sleep = sleepCtx
	}
	return p
}

// RetryTx runs fn in a transaction and re-runs it when the database reports
// lock contention. Every attempt starts a fresh transaction, so fn must not
// keep state across calls. Once attempts run out the last contention error is
// wrapped in a BUSY error. Any other failure is returned unchanged.
func (c *Client) RetryTx(ctx context.Context, policy RetryPolicy, fn func(tx *gorm.DB) error) error {
	policy = policy.normalized()
	backoff := policy.Backoff

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		lastErr = c.WithTx(ctx, func(tx *gorm.DB) error {
			if err := c.applyLockTimeout(tx, policy.LockTimeout); err != nil {
				return err
			}
			return fn(tx)
		})
		if lastErr == nil {
			return nil
		}
		if !IsLockContention(lastErr) {
			return lastErr
		}
		if attempt == policy.Attempts {
			break
		}
		if err := policy.sleep(ctx, withJitter(backoff)); err != nil {
			return err
		}
		backoff = nextBackoff(backoff)
	}
	return pkgerrors.Busy(policy.Attempts, lastErr)
}

func (c *Client) applyLockTimeout(tx *gorm.DB, timeout time.Duration) error {
	if timeout <= 0 || c.Driver() != config.DBDriverPostgres {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
	return tx.Exec(stmt).Error
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxRetryBackoff {
		return maxRetryBackoff
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitterMu.Lock()
	jitter := time.Duration(jitterSource.Int63n(int64(retryJitterWindow)))
	jitterMu.Unlock()
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
