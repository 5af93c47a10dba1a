// Package guard provides per-session mutual exclusion backed by Redis
// leases.  A lease is a key set with NX and a millisecond expiry; only the
// holder of the random token stored in it can release or renew it, and a
// crashed holder stops blocking others once the expiry passes.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrTimeout is returned when the lease could not be obtained within
	// the bounded wait.  No state was touched; the caller may retry.
	ErrTimeout = errors.New("guard: session busy")
	// ErrLeaseLost is returned by Renew and Release when the lease expired
	// and may now belong to someone else.
	ErrLeaseLost = errors.New("guard: lease lost")
)

// releaseScript deletes the lease only when it still carries our token.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// renewScript extends the lease only when it still carries our token.
var renewScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// Token proves ownership of a session lease.
type Token struct {
	SessionID string
	Value     string
	ExpiresAt time.Time
}

// Guard hands out session leases.  Keys are scoped per session so
// different sessions never contend.
type Guard struct {
	rdb           *redis.Client
	wait          time.Duration
	retryInterval time.Duration
	now           func() time.Time
}

// Option customises a Guard.
type Option func(*Guard)

// WithWait bounds how long Acquire keeps retrying.  Zero means a single
// attempt.
func WithWait(d time.Duration) Option { return func(g *Guard) { g.wait = d } }

// WithRetryInterval sets the pause between acquisition attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.retryInterval = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(g *Guard) { g.now = now } }

// New returns a Guard using rdb.
func New(rdb *redis.Client, opts ...Option) *Guard {
	g := &Guard{rdb: rdb, wait: 2 * time.Second, retryInterval: 50 * time.Millisecond, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Key is the Redis key of a session's lease.
func Key(sessionID string) string { return "session:" + sessionID + ":guard" }

// Acquire obtains the lease for sessionID, retrying until the configured
// wait elapses or ctx is done.  The lease expires after leaseDuration no
// matter what happens to the caller.
func (g *Guard) Acquire(ctx context.Context, sessionID string, leaseDuration time.Duration) (Token, error) {
	if leaseDuration <= 0 {
		return Token{}, fmt.Errorf("guard: lease duration must be positive")
	}
	tok := Token{SessionID: sessionID, Value: uuid.NewString()}
	deadline := g.now().Add(g.wait)
	for {
		ok, err := g.rdb.SetNX(ctx, Key(sessionID), tok.Value, leaseDuration).Result()
		if err != nil {
			return Token{}, fmt.Errorf("guard: acquire %s: %w", sessionID, err)
		}
		if ok {
			tok.ExpiresAt = g.now().Add(leaseDuration)
			return tok, nil
		}
		if !g.now().Before(deadline) {
			return Token{}, ErrTimeout
		}
		pause := g.retryInterval
		if left := deadline.Sub(g.now()); left < pause {
			pause = left
		}
		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return Token{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-t.C:
		}
	}
}

// Release gives the lease back.  Releasing a lease that already expired
// returns ErrLeaseLost; the caller's work may have raced with another
// holder and must not be trusted.
func (g *Guard) Release(ctx context.Context, tok Token) error {
	n, err := releaseScript.Run(ctx, g.rdb, []string{Key(tok.SessionID)}, tok.Value).Int64()
	if err != nil {
		return fmt.Errorf("guard: release %s: %w", tok.SessionID, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Renew pushes the expiry of a held lease leaseDuration into the future.
func (g *Guard) Renew(ctx context.Context, tok *Token, leaseDuration time.Duration) error {
	n, err := renewScript.Run(ctx, g.rdb, []string{Key(tok.SessionID)}, tok.Value, leaseDuration.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("guard: renew %s: %w", tok.SessionID, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	tok.ExpiresAt = g.now().Add(leaseDuration)
	return nil
}
