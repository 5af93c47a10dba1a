package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/poker-table-coordinator/internal/model"
)

var (
	// ErrConflict is returned by Persist when the stored revision is not
	// the one the caller projected from.
	ErrConflict = errors.New("view: revision conflict")
	// ErrNotFound is returned for a session that was never created.
	ErrNotFound = errors.New("view: session not found")
	// ErrExists is returned by Create for an id already in use.
	ErrExists = errors.New("view: session already exists")
)

// createScript writes revision 1 unless the view exists.
// KEYS = view; ARGV = revision, status, data
var createScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'revision', ARGV[1], 'status', ARGV[2], 'data', ARGV[3])
	return 1
`)

// persistScript is the compare-and-swap on the revision.  On success it
// also deletes KEYS[2..1+ndel] and sets the remaining keys as markers, so
// side effects land in the same atomic step as the new revision.
// KEYS = view, deletes..., marks...
// ARGV = expected, revision, status, data, ndel, mark_ttl_ms
var persistScript = redis.NewScript(`
	local cur = redis.call('HGET', KEYS[1], 'revision')
	if not cur then
		return -1
	end
	if tonumber(cur) ~= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('HSET', KEYS[1], 'revision', ARGV[2], 'status', ARGV[3], 'data', ARGV[4])
	local ndel = tonumber(ARGV[5])
	local ttl = tonumber(ARGV[6])
	for i = 2, #KEYS do
		if i <= ndel + 1 then
			redis.call('DEL', KEYS[i])
		elseif ttl > 0 then
			redis.call('SET', KEYS[i], ARGV[2], 'PX', ttl)
		else
			redis.call('SET', KEYS[i], ARGV[2])
		end
	end
	return 1
`)

// Key is the Redis hash holding a session's latest view.
func Key(sessionID string) string { return "session:" + sessionID + ":view" }

// FrozenKey is present while a session refuses automated mutation.
func FrozenKey(sessionID string) string { return "session:" + sessionID + ":frozen" }

// PersistOptions are side effects applied atomically with a new revision.
type PersistOptions struct {
	Delete  []string
	Mark    []string
	MarkTTL time.Duration
}

// Store persists views in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore returns a Store over rdb.
func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Create stores v as the first revision of a new session.
func (s *Store) Create(ctx context.Context, v model.Session) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("view: encode %s: %w", v.ID, err)
	}
	n, err := createScript.Run(ctx, s.rdb, []string{Key(v.ID)}, v.Revision, string(v.Status), data).Int64()
	if err != nil {
		return fmt.Errorf("view: create %s: %w", v.ID, err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// Load returns the latest committed revision.  The hash is written in one
// script call, so a partially written view is never observed.
func (s *Store) Load(ctx context.Context, sessionID string) (model.Session, error) {
	data, err := s.rdb.HGet(ctx, Key(sessionID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("view: load %s: %w", sessionID, err)
	}
	var v model.Session
	if err := json.Unmarshal(data, &v); err != nil {
		return model.Session{}, fmt.Errorf("view: decode %s: %w", sessionID, err)
	}
	return v, nil
}

// Persist writes v only if the stored revision still equals expected.
func (s *Store) Persist(ctx context.Context, expected int64, v model.Session, opts PersistOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("view: encode %s: %w", v.ID, err)
	}
	keys := make([]string, 0, 1+len(opts.Delete)+len(opts.Mark))
	keys = append(keys, Key(v.ID))
	keys = append(keys, opts.Delete...)
	keys = append(keys, opts.Mark...)
	n, err := persistScript.Run(ctx, s.rdb, keys,
		expected, v.Revision, string(v.Status), data, len(opts.Delete), opts.MarkTTL.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("view: persist %s: %w", v.ID, err)
	}
	switch n {
	case -1:
		return ErrNotFound
	case 0:
		return fmt.Errorf("%w: %s expected revision %d", ErrConflict, v.ID, expected)
	}
	return nil
}

// Revision reads only the stored revision number.
func (s *Store) Revision(ctx context.Context, sessionID string) (int64, error) {
	n, err := s.rdb.HGet(ctx, Key(sessionID), "revision").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("view: revision %s: %w", sessionID, err)
	}
	return n, nil
}

// Freeze stops automated mutation of a session until Unfreeze.
func (s *Store) Freeze(ctx context.Context, sessionID, reason string) error {
	return s.rdb.Set(ctx, FrozenKey(sessionID), reason, 0).Err()
}

// Unfreeze lifts a freeze.
func (s *Store) Unfreeze(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, FrozenKey(sessionID)).Err()
}

// Frozen reports whether the session is frozen.
func (s *Store) Frozen(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, FrozenKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("view: frozen %s: %w", sessionID, err)
	}
	return n == 1, nil
}
