// Package lobby tracks who is waiting to be seated at a table that has not
// started yet.  Every mutation is a single Lua script so membership,
// capacity and expiry are decided by Redis rather than by a stale read.
package lobby

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/poker-table-coordinator/internal/model"
)

// JoinResult is the outcome of Join.
type JoinResult int

const (
	JoinOK JoinResult = iota
	JoinAlreadyMember
	JoinFull
	// JoinClosed means the session already left WAITING.
	JoinClosed
)

func (r JoinResult) String() string {
	switch r {
	case JoinOK:
		return "ok"
	case JoinAlreadyMember:
		return "already_member"
	case JoinFull:
		return "full"
	case JoinClosed:
		return "closed"
	}
	return "unknown"
}

// LeaveResult is the outcome of Leave.
type LeaveResult int

const (
	LeaveOK LeaveResult = iota
	LeaveNotMember
)

func (r LeaveResult) String() string {
	if r == LeaveOK {
		return "ok"
	}
	return "not_member"
}

const pruneFn = `
local function prune(members, joined, names, cutoff)
	local flat = redis.call('HGETALL', joined)
	local removed = 0
	for i = 1, #flat, 2 do
		if tonumber(flat[i + 1]) <= cutoff then
			redis.call('ZREM', members, flat[i])
			redis.call('HDEL', joined, flat[i])
			redis.call('HDEL', names, flat[i])
			removed = removed + 1
		end
	end
	return removed
end
`

// joinScript: KEYS = members, joined, names, seq, closed
// ARGV = user, now_ms, ttl_ms, capacity, display_name
var joinScript = redis.NewScript(pruneFn + `
	if redis.call('EXISTS', KEYS[5]) == 1 then
		return 3
	end
	prune(KEYS[1], KEYS[2], KEYS[3], tonumber(ARGV[2]) - tonumber(ARGV[3]))
	if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
		return 1
	end
	if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[4]) then
		return 2
	end
	local seq = redis.call('INCR', KEYS[4])
	redis.call('ZADD', KEYS[1], seq, ARGV[1])
	redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
	redis.call('HSET', KEYS[3], ARGV[1], ARGV[5])
	for i = 1, 4 do
		redis.call('PEXPIRE', KEYS[i], ARGV[3])
	end
	return 0
`)

// leaveScript: KEYS = members, joined, names; ARGV = user
var leaveScript = redis.NewScript(`
	local n = redis.call('ZREM', KEYS[1], ARGV[1])
	redis.call('HDEL', KEYS[2], ARGV[1])
	redis.call('HDEL', KEYS[3], ARGV[1])
	return n
`)

// expireScript: KEYS = members, joined, names; ARGV = cutoff_ms
var expireScript = redis.NewScript(pruneFn + `
	return prune(KEYS[1], KEYS[2], KEYS[3], tonumber(ARGV[1]))
`)

func membersKey(id string) string { return "lobby:" + id + ":members" }
func joinedKey(id string) string  { return "lobby:" + id + ":joined" }
func namesKey(id string) string   { return "lobby:" + id + ":names" }
func seqKey(id string) string     { return "lobby:" + id + ":seq" }

// ClosedKey marks a lobby whose session has started.  It is written by
// the same atomic step that deletes the lobby keys.
func ClosedKey(id string) string { return "lobby:" + id + ":closed" }

// Keys lists every key holding entries of a session's lobby.
func Keys(id string) []string {
	return []string{membersKey(id), joinedKey(id), namesKey(id), seqKey(id)}
}

// Registry manages lobby membership.
type Registry struct {
	rdb      *redis.Client
	capacity int
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewRegistry returns a Registry admitting at most capacity members, each
// of whom goes stale ttl after joining.
func NewRegistry(rdb *redis.Client, capacity int, ttl time.Duration, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{rdb: rdb, capacity: capacity, ttl: ttl, now: time.Now, log: log}
}

// WithClock replaces the registry clock; used by tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Capacity is the maximum number of members.
func (r *Registry) Capacity() int { return r.capacity }

// Join adds userID to the lobby.  Capacity is checked against the live
// cardinality inside the script, so concurrent joins never oversell seats.
func (r *Registry) Join(ctx context.Context, sessionID, userID, displayName string) (JoinResult, error) {
	keys := append(Keys(sessionID), ClosedKey(sessionID))
	res, err := joinScript.Run(ctx, r.rdb, keys,
		userID, r.now().UnixMilli(), r.ttl.Milliseconds(), r.capacity, displayName).Int64()
	if err != nil {
		return 0, fmt.Errorf("lobby: join %s: %w", sessionID, err)
	}
	out := JoinResult(res)
	r.log.Debug("lobby join", zap.String("session_id", sessionID), zap.String("user_id", userID), zap.Stringer("result", out))
	return out, nil
}

// Leave removes userID from the lobby.
func (r *Registry) Leave(ctx context.Context, sessionID, userID string) (LeaveResult, error) {
	n, err := leaveScript.Run(ctx, r.rdb, []string{membersKey(sessionID), joinedKey(sessionID), namesKey(sessionID)}, userID).Int64()
	if err != nil {
		return 0, fmt.Errorf("lobby: leave %s: %w", sessionID, err)
	}
	if n == 0 {
		return LeaveNotMember, nil
	}
	r.log.Debug("lobby leave", zap.String("session_id", sessionID), zap.String("user_id", userID))
	return LeaveOK, nil
}

// ExpireStale removes entries whose joinedAt+ttl has elapsed and returns
// how many were dropped.
func (r *Registry) ExpireStale(ctx context.Context, sessionID string) (int, error) {
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	n, err := expireScript.Run(ctx, r.rdb, []string{membersKey(sessionID), joinedKey(sessionID), namesKey(sessionID)}, cutoff).Int64()
	if err != nil {
		return 0, fmt.Errorf("lobby: expire %s: %w", sessionID, err)
	}
	if n > 0 {
		r.log.Info("lobby entries expired", zap.String("session_id", sessionID), zap.Int64("count", n))
	}
	return int(n), nil
}

// ListMembers returns live member ids in join order.
func (r *Registry) ListMembers(ctx context.Context, sessionID string) ([]string, error) {
	entries, err := r.Entries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	return ids, nil
}

// Entries returns the live lobby entries in join order.  The three reads
// run inside MULTI so they observe one consistent state.
func (r *Registry) Entries(ctx context.Context, sessionID string) ([]model.LobbyEntry, error) {
	var order *redis.ZSliceCmd
	var joined, names *redis.MapStringStringCmd
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		order = p.ZRangeWithScores(ctx, membersKey(sessionID), 0, -1)
		joined = p.HGetAll(ctx, joinedKey(sessionID))
		names = p.HGetAll(ctx, namesKey(sessionID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lobby: list %s: %w", sessionID, err)
	}
	zs := order.Val()
	sort.SliceStable(zs, func(i, j int) bool { return zs[i].Score < zs[j].Score })
	now := r.now()
	out := make([]model.LobbyEntry, 0, len(zs))
	for _, z := range zs {
		uid, _ := z.Member.(string)
		ms, err := strconv.ParseInt(joined.Val()[uid], 10, 64)
		if err != nil {
			continue
		}
		e := model.LobbyEntry{
			SessionID:   sessionID,
			UserID:      uid,
			DisplayName: names.Val()[uid],
			JoinedAt:    time.UnixMilli(ms),
			TTL:         r.ttl,
		}
		if !e.ExpiresAt().After(now) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
