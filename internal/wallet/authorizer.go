package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/poker-table-coordinator/internal/model"
)

// openingMarker occupies the seat index while the ledger authorization is
// in flight.  It expires on its own if the process dies in between.
const openingMarker = "opening"

// openingTTL bounds how long a crashed OpenHold can block the seat.
const openingTTL = 30 * time.Second

// transitionScript moves a PENDING hold to a terminal state.  A hold that
// is already terminal is left alone.
// KEYS = hold, index; ARGV = state, payout
var transitionScript = redis.NewScript(`
	local state = redis.call('HGET', KEYS[1], 'state')
	if not state then
		return -1
	end
	if state ~= 'PENDING' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'state', ARGV[1], 'payout', ARGV[2])
	if ARGV[1] == 'RELEASED' and redis.call('GET', KEYS[2]) == redis.call('HGET', KEYS[1], 'id') then
		redis.call('DEL', KEYS[2])
	end
	return 1
`)

// adjustScript records a new amount on a PENDING hold.
// KEYS = hold; ARGV = amount
var adjustScript = redis.NewScript(`
	local state = redis.call('HGET', KEYS[1], 'state')
	if not state then
		return -1
	end
	if state ~= 'PENDING' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'amount', ARGV[1])
	return 1
`)

// releaseMarkerScript frees the seat index only while it still holds the
// opening marker.
var releaseMarkerScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

func holdKey(id string) string { return "hold:" + id }

// IndexKey is the seat uniqueness index.  It carries the hold id while a
// non-released hold exists for the pair.
func IndexKey(sessionID, userID string) string {
	return "hold:active:" + sessionID + ":" + userID
}

// Authorizer keeps WalletHold records in Redis and mirrors every change to
// the Ledger.  The ledger call always runs first; the record is written
// only once the money side has agreed, so a retry after a crash replays
// idempotently.
type Authorizer struct {
	rdb    *redis.Client
	ledger Ledger
	log    *zap.Logger
}

// NewAuthorizer returns an Authorizer over ledger.
func NewAuthorizer(rdb *redis.Client, ledger Ledger, log *zap.Logger) *Authorizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authorizer{rdb: rdb, ledger: ledger, log: log}
}

// Ledger exposes the underlying ledger, mostly for balance reads.
func (a *Authorizer) Ledger() Ledger { return a.ledger }

// OpenHold authorizes amount for userID's seat in sessionID.  It fails
// with ErrHoldExists while another non-released hold exists for the pair
// and with ErrInsufficientFunds when the balance is short.
func (a *Authorizer) OpenHold(ctx context.Context, sessionID, userID string, amount int64) (model.WalletHold, error) {
	if amount < 0 {
		return model.WalletHold{}, ErrInvalidAmount
	}
	idx := IndexKey(sessionID, userID)
	ok, err := a.rdb.SetNX(ctx, idx, openingMarker, openingTTL).Result()
	if err != nil {
		return model.WalletHold{}, fmt.Errorf("wallet: reserve seat index: %w", err)
	}
	if !ok {
		return model.WalletHold{}, ErrHoldExists
	}

	id, err := a.ledger.Authorize(ctx, userID, amount)
	if err != nil {
		a.dropMarker(ctx, idx)
		return model.WalletHold{}, err
	}

	h := model.WalletHold{ID: id, SessionID: sessionID, UserID: userID, Amount: amount, State: model.HoldPending}
	_, err = a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, holdKey(id),
			"id", id,
			"session_id", sessionID,
			"user_id", userID,
			"amount", amount,
			"state", string(model.HoldPending),
			"payout", 0,
		)
		p.Set(ctx, idx, id, 0)
		return nil
	})
	if err != nil {
		// The ledger already reserved the chips; give them back.
		if uerr := a.undoAuthorize(ctx, id); uerr != nil {
			a.log.Error("wallet: orphaned ledger hold", zap.String("hold_id", id), zap.Error(uerr))
		}
		a.dropMarker(ctx, idx)
		return model.WalletHold{}, fmt.Errorf("wallet: record hold: %w", err)
	}
	a.log.Debug("hold opened", zap.String("hold_id", id), zap.String("session_id", sessionID),
		zap.String("user_id", userID), zap.Int64("amount", amount))
	return h, nil
}

func (a *Authorizer) undoAuthorize(ctx context.Context, id string) error {
	if err := a.ledger.Adjust(ctx, id, 0); err != nil {
		return err
	}
	return a.ledger.Cancel(ctx, id)
}

func (a *Authorizer) dropMarker(ctx context.Context, idx string) {
	if err := releaseMarkerScript.Run(ctx, a.rdb, []string{idx}, openingMarker).Err(); err != nil {
		a.log.Warn("wallet: seat index marker left behind", zap.String("key", idx), zap.Error(err))
	}
}

// Get loads a hold record.
func (a *Authorizer) Get(ctx context.Context, holdID string) (model.WalletHold, error) {
	m, err := a.rdb.HGetAll(ctx, holdKey(holdID)).Result()
	if err != nil {
		return model.WalletHold{}, fmt.Errorf("wallet: load hold %s: %w", holdID, err)
	}
	if len(m) == 0 {
		return model.WalletHold{}, ErrUnknownHold
	}
	amount, _ := strconv.ParseInt(m["amount"], 10, 64)
	payout, _ := strconv.ParseInt(m["payout"], 10, 64)
	return model.WalletHold{
		ID:        m["id"],
		SessionID: m["session_id"],
		UserID:    m["user_id"],
		Amount:    amount,
		State:     model.HoldState(m["state"]),
		Payout:    payout,
	}, nil
}

// ActiveHold returns the id of the non-released hold for the pair, if any.
func (a *Authorizer) ActiveHold(ctx context.Context, sessionID, userID string) (string, bool, error) {
	v, err := a.rdb.Get(ctx, IndexKey(sessionID, userID)).Result()
	if errors.Is(err, redis.Nil) || v == openingMarker {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("wallet: seat index: %w", err)
	}
	return v, true, nil
}

// AdjustHold changes the authorized amount of a pending hold.  It fails
// closed: on ErrInsufficientFunds neither the ledger nor the record moved.
func (a *Authorizer) AdjustHold(ctx context.Context, holdID string, newAmount int64) error {
	if newAmount < 0 {
		return ErrInvalidAmount
	}
	h, err := a.Get(ctx, holdID)
	if err != nil {
		return err
	}
	if h.State != model.HoldPending {
		return ErrHoldClosed
	}
	if h.Amount == newAmount {
		return nil
	}
	if err := a.ledger.Adjust(ctx, holdID, newAmount); err != nil {
		return err
	}
	n, err := adjustScript.Run(ctx, a.rdb, []string{holdKey(holdID)}, newAmount).Int64()
	if err != nil {
		return fmt.Errorf("wallet: record adjust %s: %w", holdID, err)
	}
	if n == 0 {
		return ErrHoldClosed
	}
	return nil
}

// Commit settles the hold with payout.  Committing a terminal hold is a
// no-op, including one that was released.
func (a *Authorizer) Commit(ctx context.Context, holdID string, payout int64) error {
	if payout < 0 {
		return ErrInvalidAmount
	}
	return a.finish(ctx, holdID, model.HoldCommitted, payout, func() error {
		return a.ledger.Settle(ctx, holdID, payout)
	})
}

// Release closes the hold without a payout and frees the seat index.
// Releasing a terminal hold is a no-op.
func (a *Authorizer) Release(ctx context.Context, holdID string) error {
	return a.finish(ctx, holdID, model.HoldReleased, 0, func() error {
		return a.ledger.Cancel(ctx, holdID)
	})
}

// Refund returns everything the hold reserved and then releases it.
func (a *Authorizer) Refund(ctx context.Context, holdID string) error {
	h, err := a.Get(ctx, holdID)
	if err != nil {
		return err
	}
	if h.State.Terminal() {
		return nil
	}
	if err := a.AdjustHold(ctx, holdID, 0); err != nil {
		return err
	}
	return a.Release(ctx, holdID)
}

func (a *Authorizer) finish(ctx context.Context, holdID string, target model.HoldState, payout int64, settle func() error) error {
	h, err := a.Get(ctx, holdID)
	if err != nil {
		return err
	}
	if h.State.Terminal() {
		return nil
	}
	if err := settle(); err != nil {
		return fmt.Errorf("wallet: ledger %s %s: %w", target, holdID, err)
	}
	n, err := transitionScript.Run(ctx, a.rdb,
		[]string{holdKey(holdID), IndexKey(h.SessionID, h.UserID)}, string(target), payout).Int64()
	if err != nil {
		return fmt.Errorf("wallet: record %s %s: %w", target, holdID, err)
	}
	if n < 0 {
		return ErrUnknownHold
	}
	a.log.Info("hold finalized", zap.String("hold_id", holdID), zap.String("session_id", h.SessionID),
		zap.String("user_id", h.UserID), zap.String("state", string(target)), zap.Int64("payout", payout))
	return nil
}
