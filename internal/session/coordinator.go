// Package session orchestrates a poker hand.  Every mutation runs under
// the per-session guard: load the view, ask the engine, move the wallet,
// project and persist with CAS, release.  The CAS is the backstop; a
// conflict while the guard is held freezes the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/poker-table-coordinator/internal/engine"
	"github.com/iliyamo/poker-table-coordinator/internal/guard"
	"github.com/iliyamo/poker-table-coordinator/internal/lobby"
	"github.com/iliyamo/poker-table-coordinator/internal/model"
	"github.com/iliyamo/poker-table-coordinator/internal/view"
	"github.com/iliyamo/poker-table-coordinator/internal/wallet"
)

// Options tune the coordinator.
type Options struct {
	Lease      time.Duration
	MinPlayers int
	// MinBalance is the smallest wallet balance allowed to join or be
	// dealt in.  Zero only excludes empty wallets.
	MinBalance int64
	// LobbyTTL bounds how long the closed-lobby marker is kept.
	LobbyTTL time.Duration
}

// Settlement summarises a finished hand for the messaging layer.
type Settlement struct {
	SessionID string             `json:"session_id"`
	Payouts   map[string]int64   `json:"payouts"`
	Holds     []model.WalletHold `json:"holds"`
	Aborted   bool               `json:"aborted,omitempty"`
}

// Result is what a successful mutation returns to the caller.
type Result struct {
	View model.Session `json:"view"`
	Diff view.Diff     `json:"diff"`
	// Settlement is set once the hand reached FINISHED and every hold was
	// finalized.
	Settlement *Settlement `json:"settlement,omitempty"`
	// SettlementPending means the FINISHED view is persisted but some
	// holds could not be finalized yet; FinalizeHolds completes them.
	SettlementPending bool `json:"settlement_pending,omitempty"`
}

// Coordinator is safe for concurrent use by any number of goroutines and
// processes sharing the same Redis.
type Coordinator struct {
	guard  *guard.Guard
	store  *view.Store
	lobby  *lobby.Registry
	wallet *wallet.Authorizer
	engine engine.Engine
	opts   Options
	log    *zap.Logger
	now    func() time.Time
}

// New wires a Coordinator.
func New(g *guard.Guard, store *view.Store, lob *lobby.Registry, w *wallet.Authorizer, eng engine.Engine, opts Options, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Lease <= 0 {
		opts.Lease = 5 * time.Second
	}
	if opts.MinPlayers < 2 {
		opts.MinPlayers = 2
	}
	return &Coordinator{guard: g, store: store, lobby: lob, wallet: w, engine: eng, opts: opts, log: log, now: time.Now}
}

// WithClock replaces the clock used for timestamps; used by tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

func infra(err error) error { return fmt.Errorf("%w: %w", ErrStoreUnavailable, err) }

// locked runs fn while holding the session lease.  The lease is released
// on every path; losing it after the work is only logged because the CAS
// already protected the write.
func (c *Coordinator) locked(ctx context.Context, sessionID string, fn func(tok *guard.Token) error) error {
	tok, err := c.guard.Acquire(ctx, sessionID, c.opts.Lease)
	if err != nil {
		if errors.Is(err, guard.ErrTimeout) {
			return err
		}
		return infra(err)
	}
	defer func() {
		if rerr := c.guard.Release(context.WithoutCancel(ctx), tok); rerr != nil {
			c.log.Warn("guard release failed", zap.String("session_id", sessionID), zap.Error(rerr))
		}
	}()
	return fn(&tok)
}

// renew extends the lease between slow steps.
func (c *Coordinator) renew(ctx context.Context, tok *guard.Token) error {
	if err := c.guard.Renew(ctx, tok, c.opts.Lease); err != nil {
		if errors.Is(err, guard.ErrLeaseLost) {
			return err
		}
		return infra(err)
	}
	return nil
}

func (c *Coordinator) load(ctx context.Context, sessionID string) (model.Session, error) {
	v, err := c.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, view.ErrNotFound):
		return model.Session{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	case err != nil:
		return model.Session{}, infra(err)
	}
	return v, nil
}

// loadMutable is load plus the freeze check.
func (c *Coordinator) loadMutable(ctx context.Context, sessionID string) (model.Session, error) {
	frozen, err := c.store.Frozen(ctx, sessionID)
	if err != nil {
		return model.Session{}, infra(err)
	}
	if frozen {
		return model.Session{}, ErrSessionFrozen
	}
	return c.load(ctx, sessionID)
}

// persist writes next over prior.  A conflict here means someone else
// wrote while we held the lease, so the session is frozen.
func (c *Coordinator) persist(ctx context.Context, prior, next model.Session, opts view.PersistOptions) error {
	err := c.store.Persist(ctx, prior.Revision, next, opts)
	if err == nil {
		return nil
	}
	if !errors.Is(err, view.ErrConflict) {
		return infra(err)
	}
	observed, rerr := c.store.Revision(ctx, next.ID)
	c.log.Error("consistency fault: revision moved under held guard",
		zap.String("session_id", next.ID),
		zap.Int64("expected_revision", prior.Revision),
		zap.Int64("observed_revision", observed),
		zap.NamedError("revision_error", rerr))
	if ferr := c.store.Freeze(context.WithoutCancel(ctx), next.ID, fmt.Sprintf("conflict at revision %d", prior.Revision)); ferr != nil {
		c.log.Error("freeze failed", zap.String("session_id", next.ID), zap.Error(ferr))
	}
	return fmt.Errorf("%w: %w", ErrConsistencyFault, err)
}

func (c *Coordinator) engineErr(err error) error {
	if errors.Is(err, engine.ErrRulesViolation) {
		return fmt.Errorf("%w: %w", ErrIllegalAction, err)
	}
	return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
}

// CreateSession stores a new table in WAITING at revision 1.  An empty id
// gets a generated one.  A nil stake leaves blinds to the engine and
// buy-in limits to the coordinator options.
func (c *Coordinator) CreateSession(ctx context.Context, sessionID string, stake *model.Stake) (model.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if stake != nil {
		if err := stake.Validate(); err != nil {
			return model.Session{}, err
		}
		st := *stake
		stake = &st
	}
	now := c.now().UTC()
	v := model.Session{
		ID:        sessionID,
		Status:    model.StatusWaiting,
		Revision:  1,
		Stake:     stake,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.Create(ctx, v); err != nil {
		if errors.Is(err, view.ErrExists) {
			return model.Session{}, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
		}
		return model.Session{}, infra(err)
	}
	if stake != nil {
		c.log.Info("session created", zap.String("session_id", sessionID), zap.String("stake", stake.Name),
			zap.Int64("big_blind", stake.BigBlind), zap.Int64("min_buy_in", stake.MinBuyIn))
	} else {
		c.log.Info("session created", zap.String("session_id", sessionID))
	}
	return v, nil
}

// Get returns the latest persisted view.
func (c *Coordinator) Get(ctx context.Context, sessionID string) (model.Session, error) {
	return c.load(ctx, sessionID)
}

// SubmitAction plays action for userID.  Nothing is persisted unless the
// engine accepted the move and the wallet covered it.
func (c *Coordinator) SubmitAction(ctx context.Context, sessionID, userID string, action model.Action) (Result, error) {
	if !action.Kind.Valid() {
		return Result{}, fmt.Errorf("%w: unknown action %q", ErrIllegalAction, action.Kind)
	}
	if action.Kind == model.ActionLeave {
		return c.Leave(ctx, sessionID, userID)
	}
	var res Result
	err := c.locked(ctx, sessionID, func(_ *guard.Token) error {
		prior, err := c.loadMutable(ctx, sessionID)
		if err != nil {
			return err
		}
		p, err := c.checkTurn(prior, userID, action.Kind)
		if err != nil {
			return err
		}

		st, err := c.engine.Apply(ctx, prior.EngineState, userID, action)
		if err != nil {
			return c.engineErr(err)
		}

		var undo func()
		if action.Kind.MovesChips() {
			seat, ok := st.Seat(userID)
			if !ok {
				return fmt.Errorf("%w: actor missing from engine seats", ErrInvalidEngineState)
			}
			if undo, err = c.adjust(ctx, p, seat.Committed); err != nil {
				return err
			}
		}
		rollback := func() {
			if undo != nil {
				undo()
			}
		}

		rec := &model.ActionRecord{UserID: userID, Kind: action.Kind, Amount: action.Amount, At: c.now().UTC()}
		next, diff, err := view.Project(prior, st, view.Effects{Action: rec}, rec.At)
		if err != nil {
			rollback()
			return fmt.Errorf("%w: %w", ErrInvalidEngineState, err)
		}
		if err := c.persist(ctx, prior, next, view.PersistOptions{}); err != nil {
			rollback()
			return err
		}
		c.log.Info("action applied",
			zap.String("session_id", sessionID), zap.String("user_id", userID),
			zap.String("kind", string(action.Kind)), zap.Int64("revision", next.Revision))

		res = Result{View: next, Diff: diff}
		if next.Status == model.StatusFinished {
			c.finishInto(ctx, &res)
		}
		return nil
	})
	return res, err
}

// checkTurn validates that userID may play kind against v.
func (c *Coordinator) checkTurn(v model.Session, userID string, kind model.ActionKind) (*model.Participant, error) {
	if v.Status == model.StatusFinished {
		return nil, ErrSessionFinished
	}
	if !v.Status.InHand() {
		return nil, fmt.Errorf("%w: hand not started", ErrIllegalAction)
	}
	p, ok := v.Participant(userID)
	if !ok {
		return nil, ErrNotSeated
	}
	if v.CurrentActorID != userID {
		return nil, fmt.Errorf("%w: not %s's turn", ErrIllegalAction, userID)
	}
	if !v.Allows(kind) {
		return nil, fmt.Errorf("%w: %s not allowed", ErrIllegalAction, kind)
	}
	return p, nil
}

// adjust moves the seat's hold to amount and returns a func restoring the
// previous amount.
func (c *Coordinator) adjust(ctx context.Context, p *model.Participant, amount int64) (func(), error) {
	if p.WalletHoldID == "" {
		return nil, fmt.Errorf("%w: %s has no wallet hold", ErrInvalidEngineState, p.UserID)
	}
	prev := p.Committed
	if err := c.wallet.AdjustHold(ctx, p.WalletHoldID, amount); err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return nil, err
		}
		return nil, infra(err)
	}
	holdID, user := p.WalletHoldID, p.UserID
	return func() {
		if err := c.wallet.AdjustHold(context.WithoutCancel(ctx), holdID, prev); err != nil {
			c.log.Error("wallet adjust rollback failed",
				zap.String("hold_id", holdID), zap.String("user_id", user), zap.Error(err))
		}
	}, nil
}

// finishInto finalizes holds of a FINISHED view and records the outcome.
// The view is already persisted, so failures only mark the settlement
// as pending.
func (c *Coordinator) finishInto(ctx context.Context, res *Result) {
	s, err := c.settle(ctx, res.View)
	if err != nil {
		c.log.Error("settlement incomplete", zap.String("session_id", res.View.ID), zap.Error(err))
		res.SettlementPending = true
		return
	}
	res.Settlement = s
}
