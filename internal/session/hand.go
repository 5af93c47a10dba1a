package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/poker-table-coordinator/internal/engine"
	"github.com/iliyamo/poker-table-coordinator/internal/guard"
	"github.com/iliyamo/poker-table-coordinator/internal/lobby"
	"github.com/iliyamo/poker-table-coordinator/internal/model"
	"github.com/iliyamo/poker-table-coordinator/internal/view"
	"github.com/iliyamo/poker-table-coordinator/internal/wallet"
)

// eligible reports whether a wallet balance may sit at v's table.
func (c *Coordinator) eligible(v model.Session, balance int64) bool {
	if balance <= 0 || balance < c.opts.MinBalance {
		return false
	}
	return v.Stake == nil || v.Stake.Covers(balance)
}

// minBuyIn is the balance a member needs for v's table.
func (c *Coordinator) minBuyIn(v model.Session) int64 {
	if v.Stake != nil && v.Stake.MinBuyIn > c.opts.MinBalance {
		return v.Stake.MinBuyIn
	}
	return c.opts.MinBalance
}

// stackFor is the stack dealt for a balance, capped at the table's max
// buy-in.
func stackFor(v model.Session, balance int64) int64 {
	if v.Stake == nil {
		return balance
	}
	return v.Stake.BuyIn(balance)
}

func blindsFor(v model.Session) engine.Blinds {
	if v.Stake == nil {
		return engine.Blinds{}
	}
	return engine.Blinds{Small: v.Stake.SmallBlind, Big: v.Stake.BigBlind}
}

// StartHand deals the lobby in join order.  Members who cannot cover their
// opening hold are dropped and the deal is retried without them.  The view
// leaves WAITING and the lobby is deleted in the same write.
func (c *Coordinator) StartHand(ctx context.Context, sessionID string) (Result, error) {
	var res Result
	err := c.locked(ctx, sessionID, func(tok *guard.Token) error {
		prior, err := c.loadMutable(ctx, sessionID)
		if err != nil {
			return err
		}
		switch {
		case prior.Status == model.StatusFinished:
			return ErrSessionFinished
		case prior.Status != model.StatusWaiting:
			return fmt.Errorf("%w: hand already started", ErrIllegalAction)
		}

		entries, err := c.lobby.Entries(ctx, sessionID)
		if err != nil {
			return infra(err)
		}
		stacks := make(map[string]int64, len(entries))
		cands := make([]model.LobbyEntry, 0, len(entries))
		for _, e := range entries {
			bal, err := c.wallet.Ledger().Balance(ctx, e.UserID)
			if err != nil {
				return infra(err)
			}
			if !c.eligible(prior, bal) {
				c.log.Info("member skipped, balance too low",
					zap.String("session_id", sessionID), zap.String("user_id", e.UserID), zap.Int64("balance", bal))
				continue
			}
			stacks[e.UserID] = stackFor(prior, bal)
			cands = append(cands, e)
		}
		blinds := blindsFor(prior)

		handID := fmt.Sprintf("%s-%d", sessionID, prior.HandNumber+1)
		for {
			if len(cands) < c.opts.MinPlayers {
				return fmt.Errorf("%w: %d eligible, need %d", ErrNotEnoughPlayers, len(cands), c.opts.MinPlayers)
			}
			seats := make([]engine.Seat, len(cands))
			for i, e := range cands {
				seats[i] = engine.Seat{UserID: e.UserID, Stack: stacks[e.UserID]}
			}
			st, err := c.engine.Start(ctx, handID, seats, blinds)
			if err != nil {
				return c.engineErr(err)
			}
			if err := c.renew(ctx, tok); err != nil {
				return err
			}

			holds, short, err := c.openHolds(ctx, sessionID, st)
			if err != nil {
				return err
			}
			if short != "" {
				c.log.Info("member dropped, hold refused",
					zap.String("session_id", sessionID), zap.String("user_id", short))
				cands = without(cands, short)
				continue
			}
			if err := c.renew(ctx, tok); err != nil {
				c.refundAll(ctx, holds)
				return err
			}

			seated := make([]model.Participant, len(cands))
			for i, e := range cands {
				seated[i] = model.Participant{UserID: e.UserID, DisplayName: e.DisplayName, Status: model.ParticipantActive}
			}
			now := c.now().UTC()
			next, diff, err := view.Project(prior, st, view.Effects{Seated: seated, Holds: holds}, now)
			if err != nil {
				c.refundAll(ctx, holds)
				return fmt.Errorf("%w: %w", ErrInvalidEngineState, err)
			}
			err = c.persist(ctx, prior, next, view.PersistOptions{
				Delete:  lobby.Keys(sessionID),
				Mark:    []string{lobby.ClosedKey(sessionID)},
				MarkTTL: c.opts.LobbyTTL,
			})
			if err != nil {
				c.refundAll(ctx, holds)
				return err
			}
			c.log.Info("hand started",
				zap.String("session_id", sessionID), zap.Int("hand_number", next.HandNumber),
				zap.Int("players", len(seated)), zap.Int64("chip_total", next.ChipTotal))

			res = Result{View: next, Diff: diff}
			if next.Status == model.StatusFinished {
				c.finishInto(ctx, &res)
			}
			return nil
		}
	})
	return res, err
}

// openHolds opens one hold per engine seat for its opening commitment.
// When a member cannot be covered every hold opened so far is refunded
// and that member's id is returned.  A hold already open for the seat is
// left over from a failed refund, so it is an infrastructure fault and
// not a reason to drop a funded member.
func (c *Coordinator) openHolds(ctx context.Context, sessionID string, st engine.State) (map[string]string, string, error) {
	holds := make(map[string]string, len(st.Seats))
	for _, seat := range st.Seats {
		h, err := c.wallet.OpenHold(ctx, sessionID, seat.UserID, seat.Committed)
		if err != nil {
			c.refundAll(ctx, holds)
			if errors.Is(err, wallet.ErrInsufficientFunds) {
				return nil, seat.UserID, nil
			}
			return nil, "", infra(err)
		}
		holds[seat.UserID] = h.ID
	}
	return holds, "", nil
}

func (c *Coordinator) refundAll(ctx context.Context, holds map[string]string) {
	ctx = context.WithoutCancel(ctx)
	for uid, id := range holds {
		if err := c.wallet.Refund(ctx, id); err != nil {
			c.log.Error("refund failed", zap.String("hold_id", id), zap.String("user_id", uid), zap.Error(err))
		}
	}
}

func without(entries []model.LobbyEntry, userID string) []model.LobbyEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.UserID != userID {
			out = append(out, e)
		}
	}
	return out
}

// Leave removes userID from the table.  Before the deal it is a lobby
// leave.  During a hand the engine folds the seat and the participant is
// marked LEFT.  Their hold stays pending until the hand settles: a normal
// finish releases it with the commitment left in the pot, an abort
// refunds it like every other seat.
func (c *Coordinator) Leave(ctx context.Context, sessionID, userID string) (Result, error) {
	var res Result
	err := c.locked(ctx, sessionID, func(_ *guard.Token) error {
		prior, err := c.loadMutable(ctx, sessionID)
		if err != nil {
			return err
		}
		switch {
		case prior.Status == model.StatusWaiting:
			r, err := c.lobby.Leave(ctx, sessionID, userID)
			if err != nil {
				return infra(err)
			}
			if r == lobby.LeaveNotMember {
				return ErrNotSeated
			}
			res = Result{View: prior}
			return nil
		case prior.Status == model.StatusFinished:
			return ErrSessionFinished
		}

		p, ok := prior.Participant(userID)
		if !ok || p.Status == model.ParticipantLeft {
			return ErrNotSeated
		}
		st, err := c.engine.Apply(ctx, prior.EngineState, userID, model.Action{Kind: model.ActionLeave})
		if err != nil {
			return c.engineErr(err)
		}
		rec := &model.ActionRecord{UserID: userID, Kind: model.ActionLeave, At: c.now().UTC()}
		next, diff, err := view.Project(prior, st, view.Effects{Action: rec}, rec.At)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEngineState, err)
		}
		if np, ok := next.Participant(userID); !ok || np.Status != model.ParticipantLeft {
			return fmt.Errorf("%w: engine kept %s seated", ErrInvalidEngineState, userID)
		}
		if err := c.persist(ctx, prior, next, view.PersistOptions{}); err != nil {
			return err
		}
		c.log.Info("participant left", zap.String("session_id", sessionID), zap.String("user_id", userID),
			zap.Int64("revision", next.Revision))

		res = Result{View: next, Diff: diff}
		if next.Status == model.StatusFinished {
			c.finishInto(ctx, &res)
		}
		return nil
	})
	return res, err
}

// AbortHand calls off the hand in progress.  Every stack gets its
// commitment back, the view is persisted FINISHED without payouts and
// each hold is refunded and released.
func (c *Coordinator) AbortHand(ctx context.Context, sessionID string) (Result, error) {
	var res Result
	err := c.locked(ctx, sessionID, func(_ *guard.Token) error {
		prior, err := c.loadMutable(ctx, sessionID)
		if err != nil {
			return err
		}
		if prior.Status == model.StatusFinished {
			return ErrSessionFinished
		}
		if !prior.Status.InHand() {
			return fmt.Errorf("%w: no hand in progress", ErrIllegalAction)
		}

		st := engine.State{Raw: prior.EngineState, Phase: engine.PhaseFinished, Board: prior.CommunityCards}
		for _, p := range prior.Participants {
			st.Seats = append(st.Seats, engine.SeatState{
				UserID:    p.UserID,
				Stack:     p.Stack + p.Committed,
				HoleCards: p.HoleCards,
				Folded:    p.Status == model.ParticipantFolded,
				AllIn:     p.Status == model.ParticipantAllIn,
				Left:      p.Status == model.ParticipantLeft,
			})
		}
		next, diff, err := view.Project(prior, st, view.Effects{}, c.now().UTC())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEngineState, err)
		}
		next.Aborted = true
		if err := c.persist(ctx, prior, next, view.PersistOptions{}); err != nil {
			return err
		}
		c.log.Warn("hand aborted", zap.String("session_id", sessionID), zap.Int64("revision", next.Revision))
		res = Result{View: next, Diff: diff}
		c.finishInto(ctx, &res)
		return nil
	})
	return res, err
}

// FinalizeHolds replays settlement for a FINISHED view.  Commit and
// release are idempotent, so it is safe after a crash at any point.
func (c *Coordinator) FinalizeHolds(ctx context.Context, sessionID string) (*Settlement, error) {
	var out *Settlement
	err := c.locked(ctx, sessionID, func(_ *guard.Token) error {
		v, err := c.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if v.Status != model.StatusFinished {
			return fmt.Errorf("%w: hand not finished", ErrIllegalAction)
		}
		s, err := c.settle(ctx, v)
		if err != nil {
			return infra(err)
		}
		out = s
		return nil
	})
	return out, err
}

// settle commits winners' holds with their payout and releases the rest.
// An aborted hand refunds every hold instead.
func (c *Coordinator) settle(ctx context.Context, v model.Session) (*Settlement, error) {
	s := &Settlement{SessionID: v.ID, Payouts: v.Payouts, Aborted: v.Aborted}
	var errs []error
	for _, p := range v.Participants {
		id := p.WalletHoldID
		if id == "" {
			continue
		}
		var err error
		switch payout := v.Payouts[p.UserID]; {
		case v.Aborted:
			err = c.wallet.Refund(ctx, id)
		case payout > 0:
			err = c.wallet.Commit(ctx, id, payout)
		default:
			err = c.wallet.Release(ctx, id)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("hold %s: %w", id, err))
			continue
		}
		h, err := c.wallet.Get(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.Holds = append(s.Holds, h)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	c.log.Info("hand settled", zap.String("session_id", v.ID), zap.Any("payouts", v.Payouts), zap.Bool("aborted", v.Aborted))
	return s, nil
}

// Recover reconciles a session with the engine and lifts a freeze.  An
// in-progress hand is re-projected from the last persisted engine state
// as a new revision, with holds realigned to the engine's commitments; a
// finished hand has its settlement replayed.
func (c *Coordinator) Recover(ctx context.Context, sessionID string) (Result, error) {
	var res Result
	err := c.locked(ctx, sessionID, func(_ *guard.Token) error {
		v, err := c.load(ctx, sessionID)
		if err != nil {
			return err
		}
		switch {
		case v.Status == model.StatusWaiting:
			res = Result{View: v}
		case v.Status == model.StatusFinished:
			res = Result{View: v}
			c.finishInto(ctx, &res)
		default:
			st, err := c.engine.Describe(ctx, v.EngineState)
			if err != nil {
				return c.engineErr(err)
			}
			for _, p := range v.Participants {
				seat, ok := st.Seat(p.UserID)
				if !ok || p.WalletHoldID == "" {
					continue
				}
				h, err := c.wallet.Get(ctx, p.WalletHoldID)
				if err != nil {
					return infra(err)
				}
				if h.State == model.HoldPending && h.Amount != seat.Committed {
					if err := c.wallet.AdjustHold(ctx, h.ID, seat.Committed); err != nil {
						return fmt.Errorf("realign hold %s: %w", h.ID, err)
					}
				}
			}
			next, diff, err := view.Project(v, st, view.Effects{}, c.now().UTC())
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidEngineState, err)
			}
			if err := c.persist(ctx, v, next, view.PersistOptions{}); err != nil {
				return err
			}
			res = Result{View: next, Diff: diff}
			if next.Status == model.StatusFinished {
				c.finishInto(ctx, &res)
			}
		}
		if err := c.store.Unfreeze(ctx, sessionID); err != nil {
			return infra(err)
		}
		c.log.Warn("session recovered", zap.String("session_id", sessionID), zap.Int64("revision", res.View.Revision))
		return nil
	})
	return res, err
}
