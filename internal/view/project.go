// Package view holds the versioned projection of a session: a pure
// function that folds an engine step into the previous snapshot, and a
// Redis store that persists snapshots with compare-and-swap on the
// revision.
package view

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/iliyamo/poker-table-coordinator/internal/engine"
	"github.com/iliyamo/poker-table-coordinator/internal/model"
)

var (
	// ErrConservation means the engine reported a state whose stacks plus
	// pot differ from the chips dealt into the hand.
	ErrConservation = errors.New("view: chip total not conserved")
	// ErrSeatMismatch means the engine's seats do not match the seated
	// participants.
	ErrSeatMismatch = errors.New("view: engine seats do not match participants")
	// ErrActor means the engine named an actor that cannot act.
	ErrActor = errors.New("view: invalid current actor")
	// ErrFinished means a projection was attempted on a settled hand.
	ErrFinished = errors.New("view: session finished")
)

// Effects are the facts this layer adds on top of the engine step.
type Effects struct {
	// Seated replaces the participant list.  Only used when dealing.
	Seated []model.Participant
	// Holds maps user id to the wallet hold backing that seat.
	Holds map[string]string
	// Action is the move that produced this step, if any.
	Action *model.ActionRecord
}

// Diff summarises what a revision changed, for the rendering layer.
type Diff struct {
	SessionID     string   `json:"session_id"`
	Revision      int64    `json:"revision"`
	ChangedFields []string `json:"changed_fields"`
	ActingUserID  string   `json:"acting_user_id,omitempty"`
}

// Project returns the view that follows prior once the engine reached st.
// prior is never modified.  The result has Revision prior.Revision+1 and
// carries the engine's pot, bet, board and actor verbatim.
func Project(prior model.Session, st engine.State, eff Effects, now time.Time) (model.Session, Diff, error) {
	if prior.Status == model.StatusFinished {
		return model.Session{}, Diff{}, ErrFinished
	}
	next := prior.Clone()
	if eff.Seated != nil {
		next.Participants = make([]model.Participant, len(eff.Seated))
		copy(next.Participants, eff.Seated)
	}
	if len(st.Seats) != len(next.Participants) {
		return model.Session{}, Diff{}, fmt.Errorf("%w: %d seats for %d participants",
			ErrSeatMismatch, len(st.Seats), len(next.Participants))
	}

	// Participant order is fixed at deal time; only engine-owned fields
	// are refreshed.  Display names stay as captured.
	for i := range next.Participants {
		p := &next.Participants[i]
		seat, ok := st.Seat(p.UserID)
		if !ok {
			return model.Session{}, Diff{}, fmt.Errorf("%w: %s missing", ErrSeatMismatch, p.UserID)
		}
		p.Stack = seat.Stack
		p.Committed = seat.Committed
		p.HoleCards = append([]string(nil), seat.HoleCards...)
		p.Status = seat.ParticipantStatus()
		if id, ok := eff.Holds[p.UserID]; ok {
			p.WalletHoldID = id
		}
	}

	next.Revision = prior.Revision + 1
	next.Status = st.Phase.Status()
	next.Pot = st.Pot
	next.CurrentBet = st.CurrentBet
	next.CommunityCards = append([]string(nil), st.Board...)
	next.CurrentActorID = st.ActorID
	next.AllowedActions = append([]model.ActionKind(nil), st.Allowed...)
	next.EngineState = append([]byte(nil), st.Raw...)
	next.LastAction = eff.Action
	next.UpdatedAt = now

	if prior.Status == model.StatusWaiting {
		next.HandNumber = prior.HandNumber + 1
		next.ChipTotal = next.Chips()
	}
	if got := next.Chips(); got != next.ChipTotal {
		return model.Session{}, Diff{}, fmt.Errorf("%w: have %d, dealt %d", ErrConservation, got, next.ChipTotal)
	}

	if next.Status == model.StatusFinished {
		next.CurrentActorID = ""
		next.AllowedActions = nil
		next.Payouts = make(map[string]int64, len(st.Payouts))
		var paid int64
		for uid, amt := range st.Payouts {
			if _, ok := next.Participant(uid); !ok || amt < 0 {
				return model.Session{}, Diff{}, fmt.Errorf("%w: payout to %s", ErrSeatMismatch, uid)
			}
			next.Payouts[uid] = amt
			paid += amt
		}
		if paid > next.ChipTotal {
			return model.Session{}, Diff{}, fmt.Errorf("%w: paid %d of %d", ErrConservation, paid, next.ChipTotal)
		}
	} else if next.CurrentActorID != "" {
		p, ok := next.Participant(next.CurrentActorID)
		if !ok || p.Status != model.ParticipantActive {
			return model.Session{}, Diff{}, fmt.Errorf("%w: %s", ErrActor, next.CurrentActorID)
		}
	}

	d := Diff{SessionID: next.ID, Revision: next.Revision, ChangedFields: changed(prior, next)}
	if eff.Action != nil {
		d.ActingUserID = eff.Action.UserID
	}
	return next, d, nil
}

func changed(a, b model.Session) []string {
	var out []string
	add := func(name string, differ bool) {
		if differ {
			out = append(out, name)
		}
	}
	add("status", a.Status != b.Status)
	add("participants", !reflect.DeepEqual(a.Participants, b.Participants))
	add("pot", a.Pot != b.Pot)
	add("current_bet", a.CurrentBet != b.CurrentBet)
	add("community_cards", !equalStrings(a.CommunityCards, b.CommunityCards))
	add("current_actor_id", a.CurrentActorID != b.CurrentActorID)
	add("payouts", !reflect.DeepEqual(a.Payouts, b.Payouts))
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
