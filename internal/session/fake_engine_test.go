package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/iliyamo/poker-table-coordinator/internal/engine"
	"github.com/iliyamo/poker-table-coordinator/internal/model"
)

// fakeHand is the raw state of fakeEngine.  Committed is cumulative for
// the hand and Bet is the level every live seat has to match.
type fakeHand struct {
	Seats  []engine.SeatState `json:"seats"`
	Actor  int                `json:"actor"`
	Bet    int64              `json:"bet"`
	Acted  map[string]bool    `json:"acted"`
	Street int                `json:"street"`
	Board  []string           `json:"board"`
	Done   bool               `json:"done"`
	Payout map[string]int64   `json:"payout"`
}

// fakeEngine is a deliberately small table: four streets, no side pots,
// winner chosen by the test.  It does not check stacks, so the wallet is
// what stops an over-bet.
type fakeEngine struct {
	mu      sync.Mutex
	blinds  []int64
	winner  string
	starts  int
	dealt   []engine.Seat
	onApply func()
}

// Start posts the table's blinds when given, else the test's defaults.
func (e *fakeEngine) Start(_ context.Context, _ string, seats []engine.Seat, tb engine.Blinds) (engine.State, error) {
	e.mu.Lock()
	e.starts++
	e.dealt = append([]engine.Seat(nil), seats...)
	blinds := e.blinds
	if tb != (engine.Blinds{}) {
		blinds = []int64{tb.Small, tb.Big}
	}
	e.mu.Unlock()

	h := fakeHand{Acted: map[string]bool{}}
	for i, s := range seats {
		var blind int64
		if i < len(blinds) {
			blind = min(blinds[i], s.Stack)
		}
		h.Seats = append(h.Seats, engine.SeatState{UserID: s.UserID, Stack: s.Stack - blind, Committed: blind})
		h.Bet = max(h.Bet, blind)
	}
	return e.render(h)
}

func (e *fakeEngine) Apply(_ context.Context, raw []byte, userID string, a model.Action) (engine.State, error) {
	e.mu.Lock()
	hook := e.onApply
	e.mu.Unlock()
	if hook != nil {
		hook()
	}

	var h fakeHand
	if err := json.Unmarshal(raw, &h); err != nil {
		return engine.State{}, err
	}
	if h.Done {
		return engine.State{}, fmt.Errorf("%w: hand over", engine.ErrRulesViolation)
	}
	idx := -1
	for i := range h.Seats {
		if h.Seats[i].UserID == userID {
			idx = i
		}
	}
	if idx < 0 {
		return engine.State{}, fmt.Errorf("%w: unknown seat", engine.ErrRulesViolation)
	}
	s := &h.Seats[idx]

	if a.Kind == model.ActionLeave {
		s.Left, s.Folded = true, true
		if h.Actor == idx {
			e.advance(&h)
		} else {
			e.settleIfDone(&h)
		}
		return e.render(h)
	}
	if h.Actor != idx {
		return engine.State{}, fmt.Errorf("%w: not your turn", engine.ErrRulesViolation)
	}

	switch a.Kind {
	case model.ActionFold:
		s.Folded = true
	case model.ActionCheck:
		if s.Committed != h.Bet {
			return engine.State{}, fmt.Errorf("%w: cannot check", engine.ErrRulesViolation)
		}
	case model.ActionCall:
		add := min(h.Bet-s.Committed, s.Stack)
		s.Stack -= add
		s.Committed += add
		s.AllIn = s.Stack == 0
	case model.ActionBet, model.ActionRaise:
		if a.Amount <= h.Bet {
			return engine.State{}, fmt.Errorf("%w: raise too small", engine.ErrRulesViolation)
		}
		s.Stack -= a.Amount - s.Committed
		s.Committed = a.Amount
		h.Bet = a.Amount
		h.Acted = map[string]bool{}
	case model.ActionAllIn:
		s.Committed += s.Stack
		s.Stack = 0
		s.AllIn = true
		if s.Committed > h.Bet {
			h.Bet = s.Committed
			h.Acted = map[string]bool{}
		}
	}
	h.Acted[userID] = true
	e.advance(&h)
	return e.render(h)
}

func (e *fakeEngine) Describe(_ context.Context, raw []byte) (engine.State, error) {
	var h fakeHand
	if err := json.Unmarshal(raw, &h); err != nil {
		return engine.State{}, err
	}
	return e.render(h)
}

func canAct(s engine.SeatState) bool { return !s.Folded && !s.AllIn }

// advance moves to the next actor, the next street or the showdown.
func (e *fakeEngine) advance(h *fakeHand) {
	if e.settleIfDone(h) {
		return
	}
	roundOver := true
	for _, s := range h.Seats {
		if canAct(s) && (!h.Acted[s.UserID] || s.Committed != h.Bet) {
			roundOver = false
		}
	}
	if !roundOver {
		for i := 1; i <= len(h.Seats); i++ {
			j := (h.Actor + i) % len(h.Seats)
			if canAct(h.Seats[j]) {
				h.Actor = j
				return
			}
		}
	}
	active := 0
	for _, s := range h.Seats {
		if canAct(s) {
			active++
		}
	}
	if h.Street == 3 || active < 2 {
		e.showdown(h)
		return
	}
	h.Street++
	h.Board = append(h.Board, fmt.Sprintf("c%d", h.Street))
	h.Acted = map[string]bool{}
	for i, s := range h.Seats {
		if canAct(s) {
			h.Actor = i
			return
		}
	}
}

// settleIfDone ends the hand when one live seat is left.
func (e *fakeEngine) settleIfDone(h *fakeHand) bool {
	live := 0
	for _, s := range h.Seats {
		if !s.Folded {
			live++
		}
	}
	if live > 1 {
		return false
	}
	e.showdown(h)
	return true
}

func (e *fakeEngine) showdown(h *fakeHand) {
	e.mu.Lock()
	want := e.winner
	e.mu.Unlock()
	win := -1
	for i, s := range h.Seats {
		if s.Folded {
			continue
		}
		if win < 0 || s.UserID == want {
			win = i
		}
	}
	var pot int64
	for _, s := range h.Seats {
		pot += s.Committed
	}
	h.Seats[win].Stack += pot
	h.Payout = map[string]int64{h.Seats[win].UserID: pot}
	h.Done = true
}

func (e *fakeEngine) render(h fakeHand) (engine.State, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return engine.State{}, err
	}
	st := engine.State{Raw: raw, Board: h.Board, CurrentBet: h.Bet, Seats: h.Seats}
	if h.Done {
		st.Phase = engine.PhaseFinished
		st.Payouts = h.Payout
		return st, nil
	}
	st.Phase = engine.PhaseBetting
	for _, s := range h.Seats {
		st.Pot += s.Committed
	}
	actor := h.Seats[h.Actor]
	st.ActorID = actor.UserID
	st.Allowed = []model.ActionKind{model.ActionFold, model.ActionRaise, model.ActionBet, model.ActionAllIn}
	if actor.Committed == h.Bet {
		st.Allowed = append(st.Allowed, model.ActionCheck)
	} else {
		st.Allowed = append(st.Allowed, model.ActionCall)
	}
	return st, nil
}
