// Package engine is the boundary to the authoritative poker rules engine.
// The engine owns turn order, street progression and hand ranking; this
// side only reads the handful of fields the projection needs and passes
// the raw state back untouched on the next call.
package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/iliyamo/poker-table-coordinator/internal/model"
)

// ErrRulesViolation is returned when the engine rejects an action.
var ErrRulesViolation = errors.New("engine: rules violation")

// Phase is the engine's view of where the hand is.
type Phase string

const (
	PhaseDealing  Phase = "dealing"
	PhaseBetting  Phase = "betting"
	PhaseShowdown Phase = "showdown"
	PhaseFinished Phase = "finished"
)

// Status maps an engine phase onto the session status.
func (p Phase) Status() model.SessionStatus {
	switch p {
	case PhaseDealing:
		return model.StatusDealing
	case PhaseShowdown:
		return model.StatusShowdown
	case PhaseFinished:
		return model.StatusFinished
	}
	return model.StatusBetting
}

// Seat is a player handed to the engine when a hand is dealt.
type Seat struct {
	UserID string `json:"user_id"`
	Stack  int64  `json:"stack"`
}

// Blinds are the forced bets of a deal.  The zero value leaves them to
// the engine.
type Blinds struct {
	Small int64 `json:"small"`
	Big   int64 `json:"big"`
}

// SeatState is a seat as the engine reports it after each step.
type SeatState struct {
	UserID    string   `json:"user_id"`
	Stack     int64    `json:"stack"`
	Committed int64    `json:"committed"`
	HoleCards []string `json:"hole_cards,omitempty"`
	Folded    bool     `json:"folded"`
	AllIn     bool     `json:"all_in"`
	Left      bool     `json:"left"`
}

// ParticipantStatus derives the participant status from the seat flags.
func (s SeatState) ParticipantStatus() model.ParticipantStatus {
	switch {
	case s.Left:
		return model.ParticipantLeft
	case s.Folded:
		return model.ParticipantFolded
	case s.AllIn:
		return model.ParticipantAllIn
	}
	return model.ParticipantActive
}

// State is the engine's answer.  Raw is opaque and must be returned to
// the engine unchanged; the other fields are read for the projection.
type State struct {
	Raw        json.RawMessage    `json:"raw"`
	Phase      Phase              `json:"phase"`
	Pot        int64              `json:"pot"`
	CurrentBet int64              `json:"current_bet"`
	Board      []string           `json:"board"`
	ActorID    string             `json:"actor_id"`
	Allowed    []model.ActionKind `json:"allowed"`
	Seats      []SeatState        `json:"seats"`
	Payouts    map[string]int64   `json:"payouts,omitempty"`
}

// Seat looks up a seat by user.
func (s State) Seat(userID string) (SeatState, bool) {
	for _, st := range s.Seats {
		if st.UserID == userID {
			return st, true
		}
	}
	return SeatState{}, false
}

// Engine is any conforming rules engine.
type Engine interface {
	// Start deals a new hand for seats in acting order, posting blinds
	// from the first two seats.
	Start(ctx context.Context, handID string, seats []Seat, blinds Blinds) (State, error)
	// Apply plays action for userID against raw and returns the next
	// state, or ErrRulesViolation.
	Apply(ctx context.Context, raw []byte, userID string, action model.Action) (State, error)
	// Describe decodes raw without advancing it.  Recovery uses it to
	// rebuild a projection from the last persisted engine state.
	Describe(ctx context.Context, raw []byte) (State, error)
}
