package model

import "time"

// ActionKind names a player decision.
type ActionKind string

const (
    ActionFold  ActionKind = "fold"
    ActionCheck ActionKind = "check"
    ActionCall  ActionKind = "call"
    ActionBet   ActionKind = "bet"
    ActionRaise ActionKind = "raise"
    ActionAllIn ActionKind = "all_in"
    // ActionLeave is accepted from any seated player at any time and is
    // treated by the engine as a fold.
    ActionLeave ActionKind = "leave"
)

// MovesChips reports whether the action can change the player's commitment
// and therefore the wallet hold.
func (k ActionKind) MovesChips() bool {
    switch k {
    case ActionBet, ActionRaise, ActionCall, ActionAllIn:
        return true
    }
    return false
}

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
    switch k {
    case ActionFold, ActionCheck, ActionCall, ActionBet, ActionRaise, ActionAllIn, ActionLeave:
        return true
    }
    return false
}

// Action is what a client submits.  Amount is the total the player wants
// committed on this street for bet and raise; it is ignored otherwise.
type Action struct {
    Kind   ActionKind `json:"kind"`
    Amount int64      `json:"amount,omitempty"`
}

// ActionRecord remembers who did what for the revision it produced.
type ActionRecord struct {
    UserID string     `json:"user_id"`
    Kind   ActionKind `json:"kind"`
    Amount int64      `json:"amount,omitempty"`
    At     time.Time  `json:"at"`
}
