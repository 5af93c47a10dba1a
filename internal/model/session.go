package model

import "time"

// SessionStatus is the lifecycle state of a single hand.
type SessionStatus string

const (
    StatusWaiting  SessionStatus = "WAITING"
    StatusDealing  SessionStatus = "DEALING"
    StatusBetting  SessionStatus = "BETTING"
    StatusShowdown SessionStatus = "SHOWDOWN"
    StatusFinished SessionStatus = "FINISHED"
)

// InHand reports whether chips are in play, i.e. the session has left the
// lobby and has not been settled yet.
func (s SessionStatus) InHand() bool {
    return s == StatusDealing || s == StatusBetting || s == StatusShowdown
}

// Session is one poker hand as projected from the rules engine.  A session
// is persisted as a single versioned record; every successful mutation
// increments Revision by exactly one.
//
// Fields:
//  ID             – opaque session identifier.
//  Status         – WAITING, DEALING, BETTING, SHOWDOWN or FINISHED.
//  Revision       – optimistic concurrency token.
//  HandNumber     – how many hands this table has dealt, starting at 1.
//  Participants   – seats in acting order; order is never rearranged.
//  Pot            – chips in the middle, copied from the engine.
//  CurrentBet     – highest commitment of the current street.
//  CommunityCards – board cards, opaque strings.
//  CurrentActorID – user expected to act; empty when nobody is.
//  AllowedActions – actions the engine accepts from CurrentActorID.
//  ChipTotal      – sum of stacks and pot at deal time.
//  Payouts        – chips won per user, set once the hand is FINISHED.
//  Aborted        – the hand was called off and every hold refunded.
//  Stake          – blinds and buy-in limits; nil lets the engine decide.
//  LastAction     – the action that produced this revision, if any.
//  EngineState    – opaque engine blob handed back to the engine verbatim.
type Session struct {
    ID             string           `json:"id"`
    Status         SessionStatus    `json:"status"`
    Revision       int64            `json:"revision"`
    HandNumber     int              `json:"hand_number"`
    Participants   []Participant    `json:"participants"`
    Pot            int64            `json:"pot"`
    CurrentBet     int64            `json:"current_bet"`
    CommunityCards []string         `json:"community_cards"`
    CurrentActorID string           `json:"current_actor_id,omitempty"`
    AllowedActions []ActionKind     `json:"allowed_actions,omitempty"`
    ChipTotal      int64            `json:"chip_total"`
    Payouts        map[string]int64 `json:"payouts,omitempty"`
    Aborted        bool             `json:"aborted,omitempty"`
    Stake          *Stake           `json:"stake,omitempty"`
    LastAction     *ActionRecord    `json:"last_action,omitempty"`
    EngineState    []byte           `json:"engine_state,omitempty"`
    CreatedAt      time.Time        `json:"created_at"`
    UpdatedAt      time.Time        `json:"updated_at"`
}

// Participant returns the seat held by userID.
func (s *Session) Participant(userID string) (*Participant, bool) {
    for i := range s.Participants {
        if s.Participants[i].UserID == userID {
            return &s.Participants[i], true
        }
    }
    return nil, false
}

// Chips sums every stack plus the pot.  Within a hand this value never
// changes.
func (s *Session) Chips() int64 {
    total := s.Pot
    for _, p := range s.Participants {
        total += p.Stack
    }
    return total
}

// Allows reports whether kind is in the allowed set for the current actor.
func (s *Session) Allows(kind ActionKind) bool {
    for _, k := range s.AllowedActions {
        if k == kind {
            return true
        }
    }
    return false
}

// Clone returns a deep copy so a projection never aliases its prior view.
func (s Session) Clone() Session {
    out := s
    out.Participants = make([]Participant, len(s.Participants))
    for i, p := range s.Participants {
        p.HoleCards = append([]string(nil), p.HoleCards...)
        out.Participants[i] = p
    }
    out.CommunityCards = append([]string(nil), s.CommunityCards...)
    out.AllowedActions = append([]ActionKind(nil), s.AllowedActions...)
    out.EngineState = append([]byte(nil), s.EngineState...)
    if s.Payouts != nil {
        out.Payouts = make(map[string]int64, len(s.Payouts))
        for k, v := range s.Payouts {
            out.Payouts[k] = v
        }
    }
    if s.Stake != nil {
        st := *s.Stake
        out.Stake = &st
    }
    if s.LastAction != nil {
        la := *s.LastAction
        out.LastAction = &la
    }
    return out
}
