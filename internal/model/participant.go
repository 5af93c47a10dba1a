package model

// ParticipantStatus is the state of a seat within a hand.
type ParticipantStatus string

const (
    ParticipantActive ParticipantStatus = "ACTIVE"
    ParticipantFolded ParticipantStatus = "FOLDED"
    ParticipantAllIn  ParticipantStatus = "ALL_IN"
    ParticipantLeft   ParticipantStatus = "LEFT"
)

// Participant is a seated player.  It belongs to exactly one Session.
//
// Fields:
//  UserID       – wallet owner.
//  DisplayName  – name captured when the user joined the lobby.  It is
//                 never refreshed for the lifetime of the session.
//  Stack        – chips behind, copied from the engine.
//  Committed    – chips this player has put in the pot this hand.
//  HoleCards    – opaque, passed through from the engine.
//  Status       – ACTIVE, FOLDED, ALL_IN or LEFT.
//  WalletHoldID – hold opened for this seat; empty when none was opened.
type Participant struct {
    UserID       string            `json:"user_id"`
    DisplayName  string            `json:"display_name"`
    Stack        int64             `json:"stack"`
    Committed    int64             `json:"committed"`
    HoleCards    []string          `json:"hole_cards,omitempty"`
    Status       ParticipantStatus `json:"status"`
    WalletHoldID string            `json:"wallet_hold_id,omitempty"`
}
