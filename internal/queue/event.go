// Package queue defines message payloads exchanged over the message broker.
package queue

// Event types carried in SessionEvent.Type.
const (
    EventRevision = "revision" // a new view revision was persisted
    EventFinished = "finished" // the hand ended and the holds were finalized
)

// SessionEvent is published after every persisted revision of a session
// view and once more when the hand settles.  It carries enough for a
// downstream consumer to keep a hand history without reading Redis.
type SessionEvent struct {
    Type          string           `json:"type"`
    SessionID     string           `json:"session_id"`
    Revision      int64            `json:"revision"`
    Status        string           `json:"status"`
    ChangedFields []string         `json:"changed_fields,omitempty"`
    ActingUserID  string           `json:"acting_user_id,omitempty"`
    HandNumber    int              `json:"hand_number,omitempty"`
    Payouts       map[string]int64 `json:"payouts,omitempty"`
    Aborted       bool             `json:"aborted,omitempty"`
    At            string           `json:"at"` // RFC3339 UTC
}
