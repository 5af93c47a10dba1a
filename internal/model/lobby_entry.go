package model

import "time"

// LobbyEntry records a user waiting for a session to start.  Entries
// expire once JoinedAt+TTL has elapsed and are removed in the same atomic
// step that moves the session out of WAITING.
//
// Fields:
//  SessionID   – prospective session.
//  UserID      – candidate participant.
//  DisplayName – name shown for the user, frozen at join time.
//  JoinedAt    – join timestamp; also defines seat order.
//  TTL         – inactivity window after which the entry is stale.
type LobbyEntry struct {
    SessionID   string        `json:"session_id"`
    UserID      string        `json:"user_id"`
    DisplayName string        `json:"display_name"`
    JoinedAt    time.Time     `json:"joined_at"`
    TTL         time.Duration `json:"ttl"`
}

// ExpiresAt is the instant after which the entry no longer counts.
func (e LobbyEntry) ExpiresAt() time.Time { return e.JoinedAt.Add(e.TTL) }
