package model

// HoldState is the lifecycle of a WalletHold.
type HoldState string

const (
    HoldPending   HoldState = "PENDING"
    HoldCommitted HoldState = "COMMITTED"
    HoldReleased  HoldState = "RELEASED"
)

// Terminal reports whether no further transition is possible.
func (s HoldState) Terminal() bool {
    return s == HoldCommitted || s == HoldReleased
}

// WalletHold is a chip authorization tied to one seat of one hand.  A hold
// is adjusted while PENDING and then reaches exactly one terminal state.
//
// Fields:
//  ID        – ledger hold identifier.
//  SessionID – session the seat belongs to.
//  UserID    – wallet owner.
//  Amount    – chips currently authorized.
//  State     – PENDING, COMMITTED or RELEASED.
//  Payout    – chips credited on commit; zero otherwise.
type WalletHold struct {
    ID        string    `json:"id"`
    SessionID string    `json:"session_id"`
    UserID    string    `json:"user_id"`
    Amount    int64     `json:"amount"`
    State     HoldState `json:"state"`
    Payout    int64     `json:"payout"`
}
