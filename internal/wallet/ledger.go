// Package wallet authorizes chips for a hand.  The Ledger is the external
// money authority; the Authorizer keeps one WalletHold record per seat in
// Redis and drives each hold to exactly one terminal state.
//
// Ledger semantics are escrow based: Authorize and Adjust move chips from
// the balance into the hold (adjusting down refunds the difference),
// Settle closes the hold and credits the payout, Cancel closes the hold
// and leaves the escrowed chips in the pot.
package wallet

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds is returned when the balance cannot cover an
	// authorization.  Nothing is reserved in that case.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	// ErrUnknownHold is returned for a hold id the ledger never issued.
	ErrUnknownHold = errors.New("wallet: unknown hold")
	// ErrHoldClosed is returned when adjusting a hold that already reached
	// a terminal state.
	ErrHoldClosed = errors.New("wallet: hold closed")
	// ErrHoldExists is returned when a non-released hold already exists
	// for the same session and user.
	ErrHoldExists = errors.New("wallet: hold already open for seat")
	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("wallet: invalid amount")
)

// Ledger is the wallet ledger this layer authorizes against.
type Ledger interface {
	// Balance returns the chips available to userID, creating the wallet
	// with the starting balance on first use.
	Balance(ctx context.Context, userID string) (int64, error)
	Authorize(ctx context.Context, userID string, amount int64) (holdID string, err error)
	Adjust(ctx context.Context, holdID string, amount int64) error
	// Settle and Cancel are idempotent: closing a closed hold is a no-op.
	Settle(ctx context.Context, holdID string, payout int64) error
	Cancel(ctx context.Context, holdID string) error
}
