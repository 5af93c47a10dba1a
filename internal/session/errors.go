package session

import (
	"errors"

	"github.com/iliyamo/poker-table-coordinator/internal/engine"
	"github.com/iliyamo/poker-table-coordinator/internal/guard"
	"github.com/iliyamo/poker-table-coordinator/internal/model"
	"github.com/iliyamo/poker-table-coordinator/internal/wallet"
)

var (
	ErrNotFound         = errors.New("session: not found")
	ErrSessionExists    = errors.New("session: already exists")
	ErrIllegalAction    = errors.New("session: illegal action")
	ErrSessionFinished  = errors.New("session: hand finished")
	ErrNotSeated        = errors.New("session: user not seated")
	ErrNotEnoughPlayers = errors.New("session: not enough players")
	// ErrSessionFrozen is returned while a session awaits reconciliation
	// after a consistency fault.
	ErrSessionFrozen = errors.New("session: frozen pending recovery")
	// ErrConsistencyFault means the revision moved while the guard was
	// held.  It is a lease or guard bug, never a normal retry path.
	ErrConsistencyFault = errors.New("session: consistency fault")
	// ErrInvalidEngineState means the engine returned a state the
	// projection refused, e.g. one that creates chips.
	ErrInvalidEngineState = errors.New("session: engine returned an invalid state")
	ErrStoreUnavailable   = errors.New("session: store unavailable")
	ErrEngineUnavailable  = errors.New("session: engine unavailable")
)

// Kind groups errors by what the caller should do about them.
type Kind int

const (
	KindNone Kind = iota
	// KindRetryable: nothing changed, retry after a short backoff.
	KindRetryable
	// KindRejected: the move is invalid for the current state.
	KindRejected
	KindNotFound
	// KindFatal: the session needs reconciliation.
	KindFatal
	// KindInfra: a dependency failed; nothing was persisted.
	KindInfra
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRetryable:
		return "retryable"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	}
	return "infra"
}

// Classify maps any coordinator error onto a Kind.  Unknown errors are
// treated as infrastructure failures.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, guard.ErrTimeout), errors.Is(err, guard.ErrLeaseLost):
		return KindRetryable
	case errors.Is(err, ErrConsistencyFault), errors.Is(err, ErrSessionFrozen), errors.Is(err, ErrInvalidEngineState):
		return KindFatal
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return KindInfra
	case errors.Is(err, ErrIllegalAction),
		errors.Is(err, ErrSessionFinished),
		errors.Is(err, ErrNotSeated),
		errors.Is(err, ErrNotEnoughPlayers),
		errors.Is(err, ErrSessionExists),
		errors.Is(err, model.ErrInvalidStake),
		errors.Is(err, engine.ErrRulesViolation),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, wallet.ErrHoldExists):
		return KindRejected
	}
	return KindInfra
}
