package session

import (
	"context"
	"fmt"

	"github.com/iliyamo/poker-table-coordinator/internal/lobby"
	"github.com/iliyamo/poker-table-coordinator/internal/model"
	"github.com/iliyamo/poker-table-coordinator/internal/wallet"
)

// Join puts userID in the lobby of a WAITING session under displayName.
// The name is kept for the whole hand.
func (c *Coordinator) Join(ctx context.Context, sessionID, userID, displayName string) (lobby.JoinResult, error) {
	v, err := c.load(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if v.Status != model.StatusWaiting {
		return lobby.JoinClosed, nil
	}
	bal, err := c.wallet.Ledger().Balance(ctx, userID)
	if err != nil {
		return 0, infra(err)
	}
	if !c.eligible(v, bal) {
		return 0, fmt.Errorf("%w: balance %d below buy-in %d", wallet.ErrInsufficientFunds, bal, c.minBuyIn(v))
	}
	if displayName == "" {
		displayName = userID
	}
	r, err := c.lobby.Join(ctx, sessionID, userID, displayName)
	if err != nil {
		return 0, infra(err)
	}
	return r, nil
}

// LeaveLobby removes userID from the lobby without touching a hand.
func (c *Coordinator) LeaveLobby(ctx context.Context, sessionID, userID string) (lobby.LeaveResult, error) {
	r, err := c.lobby.Leave(ctx, sessionID, userID)
	if err != nil {
		return 0, infra(err)
	}
	return r, nil
}

// Members prunes stale entries and returns the lobby in join order.
func (c *Coordinator) Members(ctx context.Context, sessionID string) ([]model.LobbyEntry, error) {
	if _, err := c.lobby.ExpireStale(ctx, sessionID); err != nil {
		return nil, infra(err)
	}
	entries, err := c.lobby.Entries(ctx, sessionID)
	if err != nil {
		return nil, infra(err)
	}
	return entries, nil
}
