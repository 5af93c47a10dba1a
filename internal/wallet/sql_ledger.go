package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Schema creates the ledger tables.  Balances and hold amounts are whole
// chips.
const Schema = `
CREATE TABLE IF NOT EXISTS wallets (
    user_id    VARCHAR(64) NOT NULL PRIMARY KEY,
    balance    BIGINT      NOT NULL,
    updated_at TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS wallet_holds (
    id         CHAR(36)    NOT NULL PRIMARY KEY,
    user_id    VARCHAR(64) NOT NULL,
    amount     BIGINT      NOT NULL,
    status     ENUM('OPEN','SETTLED','CANCELLED') NOT NULL DEFAULT 'OPEN',
    payout     BIGINT      NOT NULL DEFAULT 0,
    created_at TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_wallet_holds_user (user_id)
);`

// SQLLedger is a Ledger stored in MySQL.  Every operation runs in one
// transaction and locks the rows it reads with SELECT ... FOR UPDATE, so
// two authorizations against the same wallet are serialized by the
// database.
type SQLLedger struct {
	db      *sql.DB
	initial int64
}

// NewSQLLedger returns a ledger bound to db that opens wallets with
// initial chips.
func NewSQLLedger(db *sql.DB, initial int64) *SQLLedger {
	return &SQLLedger{db: db, initial: initial}
}

// EnsureSchema creates the ledger tables when they are missing.  The DSN
// must allow multiple statements.
func (l *SQLLedger) EnsureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, Schema)
	return err
}

// withTx runs fn inside a transaction that is rolled back unless fn
// succeeds and the commit goes through.
func (l *SQLLedger) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	committed = true
	return nil
}

func (l *SQLLedger) lockBalance(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO wallets (user_id, balance) VALUES (?, ?)`, userID, l.initial); err != nil {
		return 0, err
	}
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ? FOR UPDATE`, userID).Scan(&balance)
	return balance, err
}

type holdRow struct {
	userID string
	amount int64
	status string
}

func lockHold(ctx context.Context, tx *sql.Tx, holdID string) (holdRow, error) {
	var h holdRow
	err := tx.QueryRowContext(ctx, `SELECT user_id, amount, status FROM wallet_holds WHERE id = ? FOR UPDATE`, holdID).
		Scan(&h.userID, &h.amount, &h.status)
	if errors.Is(err, sql.ErrNoRows) {
		return h, ErrUnknownHold
	}
	return h, err
}

// Balance implements Ledger.
func (l *SQLLedger) Balance(ctx context.Context, userID string) (int64, error) {
	if _, err := l.db.ExecContext(ctx, `INSERT IGNORE INTO wallets (user_id, balance) VALUES (?, ?)`, userID, l.initial); err != nil {
		return 0, fmt.Errorf("ledger: open wallet: %w", err)
	}
	var balance int64
	if err := l.db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("ledger: balance: %w", err)
	}
	return balance, nil
}

// Authorize implements Ledger.
func (l *SQLLedger) Authorize(ctx context.Context, userID string, amount int64) (string, error) {
	if amount < 0 {
		return "", ErrInvalidAmount
	}
	id := uuid.NewString()
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		balance, err := l.lockBalance(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("ledger: lock wallet: %w", err)
		}
		if balance < amount {
			return ErrInsufficientFunds
		}
		if _, err := tx.ExecContext(ctx, `UPDATE wallets SET balance = balance - ? WHERE user_id = ?`, amount, userID); err != nil {
			return fmt.Errorf("ledger: debit: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO wallet_holds (id, user_id, amount) VALUES (?, ?, ?)`, id, userID, amount); err != nil {
			return fmt.Errorf("ledger: insert hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Adjust implements Ledger.
func (l *SQLLedger) Adjust(ctx context.Context, holdID string, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		h, err := lockHold(ctx, tx, holdID)
		if err != nil {
			return err
		}
		if h.status != "OPEN" {
			return ErrHoldClosed
		}
		delta := amount - h.amount
		if delta == 0 {
			return nil
		}
		balance, err := l.lockBalance(ctx, tx, h.userID)
		if err != nil {
			return fmt.Errorf("ledger: lock wallet: %w", err)
		}
		if delta > balance {
			return ErrInsufficientFunds
		}
		if _, err := tx.ExecContext(ctx, `UPDATE wallets SET balance = balance - ? WHERE user_id = ?`, delta, h.userID); err != nil {
			return fmt.Errorf("ledger: move escrow: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE wallet_holds SET amount = ? WHERE id = ?`, amount, holdID); err != nil {
			return fmt.Errorf("ledger: update hold: %w", err)
		}
		return nil
	})
}

// Settle implements Ledger.
func (l *SQLLedger) Settle(ctx context.Context, holdID string, payout int64) error {
	if payout < 0 {
		return ErrInvalidAmount
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		h, err := lockHold(ctx, tx, holdID)
		if err != nil {
			return err
		}
		if h.status != "OPEN" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE wallets SET balance = balance + ? WHERE user_id = ?`, payout, h.userID); err != nil {
			return fmt.Errorf("ledger: credit: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE wallet_holds SET status = 'SETTLED', payout = ? WHERE id = ?`, payout, holdID); err != nil {
			return fmt.Errorf("ledger: close hold: %w", err)
		}
		return nil
	})
}

// Cancel implements Ledger.
func (l *SQLLedger) Cancel(ctx context.Context, holdID string) error {
	return l.withTx(ctx, func(tx *sql.Tx) error {
		h, err := lockHold(ctx, tx, holdID)
		if err != nil {
			return err
		}
		if h.status != "OPEN" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE wallet_holds SET status = 'CANCELLED' WHERE id = ?`, holdID); err != nil {
			return fmt.Errorf("ledger: close hold: %w", err)
		}
		return nil
	})
}
