package wallet

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLedger(t *testing.T) (*SQLLedger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLLedger(db, 1000), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestSQLLedgerAuthorize(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT IGNORE INTO wallets")).WithArgs("u1", int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT balance FROM wallets WHERE user_id = ? FOR UPDATE")).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(500))
	mock.ExpectExec(q("UPDATE wallets SET balance = balance - ?")).WithArgs(int64(100), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO wallet_holds")).WithArgs(sqlmock.AnyArg(), "u1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := l.Authorize(context.Background(), "u1", 100)
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerAuthorizeInsufficient(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT IGNORE INTO wallets")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT balance FROM wallets")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(50))
	mock.ExpectRollback()

	_, err := l.Authorize(context.Background(), "u1", 100)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerAdjustRaise(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT user_id, amount, status FROM wallet_holds WHERE id = ? FOR UPDATE")).WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "status"}).AddRow("u1", 20, "OPEN"))
	mock.ExpectExec(q("INSERT IGNORE INTO wallets")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT balance FROM wallets")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(80))
	mock.ExpectRollback()

	err := l.Adjust(context.Background(), "h1", 120)
	assert.ErrorIs(t, err, ErrInsufficientFunds, "raise by 100 against 80 available")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerSettleIsIdempotent(t *testing.T) {
	l, mock := newMockLedger(t)
	cols := []string{"user_id", "amount", "status"}

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT user_id, amount, status FROM wallet_holds")).WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", 50, "OPEN"))
	mock.ExpectExec(q("UPDATE wallets SET balance = balance + ?")).WithArgs(int64(100), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE wallet_holds SET status = 'SETTLED'")).WithArgs(int64(100), "h1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT user_id, amount, status FROM wallet_holds")).WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", 50, "SETTLED"))
	mock.ExpectCommit()

	require.NoError(t, l.Settle(context.Background(), "h1", 100))
	require.NoError(t, l.Settle(context.Background(), "h1", 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerUnknownHold(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT user_id, amount, status FROM wallet_holds")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "status"}))
	mock.ExpectRollback()

	assert.ErrorIs(t, l.Cancel(context.Background(), "missing"), ErrUnknownHold)
	assert.NoError(t, mock.ExpectationsWereMet())
}
