package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/poker-table-coordinator/internal/config"
)

func TestDSN(t *testing.T) {
	got := DSN(config.LedgerConfig{User: "poker", Pass: "s3cret", Host: "db", Port: "3306", Name: "wallets"})
	assert.Equal(t, "poker:s3cret@tcp(db:3306)/wallets?charset=utf8mb4&parseTime=true&loc=UTC&multiStatements=true", got)

	got = DSN(config.LedgerConfig{User: "root", Host: "localhost", Port: "3307", Name: "w"})
	assert.Contains(t, got, "root@tcp(localhost:3307)/w?")
}
