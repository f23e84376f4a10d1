package database

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNReportsMatchedRows(t *testing.T) {
	cfg, err := mysql.ParseDSN(DSN("app", "secret", "db", "3306", "marketplace"))
	require.NoError(t, err)
	assert.True(t, cfg.ClientFoundRows)
	assert.True(t, cfg.ParseTime)
	assert.True(t, cfg.MultiStatements)
	assert.Equal(t, "db:3306", cfg.Addr)
	assert.Equal(t, "marketplace", cfg.DBName)
}

func TestDSNWithoutPassword(t *testing.T) {
	cfg, err := mysql.ParseDSN(DSN("root", "", "localhost", "3306", "marketplace"))
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.User)
	assert.Empty(t, cfg.Passwd)
}
