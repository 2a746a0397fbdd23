package liverun

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/procsim/procsim"
)

func TestNewAppliesDefaults(t *testing.T) {
	e := New(procsim.LiveConfig{})
	assert.Equal(t, procsim.LiveStatementTimeout, e.cfg.StatementTimeout)
	assert.Equal(t, 4, len(e.cfg.ForbiddenDatabases))
}

func TestRejectSystemDatabaseTarget(t *testing.T) {
	e := New(procsim.LiveConfig{})

	_, err := e.Run(context.Background(), nil, "SELECT 1", nil, procsim.Database{
		Driver:     "sqlserver",
		Connection: "sqlserver://sa@localhost",
		Database:   "master",
	})
	assert.IsError(t, err, procsim.ErrSystemDatabase)
}

func TestRejectSystemDatabaseReference(t *testing.T) {
	e := New(procsim.LiveConfig{})

	for _, text := range []string{
		"USE msdb\nSELECT 1",
		"SELECT * FROM master.dbo.sysdatabases",
		"SELECT * FROM tempdb..sysobjects",
	} {
		_, err := e.Run(context.Background(), nil, text, nil, procsim.Database{
			Driver:     "sqlserver",
			Connection: "sqlserver://sa@localhost",
			Database:   "AppDb",
		})
		assert.IsError(t, err, procsim.ErrSystemDatabase)
	}
}

func TestCaseInsensitiveSystemDatabaseCheck(t *testing.T) {
	e := New(procsim.LiveConfig{})

	_, err := e.Run(context.Background(), nil, "SELECT 1", nil, procsim.Database{
		Driver:     "sqlserver",
		Connection: "sqlserver://sa@localhost",
		Database:   "MASTER",
	})
	assert.IsError(t, err, procsim.ErrSystemDatabase)
}

func TestUnreachableEngine(t *testing.T) {
	e := New(procsim.LiveConfig{StatementTimeout: 500 * time.Millisecond})

	_, err := e.Run(context.Background(), nil, "SELECT 1", nil, procsim.Database{
		Driver:     "sqlserver",
		Connection: "sqlserver://localhost:1?dial+timeout=1",
		Database:   "AppDb",
	})
	assert.IsError(t, err, procsim.ErrEngineUnreachable)
}

func TestIsQuery(t *testing.T) {
	assert.True(t, isQuery("SELECT 1"))
	assert.True(t, isQuery("  with x as (select 1) select * from x"))
	assert.False(t, isQuery("UPDATE T SET A = 1"))
	assert.False(t, isQuery("INSERT INTO T VALUES (1)"))
}

func TestSqlErrorNumberFallback(t *testing.T) {
	assert.Equal(t, 0, sqlErrorNumber(context.DeadlineExceeded))
}
