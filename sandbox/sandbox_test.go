package sandbox

import (
	"context"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/procsim/procsim"
	"github.com/procsim/procsim/cfg"
	"github.com/procsim/procsim/parser"
)

func runSandbox(t *testing.T, sql string, params map[string]any) *procsim.RunResult {
	t.Helper()
	proc, err := parser.Parse(sql)
	assert.NoError(t, err)
	graph, err := cfg.Build(proc)
	assert.NoError(t, err)

	runner := New(procsim.DefaultConfig().Sandbox)
	return runner.Run(context.Background(), graph, sql, params)
}

func sandboxEvents(result *procsim.RunResult, typ procsim.EventType) []procsim.TraceEvent {
	var out []procsim.TraceEvent
	for _, ev := range result.Trace {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestSandboxInferenceAndSeeding(t *testing.T) {
	sql := "CREATE PROCEDURE dbo.GetProducts @Active BIT AS BEGIN SELECT ProductId, Name, Price FROM Products WHERE IsActive = @Active; END"
	result := runSandbox(t, sql, map[string]any{"@Active": 1})

	assert.Equal(t, procsim.ModeSQLite, result.Summary.Mode)
	assert.NotZero(t, result.SQLiteMetadata)
	assert.Equal(t, []string{"Products"}, result.SQLiteMetadata.TablesCreated)

	// 4 inferred columns seed min(5+4, 12) = 9 rows
	assert.Equal(t, 9, result.SQLiteMetadata.TotalRowsGenerated)

	preview, ok := result.SQLiteMetadata.DataPreview["Products"]
	assert.True(t, ok)
	assert.Equal(t, 9, preview.RowCount)
	assert.True(t, len(preview.SampleRows) <= procsim.TablePreviewRows)

	resultsets := sandboxEvents(result, procsim.EventResultSet)
	assert.Equal(t, 1, len(resultsets))
	assert.Equal(t, "ProductId", resultsets[0].Columns[0])
	assert.Equal(t, "Name", resultsets[0].Columns[1])
	assert.Equal(t, "Price", resultsets[0].Columns[2])
}

func TestSandboxDmlRowsAffected(t *testing.T) {
	sql := "UPDATE Products SET Price = 1.0 WHERE ProductId > 0"
	result := runSandbox(t, sql, nil)

	dmls := sandboxEvents(result, procsim.EventDml)
	assert.Equal(t, 1, len(dmls))
	assert.NotZero(t, dmls[0].RowCount)
	assert.True(t, result.Summary.TotalRowsAffected > 0)
}

func TestSandboxDangerousDmlAnnotated(t *testing.T) {
	result := runSandbox(t, "UPDATE Products SET Price = 0", nil)

	found := false
	for _, ev := range sandboxEvents(result, procsim.EventInfo) {
		if strings.Contains(ev.ErrorMessage, "no WHERE clause") {
			found = true
		}
	}
	assert.True(t, found)
	assert.False(t, result.Summary.HadError)
}

func TestSandboxErrorDoesNotAbort(t *testing.T) {
	sql := "SELECT BadSyntax FROM\n\nSELECT 1"
	result := runSandbox(t, sql, nil)

	errors := sandboxEvents(result, procsim.EventError)
	assert.True(t, len(errors) >= 1)
	assert.True(t, result.Summary.HadError)

	// the run still reaches the second statement and completes
	assert.Equal(t, procsim.EventComplete, result.Trace[len(result.Trace)-1].Type)
	assert.True(t, len(sandboxEvents(result, procsim.EventResultSet)) >= 1)
}

func TestSandboxBranchSelection(t *testing.T) {
	sql := strings.Join([]string{
		"IF @X > 0",
		"BEGIN",
		"SELECT Name FROM Products;",
		"END",
		"ELSE",
		"BEGIN",
		"SELECT Status FROM Orders;",
		"END",
	}, "\n")

	result := runSandbox(t, sql, map[string]any{"@X": 5})

	var executed, skipped []string
	for _, ev := range result.Trace {
		switch ev.Type {
		case procsim.EventStatement:
			executed = append(executed, ev.SQL)
		case procsim.EventControlFlow:
			skipped = append(skipped, ev.SQL)
		}
	}
	assert.Equal(t, 1, len(executed))
	assert.True(t, strings.Contains(executed[0], "FROM Products"))
	assert.Equal(t, 1, len(skipped))
	assert.True(t, strings.Contains(skipped[0], "FROM Orders"))
}

func TestSandboxUnknownBranchRunsEverything(t *testing.T) {
	sql := strings.Join([]string{
		"IF EXISTS (SELECT 1 FROM Config)",
		"BEGIN",
		"SELECT Name FROM Products;",
		"END",
		"ELSE",
		"BEGIN",
		"SELECT Status FROM Orders;",
		"END",
	}, "\n")

	result := runSandbox(t, sql, nil)

	statements := sandboxEvents(result, procsim.EventStatement)
	assert.True(t, len(statements) >= 2)
}

func TestSandboxEventOrdering(t *testing.T) {
	result := runSandbox(t, "SELECT 1", nil)

	assert.Equal(t, procsim.EventStart, result.Trace[0].Type)
	assert.Equal(t, procsim.EventComplete, result.Trace[len(result.Trace)-1].Type)
	for i, ev := range result.Trace {
		assert.Equal(t, i, ev.EventID)
	}
}

func TestSandboxNodeCorrelation(t *testing.T) {
	sql := "SELECT Name FROM Products WHERE ProductId = 1"
	result := runSandbox(t, sql, nil)

	resultsets := sandboxEvents(result, procsim.EventResultSet)
	assert.Equal(t, 1, len(resultsets))
	assert.NotEqual(t, "", resultsets[0].NodeID)
	assert.Equal(t, []string{resultsets[0].NodeID}, result.ExecutedNodes)
}

func TestSandboxCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc, err := parser.Parse("SELECT 1")
	assert.NoError(t, err)
	graph, err := cfg.Build(proc)
	assert.NoError(t, err)

	runner := New(procsim.DefaultConfig().Sandbox)
	result := runner.Run(ctx, graph, "SELECT 1", nil)

	assert.False(t, result.Summary.HadError)
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, procsim.EventComplete, last.Type)
	assert.True(t, strings.Contains(last.ErrorMessage, "cancelled"))
}

func TestSandboxSeedReproducible(t *testing.T) {
	sql := "SELECT Name, Price FROM Products WHERE IsActive = 1"

	first := runSandbox(t, sql, nil)
	second := runSandbox(t, sql, nil)

	a := first.SQLiteMetadata.DataPreview["Products"]
	b := second.SQLiteMetadata.DataPreview["Products"]
	assert.Equal(t, a.SampleRows, b.SampleRows)
	assert.Equal(t, a.RowCount, b.RowCount)
}
