package liverun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/procsim/procsim"
	"github.com/procsim/procsim/cfg"
	"github.com/procsim/procsim/sandbox"
)

// Executor runs a procedure's statement stream against a real SQL Server
// inside one transaction that is rolled back on every exit path. Nothing
// a live run does is ever committed.
type Executor struct {
	cfg procsim.LiveConfig
}

// New creates a live executor.
func New(config procsim.LiveConfig) *Executor {
	if config.StatementTimeout <= 0 {
		config.StatementTimeout = procsim.LiveStatementTimeout
	}
	if len(config.ForbiddenDatabases) == 0 {
		config.ForbiddenDatabases = []string{"master", "msdb", "model", "tempdb"}
	}
	return &Executor{cfg: config}
}

// Run executes against the given database. It errors only on rejected
// input or an unreachable engine; per-statement failures terminate the
// run with an error trace event and a rolled-back transaction.
func (e *Executor) Run(ctx context.Context, graph *cfg.Graph, procedureText string, params map[string]any, target procsim.Database) (*procsim.RunResult, error) {
	if err := e.checkDatabases(procedureText, target); err != nil {
		return nil, err
	}

	driver := target.Driver
	if driver == "" {
		driver = "sqlserver"
	}
	db, err := sql.Open(driver, target.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", procsim.ErrEngineUnreachable, err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, e.cfg.StatementTimeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", procsim.ErrEngineUnreachable, err)
	}

	started := time.Now()
	rec := procsim.NewRecorder()
	rec.Append(procsim.TraceEvent{Type: procsim.EventStart})

	result := &procsim.RunResult{
		RunID:   procsim.NewRunID(),
		Summary: procsim.RunSummary{Mode: procsim.ModeLive},
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", procsim.ErrEngineUnreachable, err)
	}
	// Rollback is the only way out. The deferred call covers panics and
	// early returns; the explicit one below records the txn event.
	rolledBack := false
	defer func() {
		if !rolledBack {
			_ = tx.Rollback()
		}
	}()

	rec.Append(procsim.TraceEvent{Type: procsim.EventTxn, SQL: "BEGIN TRANSACTION"})

	body := sandbox.ExtractBody(procedureText)
	statements := sandbox.SplitStatements(body)

	cancelled := false
	for _, stmt := range statements {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		nodeID := sandbox.Correlate(graph, stmt)
		if nodeID != "" {
			rec.MarkNode(nodeID)
		}
		bound := sandbox.BindParams(stmt, params)
		rec.Append(procsim.TraceEvent{NodeID: nodeID, Type: procsim.EventStatement, SQL: stmt})
		result.Summary.TotalStatements++

		if sandbox.IsDangerousStatement(stmt) {
			rec.Append(procsim.TraceEvent{
				NodeID:       nodeID,
				Type:         procsim.EventInfo,
				SQL:          stmt,
				ErrorMessage: "statement has no WHERE clause and affects every row",
			})
		}

		stmtStart := time.Now()
		stmtCtx, cancelStmt := context.WithTimeout(ctx, e.cfg.StatementTimeout)
		execErr := e.runStatement(stmtCtx, tx, bound, nodeID, rec, result)
		cancelStmt()

		if execErr != nil {
			result.Summary.HadError = true
			result.Summary.ErrorMessage = execErr.Error()
			rec.Append(procsim.TraceEvent{
				NodeID:       nodeID,
				Type:         procsim.EventError,
				SQL:          bound,
				ErrorNumber:  sqlErrorNumber(execErr),
				ErrorMessage: execErr.Error(),
				DurationMs:   time.Since(stmtStart).Milliseconds(),
			})
			break
		}
	}

	_ = tx.Rollback()
	rolledBack = true
	rec.Append(procsim.TraceEvent{Type: procsim.EventTxn, SQL: "ROLLBACK TRANSACTION"})

	complete := procsim.TraceEvent{Type: procsim.EventComplete}
	if cancelled {
		complete.ErrorMessage = "cancelled before completion"
	}
	rec.Append(complete)

	result.Summary.TotalDurationMs = time.Since(started).Milliseconds()
	result.Trace = rec.Events()
	result.ExecutedNodes = rec.ExecutedNodes()
	result.ExecutedEdges = rec.ExecutedEdges()
	return result, nil
}

func (e *Executor) runStatement(ctx context.Context, tx *sql.Tx, bound, nodeID string, rec *procsim.Recorder, result *procsim.RunResult) error {
	start := time.Now()

	if isQuery(bound) {
		rows, err := tx.QueryContext(ctx, bound)
		if err != nil {
			return err
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return err
		}

		var preview [][]any
		var total int64
		for rows.Next() {
			total++
			if len(preview) >= procsim.PreviewRowLimit {
				continue
			}
			cells := make([]any, len(columns))
			ptrs := make([]any, len(columns))
			for i := range cells {
				ptrs[i] = &cells[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			for i, cell := range cells {
				if b, ok := cell.([]byte); ok {
					cells[i] = string(b)
				}
			}
			preview = append(preview, cells)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		rec.Append(procsim.TraceEvent{
			NodeID:     nodeID,
			Type:       procsim.EventResultSet,
			SQL:        bound,
			Columns:    columns,
			Rows:       preview,
			RowCount:   &total,
			DurationMs: time.Since(start).Milliseconds(),
		})
		return nil
	}

	res, err := tx.ExecContext(ctx, bound)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	result.Summary.TotalRowsAffected += affected
	rec.Append(procsim.TraceEvent{
		NodeID:     nodeID,
		Type:       procsim.EventDml,
		SQL:        bound,
		RowCount:   &affected,
		DurationMs: time.Since(start).Milliseconds(),
	})
	return nil
}

var useDbRe = regexp.MustCompile(`(?i)\bUSE\s+\[?(\w+)\]?`)

// checkDatabases rejects a run whose target or procedure text touches a
// forbidden system database.
func (e *Executor) checkDatabases(procedureText string, target procsim.Database) error {
	forbidden := func(name string) bool {
		for _, f := range e.cfg.ForbiddenDatabases {
			if strings.EqualFold(f, name) {
				return true
			}
		}
		return false
	}

	if forbidden(target.Database) {
		return fmt.Errorf("%w: %w: %s", procsim.ErrBadInput, procsim.ErrSystemDatabase, target.Database)
	}

	for _, m := range useDbRe.FindAllStringSubmatch(procedureText, -1) {
		if forbidden(m[1]) {
			return fmt.Errorf("%w: %w: %s", procsim.ErrBadInput, procsim.ErrSystemDatabase, m[1])
		}
	}
	for _, f := range e.cfg.ForbiddenDatabases {
		ref := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(f) + `\.\.?`)
		if ref.MatchString(procedureText) {
			return fmt.Errorf("%w: %w: %s", procsim.ErrBadInput, procsim.ErrSystemDatabase, f)
		}
	}
	return nil
}

func isQuery(statement string) bool {
	upper := strings.ToUpper(strings.TrimSpace(statement))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// sqlErrorNumber extracts the server error number when the driver
// provides one.
func sqlErrorNumber(err error) int {
	var serverErr mssql.Error
	if errors.As(err, &serverErr) {
		return int(serverErr.Number)
	}
	return 0
}
