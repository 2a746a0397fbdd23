package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/procsim/procsim"
	"github.com/procsim/procsim/cfg"
	"github.com/procsim/procsim/dryrun"
)

// Runner executes the adapted statement stream of one procedure against
// an in-memory SQLite database with an inferred, seeded schema.
type Runner struct {
	cfg procsim.SandboxConfig
}

// New creates a sandbox runner.
func New(config procsim.SandboxConfig) *Runner {
	if config.Seed == 0 {
		config.Seed = DefaultSeed
	}
	if config.PreviewRowLimit <= 0 {
		config.PreviewRowLimit = procsim.PreviewRowLimit
	}
	return &Runner{cfg: config}
}

// Run never returns an error to the caller; per-statement engine
// failures become error trace events and the next statement still runs.
func (r *Runner) Run(ctx context.Context, graph *cfg.Graph, procedureText string, params map[string]any) *procsim.RunResult {
	started := time.Now()
	rec := procsim.NewRecorder()
	rec.Append(procsim.TraceEvent{Type: procsim.EventStart})

	result := &procsim.RunResult{
		RunID:   procsim.NewRunID(),
		Summary: procsim.RunSummary{Mode: procsim.ModeSQLite},
	}

	body := ExtractBody(procedureText)
	statements := SplitStatements(body)
	selection := selectBranch(body, params)

	if ctx.Err() != nil {
		return r.cancelled(result, rec, started)
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err == nil {
		err = db.PingContext(ctx)
	}
	if err != nil {
		rec.Append(procsim.TraceEvent{
			Type:         procsim.EventError,
			ErrorMessage: fmt.Sprintf("sandbox engine unavailable: %v", err),
		})
		return r.finish(result, rec, started, true, "sandbox engine unavailable")
	}
	defer db.Close()

	adapted := make([]string, len(statements))
	for i, stmt := range statements {
		adapted[i] = BindParams(Adapt(stmt), params)
	}

	meta := r.prepareSchema(ctx, db, adapted, rec)
	result.SQLiteMetadata = meta

	var hadError bool
	for i, stmt := range statements {
		if ctx.Err() != nil {
			return r.cancelled(result, rec, started)
		}

		nodeID := Correlate(graph, stmt)
		if !selection.onBranch(stmt) {
			rec.Append(procsim.TraceEvent{
				NodeID:       nodeID,
				Type:         procsim.EventControlFlow,
				SQL:          stmt,
				ErrorMessage: fmt.Sprintf("skipped: %s branch not taken", selection.armOf(stmt)),
			})
			continue
		}

		if nodeID != "" {
			rec.MarkNode(nodeID)
		}
		rec.Append(procsim.TraceEvent{NodeID: nodeID, Type: procsim.EventStatement, SQL: stmt})
		result.Summary.TotalStatements++

		if IsDangerousStatement(stmt) {
			rec.Append(procsim.TraceEvent{
				NodeID:       nodeID,
				Type:         procsim.EventInfo,
				SQL:          stmt,
				ErrorMessage: "statement has no WHERE clause and affects every row",
			})
		}

		stmtStart := time.Now()
		if isQuery(adapted[i]) {
			rows, qerr := r.runQuery(ctx, db, adapted[i])
			if qerr != nil {
				hadError = true
				rec.Append(procsim.TraceEvent{
					NodeID:       nodeID,
					Type:         procsim.EventError,
					SQL:          adapted[i],
					ErrorMessage: qerr.Error(),
					DurationMs:   time.Since(stmtStart).Milliseconds(),
				})
				continue
			}
			count := int64(len(rows.values))
			rec.Append(procsim.TraceEvent{
				NodeID:     nodeID,
				Type:       procsim.EventResultSet,
				SQL:        adapted[i],
				Columns:    rows.columns,
				Rows:       rows.values,
				RowCount:   &count,
				DurationMs: time.Since(stmtStart).Milliseconds(),
			})
			continue
		}

		res, xerr := db.ExecContext(ctx, adapted[i])
		if xerr != nil {
			hadError = true
			rec.Append(procsim.TraceEvent{
				NodeID:       nodeID,
				Type:         procsim.EventError,
				SQL:          adapted[i],
				ErrorMessage: xerr.Error(),
				DurationMs:   time.Since(stmtStart).Milliseconds(),
			})
			continue
		}
		affected, _ := res.RowsAffected()
		result.Summary.TotalRowsAffected += affected
		rec.Append(procsim.TraceEvent{
			NodeID:     nodeID,
			Type:       procsim.EventDml,
			SQL:        adapted[i],
			RowCount:   &affected,
			DurationMs: time.Since(stmtStart).Milliseconds(),
		})
	}

	if meta != nil {
		r.collectPreviews(ctx, db, meta)
	}

	return r.finish(result, rec, started, hadError, "")
}

// cancelled closes out a run that was interrupted by the caller. The
// partial trace is returned with hadError left false.
func (r *Runner) cancelled(result *procsim.RunResult, rec *procsim.Recorder, started time.Time) *procsim.RunResult {
	rec.Append(procsim.TraceEvent{
		Type:         procsim.EventComplete,
		ErrorMessage: "cancelled before completion",
	})
	result.Summary.TotalDurationMs = time.Since(started).Milliseconds()
	result.Trace = rec.Events()
	result.ExecutedNodes = rec.ExecutedNodes()
	result.ExecutedEdges = rec.ExecutedEdges()
	return result
}

func (r *Runner) finish(result *procsim.RunResult, rec *procsim.Recorder, started time.Time, hadError bool, errMsg string) *procsim.RunResult {
	result.Summary.HadError = hadError
	result.Summary.ErrorMessage = errMsg
	result.Summary.TotalDurationMs = time.Since(started).Milliseconds()
	rec.Append(procsim.TraceEvent{Type: procsim.EventComplete})
	result.Trace = rec.Events()
	result.ExecutedNodes = rec.ExecutedNodes()
	result.ExecutedEdges = rec.ExecutedEdges()
	return result
}

// prepareSchema infers, creates, and seeds every referenced table.
func (r *Runner) prepareSchema(ctx context.Context, db *sql.DB, adapted []string, rec *procsim.Recorder) *procsim.SQLiteMetadata {
	schemas := InferSchema(adapted)
	if len(schemas) == 0 {
		return nil
	}

	meta := &procsim.SQLiteMetadata{DataPreview: map[string]procsim.TablePreview{}}
	seeder := NewSeeder(r.cfg.Seed, r.cfg.MaxSeedRows)

	for _, schema := range schemas {
		if _, err := db.ExecContext(ctx, CreateTableSQL(schema)); err != nil {
			rec.Append(procsim.TraceEvent{
				Type:         procsim.EventError,
				SQL:          CreateTableSQL(schema),
				ErrorMessage: err.Error(),
			})
			continue
		}
		meta.TablesCreated = append(meta.TablesCreated, schema.Name)

		seeded, err := seeder.SeedTable(ctx, db, schema)
		if err != nil {
			rec.Append(procsim.TraceEvent{
				Type:         procsim.EventError,
				ErrorMessage: fmt.Sprintf("seeding %s: %v", schema.Name, err),
			})
			continue
		}
		meta.TotalRowsGenerated += seeded
	}

	if len(meta.TablesCreated) > 0 {
		rec.Append(procsim.TraceEvent{
			Type: procsim.EventInfo,
			ErrorMessage: fmt.Sprintf("created and seeded %d table(s): %s",
				len(meta.TablesCreated), strings.Join(meta.TablesCreated, ", ")),
		})
	}
	return meta
}

// collectPreviews captures the first rows and total count of each table
// the sandbox created, after all statements ran.
func (r *Runner) collectPreviews(ctx context.Context, db *sql.DB, meta *procsim.SQLiteMetadata) {
	for _, table := range meta.TablesCreated {
		preview := procsim.TablePreview{}

		rows, err := r.queryRows(ctx, db, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, procsim.TablePreviewRows))
		if err == nil {
			preview.Columns = rows.columns
			preview.SampleRows = rows.values
		}

		var count int
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err == nil {
			preview.RowCount = count
		}
		meta.DataPreview[table] = preview
	}
}

type rowSet struct {
	columns []string
	values  [][]any
}

func (r *Runner) runQuery(ctx context.Context, db *sql.DB, query string) (*rowSet, error) {
	return r.queryRowsCapped(ctx, db, query, r.cfg.PreviewRowLimit)
}

func (r *Runner) queryRows(ctx context.Context, db *sql.DB, query string) (*rowSet, error) {
	return r.queryRowsCapped(ctx, db, query, procsim.TablePreviewRows)
}

func (r *Runner) queryRowsCapped(ctx context.Context, db *sql.DB, query string, limit int) (*rowSet, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &rowSet{columns: columns}
	for rows.Next() && len(out.values) < limit {
		cells := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, cell := range cells {
			if b, ok := cell.([]byte); ok {
				cells[i] = string(b)
			}
		}
		out.values = append(out.values, cells)
	}
	return out, rows.Err()
}

func isQuery(adapted string) bool {
	upper := strings.ToUpper(strings.TrimSpace(adapted))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// Correlate finds the graph node whose SQL snippet shares a normalised
// 30-character prefix with the statement. Best effort only; an empty
// result means no confident match.
func Correlate(graph *cfg.Graph, statement string) string {
	if graph == nil {
		return ""
	}
	prefix := NormalizePrefix(statement)
	if prefix == "" {
		return ""
	}
	for _, node := range graph.Nodes {
		if node.SqlSnippet == "" {
			continue
		}
		if NormalizePrefix(node.SqlSnippet) == prefix {
			return node.ID
		}
	}
	return ""
}

// branchSelection is the single taken-branch decision for one run.
type branchSelection struct {
	chosen string // "if", "else_if", "else", "unknown", or "" when no branching
	arms   map[string]string
}

type scannedCond struct {
	label string
	text  string
}

// selectBranch scans the body line by line, labelling each DML opener
// with the IF/ELSE arm it sits in, then picks the taken arm by running
// the predicate evaluator over each condition in order. The first true
// condition wins; a bare ELSE wins when every condition was false; when no
// condition is true, any undecided condition makes the selection unknown.
func selectBranch(body string, params map[string]any) *branchSelection {
	sel := &branchSelection{arms: map[string]string{}}
	var conds []scannedCond

	arm := ""
	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimSpace(rawLine)
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "ELSE IF "):
			arm = "else_if"
			conds = append(conds, scannedCond{label: arm, text: condText(line[len("ELSE IF "):])})
		case upper == "ELSE" || strings.HasPrefix(upper, "ELSE "):
			arm = "else"
		case strings.HasPrefix(upper, "IF "):
			arm = "if"
			conds = append(conds, scannedCond{label: arm, text: condText(line[len("IF "):])})
		case upper == "END" || strings.HasPrefix(upper, "END ") || strings.HasPrefix(upper, "END;"):
			arm = ""
		}

		if startsWithAny(line, dmlOpeners) {
			sel.arms[NormalizePrefix(line)] = arm
		}
	}

	if len(conds) == 0 {
		return sel
	}

	sawUnknown := false
	for _, cond := range conds {
		switch dryrun.Evaluate(cond.text, params) {
		case dryrun.True:
			sel.chosen = cond.label
			return sel
		case dryrun.Unknown:
			sawUnknown = true
		}
	}
	if sawUnknown {
		sel.chosen = "unknown"
	} else {
		sel.chosen = "else"
	}
	return sel
}

// condText trims an inline BEGIN or trailing statement off a condition
// line so only the predicate remains.
func condText(rest string) string {
	upper := strings.ToUpper(rest)
	cut := len(rest)
	for _, kw := range append([]string{"BEGIN"}, dmlOpeners...) {
		i := strings.Index(upper, " "+kw)
		if i < 0 || i >= cut {
			continue
		}
		after := i + 1 + len(kw)
		if after == len(upper) || strings.ContainsRune(" (;", rune(upper[after])) {
			cut = i
		}
	}
	return strings.TrimSpace(rest[:cut])
}

// armOf returns the arm label recorded for a statement during the scan.
func (s *branchSelection) armOf(statement string) string {
	firstLine := statement
	if i := strings.IndexByte(statement, '\n'); i >= 0 {
		firstLine = statement[:i]
	}
	return s.arms[NormalizePrefix(firstLine)]
}

// onBranch reports whether a statement should execute under the chosen
// arm. Statements outside any IF always run; when the selection is
// unknown everything runs.
func (s *branchSelection) onBranch(statement string) bool {
	if s.chosen == "" || s.chosen == "unknown" {
		return true
	}
	arm := s.armOf(statement)
	return arm == "" || arm == s.chosen
}
