package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/procsim/procsim"
)

// printResult renders a run's trace to the terminal. JSON output goes
// through resultJSON instead; this view is for humans.
func printResult(result *procsim.RunResult, ctx *Context) {
	if ctx.Quiet {
		return
	}

	color.Blue("Run %s (%s)", result.RunID, result.Summary.Mode)

	for _, ev := range result.Trace {
		printEvent(ev, ctx.Verbose)
	}

	if result.SQLiteMetadata != nil {
		printSandboxMetadata(result.SQLiteMetadata)
	}

	fmt.Println()
	if result.Summary.HadError {
		color.Red("Completed with error: %s", result.Summary.ErrorMessage)
	} else {
		color.Green("Completed without errors")
	}
	fmt.Printf("  Statements: %d\n", result.Summary.TotalStatements)
	fmt.Printf("  Rows affected: %d\n", result.Summary.TotalRowsAffected)
	fmt.Printf("  Duration: %dms\n", result.Summary.TotalDurationMs)
	if ctx.Verbose {
		fmt.Printf("  Executed nodes: %s\n", strings.Join(result.ExecutedNodes, ", "))
		fmt.Printf("  Executed edges: %s\n", strings.Join(result.ExecutedEdges, ", "))
	}
}

func printEvent(ev procsim.TraceEvent, verbose bool) {
	prefix := fmt.Sprintf("[%3d]", ev.EventID)

	switch ev.Type {
	case procsim.EventStart:
		color.Cyan("%s start", prefix)
	case procsim.EventComplete:
		if ev.ErrorMessage != "" {
			color.Yellow("%s complete (%s)", prefix, ev.ErrorMessage)
		} else {
			color.Cyan("%s complete", prefix)
		}
	case procsim.EventBranch:
		color.Yellow("%s branch %s -> %s", prefix, firstLine(ev.SQL), ev.BranchTaken)
	case procsim.EventSimulated:
		tag := ""
		if ev.BranchTaken != "" {
			tag = " (" + ev.BranchTaken + ")"
		}
		fmt.Printf("%s simulate %s%s\n", prefix, firstLine(ev.SQL), tag)
	case procsim.EventStatement:
		fmt.Printf("%s execute %s\n", prefix, firstLine(ev.SQL))
	case procsim.EventResultSet:
		count := int64(len(ev.Rows))
		if ev.RowCount != nil {
			count = *ev.RowCount
		}
		color.Green("%s resultset %d row(s): %s", prefix, count, strings.Join(ev.Columns, ", "))
		if verbose {
			for _, row := range ev.Rows {
				fmt.Printf("        %s\n", formatRow(row))
			}
		}
	case procsim.EventDml:
		count := int64(0)
		if ev.RowCount != nil {
			count = *ev.RowCount
		}
		color.Green("%s dml %d row(s) affected", prefix, count)
	case procsim.EventTxn:
		color.Magenta("%s txn %s", prefix, ev.SQL)
	case procsim.EventControlFlow:
		fmt.Printf("%s flow %s\n", prefix, firstLine(ev.SQL))
	case procsim.EventInfo:
		fmt.Printf("%s info %s\n", prefix, ev.ErrorMessage+ev.SQL)
	case procsim.EventError:
		if ev.ErrorNumber != 0 {
			color.Red("%s error %d: %s", prefix, ev.ErrorNumber, ev.ErrorMessage)
		} else {
			color.Red("%s error: %s", prefix, ev.ErrorMessage)
		}
	default:
		fmt.Printf("%s %s %s\n", prefix, ev.Type, firstLine(ev.SQL))
	}
}

func printSandboxMetadata(meta *procsim.SQLiteMetadata) {
	fmt.Println()
	color.Blue("Sandbox schema: %d table(s), %d seeded row(s)",
		len(meta.TablesCreated), meta.TotalRowsGenerated)

	for _, table := range meta.TablesCreated {
		preview, ok := meta.DataPreview[table]
		if !ok {
			continue
		}
		fmt.Printf("  %s (%d rows): %s\n", table, preview.RowCount, strings.Join(preview.Columns, ", "))
		for _, row := range preview.SampleRows {
			fmt.Printf("    %s\n", formatRow(row))
		}
	}
}

func formatRow(row []any) string {
	cells := make([]string, len(row))
	for i, cell := range row {
		if cell == nil {
			cells[i] = "NULL"
			continue
		}
		cells[i] = fmt.Sprintf("%v", cell)
	}
	return strings.Join(cells, " | ")
}

func firstLine(sql string) string {
	line := strings.TrimSpace(sql)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i]) + " ..."
	}
	return line
}
