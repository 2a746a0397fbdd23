package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/procsim/procsim/cfg"
	"github.com/procsim/procsim/parser"
)

// ParseCmd represents the parse command
type ParseCmd struct {
	File   string `arg:"" help:"Procedure file (.sql)" type:"path"`
	Format string `help:"Output format (text, mermaid, json)" default:"text"`
	Output string `short:"o" help:"Output file (defaults to stdout)" type:"path"`
}

// parseReport is the JSON envelope for parse output.
type parseReport struct {
	Procedure  string             `json:"procedure,omitempty"`
	Parameters []parser.Parameter `json:"parameters,omitempty"`
	Graph      *cfg.Graph         `json:"graph"`
}

// Run executes the parse command
func (cmd *ParseCmd) Run(ctx *Context) error {
	if _, err := os.Stat(cmd.File); err != nil {
		return fmt.Errorf("%w: %s", ErrProcedureFileNotFound, cmd.File)
	}
	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return fmt.Errorf("failed to read procedure file: %w", err)
	}

	proc, err := parser.Parse(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse procedure: %w", err)
	}
	graph, err := cfg.Build(proc)
	if err != nil {
		return fmt.Errorf("failed to build control flow graph: %w", err)
	}

	switch cmd.Format {
	case "mermaid":
		return writeOutput(cmd.Output, graph.Mermaid())
	case "json":
		report := parseReport{Procedure: proc.Name, Parameters: proc.Parameters, Graph: graph}
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode graph: %w", err)
		}
		return writeOutput(cmd.Output, string(encoded)+"\n")
	case "text":
		if cmd.Output != "" {
			return writeOutput(cmd.Output, renderGraphText(graph))
		}
		cmd.printGraph(ctx, proc, graph)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOutputFormat, cmd.Format)
	}
}

func (cmd *ParseCmd) printGraph(ctx *Context, proc *parser.Procedure, graph *cfg.Graph) {
	if !ctx.Quiet {
		if proc.Name != "" {
			color.Blue("Procedure %s", proc.Name)
		} else {
			color.Blue("Ad-hoc batch")
		}
		for _, p := range proc.Parameters {
			fmt.Printf("  %s %s\n", p.Name, p.Type)
		}
	}
	fmt.Print(renderGraphText(graph))
	if !ctx.Quiet {
		color.Green("%d node(s)", len(graph.Nodes))
	}
}

func renderGraphText(graph *cfg.Graph) string {
	var b strings.Builder
	for _, node := range graph.Nodes {
		fmt.Fprintf(&b, "%-5s %-12s %s\n", node.ID, node.Kind, node.Label)
		for _, edge := range node.Edges {
			if edge.Condition != "" {
				fmt.Fprintf(&b, "      -> %s [%s]\n", edge.TargetNodeID, edge.Condition)
			} else {
				fmt.Fprintf(&b, "      -> %s\n", edge.TargetNodeID)
			}
		}
	}
	return b.String()
}
