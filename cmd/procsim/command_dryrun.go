package main

import (
	"fmt"

	"github.com/procsim/procsim/dryrun"
)

// DryRunCmd represents the dryrun command
type DryRunCmd struct {
	File       string   `arg:"" help:"Procedure file (.sql)" type:"path"`
	ParamsFile string   `short:"p" long:"params" help:"Parameters file (JSON/YAML)" type:"path"`
	Param      []string `long:"param" help:"Individual parameter (key=value format)"`
	Format     string   `long:"format" help:"Output format (trace, json)" default:"trace"`
	Output     string   `short:"o" long:"output" help:"Output file (defaults to stdout)" type:"path"`
}

// Run executes the dryrun command
func (cmd *DryRunCmd) Run(ctx *Context) error {
	_, graph, err := loadProcedure(cmd.File)
	if err != nil {
		return err
	}

	params, err := loadParams(cmd.ParamsFile, cmd.Param)
	if err != nil {
		return err
	}

	result, err := dryrun.NewSimulator(graph, params).Run()
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	switch cmd.Format {
	case "json":
		encoded, err := resultJSON(result)
		if err != nil {
			return err
		}
		return writeOutput(cmd.Output, encoded)
	case "trace":
		printResult(result, ctx)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOutputFormat, cmd.Format)
	}
}
