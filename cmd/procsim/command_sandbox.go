package main

import (
	"context"
	"fmt"

	"github.com/procsim/procsim/sandbox"
)

// SandboxCmd represents the sandbox command
type SandboxCmd struct {
	File       string   `arg:"" help:"Procedure file (.sql)" type:"path"`
	ParamsFile string   `short:"p" long:"params" help:"Parameters file (JSON/YAML)" type:"path"`
	Param      []string `long:"param" help:"Individual parameter (key=value format)"`
	Seed       int64    `long:"seed" help:"Synthetic data seed (0 uses the configured seed)"`
	Format     string   `long:"format" help:"Output format (trace, json)" default:"trace"`
	Output     string   `short:"o" long:"output" help:"Output file (defaults to stdout)" type:"path"`
}

// Run executes the sandbox command
func (cmd *SandboxCmd) Run(ctx *Context) error {
	config, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	text, graph, err := loadProcedure(cmd.File)
	if err != nil {
		return err
	}

	params, err := loadParams(cmd.ParamsFile, cmd.Param)
	if err != nil {
		return err
	}

	sandboxConfig := config.Sandbox
	if cmd.Seed != 0 {
		sandboxConfig.Seed = cmd.Seed
	}

	result := sandbox.New(sandboxConfig).Run(context.Background(), graph, text, params)

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
