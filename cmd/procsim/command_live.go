package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/procsim/procsim"
	"github.com/procsim/procsim/liverun"
)

// LiveCmd represents the live command
type LiveCmd struct {
	File        string   `arg:"" help:"Procedure file (.sql)" type:"path"`
	Environment string   `long:"env" help:"Database environment from config" default:"development"`
	DB          string   `long:"db" help:"Connection string (overrides the environment)"`
	Database    string   `long:"database" help:"Target database name (with --db)"`
	ParamsFile  string   `short:"p" long:"params" help:"Parameters file (JSON/YAML)" type:"path"`
	Param       []string `long:"param" help:"Individual parameter (key=value format)"`
	Timeout     string   `long:"timeout" help:"Per-statement timeout" default:"30s"`
	Format      string   `long:"format" help:"Output format (trace, json)" default:"trace"`
	Output      string   `short:"o" long:"output" help:"Output file (defaults to stdout)" type:"path"`
}

// Run executes the live command
func (cmd *LiveCmd) Run(ctx *Context) error {
	config, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	target, err := cmd.resolveTarget(config)
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

	liveConfig := config.Live
	if cmd.Timeout != "" {
		timeout, err := time.ParseDuration(cmd.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout duration: %w", err)
		}
		liveConfig.StatementTimeout = timeout
	}

	if ctx.Verbose {
		color.Blue("Executing against %s (every change is rolled back)", target.Database)
	}

	result, err := liverun.New(liveConfig).Run(context.Background(), graph, text, params, target)
	if err != nil {
		return err
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

func (cmd *LiveCmd) resolveTarget(config *procsim.Config) (procsim.Database, error) {
	if cmd.DB != "" {
		return procsim.Database{
			Driver:     "sqlserver",
			Connection: cmd.DB,
			Database:   cmd.Database,
		}, nil
	}
	return config.Environment(cmd.Environment)
}
