package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// Context represents the global context for commands
type Context struct {
	Config  string
	Verbose bool
	Quiet   bool
}

// CLI represents the command-line interface
var CLI struct {
	Config  string `help:"Configuration file path" default:"procsim.yaml"`
	Verbose bool   `help:"Enable verbose output" short:"v"`
	Quiet   bool   `help:"Suppress decorated output" short:"q"`

	Parse   ParseCmd   `cmd:"" help:"Parse a procedure and print its control flow graph"`
	Dryrun  DryRunCmd  `cmd:"" help:"Predict a procedure's execution without running any SQL"`
	Sandbox SandboxCmd `cmd:"" help:"Execute a procedure against a seeded in-memory SQLite database"`
	Live    LiveCmd    `cmd:"" help:"Execute a procedure on a real server inside a rolled-back transaction"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// VersionCmd represents the version command
type VersionCmd struct{}

// Run executes the version command
func (cmd *VersionCmd) Run() error {
	fmt.Println("procsim v0.1.0")
	return nil
}

func main() {
	ctx := kong.Parse(&CLI)

	appCtx := &Context{
		Config:  CLI.Config,
		Verbose: CLI.Verbose,
		Quiet:   CLI.Quiet,
	}

	err := ctx.Run(appCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
