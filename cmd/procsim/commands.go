package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/procsim/procsim"
	"github.com/procsim/procsim/cfg"
	"github.com/procsim/procsim/parser"
)

// Sentinel errors
var (
	ErrProcedureFileNotFound = errors.New("procedure file not found")
	ErrInvalidParam          = errors.New("parameter must be in key=value form")
	ErrInvalidOutputFormat   = errors.New("invalid output format")
)

// loadConfig loads the configuration file named by the global flag. The
// default file name is optional; a named file that is missing is an error
// only when the user asked for it explicitly.
func loadConfig(ctx *Context) (*procsim.Config, error) {
	config, err := procsim.LoadConfig(ctx.Config)
	if errors.Is(err, procsim.ErrConfigFileNotFound) && ctx.Config == "procsim.yaml" {
		return procsim.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return config, nil
}

// loadProcedure reads the procedure source and builds its control flow
// graph in one step, since every command needs both.
func loadProcedure(path string) (string, *cfg.Graph, error) {
	if _, err := os.Stat(path); err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrProcedureFileNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read procedure file: %w", err)
	}
	source := string(data)

	proc, err := parser.Parse(source)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse procedure: %w", err)
	}

	graph, err := cfg.Build(proc)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build control flow graph: %w", err)
	}

	return source, graph, nil
}

// loadParams merges a parameters file (JSON or YAML) with individual
// key=value overrides. Inline values win.
func loadParams(paramsFile string, inline []string) (map[string]any, error) {
	params := make(map[string]any)

	if paramsFile != "" {
		data, err := os.ReadFile(paramsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read parameters file: %w", err)
		}
		if err := yaml.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("failed to parse parameters file: %w", err)
		}
	}

	for _, pair := range inline {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidParam, pair)
		}
		params[key] = coerceLiteral(value)
	}

	return params, nil
}

// coerceLiteral maps a command-line value onto the type a parameters file
// would have produced for the same text.
func coerceLiteral(raw string) any {
	switch strings.ToLower(raw) {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// writeOutput writes rendered text to the output file, or stdout when no
// file was given.
func writeOutput(path, content string) error {
	if path == "" {
		fmt.Print(content)
		if !strings.HasSuffix(content, "\n") {
			fmt.Println()
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func resultJSON(result *procsim.RunResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data) + "\n", nil
}
