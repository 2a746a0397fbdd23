package procsim

import "errors"

// Common errors used throughout the procsim package
var (
	// ErrBadInput indicates unparseable procedure text or invalid caller input.
	// Input errors
	ErrBadInput = errors.New("bad input")
	// ErrEmptyProcedure indicates the procedure text was empty or whitespace only.
	ErrEmptyProcedure = errors.New("empty procedure text")
	// ErrSystemDatabase is returned when a live connection targets a system database.
	ErrSystemDatabase = errors.New("system database access is not allowed")

	// ErrEngine indicates a per-statement failure inside an execution engine.
	// Engine errors
	ErrEngine = errors.New("engine error")
	// ErrEngineUnreachable indicates the database engine could not be reached at all.
	ErrEngineUnreachable = errors.New("engine unreachable")

	// ErrInternal indicates an invariant violation in the CFG builder or walker.
	// Internal errors
	ErrInternal = errors.New("internal invariant violation")
	// ErrNodeNotFound indicates a referenced node was missing from the graph.
	ErrNodeNotFound = errors.New("node not found")
	// ErrDanglingEdge indicates an edge references a node outside the graph.
	ErrDanglingEdge = errors.New("edge target not found in graph")
	// ErrMissingStart indicates the graph has no single Start node.
	ErrMissingStart = errors.New("graph must have exactly one start node")
	// ErrMissingEnd indicates the graph has no single End node.
	ErrMissingEnd = errors.New("graph must have exactly one end node")
	// ErrDeadEnd indicates a non-terminal node has no outgoing edge.
	ErrDeadEnd = errors.New("non-terminal node has no outgoing edge")

	// ErrCancelled indicates the caller requested cancellation mid-run.
	// Cancellation
	ErrCancelled = errors.New("run cancelled")

	// ErrConfigValidation is returned when configuration validation fails.
	// Configuration errors
	ErrConfigValidation = errors.New("configuration validation failed")
	// ErrConfigFileNotFound indicates a configuration file could not be located.
	ErrConfigFileNotFound = errors.New("configuration file not found")
	// ErrUnknownEnvironment indicates the selected database environment is not configured.
	ErrUnknownEnvironment = errors.New("unknown database environment")
)
