package procsim

// Dialect represents the SQL dialects the simulator understands.
// This type is shared across all packages
type Dialect string

const (
	DialectSQLServer Dialect = "sqlserver"
	DialectSQLite    Dialect = "sqlite"
)

// Mode identifies which execution engine produced a run.
type Mode string

const (
	ModeDryRun Mode = "dryrun"
	ModeSQLite Mode = "sqlite"
	ModeLive   Mode = "live"
)
