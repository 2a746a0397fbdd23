package procsim

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config represents the procsim configuration
type Config struct {
	Dialect   string              `yaml:"dialect"`
	Databases map[string]Database `yaml:"databases"`
	Sandbox   SandboxConfig       `yaml:"sandbox"`
	Live      LiveConfig          `yaml:"live"`
}

// Database represents database connection configuration
type Database struct {
	Driver     string `yaml:"driver"`
	Connection string `yaml:"connection"`
	Database   string `yaml:"database"`
}

// SandboxConfig represents SQLite sandbox settings
type SandboxConfig struct {
	Seed            int64 `yaml:"seed"`
	MaxSeedRows     int   `yaml:"max_seed_rows"`
	PreviewRowLimit int   `yaml:"preview_row_limit"`
}

// LiveConfig represents live rollback execution settings
type LiveConfig struct {
	StatementTimeout   time.Duration `yaml:"statement_timeout"`
	ForbiddenDatabases []string      `yaml:"forbidden_databases"`
}

// DefaultConfig returns the built-in configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Dialect:   string(DialectSQLServer),
		Databases: map[string]Database{},
		Sandbox: SandboxConfig{
			Seed:            42,
			MaxSeedRows:     12,
			PreviewRowLimit: PreviewRowLimit,
		},
		Live: LiveConfig{
			StatementTimeout:   LiveStatementTimeout,
			ForbiddenDatabases: []string{"master", "msdb", "model", "tempdb"},
		},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig loads configuration from a YAML file, falling back to defaults
// when the path is empty. A path that does not exist is reported as
// ErrConfigFileNotFound. A .env file alongside the
// process is honoured before ${VAR} references in the file are expanded.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	// Ignore the error: a missing .env file is not a failure
	_ = godotenv.Load()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch Dialect(c.Dialect) {
	case DialectSQLServer, DialectSQLite:
	default:
		return fmt.Errorf("%w: unsupported dialect %q", ErrConfigValidation, c.Dialect)
	}

	if c.Sandbox.MaxSeedRows < 1 {
		return fmt.Errorf("%w: sandbox.max_seed_rows must be at least 1", ErrConfigValidation)
	}
	if c.Sandbox.PreviewRowLimit < 1 {
		return fmt.Errorf("%w: sandbox.preview_row_limit must be at least 1", ErrConfigValidation)
	}
	if c.Live.StatementTimeout <= 0 {
		return fmt.Errorf("%w: live.statement_timeout must be positive", ErrConfigValidation)
	}

	for name, db := range c.Databases {
		if db.Driver == "" {
			return fmt.Errorf("%w: database %q has no driver", ErrConfigValidation, name)
		}
		if db.Connection == "" {
			return fmt.Errorf("%w: database %q has no connection string", ErrConfigValidation, name)
		}
	}

	return nil
}

// Environment returns the named database configuration.
func (c *Config) Environment(name string) (Database, error) {
	db, ok := c.Databases[name]
	if !ok {
		return Database{}, fmt.Errorf("%w: %s", ErrUnknownEnvironment, name)
	}
	return db, nil
}
