package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// MigrationConfig holds the full migration configuration. Connection
// parameters come from the environment; everything else from an optional
// TOML file, then command-line flags.
type MigrationConfig struct {
	Source SourceConfig `toml:"-"`
	Target TargetConfig `toml:"-"`

	Tables           []TableSpec       `toml:"tables"`
	BatchSize        int               `toml:"batch_size"`
	Workers          int               `toml:"workers"`
	OnSchemaConflict string            `toml:"on_schema_conflict"` // ask|skip|recreate
	ConstraintPolicy string            `toml:"constraint_policy"`  // drop|preserve
	Engine           string            `toml:"engine"`
	Charset          string            `toml:"charset"`
	Collation        string            `toml:"collation"`
	LogDir           string            `toml:"log_dir"`
	DumpDir          string            `toml:"dump_dir"`
	Journal          string            `toml:"journal"`
	MetricsFile      string            `toml:"metrics_file"`
	ConnectTimeout   time.Duration     `toml:"connect_timeout"`
	QueryTimeout     time.Duration     `toml:"query_timeout"`
	RowTimeout       time.Duration     `toml:"row_timeout"`
	Hooks            HooksConfig       `toml:"hooks"`
	TypeMapping      TypeMappingConfig `toml:"type_mapping"`

	// configDir is the directory containing the TOML file, used to resolve relative paths.
	configDir string
}

// SourceConfig holds the PostgreSQL connection parameters.
type SourceConfig struct {
	URL      string `envconfig:"DATABASE_URL"`
	Host     string `envconfig:"PG_HOST" default:"localhost"`
	Port     int    `envconfig:"PG_PORT" default:"5432"`
	Database string `envconfig:"PG_DATABASE" default:"certificates"`
	User     string `envconfig:"PG_USER" default:"postgres"`
	Password string `envconfig:"PG_PASSWORD"`
	SSLMode  string `envconfig:"PG_SSLMODE" default:"disable"`
	Schema   string `envconfig:"PG_SCHEMA" default:"public"`
}

// TargetConfig holds the MySQL connection parameters.
type TargetConfig struct {
	DSN      string `envconfig:"MYSQL_DSN"`
	Host     string `envconfig:"MYSQL_HOST" default:"localhost"`
	Port     int    `envconfig:"MYSQL_PORT" default:"3306"`
	Database string `envconfig:"MYSQL_DATABASE" default:"certificates"`
	User     string `envconfig:"MYSQL_USER" default:"root"`
	Password string `envconfig:"MYSQL_PASSWORD"`
}

type HooksConfig struct {
	BeforeData []string `toml:"before_data"`
	AfterData  []string `toml:"after_data"`
}

// TypeMappingConfig controls optional target type substitutions.
type TypeMappingConfig struct {
	JSONAsLongtext bool `toml:"json_as_longtext"` // for MySQL/MariaDB builds without a JSON type
	TextAsLongtext bool `toml:"text_as_longtext"`
}

const (
	defaultBatchSize = 100
	maxWorkers       = 64
)

func defaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		BatchSize:        defaultBatchSize,
		Workers:          1,
		OnSchemaConflict: "ask",
		ConstraintPolicy: "drop",
		Engine:           "InnoDB",
		Charset:          "utf8mb4",
		Collation:        "utf8mb4_unicode_ci",
		LogDir:           "logs",
		ConnectTimeout:   10 * time.Second,
		QueryTimeout:     5 * time.Minute,
		RowTimeout:       30 * time.Second,
	}
}

// loadConfig reads an optional TOML file and returns a MigrationConfig with
// defaults applied. An empty path yields the defaults alone.
func loadConfig(path string) (*MigrationConfig, error) {
	cfg := defaultMigrationConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if unknown := md.Undecoded(); len(unknown) > 0 {
			keys := make([]string, len(unknown))
			for i, k := range unknown {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		cfg.configDir = filepath.Dir(absPath)
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.configDir = wd
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate applies derived defaults and rejects inconsistent settings. It is
// re-run after command-line overrides.
func (c *MigrationConfig) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Workers > maxWorkers {
		c.Workers = maxWorkers
	}

	switch c.OnSchemaConflict {
	case "ask", "skip", "recreate":
	default:
		return fmt.Errorf("on_schema_conflict must be one of: ask, skip, recreate")
	}
	switch c.ConstraintPolicy {
	case "drop", "preserve":
	default:
		return fmt.Errorf("constraint_policy must be one of: drop, preserve")
	}

	c.Engine = strings.TrimSpace(c.Engine)
	if c.Engine == "" {
		return fmt.Errorf("engine is required")
	}
	if err := validateCharsetCollation(c.Charset, c.Collation); err != nil {
		return err
	}

	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout},
		{"query_timeout", c.QueryTimeout},
	} {
		if d.v <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	// Zero disables the per-row timeout.
	if c.RowTimeout < 0 {
		return fmt.Errorf("row_timeout must not be negative")
	}

	if len(c.Tables) == 0 {
		c.Tables = defaultCertAppTables()
	}
	seen := make(map[string]bool, len(c.Tables))
	for i := range c.Tables {
		t := &c.Tables[i]
		t.Name = strings.TrimSpace(t.Name)
		t.PrimaryKey = strings.TrimSpace(t.PrimaryKey)
		if t.Name == "" {
			return fmt.Errorf("tables[%d].name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("table %q listed more than once", t.Name)
		}
		seen[t.Name] = true
	}

	return nil
}

// journalPath returns the run journal location, defaulting to the log directory.
func (c *MigrationConfig) journalPath() string {
	if c.Journal != "" {
		return c.resolvePath(c.Journal)
	}
	return filepath.Join(c.resolvePath(c.LogDir), "journal.db")
}

// resolvePath resolves a path relative to the config file directory.
func (c *MigrationConfig) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}
