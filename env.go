package main

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envAliases maps alternative variable names onto the ones read by
// envconfig. The alias is used only when the primary name is unset.
var envAliases = []struct{ primary, alias string }{
	{"PG_HOST", "PGHOST"},
	{"PG_PORT", "PGPORT"},
	{"PG_DATABASE", "PGDATABASE"},
	{"PG_USER", "PGUSER"},
	{"PG_PASSWORD", "PGPASSWORD"},
	{"PG_SSLMODE", "PGSSLMODE"},
	{"MYSQL_HOST", "DB_HOST"},
	{"MYSQL_PORT", "DB_PORT"},
	{"MYSQL_DATABASE", "DB_NAME"},
	{"MYSQL_USER", "DB_USER"},
	{"MYSQL_PASSWORD", "DB_PASSWORD"},
}

// loadDotEnv loads variables from envFile without overriding ones already set.
// A missing file is not an error.
func loadDotEnv(envFile string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

func applyEnvAliases() error {
	for _, a := range envAliases {
		if _, ok := os.LookupEnv(a.primary); ok {
			continue
		}
		if v, ok := os.LookupEnv(a.alias); ok {
			if err := os.Setenv(a.primary, v); err != nil {
				return fmt.Errorf("set %s from %s: %w", a.primary, a.alias, err)
			}
		}
	}
	return nil
}

// loadConnectionEnv reads source and target connection parameters.
func loadConnectionEnv() (SourceConfig, TargetConfig, error) {
	var src SourceConfig
	var dst TargetConfig
	if err := applyEnvAliases(); err != nil {
		return src, dst, err
	}
	if err := envconfig.Process("", &src); err != nil {
		return src, dst, fmt.Errorf("source environment: %w", err)
	}
	if err := envconfig.Process("", &dst); err != nil {
		return src, dst, fmt.Errorf("target environment: %w", err)
	}
	return src, dst, nil
}

// postgresDSN returns a connection URL for pgx. DATABASE_URL wins when set.
func postgresDSN(c SourceConfig, connectTimeout time.Duration) string {
	if c.URL != "" {
		return c.URL
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if connectTimeout > 0 {
		secs := int(connectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// describe renders the connection without credentials for confirmation prompts.
func (c SourceConfig) describe() string {
	if c.URL != "" {
		if u, err := url.Parse(c.URL); err == nil {
			return fmt.Sprintf("%s@%s%s", u.User.Username(), u.Host, u.Path)
		}
		return "DATABASE_URL"
	}
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}

func (c TargetConfig) describe() string {
	if c.DSN != "" {
		if cfg, err := mysql.ParseDSN(c.DSN); err == nil {
			return fmt.Sprintf("%s@%s/%s", cfg.User, cfg.Addr, cfg.DBName)
		}
		return "MYSQL_DSN"
	}
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}

// databaseName returns the target schema name used for {{database}} in hooks.
func (c TargetConfig) databaseName() string {
	if c.DSN != "" {
		if cfg, err := mysql.ParseDSN(c.DSN); err == nil {
			return cfg.DBName
		}
	}
	return c.Database
}
