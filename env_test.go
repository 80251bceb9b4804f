package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var connectionEnvVars = []string{
	"DATABASE_URL", "PG_HOST", "PG_PORT", "PG_DATABASE", "PG_USER", "PG_PASSWORD", "PG_SSLMODE", "PG_SCHEMA",
	"PGHOST", "PGPORT", "PGDATABASE", "PGUSER", "PGPASSWORD", "PGSSLMODE",
	"MYSQL_DSN", "MYSQL_HOST", "MYSQL_PORT", "MYSQL_DATABASE", "MYSQL_USER", "MYSQL_PASSWORD",
	"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
}

// clearConnectionEnv unsets every connection variable for the test; the
// original values come back on cleanup.
func clearConnectionEnv(t *testing.T) {
	t.Helper()
	for _, k := range connectionEnvVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadConnectionEnvDefaults(t *testing.T) {
	clearConnectionEnv(t)

	src, dst, err := loadConnectionEnv()
	require.NoError(t, err)
	assert.Equal(t, SourceConfig{
		Host: "localhost", Port: 5432, Database: "certificates", User: "postgres", SSLMode: "disable", Schema: "public",
	}, src)
	assert.Equal(t, TargetConfig{
		Host: "localhost", Port: 3306, Database: "certificates", User: "root",
	}, dst)
}

func TestLoadConnectionEnvAliases(t *testing.T) {
	clearConnectionEnv(t)
	t.Setenv("PGHOST", "pg.internal")
	t.Setenv("PG_USER", "migrator")
	t.Setenv("PGUSER", "ignored")
	t.Setenv("DB_HOST", "mysql.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("MYSQL_PASSWORD", "s3cret")

	src, dst, err := loadConnectionEnv()
	require.NoError(t, err)
	assert.Equal(t, "pg.internal", src.Host)
	assert.Equal(t, "migrator", src.User)
	assert.Equal(t, "mysql.internal", dst.Host)
	assert.Equal(t, 3307, dst.Port)
	assert.Equal(t, "s3cret", dst.Password)
}

func TestLoadConnectionEnvBadPort(t *testing.T) {
	clearConnectionEnv(t)
	t.Setenv("MYSQL_PORT", "three")

	_, _, err := loadConnectionEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target environment")
}

func TestLoadDotEnv(t *testing.T) {
	clearConnectionEnv(t)
	t.Setenv("PG_USER", "preset")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PG_USER=fromfile\nMYSQL_DATABASE=certs_staging\n"), 0o644))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "preset", os.Getenv("PG_USER"))
	assert.Equal(t, "certs_staging", os.Getenv("MYSQL_DATABASE"))

	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, loadDotEnv(""))
}

func TestPostgresDSN(t *testing.T) {
	cfg := SourceConfig{Host: "pg", Port: 5433, Database: "certs", User: "pg", Password: "p@ss", SSLMode: "require"}
	assert.Equal(t, "postgres://pg:p%40ss@pg:5433/certs?connect_timeout=10&sslmode=require", postgresDSN(cfg, 10*time.Second))
	assert.Equal(t, "postgres://pg:p%40ss@pg:5433/certs?connect_timeout=1&sslmode=require", postgresDSN(cfg, 200*time.Millisecond))

	cfg.URL = "postgres://other@elsewhere/db"
	assert.Equal(t, cfg.URL, postgresDSN(cfg, time.Second))
}

func TestDescribeHidesCredentials(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"source url", SourceConfig{URL: "postgres://app:secret@pg:5432/certs"}.describe(), "app@pg:5432/certs"},
		{"source fields", SourceConfig{User: "app", Password: "secret", Host: "pg", Port: 5432, Database: "certs"}.describe(), "app@pg:5432/certs"},
		{"target dsn", TargetConfig{DSN: "app:secret@tcp(db:3306)/certs"}.describe(), "app@db:3306/certs"},
		{"target fields", TargetConfig{User: "root", Password: "secret", Host: "db", Port: 3306, Database: "certs"}.describe(), "root@db:3306/certs"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got, tt.name)
		assert.NotContains(t, tt.got, "secret", tt.name)
	}
}

func TestTargetDatabaseName(t *testing.T) {
	assert.Equal(t, "certs", TargetConfig{Database: "certs"}.databaseName())
	assert.Equal(t, "from_dsn", TargetConfig{DSN: "u:p@tcp(h:3306)/from_dsn", Database: "certs"}.databaseName())
}
