package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlDSN builds the target DSN. MYSQL_DSN wins over the discrete variables;
// either way the session is pinned to UTC so DATETIME strings round-trip.
func mysqlDSN(c TargetConfig, collation string, connectTimeout, queryTimeout time.Duration) (string, error) {
	var cfg *mysql.Config
	if c.DSN != "" {
		parsed, err := mysql.ParseDSN(c.DSN)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		cfg.DBName = c.Database
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("mysql dsn has no database name")
	}

	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	cfg.Timeout = connectTimeout
	cfg.ReadTimeout = queryTimeout
	cfg.WriteTimeout = queryTimeout
	if collation != "" {
		cfg.Collation = collation
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["time_zone"] = "'+00:00'"
	return cfg.FormatDSN(), nil
}
