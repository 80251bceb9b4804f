package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// runHookFiles reads each SQL file, expands {{database}}, and executes every
// statement against the target in order. The first failing statement stops
// the phase.
func runHookFiles(ctx context.Context, target TargetStore, cfg *MigrationConfig, files []string, phase, database string, log *zap.SugaredLogger) error {
	if len(files) == 0 {
		return nil
	}
	log.Infof("running %s hooks (%d files)...", phase, len(files))

	for _, f := range files {
		data, err := os.ReadFile(cfg.resolvePath(f))
		if err != nil {
			return fmt.Errorf("hook %s: read %s: %w", phase, f, err)
		}

		sql := strings.ReplaceAll(string(data), "{{database}}", mysqlIdent(database))
		stmts := splitStatements(sql)

		log.Infof("  %s: %d statements", f, len(stmts))
		for i, stmt := range stmts {
			if err := target.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("hook %s: %s: statement %d: %w\nSQL: %s", phase, f, i+1, err, stmt)
			}
		}
	}
	return nil
}

// splitStatements splits MySQL script text on semicolons, ignoring
// semicolons inside quotes, backtick identifiers and comments. DELIMITER
// directives are not supported.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	var quote byte // one of ' " ` while inside a quoted run
	inLineComment := false
	inBlockComment := false
	hasCode := false // comment-only fragments are not statements

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" && hasCode {
			stmts = append(stmts, s)
		}
		current.Reset()
		hasCode = false
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		if inLineComment {
			current.WriteByte(c)
			if c == '\n' {
				inLineComment = false
			}
			continue
		}

		if inBlockComment {
			current.WriteByte(c)
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				current.WriteByte('/')
				i++
				inBlockComment = false
			}
			continue
		}

		if quote != 0 {
			current.WriteByte(c)
			switch {
			case c == '\\' && quote != '`' && i+1 < len(sql):
				current.WriteByte(sql[i+1])
				i++
			case c == quote:
				// Doubled quote is an escaped quote.
				if i+1 < len(sql) && sql[i+1] == quote {
					current.WriteByte(sql[i+1])
					i++
				} else {
					quote = 0
				}
			}
			continue
		}

		switch {
		case c == '-' && i+2 < len(sql) && sql[i+1] == '-' && (sql[i+2] == ' ' || sql[i+2] == '\t' || sql[i+2] == '\n'):
			current.WriteString("--")
			i++
			inLineComment = true
		case c == '#':
			current.WriteByte(c)
			inLineComment = true
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			current.WriteString("/*")
			i++
			inBlockComment = true
		case c == '\'' || c == '"' || c == '`':
			current.WriteByte(c)
			quote = c
			hasCode = true
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				hasCode = true
			}
		}
	}

	// Trailing statement without semicolon
	flush()
	return stmts
}
