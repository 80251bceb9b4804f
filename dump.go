package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// sqlDumper writes schema.sql and seed.sql alongside a run so the target can
// be rebuilt without the source.
type sqlDumper struct {
	dir        string
	schemaFile *os.File
	seedFile   *os.File
	schema     *bufio.Writer
	seed       *bufio.Writer
}

func openSQLDumper(dir string, runID string, started time.Time) (*sqlDumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	schemaFile, err := os.Create(filepath.Join(dir, "schema.sql"))
	if err != nil {
		return nil, fmt.Errorf("create schema.sql: %w", err)
	}
	seedFile, err := os.Create(filepath.Join(dir, "seed.sql"))
	if err != nil {
		schemaFile.Close()
		return nil, fmt.Errorf("create seed.sql: %w", err)
	}

	d := &sqlDumper{
		dir:        dir,
		schemaFile: schemaFile,
		seedFile:   seedFile,
		schema:     bufio.NewWriter(schemaFile),
		seed:       bufio.NewWriter(seedFile),
	}
	header := fmt.Sprintf("-- pgmyferry run %s at %s\nSET NAMES utf8mb4;\nSET FOREIGN_KEY_CHECKS = 0;\n\n",
		runID, started.UTC().Format(time.RFC3339))
	d.schema.WriteString(header)
	d.seed.WriteString(header)
	return d, nil
}

// WriteSchema appends one CREATE TABLE statement.
func (d *sqlDumper) WriteSchema(stmt createTableStmt) error {
	_, err := fmt.Fprintf(d.schema, "%s;\n\n", stmt.SQL())
	return err
}

// WriteRows appends literal INSERT statements for rows that were loaded.
func (d *sqlDumper) WriteRows(table string, columns []string, rows []TransformedRow) error {
	if _, err := fmt.Fprintf(d.seed, "-- %s: %d rows\n%s;\n", table, len(rows), truncateTableSQL(table)); err != nil {
		return err
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES (", mysqlIdent(table), quotedColumnList(columns))
	for _, row := range rows {
		lits := make([]string, len(row))
		for i, v := range row {
			lits[i] = sqlLiteral(v)
		}
		if _, err := fmt.Fprintf(d.seed, "%s%s);\n", prefix, strings.Join(lits, ", ")); err != nil {
			return err
		}
	}
	_, err := d.seed.WriteString("\n")
	return err
}

func (d *sqlDumper) Close() error {
	var firstErr error
	for _, step := range []func() error{d.schema.Flush, d.seed.Flush, d.schemaFile.Close, d.seedFile.Close} {
		if err := step(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("close dump files in %s: %w", d.dir, firstErr)
	}
	return nil
}

// sqlLiteral renders v as a MySQL literal.
func sqlLiteral(v Value) string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return "NULL"
		}
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindText, KindJSON:
		return mysqlLiteral(v.Text)
	case KindTime:
		return mysqlLiteral(v.Time.UTC().Format(mysqlDateTimeLayout))
	case KindBytes:
		if len(v.Bytes) == 0 {
			return "''"
		}
		return "X'" + hex.EncodeToString(v.Bytes) + "'"
	default:
		return "NULL"
	}
}
