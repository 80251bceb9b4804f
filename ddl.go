package main

import (
	"fmt"
	"strings"
)

// columnDef is one rendered column of a CREATE TABLE statement.
type columnDef struct {
	Name          string
	Type          string
	Nullable      bool
	Default       string
	AutoIncrement bool
}

// createTableStmt is a typed MySQL CREATE TABLE IF NOT EXISTS statement.
type createTableStmt struct {
	Name       string
	Columns    []columnDef
	PrimaryKey string
	Engine     string
	Charset    string
	Collation  string
}

// ddlOptions carries the table trailer and type mapping policy.
type ddlOptions struct {
	Engine      string
	Charset     string
	Collation   string
	TypeMapping TypeMappingConfig
}

func ddlOptionsFromConfig(cfg *MigrationConfig) ddlOptions {
	return ddlOptions{
		Engine:      cfg.Engine,
		Charset:     cfg.Charset,
		Collation:   cfg.Collation,
		TypeMapping: cfg.TypeMapping,
	}
}

// SQL renders the statement.
func (s createTableStmt) SQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", mysqlIdent(s.Name))

	lines := make([]string, 0, len(s.Columns)+1)
	for _, c := range s.Columns {
		var l strings.Builder
		fmt.Fprintf(&l, "  %s %s", mysqlIdent(c.Name), c.Type)
		if c.Nullable {
			l.WriteString(" NULL")
		} else {
			l.WriteString(" NOT NULL")
		}
		if c.AutoIncrement {
			l.WriteString(" AUTO_INCREMENT")
		} else if c.Default != "" {
			l.WriteString(" DEFAULT " + c.Default)
		}
		lines = append(lines, l.String())
	}
	if s.PrimaryKey != "" {
		lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", mysqlIdent(s.PrimaryKey)))
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")

	if s.Engine != "" {
		b.WriteString(" ENGINE=" + s.Engine)
	}
	if s.Charset != "" {
		b.WriteString(" DEFAULT CHARSET=" + s.Charset)
	}
	if s.Collation != "" {
		b.WriteString(" COLLATE=" + s.Collation)
	}
	return b.String()
}

// dropTableSQL is used when the operator accepts a drop-and-recreate.
func dropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + mysqlIdent(table)
}

func truncateTableSQL(table string) string {
	return "TRUNCATE TABLE " + mysqlIdent(table)
}

func isIntegerTarget(targetType string) bool {
	switch strings.ToUpper(targetType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "BIGINT":
		return true
	}
	return false
}

// buildCreateTable synthesizes the target DDL for one table. Warnings cover
// dropped defaults and a missing primary key column.
func buildCreateTable(name string, cols []ColumnMeta, primaryKey string, opts ddlOptions) (createTableStmt, []string, error) {
	if len(cols) == 0 {
		return createTableStmt{}, nil, fmt.Errorf("%w: %s has no columns", ErrTableDDL, name)
	}

	stmt := createTableStmt{
		Name:      name,
		Engine:    opts.Engine,
		Charset:   opts.Charset,
		Collation: opts.Collation,
	}
	var warnings []string
	pkFound := false

	for _, c := range cols {
		typ, _ := mapTargetType(c, opts.TypeMapping)

		isKey := primaryKey != "" && c.Name == primaryKey
		def := columnDef{Name: c.Name, Type: typ, Nullable: c.Nullable && !isKey}

		reduced := reduceDefault(c, typ)
		if reduced.Warning != "" {
			warnings = append(warnings, fmt.Sprintf("%s.%s: %s", name, c.Name, reduced.Warning))
		}
		switch {
		case (reduced.AutoIncrement || c.Identity) && isKey && isIntegerTarget(typ):
			def.AutoIncrement = true
		case reduced.AutoIncrement || c.Identity:
			warnings = append(warnings, fmt.Sprintf(
				"%s.%s: sequence default dropped; AUTO_INCREMENT needs an integer primary key column", name, c.Name))
		default:
			def.Default = reduced.Expr
		}

		if isKey {
			pkFound = true
		}
		stmt.Columns = append(stmt.Columns, def)
	}

	if pkFound {
		stmt.PrimaryKey = primaryKey
	} else if primaryKey != "" {
		warnings = append(warnings, fmt.Sprintf(
			"%s: primary key column %q not found in source; table created without a primary key", name, primaryKey))
	}
	return stmt, warnings, nil
}
