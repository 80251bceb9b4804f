package main

import (
	"fmt"
	"regexp"
	"strings"
)

// reducedDefault is a source default expression translated for MySQL.
type reducedDefault struct {
	Expr          string // rendered DEFAULT expression, empty for none
	AutoIncrement bool   // source default was a sequence
	Warning       string
}

var (
	pgCastSuffix   = regexp.MustCompile(`::[A-Za-z_][A-Za-z0-9_ ."]*(\([0-9, ]*\))?(\[\])*$`)
	numericLiteral = regexp.MustCompile(`^[-+]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][-+]?[0-9]+)?$`)
)

var currentTimestampDefaults = map[string]bool{
	"now()":                   true,
	"current_timestamp":       true,
	"localtimestamp":          true,
	"transaction_timestamp()": true,
	"statement_timestamp()":   true,
	"clock_timestamp()":       true,
}

// stripPgCasts removes trailing ::type casts and wrapping parentheses,
// e.g. ('draft'::character varying)::text becomes 'draft'.
func stripPgCasts(expr string) string {
	for {
		prev := expr
		expr = strings.TrimSpace(expr)
		if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") && balancedParens(expr[1:len(expr)-1]) {
			expr = expr[1 : len(expr)-1]
		}
		if !strings.HasSuffix(expr, "'") {
			expr = pgCastSuffix.ReplaceAllString(expr, "")
		}
		if expr == prev {
			return expr
		}
	}
}

func balancedParens(s string) bool {
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// unquotePgString returns the content of a standard single-quoted literal.
func unquotePgString(s string) (string, bool) {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return "", false
	}
	inner := s[1 : len(s)-1]
	// A lone quote inside means this was not one literal ('a' || 'b').
	if strings.Count(strings.ReplaceAll(inner, "''", ""), "'") > 0 {
		return "", false
	}
	return strings.ReplaceAll(inner, "''", "'"), true
}

// mysqlRejectsLiteralDefault reports target types that cannot carry a
// literal DEFAULT clause.
func mysqlRejectsLiteralDefault(targetType string) bool {
	t := strings.ToUpper(targetType)
	for _, prefix := range []string{"TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "JSON", "BLOB", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB"} {
		if t == prefix {
			return true
		}
	}
	return false
}

func isDateTimeTarget(targetType string) bool {
	t := strings.ToUpper(targetType)
	return strings.HasPrefix(t, "DATETIME") || strings.HasPrefix(t, "TIMESTAMP")
}

// reduceDefault translates a PostgreSQL column default into a MySQL one.
// Sequences are reported as AutoIncrement and never rendered; expressions
// MySQL cannot evaluate are dropped with a warning.
func reduceDefault(col ColumnMeta, targetType string) reducedDefault {
	if col.Default == nil {
		return reducedDefault{}
	}
	raw := strings.TrimSpace(*col.Default)
	if raw == "" {
		return reducedDefault{}
	}
	if strings.Contains(strings.ToLower(raw), "nextval(") {
		return reducedDefault{AutoIncrement: true}
	}

	expr := stripPgCasts(raw)
	lower := strings.ToLower(expr)

	drop := func(reason string) reducedDefault {
		return reducedDefault{Warning: fmt.Sprintf("default %s dropped: %s", raw, reason)}
	}

	switch {
	case lower == "null":
		return reducedDefault{}
	case currentTimestampDefaults[lower] || strings.HasPrefix(lower, "current_timestamp("):
		if !isDateTimeTarget(targetType) {
			return drop("current timestamp default on a " + targetType + " column")
		}
		return reducedDefault{Expr: "CURRENT_TIMESTAMP"}
	case lower == "true":
		return reducedDefault{Expr: "1"}
	case lower == "false":
		return reducedDefault{Expr: "0"}
	}

	if mysqlRejectsLiteralDefault(targetType) {
		return drop(targetType + " columns cannot have a literal default")
	}
	if numericLiteral.MatchString(expr) {
		return reducedDefault{Expr: expr}
	}
	if s, ok := unquotePgString(expr); ok {
		switch strings.ToUpper(targetType) {
		case "TINYINT(1)":
			switch strings.ToLower(s) {
			case "t", "true":
				return reducedDefault{Expr: "1"}
			case "f", "false":
				return reducedDefault{Expr: "0"}
			}
		}
		return reducedDefault{Expr: mysqlLiteral(s)}
	}
	return drop("expression is not portable to MySQL")
}
