package main

import (
	"fmt"
	"sort"
	"strings"
)

// mysqlCharsets are the target character sets accepted for the table trailer.
var mysqlCharsets = map[string]bool{
	"utf8mb4": true,
	"utf8mb3": true,
	"utf8":    true,
	"latin1":  true,
	"ascii":   true,
	"binary":  true,
}

// validateCharsetCollation checks that the table trailer is self-consistent.
// MySQL rejects a COLLATE clause that does not belong to the charset.
func validateCharsetCollation(charset, collation string) error {
	charset = strings.ToLower(strings.TrimSpace(charset))
	collation = strings.ToLower(strings.TrimSpace(collation))
	if charset == "" {
		return fmt.Errorf("charset is required")
	}
	if !mysqlCharsets[charset] {
		return fmt.Errorf("unsupported charset %q (must be one of: %s)", charset, strings.Join(sortedKeys(mysqlCharsets), ", "))
	}
	if collation == "" {
		return nil
	}
	if charset == "binary" {
		if collation != "binary" {
			return fmt.Errorf("collation %q does not belong to charset binary", collation)
		}
		return nil
	}
	if !strings.HasPrefix(collation, charset+"_") {
		return fmt.Errorf("collation %q does not belong to charset %s", collation, charset)
	}
	return nil
}

// collectCollationWarnings reports source text columns whose comparisons will
// change behaviour under the target collation. PostgreSQL compares text
// case-sensitively by default; a _ci collation folds case, so a unique
// constraint on such a column may reject rows that were distinct in the source.
func collectCollationWarnings(t *Table, collation string) []string {
	if t == nil || !strings.HasSuffix(strings.ToLower(collation), "_ci") {
		return nil
	}

	uniqueCols := make(map[string]bool)
	uniqueCols[t.Spec.PrimaryKey] = true
	for _, c := range t.Constraints {
		if c.Kind != "UNIQUE" {
			continue
		}
		for _, col := range c.Columns {
			uniqueCols[col] = true
		}
	}

	var refs []string
	for _, col := range t.Columns {
		switch normalizeSourceType(col.SourceType) {
		case "varchar", "bpchar", "text":
		default:
			continue
		}
		if uniqueCols[col.Name] {
			refs = append(refs, fmt.Sprintf("%s.%s", t.Spec.Name, col.Name))
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return []string{fmt.Sprintf(
		"%d unique text column(s) will compare case-insensitively under %s: %s",
		len(refs), collation, strings.Join(refs, ", "),
	)}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
