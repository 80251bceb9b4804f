package main

import "fmt"

// collectGeneratedColumnWarnings reports columns whose values PostgreSQL
// computes. Their current values are copied as plain data.
func collectGeneratedColumnWarnings(t *Table) []string {
	if t == nil {
		return nil
	}

	var warnings []string
	for _, col := range t.Columns {
		switch {
		case col.Generated != "":
			warnings = append(warnings, fmt.Sprintf(
				"generated column %s.%s (%s) will be materialized as plain data; generation expression is not recreated",
				t.Spec.Name, col.Name, col.Generated,
			))
		case col.Identity && col.Name != t.Spec.PrimaryKey:
			warnings = append(warnings, fmt.Sprintf(
				"identity column %s.%s is not the primary key; it becomes a plain column without AUTO_INCREMENT",
				t.Spec.Name, col.Name,
			))
		}
	}
	return warnings
}
