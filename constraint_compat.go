package main

import (
	"fmt"
	"strings"
)

// constraintUnsupportedReason explains why a constraint cannot be re-added
// on the target.
func constraintUnsupportedReason(c Constraint, migrated map[string]bool) (string, bool) {
	if len(c.Columns) == 0 {
		return "constraint has no plain column key-parts", true
	}
	if c.Kind != "FOREIGN KEY" {
		return "", false
	}
	if !migrated[c.RefTable] {
		return fmt.Sprintf("references table %s which is not part of this migration", c.RefTable), true
	}
	if len(c.RefColumns) != len(c.Columns) {
		return "referenced column count does not match", true
	}
	if c.DeleteRule == "SET DEFAULT" || c.UpdateRule == "SET DEFAULT" {
		return "SET DEFAULT referential actions are rejected by InnoDB", true
	}
	return "", false
}

// collectConstraintWarnings reports what happens to the table's source
// constraints under the configured policy.
func collectConstraintWarnings(t *Table, policy string, migrated map[string]bool) []string {
	if t == nil || len(t.Constraints) == 0 {
		return nil
	}

	if policy != "preserve" {
		names := make([]string, len(t.Constraints))
		for i, c := range t.Constraints {
			names[i] = c.Name
		}
		return []string{fmt.Sprintf(
			"%s: %d unique/foreign key constraint(s) not recreated (constraint_policy=drop): %s",
			t.Spec.Name, len(names), strings.Join(names, ", "),
		)}
	}

	var warnings []string
	for _, c := range t.Constraints {
		if reason, unsupported := constraintUnsupportedReason(c, migrated); unsupported {
			warnings = append(warnings, fmt.Sprintf("%s.%s (%s): %s", t.Spec.Name, c.Name, c.Kind, reason))
		}
	}
	return warnings
}
