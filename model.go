package main

// TableSpec identifies one table to migrate and its single-column primary key.
type TableSpec struct {
	Name       string `toml:"name"`
	PrimaryKey string `toml:"primary_key"`
}

// ColumnMeta describes a single source column from information_schema.columns.
type ColumnMeta struct {
	Name       string
	SourceType string  // canonical source type, e.g. "timestamptz", "jsonb", "bool"
	DataType   string  // raw information_schema data_type, e.g. "ARRAY", "USER-DEFINED"
	Nullable   bool
	Default    *string // raw column_default expression
	CharMaxLen int64
	Precision  int64
	Scale      int64
	Identity   bool     // GENERATED {ALWAYS|BY DEFAULT} AS IDENTITY
	Generated  string   // generation expression for GENERATED ALWAYS AS (...) STORED
	EnumLabels []string // labels when the column uses a PostgreSQL enum type
	OrdinalPos int
}

// Constraint is a source UNIQUE or FOREIGN KEY constraint, used only when the
// constraint policy is "preserve".
type Constraint struct {
	Name       string
	Kind       string // "UNIQUE" or "FOREIGN KEY"
	Columns    []string
	RefTable   string
	RefColumns []string
	UpdateRule string
	DeleteRule string
}

// Table is the introspected definition of one table for a single run. It is
// discarded once the table's migration completes.
type Table struct {
	Spec        TableSpec
	Columns     []ColumnMeta
	Constraints []Constraint
}

// columnNames returns the column names of cols in ordinal order.
func columnNames(cols []ColumnMeta) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// RawRow holds source-typed values in column order.
type RawRow []Value

// TransformedRow holds target-ready values in column order.
type TransformedRow []Value
