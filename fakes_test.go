package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeTable struct {
	cols        []ColumnMeta
	rows        []RawRow
	constraints []Constraint
}

// fakeSource is an in-memory SourceStore.
type fakeSource struct {
	tables   map[string]*fakeTable
	objects  *SourceObjects
	pingErr  error
	fetchErr map[string]error
	colsErr  map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tables:   make(map[string]*fakeTable),
		fetchErr: make(map[string]error),
		colsErr:  make(map[string]error),
	}
}

func (s *fakeSource) add(name string, cols []ColumnMeta, rows ...RawRow) *fakeTable {
	t := &fakeTable{cols: cols, rows: rows}
	s.tables[name] = t
	return t
}

func (s *fakeSource) Name() string { return "fake source" }

func (s *fakeSource) Ping(context.Context) error { return s.pingErr }

func (s *fakeSource) Columns(_ context.Context, table string) ([]ColumnMeta, error) {
	if err := s.colsErr[table]; err != nil {
		return nil, err
	}
	t, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return t.cols, nil
}

func (s *fakeSource) Constraints(_ context.Context, table string) ([]Constraint, error) {
	if t, ok := s.tables[table]; ok {
		return t.constraints, nil
	}
	return nil, nil
}

func (s *fakeSource) FetchAll(_ context.Context, table string, _ []ColumnMeta) ([]RawRow, error) {
	if err := s.fetchErr[table]; err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTableExtraction, table, err)
	}
	return s.tables[table].rows, nil
}

func (s *fakeSource) SourceObjects(context.Context) (*SourceObjects, error) {
	return s.objects, nil
}

func (s *fakeSource) Close() {}

// fakeTarget is an in-memory TargetStore that understands the handful of
// statements the migrator issues.
type fakeTarget struct {
	mu      sync.Mutex
	tables  map[string][]string
	rows    map[string][][]any
	execs   []string
	fks     map[string][]TargetForeignKey
	pingErr error

	// execErr and failInsert inject failures; nil means success.
	execErr    func(query string) error
	failInsert func(table string, args []any) error
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		tables: make(map[string][]string),
		rows:   make(map[string][][]any),
		fks:    make(map[string][]TargetForeignKey),
	}
}

// backtickName returns the first backtick-quoted identifier in s.
func backtickName(s string) string {
	start := strings.IndexByte(s, '`')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '`')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}

func (t *fakeTarget) Name() string { return "fake target" }

func (t *fakeTarget) Ping(context.Context) error { return t.pingErr }

func (t *fakeTarget) Exec(_ context.Context, query string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execs = append(t.execs, query)
	if t.execErr != nil {
		if err := t.execErr(query); err != nil {
			return err
		}
	}

	switch {
	case strings.HasPrefix(query, "CREATE TABLE IF NOT EXISTS "):
		name := backtickName(query)
		if _, ok := t.tables[name]; ok {
			return nil
		}
		var cols []string
		for _, line := range strings.Split(query, "\n")[1:] {
			if strings.HasPrefix(line, "  `") {
				cols = append(cols, backtickName(line))
			}
		}
		t.tables[name] = cols
	case strings.HasPrefix(query, "DROP TABLE IF EXISTS "):
		name := backtickName(query)
		delete(t.tables, name)
		delete(t.rows, name)
	case strings.HasPrefix(query, "TRUNCATE TABLE "):
		name := backtickName(query)
		if _, ok := t.tables[name]; !ok {
			return fmt.Errorf("table %s doesn't exist", name)
		}
		t.rows[name] = nil
	}
	return nil
}

func (t *fakeTarget) ExistingColumns(_ context.Context, table string) ([]string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cols, ok := t.tables[table]
	return append([]string(nil), cols...), ok, nil
}

func (t *fakeTarget) ForeignKeys(_ context.Context, table string) ([]TargetForeignKey, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fks[table], nil
}

func (t *fakeTarget) InsertRow(_ context.Context, table string, cols []string, args []any) error {
	if t.failInsert != nil {
		if err := t.failInsert(table, args); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tables[table]; !ok {
		return fmt.Errorf("table %s doesn't exist", table)
	}
	if len(cols) != len(args) {
		return fmt.Errorf("column count doesn't match value count")
	}
	t.rows[table] = append(t.rows[table], args)
	return nil
}

func (t *fakeTarget) Close() error { return nil }

func (t *fakeTarget) createTable(name string, cols ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tables[name] = cols
}

func (t *fakeTarget) rowCount(table string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows[table])
}

func (t *fakeTarget) executed(prefix string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, q := range t.execs {
		if strings.HasPrefix(q, prefix) {
			out = append(out, q)
		}
	}
	return out
}

// newObservedLog returns a run log whose entries can be inspected.
func newObservedLog() (*runLog, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &runLog{
		SugaredLogger: zap.New(core).Sugar(),
		fileOnly:      zap.NewNop().Sugar(),
	}, logs
}

func testConfig(t *testing.T, tables ...TableSpec) *MigrationConfig {
	t.Helper()
	cfg := defaultMigrationConfig()
	cfg.Tables = tables
	cfg.configDir = t.TempDir()
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return &cfg
}

func strPtr(s string) *string { return &s }
