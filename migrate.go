package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TableState is the lifecycle position of one table within a run.
type TableState string

const (
	TablePending       TableState = "PENDING"
	TableIntrospecting TableState = "INTROSPECTING"
	TableDDLReady      TableState = "DDL_READY"
	TableExtracting    TableState = "EXTRACTING"
	TableTransforming  TableState = "TRANSFORMING"
	TableLoading       TableState = "LOADING"
	TableDone          TableState = "DONE"
	TableFailed        TableState = "FAILED"
	TableSkipped       TableState = "SKIPPED"
)

// RunState is the lifecycle position of the whole run. There is no failed
// run state: every table is attempted and the outcome is aggregated.
type RunState string

const (
	RunNotStarted          RunState = "NOT_STARTED"
	RunRunning             RunState = "RUNNING"
	RunCompleted           RunState = "COMPLETED"
	RunCompletedWithErrors RunState = "COMPLETED_WITH_ERRORS"
)

// errDeclined is returned when the operator does not confirm the run.
var errDeclined = errors.New("migration not confirmed")

// MigrationContext carries everything a run needs. It is built once per run
// and passed explicitly; nothing is held in package state.
type MigrationContext struct {
	Config    *MigrationConfig
	Source    SourceStore
	Target    TargetStore
	Log       *runLog
	Confirm   confirmers
	Metrics   *migrationMetrics
	Journal   *runJournal // nil disables journaling and --resume
	Dump      *sqlDumper  // nil disables schema.sql/seed.sql
	Resume    bool
	RunID     string
	Database  string // target database, substituted for {{database}} in hooks
	SourceDSN string // credential-free descriptions for the confirmation prompt
	TargetDSN string

	now func() time.Time
}

func newRunID() string { return uuid.NewString() }

func (m *MigrationContext) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func (m *MigrationContext) loader() *batchLoader {
	return &batchLoader{
		target:     m.Target,
		workers:    m.Config.Workers,
		rowTimeout: m.Config.RowTimeout,
		log:        m.Log.SugaredLogger,
		metrics:    m.Metrics,
	}
}

func (m *MigrationContext) warn(r *TableReport, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if r != nil {
		r.Warnings = append(r.Warnings, msg)
	}
	logWarn(m.Log.SugaredLogger, "%s", msg)
}

// Run migrates every configured table in order. The returned error is nil
// unless a store is unreachable (ErrSourceUnavailable, ErrTargetUnavailable)
// or the operator declined (errDeclined); the report is always non-nil.
func (m *MigrationContext) Run(ctx context.Context) (*RunReport, error) {
	cfg := m.Config
	if m.RunID == "" {
		m.RunID = newRunID()
	}
	report := &RunReport{RunID: m.RunID, State: RunNotStarted, LogPath: m.Log.Path, Started: m.clock()}
	defer func() { report.Finished = m.clock() }()

	log := m.Log.SugaredLogger
	log.Infof("pgmyferry %s: PostgreSQL to MySQL migration, run %s", versionString(), m.RunID)
	log.Infof("config: tables=%d batch_size=%d workers=%d on_schema_conflict=%s constraint_policy=%s",
		len(cfg.Tables), cfg.BatchSize, cfg.Workers, cfg.OnSchemaConflict, cfg.ConstraintPolicy)

	log.Infof("connecting to %s...", m.Source.Name())
	if err := m.Source.Ping(ctx); err != nil {
		return report, err
	}
	log.Infof("connecting to %s...", m.Target.Name())
	if err := m.Target.Ping(ctx); err != nil {
		return report, err
	}

	prompt := fmt.Sprintf("This truncates and reloads %d table(s) in %s from %s. Continue?",
		len(cfg.Tables), m.TargetDSN, m.SourceDSN)
	if !m.Confirm.Start.Confirm(prompt) {
		log.Infof("migration cancelled: not confirmed (use --yes for non-interactive runs)")
		return report, errDeclined
	}

	report.State = RunRunning
	if m.Journal != nil {
		if err := m.Journal.StartRun(ctx, m.RunID, report.Started, report.LogPath); err != nil {
			m.warn(nil, "%v", err)
		}
	}

	completed := map[string]bool{}
	if m.Resume && m.Journal != nil {
		done, err := m.Journal.CompletedTables(ctx)
		if err != nil {
			m.warn(nil, "resume: %v", err)
		} else {
			completed = done
		}
	}

	var reload, resumed []TableSpec
	for _, spec := range cfg.Tables {
		if completed[spec.Name] {
			resumed = append(resumed, spec)
		} else {
			reload = append(reload, spec)
		}
	}

	if err := m.preflight(ctx, reload); err != nil {
		return m.finish(ctx, report, err)
	}

	if err := runHookFiles(ctx, m.Target, cfg, cfg.Hooks.BeforeData, "before_data", m.Database, log); err != nil {
		if isFatalRunError(err) {
			return m.finish(ctx, report, err)
		}
		report.Errors = append(report.Errors, err.Error())
		m.warn(nil, "%v", err)
	}

	var tables []*Table
	for i, spec := range cfg.Tables {
		if err := ctx.Err(); err != nil {
			m.abandon(ctx, report, cfg.Tables[i:], fmt.Errorf("run cancelled: %w", err))
			break
		}
		if completed[spec.Name] {
			r := &TableReport{Table: spec.Name, State: TableSkipped}
			m.warn(r, "%s: already completed in an earlier run; skipped (--resume)", spec.Name)
			report.Tables = append(report.Tables, r)
			continue
		}

		r, table, err := m.migrateTable(ctx, spec)
		report.Tables = append(report.Tables, r)
		m.recordTable(ctx, r)
		if table != nil {
			tables = append(tables, table)
		}
		if err != nil {
			m.abandon(ctx, report, cfg.Tables[i+1:], fmt.Errorf("not attempted: %w", err))
			return m.finish(ctx, report, err)
		}
	}

	if ctx.Err() == nil {
		if err := runHookFiles(ctx, m.Target, cfg, cfg.Hooks.AfterData, "after_data", m.Database, log); err != nil {
			if isFatalRunError(err) {
				return m.finish(ctx, report, err)
			}
			report.Errors = append(report.Errors, err.Error())
			m.warn(nil, "%v", err)
		}

		if cfg.ConstraintPolicy == "preserve" {
			log.Infof("restoring unique and foreign key constraints...")
			migrated := make(map[string]bool)
			for _, r := range report.Tables {
				if r.State == TableDone {
					migrated[r.Table] = true
				}
			}
			// Resumed tables kept their rows, but foreign keys pointing at
			// them from reloaded tables were released and must come back.
			for _, spec := range resumed {
				constraints, err := m.Source.Constraints(ctx, spec.Name)
				if err != nil {
					if isFatalRunError(err) {
						return m.finish(ctx, report, err)
					}
					m.warn(nil, "%s: read constraints: %v", spec.Name, err)
					continue
				}
				migrated[spec.Name] = true
				tables = append(tables, &Table{Spec: spec, Constraints: constraints})
			}
			warnings, err := restoreConstraints(ctx, m.Target, tables, migrated, log)
			for _, w := range warnings {
				m.warn(nil, "constraint not restored: %s", w)
			}
			if err != nil {
				return m.finish(ctx, report, err)
			}
		}
	}

	return m.finish(ctx, report, nil)
}

// preflight reports source objects that will not be migrated and releases
// target foreign keys that would block truncating the reload tables.
func (m *MigrationContext) preflight(ctx context.Context, reload []TableSpec) error {
	objs, err := m.Source.SourceObjects(ctx)
	switch {
	case err != nil && isFatalRunError(err):
		return err
	case err != nil:
		m.warn(nil, "source objects: %v", err)
	default:
		for _, w := range sourceObjectWarnings(objs) {
			m.warn(nil, "%s", w)
		}
	}

	warnings, err := releaseForeignKeys(ctx, m.Target, reload, m.Log.SugaredLogger)
	for _, w := range warnings {
		m.warn(nil, "%s", w)
	}
	return err
}

// abandon marks tables that will not be attempted as failed.
func (m *MigrationContext) abandon(ctx context.Context, report *RunReport, specs []TableSpec, cause error) {
	for _, spec := range specs {
		r := &TableReport{Table: spec.Name, State: TableFailed, Err: cause}
		report.Tables = append(report.Tables, r)
		m.recordTable(context.WithoutCancel(ctx), r)
	}
}

func (m *MigrationContext) recordTable(ctx context.Context, r *TableReport) {
	if m.Metrics != nil {
		m.Metrics.Tables.WithLabelValues(string(r.State)).Inc()
		if r.Duration > 0 {
			m.Metrics.TableDuration.WithLabelValues(r.Table).Observe(r.Duration.Seconds())
		}
	}
	if m.Journal != nil {
		if err := m.Journal.RecordTable(context.WithoutCancel(ctx), m.RunID, r, m.clock()); err != nil {
			m.warn(nil, "%v", err)
		}
	}
}

// finish settles the run state and closes the journal entry.
func (m *MigrationContext) finish(ctx context.Context, report *RunReport, fatal error) (*RunReport, error) {
	report.State = RunCompleted
	if fatal != nil || len(report.Errors) > 0 {
		report.State = RunCompletedWithErrors
	}
	for _, r := range report.Tables {
		if r.State == TableFailed || len(r.FailedRows) > 0 {
			report.State = RunCompletedWithErrors
		}
	}
	if fatal != nil {
		report.Errors = append(report.Errors, fatal.Error())
	}
	report.Finished = m.clock()

	if m.Journal != nil {
		if err := m.Journal.FinishRun(context.WithoutCancel(ctx), m.RunID, report.State, report.Finished); err != nil {
			m.warn(nil, "%v", err)
		}
	}
	return report, fatal
}

// migrateTable runs the full pipeline for one table. Failures are recorded
// in the report; only an unreachable store is returned as an error. The
// returned Table is nil when introspection did not succeed.
func (m *MigrationContext) migrateTable(ctx context.Context, spec TableSpec) (*TableReport, *Table, error) {
	cfg := m.Config
	log := m.Log.SugaredLogger
	start := m.clock()
	r := &TableReport{Table: spec.Name, State: TablePending}

	done := func(state TableState, err error) (*TableReport, *Table, error) {
		r.State = state
		r.Err = err
		r.Duration = m.clock().Sub(start)
		if err != nil && state == TableFailed {
			log.Errorf("%s: FAILED: %v", spec.Name, err)
		}
		if err != nil && isFatalRunError(err) {
			return r, nil, err
		}
		return r, nil, nil
	}

	// Introspect
	r.State = TableIntrospecting
	log.Infof("%s: introspecting", spec.Name)
	cols, err := m.Source.Columns(ctx, spec.Name)
	if errors.Is(err, ErrTableNotFound) {
		m.warn(r, "%s: not found in source; skipped", spec.Name)
		return done(TableSkipped, err)
	}
	if err != nil {
		return done(TableFailed, fmt.Errorf("introspect: %w", err))
	}
	table := &Table{Spec: spec, Columns: cols}
	if constraints, err := m.Source.Constraints(ctx, spec.Name); err != nil {
		if isFatalRunError(err) {
			return done(TableFailed, err)
		}
		m.warn(r, "%s: read constraints: %v", spec.Name, err)
	} else {
		table.Constraints = constraints
	}

	configured := make(map[string]bool, len(cfg.Tables))
	for _, t := range cfg.Tables {
		configured[t.Name] = true
	}
	var warnings []string
	warnings = append(warnings, collectUnknownTypeWarnings(table)...)
	warnings = append(warnings, collectGeneratedColumnWarnings(table)...)
	warnings = append(warnings, collectCollationWarnings(table, cfg.Collation)...)
	warnings = append(warnings, collectConstraintWarnings(table, cfg.ConstraintPolicy, configured)...)

	// Synthesize and apply DDL
	stmt, ddlWarnings, err := buildCreateTable(spec.Name, cols, spec.PrimaryKey, ddlOptionsFromConfig(cfg))
	if err != nil {
		return done(TableFailed, err)
	}
	for _, w := range append(warnings, ddlWarnings...) {
		m.warn(r, "%s", w)
	}

	proceed, err := m.resolveConflict(ctx, r, spec.Name, columnNames(cols))
	if err != nil {
		return done(TableFailed, err)
	}
	if !proceed {
		return done(TableSkipped, r.Err)
	}
	if err := m.Target.Exec(ctx, stmt.SQL()); err != nil {
		return done(TableFailed, fmt.Errorf("%w: %s: %w", ErrTableDDL, spec.Name, err))
	}
	if m.Dump != nil {
		if err := m.Dump.WriteSchema(stmt); err != nil {
			m.warn(r, "%s: write schema dump: %v", spec.Name, err)
		}
	}
	r.State = TableDDLReady

	// Extract
	r.State = TableExtracting
	raw, err := m.Source.FetchAll(ctx, spec.Name, cols)
	if err != nil {
		return done(TableFailed, err)
	}
	r.RowCount = len(raw)
	if m.Metrics != nil {
		m.Metrics.RowsExtracted.WithLabelValues(spec.Name).Add(float64(len(raw)))
	}
	log.Infof("%s: extracted %d rows", spec.Name, len(raw))

	// Transform
	r.State = TableTransforming
	names := columnNames(cols)
	transformer := newRowTransformer(spec.Name, cols)
	rows := make([]loadRow, 0, len(raw))
	for i, rr := range raw {
		out, err := transformer.Transform(i, rr)
		if err != nil {
			r.FailedRows = append(r.FailedRows, RowFailure{RowIndex: i, Err: err, Values: rr})
			logWarn(log, "%s: %v; data: %s", spec.Name, err, rowJSON(names, rr))
			if m.Metrics != nil {
				m.Metrics.RowsFailed.WithLabelValues(spec.Name, "coercion").Inc()
			}
			continue
		}
		rows = append(rows, loadRow{Index: i, Values: out})
	}

	// Load
	r.State = TableLoading
	res, err := m.loader().LoadTable(ctx, spec.Name, names, rows, cfg.BatchSize)
	r.InsertedCount = res.Inserted
	r.FailedRows = append(r.FailedRows, res.Failed...)
	sort.SliceStable(r.FailedRows, func(a, b int) bool { return r.FailedRows[a].RowIndex < r.FailedRows[b].RowIndex })
	if err != nil {
		_, _, fatal := done(TableFailed, err)
		return r, table, fatal
	}

	if m.Dump != nil {
		if err := m.Dump.WriteRows(spec.Name, names, insertedRows(rows, res.Failed)); err != nil {
			m.warn(r, "%s: write seed dump: %v", spec.Name, err)
		}
	}

	if !r.Accounted() {
		m.warn(r, "%s: %d rows extracted but %d inserted and %d failed", spec.Name, r.RowCount, r.InsertedCount, len(r.FailedRows))
	}
	r.State = TableDone
	r.Duration = m.clock().Sub(start)
	log.Infof("%s: done: %d rows, %d inserted, %d failed in %s",
		spec.Name, r.RowCount, r.InsertedCount, len(r.FailedRows), r.Duration.Round(time.Millisecond))
	return r, table, nil
}

// resolveConflict checks an existing target table against the source column
// set. It returns false when the table must be skipped.
func (m *MigrationContext) resolveConflict(ctx context.Context, r *TableReport, table string, wanted []string) (bool, error) {
	existing, exists, err := m.Target.ExistingColumns(ctx, table)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrTableDDL, table, err)
	}
	if !exists || sameColumnSet(existing, wanted) {
		return true, nil
	}

	conflict := &SchemaConflictError{Table: table, Existing: existing, Wanted: wanted}
	m.warn(r, "%v", conflict)
	prompt := fmt.Sprintf("Table %s exists in the target with a different shape. Drop and recreate it?", table)
	if !m.Confirm.Conflict.Confirm(prompt) {
		r.Err = conflict
		m.warn(r, "%s: schema conflict not resolved; skipped", table)
		return false, nil
	}
	if err := m.Target.Exec(ctx, dropTableSQL(table)); err != nil {
		return false, fmt.Errorf("%w: drop %s: %w", ErrTableDDL, table, err)
	}
	m.Log.Infof("%s: dropped for recreation", table)
	return true, nil
}

// sameColumnSet compares column names the way MySQL does, case-insensitively.
func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, c := range a {
		set[strings.ToLower(c)]++
	}
	for _, c := range b {
		k := strings.ToLower(c)
		if set[k] == 0 {
			return false
		}
		set[k]--
	}
	return true
}

func insertedRows(rows []loadRow, failed []RowFailure) []TransformedRow {
	skip := make(map[int]bool, len(failed))
	for _, f := range failed {
		skip[f.RowIndex] = true
	}
	out := make([]TransformedRow, 0, len(rows)-len(failed))
	for _, r := range rows {
		if !skip[r.Index] {
			out = append(out, r.Values)
		}
	}
	return out
}
