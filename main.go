package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath       string
	envFile          string
	assumeYes        bool
	resume           bool
	batchSize        int
	workers          int
	dumpDir          string
	logDir           string
	metricsFile      string
	onSchemaConflict string
	constraintPolicy string
	historyLimit     int
)

var rootCmd = &cobra.Command{
	Use:          "pgmyferry [config.toml]",
	Short:        "PostgreSQL to MySQL data migration tool",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runMigration,
}

var ddlCmd = &cobra.Command{
	Use:   "ddl [config.toml]",
	Short: "Print the MySQL DDL synthesized from the source schema",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDDL,
}

var historyCmd = &cobra.Command{
	Use:   "history [config.toml]",
	Short: "Show recent runs recorded in the run journal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionLine())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to optional migration TOML config file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file with connection variables (ignored when missing)")

	f := rootCmd.Flags()
	f.BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt before truncating target tables")
	f.BoolVar(&resume, "resume", false, "skip tables the journal records as completed without failures")
	f.IntVar(&batchSize, "batch-size", defaultBatchSize, "rows per insert batch")
	f.IntVar(&workers, "workers", 1, "concurrent row inserts within a batch")
	f.StringVar(&dumpDir, "dump-dir", "", "write schema.sql and seed.sql to this directory")
	f.StringVar(&logDir, "log-dir", "", "directory for per-run log files (default \"logs\")")
	f.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	f.StringVar(&onSchemaConflict, "on-schema-conflict", "", "ask, skip or recreate when a target table has a different shape")
	f.StringVar(&constraintPolicy, "constraint-policy", "", "drop or preserve source unique/foreign key constraints")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")

	rootCmd.AddCommand(ddlCmd, historyCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRunConfig resolves the TOML file, applies flags that were set on cmd,
// and reads connection parameters from the environment.
func loadRunConfig(cmd *cobra.Command, args []string) (*MigrationConfig, error) {
	// Positional arg takes precedence over --config flag
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("batch-size") {
		cfg.BatchSize = batchSize
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("dump-dir") {
		cfg.DumpDir = dumpDir
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
	if flags.Changed("on-schema-conflict") {
		cfg.OnSchemaConflict = onSchemaConflict
	}
	if flags.Changed("constraint-policy") {
		cfg.ConstraintPolicy = constraintPolicy
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg.Source, cfg.Target, err = loadConnectionEnv()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigration(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	rl, err := openRunLog(cfg.resolvePath(cfg.LogDir), started, os.Stderr)
	if err != nil {
		return err
	}
	defer rl.Close()

	rl.Infof("source: %s", cfg.Source.describe())
	src, err := openPostgresSource(ctx, cfg.Source, cfg.ConnectTimeout, cfg.QueryTimeout)
	if err != nil {
		rl.Errorf("%v", err)
		return err
	}
	defer src.Close()

	rl.Infof("target: %s", cfg.Target.describe())
	dsn, err := mysqlDSN(cfg.Target, cfg.Collation, cfg.ConnectTimeout, cfg.QueryTimeout)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrTargetUnavailable, err)
		rl.Errorf("%v", err)
		return err
	}
	tgt, err := openMySQLTarget(ctx, dsn, cfg.Workers, cfg.QueryTimeout)
	if err != nil {
		rl.Errorf("%v", err)
		return err
	}
	defer tgt.Close()

	mc := &MigrationContext{
		Config:    cfg,
		Source:    src,
		Target:    tgt,
		Log:       rl,
		Confirm:   buildConfirmers(assumeYes, cfg.OnSchemaConflict, stdinIsTerminal(), os.Stdin, os.Stderr),
		Metrics:   newMigrationMetrics(),
		Resume:    resume,
		RunID:     newRunID(),
		Database:  cfg.Target.databaseName(),
		SourceDSN: cfg.Source.describe(),
		TargetDSN: cfg.Target.describe(),
	}

	journal, err := openJournal(ctx, cfg.journalPath())
	if err != nil {
		logWarn(rl.SugaredLogger, "run journal disabled: %v", err)
		if resume {
			return fmt.Errorf("--resume needs the run journal: %w", err)
		}
	} else {
		defer journal.Close()
		mc.Journal = journal
	}

	if cfg.DumpDir != "" {
		dump, err := openSQLDumper(cfg.resolvePath(cfg.DumpDir), mc.RunID, started)
		if err != nil {
			return err
		}
		defer func() {
			if err := dump.Close(); err != nil {
				logWarn(rl.SugaredLogger, "%v", err)
			}
		}()
		mc.Dump = dump
	}

	report, runErr := mc.Run(ctx)
	if errors.Is(runErr, errDeclined) {
		return nil
	}
	printSummary(cmd.OutOrStdout(), report, rl)

	if cfg.MetricsFile != "" {
		if err := mc.Metrics.WriteTextfile(cfg.resolvePath(cfg.MetricsFile)); err != nil {
			logWarn(rl.SugaredLogger, "%v", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if ctx.Err() != nil {
		return fmt.Errorf("migration interrupted: %w", ctx.Err())
	}
	return nil
}

func runDDL(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openPostgresSource(ctx, cfg.Source, cfg.ConnectTimeout, cfg.QueryTimeout)
	if err != nil {
		return err
	}
	defer src.Close()

	return writeDDL(ctx, cmd.OutOrStdout(), src, cfg)
}

// writeDDL prints one CREATE TABLE statement per configured table, with
// warnings as SQL comments. Tables missing from the source are noted and
// skipped.
func writeDDL(ctx context.Context, w io.Writer, src SourceStore, cfg *MigrationConfig) error {
	for _, spec := range cfg.Tables {
		cols, err := src.Columns(ctx, spec.Name)
		if errors.Is(err, ErrTableNotFound) {
			fmt.Fprintf(w, "-- %s: not found in source\n\n", spec.Name)
			continue
		}
		if err != nil {
			return err
		}
		stmt, warnings, err := buildCreateTable(spec.Name, cols, spec.PrimaryKey, ddlOptionsFromConfig(cfg))
		if err != nil {
			return err
		}
		warnings = append(collectUnknownTypeWarnings(&Table{Spec: spec, Columns: cols}), warnings...)
		for _, warn := range warnings {
			fmt.Fprintf(w, "-- WARN: %s\n", warn)
		}
		fmt.Fprintf(w, "%s;\n\n", stmt.SQL())
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	path := cfg.journalPath()
	if err := journalExists(path); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	journal, err := openJournal(ctx, path)
	if err != nil {
		return err
	}
	defer journal.Close()

	runs, err := journal.History(ctx, historyLimit)
	if err != nil {
		return err
	}
	return writeHistory(cmd.OutOrStdout(), runs)
}

func writeHistory(w io.Writer, runs []journalRun) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSTATE\tTABLES\tINSERTED\tFAILED")
	for _, r := range runs {
		duration := "-"
		if !r.Finished.IsZero() {
			duration = r.Finished.Sub(r.Started).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.RunID, r.Started.Local().Format(time.DateTime), duration, r.State, r.Tables, r.Inserted, r.Failed)
	}
	return tw.Flush()
}
