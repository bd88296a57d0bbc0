package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vohoa/postgres-backup-plugin/internal/backup"
	"github.com/vohoa/postgres-backup-plugin/internal/config"
	"github.com/vohoa/postgres-backup-plugin/internal/database"
)

var (
	// backup create flags
	outputPath    string
	sourceSchema  string
	targetSchema  string
	filterArgs    []string
	excludeTables []string
	metadataArgs  []string
	noClean       bool
	dropExisting  bool
	timeoutFlag   string
)

// backupCmd groups the backup operations
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create and inspect database backups",
}

// backupCreateCmd runs a full export
var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Export table data and schema into a SQL file",
	Long: `Stream every table of the source schema through the COPY channel into a
SQL file. All tables are read from one consistent snapshot; per-table filters
restrict the exported rows. With a target schema the file carries a prologue
that creates the schema and points the search path at it.`,
	RunE: runBackupCreate,
}

// backupValidateCmd pre-flights the filters without transferring data
var backupValidateCmd = &cobra.Command{
	Use:   "validate-filters",
	Short: "Validate filters against the database without exporting",
	RunE:  runBackupValidate,
}

// backupEstimateCmd reports approximate row counts per table
var backupEstimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate rows per table for a backup run",
	RunE:  runBackupEstimate,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupValidateCmd)
	backupCmd.AddCommand(backupEstimateCmd)

	for _, cmd := range []*cobra.Command{backupCreateCmd, backupValidateCmd, backupEstimateCmd} {
		cmd.Flags().StringVar(&sourceSchema, "source-schema", "public", "schema to read from")
		cmd.Flags().StringArrayVar(&filterArgs, "filter", nil,
			"per-table filter as table=SELECT ... (repeatable)")
	}

	backupCreateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output SQL file (required)")
	backupCreateCmd.Flags().StringVar(&targetSchema, "target-schema", "", "schema name baked into the restore statements")
	backupCreateCmd.Flags().StringSliceVar(&excludeTables, "exclude", nil, "tables to skip")
	backupCreateCmd.Flags().StringArrayVar(&metadataArgs, "metadata", nil, "header metadata as key=value (repeatable)")
	backupCreateCmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "drop and recreate the target schema in the prologue")
	backupCreateCmd.Flags().BoolVar(&noClean, "no-clean", false, "skip the sanitizing pass over the finished file")
	backupCreateCmd.Flags().StringVar(&timeoutFlag, "timeout", "", "total run timeout (e.g. 30m or seconds)")
	backupCreateCmd.MarkFlagRequired("output")
}

// newManager connects and builds the backup manager from the effective config
func newManager(cfg *config.Config) (*backup.Manager, *sql.DB, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.NewServiceWithLogger(logger).Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	manager, err := backup.NewManager(db, cfg.Database.Database, &cfg.Backup, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return manager, db, nil
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(excludeTables) > 0 {
		cfg.Backup.ExcludedTables = append(cfg.Backup.ExcludedTables, excludeTables...)
	}
	if noClean {
		cfg.Backup.CleanOutput = false
	}
	if dropExisting {
		cfg.Backup.DropExisting = true
	}
	if timeoutFlag != "" {
		timeout, err := parseTimeout(timeoutFlag)
		if err != nil {
			return err
		}
		cfg.Backup.Timeout = timeout
	}

	filters, err := parseFilters(filterArgs)
	if err != nil {
		return err
	}
	metadata, err := parseMetadata(metadataArgs)
	if err != nil {
		return err
	}

	manager, db, err := newManager(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	if sink, err := backup.NewSink(ctx, cfg.Sink); err != nil {
		return err
	} else if sink != nil {
		manager.SetSink(sink)
	}

	result := manager.Backup(ctx, backup.BackupRequest{
		OutputPath:   outputPath,
		Filters:      filters,
		TargetSchema: targetSchema,
		Metadata:     metadata,
		SourceSchema: sourceSchema,
	})

	printResult(result)
	return resultErr(result)
}

// resultErr maps a failed run onto the process exit status. Returning the
// error (instead of exiting here) lets the deferred connection close run
// before Execute sets the exit code.
func resultErr(result *backup.BackupResult) error {
	if result.Success {
		return nil
	}
	return errors.New("backup failed")
}

func runBackupValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filters, err := parseFilters(filterArgs)
	if err != nil {
		return err
	}
	if len(filters) == 0 {
		return fmt.Errorf("no filters given; pass at least one --filter")
	}

	manager, db, err := newManager(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := manager.ValidateFilters(context.Background(), filters, sourceSchema); err != nil {
		return err
	}

	color.Green("All %d filter(s) are valid", len(filters))
	return nil
}

func runBackupEstimate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filters, err := parseFilters(filterArgs)
	if err != nil {
		return err
	}

	manager, db, err := newManager(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	estimates, err := manager.EstimateSize(context.Background(), filters, sourceSchema)
	if err != nil {
		return err
	}

	tables := make([]string, 0, len(estimates))
	for t := range estimates {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var total int64
	for _, t := range tables {
		fmt.Printf("%-40s %12d\n", t, estimates[t])
		total += estimates[t]
	}
	fmt.Printf("%-40s %12d\n", "total (approximate)", total)
	return nil
}

// parseFilters turns repeated table=SELECT ... arguments into raw-query filters
func parseFilters(args []string) (map[string]backup.FilterSpec, error) {
	if len(args) == 0 {
		return nil, nil
	}

	filters := make(map[string]backup.FilterSpec, len(args))
	for _, arg := range args {
		table, query, ok := strings.Cut(arg, "=")
		if !ok || table == "" || query == "" {
			return nil, fmt.Errorf("invalid --filter %q: expected table=SELECT ...", arg)
		}
		filters[table] = backup.RawQueryFilter(query)
	}
	return filters, nil
}

// parseMetadata turns repeated key=value arguments into the header metadata map
func parseMetadata(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}

	metadata := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --metadata %q: expected key=value", arg)
		}
		metadata[key] = value
	}
	return metadata, nil
}

// printResult renders a backup result for the terminal
func printResult(result *backup.BackupResult) {
	if result.Success {
		color.Green("✓ %s", result.String())
		if result.Location != "" {
			fmt.Printf("  exported to %s\n", result.Location)
		}
		return
	}
	color.Red("✗ %s", result.String())
}
