package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/vohoa/postgres-backup-plugin/internal/config"
	"github.com/vohoa/postgres-backup-plugin/internal/logging"
)

var cfgFile string

// CLI flag variables. The database connection flags have no variables of
// their own; they are read back through viper, which layers them over the
// environment and the config file.
var (
	verbose bool
	quiet   bool
	logFile string
)

// Version information (set by main)
var (
	versionString = "dev"
	buildTime     = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pg-backup",
	Short: "Export PostgreSQL table data and schema into a portable SQL artifact",
	Long: `pg-backup streams PostgreSQL tables through the COPY channel into a
portable SQL dump. Tables are read from one consistent snapshot, rows can be
restricted per table with filters, and the finished file can be cleaned of
client-only directives and namespace prefixes so it restores into any schema.

Examples:
  # Back up the public schema of mydb
  pg-backup backup create --dbname mydb --output /tmp/mydb.sql

  # Back up filtered rows, retargeted at the staging schema
  pg-backup backup create --dbname mydb --output /tmp/mydb.sql \
      --filter 'orders=SELECT * FROM orders WHERE total > 100' \
      --target-schema staging

  # Pre-flight filter validation without transferring data
  pg-backup backup validate-filters --dbname mydb \
      --filter 'orders=SELECT * FROM orders WHERE total > 100'

  # Clean an existing dump in place
  pg-backup clean --input /tmp/mydb.sql --output /tmp/mydb.clean.sql`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(version, built string) {
	versionString = version
	buildTime = built
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, built)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pg-backup.yaml)")

	rootCmd.PersistentFlags().String("host", "", "database host")
	rootCmd.PersistentFlags().Int("port", 0, "database port")
	rootCmd.PersistentFlags().String("user", "", "database user")
	rootCmd.PersistentFlags().String("password", "", "database password (prompted when omitted on a terminal)")
	rootCmd.PersistentFlags().String("dbname", "", "database name")
	rootCmd.PersistentFlags().String("sslmode", "", "TLS mode (disable, prefer, require, ...)")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")

	viper.BindPFlag("database.host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("database.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("database.user", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("database.password", rootCmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag("database.database", rootCmd.PersistentFlags().Lookup("dbname"))
	viper.BindPFlag("database.sslmode", rootCmd.PersistentFlags().Lookup("sslmode"))

	viper.BindEnv("database.host", "PGBACKUP_DB_HOST")
	viper.BindEnv("database.port", "PGBACKUP_DB_PORT")
	viper.BindEnv("database.user", "PGBACKUP_DB_USER")
	viper.BindEnv("database.password", "PGBACKUP_DB_PASSWORD")
	viper.BindEnv("database.database", "PGBACKUP_DB_NAME")
	viper.BindEnv("database.sslmode", "PGBACKUP_DB_SSLMODE")
}

// loadConfig builds the effective configuration from file, environment and flags
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("pg-backup.yaml"); err == nil {
			path = "pg-backup.yaml"
		}
	}

	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		return nil, err
	}

	// The connection settings resolve through viper: an explicitly set flag
	// wins, then a PGBACKUP_DB_* variable, then the file value registered
	// here as the default.
	viper.SetDefault("database.host", cfg.Database.Host)
	viper.SetDefault("database.port", cfg.Database.Port)
	viper.SetDefault("database.user", cfg.Database.User)
	viper.SetDefault("database.password", cfg.Database.Password)
	viper.SetDefault("database.database", cfg.Database.Database)
	viper.SetDefault("database.sslmode", cfg.Database.SSLMode)

	cfg.Database.Host = viper.GetString("database.host")
	cfg.Database.Port = viper.GetInt("database.port")
	cfg.Database.User = viper.GetString("database.user")
	cfg.Database.Password = viper.GetString("database.password")
	cfg.Database.Database = viper.GetString("database.database")
	cfg.Database.SSLMode = viper.GetString("database.sslmode")

	if verbose {
		cfg.Logging.Level = string(logging.LogLevelVerbose)
		cfg.Backup.VerboseLogging = true
	}
	if quiet {
		cfg.Logging.Level = string(logging.LogLevelQuiet)
	}
	if logFile != "" {
		cfg.Logging.LogFile = logFile
	}

	if cfg.Database.Password == "" {
		if pw, ok := promptPassword(cfg.Database.User); ok {
			cfg.Database.Password = pw
		}
	}

	return cfg, nil
}

// promptPassword asks for the password when running on a terminal
func promptPassword(user string) (string, bool) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", false
	}

	fmt.Fprintf(os.Stderr, "Password for user %s: ", user)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(raw)), true
}

// newLogger builds the logger described by the configuration
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(logging.Config{
		Level:   logging.LogLevel(cfg.Logging.Level),
		Format:  cfg.Logging.Format,
		LogFile: cfg.Logging.LogFile,
	})
}

// parseTimeout parses a --timeout flag value, accepting bare seconds for
// compatibility with cron-driven callers.
func parseTimeout(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid timeout: %q", value)
}
