package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vohoa/postgres-backup-plugin/internal/database"
)

// Config is the complete configuration for a backup run. It is constructed
// by the caller and passed in explicitly; there is no ambient global state.
type Config struct {
	Database database.Config `yaml:"database"`
	Backup   BackupConfig    `yaml:"backup"`
	Sink     SinkConfig      `yaml:"sink"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level   string `yaml:"level"` // quiet, normal, verbose, debug
	Format  string `yaml:"format"`
	LogFile string `yaml:"log_file"`
}

// BackupConfig is the recognized backup-options set
type BackupConfig struct {
	ExcludedTables []string      `yaml:"excluded_tables"`
	BufferSize     int           `yaml:"buffer_size"`
	Timeout        time.Duration `yaml:"timeout"`
	Encoding       string        `yaml:"encoding"`

	// Restore performance options baked into the artifact
	DisableTriggers bool `yaml:"disable_triggers"`
	DisableFsync    bool `yaml:"disable_fsync"`

	// Output options
	IncludeHeader  bool   `yaml:"include_header"`
	VerboseLogging bool   `yaml:"verbose_logging"`
	CleanOutput    bool   `yaml:"clean_output"`
	TargetSchema   string `yaml:"target_schema"`
	DropExisting   bool   `yaml:"drop_existing_schema"`

	// COPY text format options
	CopyDelimiter  string `yaml:"copy_delimiter"`
	CopyNullString string `yaml:"copy_null_string"`
	CopyQuoteChar  string `yaml:"copy_quote_char"`
	CopyEscapeChar string `yaml:"copy_escape_char"`
}

// SinkProvider identifies a destination for the finished dump file
type SinkProvider string

const (
	SinkProviderNone  SinkProvider = ""
	SinkProviderLocal SinkProvider = "local"
	SinkProviderS3    SinkProvider = "s3"
	SinkProviderGCS   SinkProvider = "gcs"
	SinkProviderAzure SinkProvider = "azure"
)

// SinkConfig selects and configures the export sink
type SinkConfig struct {
	Provider    SinkProvider     `yaml:"provider"`
	DeleteLocal bool             `yaml:"delete_local"`
	Local       LocalSinkConfig  `yaml:"local"`
	S3          S3SinkConfig     `yaml:"s3"`
	GCS         GCSSinkConfig    `yaml:"gcs"`
	Azure       AzureSinkConfig  `yaml:"azure"`
}

// LocalSinkConfig configures the local directory sink
type LocalSinkConfig struct {
	BasePath    string      `yaml:"base_path"`
	Permissions os.FileMode `yaml:"permissions"`
}

// S3SinkConfig configures the Amazon S3 sink
type S3SinkConfig struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	StorageClass string `yaml:"storage_class"`
}

// GCSSinkConfig configures the Google Cloud Storage sink
type GCSSinkConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsPath string `yaml:"credentials_path"`
}

// AzureSinkConfig configures the Azure Blob Storage sink
type AzureSinkConfig struct {
	AccountName   string `yaml:"account_name"`
	AccountKey    string `yaml:"account_key"`
	ContainerName string `yaml:"container_name"`
	Prefix        string `yaml:"prefix"`
}

// Default returns a configuration populated with defaults. Loading overlays
// file and environment values on top of this, so boolean options that
// default to true survive the round trip.
func Default() *Config {
	cfg := &Config{
		Backup: BackupConfig{
			BufferSize:      8192,
			Timeout:         time.Hour,
			Encoding:        "UTF8",
			DisableTriggers: true,
			DisableFsync:    true,
			IncludeHeader:   true,
			CleanOutput:     true,
			CopyDelimiter:   "\t",
			CopyNullString:  `\N`,
		},
		Logging: LoggingConfig{
			Level:  "normal",
			Format: "text",
		},
		Sink: SinkConfig{
			Local: LocalSinkConfig{Permissions: 0o755},
		},
	}
	cfg.Database.SetDefaults()
	return cfg
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return err
	}
	return c.Sink.Validate()
}

// Validate checks the backup options
func (bc *BackupConfig) Validate() error {
	var problems []string

	if bc.BufferSize <= 0 {
		problems = append(problems, fmt.Sprintf("buffer_size must be positive, got %d", bc.BufferSize))
	}
	if bc.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("timeout must be positive, got %s", bc.Timeout))
	}
	if len(bc.CopyDelimiter) != 1 {
		problems = append(problems, "copy_delimiter must be a single character")
	}
	if bc.CopyNullString == "" {
		problems = append(problems, "copy_null_string is required")
	}
	if len(bc.CopyQuoteChar) > 1 {
		problems = append(problems, "copy_quote_char must be a single character")
	}
	if len(bc.CopyEscapeChar) > 1 {
		problems = append(problems, "copy_escape_char must be a single character")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid backup configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsExcluded reports whether a table is on the exclusion list
func (bc *BackupConfig) IsExcluded(table string) bool {
	for _, t := range bc.ExcludedTables {
		if t == table {
			return true
		}
	}
	return false
}

// Validate checks the sink selection and the chosen provider's settings
func (sc *SinkConfig) Validate() error {
	switch sc.Provider {
	case SinkProviderNone:
		return nil
	case SinkProviderLocal:
		if sc.Local.BasePath == "" {
			return fmt.Errorf("local sink requires base_path")
		}
	case SinkProviderS3:
		if sc.S3.Bucket == "" {
			return fmt.Errorf("s3 sink requires bucket")
		}
		if sc.S3.Region == "" {
			return fmt.Errorf("s3 sink requires region")
		}
	case SinkProviderGCS:
		if sc.GCS.Bucket == "" {
			return fmt.Errorf("gcs sink requires bucket")
		}
	case SinkProviderAzure:
		if sc.Azure.AccountName == "" || sc.Azure.AccountKey == "" || sc.Azure.ContainerName == "" {
			return fmt.Errorf("azure sink requires account_name, account_key and container_name")
		}
	default:
		return fmt.Errorf("unsupported sink provider: %s", sc.Provider)
	}
	return nil
}

// LoadFromEnvironment overrides configuration values from PGBACKUP_* variables
func (c *Config) LoadFromEnvironment() {
	if v := os.Getenv("PGBACKUP_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("PGBACKUP_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("PGBACKUP_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("PGBACKUP_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("PGBACKUP_DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("PGBACKUP_DB_SSLMODE"); v != "" {
		c.Database.SSLMode = v
	}

	if v := os.Getenv("PGBACKUP_BUFFER_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			c.Backup.BufferSize = size
		}
	}
	if v := os.Getenv("PGBACKUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Backup.Timeout = d
		}
	}
	if v := os.Getenv("PGBACKUP_EXCLUDED_TABLES"); v != "" {
		c.Backup.ExcludedTables = splitAndTrim(v)
	}
	if v := os.Getenv("PGBACKUP_TARGET_SCHEMA"); v != "" {
		c.Backup.TargetSchema = v
	}
	if v := os.Getenv("PGBACKUP_CLEAN_OUTPUT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Backup.CleanOutput = b
		}
	}

	if v := os.Getenv("PGBACKUP_SINK_PROVIDER"); v != "" {
		c.Sink.Provider = SinkProvider(v)
	}
	if v := os.Getenv("PGBACKUP_S3_BUCKET"); v != "" {
		c.Sink.S3.Bucket = v
	}
	if v := os.Getenv("PGBACKUP_S3_REGION"); v != "" {
		c.Sink.S3.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" && c.Sink.S3.AccessKey == "" {
		c.Sink.S3.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" && c.Sink.S3.SecretKey == "" {
		c.Sink.S3.SecretKey = v
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
