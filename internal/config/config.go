package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Raw file formats written for each work unit.
const (
	RawFormatCSV  = "csv"
	RawFormatXLSX = "xlsx"
)

// Config is the immutable run configuration. It is built once by Load and
// handed to every component; nothing reads it from package state.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Paths     PathsConfig     `yaml:"paths"`
	Run       RunConfig       `yaml:"run"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Log       LogConfig       `yaml:"log"`
}

type APIConfig struct {
	AuthURL string `yaml:"auth_url"`
	DataURL string `yaml:"data_url"`

	// Secrets come from the environment only.
	APIKey       string `yaml:"-"`
	ClientSecret string `yaml:"-"`

	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	FetchRetries   int           `yaml:"fetch_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

type PathsConfig struct {
	OutputDir string `yaml:"output_dir"`
	ErrorLog  string `yaml:"error_log"`
}

type RunConfig struct {
	Accounts     []string `yaml:"accounts"`
	LookbackDays int      `yaml:"lookback_days"`
	RawFormat    string   `yaml:"raw_format"`
}

// WarehouseConfig describes the BigQuery target. Project is the GCP project
// that owns the dataset and is billed for load jobs; Database and Schema are
// joined into the dataset name (TR_TEST + NT -> TR_TEST_NT).
type WarehouseConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Project         string `yaml:"project"`
	Database        string `yaml:"database"`
	Schema          string `yaml:"schema"`
	Table           string `yaml:"table"`
	Username        string `yaml:"username"`
	Warehouse       string `yaml:"warehouse"`
	Location        string `yaml:"location"`
	SchemaEvolution bool   `yaml:"schema_evolution"`
	// RecordFailures promotes load failures to error report entries. Off by
	// default: load failures are only logged.
	RecordFailures  bool   `yaml:"record_failures"`
	CredentialsFile string `yaml:"credentials_file"`
}

type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or environment
// overrides a value.
func Default() Config {
	return Config{
		API: APIConfig{
			FetchTimeout:   90 * time.Second,
			RetryBaseDelay: 2 * time.Second,
		},
		Run: RunConfig{
			LookbackDays: 1,
			RawFormat:    RawFormatCSV,
		},
		Warehouse: WarehouseConfig{
			Enabled:         true,
			Database:        "TR_TEST",
			Schema:          "NT",
			Table:           "ACCRUALS",
			Warehouse:       "COMPUTE_WH",
			SchemaEvolution: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path, the
// optional dotenv file and the process environment, in that order. Values
// already present in the environment win over the dotenv file.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("Load: reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("Load: parsing config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("Load: reading env file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("Load: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.API.APIKey = envString("NT_API_KEY", cfg.API.APIKey)
	cfg.API.ClientSecret = envString("NT_CLIENT_SECRET", cfg.API.ClientSecret)
	cfg.API.AuthURL = envString("NT_AUTH_URL", cfg.API.AuthURL)
	cfg.API.DataURL = envString("NT_DATA_URL", cfg.API.DataURL)

	cfg.Paths.OutputDir = envString("ACCRUALS_OUTPUT_DIR", cfg.Paths.OutputDir)
	cfg.Paths.ErrorLog = envString("ACCRUALS_ERROR_LOG", cfg.Paths.ErrorLog)

	if raw := os.Getenv("ACCRUALS_ACCOUNTS"); raw != "" {
		cfg.Run.Accounts = SplitAccounts(raw)
	}
	cfg.Run.RawFormat = envString("ACCRUALS_RAW_FORMAT", cfg.Run.RawFormat)

	var err error
	if cfg.Run.LookbackDays, err = envInt("ACCRUALS_LOOKBACK_DAYS", cfg.Run.LookbackDays); err != nil {
		return err
	}
	if cfg.API.FetchRetries, err = envInt("ACCRUALS_FETCH_RETRIES", cfg.API.FetchRetries); err != nil {
		return err
	}
	if cfg.API.FetchTimeout, err = envDuration("ACCRUALS_FETCH_TIMEOUT", cfg.API.FetchTimeout); err != nil {
		return err
	}
	if cfg.Warehouse.RecordFailures, err = envBool("WAREHOUSE_RECORD_FAILURES", cfg.Warehouse.RecordFailures); err != nil {
		return err
	}

	cfg.Warehouse.Project = envString("GOOGLE_CLOUD_PROJECT", cfg.Warehouse.Project)
	cfg.Warehouse.Database = envString("WAREHOUSE_DATABASE", cfg.Warehouse.Database)
	cfg.Warehouse.Schema = envString("WAREHOUSE_SCHEMA", cfg.Warehouse.Schema)
	cfg.Warehouse.Table = envString("WAREHOUSE_TABLE", cfg.Warehouse.Table)
	cfg.Warehouse.Location = envString("WAREHOUSE_LOCATION", cfg.Warehouse.Location)
	cfg.Warehouse.Username = envString("WAREHOUSE_USERNAME", cfg.Warehouse.Username)
	cfg.Warehouse.CredentialsFile = envString("WAREHOUSE_CREDENTIALS_FILE", cfg.Warehouse.CredentialsFile)
	cfg.Archive.Bucket = envString("ARCHIVE_BUCKET", cfg.Archive.Bucket)

	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("LOG_FORMAT", cfg.Log.Format)
	return nil
}

// Validate reports every problem that would stop a run from starting.
func (c Config) Validate() error {
	var errs []error

	if c.API.APIKey == "" {
		errs = append(errs, errors.New("NT_API_KEY is not set"))
	}
	if c.API.ClientSecret == "" {
		errs = append(errs, errors.New("NT_CLIENT_SECRET is not set"))
	}
	if c.API.AuthURL == "" {
		errs = append(errs, errors.New("api.auth_url is required"))
	}
	if c.API.DataURL == "" {
		errs = append(errs, errors.New("api.data_url is required"))
	}
	if c.API.FetchTimeout <= 0 {
		errs = append(errs, errors.New("api.fetch_timeout must be positive"))
	}
	if c.API.FetchRetries < 0 {
		errs = append(errs, errors.New("api.fetch_retries must not be negative"))
	}
	if c.Paths.OutputDir == "" {
		errs = append(errs, errors.New("paths.output_dir is required"))
	}
	if c.Paths.ErrorLog == "" {
		errs = append(errs, errors.New("paths.error_log is required"))
	}
	if len(c.Run.Accounts) == 0 {
		errs = append(errs, errors.New("run.accounts must list at least one account"))
	}
	if c.Run.LookbackDays < 1 {
		errs = append(errs, errors.New("run.lookback_days must be at least 1"))
	}
	if c.Run.RawFormat != RawFormatCSV && c.Run.RawFormat != RawFormatXLSX {
		errs = append(errs, fmt.Errorf("run.raw_format %q is not csv or xlsx", c.Run.RawFormat))
	}
	if c.Warehouse.Enabled {
		if c.Warehouse.Database == "" || c.Warehouse.Schema == "" || c.Warehouse.Table == "" {
			errs = append(errs, errors.New("warehouse database, schema and table are required when loading is enabled"))
		}
		switch {
		case c.Warehouse.Project == "":
			errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT is not set"))
		case !projectIDPattern.MatchString(c.Warehouse.Project):
			errs = append(errs, fmt.Errorf("warehouse.project %q is not a valid GCP project ID", c.Warehouse.Project))
		}
	}

	return errors.Join(errs...)
}

// projectIDPattern matches GCP project IDs: 6 to 30 lowercase letters,
// digits or hyphens, starting with a letter and not ending with a hyphen.
var projectIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)

// SplitAccounts parses a comma separated account list, dropping blanks.
func SplitAccounts(raw string) []string {
	var accounts []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			accounts = append(accounts, a)
		}
	}
	return accounts
}

func envString(name, fallback string) string {
	if raw := os.Getenv(name); raw != "" {
		return raw
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func envBool(name string, fallback bool) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
