package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/dvloznov/nt-accruals/internal/config"
	"github.com/dvloznov/nt-accruals/internal/domain"
	"github.com/dvloznov/nt-accruals/internal/errreport"
	"github.com/dvloznov/nt-accruals/internal/fundapi"
	"github.com/dvloznov/nt-accruals/internal/gcsuploader"
	infra "github.com/dvloznov/nt-accruals/internal/infra/bigquery"
	"github.com/dvloznov/nt-accruals/internal/logger"
	"github.com/dvloznov/nt-accruals/internal/pipeline"
	"github.com/dvloznov/nt-accruals/internal/rawstore"
)

type runFlags struct {
	configPath   string
	envFile      string
	accounts     string
	lookbackDays int
	asOf         string
	skipLoad     bool
	logLevel     string
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, store and load accruals for every account and date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, asOf, err := buildConfig(cmd, f)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runAccruals(ctx, cfg, asOf)
		},
	}

	bindRunFlags(cmd, f)
	return cmd
}

func bindRunFlags(cmd *cobra.Command, f *runFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&f.envFile, "env-file", ".env", "dotenv file with secrets; ignored when missing")
	flags.StringVar(&f.accounts, "accounts", "", "comma separated account list (overrides config)")
	flags.IntVar(&f.lookbackDays, "lookback-days", 0, "number of business dates to fetch, counting back from --as-of")
	flags.StringVar(&f.asOf, "as-of", "", "most recent date to fetch as YYYY-MM-DD (default yesterday)")
	flags.BoolVar(&f.skipLoad, "skip-load", false, "write raw files without loading the warehouse")
	flags.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
}

// buildConfig loads the configuration and applies flags the user set. It
// returns the validated config and the as-of date, zero when not given.
func buildConfig(cmd *cobra.Command, f *runFlags) (config.Config, civil.Date, error) {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return config.Config{}, civil.Date{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("accounts") {
		cfg.Run.Accounts = config.SplitAccounts(f.accounts)
	}
	if flags.Changed("lookback-days") {
		cfg.Run.LookbackDays = f.lookbackDays
	}
	if flags.Changed("skip-load") && f.skipLoad {
		cfg.Warehouse.Enabled = false
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}

	var asOf civil.Date
	if f.asOf != "" {
		if asOf, err = civil.ParseDate(f.asOf); err != nil {
			return config.Config{}, civil.Date{}, fmt.Errorf("invalid --as-of: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, civil.Date{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, asOf, nil
}

func runAccruals(ctx context.Context, cfg config.Config, asOf civil.Date) error {
	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	ctx = logger.WithContext(ctx, log)

	deps := pipeline.Deps{
		Fetcher: fundapi.NewClient(fundapi.Options{
			AuthURL:        cfg.API.AuthURL,
			DataURL:        cfg.API.DataURL,
			APIKey:         cfg.API.APIKey,
			ClientSecret:   cfg.API.ClientSecret,
			FetchTimeout:   cfg.API.FetchTimeout,
			FetchRetries:   cfg.API.FetchRetries,
			RetryBaseDelay: cfg.API.RetryBaseDelay,
		}),
		Writer:    newRawWriter(cfg),
		Collector: errreport.NewCollector(cfg.Paths.ErrorLog),
	}

	var gcpOpts []option.ClientOption
	if cfg.Warehouse.CredentialsFile != "" {
		gcpOpts = append(gcpOpts, option.WithCredentialsFile(cfg.Warehouse.CredentialsFile))
	}

	if cfg.Warehouse.Enabled {
		loader, err := infra.NewBigQueryLoader(ctx, cfg.Warehouse.Project, cfg.Warehouse.Location, gcpOpts...)
		if err != nil {
			return fmt.Errorf("creating warehouse loader: %w", err)
		}
		defer loader.Close()
		deps.Loader = loader
	} else {
		log.Info().Msg("Warehouse load disabled")
	}

	if cfg.Archive.Bucket != "" {
		uploader, err := gcsuploader.NewUploader(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix, gcpOpts...)
		if err != nil {
			return fmt.Errorf("creating archive uploader: %w", err)
		}
		defer uploader.Close()
		deps.Archiver = uploader
	}

	runner := pipeline.NewRunner(deps, pipeline.Options{
		Accounts:     cfg.Run.Accounts,
		LookbackDays: cfg.Run.LookbackDays,
		AsOf:         asOf,
		Target: domain.Target{
			Database: cfg.Warehouse.Database,
			Schema:   cfg.Warehouse.Schema,
			Table:    cfg.Warehouse.Table,
		},
		LoadOptions: domain.LoadOptions{
			Username:        cfg.Warehouse.Username,
			Warehouse:       cfg.Warehouse.Warehouse,
			SchemaEvolution: cfg.Warehouse.SchemaEvolution,
		},
		RecordLoadFailures: cfg.Warehouse.RecordFailures,
	})

	summary, runErr := runner.Run(ctx)
	if summary.Attempted > 0 {
		if _, err := runner.LogUnitOutcomes(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to read unit ledger")
		}
	}
	if runErr != nil {
		return runErr
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("failed", summary.Failed).
		Int("load_failures", summary.LoadFailures).
		Bool("report_written", summary.ReportWritten).
		Msg("Process completed")
	return nil
}

func newRawWriter(cfg config.Config) rawstore.Writer {
	if cfg.Run.RawFormat == config.RawFormatXLSX {
		return rawstore.NewExcelWriter(cfg.Paths.OutputDir)
	}
	return rawstore.NewCSVWriter(cfg.Paths.OutputDir)
}
