package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/navikt/bqinspect/pkg/bq"
	"github.com/navikt/bqinspect/pkg/config"
	"github.com/navikt/bqinspect/pkg/credentials"
	"github.com/navikt/bqinspect/pkg/inspector"
)

type flags struct {
	configFile string
	project    string
	logLevel   string
}

// NewRootCommand builds the bqinspect command tree. Everything the
// commands need is constructed per invocation, so the process holds no
// state between runs.
func NewRootCommand() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "bqinspect",
		Short: "Inspect BigQuery datasets, tables, schemas and query results",
		Long: `bqinspect is a read-only command line tool for exploring a BigQuery
project: list its datasets, list the tables in a dataset, describe a
table's schema, and preview query results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&f.configFile, "config", "", "path to a config file (default "+config.DefaultFileName+".yaml in the working directory)")
	root.PersistentFlags().StringVar(&f.project, "project", "", "GCP project to inspect, overrides the config and credential defaults")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")

	root.AddCommand(
		newListDatasetsCommand(f),
		newListTablesCommand(f),
		newGetSchemaCommand(f),
		newRunQueryCommand(f),
	)

	return root
}

func loadConfig(f *flags) (config.Config, error) {
	name, path := config.DefaultFileName, "."
	loader := config.NewOptionalFileSystemLoader()

	if f.configFile != "" {
		parts, err := config.ProcessConfigPath(f.configFile)
		if err != nil {
			return config.Config{}, err
		}

		name, path = parts.FileName, parts.Path
		loader = config.NewFileSystemLoader()
	}

	cfg, err := loader.Load(name, path, config.DefaultEnvPrefix, config.NewDefaultEnvBinder())
	if err != nil {
		return config.Config{}, err
	}

	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	err = cfg.Validate()
	if err != nil {
		return config.Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// newInspector wires the full stack for one invocation: config,
// logger, credential provider, client, service.
func newInspector(f *flags) (*inspector.Service, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	// Logs go to stderr so stdout stays clean for the rendered tables.
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)

	creds := credentials.NewEnvProvider(cfg.Credentials.File, log)
	client := bq.NewClient(cfg.BigQuery.EndpointOverride, !cfg.BigQuery.DisableAuth, creds, log)

	return inspector.New(client, creds, cfg.Project, cfg.PreviewRows, log), nil
}
