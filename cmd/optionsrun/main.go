package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/optionsrun/internal/config"
	"github.com/sawpanic/optionsrun/internal/overlay"
)

const appName = "optionsrun"

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	configPath string
	logLevel   string
	output     string

	cfg *config.AppConfig
}

func bindGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level override (trace|debug|info|warn|error)")
	fs.StringVarP(&opts.output, "output", "o", outputAuto, "Output mode (auto|json|text)")
}

// setup loads configuration and applies the log level before any command runs
func (o *globalOptions) setup() error {
	switch o.output {
	case outputAuto, outputJSON, outputText:
	default:
		return fmt.Errorf("invalid output mode %q (want auto, json or text)", o.output)
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = strings.ToLower(o.logLevel)
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	o.cfg = cfg
	return nil
}

func (o *globalOptions) engine() overlay.Overlay {
	return overlay.New(o.cfg.Engine)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Options decision engine: regime, strategy, monitoring and review",
		Version: version,
		Long: `optionsrun classifies the market regime of an index from a snapshot, ranks
defined-risk option structures for it, monitors open trades against their entry
thesis and reviews closed trades.

Inputs are YAML or JSON files (use - for stdin). Output is JSON when piped and a
short human summary on a terminal; override with --output.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}

	bindGlobalFlags(rootCmd.PersistentFlags(), opts)

	rootCmd.AddCommand(
		newRegimeCmd(opts),
		newStrategiesCmd(opts),
		newMonitorCmd(opts),
		newAutopsyCmd(opts),
		newAnalyzeCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// version needs no configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (analysis schema %s)\n", appName, version, overlay.SchemaVersion)
		},
	}
}
