package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jward/bisque/internal/config"
	"github.com/jward/bisque/internal/logging"
)

var (
	flagConfig   string
	flagFormat   string
	flagLogLevel string
)

// Set by PersistentPreRunE for every subcommand.
var (
	cfg       *config.Config
	logger    = zerolog.Nop()
	logCloser io.Closer
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "bisque",
	Short:         "Provenance-keyed build cache for batch pipelines",
	Long:          "Bisque keys every input and computed result of a pipeline by its provenance, runs only the jobs whose keys have no stored result, and records what it built in a SQLite ledger.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.FileName, "config file path")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level override: trace|debug|info|warn|error")

	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(lsCmd)
}

// setup loads the config file and builds the logger.
func setup() error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagLogLevel != "" {
		c.Log.Level = flagLogLevel
	}
	l, closer, err := logging.New(c.Log)
	if err != nil {
		return err
	}
	if logCloser != nil {
		logCloser.Close()
	}
	cfg, logger, logCloser = c, l, closer
	return nil
}
