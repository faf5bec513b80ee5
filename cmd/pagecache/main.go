package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	pagecache "github.com/Aazib-Ai/UOLink-App-sub002"
	"github.com/Aazib-Ai/UOLink-App-sub002/cache"
)

var (
	// global flags
	configFilenameFlag string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// overridable at build time via -ldflags
	version string
)

var rootCmd = &cobra.Command{
	Use:           "pagecache",
	Short:         "Two-tier page cache with background revalidation",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFilenameFlag, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dbFilenameFlag, "db", "", "Cache DB file name (use 'memory' for in-memory db)")
	rootCmd.PersistentFlags().BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	rootCmd.PersistentFlags().StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	rootCmd.AddCommand(serveCmd, statsCmd)

	if version == "" {
		version = "DEV"
	}
	rootCmd.Version = version
}

func setupLogging() {
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// log to stdout, also to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		logFile, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open log file")
		}
		logOutputs = append(logOutputs, logFile)
	}
	log.Logger = log.Level(logLevel).Output(zerolog.MultiLevelWriter(logOutputs...))
}

// getOptions merges the config file (if given) with flag overrides.
func getOptions() (pagecache.Options, error) {
	opts := pagecache.Options{Config: cache.DefaultConfig()}
	if configFilenameFlag != "" {
		loaded, err := pagecache.LoadOptions(configFilenameFlag)
		if err != nil {
			return opts, fmt.Errorf("could not load config: %w", err)
		}
		opts = loaded
	}
	opts.Logger = log.Logger
	if dbFilenameFlag != "" {
		if dbFilenameFlag == "memory" {
			opts.Config.EnablePersistence = false
		} else {
			opts.DBFile = dbFilenameFlag
		}
	}
	return opts, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
