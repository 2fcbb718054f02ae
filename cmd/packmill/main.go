package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/internal/logging"
	"github.com/packmill/packmill/internal/version"
)

var (
	configFiles     []string
	mergeConflicts  bool
	logLevel        = LogLevel(logging.LevelWarn)
	logFormat       string
	showProgressBar bool
)

// LogLevel is the --log-level flag value.
type LogLevel int

var logLevelIDs = map[LogLevel][]string{
	LogLevel(logging.LevelDebug): {"debug"},
	LogLevel(logging.LevelInfo):  {"info"},
	LogLevel(logging.LevelWarn):  {"warn", "warning"},
	LogLevel(logging.LevelError): {"error"},
}

var rootCmd = &cobra.Command{
	Use:           "packmill",
	Short:         "packmill bundles JavaScript modules",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", []string{"packmill.yaml"},
		"config file or directory (can be repeated; later files extend earlier ones)")
	rootCmd.PersistentFlags().BoolVar(&mergeConflicts, "merge-conflict-fail", false,
		"fail on conflicting scalar values when merging config files")
	rootCmd.PersistentFlags().VarP(
		enumflag.New(&logLevel, "level", logLevelIDs, enumflag.EnumCaseInsensitive),
		"log-level", "l", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText,
		"log format: json, text")
	rootCmd.PersistentFlags().BoolVar(&showProgressBar, "progress", false,
		"show a progress bar while building")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configSchemaCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}

func newLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Level:  int(logLevel),
		Format: logFormat,
	})
}

func loadConfig() (*config.Root, error) {
	merged, err := config.Merge(configFiles, mergeConflicts)
	if err != nil {
		return nil, err
	}
	return config.Parse(merged)
}
