// Command-line entry point of the BLMC robot driver
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// blmc-driver runs N joints on BLMC motor boards over CAN.
//
// Usage:
//
//	blmc-driver run --config robot.yml [options]
//	blmc-driver check-config robot.yml
//	blmc-driver durations run_duration.log
//
// Examples:
//
//	# Home, move to the initial position and hold it until Ctrl-C
//	blmc-driver run --config robot.yml --metrics-addr :9100
//
//	# Validate a configuration without touching the hardware
//	blmc-driver check-config robot.yml
package main

import (
	"fmt"
	"os"
	"strings"

	"blmc-robot-go/pkg/log"

	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
	logFile   string

	// logCloser is the rotating log file, if any
	logCloser func() error
)

var rootCmd = &cobra.Command{
	Use:   "blmc-driver",
	Short: "Driver for robots built from BLMC motor boards",
	Long: `blmc-driver homes and drives the joints of a robot whose motors are
connected to BLMC boards on SocketCAN interfaces.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from BLMC_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotating file instead of stderr")

	rootCmd.AddCommand(runCmd, checkConfigCmd, durationsCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	var logger *log.Logger
	if logFile != "" {
		l, w, err := log.NewFileLogger("blmc", log.INFO, log.RotationConfig{
			Filename: logFile,
			Compress: true,
		})
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logger, logCloser = l, w.Close
	} else {
		logger = log.New("blmc")
	}
	log.ConfigureFromEnv(logger)

	if logLevel != "" {
		logger.SetLevel(log.ParseLevel(logLevel))
	}
	switch strings.ToLower(logFormat) {
	case "":
	case "text":
		logger.SetFormat(log.FormatText)
	case "json":
		logger.SetFormat(log.FormatJSON)
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}
	log.SetDefaultLogger(logger)
	return nil
}

// runCLI executes the root command and closes the log file afterwards,
// also when the command failed.
func runCLI() error {
	err := rootCmd.Execute()
	if logCloser != nil {
		if cerr := logCloser(); err == nil {
			err = cerr
		}
		logCloser = nil
	}
	return err
}

func main() {
	if err := runCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
