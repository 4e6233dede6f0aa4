// check-config and durations commands
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"time"

	"blmc-robot-go/pkg/config"
	"blmc-robot-go/pkg/driver"

	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config <file>",
	Short: "Load and validate a robot configuration and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := config.LoadFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		return res.Config.Print(out)
	},
}

var durationsCmd = &cobra.Command{
	Use:   "durations <file>...",
	Short: "Print run duration logs and the total number of actions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range args {
			entries, err := driver.ReadRunDurationLog(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s:\n", name)
			for _, e := range entries {
				fmt.Fprintf(out, "  %s  %d\n", e.Time.UTC().Format(time.RFC3339), e.Actions)
			}
			fmt.Fprintf(out, "  total %d actions in %d runs\n", driver.TotalActions(entries), len(entries))
		}
		return nil
	},
}
