package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"amble/internal/store"
	"amble/internal/wellness"
)

var analyzeDays int

var analyzeCmd = &cobra.Command{
	Use:   "analyze --user <key>",
	Short: "Print the wellness pattern report for a user",
	Args:  cobra.NoArgs,
	RunE:  runAnalyze,
}

var alertDays int

var alertsCmd = &cobra.Command{
	Use:   "alerts --user <key>",
	Short: "List alerts recorded for a user",
	Args:  cobra.NoArgs,
	RunE:  runAlerts,
}

func init() {
	analyzeCmd.Flags().IntVarP(&analyzeDays, "days", "d", wellness.DefaultLookbackDays, "Lookback window in days (1-90)")
	alertsCmd.Flags().IntVarP(&alertDays, "days", "d", 7, "How many days of alerts to list")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	user, err := requireUser()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	app, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Analyzer.Analyze(ctx, user, wellness.ClampLookback(analyzeDays), time.Now())
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runAlerts(cmd *cobra.Command, args []string) error {
	user, err := requireUser()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	app, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	list, err := app.Store.ListAlerts(ctx, user, store.Recent(time.Now(), time.Duration(alertDays)*24*time.Hour))
	if err != nil {
		return err
	}
	return printJSON(list)
}
