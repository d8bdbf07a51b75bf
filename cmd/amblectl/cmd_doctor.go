package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"amble/internal/preflight"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run the pre-flight checks the server runs at startup",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	app, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	results := preflight.NewChecker(app.Store, app.Config).RunAll(ctx)
	for _, r := range results {
		fmt.Printf("%-8s %-18s %s\n", r.Status, r.Name, r.Message)
	}
	if preflight.HasFailures(results) {
		return fmt.Errorf("pre-flight checks failed")
	}
	return nil
}
