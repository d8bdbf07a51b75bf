package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger scheduler jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered jobs and their schedules",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run a job for every user now, ignoring its schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRun,
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRunCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	app, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEDULE\tDESCRIPTION")
	for _, st := range app.Scheduler.GetStatus() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", st.Name, st.Schedule, st.Description)
	}
	return w.Flush()
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	app, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	users, err := app.Scheduler.RunNow(ctx, args[0])
	fmt.Printf("%s ran for %d user(s)\n", args[0], users)
	return err
}
