// Command amblectl runs companion operations from a terminal: wellness
// analysis, scheduler jobs, a chat loop and an MCP stdio server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"amble/internal/bootstrap"
	"amble/internal/config"
	"amble/internal/logging"
)

var (
	envFile string
	timeout time.Duration
	verbose bool
	userKey string
)

var rootCmd = &cobra.Command{
	Use:           "amblectl",
	Short:         "Operate the Amble companion from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(envFile); err != nil && verbose {
			log.Printf("⚠️  No env file loaded from %s: %v", envFile, err)
		}
		logging.InitTo(os.Stderr)
		if !verbose {
			log.SetOutput(io.Discard)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Env file to load before reading configuration")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&userKey, "user", "u", "", "User key the command acts for")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// open wires the application. requireModel is set by commands that run turns.
func open(ctx context.Context, requireModel bool) (*bootstrap.Components, error) {
	return bootstrap.Build(ctx, config.Load(), bootstrap.Options{RequireModel: requireModel})
}

func requireUser() (string, error) {
	if userKey == "" {
		return "", fmt.Errorf("--user is required")
	}
	return userKey, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
