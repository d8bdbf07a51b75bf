package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"amble/internal/bootstrap"
	"amble/internal/orchestrator"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat --user <key> [message]",
	Short: "Talk to the companion as a user",
	Long: `With a message argument, runs one turn and prints the reply.
Without one, reads lines from stdin until an empty line or EOF.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "Continue an existing session id")
}

func runChat(cmd *cobra.Command, args []string) error {
	user, err := requireUser()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := open(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	if len(args) > 0 {
		_, err := turn(ctx, app, user, chatSession, strings.Join(args, " "))
		return err
	}

	sessionID := chatSession
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !in.Scan() {
			fmt.Println()
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			return nil
		}
		if sessionID, err = turn(ctx, app, user, sessionID, line); err != nil {
			return err
		}
	}
}

func turn(ctx context.Context, app *bootstrap.Components, user, sessionID, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := app.Turns.RunTurn(ctx, orchestrator.TurnRequest{
		UserKey:   user,
		SessionID: sessionID,
		Message:   message,
	})
	if err != nil {
		return sessionID, err
	}

	fmt.Printf("amble> %s\n", res.Text)
	if len(res.Actions) > 0 {
		names := make([]string, len(res.Actions))
		for i, a := range res.Actions {
			names[i] = string(a)
		}
		fmt.Printf("       (updated: %s)\n", strings.Join(names, ", "))
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "session %s, %d memories used\n", res.SessionID, res.MemoriesUsed)
	}
	return res.SessionID, nil
}
