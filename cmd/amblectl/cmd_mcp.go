package main

import (
	"github.com/spf13/cobra"

	"amble/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp --user <key>",
	Short: "Serve the companion tools over MCP on stdio for one user",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	user, err := requireUser()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	s, _ := mcpserver.New(ctx, app.Registry, app.Store, user)
	return mcpserver.Serve(s)
}
