package main

import (
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool catalogue the model is offered",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := open(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer app.Close()
		return printJSON(app.Registry.ListDetailed())
	},
}
