package cmd

import (
	"github.com/spf13/cobra"

	"github.com/epivar-cloud/epivar/cmd/reference"
	"github.com/epivar-cloud/epivar/cmd/start"
)

var cmds = []*cobra.Command{
	start.Cmd,
	reference.Cmd,
}

// Execute builds the command tree and executes commands.
func Execute() error {
	command := &cobra.Command{
		Use: "epivar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	for _, c := range cmds {
		command.AddCommand(c)
	}

	return command.Execute()
}
