package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iota-uz/backoffice/pkg/commands"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "audit-cli",
		Short:         "Edit grant and audit trail maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(commands.NewUtilityCommands()...)
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newGrantsCmd())
	cmd.AddCommand(newResourceCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
