package main

import (
	"github.com/spf13/cobra"
)

var clearSTMCmd = &cobra.Command{
	Use:   "clear-stm <session-id>",
	Short: "Clear a session's short-term memory without learning it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eng.ClearSTM(args[0])
	},
}

var clearAllCmd = &cobra.Command{
	Use:   "clear-all <library-id>",
	Short: "Drop every pattern and index entry for a library",
	Long: `Irreversibly deletes every learned pattern for library-id, along
with its Candidate Index entries. Session short-term memories are left
untouched since they belong to sessions, not libraries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eng.ClearAll(cmd.Context(), args[0])
	},
}
