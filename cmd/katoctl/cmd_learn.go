package main

import (
	"github.com/spf13/cobra"
)

var learnCmd = &cobra.Command{
	Use:   "learn <session-id>",
	Short: "Explicitly learn the session's current STM as a pattern",
	Long: `Stores the session's current short-term memory as a pattern
(incrementing frequency on relearn) and prints the resulting pattern
name. Errors if the STM is empty.

Example:
  katoctl learn sess1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := eng.Learn(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"pattern_name": name})
	},
}
