package main

import (
	"github.com/spf13/cobra"
)

var predictCmd = &cobra.Command{
	Use:   "predict <session-id>",
	Short: "Predict against the session's current STM",
	Long: `Runs the full filter -> similarity -> segmentation -> metric ->
rank pipeline over the session's STM and prints the resulting envelope
(predictions, future_potentials, count) as JSON. An empty STM prints an
empty envelope rather than an error.

Example:
  katoctl predict sess1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := eng.Predict(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(env)
	},
}
