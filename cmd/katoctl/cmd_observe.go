package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"kato/internal/config"
	"kato/internal/session"
	"kato/internal/symbol"

	"github.com/spf13/cobra"
)

var (
	observeConfigPath string
	observeUniqueID   string
)

var observeCmd = &cobra.Command{
	Use:   "observe <library-id> <session-id> <symbol...>",
	Short: "Feed one observation into a session's short-term memory",
	Long: `Canonicalizes the given symbol strings into an Event and appends
it to the session's STM, creating the session with default (or --config)
settings on first use. Triggers auto-learn per the session's configured
max_pattern_length/stm_mode.

Passing "-" as <session-id> generates a fresh one (github.com/google/uuid)
instead of reusing an existing session.

Example:
  katoctl observe lib1 sess1 a b
  katoctl observe lib1 - a b
  katoctl observe lib1 sess1 --unique-id evt-42 c`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		libraryID, sessionID := args[0], resolveSessionID(args[1])
		strs := args[2:]

		cfg, err := loadSessionConfig(observeConfigPath)
		if err != nil {
			return err
		}

		obs := symbol.Observation{Strings: strs, UniqueID: observeUniqueID}
		res, err := eng.Observe(cmd.Context(), sessionID, libraryID, cfg, obs)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var observeSequenceCmd = &cobra.Command{
	Use:   "observe-sequence <library-id> <session-id> <event...>",
	Short: "Feed a sequence of observations, one Event per comma-separated event",
	Long: `Each <event> argument is a comma-separated list of symbol strings
forming one Event, e.g. "a,b" observes the Event ["a","b"]. Use --learn-at-end
or --learn-after-each to control when auto-learn would otherwise not fire
(spec observe_sequence options); --clear-between clears STM after every
observation in the sequence, whether or not a learn ran.

Passing "-" as <session-id> generates a fresh one (github.com/google/uuid).

Example:
  katoctl observe-sequence lib1 sess1 --learn-at-end a b,c d`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		libraryID, sessionID := args[0], resolveSessionID(args[1])

		cfg, err := loadSessionConfig(observeConfigPath)
		if err != nil {
			return err
		}

		obs := make([]symbol.Observation, 0, len(args)-2)
		for _, raw := range args[2:] {
			obs = append(obs, symbol.Observation{Strings: strings.Split(raw, ",")})
		}

		opts := session.SequenceOptions{
			LearnAfterEach:  observeLearnAfterEach,
			LearnAtEnd:      observeLearnAtEnd,
			ClearSTMBetween: observeClearBetween,
		}

		results, err := eng.ObserveSequence(cmd.Context(), sessionID, libraryID, cfg, obs, opts)
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

var (
	observeLearnAfterEach bool
	observeLearnAtEnd     bool
	observeClearBetween   bool
)

func init() {
	observeCmd.Flags().StringVar(&observeConfigPath, "config", "", "YAML session configuration file (defaults to config.DefaultConfig())")
	observeCmd.Flags().StringVar(&observeUniqueID, "unique-id", "", "Caller-supplied unique_id for this observation")

	observeSequenceCmd.Flags().StringVar(&observeConfigPath, "config", "", "YAML session configuration file")
	observeSequenceCmd.Flags().BoolVar(&observeLearnAfterEach, "learn-after-each", false, "Learn after every observation in the sequence")
	observeSequenceCmd.Flags().BoolVar(&observeLearnAtEnd, "learn-at-end", false, "Learn once after the whole sequence has been observed")
	observeSequenceCmd.Flags().BoolVar(&observeClearBetween, "clear-between", false, "Clear STM after every observation in the sequence")
}

// resolveSessionID lets a caller ask for a fresh session by passing "-"
// instead of an existing session ID, printing the generated ID to stderr
// so it isn't lost.
func resolveSessionID(raw string) string {
	if raw != "-" {
		return raw
	}
	id := session.NewSessionID()
	fmt.Fprintf(os.Stderr, "generated session id: %s\n", id)
	return id
}

func loadSessionConfig(path string) (*config.SessionConfiguration, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFile(path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
