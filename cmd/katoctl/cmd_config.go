package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kato/internal/config"
	"kato/internal/logging"

	"github.com/spf13/cobra"
)

var sessionConfigWatch bool

var sessionConfigCmd = &cobra.Command{
	Use:   "session-config <session-id> <config-file>",
	Short: "Replace a session's configuration from a YAML file",
	Long: `Loads config-file with config.LoadFile (starting from
config.DefaultConfig so unspecified fields keep their defaults) and
swaps it in for the named session's configuration. The session must
already exist (created by a prior observe).

With --watch, the process stays alive and re-applies config-file to the
session every time it changes on disk (config.Watch, fsnotify-backed),
until interrupted. A malformed edit is logged and ignored; the session
keeps its last good configuration.

Example:
  katoctl session-config sess1 ./session.yaml
  katoctl session-config sess1 ./session.yaml --watch`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, path := args[0], args[1]

		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		if err := eng.UpdateSessionConfig(sessionID, cfg); err != nil {
			return err
		}

		if !sessionConfigWatch {
			return nil
		}

		watcher, err := config.Watch(path, func(cfg *config.SessionConfiguration) {
			if err := eng.UpdateSessionConfig(sessionID, cfg); err != nil {
				logging.Get(logging.CategoryEngine).Warnw("session-config watch: reload rejected",
					"session_id", sessionID, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		defer watcher.Close()

		fmt.Fprintf(os.Stderr, "watching %s for changes to session %s, ctrl-c to stop\n", path, sessionID)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func init() {
	sessionConfigCmd.Flags().BoolVar(&sessionConfigWatch, "watch", false, "Keep running and hot-reload the session's configuration on file changes")
}
