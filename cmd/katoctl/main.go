// Package main implements katoctl, the CLI driver for the KATO engine.
//
// This file is the entry point and command registration hub; each
// subcommand lives in its own cmd_*.go file:
//
//	cmd_observe.go  - observe, observe-sequence
//	cmd_learn.go    - learn
//	cmd_predict.go  - predict
//	cmd_clear.go    - clear-stm, clear-all
//	cmd_pattern.go  - get-pattern
//	cmd_config.go   - session-config
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"kato/internal/engine"
	"kato/internal/index"
	"kato/internal/logging"
	"kato/internal/pattern"
	"kato/internal/vectorstore"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var (
	// Global flags
	verbose  bool
	dataDir  string
	logLevel string

	// Shared engine, built once in PersistentPreRunE.
	eng       *engine.Engine
	patternDB *sql.DB
	vectorDB  vectorstore.Store
)

var rootCmd = &cobra.Command{
	Use:   "katoctl",
	Short: "katoctl - KATO symbolic sequence engine CLI",
	Long: `katoctl drives the KATO engine from the command line: feed
observations into a session, trigger learning, and ask for predictions
against the patterns a library has accumulated so far.

Data persists under --data-dir (default ./.kato); pass --data-dir "" to
run entirely in memory for one-off experiments.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if verbose {
			level = "debug"
		}
		if err := logging.Init(logging.Options{Development: true, Level: level}); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}

		patterns, vectors, idxCfg, err := openStores(dataDir)
		if err != nil {
			return fmt.Errorf("open stores: %w", err)
		}
		vectorDB = vectors
		eng = engine.New(patterns, vectors, idxCfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if vectorDB != nil {
			_ = vectorDB.Close()
		}
		if patternDB != nil {
			_ = patternDB.Close()
		}
		logging.Sync()
	},
}

// openStores builds the pattern and vector stores katoctl runs against.
// An empty dir means in-memory only, for scripting/tests; otherwise a
// SQLite pattern store (pure-Go modernc.org/sqlite driver, grounded on
// the dual-driver SQLiteStore contract) and a sqlite-vec vector store
// live under dir.
func openStores(dir string) (pattern.Store, vectorstore.Store, index.Config, error) {
	idxCfg := index.Config{BloomFalsePositiveRate: 0.01, MinHashNumHashes: 100}

	if dir == "" {
		return pattern.NewMemoryStore(), vectorstore.NewMemoryStore(), idxCfg, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, idxCfg, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "patterns.db"))
	if err != nil {
		return nil, nil, idxCfg, err
	}
	patternDB = db
	patterns, err := pattern.NewSQLiteStore(db)
	if err != nil {
		return nil, nil, idxCfg, err
	}

	vectors, err := vectorstore.OpenSQLiteVecStore(filepath.Join(dir, "vectors.db"))
	if err != nil {
		return nil, nil, idxCfg, err
	}

	return patterns, vectors, idxCfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".kato", "Directory for persisted patterns/vectors (empty for in-memory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		observeCmd,
		observeSequenceCmd,
		learnCmd,
		predictCmd,
		clearSTMCmd,
		clearAllCmd,
		getPatternCmd,
		sessionConfigCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
