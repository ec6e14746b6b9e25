// Package cli implements the strata command line.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stratamem/strata/internal/config"
	"github.com/stratamem/strata/internal/logging"
	"github.com/stratamem/strata/internal/store"
)

var (
	flagConfig   string
	flagDB       string
	flagLogLevel string
	flagPretty   bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Tiered persistent memory for autonomous agents",
	Long: "Strata stores agent memories as chunks in working, short-term, long-term and\n" +
		"episodic tiers, with full-text and semantic search and automatic lifecycle\n" +
		"maintenance. Single Go binary, single SQLite file.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real env vars win either way.
		_ = godotenv.Load()

		path := flagConfig
		if path == "" {
			if p, err := config.DefaultPath(); err == nil {
				path = p
			}
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if flagDB != "" {
			cfg.Database.Path = flagDB
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}

		logging.Setup(cfg.LogLevel, flagPretty)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.strata/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default ~/.strata/strata.db)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagPretty, "pretty", false, "human-readable log output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(embedTagsCmd)
}

// openStore opens the configured database.
func openStore() (*store.MemoryStore, error) {
	path := cfg.Database.Path
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	sc := store.DefaultConfig(path)
	sc.EmbeddingDims = cfg.Embedding.Dimensions
	if cfg.Database.EnableFTS != nil {
		sc.EnableFTS = *cfg.Database.EnableFTS
	}
	if cfg.Database.EnableVector != nil {
		sc.EnableVector = *cfg.Database.EnableVector
	}
	if cfg.Database.VectorBackend != "" {
		sc.VectorBackend = cfg.Database.VectorBackend
	}

	st, err := store.Open(sc)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
