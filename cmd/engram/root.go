// Package engram implements the engram command line interface. The engine
// is in-memory, so every command is one-shot: it loads a transcript, runs
// one operation, and prints the result as YAML.
package engram

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/engramdb/engram"
	"github.com/engramdb/engram/pkg/config"
)

var (
	cfgFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "engram",
		Short: "Engram: bi-temporal knowledge graph memory for conversational agents",
		Long: `Engram ingests conversation transcripts into a bi-temporal knowledge
graph and answers hybrid search and time-travel queries over it.

Commands load a JSONL transcript, run one operation against the resulting
graph, and print the outcome as YAML.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// newManager loads configuration and builds the engine.
func newManager(cmd *cobra.Command) (*engram.Manager, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("log-level") || rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	m, err := engram.New(cfg, engram.WithLogger(config.NewLogger(cfg.Log)))
	if err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}
	return m, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return enc.Close()
}

func printYAML(v any) error {
	return writeYAML(os.Stdout, v)
}
