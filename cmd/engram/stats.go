package engram

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print graph statistics for an ingested transcript",
	RunE:  runStats,
}

var (
	statsTranscript string
	statsSession    string
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsTranscript, "transcript", "", "JSONL transcript to ingest first (required)")
	statsCmd.Flags().StringVar(&statsSession, "session", "", "session id overriding the per-line session_id")
	statsCmd.MarkFlagRequired("transcript")
}

func runStats(cmd *cobra.Command, args []string) error {
	m, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := loadTranscript(cmd, m, statsTranscript, statsSession); err != nil {
		return err
	}

	stats := m.Stats()
	return printYAML(map[string]any{
		"nodes":         stats.NodeCount,
		"edges":         stats.EdgeCount,
		"nodes_by_type": stats.NodesByType,
		"edges_by_type": stats.EdgesByType,
		"communities":   stats.CommunityCount,
		"cache":         m.CacheStats(),
		"last_updated":  stats.LastUpdated,
	})
}
