package engram

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a hybrid search over an ingested transcript",
	Long: `Search loads the transcript given with --transcript, then runs the
hybrid ranking pipeline (text, vector, graph, recency, cross-encoder)
against the resulting graph and prints the scored hits.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var (
	searchTranscript string
	searchSession    string
	searchLimit      int
	searchCenters    []string
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchTranscript, "transcript", "", "JSONL transcript to ingest before searching (required)")
	searchCmd.Flags().StringVar(&searchSession, "session", "", "restrict candidates to one session")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of hits (0 uses the configured limit)")
	searchCmd.Flags().StringSliceVar(&searchCenters, "center", nil, "node ids anchoring the graph-proximity signal")
	searchCmd.MarkFlagRequired("transcript")
}

// searchHit is the YAML form of one scored result.
type searchHit struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Content     string  `yaml:"content,omitempty"`
	Score       float64 `yaml:"score"`
	Explanation string  `yaml:"explanation"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	m, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := loadTranscript(cmd, m, searchTranscript, searchSession); err != nil {
		return err
	}

	results, err := m.Search(cmd.Context(), args[0], engram.SearchOptions{
		SessionID:     searchSession,
		CenterNodeIDs: searchCenters,
	})
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	if searchLimit > 0 && len(results) > searchLimit {
		results = results[:searchLimit]
	}

	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hit := searchHit{ID: r.ID, Score: r.Score, Explanation: r.Explanation}
		if n, err := m.GetNode(r.ID); err == nil {
			hit.Name = n.Name
			hit.Content = n.Content
		}
		hits = append(hits, hit)
	}
	return printYAML(hits)
}

// loadTranscript ingests a JSONL file into the engine, surfacing degraded
// episodes as warnings on stderr.
func loadTranscript(cmd *cobra.Command, m *engram.Manager, path, sessionOverride string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	contents, err := readTranscript(f, sessionOverride)
	if err != nil {
		return err
	}
	results, err := m.AddEpisodes(cmd.Context(), contents)
	if err != nil {
		return fmt.Errorf("ingesting transcript: %w", err)
	}
	for _, r := range results {
		for _, w := range r.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
	}
	return nil
}
