package engram

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram"
	"github.com/engramdb/engram/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a JSONL transcript into the graph",
	Long: `Ingest reads a transcript in JSONL form, one episode per line:

  {"body": "...", "source": "chat", "timestamp": "2025-05-01T09:00:00Z", "session_id": "s1"}

and reports what each episode added to the graph. Reading from stdin is
the default when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var ingestSession string

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestSession, "session", "", "session id overriding the per-line session_id")
}

// episodeLine is the JSONL wire form of one transcript turn.
type episodeLine struct {
	Body      string    `json:"body"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// ingestReport is the YAML summary printed after ingestion.
type ingestReport struct {
	Episodes    int      `yaml:"episodes"`
	Entities    int      `yaml:"entities"`
	Edges       int      `yaml:"edges"`
	Communities int      `yaml:"communities"`
	Degraded    int      `yaml:"degraded"`
	Warnings    []string `yaml:"warnings,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	m, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	in := os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening transcript: %w", err)
		}
		defer f.Close()
		in = f
	}

	contents, err := readTranscript(in, ingestSession)
	if err != nil {
		return err
	}
	if len(contents) == 0 {
		return fmt.Errorf("transcript is empty")
	}

	results, err := m.AddEpisodes(cmd.Context(), contents)
	if err != nil {
		return fmt.Errorf("ingesting transcript: %w", err)
	}
	return printYAML(summarize(results))
}

// readTranscript parses JSONL episodes, applying the session override.
func readTranscript(r io.Reader, sessionOverride string) ([]types.EpisodeContent, error) {
	var contents []types.EpisodeContent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ep episodeLine
		if err := json.Unmarshal(raw, &ep); err != nil {
			return nil, fmt.Errorf("transcript line %d: %w", line, err)
		}
		if sessionOverride != "" {
			ep.SessionID = sessionOverride
		}
		if ep.Timestamp.IsZero() {
			ep.Timestamp = time.Now().UTC()
		}
		contents = append(contents, types.EpisodeContent{
			Body:      ep.Body,
			Source:    ep.Source,
			Timestamp: ep.Timestamp,
			SessionID: ep.SessionID,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return contents, nil
}

func summarize(results []*engram.EpisodeResult) ingestReport {
	report := ingestReport{Episodes: len(results)}
	communities := make(map[string]bool)
	for _, r := range results {
		report.Entities += len(r.Entities)
		report.Edges += len(r.Edges)
		for _, c := range r.Communities {
			communities[c.ID] = true
		}
		if r.Degraded {
			report.Degraded++
			report.Warnings = append(report.Warnings, r.Warnings...)
		}
	}
	report.Communities = len(communities)
	return report
}
