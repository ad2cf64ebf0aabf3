package engram

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram"
	"github.com/engramdb/engram/pkg/types"
)

var communitiesCmd = &cobra.Command{
	Use:   "communities",
	Short: "Detect and list entity communities in an ingested transcript",
	Long: `Communities loads the transcript given with --transcript, runs full
label propagation over the entity subgraph, and prints the detected
communities with their labels.`,
	RunE: runCommunities,
}

var (
	communitiesTranscript string
	communitiesSession    string
)

func init() {
	rootCmd.AddCommand(communitiesCmd)
	communitiesCmd.Flags().StringVar(&communitiesTranscript, "transcript", "", "JSONL transcript to ingest first (required)")
	communitiesCmd.Flags().StringVar(&communitiesSession, "session", "", "restrict detection to one session")
	communitiesCmd.MarkFlagRequired("transcript")
}

// communityView is the YAML form of one detected community.
type communityView struct {
	ID         string    `yaml:"id"`
	Label      string    `yaml:"label"`
	Confidence float64   `yaml:"confidence"`
	Members    []string  `yaml:"members"`
	Divergence float64   `yaml:"divergence"`
	UpdatedAt  time.Time `yaml:"updated_at"`
}

func runCommunities(cmd *cobra.Command, args []string) error {
	m, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := loadTranscript(cmd, m, communitiesTranscript, communitiesSession); err != nil {
		return err
	}

	communities, err := m.DetectCommunities(cmd.Context(), communitiesSession)
	if err != nil {
		return fmt.Errorf("detecting communities: %w", err)
	}

	views := make([]communityView, 0, len(communities))
	for _, c := range communities {
		views = append(views, communityView{
			ID:         c.ID,
			Label:      c.Label,
			Confidence: c.Confidence,
			Members:    memberNames(m, c),
			Divergence: c.Meta.DivergenceScore,
			UpdatedAt:  c.Meta.LastUpdateTime,
		})
	}
	return printYAML(views)
}

// memberNames resolves member ids to names for readable output.
func memberNames(m *engram.Manager, c *types.Community) []string {
	names := make([]string, 0, len(c.Members))
	for _, id := range c.Members {
		if n, err := m.GetNode(id); err == nil {
			names = append(names, n.Name)
		} else {
			names = append(names, id)
		}
	}
	return names
}
