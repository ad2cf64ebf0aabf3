package engram

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram"
	"github.com/engramdb/engram/pkg/types"
)

func TestReadTranscript(t *testing.T) {
	input := strings.Join([]string{
		`{"body": "Alice joined Acme", "source": "chat", "timestamp": "2025-05-01T09:00:00Z", "session_id": "s1"}`,
		``,
		`{"body": "Acme shipped a robot", "source": "chat", "timestamp": "2025-05-02T09:00:00Z", "session_id": "s2"}`,
	}, "\n")

	contents, err := readTranscript(strings.NewReader(input), "")
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "Alice joined Acme", contents[0].Body)
	assert.Equal(t, "s1", contents[0].SessionID)
	assert.Equal(t, time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC), contents[0].Timestamp)
	assert.Equal(t, "s2", contents[1].SessionID)
}

func TestReadTranscriptSessionOverride(t *testing.T) {
	input := `{"body": "hello", "source": "chat", "session_id": "original"}`
	contents, err := readTranscript(strings.NewReader(input), "forced")
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "forced", contents[0].SessionID)
	assert.False(t, contents[0].Timestamp.IsZero(), "missing timestamp defaults to now")
}

func TestReadTranscriptRejectsBadLine(t *testing.T) {
	input := "{\"body\": \"ok\", \"session_id\": \"s\"}\nnot json\n"
	_, err := readTranscript(strings.NewReader(input), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestSummarize(t *testing.T) {
	c := &types.Community{ID: "c1"}
	results := []*engram.EpisodeResult{
		{
			Entities:    []*types.Node{{ID: "n1"}, {ID: "n2"}},
			Edges:       []*types.Edge{{ID: "e1"}},
			Communities: []*types.Community{c},
		},
		{
			Entities:    []*types.Node{{ID: "n3"}},
			Communities: []*types.Community{c},
			Degraded:    true,
			Warnings:    []string{"extraction failed"},
		},
	}

	report := summarize(results)
	assert.Equal(t, 2, report.Episodes)
	assert.Equal(t, 3, report.Entities)
	assert.Equal(t, 1, report.Edges)
	assert.Equal(t, 1, report.Communities, "shared community counted once")
	assert.Equal(t, 1, report.Degraded)
	assert.Equal(t, []string{"extraction failed"}, report.Warnings)
}
