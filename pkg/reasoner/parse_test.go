package reasoner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFromFence(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"label\": \"work\", \"confidence\": 0.8}\n```\nDone."
	doc, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label": "work", "confidence": 0.8}`, doc)
}

func TestExtractJSONStripsThinkTags(t *testing.T) {
	raw := "<think>{not json}</think>{\"label\": \"x\", \"confidence\": 1}"
	doc, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label": "x", "confidence": 1}`, doc)
}

func TestExtractJSONRepairsTruncatedOutput(t *testing.T) {
	raw := `{"entities": [{"name": "Alice", "confidence": 0.9}`
	doc, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.Contains(t, doc, "Alice")
}

func TestExtractJSONNoDocument(t *testing.T) {
	_, err := ExtractJSON("I could not produce any output, sorry.")
	assert.Error(t, err)
}

func TestParseResultExtractionFiltersLowConfidence(t *testing.T) {
	raw := `{
		"entities": [
			{"name": "Alice", "confidence": 0.9},
			{"name": "Maybe", "confidence": 0.1}
		],
		"relationships": [
			{"source_name": "Alice", "target_name": "Maybe", "name": "knows", "confidence": 0.9},
			{"source_name": "Alice", "target_name": "Alice", "name": "self", "confidence": 0.05}
		]
	}`
	result := ParseResult(TaskExtraction, raw)
	extraction, ok := result.(ExtractionResult)
	require.True(t, ok, "got %T", result)
	require.Len(t, extraction.Entities, 1)
	assert.Equal(t, "Alice", extraction.Entities[0].Name)
	assert.Empty(t, extraction.Relationships,
		"relationships pointing at filtered entities must be dropped too")
}

func TestParseResultDedupe(t *testing.T) {
	raw := `{"duplicates": [
		{"extracted_name": "Bob", "existing_id": "n-42", "confidence": 0.95},
		{"extracted_name": "", "existing_id": "n-1", "confidence": 0.9},
		{"extracted_name": "Eve", "existing_id": "n-7", "confidence": 0.1}
	]}`
	result := ParseResult(TaskDedupe, raw)
	dedupe, ok := result.(DedupeResult)
	require.True(t, ok)
	require.Len(t, dedupe.Duplicates, 1)
	assert.Equal(t, "n-42", dedupe.Duplicates[0].ExistingID)
}

func TestParseResultTemporalInference(t *testing.T) {
	raw := `{"valid_at": "2025-01-15T00:00:00Z", "confidence": 0.7}`
	result := ParseResult(TaskTemporalInference, raw)
	temporal, ok := result.(TemporalInferenceResult)
	require.True(t, ok)
	require.NotNil(t, temporal.ValidAt)
	assert.Equal(t, 2025, temporal.ValidAt.Year())
	assert.Nil(t, temporal.InvalidAt)
}

func TestParseResultLabelingClampsConfidence(t *testing.T) {
	result := ParseResult(TaskCommunityLabeling, `{"label": "travel plans", "confidence": 1.7}`)
	labeling, ok := result.(CommunityLabelingResult)
	require.True(t, ok)
	assert.Equal(t, "travel plans", labeling.Label)
	assert.Equal(t, 1.0, labeling.Confidence)
}

func TestParseResultLabelingEmptyLabelUnparseable(t *testing.T) {
	result := ParseResult(TaskCommunityLabeling, `{"label": "", "confidence": 0.5}`)
	_, ok := result.(UnparseableResult)
	assert.True(t, ok)
}

func TestParseResultRelevanceScoring(t *testing.T) {
	result := ParseResult(TaskRelevanceScoring, `{"scores": {"a": 0.9, "b": -0.2}}`)
	relevance, ok := result.(RelevanceScoringResult)
	require.True(t, ok)
	assert.Equal(t, 0.9, relevance.Scores["a"])
	assert.Zero(t, relevance.Scores["b"], "scores clamp into [0,1]")
}

func TestParseResultGarbageIsUnparseable(t *testing.T) {
	result := ParseResult(TaskExtraction, "total nonsense without structure")
	u, ok := result.(UnparseableResult)
	require.True(t, ok)
	assert.Equal(t, TaskExtraction, u.Kind())
	assert.NotEmpty(t, u.Reason)
	assert.Equal(t, "total nonsense without structure", u.Raw)
}
