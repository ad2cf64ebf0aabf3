package reasoner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// MinConfidence is the floor below which extracted entries are filtered
// out rather than admitted into the graph.
const MinConfidence = 0.3

var (
	fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// ExtractJSON pulls a JSON document out of surrounding model prose: it
// strips think tags, prefers fenced blocks, trims to the outermost
// brace/bracket pair, and runs the result through repair when it does not
// parse as-is.
func ExtractJSON(raw string) (string, error) {
	text := thinkRe.ReplaceAllString(raw, "")
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON object or array in output")
	}
	end := strings.LastIndexAny(text, "}]")
	if end > start {
		text = text[start : end+1]
	} else {
		// Truncated output: keep from the opening brace and let repair
		// close it.
		text = text[start:]
	}

	if json.Valid([]byte(text)) {
		return text, nil
	}
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return "", fmt.Errorf("repairing JSON: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return "", fmt.Errorf("output not valid JSON even after repair")
	}
	return repaired, nil
}

// ParseResult decodes raw model output into the typed result for a task
// kind. Output that cannot be parsed or validated comes back as an
// UnparseableResult, never as an error: errors are reserved for the
// transport.
func ParseResult(kind TaskKind, raw string) Result {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return UnparseableResult{TaskKind: kind, Raw: raw, Reason: err.Error()}
	}

	var result Result
	switch kind {
	case TaskExtraction:
		var r ExtractionResult
		err = json.Unmarshal([]byte(doc), &r)
		result = filterExtraction(r)
	case TaskDedupe:
		var r DedupeResult
		err = json.Unmarshal([]byte(doc), &r)
		result = filterDedupe(r)
	case TaskTemporalInference:
		var r TemporalInferenceResult
		err = json.Unmarshal([]byte(doc), &r)
		result = r
	case TaskCommunityLabeling:
		var r CommunityLabelingResult
		err = json.Unmarshal([]byte(doc), &r)
		if err == nil && r.Label == "" {
			return UnparseableResult{TaskKind: kind, Raw: raw, Reason: "empty label"}
		}
		result = clampLabelConfidence(r)
	case TaskRelevanceScoring:
		var r RelevanceScoringResult
		err = json.Unmarshal([]byte(doc), &r)
		result = clampScores(r)
	case TaskChangeExplanation:
		var r ChangeExplanationResult
		err = json.Unmarshal([]byte(doc), &r)
		if err == nil && r.Explanation == "" {
			return UnparseableResult{TaskKind: kind, Raw: raw, Reason: "empty explanation"}
		}
		r.Confidence = clamp01(r.Confidence)
		result = r
	default:
		return UnparseableResult{TaskKind: kind, Raw: raw, Reason: "unknown task kind"}
	}
	if err != nil {
		return UnparseableResult{TaskKind: kind, Raw: raw, Reason: err.Error()}
	}
	return result
}

// filterExtraction drops low-confidence entries and relationships whose
// endpoints are not themselves extracted entities.
func filterExtraction(r ExtractionResult) ExtractionResult {
	names := make(map[string]bool, len(r.Entities))
	var entities []ExtractedEntity
	for _, e := range r.Entities {
		if e.Name == "" || e.Confidence < MinConfidence {
			continue
		}
		entities = append(entities, e)
		names[e.Name] = true
	}
	var relationships []ExtractedRelationship
	for _, rel := range r.Relationships {
		if rel.Confidence < MinConfidence {
			continue
		}
		if !names[rel.SourceName] || !names[rel.TargetName] {
			continue
		}
		relationships = append(relationships, rel)
	}
	return ExtractionResult{Entities: entities, Relationships: relationships}
}

func filterDedupe(r DedupeResult) DedupeResult {
	var pairs []DuplicatePair
	for _, p := range r.Duplicates {
		if p.ExtractedName == "" || p.ExistingID == "" || p.Confidence < MinConfidence {
			continue
		}
		pairs = append(pairs, p)
	}
	return DedupeResult{Duplicates: pairs}
}

func clampLabelConfidence(r CommunityLabelingResult) CommunityLabelingResult {
	r.Confidence = clamp01(r.Confidence)
	return r
}

func clampScores(r RelevanceScoringResult) RelevanceScoringResult {
	for id, s := range r.Scores {
		r.Scores[id] = clamp01(s)
	}
	return r
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
