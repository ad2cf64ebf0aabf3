package reasoner

// systemPrompt returns the instruction block for a task kind. The user
// message carries the JSON-encoded task payload.
func systemPrompt(kind TaskKind) string {
	switch kind {
	case TaskExtraction:
		return extractionPrompt
	case TaskDedupe:
		return dedupePrompt
	case TaskTemporalInference:
		return temporalPrompt
	case TaskCommunityLabeling:
		return labelingPrompt
	case TaskRelevanceScoring:
		return relevancePrompt
	case TaskChangeExplanation:
		return explanationPrompt
	default:
		return "Respond with a single JSON object."
	}
}

const extractionPrompt = `You extract knowledge from conversational turns.
Given an episode body, optional previous turns for context, and a reference time,
identify the entities mentioned and the relationships between them.

Respond with ONLY a JSON object of this shape:
{
  "entities": [{"name": "...", "summary": "...", "confidence": 0.0}],
  "relationships": [{"source_name": "...", "target_name": "...", "name": "...", "fact": "...", "confidence": 0.0}]
}

Rules:
- Entity names are canonical and concise (people, places, organizations, concepts).
- Relationship names are short snake_case predicates; "fact" restates the claim in one sentence.
- Confidence is your belief in [0,1] that the entry is correct.
- Only include relationships whose endpoints appear in "entities".`

const dedupePrompt = `You resolve duplicate entities in a knowledge graph.
Given freshly extracted entities and existing graph entities, decide which
extracted entities refer to the same real-world thing as an existing one.

Respond with ONLY a JSON object of this shape:
{"duplicates": [{"extracted_name": "...", "existing_id": "...", "confidence": 0.0}]}

Only pair entities you are confident refer to the same thing; omit uncertain pairs.`

const temporalPrompt = `You infer the temporal validity of a fact from a conversational turn.
Given a fact, the episode it came from, and the episode's reference time, determine
when the fact became true (valid_at) and, if the turn says it stopped holding, when
(invalid_at). Use RFC 3339 timestamps. Omit a field you cannot infer.

Respond with ONLY a JSON object of this shape:
{"valid_at": "2024-01-01T00:00:00Z", "invalid_at": null, "confidence": 0.0}`

const labelingPrompt = `You name clusters of related entities in a knowledge graph.
Given the member summaries of one cluster, produce a short human-readable label
(at most five words) capturing what the members have in common.

Respond with ONLY a JSON object of this shape:
{"label": "...", "confidence": 0.0}`

const relevancePrompt = `You score how relevant each candidate text is to a query.
Given a query and a map of candidate id to text, score every candidate in [0,1],
where 1 means the candidate directly answers or matches the query.

Respond with ONLY a JSON object of this shape:
{"scores": {"candidate-id": 0.0}}
Include every candidate id from the input exactly once.`

const explanationPrompt = `You explain how a knowledge-graph record changed between two points in time.
Given a subject, its state before and after, and the two timestamps, write one or
two plain sentences describing what changed and when.

Respond with ONLY a JSON object of this shape:
{"explanation": "...", "confidence": 0.0}`
