package reasoner

import "time"

// TaskKind discriminates the reasoning tasks the collaborator can run.
type TaskKind string

const (
	TaskExtraction        TaskKind = "extraction"
	TaskDedupe            TaskKind = "dedupe"
	TaskTemporalInference TaskKind = "temporal_inference"
	TaskCommunityLabeling TaskKind = "community_labeling"
	TaskRelevanceScoring  TaskKind = "relevance_scoring"
	TaskChangeExplanation TaskKind = "change_explanation"
)

// Task is the input side of the tagged union; every task names its kind.
type Task interface {
	Kind() TaskKind
}

// ExtractionTask asks for entities and relationships in one episode turn.
type ExtractionTask struct {
	EpisodeBody string `json:"episode_body"`
	// PreviousEpisodes gives recent turns as disambiguation context.
	PreviousEpisodes []string  `json:"previous_episodes,omitempty"`
	ReferenceTime    time.Time `json:"reference_time"`
}

func (ExtractionTask) Kind() TaskKind { return TaskExtraction }

// EntityRef identifies an entity for deduplication.
type EntityRef struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
}

// DedupeTask asks which freshly extracted entities are duplicates of
// entities already in the graph.
type DedupeTask struct {
	Extracted []EntityRef `json:"extracted"`
	Existing  []EntityRef `json:"existing"`
}

func (DedupeTask) Kind() TaskKind { return TaskDedupe }

// TemporalInferenceTask asks when a fact became true, and whether the
// episode implies it stopped holding.
type TemporalInferenceTask struct {
	Fact          string    `json:"fact"`
	EpisodeBody   string    `json:"episode_body"`
	ReferenceTime time.Time `json:"reference_time"`
}

func (TemporalInferenceTask) Kind() TaskKind { return TaskTemporalInference }

// CommunityLabelingTask asks for a short label describing a member set.
type CommunityLabelingTask struct {
	MemberSummaries []string `json:"member_summaries"`
}

func (CommunityLabelingTask) Kind() TaskKind { return TaskCommunityLabeling }

// RelevanceScoringTask asks for a pairwise relevance score of each
// candidate against the query, keyed by candidate id.
type RelevanceScoringTask struct {
	Query      string            `json:"query"`
	Candidates map[string]string `json:"candidates"`
}

func (RelevanceScoringTask) Kind() TaskKind { return TaskRelevanceScoring }

// ChangeExplanationTask asks for a natural-language account of how a
// node's state differed between two points in time.
type ChangeExplanationTask struct {
	Subject string    `json:"subject"`
	Before  string    `json:"before"`
	After   string    `json:"after"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
}

func (ChangeExplanationTask) Kind() TaskKind { return TaskChangeExplanation }

// Result is the output side of the tagged union.
type Result interface {
	Kind() TaskKind
}

// ExtractedEntity is one entity the model found in an episode.
type ExtractedEntity struct {
	Name       string  `json:"name"`
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ExtractedRelationship is one relationship between extracted entities.
type ExtractedRelationship struct {
	SourceName string  `json:"source_name"`
	TargetName string  `json:"target_name"`
	Name       string  `json:"name"`
	Fact       string  `json:"fact,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult lists what the model found, already filtered to
// entries above the confidence floor.
type ExtractionResult struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

func (ExtractionResult) Kind() TaskKind { return TaskExtraction }

// DuplicatePair maps an extracted entity name to the id of the existing
// entity it duplicates.
type DuplicatePair struct {
	ExtractedName string  `json:"extracted_name"`
	ExistingID    string  `json:"existing_id"`
	Confidence    float64 `json:"confidence"`
}

// DedupeResult lists the duplicate pairings above the confidence floor.
type DedupeResult struct {
	Duplicates []DuplicatePair `json:"duplicates"`
}

func (DedupeResult) Kind() TaskKind { return TaskDedupe }

// TemporalInferenceResult carries inferred validity bounds for a fact.
// Nil pointers mean the model could not infer that bound.
type TemporalInferenceResult struct {
	ValidAt    *time.Time `json:"valid_at,omitempty"`
	InvalidAt  *time.Time `json:"invalid_at,omitempty"`
	Confidence float64    `json:"confidence"`
}

func (TemporalInferenceResult) Kind() TaskKind { return TaskTemporalInference }

// CommunityLabelingResult is a short label with a confidence in [0,1].
type CommunityLabelingResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (CommunityLabelingResult) Kind() TaskKind { return TaskCommunityLabeling }

// RelevanceScoringResult maps candidate id to relevance in [0,1].
type RelevanceScoringResult struct {
	Scores map[string]float64 `json:"scores"`
}

func (RelevanceScoringResult) Kind() TaskKind { return TaskRelevanceScoring }

// ChangeExplanationResult is a short prose explanation of the change.
type ChangeExplanationResult struct {
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

func (ChangeExplanationResult) Kind() TaskKind { return TaskChangeExplanation }

// UnparseableResult is returned when model output survives neither direct
// parsing nor repair. It keeps the raw text for debugging; callers treat
// it as "no usable answer", not as a transport failure.
type UnparseableResult struct {
	TaskKind TaskKind `json:"task_kind"`
	Raw      string   `json:"raw"`
	Reason   string   `json:"reason"`
}

func (r UnparseableResult) Kind() TaskKind { return r.TaskKind }
