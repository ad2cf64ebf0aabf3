// Package reasoner is the structured-output boundary to the LLM
// collaborator. Each task kind (entity extraction, deduplication, temporal
// inference, community labeling, relevance scoring) has its own typed task
// and result; raw model output passes through tolerant JSON extraction and
// repair before schema validation, and output that survives neither becomes
// an explicit UnparseableResult rather than an error the caller has to
// guess about.
//
// Clients compose like middleware: the OpenAI client does the transport,
// RetryClient adds bounded backoff for transient failures, and
// CircuitBreakerClient stops hammering a collaborator that is down.
package reasoner
