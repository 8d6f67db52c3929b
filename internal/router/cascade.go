package router

import (
	"context"
	"fmt"
	"time"
)

// StageKind identifies the classifier behind a cascade stage.
type StageKind string

const (
	KindEmbedding StageKind = "embedding"
	KindLLM       StageKind = "llm"
	// KindNone appears only in traces, for stages whose matcher is absent.
	KindNone StageKind = "none"
	// KindPreFilter appears only in the zero-indexed pre-filter trace entry.
	KindPreFilter StageKind = "prefilter"
)

// StageOutcome is the per-stage result recorded in a trace.
type StageOutcome string

const (
	OutcomeMatch   StageOutcome = "match"
	OutcomeNoMatch StageOutcome = "no match"
	OutcomeSkipped StageOutcome = "skipped"
)

// EmbeddingMatcher classifies a message into the best-known intent with a
// similarity score. Implemented by provider.EmbeddingIndex.
type EmbeddingMatcher interface {
	Match(ctx context.Context, message string) (route string, score float64, err error)
}

// Verdict is the outcome of one LLM verification call, including the raw
// exchange for the trace. A non-empty Err means the call or its parsing
// failed and the verdict counts as (false, 0).
type Verdict struct {
	IsMatch     bool
	Confidence  float64
	RawRequest  string
	RawResponse string
	Err         string
}

// Verifier asks a text backend whether a message belongs to an intent.
type Verifier interface {
	Verify(ctx context.Context, message string) Verdict
}

// CascadeStage is one classifier/threshold pair in an intent's cascade.
// Thresholds are compared as-is; out-of-range values are accepted (a
// threshold above 1 simply never matches). Immutable after construction.
type CascadeStage struct {
	Kind      StageKind
	Threshold float64
	Embedding EmbeddingMatcher // set when Kind == KindEmbedding
	Verifier  Verifier         // set when Kind == KindLLM
}

// StageTrace records one stage attempt during a single request. Stage is
// 1-based; 0 marks a pre-filter rejection.
type StageTrace struct {
	Stage       int           `json:"stage"`
	Kind        StageKind     `json:"kind"`
	Latency     time.Duration `json:"latency"`
	Confidence  float64       `json:"confidence"`
	Threshold   float64       `json:"threshold"`
	Outcome     StageOutcome  `json:"outcome"`
	Detail      string        `json:"detail,omitempty"`
	RawRequest  string        `json:"raw_request,omitempty"`
	RawResponse string        `json:"raw_response,omitempty"`
}

// CascadeResult is the engine's verdict plus the full audit trail of every
// stage attempted, returned in both the match and no-match case.
type CascadeResult struct {
	Matched    bool
	Confidence float64
	Stage      int // 1-based index of the matching stage, 0 when unmatched
	Trace      []StageTrace
}

// EvaluateCascade runs message through stages in configured order,
// short-circuiting at the first stage whose confidence meets its threshold.
// Classification failures of any kind are downgraded to a no-match trace
// entry and never propagate.
func EvaluateCascade(ctx context.Context, message string, stages []CascadeStage, intent string) CascadeResult {
	trace := make([]StageTrace, 0, len(stages))

	for i, stage := range stages {
		idx := i + 1
		entry := StageTrace{Stage: idx, Kind: stage.Kind, Threshold: stage.Threshold}

		var confidence float64
		var candidate bool

		start := time.Now()
		switch {
		case stage.Kind == KindEmbedding && stage.Embedding != nil:
			route, score, err := stage.Embedding.Match(ctx, message)
			entry.Latency = time.Since(start)
			if err != nil {
				entry.Outcome = OutcomeNoMatch
				entry.Detail = err.Error()
				trace = append(trace, entry)
				continue
			}
			entry.Confidence = score
			if route != intent {
				entry.Outcome = OutcomeNoMatch
				entry.Detail = fmt.Sprintf("best route %q, want %q", route, intent)
				trace = append(trace, entry)
				continue
			}
			confidence = score
			candidate = true

		case stage.Kind == KindLLM && stage.Verifier != nil:
			verdict := stage.Verifier.Verify(ctx, message)
			entry.Latency = time.Since(start)
			entry.Confidence = verdict.Confidence
			entry.RawRequest = verdict.RawRequest
			entry.RawResponse = verdict.RawResponse
			if verdict.Err != "" {
				entry.Outcome = OutcomeNoMatch
				entry.Detail = verdict.Err
				trace = append(trace, entry)
				continue
			}
			if !verdict.IsMatch {
				entry.Outcome = OutcomeNoMatch
				trace = append(trace, entry)
				continue
			}
			confidence = verdict.Confidence
			candidate = true

		default:
			entry.Kind = KindNone
			entry.Outcome = OutcomeSkipped
			entry.Detail = "no matcher"
			trace = append(trace, entry)
			continue
		}

		// Closed interval: confidence equal to the threshold matches.
		if candidate && confidence >= stage.Threshold {
			entry.Outcome = OutcomeMatch
			trace = append(trace, entry)
			return CascadeResult{Matched: true, Confidence: confidence, Stage: idx, Trace: trace}
		}

		entry.Outcome = OutcomeNoMatch
		entry.Detail = fmt.Sprintf("confidence %.3f below threshold %.3f", confidence, stage.Threshold)
		trace = append(trace, entry)
	}

	return CascadeResult{Trace: trace}
}
