package store

// Verdicts and fallback reasons for pipeline results.
const (
	VerdictPass = "PASS"
	VerdictFail = "FAIL"

	FallbackClarificationDepthExceeded = "clarification_depth_exceeded"
	FallbackLowConfidence              = "low_confidence"
	FallbackGroundingRefused           = "grounding_refused"
)

// AgentStageTrace is one stage execution record. Traces are appended in
// execution order and never reordered or mutated afterwards.
type AgentStageTrace struct {
	Stage     string `json:"stage"`
	LatencyMs int64  `json:"latency_ms"`
	Debug     string `json:"debug,omitempty"`
}

// ExpansionDebugInfo captures expansion-stage statistics. Built once per
// query by the expansion engine and treated as read-only afterwards.
type ExpansionDebugInfo struct {
	BaseCount         int      `json:"base_count"`
	DocDiversity      int      `json:"doc_diversity"`
	NeighborAdded     int      `json:"neighbor_added"`
	LinkAdded         int      `json:"link_added"`
	RedundancyRemoved int      `json:"redundancy_removed"`
	FinalTokens       int      `json:"final_tokens"`
	Steps             []string `json:"steps"`
}

// BudgetLog reports token accounting for one budget-assembly call.
type BudgetLog struct {
	TokensBefore  int  `json:"tokens_before"`
	TokensAfter   int  `json:"tokens_after"`
	TokensDropped int  `json:"tokens_dropped"`
	ChunksDropped int  `json:"chunks_dropped"`
	Truncated     bool `json:"truncated"`
}

// PipelineResult is the final output of a pipeline execution. The caller
// always receives one of these for business outcomes; raised errors are
// reserved for infrastructure failure.
type PipelineResult struct {
	Answer                string            `json:"answer"`
	Verdict               string            `json:"verdict"`
	Candidates            []Candidate       `json:"candidates"`
	Confidence            float64           `json:"confidence"`
	ClarificationNeeded   bool              `json:"clarification_needed"`
	ClarificationQuestion string            `json:"clarification_question,omitempty"`
	FallbackReason        string            `json:"fallback_reason,omitempty"`
	Citations             []Citation        `json:"citations,omitempty"`
	Traces                []AgentStageTrace `json:"traces"`
}
