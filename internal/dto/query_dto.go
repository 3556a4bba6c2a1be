package dto

import (
	"github.com/google/uuid"
)

type AskRequest struct {
	Query              string     `json:"query" validate:"required,min=1,max=4000"`
	ConversationId     *uuid.UUID `json:"conversation_id,omitempty"`
	TopK               int        `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
	CitationsRequested bool       `json:"citations_requested,omitempty"`
}

type AskResponse struct {
	ConversationId        uuid.UUID       `json:"conversation_id"`
	Answer                string          `json:"answer"`
	Verdict               string          `json:"verdict"`
	Confidence            float64         `json:"confidence"`
	ClarificationNeeded   bool            `json:"clarification_needed"`
	ClarificationQuestion string          `json:"clarification_question,omitempty"`
	FallbackReason        string          `json:"fallback_reason,omitempty"`
	TopicReset            bool            `json:"topic_reset"`
	Citations             []CitationDTO   `json:"citations,omitempty"`
	Scoring               []CandidateDTO  `json:"scoring,omitempty"`
	Traces                []StageTraceDTO `json:"traces"`
}

type CitationDTO struct {
	ChunkId    string `json:"chunk_id"`
	DocumentId string `json:"document_id"`
	Snippet    string `json:"snippet,omitempty"`
}

// CandidateDTO is one row of the per-query scoring trace.
type CandidateDTO struct {
	ChunkId      string     `json:"chunk_id"`
	DocumentId   string     `json:"document_id"`
	HeadingPath  string     `json:"heading_path,omitempty"`
	Rank         int        `json:"rank"`
	LexicalScore float64    `json:"lexical_score"`
	VectorScore  float64    `json:"vector_score"`
	RerankScore  float64    `json:"rerank_score"`
	NormLexical  float64    `json:"norm_lexical"`
	NormVector   float64    `json:"norm_vector"`
	NormRerank   float64    `json:"norm_rerank"`
	FinalScore   float64    `json:"final_score"`
	Boosts       []BoostDTO `json:"boosts,omitempty"`
}

type BoostDTO struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason,omitempty"`
}

type StageTraceDTO struct {
	Stage     string `json:"stage"`
	LatencyMs int64  `json:"latency_ms"`
	Debug     string `json:"debug,omitempty"`
}
