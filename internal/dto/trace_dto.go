package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

// PublishTraceMessage is the async persistence payload for a retrieval
// trace. The request path publishes it and returns; the consumer writes
// the row.
type PublishTraceMessage struct {
	TraceId        uuid.UUID       `json:"trace_id"`
	TenantId       uuid.UUID       `json:"tenant_id"`
	ConversationId uuid.UUID       `json:"conversation_id"`
	Query          string          `json:"query"`
	Verdict        string          `json:"verdict"`
	Confidence     float64         `json:"confidence"`
	UsedChunkIds   []string        `json:"used_chunk_ids"`
	Payload        json.RawMessage `json:"payload"`
}
