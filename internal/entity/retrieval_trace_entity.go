package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RetrievalTrace is the per-query observability record: the full scoring
// payload plus the chunk ids that made it into the delivered answer.
// UsedChunkIds feeds the memory boost on later turns.
type RetrievalTrace struct {
	Id             uuid.UUID
	TenantId       uuid.UUID
	ConversationId uuid.UUID
	Query          string
	Verdict        string
	Confidence     float64
	UsedChunkIds   []string
	Payload        json.RawMessage
	CreatedAt      time.Time
}
