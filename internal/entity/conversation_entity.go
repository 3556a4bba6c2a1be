package entity

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	Id                   uuid.UUID
	TenantId             uuid.UUID
	Title                string
	ClarificationDepth   int
	ClarificationPending bool
	LastClarification    string
	LastQueryEmbedding   []float32
	ArchivedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            *time.Time
}

type ConversationTurn struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Role           string
	Text           string
	TurnIndex      int
	CreatedAt      time.Time
}

type ConversationSummary struct {
	Id              uuid.UUID
	ConversationId  uuid.UUID
	Version         int
	CoversTurnIndex int
	Mode            string
	Text            string
	CreatedAt       time.Time
}
