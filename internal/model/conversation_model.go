package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type Conversation struct {
	Id                   uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantId             uuid.UUID       `gorm:"type:uuid;not null;index"`
	Title                string          `gorm:"type:text"`
	ClarificationDepth   int             `gorm:"default:0"`
	ClarificationPending bool            `gorm:"default:false"`
	LastClarification    string          `gorm:"type:text"`
	LastQueryEmbedding   pgvector.Vector `gorm:"type:vector(768)"`
	ArchivedAt           *time.Time      `gorm:"index"` // archived, never deleted
	CreatedAt            time.Time       `gorm:"autoCreateTime"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime"`
}

func (Conversation) TableName() string {
	return "conversations"
}

type ConversationTurn struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationId uuid.UUID `gorm:"type:uuid;not null;index"`
	Role           string    `gorm:"type:varchar(16);not null"`
	Text           string    `gorm:"type:text"`
	TurnIndex      int       `gorm:"not null;index"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (ConversationTurn) TableName() string {
	return "conversation_turns"
}

type ConversationSummary struct {
	Id              uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationId  uuid.UUID `gorm:"type:uuid;not null;index"`
	Version         int       `gorm:"not null"`
	CoversTurnIndex int       `gorm:"not null"`
	Mode            string    `gorm:"type:varchar(16);not null"`
	Text            string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (ConversationSummary) TableName() string {
	return "conversation_summaries"
}
