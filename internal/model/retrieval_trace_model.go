package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RetrievalTrace struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantId       uuid.UUID      `gorm:"type:uuid;not null;index"`
	ConversationId uuid.UUID      `gorm:"type:uuid;index"`
	Query          string         `gorm:"type:text"`
	Verdict        string         `gorm:"type:varchar(8)"`
	Confidence     float64        `gorm:"default:0"`
	UsedChunkIds   datatypes.JSON `gorm:"type:jsonb"` // chunk ids delivered in the answer
	Payload        datatypes.JSON `gorm:"type:jsonb"` // full per-candidate scoring trace
	CreatedAt      time.Time      `gorm:"autoCreateTime;index"`
}

func (RetrievalTrace) TableName() string {
	return "retrieval_traces"
}
