package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type ChunkEmbedding struct {
	Id             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentId     uuid.UUID       `gorm:"type:uuid;not null;index"`
	TenantId       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Text           string          `gorm:"type:text"`
	Ordinal        int             `gorm:"default:0"` // 0-based position within the document
	HeadingPath    string          `gorm:"type:text"`
	EmbeddingValue pgvector.Vector `gorm:"type:vector(768)"` // nomic-embed-text uses 768 dimensions
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
	DeletedAt      gorm.DeletedAt  `gorm:"index"`
}

func (ChunkEmbedding) TableName() string {
	return "chunk_embeddings"
}

type DocumentLink struct {
	Id               uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantId         uuid.UUID `gorm:"type:uuid;not null;index"`
	SourceDocumentId uuid.UUID `gorm:"type:uuid;not null;index"`
	TargetDocumentId uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (DocumentLink) TableName() string {
	return "document_links"
}
