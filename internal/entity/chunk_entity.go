package entity

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is one retrievable unit of a tenant's document corpus.
type Chunk struct {
	Id          uuid.UUID
	DocumentId  uuid.UUID
	TenantId    uuid.UUID
	Text        string
	Ordinal     int
	HeadingPath string
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
	IsDeleted   bool
}

// DocumentLink records that one document references another. Used by
// link-mode context expansion.
type DocumentLink struct {
	Id               uuid.UUID
	TenantId         uuid.UUID
	SourceDocumentId uuid.UUID
	TargetDocumentId uuid.UUID
	CreatedAt        time.Time
}
