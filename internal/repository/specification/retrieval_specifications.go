package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByTenant scopes a query to one tenant. Every retrieval-path query
// carries this.
type ByTenant struct {
	TenantId uuid.UUID
}

func (s ByTenant) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("tenant_id = ?", s.TenantId)
}

// ByConversation scopes to one conversation.
type ByConversation struct {
	ConversationId uuid.UUID
}

func (s ByConversation) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_id = ?", s.ConversationId)
}

// ByDocument scopes to one document.
type ByDocument struct {
	DocumentId uuid.UUID
}

func (s ByDocument) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("document_id = ?", s.DocumentId)
}

// TurnIndexAtLeast selects turns from a given index on, used to load
// only what the latest summary does not cover.
type TurnIndexAtLeast struct {
	Index int
}

func (s TurnIndexAtLeast) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("turn_index >= ?", s.Index)
}

// NotArchived filters out archived conversations.
type NotArchived struct{}

func (s NotArchived) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("archived_at IS NULL")
}
