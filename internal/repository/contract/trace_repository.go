package contract

import (
	"context"

	"github.com/meownm/ai-rag-sub000/internal/entity"

	"github.com/google/uuid"
)

type TraceRepository interface {
	Create(ctx context.Context, trace *entity.RetrievalTrace) error
	// FindRecent returns the newest traces for a conversation,
	// newest first. Feeds the memory boost.
	FindRecent(ctx context.Context, tenantId, conversationId uuid.UUID, limit int) ([]*entity.RetrievalTrace, error)
}
