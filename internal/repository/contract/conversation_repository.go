package contract

import (
	"context"
	"time"

	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/repository/specification"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	Update(ctx context.Context, conversation *entity.Conversation) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error)
	// ArchiveIdleBefore archives (never deletes) conversations with no
	// activity since the cutoff. Returns the number archived.
	ArchiveIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)

	AppendTurn(ctx context.Context, turn *entity.ConversationTurn) error
	FindTurns(ctx context.Context, conversationId uuid.UUID, specs ...specification.Specification) ([]*entity.ConversationTurn, error)
	CountTurns(ctx context.Context, conversationId uuid.UUID) (int64, error)

	CreateSummary(ctx context.Context, summary *entity.ConversationSummary) error
	// LatestSummary returns the newest narrative summary, nil when none.
	LatestSummary(ctx context.Context, conversationId uuid.UUID) (*entity.ConversationSummary, error)
}
