package unitofwork

import (
	"context"

	"github.com/meownm/ai-rag-sub000/internal/repository/contract"
)

// UnitOfWork scopes repository access to one transaction. Turn and
// trace writes are the only multi-row units here; they must land
// complete-or-not-at-all.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ChunkRepository() contract.ChunkRepository
	ConversationRepository() contract.ConversationRepository
	TraceRepository() contract.TraceRepository
}
