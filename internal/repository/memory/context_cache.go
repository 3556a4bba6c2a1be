package memory

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// ContextCache keeps recently-active conversation contexts hot so a
// multi-turn exchange does not reload turns and summaries on every
// request. Write-through: the database row stays authoritative.
type ContextCache struct {
	cache *cache.Cache
}

func NewContextCache() *ContextCache {
	// Expire after an hour of inactivity, purge every 10 minutes.
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &ContextCache{
		cache: c,
	}
}

func (r *ContextCache) Save(conversationCtx *store.ConversationContext) {
	r.cache.Set(conversationCtx.ConversationID, conversationCtx, cache.DefaultExpiration)
}

func (r *ContextCache) Get(conversationID string) (*store.ConversationContext, bool) {
	if x, found := r.cache.Get(conversationID); found {
		return x.(*store.ConversationContext), true
	}
	return nil, false
}

func (r *ContextCache) Delete(conversationID string) {
	r.cache.Delete(conversationID)
}
