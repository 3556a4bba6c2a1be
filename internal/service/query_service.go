package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/meownm/ai-rag-sub000/internal/dto"
	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/mapper"
	"github.com/meownm/ai-rag-sub000/internal/repository/memory"
	"github.com/meownm/ai-rag-sub000/internal/repository/specification"
	"github.com/meownm/ai-rag-sub000/internal/repository/unitofwork"
	"github.com/meownm/ai-rag-sub000/pkg/embedding"
	"github.com/meownm/ai-rag-sub000/pkg/events"
	"github.com/meownm/ai-rag-sub000/pkg/llm"
	"github.com/meownm/ai-rag-sub000/pkg/nats"
	"github.com/meownm/ai-rag-sub000/pkg/rag/conversation"
	"github.com/meownm/ai-rag-sub000/pkg/rag/executor"
	"github.com/meownm/ai-rag-sub000/pkg/rag/guard"
	"github.com/meownm/ai-rag-sub000/pkg/store"
)

type IQueryService interface {
	Ask(ctx context.Context, tenantId uuid.UUID, userId string, req *dto.AskRequest) (*dto.AskResponse, error)
	ArchiveIdleConversations(ctx context.Context, idleFor time.Duration) (int64, error)
}

type queryService struct {
	uowFactory   unitofwork.RepositoryFactory
	pipeline     *executor.PipelineExecutor
	conversation *conversation.Manager
	embedder     embedding.EmbeddingProvider
	contextCache *memory.ContextCache
	limiter      guard.Limiter
	pubSub       *gochannel.GoChannel
	traceTopic   string
	eventBus     *nats.Publisher
	convMapper   *mapper.ConversationMapper
}

func NewQueryService(
	uowFactory unitofwork.RepositoryFactory,
	pipeline *executor.PipelineExecutor,
	conversationManager *conversation.Manager,
	embedder embedding.EmbeddingProvider,
	contextCache *memory.ContextCache,
	limiter guard.Limiter,
	pubSub *gochannel.GoChannel,
	traceTopic string,
	eventBus *nats.Publisher,
) IQueryService {
	return &queryService{
		uowFactory:   uowFactory,
		pipeline:     pipeline,
		conversation: conversationManager,
		embedder:     embedder,
		contextCache: contextCache,
		limiter:      limiter,
		pubSub:       pubSub,
		traceTopic:   traceTopic,
		eventBus:     eventBus,
		convMapper:   mapper.NewConversationMapper(),
	}
}

// Ask runs one query end to end: guard, conversation context, pipeline,
// persistence, async trace publish.
func (s *queryService) Ask(ctx context.Context, tenantId uuid.UUID, userId string, req *dto.AskRequest) (*dto.AskResponse, error) {
	if err := s.limiter.Allow(ctx, rateLimitKey(tenantId, userId)); err != nil {
		return nil, err
	}

	sanitized := guard.SanitizeQuery(req.Query)
	if len(sanitized.StrippedLines) > 0 {
		log.Printf("[QUERY] stripped %d injection-shaped lines for tenant %s", len(sanitized.StrippedLines), tenantId)
	}
	if sanitized.Text == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "query is empty after sanitization")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	conv, err := s.loadOrCreateConversation(ctx, uow, tenantId, req.ConversationId, sanitized.Text)
	if err != nil {
		return nil, err
	}

	convCtx, turnCount, err := s.loadContext(ctx, uow, conv)
	if err != nil {
		return nil, err
	}

	// Advisory topic shift check against the previous query embedding.
	// Never truncates history; it only surfaces in the response and trace.
	var queryEmbedding []float32
	topicReset := false
	if resp, embErr := s.embedder.Generate(sanitized.Text, "RETRIEVAL_QUERY"); embErr != nil {
		log.Printf("[QUERY] topic shift embedding failed: %v", embErr)
	} else {
		queryEmbedding = resp.Embedding.Values
		topicReset = s.conversation.DetectTopicShift(queryEmbedding, conv.LastQueryEmbedding)
	}

	boosts := s.memoryBoosts(ctx, uow, tenantId, conv.Id)

	history := s.conversation.TrimHistory(convCtx.Turns)
	summaryText := ""
	if convCtx.Summary != nil {
		summaryText = convCtx.Summary.Text
	}

	result, err := s.pipeline.Execute(ctx, executor.Request{
		TenantID:           tenantId.String(),
		Query:              sanitized.Text,
		ConversationID:     conv.Id.String(),
		TopK:               req.TopK,
		CitationsRequested: req.CitationsRequested,
		ClarificationDepth: conv.ClarificationDepth,
		Summary:            summaryText,
		History:            toMessages(history),
		MemoryBoosts:       boosts,
	})
	if err != nil {
		return nil, err
	}

	assistantText := result.Answer
	if result.ClarificationNeeded {
		assistantText = result.ClarificationQuestion
	}

	if err := s.persistTurn(ctx, uow, conv, sanitized.Text, assistantText, turnCount, queryEmbedding, result); err != nil {
		return nil, err
	}

	s.refreshContext(convCtx, conv, sanitized.Text, assistantText, turnCount, topicReset)
	s.maybeSummarize(ctx, conv.Id, convCtx)
	s.publishTrace(conv, sanitized.Text, result)
	s.publishAnswerEvent(ctx, tenantId, conv.Id, result)

	return buildAskResponse(conv.Id, result, topicReset), nil
}

// ArchiveIdleConversations archives conversations idle longer than the
// given duration. Archived conversations keep their turns and summaries.
func (s *queryService) ArchiveIdleConversations(ctx context.Context, idleFor time.Duration) (int64, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.ConversationRepository().ArchiveIdleBefore(ctx, time.Now().Add(-idleFor))
}

func (s *queryService) loadOrCreateConversation(ctx context.Context, uow unitofwork.UnitOfWork, tenantId uuid.UUID, conversationId *uuid.UUID, query string) (*entity.Conversation, error) {
	repo := uow.ConversationRepository()

	if conversationId != nil {
		conv, err := repo.FindOne(ctx,
			specification.ByID{ID: *conversationId},
			specification.ByTenant{TenantId: tenantId},
			specification.NotArchived{},
		)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, fiber.NewError(fiber.StatusNotFound, "conversation not found")
		}
		return conv, nil
	}

	conv := &entity.Conversation{
		Id:       uuid.New(),
		TenantId: tenantId,
		Title:    truncateTitle(query, 80),
	}
	if err := repo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// loadContext returns the conversation context (cache first, then
// storage) plus the persisted turn count.
func (s *queryService) loadContext(ctx context.Context, uow unitofwork.UnitOfWork, conv *entity.Conversation) (*store.ConversationContext, int, error) {
	repo := uow.ConversationRepository()

	count, err := repo.CountTurns(ctx, conv.Id)
	if err != nil {
		return nil, 0, err
	}

	if cached, found := s.contextCache.Get(conv.Id.String()); found {
		if len(cached.Turns) == int(count) {
			return cached, int(count), nil
		}
		// Stale cache, rebuild from storage.
		s.contextCache.Delete(conv.Id.String())
	}

	turns, err := repo.FindTurns(ctx, conv.Id)
	if err != nil {
		return nil, 0, err
	}

	convCtx := &store.ConversationContext{
		ConversationID:       conv.Id.String(),
		TenantID:             conv.TenantId.String(),
		Turns:                s.convMapper.TurnsToStore(turns),
		ClarificationPending: conv.ClarificationPending,
		ClarificationDepth:   conv.ClarificationDepth,
		LastClarification:    conv.LastClarification,
		LastQueryEmbedding:   conv.LastQueryEmbedding,
	}

	latest, err := repo.LatestSummary(ctx, conv.Id)
	if err != nil {
		return nil, 0, err
	}
	if latest != nil {
		convCtx.Summary = &store.Summary{
			Version:         latest.Version,
			CoversTurnIndex: latest.CoversTurnIndex,
			Mode:            latest.Mode,
			Text:            latest.Text,
		}
	}

	return convCtx, int(count), nil
}

// memoryBoosts derives additive score boosts from the chunks used in
// recent answers of this conversation. Failures degrade to no boost.
func (s *queryService) memoryBoosts(ctx context.Context, uow unitofwork.UnitOfWork, tenantId, conversationId uuid.UUID) map[string]float64 {
	traces, err := uow.TraceRepository().FindRecent(ctx, tenantId, conversationId, 3)
	if err != nil {
		log.Printf("[QUERY] memory boost lookup failed: %v", err)
		return nil
	}

	usedChunks := make([][]string, 0, len(traces))
	for _, t := range traces {
		if len(t.UsedChunkIds) > 0 {
			usedChunks = append(usedChunks, t.UsedChunkIds)
		}
	}
	return s.conversation.MemoryBoosts(usedChunks)
}

// persistTurn writes the user and assistant turns and the updated
// conversation row in one transaction.
func (s *queryService) persistTurn(ctx context.Context, uow unitofwork.UnitOfWork, conv *entity.Conversation, query, assistantText string, turnCount int, queryEmbedding []float32, result *store.PipelineResult) error {
	if err := uow.Begin(ctx); err != nil {
		return err
	}

	repo := uow.ConversationRepository()

	userTurn := &entity.ConversationTurn{
		Id:             uuid.New(),
		ConversationId: conv.Id,
		Role:           store.RoleUser,
		Text:           query,
		TurnIndex:      turnCount,
	}
	if err := repo.AppendTurn(ctx, userTurn); err != nil {
		uow.Rollback()
		return err
	}

	assistantTurn := &entity.ConversationTurn{
		Id:             uuid.New(),
		ConversationId: conv.Id,
		Role:           store.RoleAssistant,
		Text:           assistantText,
		TurnIndex:      turnCount + 1,
	}
	if err := repo.AppendTurn(ctx, assistantTurn); err != nil {
		uow.Rollback()
		return err
	}

	if result.ClarificationNeeded {
		conv.ClarificationDepth++
		conv.ClarificationPending = true
		conv.LastClarification = result.ClarificationQuestion
	} else {
		conv.ClarificationDepth = 0
		conv.ClarificationPending = false
		conv.LastClarification = ""
	}
	if len(queryEmbedding) > 0 {
		conv.LastQueryEmbedding = queryEmbedding
	}
	if err := repo.Update(ctx, conv); err != nil {
		uow.Rollback()
		return err
	}

	return uow.Commit()
}

// refreshContext appends the new turns to the cached context so the next
// request in this conversation skips the storage round trip.
func (s *queryService) refreshContext(convCtx *store.ConversationContext, conv *entity.Conversation, query, assistantText string, turnCount int, topicReset bool) {
	now := time.Now()
	convCtx.Turns = append(convCtx.Turns,
		store.Turn{Role: store.RoleUser, Text: query, TurnIndex: turnCount, CreatedAt: now},
		store.Turn{Role: store.RoleAssistant, Text: assistantText, TurnIndex: turnCount + 1, CreatedAt: now},
	)
	convCtx.ClarificationPending = conv.ClarificationPending
	convCtx.ClarificationDepth = conv.ClarificationDepth
	convCtx.LastClarification = conv.LastClarification
	convCtx.LastQueryEmbedding = conv.LastQueryEmbedding
	convCtx.TopicReset = topicReset
	s.contextCache.Save(convCtx)
}

// maybeSummarize rolls the summary forward when the conversation has
// outgrown the last version. Best effort: a failed summary never fails
// the request.
func (s *queryService) maybeSummarize(ctx context.Context, conversationId uuid.UUID, convCtx *store.ConversationContext) {
	if !s.conversation.ShouldSummarize(len(convCtx.Turns), convCtx.Summary) {
		return
	}

	for _, mode := range []string{store.SummaryModeNarrative, store.SummaryModeMasked} {
		summary, err := s.conversation.Summarize(ctx, convCtx.Turns, convCtx.Summary, mode)
		if err != nil {
			log.Printf("[QUERY] %s summary failed: %v", mode, err)
			continue
		}

		uow := s.uowFactory.NewUnitOfWork(ctx)
		err = uow.ConversationRepository().CreateSummary(ctx, &entity.ConversationSummary{
			Id:              uuid.New(),
			ConversationId:  conversationId,
			Version:         summary.Version,
			CoversTurnIndex: summary.CoversTurnIndex,
			Mode:            summary.Mode,
			Text:            summary.Text,
		})
		if err != nil {
			log.Printf("[QUERY] persisting %s summary failed: %v", mode, err)
			continue
		}

		// The narrative version feeds the next prompt.
		if mode == store.SummaryModeNarrative {
			convCtx.Summary = &summary
			s.contextCache.Save(convCtx)
		}
	}
}

// publishTrace hands the retrieval trace to the async consumer. The
// request path never blocks on trace persistence.
func (s *queryService) publishTrace(conv *entity.Conversation, query string, result *store.PipelineResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		log.Printf("[QUERY] trace payload marshal failed: %v", err)
		return
	}

	msgPayload, err := json.Marshal(dto.PublishTraceMessage{
		TraceId:        uuid.New(),
		TenantId:       conv.TenantId,
		ConversationId: conv.Id,
		Query:          query,
		Verdict:        result.Verdict,
		Confidence:     result.Confidence,
		UsedChunkIds:   usedChunkIDs(result),
		Payload:        payload,
	})
	if err != nil {
		log.Printf("[QUERY] trace message marshal failed: %v", err)
		return
	}

	msg := message.NewMessage(uuid.NewString(), msgPayload)
	if err := s.pubSub.Publish(s.traceTopic, msg); err != nil {
		log.Printf("[QUERY] trace publish failed: %v", err)
	}
}

// publishAnswerEvent emits the answer event on the bus. Optional wiring;
// skipped when no bus is configured.
func (s *queryService) publishAnswerEvent(ctx context.Context, tenantId, conversationId uuid.UUID, result *store.PipelineResult) {
	if s.eventBus == nil {
		return
	}

	event := events.BaseEvent{
		Type: "QUERY_ANSWERED",
		Data: map[string]interface{}{
			"tenant_id":       tenantId.String(),
			"conversation_id": conversationId.String(),
			"verdict":         result.Verdict,
			"confidence":      result.Confidence,
			"fallback_reason": result.FallbackReason,
		},
		OccurredAt: time.Now(),
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		log.Printf("[QUERY] answer event publish failed: %v", err)
	}
}

func buildAskResponse(conversationId uuid.UUID, result *store.PipelineResult, topicReset bool) *dto.AskResponse {
	resp := &dto.AskResponse{
		ConversationId:        conversationId,
		Answer:                result.Answer,
		Verdict:               result.Verdict,
		Confidence:            result.Confidence,
		ClarificationNeeded:   result.ClarificationNeeded,
		ClarificationQuestion: result.ClarificationQuestion,
		FallbackReason:        result.FallbackReason,
		TopicReset:            topicReset,
	}

	for _, c := range result.Citations {
		resp.Citations = append(resp.Citations, dto.CitationDTO{
			ChunkId:    c.ChunkID,
			DocumentId: c.DocumentID,
			Snippet:    c.Snippet,
		})
	}

	for _, c := range result.Candidates {
		row := dto.CandidateDTO{
			ChunkId:      c.ChunkID,
			DocumentId:   c.DocumentID,
			HeadingPath:  c.HeadingPath,
			Rank:         c.Rank,
			LexicalScore: c.LexicalScore,
			VectorScore:  c.VectorScore,
			RerankScore:  c.RerankScore,
			NormLexical:  c.NormLexical,
			NormVector:   c.NormVector,
			NormRerank:   c.NormRerank,
			FinalScore:   c.FinalScore,
		}
		for _, b := range c.Boosts {
			row.Boosts = append(row.Boosts, dto.BoostDTO{Name: b.Name, Value: b.Value, Reason: b.Reason})
		}
		resp.Scoring = append(resp.Scoring, row)
	}

	for _, t := range result.Traces {
		resp.Traces = append(resp.Traces, dto.StageTraceDTO{
			Stage:     t.Stage,
			LatencyMs: t.LatencyMs,
			Debug:     t.Debug,
		})
	}

	return resp
}

// rateLimitKey scopes the sliding window to one user inside one tenant.
func rateLimitKey(tenantId uuid.UUID, userId string) string {
	return tenantId.String() + ":" + userId
}

// usedChunkIDs lists the chunks an answer actually drew on. Citations
// win when present; a grounded answer without a citation list still
// used its delivered context.
func usedChunkIDs(result *store.PipelineResult) []string {
	if len(result.Citations) > 0 {
		ids := make([]string, 0, len(result.Citations))
		for _, c := range result.Citations {
			ids = append(ids, c.ChunkID)
		}
		return ids
	}

	if result.Verdict != store.VerdictPass || result.ClarificationNeeded {
		return nil
	}

	ids := make([]string, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		ids = append(ids, c.ChunkID)
	}
	return ids
}

func toMessages(turns []store.Turn) []llm.Message {
	messages := make([]llm.Message, len(turns))
	for i, t := range turns {
		messages[i] = llm.Message{Role: t.Role, Content: t.Text}
	}
	return messages
}

func truncateTitle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
