package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/meownm/ai-rag-sub000/internal/config"
	"github.com/meownm/ai-rag-sub000/internal/controller"
	"github.com/meownm/ai-rag-sub000/internal/pkg/logger"
	"github.com/meownm/ai-rag-sub000/internal/repository/implementation"
	"github.com/meownm/ai-rag-sub000/internal/repository/memory"
	"github.com/meownm/ai-rag-sub000/internal/repository/unitofwork"
	"github.com/meownm/ai-rag-sub000/internal/service"
	"github.com/meownm/ai-rag-sub000/pkg/embedding"
	embeddingJina "github.com/meownm/ai-rag-sub000/pkg/embedding/jina"
	"github.com/meownm/ai-rag-sub000/pkg/events"
	"github.com/meownm/ai-rag-sub000/pkg/llm/factory"
	pktNats "github.com/meownm/ai-rag-sub000/pkg/nats"
	"github.com/meownm/ai-rag-sub000/pkg/rag/agent"
	"github.com/meownm/ai-rag-sub000/pkg/rag/budget"
	"github.com/meownm/ai-rag-sub000/pkg/rag/conversation"
	"github.com/meownm/ai-rag-sub000/pkg/rag/executor"
	"github.com/meownm/ai-rag-sub000/pkg/rag/expansion"
	"github.com/meownm/ai-rag-sub000/pkg/rag/fusion"
	"github.com/meownm/ai-rag-sub000/pkg/rag/grounding"
	"github.com/meownm/ai-rag-sub000/pkg/rag/guard"
	rerankJina "github.com/meownm/ai-rag-sub000/pkg/rerank/jina"
)

// TraceTopic is the in-process topic carrying retrieval traces from the
// request path to the persistence consumer.
const TraceTopic = "retrieval_trace_persist"

type Container struct {
	QueryController controller.IQueryController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	QueryService    service.IQueryService

	Logger logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	pipelineLog := log.Default()

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Providers
	var embeddingProvider embedding.EmbeddingProvider
	switch cfg.Ai.EmbeddingProvider {
	case "ollama":
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)
	case "jina":
		embeddingProvider = embeddingJina.NewJinaProvider(cfg.Ai.JinaAPIKey)
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
	default:
		embeddingProvider = embedding.NewGeminiProvider(cfg.Ai.GeminiAPIKey)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.HuggingFaceAPIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		natsPub = nil
	}

	// Audit listener: answered queries land in the structured log even
	// when the answering instance crashes right after responding.
	if natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL); err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		err := natsSub.Subscribe("events.QUERY_ANSWERED", "query-audit", func(_ context.Context, event events.Event) error {
			sysLogger.Info("audit", "query answered", event.Payload())
			return nil
		})
		if err != nil {
			log.Printf("[WARN] Failed to subscribe to answer events: %v", err)
		}
	}

	var limiter guard.Limiter
	limitCfg := guard.LimitConfig{
		Window:      time.Duration(cfg.Guard.WindowSeconds) * time.Second,
		MaxRequests: cfg.Guard.MaxRequests,
		Burst:       cfg.Guard.Burst,
		BurstWindow: time.Duration(cfg.Guard.BurstWindowSeconds) * time.Second,
		MaxKeys:     cfg.Guard.MaxKeys,
	}
	if cfg.Guard.UseRedis {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		limiter = guard.NewRedisLimiter(limitCfg, rdb, "ratelimit")
		log.Printf("[INFO] Using Redis rate limiter")
	} else {
		limiter = guard.NewMemoryLimiter(limitCfg)
		log.Printf("[INFO] Using in-memory rate limiter")
	}

	// 5. Retrieval core
	chunkRepo := implementation.NewChunkRepository(db)
	retrievalSource := service.NewRetrievalSource(chunkRepo)

	fuser, err := fusion.NewFuser(fusion.Config{
		VectorWeight:  cfg.Retrieval.VectorWeight,
		LexicalWeight: cfg.Retrieval.LexicalWeight,
		RerankWeight:  cfg.Retrieval.RerankWeight,
		Normalize:     true,
	})
	if err != nil {
		log.Fatalf("[FATAL] Invalid fusion configuration: %v", err)
	}

	expansionEngine := expansion.NewEngine(expansion.Config{
		Mode:                expansion.Mode(cfg.Retrieval.ExpansionMode),
		Window:              cfg.Retrieval.ExpansionWindow,
		TopDocs:             cfg.Retrieval.ExpansionTopDocs,
		MaxLinkedDocs:       expansion.DefaultConfig().MaxLinkedDocs,
		LinkChunksPerDoc:    expansion.DefaultConfig().LinkChunksPerDoc,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		MinGain:             cfg.Retrieval.MinGain,
		TokenBudget:         cfg.Retrieval.ContextTokenBudget,
		MaxExtraChunks:      cfg.Retrieval.MaxExtraChunks,
		MinDocDepth:         expansion.DefaultConfig().MinDocDepth,
		DiversityRatio:      expansion.DefaultConfig().DiversityRatio,
	}, retrievalSource, pipelineLog)

	assembler, err := budget.NewAssembler(cfg.Retrieval.AnswerTokenBudget, budget.ModeToken)
	if err != nil {
		log.Fatalf("[FATAL] Invalid budget configuration: %v", err)
	}

	verifier := grounding.NewVerifier(grounding.Config{
		MinOverlapRatio: cfg.Pipeline.MinOverlapRatio,
		MinSemanticSim:  cfg.Pipeline.MinSemanticSim,
	}, pipelineLog)

	var reranker agent.Reranker
	if cfg.Ai.RerankEnabled && cfg.Ai.JinaAPIKey != "" {
		reranker = rerankJina.NewJinaReranker(cfg.Ai.JinaAPIKey)
		log.Printf("[INFO] Reranking enabled (Jina)")
	}

	conversationManager := conversation.NewManager(conversation.DefaultConfig(), llmProvider, pipelineLog)

	pipeline := executor.NewPipelineExecutor(
		agent.NewRewriteAgent(llmProvider, pipelineLog),
		agent.NewRetrievalAgent(
			retrievalSource,
			embeddingProvider,
			reranker,
			fuser,
			cfg.Retrieval.TopK,
			time.Duration(cfg.Ai.RerankTimeoutMs)*time.Millisecond,
			conversation.DefaultConfig().MemoryBoostMax,
			pipelineLog,
		),
		agent.NewAnalysisAgent(expansionEngine, assembler, pipelineLog),
		agent.NewAnswerAgent(llmProvider, pipelineLog),
		verifier,
		executor.Config{
			MaxClarificationDepth: cfg.Pipeline.MaxClarificationDepth,
			MinConfidence:         cfg.Pipeline.MinConfidence,
			Debug:                 cfg.Pipeline.Debug,
		},
		pipelineLog,
	)

	// 6. Services
	contextCache := memory.NewContextCache()

	queryService := service.NewQueryService(
		uowFactory,
		pipeline,
		conversationManager,
		embeddingProvider,
		contextCache,
		limiter,
		pubSub,
		TraceTopic,
		natsPub,
	)

	consumerService := service.NewConsumerService(
		pubSub,
		TraceTopic,
		uowFactory,
	)

	sysLogger.Info("bootstrap", "container wired", map[string]interface{}{
		"expansion_mode": cfg.Retrieval.ExpansionMode,
		"rerank_enabled": cfg.Ai.RerankEnabled,
	})

	return &Container{
		QueryController: controller.NewQueryController(queryService),
		ConsumerService: consumerService,
		QueryService:    queryService,
		Logger:          sysLogger,
	}
}
