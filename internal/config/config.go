package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Ai        AIConfig
	Retrieval RetrievalConfig
	Pipeline  PipelineConfig
	Guard     GuardConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
	OTLPEndpoint       string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	EmbeddingProvider string // "ollama", "gemini" or "jina"
	OllamaBaseURL     string
	OllamaModel       string
	LLMProvider       string // "ollama", "huggingface"
	LLMModel          string // e.g. "llama3", "qwen2.5"
	GeminiAPIKey      string
	JinaAPIKey        string
	HuggingFaceAPIKey string
	RerankEnabled     bool
	RerankTimeoutMs   int
}

type RetrievalConfig struct {
	TopK                int
	VectorWeight        float64
	LexicalWeight       float64
	RerankWeight        float64
	ExpansionMode       string
	ExpansionWindow     int
	ExpansionTopDocs    int
	SimilarityThreshold float64
	MinGain             float64
	ContextTokenBudget  int
	MaxExtraChunks      int
	AnswerTokenBudget   int
}

type PipelineConfig struct {
	MaxClarificationDepth int
	MinConfidence         float64
	MinOverlapRatio       float64
	MinSemanticSim        float64
	Debug                 bool
}

type GuardConfig struct {
	WindowSeconds      int
	MaxRequests        int
	Burst              int
	BurstWindowSeconds int
	MaxKeys            int
	UseRedis           bool
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			OTLPEndpoint:       getEnv("OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
			GeminiAPIKey:      getEnv("GOOGLE_GEMINI_API_KEY", ""),
			JinaAPIKey:        getEnv("JINA_API_KEY", ""),
			HuggingFaceAPIKey: getEnv("HUGGINGFACE_API_KEY", ""),
			RerankEnabled:     getEnvAsBool("RERANK_ENABLED", false),
			RerankTimeoutMs:   getEnvAsInt("RERANK_TIMEOUT_MS", 1500),
		},
		Retrieval: RetrievalConfig{
			TopK:                getEnvAsInt("RETRIEVAL_TOP_K", 10),
			VectorWeight:        getEnvAsFloat("FUSION_VECTOR_WEIGHT", 0.7),
			LexicalWeight:       getEnvAsFloat("FUSION_LEXICAL_WEIGHT", 0.3),
			RerankWeight:        getEnvAsFloat("FUSION_RERANK_WEIGHT", 0.25),
			ExpansionMode:       getEnv("EXPANSION_MODE", "doc_neighbor"),
			ExpansionWindow:     getEnvAsInt("EXPANSION_WINDOW", 2),
			ExpansionTopDocs:    getEnvAsInt("EXPANSION_TOP_DOCS", 3),
			SimilarityThreshold: getEnvAsFloat("EXPANSION_SIMILARITY_THRESHOLD", 0.92),
			MinGain:             getEnvAsFloat("EXPANSION_MIN_GAIN", 0.05),
			ContextTokenBudget:  getEnvAsInt("EXPANSION_TOKEN_BUDGET", 3000),
			MaxExtraChunks:      getEnvAsInt("EXPANSION_MAX_EXTRA_CHUNKS", 12),
			AnswerTokenBudget:   getEnvAsInt("ANSWER_TOKEN_BUDGET", 2500),
		},
		Pipeline: PipelineConfig{
			MaxClarificationDepth: getEnvAsInt("PIPELINE_MAX_CLARIFICATION_DEPTH", 2),
			MinConfidence:         getEnvAsFloat("PIPELINE_MIN_CONFIDENCE", 0.35),
			MinOverlapRatio:       getEnvAsFloat("GROUNDING_MIN_OVERLAP", 0.5),
			MinSemanticSim:        getEnvAsFloat("GROUNDING_MIN_SEMANTIC_SIM", 0.6),
			Debug:                 getEnvAsBool("PIPELINE_DEBUG", false),
		},
		Guard: GuardConfig{
			WindowSeconds:      getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			MaxRequests:        getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 30),
			Burst:              getEnvAsInt("RATE_LIMIT_BURST", 5),
			BurstWindowSeconds: getEnvAsInt("RATE_LIMIT_BURST_WINDOW_SECONDS", 2),
			MaxKeys:            getEnvAsInt("RATE_LIMIT_MAX_KEYS", 10000),
			UseRedis:           getEnvAsBool("RATE_LIMIT_USE_REDIS", false),
		},
	}
}

// Validate catches misconfiguration at startup. A bad weight pair or
// threshold is a boot failure, never a per-query error.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.VectorWeight < 0 || r.VectorWeight > 1 || r.LexicalWeight < 0 || r.LexicalWeight > 1 {
		return fmt.Errorf("fusion weights must lie in [0,1]: vector=%.3f lexical=%.3f", r.VectorWeight, r.LexicalWeight)
	}
	if math.Abs(r.VectorWeight+r.LexicalWeight-1.0) > 1e-6 {
		return fmt.Errorf("fusion weights must sum to 1.0: vector=%.3f + lexical=%.3f = %.3f",
			r.VectorWeight, r.LexicalWeight, r.VectorWeight+r.LexicalWeight)
	}
	if r.RerankWeight < 0 {
		return fmt.Errorf("rerank weight must be non-negative: %.3f", r.RerankWeight)
	}

	switch r.ExpansionMode {
	case "off", "neighbor", "doc_neighbor", "doc_neighbor_plus_links":
	default:
		return fmt.Errorf("unknown expansion mode %q", r.ExpansionMode)
	}
	if r.ContextTokenBudget <= 0 || r.AnswerTokenBudget <= 0 {
		return fmt.Errorf("token budgets must be positive: context=%d answer=%d", r.ContextTokenBudget, r.AnswerTokenBudget)
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval top-k must be positive: %d", r.TopK)
	}

	p := c.Pipeline
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("minimum confidence must lie in [0,1]: %.3f", p.MinConfidence)
	}
	if p.MaxClarificationDepth < 0 {
		return fmt.Errorf("max clarification depth must be non-negative: %d", p.MaxClarificationDepth)
	}
	if p.MinOverlapRatio < 0 || p.MinOverlapRatio > 1 || p.MinSemanticSim < 0 || p.MinSemanticSim > 1 {
		return fmt.Errorf("grounding thresholds must lie in [0,1]: overlap=%.3f semantic=%.3f", p.MinOverlapRatio, p.MinSemanticSim)
	}

	g := c.Guard
	if g.MaxRequests <= 0 || g.Burst <= 0 || g.WindowSeconds <= 0 {
		return fmt.Errorf("rate limit parameters must be positive: max=%d burst=%d window=%ds", g.MaxRequests, g.Burst, g.WindowSeconds)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
