package config

import (
	"testing"
)

func validConfig() *Config {
	c := &Config{}
	c.Retrieval = RetrievalConfig{
		TopK:                10,
		VectorWeight:        0.7,
		LexicalWeight:       0.3,
		RerankWeight:        0.25,
		ExpansionMode:       "doc_neighbor",
		ContextTokenBudget:  3000,
		AnswerTokenBudget:   2500,
		SimilarityThreshold: 0.92,
	}
	c.Pipeline = PipelineConfig{
		MaxClarificationDepth: 2,
		MinConfidence:         0.35,
		MinOverlapRatio:       0.5,
		MinSemanticSim:        0.6,
	}
	c.Guard = GuardConfig{WindowSeconds: 60, MaxRequests: 30, Burst: 5, BurstWindowSeconds: 2, MaxKeys: 1000}
	return c
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights do not sum to one", func(c *Config) { c.Retrieval.VectorWeight = 0.5 }},
		{"weight above one", func(c *Config) { c.Retrieval.VectorWeight = 1.2; c.Retrieval.LexicalWeight = -0.2 }},
		{"negative rerank weight", func(c *Config) { c.Retrieval.RerankWeight = -0.1 }},
		{"unknown expansion mode", func(c *Config) { c.Retrieval.ExpansionMode = "aggressive" }},
		{"zero token budget", func(c *Config) { c.Retrieval.ContextTokenBudget = 0 }},
		{"confidence above one", func(c *Config) { c.Pipeline.MinConfidence = 1.5 }},
		{"negative clarification depth", func(c *Config) { c.Pipeline.MaxClarificationDepth = -1 }},
		{"zero rate limit", func(c *Config) { c.Guard.MaxRequests = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
