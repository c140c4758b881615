package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    18790,
			Bind:    "loopback",
			Workers: 10,
			Auth: ServerAuth{
				Mode: "token",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Session: SessionConfig{
			Store:             "redis",
			TTLSeconds:        3600,
			ArchiveTTLSeconds: 86400,
		},
		RateLimit: RateLimitConfig{
			Store:         "redis",
			MaxRequests:   100,
			WindowSeconds: 60,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Vector: VectorConfig{
			Provider:   "milvus",
			Host:       "127.0.0.1",
			Port:       19530,
			Collection: "docent_documents",
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Budget: BudgetConfig{
			Estimator:        "heuristic",
			Encoding:         "cl100k_base",
			ContextTokens:    3000,
			ToolResultTokens: 2000,
		},
		Stream: StreamConfig{
			ChunkSize:      64,
			ChunkDelayMS:   25,
			TimeoutSeconds: 120,
		},
		Agent: AgentConfig{
			Enabled:           true,
			TimeoutSeconds:    60,
			MaxToolIterations: 5,
		},
		Ingest: IngestConfig{
			Workers:           4,
			ChunkSize:         1000,
			ChunkOverlap:      200,
			AllowedExtensions: []string{".txt", ".md"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
