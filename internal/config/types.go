package config

// Config is the root configuration for docent.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Redis     RedisConfig     `yaml:"redis,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	RateLimit RateLimitConfig `yaml:"rateLimit,omitempty"`
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Embedding EmbeddingConfig `yaml:"embedding,omitempty"`
	Vector    VectorConfig    `yaml:"vector,omitempty"`
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty"`
	Budget    BudgetConfig    `yaml:"budget,omitempty"`
	Stream    StreamConfig    `yaml:"stream,omitempty"`
	Agent     AgentConfig     `yaml:"agent,omitempty"`
	Ingest    IngestConfig    `yaml:"ingest,omitempty"`
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
}

// ServerConfig controls the gateway HTTP/WebSocket server.
type ServerConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Bind           string     `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	Workers        int        `yaml:"workers,omitempty"` // bounded RPC worker pool size
	CORSOrigins    []string   `yaml:"corsOrigins,omitempty"`
	Auth           ServerAuth `yaml:"auth,omitempty"`
	TLS            ServerTLS  `yaml:"tls,omitempty"`
}

// ServerAuth configures gateway authentication.
type ServerAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// ServerTLS configures TLS for the gateway.
type ServerTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}

// RedisConfig points at the durable KV / pub-sub backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// SessionConfig defines conversation session behavior.
type SessionConfig struct {
	Store             string `yaml:"store,omitempty"` // "redis" | "memory"
	TTLSeconds        int    `yaml:"ttlSeconds,omitempty"`
	ArchiveTTLSeconds int    `yaml:"archiveTtlSeconds,omitempty"` // retention after explicit close
}

// RateLimitConfig defines the admission window.
type RateLimitConfig struct {
	Store         string `yaml:"store,omitempty"` // "redis" | "memory"
	MaxRequests   int    `yaml:"maxRequests,omitempty"`
	WindowSeconds int    `yaml:"windowSeconds,omitempty"`
}

// LLMConfig selects and tunes the generation provider.
type LLMConfig struct {
	Provider    string   `yaml:"provider,omitempty"` // "openai" | "ollama" | "mock"
	Model       string   `yaml:"model,omitempty"`
	APIKey      string   `yaml:"apiKey,omitempty"`
	BaseURL     string   `yaml:"baseUrl,omitempty"`
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
	Temperature float64  `yaml:"temperature,omitempty"`
	Fallbacks   []string `yaml:"fallbacks,omitempty"` // providers tried in order on retryable errors
}

// EmbeddingConfig selects the embedding provider used for retrieval and ingestion.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider,omitempty"` // "openai" | "hash"
	Model      string `yaml:"model,omitempty"`
	APIKey     string `yaml:"apiKey,omitempty"`
	BaseURL    string `yaml:"baseUrl,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
}

// VectorConfig points at the vector similarity store.
type VectorConfig struct {
	Provider   string `yaml:"provider,omitempty"` // "milvus" | "memory"
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
}

// RetrievalConfig tunes context retrieval.
type RetrievalConfig struct {
	TopK int `yaml:"topK,omitempty"`
}

// BudgetConfig bounds estimated token cost of provider input and tool output.
type BudgetConfig struct {
	Estimator        string `yaml:"estimator,omitempty"` // "heuristic" | "tiktoken"
	Encoding         string `yaml:"encoding,omitempty"`  // tiktoken encoding name
	ContextTokens    int    `yaml:"contextTokens,omitempty"`
	ToolResultTokens int    `yaml:"toolResultTokens,omitempty"`
}

// StreamConfig shapes fragment delivery.
type StreamConfig struct {
	ChunkSize      int `yaml:"chunkSize,omitempty"`    // characters per fragment when the provider doesn't stream
	ChunkDelayMS   int `yaml:"chunkDelayMs,omitempty"` // inter-fragment delay
	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty"`
}

// AgentConfig controls the tool-augmented execution path.
type AgentConfig struct {
	Enabled           bool         `yaml:"enabled,omitempty"`
	TimeoutSeconds    int          `yaml:"timeoutSeconds,omitempty"`
	MaxToolIterations int          `yaml:"maxToolIterations,omitempty"`
	GitHub            GitHubConfig `yaml:"github,omitempty"`
	PortfolioURL      string       `yaml:"portfolioUrl,omitempty"`
}

// GitHubConfig configures the GitHub lookup tools.
type GitHubConfig struct {
	Username string `yaml:"username,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// IngestConfig tunes the document ingestion pipeline.
type IngestConfig struct {
	Workers           int      `yaml:"workers,omitempty"`
	ChunkSize         int      `yaml:"chunkSize,omitempty"`
	ChunkOverlap      int      `yaml:"chunkOverlap,omitempty"`
	AllowedExtensions []string `yaml:"allowedExtensions,omitempty"`
}

// StorageConfig locates the SQLite document/job registry.
type StorageConfig struct {
	Path string `yaml:"path,omitempty"` // defaults to <home>/data/docent.db
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}
