package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.customBindHost",
			Message: "required when server.bind is custom",
		})
	}

	if cfg.Server.Workers < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "server.workers",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Server.Workers),
		})
	}

	validAuthModes := []string{"token", "password"}
	if cfg.Server.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Server.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "server.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Server.Auth.Mode),
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validLogStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validLogStyles, cfg.Logging.Style) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.style",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogStyles, cfg.Logging.Style),
		})
	}

	validStores := []string{"redis", "memory"}
	if cfg.Session.Store != "" && !slices.Contains(validStores, cfg.Session.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "session.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Session.Store),
		})
	}
	if cfg.RateLimit.Store != "" && !slices.Contains(validStores, cfg.RateLimit.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "rateLimit.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.RateLimit.Store),
		})
	}
	if (cfg.Session.Store == "redis" || cfg.RateLimit.Store == "redis") && cfg.Redis.Addr == "" {
		issues = append(issues, ValidationIssue{
			Path:    "redis.addr",
			Message: "required when a redis-backed store is selected",
		})
	}

	if cfg.RateLimit.MaxRequests < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "rateLimit.maxRequests",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.RateLimit.MaxRequests),
		})
	}
	if cfg.RateLimit.WindowSeconds < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "rateLimit.windowSeconds",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.RateLimit.WindowSeconds),
		})
	}

	validProviders := []string{"openai", "ollama", "mock"}
	if cfg.LLM.Provider != "" && !slices.Contains(validProviders, cfg.LLM.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "llm.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.LLM.Provider),
		})
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.apiKey",
			Message: "required for the openai provider",
		})
	}
	for i, fb := range cfg.LLM.Fallbacks {
		if !slices.Contains(validProviders, fb) {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("llm.fallbacks[%d]", i),
				Message: fmt.Sprintf("must be one of %v, got %q", validProviders, fb),
			})
		}
	}

	validEmbedders := []string{"openai", "hash"}
	if cfg.Embedding.Provider != "" && !slices.Contains(validEmbedders, cfg.Embedding.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "embedding.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validEmbedders, cfg.Embedding.Provider),
		})
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" && cfg.LLM.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "embedding.apiKey",
			Message: "required for the openai embedding provider",
		})
	}

	validVectors := []string{"milvus", "memory"}
	if cfg.Vector.Provider != "" && !slices.Contains(validVectors, cfg.Vector.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "vector.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validVectors, cfg.Vector.Provider),
		})
	}
	if cfg.Vector.Provider == "milvus" && cfg.Vector.Host == "" {
		issues = append(issues, ValidationIssue{
			Path:    "vector.host",
			Message: "required for the milvus provider",
		})
	}

	validEstimators := []string{"heuristic", "tiktoken"}
	if cfg.Budget.Estimator != "" && !slices.Contains(validEstimators, cfg.Budget.Estimator) {
		issues = append(issues, ValidationIssue{
			Path:    "budget.estimator",
			Message: fmt.Sprintf("must be one of %v, got %q", validEstimators, cfg.Budget.Estimator),
		})
	}

	for i, ext := range cfg.Ingest.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("ingest.allowedExtensions[%d]", i),
				Message: fmt.Sprintf("extension must start with a dot, got %q", ext),
			})
		}
	}

	return issues
}
