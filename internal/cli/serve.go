package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/soyeahso/docent/internal/admission"
	"github.com/soyeahso/docent/internal/agent"
	"github.com/soyeahso/docent/internal/budget"
	"github.com/soyeahso/docent/internal/chat"
	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/gateway"
	"github.com/soyeahso/docent/internal/hooks"
	"github.com/soyeahso/docent/internal/ingest"
	"github.com/soyeahso/docent/internal/llm"
	"github.com/soyeahso/docent/internal/logging"
	"github.com/soyeahso/docent/internal/metrics"
	"github.com/soyeahso/docent/internal/plugin"
	"github.com/soyeahso/docent/internal/rag"
	"github.com/soyeahso/docent/internal/session"
	"github.com/soyeahso/docent/internal/store"
	"github.com/soyeahso/docent/internal/stream"
	"github.com/soyeahso/docent/internal/vector"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docent gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// The flag wins; otherwise the config file decides. A nil
			// writer selects pretty console output.
			if logLevel == "" {
				var w io.Writer
				if cfg.Logging.Style == "json" {
					w = os.Stderr
				}
				log = logging.New(w, cfg.Logging.Level)
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// One Redis client backs sessions, admission counters and the
			// stream bus; none of it is built when everything runs in memory.
			var rdb *redis.Client
			if cfg.Session.Store == "redis" || cfg.RateLimit.Store == "redis" {
				rdb = redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer rdb.Close()

				pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				if err := rdb.Ping(pingCtx).Err(); err != nil {
					log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable at startup")
				}
				cancel()
			}

			var sessionStore session.Store
			if cfg.Session.Store == "redis" {
				sessionStore = session.NewRedisStore(rdb)
				log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis session store")
			} else {
				sessionStore = session.NewMemoryStore()
				log.Info().Msg("using in-memory session store")
			}
			sessions := session.NewManager(sessionStore, cfg.Session.TTLSeconds, cfg.Session.ArchiveTTLSeconds, log)

			var admitBackend admission.Backend
			if cfg.RateLimit.Store == "redis" {
				admitBackend = admission.NewRedisBackend(rdb)
			} else {
				admitBackend = admission.NewMemoryBackend()
			}
			limiter := admission.NewLimiter(admitBackend, cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSeconds, log)

			estimator, err := budget.NewEstimator(cfg.Budget.Estimator, cfg.Budget.Encoding)
			if err != nil {
				return fmt.Errorf("building token estimator: %w", err)
			}
			enforcer := budget.NewEnforcer(estimator)

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			var client llm.Client
			if len(cfg.LLM.Fallbacks) > 0 {
				client = llm.NewFailoverClient(registry, cfg.LLM.Provider, cfg.LLM.Fallbacks, log)
			} else {
				client, err = registry.Resolve(cfg.LLM.Provider)
				if err != nil {
					return fmt.Errorf("resolving generation provider: %w", err)
				}
			}

			embedder, err := llm.NewEmbedderFromConfig(cfg.Embedding, cfg.LLM.APIKey)
			if err != nil {
				return fmt.Errorf("building embedder: %w", err)
			}

			var vectors vector.Store
			switch cfg.Vector.Provider {
			case "", "milvus":
				vectors, err = vector.NewMilvusStore(ctx, cfg.Vector, cfg.Embedding.Dimensions, log)
				if err != nil {
					return fmt.Errorf("connecting to vector store: %w", err)
				}
			case "memory":
				vectors = vector.NewMemoryStore()
				log.Info().Msg("using in-memory vector store")
			default:
				return fmt.Errorf("unknown vector provider %q", cfg.Vector.Provider)
			}
			defer vectors.Close()

			db, err := store.Open(paths.DatabasePath(&cfg), log)
			if err != nil {
				return fmt.Errorf("opening document registry: %w", err)
			}
			defer db.Close()

			var m *metrics.Metrics
			if cfg.Metrics.Enabled {
				m = metrics.New("docent")
			}

			hookMgr := hooks.NewManager(log)

			var publisher stream.Publisher = stream.NopPublisher{}
			if rdb != nil {
				publisher = stream.NewRedisPublisher(rdb)
			}
			pipeline := stream.NewPipeline(publisher, cfg.Stream, log)

			assembler := rag.NewAssembler(embedder, vectors, client, enforcer,
				cfg.Retrieval.TopK, cfg.Budget.ContextTokens, log)

			var toolReg *agent.Registry
			var runner *agent.Runner
			if cfg.Agent.Enabled {
				toolReg = agent.NewRegistry()
				if cfg.Agent.GitHub.Username != "" {
					for _, t := range agent.NewGitHubTools(cfg.Agent.GitHub) {
						toolReg.Register(t)
					}
				}
				if cfg.Agent.PortfolioURL != "" {
					toolReg.Register(agent.NewPortfolioTool(cfg.Agent.PortfolioURL))
				}
				runner = agent.NewRunner(client, toolReg, enforcer, cfg.Agent, cfg.Budget.ToolResultTokens, log)
			} else {
				log.Info().Msg("tool-augmented path disabled")
			}

			pluginReg := plugin.NewRegistry(hookMgr, toolReg, log)
			if err := pluginReg.InitAll(ctx); err != nil {
				pluginReg.CloseAll()
				return fmt.Errorf("initializing plugins: %w", err)
			}
			defer pluginReg.CloseAll()

			chatOpts := []chat.Option{chat.WithHooks(hookMgr), chat.WithMetrics(m)}
			if runner != nil {
				chatOpts = append(chatOpts, chat.WithRunner(runner))
			}
			chatSvc := chat.NewService(limiter, sessions, assembler, pipeline, enforcer,
				cfg.Budget.ContextTokens, log, chatOpts...)

			ingestSvc := ingest.NewService(embedder, vectors,
				store.NewDocumentStore(db), store.NewJobStore(db), cfg.Ingest, log,
				ingest.WithHooks(hookMgr), ingest.WithMetrics(m))

			opts := []gateway.ServerOption{
				gateway.WithChat(chatSvc),
				gateway.WithIngest(ingestSvc),
				gateway.WithHooks(hookMgr),
				gateway.WithHealthProbe("vectors", vectors.Health),
				gateway.WithHealthProbe("registry", db.Ping),
				gateway.WithHealthProbe("provider", func(context.Context) error {
					_, err := registry.Resolve(cfg.LLM.Provider)
					return err
				}),
			}
			if toolReg != nil {
				opts = append(opts, gateway.WithTools(toolReg))
			}
			if m != nil {
				opts = append(opts, gateway.WithMetrics(m))
			}
			if rdb != nil {
				opts = append(opts, gateway.WithHealthProbe("sessions", func(ctx context.Context) error {
					return rdb.Ping(ctx).Err()
				}))
			}

			srv := gateway.New(cfg, log, opts...)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
