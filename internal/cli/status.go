package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/version"
)

func newStatusCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show docent status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("docent %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Docs:    %s\n", paths.Docs)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			// Load resolves a missing file to defaults, so existence is
			// reported separately.
			if _, statErr := os.Stat(paths.Config); os.IsNotExist(statErr) {
				fmt.Println("Config:  not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Server:  port=%d bind=%s auth=%s workers=%d\n",
				cfg.Server.Port, cfg.Server.Bind, cfg.Server.Auth.Mode, cfg.Server.Workers)
			fmt.Printf("Session: store=%s ttl=%ds\n",
				cfg.Session.Store, cfg.Session.TTLSeconds)
			fmt.Printf("Limits:  store=%s window=%d/%ds\n",
				cfg.RateLimit.Store, cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSeconds)

			provider := cfg.LLM.Provider
			if len(cfg.LLM.Fallbacks) > 0 {
				provider += " -> " + strings.Join(cfg.LLM.Fallbacks, " -> ")
			}
			fmt.Printf("LLM:     provider=%s model=%s\n", provider, cfg.LLM.Model)
			fmt.Printf("Embed:   provider=%s model=%s dims=%d\n",
				cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
			fmt.Printf("Vectors: provider=%s host=%s:%d collection=%s\n",
				cfg.Vector.Provider, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
			fmt.Printf("Ingest:  workers=%d chunk=%d/%d types=%s\n",
				cfg.Ingest.Workers, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap,
				strings.Join(cfg.Ingest.AllowedExtensions, ","))

			if cfg.Agent.Enabled {
				fmt.Printf("Tools:   enabled timeout=%ds iterations=%d\n",
					cfg.Agent.TimeoutSeconds, cfg.Agent.MaxToolIterations)
			} else {
				fmt.Println("Tools:   disabled")
			}
			if cfg.Metrics.Enabled {
				fmt.Println("Metrics: enabled (/metrics)")
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			// Best-effort probe of a running gateway.
			fmt.Println()
			probeGateway(cfg, server)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "gateway address (default 127.0.0.1:<configured port>)")
	return cmd
}

func probeGateway(cfg config.Config, server string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	gc, err := dialGateway(ctx, cfg, server)
	if err != nil {
		fmt.Println("Gateway: not reachable")
		return
	}
	defer gc.close()

	var h healthView
	if err := gc.call(ctx, "health", nil, &h); err != nil {
		fmt.Printf("Gateway: reachable, health check failed: %v\n", err)
		return
	}

	state := "healthy"
	if !h.Healthy {
		state = "degraded"
	}
	fmt.Printf("Gateway: %s (server %s, %d client(s))\n", state, h.Version, h.Clients)

	names := make([]string, 0, len(h.Components))
	for name := range h.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mark := "ok"
		if !h.Components[name] {
			mark = "FAIL"
		}
		fmt.Printf("  %-10s %s\n", name, mark)
	}
}
