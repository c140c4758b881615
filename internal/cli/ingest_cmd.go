package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/docent/internal/domain"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Manage the document corpus",
	}

	cmd.AddCommand(newIngestAddCmd())
	cmd.AddCommand(newIngestListCmd())
	cmd.AddCommand(newIngestStatusCmd())
	cmd.AddCommand(newIngestRmCmd())
	return cmd
}

func newIngestAddCmd() *cobra.Command {
	var (
		server string
		noWait bool
	)

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Ingest files into the document corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The server resolves paths on its own filesystem, so relative
			// arguments must be absolutized before they leave this process.
			files := make([]string, 0, len(args))
			for _, a := range args {
				abs, err := filepath.Abs(a)
				if err != nil {
					return fmt.Errorf("resolving %s: %w", a, err)
				}
				files = append(files, abs)
			}

			return withGateway(server, func(ctx context.Context, gc *gatewayClient) error {
				var started ingestStarted
				if err := gc.call(ctx, "docs.ingest", ingestRequest{Paths: files}, &started); err != nil {
					return err
				}
				fmt.Printf("Job %s started (%d files)\n", started.JobID, started.TotalFiles)

				if noWait {
					return nil
				}
				return waitForJob(ctx, gc, started.JobID)
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "gateway address (default 127.0.0.1:<configured port>)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return immediately instead of waiting for the job")
	return cmd
}

// waitForJob polls docs.status until the job leaves the processing state.
func waitForJob(ctx context.Context, gc *gatewayClient, jobID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var res jobView
		if err := gc.call(ctx, "docs.status", jobRequest{JobID: jobID}, &res); err != nil {
			return err
		}
		job := res.Job
		if job == nil {
			return fmt.Errorf("job %s not found", jobID)
		}
		if job.Status == domain.JobProcessing {
			continue
		}

		if job.Status == domain.JobFailed {
			return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
		}
		fmt.Printf("Job %s completed: %d/%d files, %d document(s)\n",
			job.ID, job.ProcessedFiles, job.TotalFiles, len(job.DocumentIDs))
		return nil
	}
}

func newIngestListCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(server, func(ctx context.Context, gc *gatewayClient) error {
				var res docsView
				if err := gc.call(ctx, "docs.list", nil, &res); err != nil {
					return err
				}
				if res.Count == 0 {
					fmt.Println("No documents ingested.")
					return nil
				}
				for _, d := range res.Documents {
					fmt.Printf("  %-36s %-10s chunks=%-4d %s\n",
						d.ID, d.Status, d.ChunkCount, d.Filename)
				}
				fmt.Printf("\n%d document(s)\n", res.Count)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "gateway address (default 127.0.0.1:<configured port>)")
	return cmd
}

func newIngestStatusCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of an ingestion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(server, func(ctx context.Context, gc *gatewayClient) error {
				var res jobView
				if err := gc.call(ctx, "docs.status", jobRequest{JobID: args[0]}, &res); err != nil {
					return err
				}
				job := res.Job
				if job == nil {
					return fmt.Errorf("job not found: %s", args[0])
				}

				fmt.Printf("Job: %s\n", job.ID)
				fmt.Printf("  Status:    %s\n", job.Status)
				fmt.Printf("  Files:     %d/%d\n", job.ProcessedFiles, job.TotalFiles)
				fmt.Printf("  Documents: %d\n", len(job.DocumentIDs))
				fmt.Printf("  Created:   %s\n", job.CreatedAt.Local().Format(time.RFC3339))
				fmt.Printf("  Updated:   %s\n", job.UpdatedAt.Local().Format(time.RFC3339))
				if job.Error != "" {
					fmt.Printf("  Error:     %s\n", job.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "gateway address (default 127.0.0.1:<configured port>)")
	return cmd
}

func newIngestRmCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "rm <document-id>",
		Short: "Delete a document and its vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(server, func(ctx context.Context, gc *gatewayClient) error {
				var res struct {
					DocumentID string `json:"document_id"`
				}
				if err := gc.call(ctx, "docs.delete", docRemoveRequest{DocumentID: args[0]}, &res); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", res.DocumentID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "gateway address (default 127.0.0.1:<configured port>)")
	return cmd
}
