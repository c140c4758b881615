package cli

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/llm"
)

func newChatCmd() *cobra.Command {
	var (
		server    string
		sessionID string
		streamOut bool
		useTools  bool
		topK      int
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask a question, or start an interactive session",
		Long: "With a message argument, sends one question and prints the answer.\n" +
			"Without arguments, reads questions from stdin in a loop, keeping the\n" +
			"conversation in a single session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			gc, err := dialGateway(ctx, cfg, server)
			if err != nil {
				return err
			}
			defer gc.close()

			if len(args) > 0 {
				_, err := sendTurn(ctx, cmd, gc, chatRequest{
					SessionID: sessionID,
					Message:   strings.Join(args, " "),
					UseTools:  useTools,
					K:         topK,
				}, streamOut)
				return err
			}

			return chatLoop(ctx, cmd, gc, sessionID, useTools, topK, streamOut)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "gateway address (default 127.0.0.1:<configured port>)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to continue")
	cmd.Flags().BoolVar(&streamOut, "stream", false, "print the answer as it is generated")
	cmd.Flags().BoolVar(&useTools, "tools", false, "allow tool calls while answering")
	cmd.Flags().IntVar(&topK, "k", 0, "passages to retrieve (0 = server default)")

	cmd.AddCommand(newChatHistoryCmd())
	cmd.AddCommand(newChatClearCmd())
	cmd.AddCommand(newChatCloseCmd())
	return cmd
}

// sendTurn sends one message and prints the answer. It returns the
// session ID the server answered under so the next turn continues it.
func sendTurn(ctx context.Context, cmd *cobra.Command, gc *gatewayClient, req chatRequest, streamOut bool) (string, error) {
	if streamOut {
		end, err := gc.stream(ctx, req, func(d chatFragment) {
			if !d.Done {
				fmt.Print(d.Fragment)
			}
		})
		if err != nil {
			return req.SessionID, err
		}
		fmt.Println()
		printTurnFooter(cmd, end.Sources, end.ToolCalls, "", llm.Usage{})
		return end.SessionID, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var res chatAnswer
	if err := gc.call(sendCtx, "chat.send", req, &res); err != nil {
		return req.SessionID, err
	}
	fmt.Println(res.Answer)
	printTurnFooter(cmd, res.Sources, res.ToolCalls, res.Model, res.Usage)
	return res.SessionID, nil
}

func printTurnFooter(cmd *cobra.Command, sources, toolCalls []string, model string, usage llm.Usage) {
	if len(sources) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[sources: %s]\n", strings.Join(sources, ", "))
	}
	if len(toolCalls) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[tools: %s]\n", strings.Join(toolCalls, ", "))
	}
	if model != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "[model=%s tokens=%d+%d]\n",
			model, usage.InputTokens, usage.OutputTokens)
	}
}

// chatLoop reads questions from stdin until EOF or an exit word. Errors
// on individual turns are reported and the loop continues; only a dead
// connection or signal ends it.
func chatLoop(ctx context.Context, cmd *cobra.Command, gc *gatewayClient, sessionID string, useTools bool, topK int, streamOut bool) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Connected to docent %s (protocol %d). Type a question, or \"exit\" to quit.\n",
		gc.hello.Server.Version, gc.hello.Protocol)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(cmd.ErrOrStderr(), "> ")
		if !scanner.Scan() {
			fmt.Fprintln(cmd.ErrOrStderr())
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		sid, err := sendTurn(ctx, cmd, gc, chatRequest{
			SessionID: sessionID,
			Message:   line,
			UseTools:  useTools,
			K:         topK,
		}, streamOut)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		sessionID = sid
	}
	return scanner.Err()
}

func newChatHistoryCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(server, func(ctx context.Context, gc *gatewayClient) error {
				var res historyView
				if err := gc.call(ctx, "history.get", sessionRequest{SessionID: args[0]}, &res); err != nil {
					return err
				}
				if res.Count == 0 {
					fmt.Println("(no messages)")
					return nil
				}
				for _, m := range res.Messages {
					fmt.Printf("  [%s] %-9s %s\n",
						m.Timestamp.Local().Format("15:04:05"), m.Role, m.Content)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "gateway address (default 127.0.0.1:<configured port>)")
	return cmd
}

func newChatClearCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Clear a session's history, keeping the session open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(server, func(ctx context.Context, gc *gatewayClient) error {
				var res struct {
					SessionID string `json:"session_id"`
				}
				if err := gc.call(ctx, "history.clear", sessionRequest{SessionID: args[0]}, &res); err != nil {
					return err
				}
				fmt.Printf("History cleared for %s\n", res.SessionID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "gateway address (default 127.0.0.1:<configured port>)")
	return cmd
}

func newChatCloseCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session and archive its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(server, func(ctx context.Context, gc *gatewayClient) error {
				var res sessionCloseView
				if err := gc.call(ctx, "session.close", sessionRequest{SessionID: args[0]}, &res); err != nil {
					return err
				}
				fmt.Printf("Session %s closed (%d messages archived)\n", res.SessionID, res.MessageCount)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "gateway address (default 127.0.0.1:<configured port>)")
	return cmd
}
