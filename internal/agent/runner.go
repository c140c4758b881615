// Package agent implements the tool-augmented answer path: the question and
// a fixed toolset go to the generation provider, which may invoke tools
// over a bounded number of rounds before producing a final answer. The
// whole run is capped by a wall clock, and every tool output is cut to the
// configured result budget before it re-enters the conversation, because
// tool outputs are data-controlled and unbounded in principle.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/soyeahso/docent/internal/budget"
	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/llm"
	"github.com/soyeahso/docent/internal/logging"
)

// RunResult is the outcome of one tool-augmented run.
type RunResult struct {
	Answer    string
	ToolsUsed []string
	Model     string
	Usage     llm.Usage
	Duration  time.Duration
}

// Runner drives the provider through the tool loop. It owns no session
// state; the caller supplies history and persists the result.
type Runner struct {
	client        llm.Client
	tools         *Registry
	enforcer      *budget.Enforcer
	timeout       time.Duration
	maxIterations int
	resultTokens  int
	log           *logging.Logger
}

func NewRunner(
	client llm.Client,
	tools *Registry,
	enforcer *budget.Enforcer,
	cfg config.AgentConfig,
	resultTokens int,
	log *logging.Logger,
) *Runner {
	return &Runner{
		client:        client,
		tools:         tools,
		enforcer:      enforcer,
		timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxIterations: cfg.MaxToolIterations,
		resultTokens:  resultTokens,
		log:           log.Sub("agent"),
	}
}

// Run answers one question with tools available. History should already be
// budget-fitted by the caller.
func (r *Runner) Run(ctx context.Context, question string, history []domain.Message) (*RunResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	system := BuildToolPrompt(r.tools.Definitions())

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})

	var toolsUsed []string
	var finalResp *llm.CompletionResponse

	for i := 0; i < r.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tool run exceeded %s: %w", r.timeout, err)
		}

		resp, err := r.client.Complete(ctx, llm.CompletionRequest{
			System:   system,
			Messages: msgs,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("tool run exceeded %s: %w", r.timeout, ctxErr)
			}
			return nil, fmt.Errorf("generate with tools: %w", err)
		}
		finalResp = resp

		calls := parseToolCalls(resp.Content)
		if len(calls) == 0 {
			break
		}

		r.log.Info().Int("toolCalls", len(calls)).Int("iteration", i+1).Msg("executing tool calls")

		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

		results := r.execute(ctx, calls)
		for _, tr := range results {
			toolsUsed = append(toolsUsed, tr.Tool)
		}

		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: formatResults(results)})
		// Loop so the provider can read the tool results.
	}

	if finalResp == nil {
		return nil, fmt.Errorf("no response from provider")
	}

	answer := stripToolCalls(finalResp.Content)

	r.log.Info().
		Str("model", finalResp.Model).
		Int("toolsUsed", len(toolsUsed)).
		Dur("duration", time.Since(start)).
		Msg("tool run finished")

	return &RunResult{
		Answer:    answer,
		ToolsUsed: toolsUsed,
		Model:     finalResp.Model,
		Usage:     finalResp.Usage,
		Duration:  time.Since(start),
	}, nil
}

// toolCall is a parsed tool invocation from provider output.
type toolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// toolResult holds the output from executing one tool.
type toolResult struct {
	Tool   string
	Output string
	Err    error
}

// toolCallRe matches ```tool_call\n{...}\n``` blocks in provider output.
var toolCallRe = regexp.MustCompile("(?s)```tool_call\\s*\n(\\{.*?\\})\n\\s*```")

// blankRunRe collapses 3+ consecutive newlines left by block removal.
var blankRunRe = regexp.MustCompile(`\n{3,}`)

// parseToolCalls extracts tool_call blocks from provider output. Blocks
// that are not JSON or name no tool are skipped, not errors; providers
// produce malformed blocks routinely and the prose around them is still
// the answer.
func parseToolCalls(text string) []toolCall {
	var calls []toolCall
	for _, match := range toolCallRe.FindAllStringSubmatch(text, -1) {
		var tc toolCall
		if err := json.Unmarshal([]byte(match[1]), &tc); err != nil || tc.Tool == "" {
			continue
		}
		calls = append(calls, tc)
	}
	return calls
}

// execute runs each requested tool, bounding successful output to the
// result budget.
func (r *Runner) execute(ctx context.Context, calls []toolCall) []toolResult {
	var results []toolResult
	for _, tc := range calls {
		tool, ok := r.tools.Get(tc.Tool)
		if !ok {
			results = append(results, toolResult{
				Tool: tc.Tool,
				Err:  fmt.Errorf("unknown tool: %s", tc.Tool),
			})
			continue
		}

		r.log.Debug().Str("tool", tc.Tool).Msg("invoking tool")
		output, err := tool.Invoke(ctx, string(tc.Input))
		if err == nil {
			output = r.enforcer.TruncateOutput(output, r.resultTokens)
		}
		results = append(results, toolResult{Tool: tc.Tool, Output: output, Err: err})
	}
	return results
}

// formatResults renders tool outputs for the provider's next turn.
func formatResults(results []toolResult) string {
	var b strings.Builder
	b.WriteString("Tool execution results:\n\n")
	for _, tr := range results {
		fmt.Fprintf(&b, "### %s\n", tr.Tool)
		if tr.Err != nil {
			fmt.Fprintf(&b, "Error: %s\n\n", tr.Err)
			continue
		}
		fmt.Fprintf(&b, "%s\n\n", tr.Output)
	}
	return b.String()
}

// stripToolCalls removes tool_call blocks from the final answer, leaving
// the surrounding prose.
func stripToolCalls(text string) string {
	cleaned := toolCallRe.ReplaceAllString(text, "\n\n")
	cleaned = blankRunRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
