package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ClaudeCLI shells out to the `claude` binary in print mode. No API key
// needed; whatever account the CLI is logged into does the work.
type ClaudeCLI struct {
	model   string
	timeout time.Duration
}

func NewClaudeCLI(model string) *ClaudeCLI {
	return &ClaudeCLI{model: model, timeout: 120 * time.Second}
}

// Complete pipes the prompt through `claude -p` and returns trimmed stdout.
func (c *ClaudeCLI) Complete(ctx context.Context, prompt string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "claude", "-p", "--model", c.model, "--max-turns", "1")
	cmd.Stdin = strings.NewReader(prompt)
	// CLAUDE_* vars would make a nested invocation re-run session hooks.
	cmd.Env = withoutClaudeEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("claude cli: %w (stderr: %s)", err, stderr.String())
	}

	return &Response{
		Content:  strings.TrimSpace(stdout.String()),
		Provider: "claude-cli",
	}, nil
}

func withoutClaudeEnv(env []string) []string {
	out := env[:0:0]
	for _, e := range env {
		if !strings.HasPrefix(e, "CLAUDE_") {
			out = append(out, e)
		}
	}
	return out
}
