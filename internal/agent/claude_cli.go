package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harborview/dealscope/pkg/logger"
)

// CLIDriver implements the Driver interface by shelling out to the claude
// CLI. The engagement analyst runs it on a workstation with the CLI
// installed and authenticated.
type CLIDriver struct {
	binary      string
	model       string
	temperature float64
	maxTokens   int
}

// NewCLIDriver creates a CLI driver with defaults suited to structured
// financial output.
func NewCLIDriver() *CLIDriver {
	return &CLIDriver{
		binary:      "claude",
		model:       "sonnet",
		temperature: 0.2, // Low temperature keeps numeric output stable
		maxTokens:   8000,
	}
}

// Configure implements Driver interface.
func (d *CLIDriver) Configure(config map[string]any) error {
	if binary, ok := config["binary"].(string); ok {
		d.binary = binary
	}
	if model, ok := config["model"].(string); ok {
		d.model = model
	}
	if temp, ok := config["temperature"].(float64); ok {
		d.temperature = temp
	}
	if maxTokens, ok := config["max_tokens"].(float64); ok {
		d.maxTokens = int(maxTokens)
	} else if maxTokens, ok := config["max_tokens"].(int); ok {
		d.maxTokens = maxTokens
	}
	return nil
}

// Invoke implements Driver interface. The stage identifier selects the
// capability; the rendered prompt travels on stdin.
func (d *CLIDriver) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.StageID == "" {
		return nil, fmt.Errorf("invoke: stage id is required")
	}

	args := []string{
		"--model", d.model,
		"--output-format", "json",
		"--max-turns", "1",
		"--temperature", fmt.Sprintf("%.2f", d.temperature),
	}
	if d.maxTokens > 0 {
		args = append(args, "--max-tokens", fmt.Sprintf("%d", d.maxTokens))
	}
	args = append(args, "--append-system-prompt", "You are the "+req.StageID+" analytical agent. Respond with a single JSON object and nothing else.")

	log := logger.WithStage(req.StageID)
	log.Debug("invoking cli", "binary", d.binary, "model", d.model)

	cmd := exec.CommandContext(ctx, d.binary, args...)
	cmd.Stdin = strings.NewReader(req.PromptText)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	err := cmd.Run()
	duration := time.Since(startTime)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("stage %s: cli failed: %w (stderr: %s)", req.StageID, err, stderr.String())
	}

	var wire cliResponse
	if err := json.Unmarshal(stdout.Bytes(), &wire); err != nil {
		return nil, fmt.Errorf("stage %s: failed to parse cli response: %w", req.StageID, err)
	}

	result, err := extractJSONObject(wire.Content)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", req.StageID, err)
	}

	log.Debug("cli completed",
		"model", wire.Model,
		"tokens", wire.Usage.InputTokens+wire.Usage.OutputTokens,
		"duration", duration,
	)
	return &Response{
		Success:    true,
		Status:     "success",
		Result:     result,
		Model:      wire.Model,
		TokensUsed: wire.Usage.InputTokens + wire.Usage.OutputTokens,
		Duration:   duration,
	}, nil
}

// HealthCheck implements Driver interface.
func (d *CLIDriver) HealthCheck(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, d.binary, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s cli not found or not working: %w (output: %s)", d.binary, err, output)
	}
	return nil
}

// cliResponse is the JSON wrapper the CLI prints in json output mode.
type cliResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// extractJSONObject pulls the outermost JSON object out of model prose.
// Agents are instructed to emit bare JSON but occasionally wrap it in
// commentary or a code fence.
func extractJSONObject(content string) (json.RawMessage, error) {
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx == -1 || endIdx == -1 || startIdx >= endIdx {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	candidate := content[startIdx : endIdx+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("response JSON object is malformed")
	}
	return json.RawMessage(candidate), nil
}

func init() {
	DefaultRegistry.Register("claude-cli", func() Driver {
		return NewCLIDriver()
	})
}
