package mock

import (
	"context"
	"fmt"
	"strings"
)

func init() {
	RegisterCallback("example", exampleCallback)
	RegisterCallback("example_usage", exampleUsageCallback)
}

// exampleCallback shows routing on model, prompt keywords and headers.
func exampleCallback(_ context.Context, headers map[string]string, body map[string]any) (Resolution, error) {
	model, _ := body["model"].(string)
	if model == "" {
		model = "unknown"
	}
	userMessage := ExtractPrompt(body)

	switch {
	case strings.Contains(model, "gpt-4"):
		return ContentOnly("This is a GPT-4 style response to: " + userMessage), nil
	case strings.Contains(strings.ToLower(model), "claude"):
		return ContentOnly("This is a Claude style response to: " + userMessage), nil
	}

	lower := strings.ToLower(userMessage)
	switch {
	case strings.Contains(lower, "hello"):
		return ContentOnly("Hello! How can I help you today?"), nil
	case strings.Contains(lower, "weather"):
		return ContentOnly("I'm a mock LLM, so I can't check actual weather. Let's say sunny!"), nil
	case strings.Contains(lower, "code"), strings.Contains(lower, "function"):
		return ContentOnly("Here's an example function:\n\n```python\ndef example():\n    return \"Hello, World!\"\n```"), nil
	}

	if strings.HasPrefix(headers["authorization"], "Bearer premium-") {
		return ContentOnly("Premium response for: " + userMessage), nil
	}

	return ContentOnly(fmt.Sprintf("Mock response for model '%s': %s", model, userMessage)), nil
}

// exampleUsageCallback overrides the usage block with fixed GPT-style
// numbers, including the nested detail objects real clients read.
func exampleUsageCallback(_ context.Context, _ map[string]string, _ map[string]any) (Resolution, error) {
	return ContentWithUsage{
		Content: "Hello from the module!",
		Usage: map[string]any{
			"prompt_tokens":     5,
			"completion_tokens": 7,
			"total_tokens":      12,
			"prompt_tokens_details": map[string]any{
				"cached_tokens": 0,
				"audio_tokens":  0,
			},
		},
	}, nil
}
