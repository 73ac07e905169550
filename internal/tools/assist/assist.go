// Package assist provides ask_llm, which lets the orchestrator delegate a
// self-contained question to the language model client configured for the
// application.
package assist

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/toolharness/pkg/client"
	"github.com/MrWong99/toolharness/pkg/tool"
)

// Args are the arguments of ask_llm.
type Args struct {
	Prompt      string   `json:"prompt"`
	System      string   `json:"system,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// Answer is returned by ask_llm.
type Answer struct {
	Answer      string `json:"answer"`
	Model       string `json:"model,omitempty"`
	TotalTokens int    `json:"total_tokens,omitempty"`
}

// Declarations returns ask_llm backed by c. Any [client.Completer] works;
// the application passes its failover [client.Client].
func Declarations(c client.Completer) []tool.Declaration {
	return []tool.Declaration{
		tool.Declare(tool.Spec{
			Name:        "ask_llm",
			Description: "Ask the application's language model a self-contained question and return its answer.",
			IconRef:     "sparkles",
			Args: map[string]string{
				"prompt":      "the question or instruction for the model",
				"system":      "optional system prompt steering the answer",
				"temperature": "sampling temperature between 0 and 2",
				"max_tokens":  "upper bound on the answer length in tokens",
			},
		}, func(ctx context.Context, a Args) (Answer, error) {
			return ask(ctx, c, a)
		}),
	}
}

func ask(ctx context.Context, c client.Completer, a Args) (Answer, error) {
	if strings.TrimSpace(a.Prompt) == "" {
		return Answer{}, errors.New("assist: prompt must not be empty")
	}
	if a.Temperature != nil && (*a.Temperature < 0 || *a.Temperature > 2) {
		return Answer{}, errors.New("assist: temperature must be between 0 and 2")
	}
	if a.MaxTokens < 0 {
		return Answer{}, errors.New("assist: max_tokens must not be negative")
	}

	req := client.Request{
		System:      a.System,
		Messages:    []client.Message{{Role: "user", Content: a.Prompt}},
		Temperature: a.Temperature,
		MaxTokens:   a.MaxTokens,
	}
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return Answer{}, err
	}
	return Answer{
		Answer:      strings.TrimSpace(resp.Content),
		Model:       resp.Model,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}
