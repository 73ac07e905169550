package client

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Providers lists the provider names accepted in [Endpoint.Provider].
var Providers = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// anyLLM is a [Completer] backed by github.com/mozilla-ai/any-llm-go.
type anyLLM struct {
	backend anyllmlib.Provider
	model   string
}

// newAnyLLM builds the backend for ep. Without an API key the provider falls
// back to its usual environment variable (OPENAI_API_KEY and so on).
func newAnyLLM(ep Endpoint) (*anyLLM, error) {
	if ep.Model == "" {
		return nil, fmt.Errorf("client: %s: model must not be empty", ep.Provider)
	}

	var opts []anyllmlib.Option
	if ep.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(ep.APIKey))
	}
	if ep.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(ep.BaseURL))
	}

	backend, err := createBackend(ep.Provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("client: create %q backend: %w", ep.Provider, err)
	}
	return &anyLLM{backend: backend, model: ep.Model}, nil
}

func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: %s", name, strings.Join(Providers, ", "))
	}
}

// Complete implements [Completer].
func (a *anyLLM) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.backend.Completion(ctx, buildParams(a.model, req))
	if err != nil {
		return nil, fmt.Errorf("client: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("client: empty choices in response")
	}

	out := &Response{
		Content: resp.Choices[0].Message.ContentString(),
		Model:   a.model,
	}
	if resp.Usage != nil {
		out.Usage = Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

func buildParams(model string, req Request) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.System != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature != nil {
		t := *req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}
