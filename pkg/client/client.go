// Package client gives tool handlers access to a language model.
//
// A [Client] wraps one primary model endpoint and any number of fallbacks.
// Each endpoint sits behind its own circuit breaker; when the primary fails
// or its breaker is open, the next endpoint serves the request. Endpoints are
// implemented with github.com/mozilla-ai/any-llm-go, which covers OpenAI,
// Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, llama.cpp and
// llamafile.
//
// Usage:
//
//	c, err := client.New(client.Endpoint{Provider: "openai", Model: "gpt-4o-mini"})
//	answer, err := c.Ask(ctx, "Summarise this file: ...")
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/toolharness/internal/resilience"
)

// Endpoint selects a provider and model.
type Endpoint struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// String returns "provider/model".
func (e Endpoint) String() string {
	return e.Provider + "/" + e.Model
}

// Message is one chat turn.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role    string
	Content string
}

// Request is a single completion request.
type Request struct {
	System      string
	Messages []Message

	// Temperature is passed through when set, including an explicit 0. Nil
	// leaves the provider default.
	Temperature *float64
	MaxTokens   int
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the model's answer.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Completer performs one completion against one endpoint.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Recorder receives one observation per completed request. status is "ok",
// "error" or "circuit_open"; upstream is the name of the endpoint that
// served or last failed the request.
type Recorder interface {
	RecordClientRequest(ctx context.Context, upstream, status string)
}

// Option configures a [Client].
type Option func(*Client)

// WithFallback adds a fallback endpoint tried after the primary.
func WithFallback(ep Endpoint) Option {
	return func(c *Client) { c.pending = append(c.pending, named{ep.String(), nil, ep}) }
}

// WithCompleter adds a pre-built upstream. Mainly for tests.
func WithCompleter(name string, comp Completer) Option {
	return func(c *Client) { c.pending = append(c.pending, named{name, comp, Endpoint{}}) }
}

// WithBreaker overrides the circuit breaker settings applied to every
// upstream.
func WithBreaker(cfg resilience.BreakerConfig) Option {
	return func(c *Client) { c.breaker = cfg }
}

// WithRecorder sets the request observer.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

type named struct {
	name string
	comp Completer
	ep   Endpoint
}

// Client is a failover-aware completion handle shared by tool handlers. It
// is safe for concurrent use.
type Client struct {
	failover *resilience.Failover[Completer]
	breaker  resilience.BreakerConfig
	recorder Recorder
	log      *slog.Logger
	pending  []named
}

// New creates a Client whose primary upstream is ep. An empty ep.Provider is
// allowed when at least one upstream is supplied through [WithCompleter].
func New(ep Endpoint, opts ...Option) (*Client, error) {
	c := &Client{
		breaker: resilience.BreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		},
		log: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker.Logger == nil {
		c.breaker.Logger = c.log
	}

	upstreams := c.pending
	if ep.Provider != "" {
		upstreams = append([]named{{ep.String(), nil, ep}}, upstreams...)
	}
	c.pending = nil
	if len(upstreams) == 0 {
		return nil, errors.New("client: no upstream configured")
	}

	for _, u := range upstreams {
		comp := u.comp
		if comp == nil {
			built, err := newAnyLLM(u.ep)
			if err != nil {
				return nil, err
			}
			comp = built
		}
		if c.failover == nil {
			c.failover = resilience.NewFailover(u.name, comp, c.breaker)
		} else {
			c.failover.Add(u.name, comp)
		}
	}
	return c, nil
}

// Complete sends req to the first healthy upstream.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, served, err := resilience.Do(c.failover, func(comp Completer) (*Response, error) {
		return comp.Complete(ctx, req)
	})

	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = "circuit_open"
	default:
		status = "error"
	}
	if c.recorder != nil {
		c.recorder.RecordClientRequest(ctx, served, status)
	}
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	c.log.Debug("completion served", "upstream", served, "tokens", resp.Usage.TotalTokens)
	return resp, nil
}

// Ask sends a single user prompt and returns the trimmed answer text.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Complete(ctx, Request{
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// Healthy reports an error when every upstream's breaker is open. It is
// used as a readiness check.
func (c *Client) Healthy(context.Context) error {
	if c.failover.Available() {
		return nil
	}
	return fmt.Errorf("client: all upstreams unavailable: %w", resilience.ErrCircuitOpen)
}

// States reports the breaker state of each upstream.
func (c *Client) States() map[string]string {
	out := make(map[string]string, c.failover.Len())
	for name, s := range c.failover.States() {
		out[name] = s.String()
	}
	return out
}
