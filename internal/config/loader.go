package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the language model providers the client knows.
// [Validate] warns about other names instead of failing, since the name is
// passed through to the provider library.
var ValidProviderNames = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected. An empty document yields
// the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure; soft problems are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Transports
	if !cfg.Transports.MCP.IsValid() {
		errs = append(errs, fmt.Errorf("transports.mcp %q is invalid; valid values: stdio, streamable-http or empty", cfg.Transports.MCP))
	}
	if !cfg.Transports.HTTPEnabled() && cfg.Transports.MCP == MCPOff {
		errs = append(errs, errors.New("transports: at least one of http or mcp must be enabled"))
	}

	// Dispatch
	if cfg.Dispatch.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("dispatch.max_concurrent %d must not be negative", cfg.Dispatch.MaxConcurrent))
	}

	// Tools
	seen := make(map[string]int, len(cfg.Tools.Enabled))
	for i, name := range cfg.Tools.Enabled {
		prefix := fmt.Sprintf("tools.enabled[%d]", i)
		if !slices.Contains(KnownToolSets, name) {
			errs = append(errs, fmt.Errorf("%s %q is unknown; valid values: echo, fileio, pyexec, assist", prefix, name))
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of tools.enabled[%d]", prefix, name, prev))
		}
		seen[name] = i
	}
	if (cfg.Tools.IsEnabled(ToolSetFileIO) || cfg.Tools.IsEnabled(ToolSetPyExec)) && cfg.Tools.SandboxDir == "" {
		errs = append(errs, errors.New("tools.sandbox_dir is required when fileio or pyexec is enabled"))
	}
	if cfg.Tools.IsEnabled(ToolSetAssist) && !cfg.Client.Enabled() {
		slog.Warn("tools.enabled lists assist but client.provider is empty; assist will not be registered")
	}

	// Client
	if cfg.Client.Enabled() {
		errs = append(errs, validateEndpoint("client", cfg.Client.Endpoint)...)
	} else if len(cfg.Client.Fallbacks) > 0 {
		errs = append(errs, errors.New("client.fallbacks requires client.provider"))
	}
	for i, fb := range cfg.Client.Fallbacks {
		prefix := fmt.Sprintf("client.fallbacks[%d]", i)
		if fb.Provider == "" {
			errs = append(errs, fmt.Errorf("%s.provider is required", prefix))
			continue
		}
		errs = append(errs, validateEndpoint(prefix, fb)...)
	}

	return errors.Join(errs...)
}

func validateEndpoint(prefix string, ep Endpoint) []error {
	var errs []error
	if ep.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required when a provider is set", prefix))
	}
	if !slices.Contains(ValidProviderNames, ep.Provider) {
		slog.Warn("unknown provider name, may be a typo",
			"field", prefix+".provider",
			"name", ep.Provider,
			"known", ValidProviderNames,
		)
	}
	return errs
}
