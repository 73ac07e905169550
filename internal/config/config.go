// Package config provides the configuration schema and loader for the tool
// harness.
//
// A configuration file looks like this:
//
//	app:
//	  name: Code Helper
//	  description: Writes, reads and runs small Python programs.
//	  icon: icon.png
//	server:
//	  listen_addr: ":8080"
//	  log_level: info
//	transports:
//	  http: true
//	  mcp: streamable-http
//	dispatch:
//	  timeout: 30s
//	  max_concurrent: 8
//	tools:
//	  enabled: [echo, fileio, pyexec, assist]
//	  sandbox_dir: ./sandbox
//	  python: python3
//	client:
//	  provider: openai
//	  model: gpt-4o-mini
//	  fallbacks:
//	    - provider: ollama
//	      model: llama3.2
//	telemetry:
//	  service_name: code-helper
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// MCPTransport selects how the Model Context Protocol boundary is served.
type MCPTransport string

const (
	// MCPOff disables the MCP boundary.
	MCPOff MCPTransport = ""

	// MCPStdio serves MCP over the process's stdin and stdout.
	MCPStdio MCPTransport = "stdio"

	// MCPStreamableHTTP mounts MCP at /mcp on the HTTP listener.
	MCPStreamableHTTP MCPTransport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t MCPTransport) IsValid() bool {
	switch t {
	case MCPOff, MCPStdio, MCPStreamableHTTP:
		return true
	}
	return false
}

// Built-in tool set names accepted in tools.enabled.
const (
	ToolSetEcho   = "echo"
	ToolSetFileIO = "fileio"
	ToolSetPyExec = "pyexec"
	ToolSetAssist = "assist"
)

// KnownToolSets lists every built-in tool set in registration order.
var KnownToolSets = []string{ToolSetEcho, ToolSetFileIO, ToolSetPyExec, ToolSetAssist}

// Config is the root configuration structure. Load it with [Load] or
// [LoadFromReader].
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Transports TransportsConfig `yaml:"transports"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Tools      ToolsConfig      `yaml:"tools"`
	Client     ClientConfig     `yaml:"client"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// AppConfig is the application metadata published to orchestrators. Empty
// fields are rejected at startup, not at load time.
type AppConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Icon is an opaque reference to a presentation asset, e.g. "icon.png".
	Icon string `yaml:"icon"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP listener. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is the only setting applied on hot
	// reload.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// TransportsConfig selects the boundaries the harness is reachable through.
type TransportsConfig struct {
	// HTTP enables the JSON API (/v1/...). Default true.
	HTTP *bool `yaml:"http"`

	// MCP selects the MCP boundary. Empty disables it.
	MCP MCPTransport `yaml:"mcp"`
}

// HTTPEnabled reports whether the JSON API is enabled.
func (t TransportsConfig) HTTPEnabled() bool {
	return t.HTTP == nil || *t.HTTP
}

// NeedsListener reports whether an HTTP listener must be started.
func (t TransportsConfig) NeedsListener() bool {
	return t.HTTPEnabled() || t.MCP == MCPStreamableHTTP
}

// DispatchConfig bounds tool execution.
type DispatchConfig struct {
	// Timeout is the per-call handler deadline. Zero or unset means the
	// default of 30s; a negative value such as -1s disables the deadline.
	Timeout time.Duration `yaml:"timeout"`

	// MaxConcurrent caps the number of handlers running at once. Zero means
	// unbounded.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// ToolsConfig configures the built-in tool sets.
type ToolsConfig struct {
	// Enabled lists the tool sets to register, see [KnownToolSets].
	Enabled []string `yaml:"enabled"`

	// SandboxDir confines fileio and pyexec. Default "./sandbox".
	SandboxDir string `yaml:"sandbox_dir"`

	// Python is the interpreter used by pyexec. Default "python3".
	Python string `yaml:"python"`
}

// IsEnabled reports whether the named tool set is enabled.
func (t ToolsConfig) IsEnabled(name string) bool {
	for _, n := range t.Enabled {
		if n == name {
			return true
		}
	}
	return false
}

// Endpoint selects a language model provider.
type Endpoint struct {
	// Provider is an any-llm provider name such as "openai" or "ollama".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// APIKey falls back to the provider's environment variable when empty.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`
}

// ClientConfig configures the language model handle available to tools.
// The assist tool set is only registered when Provider is set.
type ClientConfig struct {
	Endpoint `yaml:",inline"`

	// Fallbacks are tried in order when the primary fails.
	Fallbacks []Endpoint `yaml:"fallbacks"`
}

// Enabled reports whether a primary provider is configured.
func (c ClientConfig) Enabled() bool {
	return c.Provider != ""
}

// TelemetryConfig configures OpenTelemetry resources.
type TelemetryConfig struct {
	// ServiceName is reported as service.name. Default "toolharness".
	ServiceName string `yaml:"service_name"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Transports.HTTP == nil {
		enabled := true
		c.Transports.HTTP = &enabled
	}
	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = 30 * time.Second
	}
	if c.Tools.Enabled == nil {
		c.Tools.Enabled = append([]string(nil), KnownToolSets...)
	}
	if c.Tools.SandboxDir == "" {
		c.Tools.SandboxDir = "./sandbox"
	}
	if c.Tools.Python == "" {
		c.Tools.Python = "python3"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "toolharness"
	}
}
