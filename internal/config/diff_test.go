package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/toolharness/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		App: config.AppConfig{Name: "Demo", Description: "d", Icon: "icon.png"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestDiff_NoChange(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("Diff of equal configs = %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		logLevel    bool
		restartWant []string
	}{
		{"log level", func(c *config.Config) { c.Server.LogLevel = config.LogDebug }, true, nil},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9999" }, false, []string{"server"}},
		{"app name", func(c *config.Config) { c.App.Name = "Other" }, false, []string{"app"}},
		{"timeout and tools", func(c *config.Config) {
			c.Dispatch.Timeout = time.Second
			c.Tools.Enabled = []string{"echo"}
		}, false, []string{"dispatch", "tools"}},
		{"client", func(c *config.Config) { c.Client.Provider = "openai" }, false, []string{"client"}},
		{"http off", func(c *config.Config) {
			off := false
			c.Transports.HTTP = &off
		}, false, []string{"transports"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			updated := baseConfig()
			tt.mutate(updated)
			d := config.Diff(baseConfig(), updated)

			if d.LogLevelChanged != tt.logLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.logLevel)
			}
			if tt.logLevel && d.NewLogLevel != updated.Server.LogLevel {
				t.Errorf("NewLogLevel = %q", d.NewLogLevel)
			}
			if !slices.Equal(d.RestartRequired, tt.restartWant) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.restartWant)
			}
			if !d.Changed() {
				t.Error("Changed = false")
			}
		})
	}
}
