// Package tools assembles the built-in tool sets enabled in the
// configuration into declarations ready for [harness.New].
//
// Each sub-package exports a Declarations function returning the tools of
// one set. Sets are assembled in a fixed order (echo, fileio, pyexec,
// assist) so the published catalogue is stable regardless of the order in
// tools.enabled.
package tools

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MrWong99/toolharness/internal/config"
	"github.com/MrWong99/toolharness/internal/tools/assist"
	"github.com/MrWong99/toolharness/internal/tools/echo"
	"github.com/MrWong99/toolharness/internal/tools/fileio"
	"github.com/MrWong99/toolharness/internal/tools/pyexec"
	"github.com/MrWong99/toolharness/pkg/client"
	"github.com/MrWong99/toolharness/pkg/tool"
)

// Options selects and configures the built-in tool sets.
type Options struct {
	// Enabled lists tool set names, see [config.KnownToolSets].
	Enabled []string

	// SandboxDir confines fileio and pyexec. It is created when missing.
	SandboxDir string

	// Python is the interpreter for pyexec. When it cannot be found the
	// set is skipped with a warning.
	Python string

	// Client backs assist. A nil Client skips the set.
	Client client.Completer

	Logger *slog.Logger
}

// Set holds the assembled declarations and the resources they share.
type Set struct {
	Decls   []tool.Declaration
	sandbox *fileio.Sandbox
}

// Sandbox returns the shared sandbox, or nil when neither fileio nor
// pyexec is enabled.
func (s *Set) Sandbox() *fileio.Sandbox {
	return s.sandbox
}

// Close releases the sandbox. It is safe to call on a Set without one.
func (s *Set) Close() error {
	if s.sandbox == nil {
		return nil
	}
	return s.sandbox.Close()
}

// Build assembles the enabled tool sets. Unknown set names are an error.
func Build(opts Options) (*Set, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	for _, name := range opts.Enabled {
		if !slices.Contains(config.KnownToolSets, name) {
			return nil, fmt.Errorf("tools: unknown tool set %q", name)
		}
	}
	enabled := func(name string) bool { return slices.Contains(opts.Enabled, name) }

	set := &Set{}
	if enabled(config.ToolSetFileIO) || enabled(config.ToolSetPyExec) {
		if opts.SandboxDir == "" {
			return nil, errors.New("tools: sandbox directory is required for fileio and pyexec")
		}
		sb, err := fileio.Open(opts.SandboxDir)
		if err != nil {
			return nil, fmt.Errorf("tools: %w", err)
		}
		set.sandbox = sb
		log.Info("tools: sandbox ready", "dir", sb.Dir())
	}

	for _, name := range config.KnownToolSets {
		if !enabled(name) {
			continue
		}
		switch name {
		case config.ToolSetEcho:
			set.Decls = append(set.Decls, echo.Declarations()...)
		case config.ToolSetFileIO:
			set.Decls = append(set.Decls, fileio.Declarations(set.sandbox)...)
		case config.ToolSetPyExec:
			r, err := pyexec.NewRunner(set.sandbox, opts.Python, log)
			if err != nil {
				log.Warn("tools: pyexec disabled", "err", err)
				continue
			}
			set.Decls = append(set.Decls, pyexec.Declarations(r)...)
		case config.ToolSetAssist:
			if opts.Client == nil {
				log.Info("tools: assist disabled, no language model client configured")
				continue
			}
			set.Decls = append(set.Decls, assist.Declarations(opts.Client)...)
		}
	}
	return set, nil
}
