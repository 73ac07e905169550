// Package pyexec provides run_python, which stores a Python program in the
// sandbox and runs it with the configured interpreter.
//
// The program runs with the sandbox as its working directory. A non-zero
// exit status is reported in the result, not as a failure; only problems
// starting the interpreter or cancellation fail the call.
package pyexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/MrWong99/toolharness/internal/tools/fileio"
	"github.com/MrWong99/toolharness/pkg/tool"
)

// maxOutputBytes caps the captured stdout and stderr, each.
const maxOutputBytes = 64 << 10

// Args are the arguments of run_python.
type Args struct {
	TheCode         string   `json:"the_code"`
	DestinationPath string   `json:"destination_path"`
	Argv            []string `json:"argv,omitempty"`
	Stdin           string   `json:"stdin,omitempty"`
}

// Result is returned by run_python.
type Result struct {
	Path      string `json:"path"`
	ExitCode  int    `json:"exit_code"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Truncated bool   `json:"truncated,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Runner executes programs stored in a sandbox.
type Runner struct {
	sb          *fileio.Sandbox
	interpreter string
	log         *slog.Logger
}

// NewRunner returns a Runner using interpreter, which is looked up in PATH
// when it contains no separator. Relative paths are resolved against the
// current working directory, not the sandbox. A nil logger means
// [slog.Default].
func NewRunner(sb *fileio.Sandbox, interpreter string, log *slog.Logger) (*Runner, error) {
	if interpreter == "" {
		return nil, errors.New("pyexec: interpreter must not be empty")
	}
	resolved, err := exec.LookPath(interpreter)
	if err != nil {
		return nil, fmt.Errorf("pyexec: interpreter %q: %w", interpreter, err)
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return nil, fmt.Errorf("pyexec: interpreter %q: %w", interpreter, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{sb: sb, interpreter: resolved, log: log}, nil
}

// Declarations returns run_python bound to r.
func Declarations(r *Runner) []tool.Declaration {
	return []tool.Declaration{
		tool.Declare(tool.Spec{
			Name:        "run_python",
			Description: "Write Python code to a file in the sandbox and execute it. Returns the exit code and the captured stdout and stderr.",
			IconRef:     "terminal",
			Args: map[string]string{
				"the_code":         "a string containing the valid python code",
				"destination_path": "the path to the file",
				"argv":             "command line arguments passed to the program",
				"stdin":            "text fed to the program's standard input",
			},
		}, r.Run),
	}
}

// Run writes a.TheCode to a.DestinationPath and executes it.
func (r *Runner) Run(ctx context.Context, a Args) (Result, error) {
	if _, err := r.sb.Write(a.DestinationPath, a.TheCode, false); err != nil {
		return Result{}, err
	}
	script, err := r.sb.Abs(a.DestinationPath)
	if err != nil {
		return Result{}, err
	}

	var stdout, stderr cappedBuffer
	stdout.limit, stderr.limit = maxOutputBytes, maxOutputBytes

	cmd := exec.CommandContext(ctx, r.interpreter, append([]string{script}, a.Argv...)...)
	cmd.Dir = r.sb.Dir()
	cmd.Stdin = bytes.NewReader([]byte(a.Stdin))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, fmt.Errorf("pyexec: %s interrupted: %w", a.DestinationPath, ctxErr)
	}

	res := Result{
		Path:      a.DestinationPath,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
		ElapsedMs: elapsed.Milliseconds(),
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return Result{}, fmt.Errorf("pyexec: run %s: %w", a.DestinationPath, err)
	}

	r.log.Debug("pyexec: program finished",
		"path", a.DestinationPath,
		"exit_code", res.ExitCode,
		"elapsed", elapsed,
	)
	return res, nil
}

// cappedBuffer keeps the first limit bytes written to it and discards the
// rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room < len(p) {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
