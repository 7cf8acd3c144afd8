// Package builder runs configured build commands inside workspaces and
// collects the artifact they produce.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/melih/ocomp/internal/core/domain"
	"github.com/melih/ocomp/internal/logfields"
)

const (
	// DefaultTimeout bounds a build when neither the target nor the adapter
	// sets one.
	DefaultTimeout = 10 * time.Minute

	defaultOutputLimit = 1 << 20
	waitDelay          = 5 * time.Second

	// exit statuses shells use for an unknown command
	shellNotFound  = 127
	cmdExeNotFound = 9009
)

// Adapter implements ports.BuilderService by running the build command
// through the platform shell.
type Adapter struct {
	shell       []string
	timeout     time.Duration
	outputLimit int
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithShell overrides the shell invocation; the build command is appended
// as the final argument.
func WithShell(argv ...string) Option {
	return func(a *Adapter) { a.shell = argv }
}

// WithTimeout sets the default build timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithOutputLimit caps how many trailing bytes of build output are kept.
func WithOutputLimit(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.outputLimit = n
		}
	}
}

// NewBuilderAdapter creates an adapter using sh -c (cmd /C on Windows).
func NewBuilderAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		shell:       defaultShell(),
		timeout:     DefaultTimeout,
		outputLimit: defaultOutputLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}

// Build runs target.BuildCommand with ws.RootPath as working directory,
// waits for it, and on a zero exit status resolves target.OutputPattern
// against the workspace.
func (a *Adapter) Build(ctx context.Context, target domain.BuildTarget, ws domain.Workspace) domain.BuildResult {
	timeout := a.timeout
	if target.Timeout > 0 {
		timeout = target.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, a.shell[1:]...), target.BuildCommand)
	cmd := exec.CommandContext(runCtx, a.shell[0], args...)
	cmd.Dir = ws.RootPath
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	out := newTailBuffer(a.outputLimit)
	cmd.Stdout = out
	cmd.Stderr = out

	slog.Info("Running build",
		logfields.Target(target.Name),
		logfields.WorkspaceID(ws.ID),
		logfields.Command(target.BuildCommand))

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		f := classify(runCtx, ctx, err, timeout)
		f.Output = out.String()
		slog.Warn("Build failed",
			logfields.Target(target.Name),
			logfields.WorkspaceID(ws.ID),
			logfields.Outcome(string(f.Kind)),
			logfields.ExitCode(f.ExitCode),
			logfields.Duration(elapsed),
			logfields.Error(err))
		return domain.BuildResult{WorkspaceID: ws.ID, Failure: f}
	}

	artifact, err := ResolveArtifact(ws.RootPath, target.OutputPattern)
	if err != nil {
		slog.Warn("Build produced no artifact",
			logfields.Target(target.Name),
			logfields.WorkspaceID(ws.ID),
			logfields.Error(err))
		return domain.BuildResult{WorkspaceID: ws.ID, Failure: &domain.Failure{
			Kind:     domain.FailureNoArtifact,
			Reason:   err.Error(),
			ExitCode: 0,
			Output:   out.String(),
		}}
	}
	artifact.Output = out.String()

	slog.Info("Build succeeded",
		logfields.Target(target.Name),
		logfields.WorkspaceID(ws.ID),
		logfields.Path(artifact.RelativePath),
		logfields.Bytes(int64(len(artifact.Data))),
		logfields.Duration(elapsed))
	return domain.Success(ws.ID, artifact)
}

func classify(runCtx, parent context.Context, err error, timeout time.Duration) *domain.Failure {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return &domain.Failure{
			Kind:     domain.FailureTimeout,
			Reason:   fmt.Sprintf("build timed out after %s", timeout),
			ExitCode: -1,
		}
	}
	if parent.Err() != nil {
		return &domain.Failure{
			Kind:     domain.FailureSpawn,
			Reason:   fmt.Sprintf("build cancelled: %v", parent.Err()),
			ExitCode: -1,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code == shellNotFound || (runtime.GOOS == "windows" && code == cmdExeNotFound) {
			return &domain.Failure{
				Kind:     domain.FailureCommandNotFound,
				Reason:   fmt.Sprintf("build command not found (exit status %d)", code),
				ExitCode: code,
			}
		}
		return &domain.Failure{
			Kind:     domain.FailureNonZeroExit,
			Reason:   fmt.Sprintf("build command exited with status %d", code),
			ExitCode: code,
		}
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return &domain.Failure{
			Kind:     domain.FailureCommandNotFound,
			Reason:   fmt.Sprintf("shell not found: %v", err),
			ExitCode: -1,
		}
	}
	return &domain.Failure{
		Kind:     domain.FailureSpawn,
		Reason:   fmt.Sprintf("failed to run build command: %v", err),
		ExitCode: -1,
	}
}

// ResolveArtifact matches pattern against the contents of root and reads
// the artifact. Only the pattern is interpreted as a glob; root is taken
// literally. Directories are ignored. With several matches the
// lexicographically first path wins.
func ResolveArtifact(root, pattern string) (*domain.Artifact, error) {
	// Paths leaving root are not valid fs paths, so they never match.
	matches, err := fs.Glob(os.DirFS(root), filepath.ToSlash(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid output pattern %q: %w", pattern, err)
	}

	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(m)))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("output pattern %q matched no files", pattern)
	}
	sort.Strings(files)
	if len(files) > 1 {
		slog.Warn("Output pattern matched several files; using the first",
			logfields.Path(files[0]),
			slog.Int("matches", len(files)))
	}

	path := filepath.Join(root, filepath.FromSlash(files[0]))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return &domain.Artifact{
		Path:         path,
		RelativePath: files[0],
		Data:         data,
	}, nil
}
