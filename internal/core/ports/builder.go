package ports

import (
	"context"
	"time"

	"github.com/melih/ocomp/internal/core/domain"
)

// BuilderService runs a target's build command against a populated workspace.
type BuilderService interface {
	// Build executes the target's build command with the workspace root as
	// working directory and locates the artifact. Build failures are reported
	// in the returned result, never as a Go error.
	Build(ctx context.Context, target domain.BuildTarget, ws domain.Workspace) domain.BuildResult
}

// MetricsRecorder receives build request observations.
type MetricsRecorder interface {
	ObserveBuild(target, outcome string, d time.Duration)
	AddStagedBytes(target string, n int64)
	BuildStarted(target string)
	BuildFinished(target string)
}
