// Package services holds the request flow shared by every build target.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/melih/ocomp/internal/core/domain"
	"github.com/melih/ocomp/internal/core/ports"
	"github.com/melih/ocomp/internal/logfields"
)

// BuildService stages an upload into a fresh workspace and dispatches the
// target's build against it. It can only be constructed once the workspace
// service is initialized, so request handling never observes an unset
// upload root.
type BuildService struct {
	workspaces ports.WorkspaceService
	uploads    ports.UploadService
	builder    ports.BuilderService
	metrics    ports.MetricsRecorder
}

// NewBuildService wires the collaborators. It fails if the workspace
// service has not been initialized.
func NewBuildService(
	workspaces ports.WorkspaceService,
	uploads ports.UploadService,
	builder ports.BuilderService,
	metrics ports.MetricsRecorder,
) (*BuildService, error) {
	if _, err := workspaces.Root(); err != nil {
		return nil, fmt.Errorf("build service requires an initialized upload root: %w", err)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &BuildService{
		workspaces: workspaces,
		uploads:    uploads,
		builder:    builder,
		metrics:    metrics,
	}, nil
}

// Run handles one build request for target. Staging finishes completely
// before the build starts. Every failure is reported in the result.
func (s *BuildService) Run(ctx context.Context, target domain.BuildTarget, mr *multipart.Reader) domain.BuildResult {
	start := time.Now()
	s.metrics.BuildStarted(target.Name)
	defer s.metrics.BuildFinished(target.Name)

	res := s.run(ctx, target, mr)

	s.metrics.ObserveBuild(target.Name, res.Outcome(), time.Since(start))
	slog.Info("Build request finished",
		logfields.Target(target.Name),
		logfields.WorkspaceID(res.WorkspaceID),
		logfields.Outcome(res.Outcome()),
		logfields.Duration(time.Since(start)))
	return res
}

func (s *BuildService) run(ctx context.Context, target domain.BuildTarget, mr *multipart.Reader) domain.BuildResult {
	ws, err := s.workspaces.CreateWorkspace()
	if err != nil {
		slog.Error("Failed to create workspace", logfields.Target(target.Name), logfields.Error(err))
		return domain.Fail("", domain.FailureWorkspace, err.Error())
	}

	staged, err := s.uploads.Receive(ctx, ws, mr)
	var total int64
	for _, f := range staged {
		total += f.Bytes
	}
	s.metrics.AddStagedBytes(target.Name, total)
	if err != nil {
		res := domain.Fail(ws.ID, domain.FailureKindOf(err), err.Error())
		res.Staged = staged
		return res
	}

	res := s.builder.Build(ctx, target, ws)
	res.WorkspaceID = ws.ID
	res.Staged = staged
	return res
}

type noopMetrics struct{}

func (noopMetrics) ObserveBuild(string, string, time.Duration) {}
func (noopMetrics) AddStagedBytes(string, int64)               {}
func (noopMetrics) BuildStarted(string)                        {}
func (noopMetrics) BuildFinished(string)                       {}
