package domain

import "fmt"

// FailureKind classifies why a build request did not produce an artifact.
type FailureKind string

const (
	FailureNoFile          FailureKind = "no_file"
	FailureMalformedUpload FailureKind = "malformed_upload"
	FailureWriteFailed     FailureKind = "write_failed"
	FailureWorkspace       FailureKind = "workspace_failed"
	FailureCommandNotFound FailureKind = "command_not_found"
	FailureNonZeroExit     FailureKind = "non_zero_exit"
	FailureTimeout         FailureKind = "timeout"
	FailureNoArtifact      FailureKind = "no_artifact"
	FailureSpawn           FailureKind = "spawn_failed"
)

// BuildResult is either a success carrying the artifact or a failure carrying
// the reason. Exactly one of Artifact and Failure is set.
type BuildResult struct {
	WorkspaceID string
	Staged      []StagedFile
	Artifact    *Artifact
	Failure     *Failure
}

// Artifact is the file located by the target's output pattern after a
// successful build.
type Artifact struct {
	Path         string // absolute
	RelativePath string // relative to the workspace root
	Data         []byte
	Output       string // combined build output
}

// Failure describes an unsuccessful build request.
type Failure struct {
	Kind     FailureKind
	Reason   string
	ExitCode int // -1 when the process never ran or did not exit normally
	Output   string
}

func (f *Failure) Error() string {
	if f.Output == "" {
		return f.Reason
	}
	return fmt.Sprintf("%s\n%s", f.Reason, f.Output)
}

// Success builds a successful result.
func Success(workspaceID string, a *Artifact) BuildResult {
	return BuildResult{WorkspaceID: workspaceID, Artifact: a}
}

// Fail builds a failed result for a failure that happened before or
// outside a process run.
func Fail(workspaceID string, kind FailureKind, reason string) BuildResult {
	return BuildResult{WorkspaceID: workspaceID, Failure: &Failure{Kind: kind, Reason: reason, ExitCode: -1}}
}

// Succeeded reports whether the build produced an artifact.
func (r BuildResult) Succeeded() bool {
	return r.Artifact != nil && r.Failure == nil
}

// Outcome is a short label used for metrics and logging.
func (r BuildResult) Outcome() string {
	if r.Succeeded() {
		return "success"
	}
	if r.Failure != nil {
		return string(r.Failure.Kind)
	}
	return "unknown"
}
