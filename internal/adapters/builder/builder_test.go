package builder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/ocomp/internal/core/domain"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("build command tests use sh")
	}
}

func workspace(t *testing.T) domain.Workspace {
	t.Helper()
	return domain.Workspace{ID: "ws-test", RootPath: t.TempDir()}
}

func target(build, output string) domain.BuildTarget {
	return domain.BuildTarget{Name: "test", BuildCommand: build, OutputPattern: output}
}

func TestBuild_Success(t *testing.T) {
	requireShell(t)
	ws := workspace(t)

	res := NewBuilderAdapter().Build(context.Background(),
		target("mkdir -p out && printf artifact > out/app.bin && echo done", "out/*.bin"), ws)

	require.True(t, res.Succeeded(), "failure: %+v", res.Failure)
	assert.Equal(t, "ws-test", res.WorkspaceID)
	assert.Equal(t, "out/app.bin", res.Artifact.RelativePath)
	assert.Equal(t, filepath.Join(ws.RootPath, "out", "app.bin"), res.Artifact.Path)
	assert.Equal(t, []byte("artifact"), res.Artifact.Data)
	assert.Contains(t, res.Artifact.Output, "done")
	assert.Equal(t, "success", res.Outcome())
}

func TestBuild_RunsInWorkspace(t *testing.T) {
	requireShell(t)
	ws := workspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws.RootPath, "main.rs"), []byte("fn main(){}"), 0o644))

	res := NewBuilderAdapter().Build(context.Background(), target("cp main.rs copy.rs", "copy.rs"), ws)

	require.True(t, res.Succeeded(), "failure: %+v", res.Failure)
	assert.Equal(t, "fn main(){}", string(res.Artifact.Data))
}

func TestBuild_NonZeroExit(t *testing.T) {
	requireShell(t)

	res := NewBuilderAdapter().Build(context.Background(),
		target("echo 'error[E0425]: cannot find value' >&2; exit 3", "*"), workspace(t))

	require.False(t, res.Succeeded())
	assert.Equal(t, domain.FailureNonZeroExit, res.Failure.Kind)
	assert.Equal(t, 3, res.Failure.ExitCode)
	assert.Contains(t, res.Failure.Output, "cannot find value")
	assert.Contains(t, res.Failure.Error(), "status 3")
}

func TestBuild_CommandNotFound(t *testing.T) {
	requireShell(t)

	res := NewBuilderAdapter().Build(context.Background(),
		target("ocomp-definitely-missing-tool --release", "*"), workspace(t))

	require.False(t, res.Succeeded())
	assert.Equal(t, domain.FailureCommandNotFound, res.Failure.Kind)
	assert.Equal(t, 127, res.Failure.ExitCode)
}

func TestBuild_ShellMissing(t *testing.T) {
	shell := filepath.Join(t.TempDir(), "no-shell")

	res := NewBuilderAdapter(WithShell(shell, "-c")).Build(context.Background(), target("true", "*"), workspace(t))

	require.False(t, res.Succeeded())
	assert.Equal(t, domain.FailureCommandNotFound, res.Failure.Kind)
	assert.Equal(t, -1, res.Failure.ExitCode)
}

func TestBuild_Timeout(t *testing.T) {
	requireShell(t)
	tgt := target("sleep 10", "*")
	tgt.Timeout = 200 * time.Millisecond

	start := time.Now()
	res := NewBuilderAdapter().Build(context.Background(), tgt, workspace(t))

	require.False(t, res.Succeeded())
	assert.Equal(t, domain.FailureTimeout, res.Failure.Kind)
	assert.Less(t, time.Since(start), 8*time.Second)
}

func TestBuild_AdapterTimeoutApplies(t *testing.T) {
	requireShell(t)

	res := NewBuilderAdapter(WithTimeout(200*time.Millisecond)).Build(context.Background(),
		target("sleep 10", "*"), workspace(t))

	require.False(t, res.Succeeded())
	assert.Equal(t, domain.FailureTimeout, res.Failure.Kind)
}

func TestBuild_ParentCancelled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewBuilderAdapter().Build(ctx, target("true", "*"), workspace(t))

	require.False(t, res.Succeeded())
	assert.Equal(t, domain.FailureSpawn, res.Failure.Kind)
}

func TestBuild_NoArtifact(t *testing.T) {
	requireShell(t)

	res := NewBuilderAdapter().Build(context.Background(), target("echo built", "target/release/*.exe"), workspace(t))

	require.False(t, res.Succeeded())
	assert.Equal(t, domain.FailureNoArtifact, res.Failure.Kind)
	assert.Equal(t, 0, res.Failure.ExitCode)
	assert.Contains(t, res.Failure.Output, "built")
}

func TestResolveArtifact_PicksLexicographicallyFirst(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "out", "a-dir.bin"), 0o755))
	for _, name := range []string{"c.bin", "b.bin"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "out", name), []byte(name), 0o644))
	}

	a, err := ResolveArtifact(root, "out/*.bin")
	require.NoError(t, err)
	assert.Equal(t, "out/b.bin", a.RelativePath)
	assert.Equal(t, "b.bin", string(a.Data))
}

func TestResolveArtifact_RootWithGlobMetacharacters(t *testing.T) {
	root := filepath.Join(t.TempDir(), "builds[prod]", "build-[x]")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "out", "app.bin"), []byte("bin"), 0o644))

	a, err := ResolveArtifact(root, "out/*.bin")
	require.NoError(t, err)
	assert.Equal(t, "out/app.bin", a.RelativePath)
	assert.Equal(t, filepath.Join(root, "out", "app.bin"), a.Path)
	assert.Equal(t, "bin", string(a.Data))
}

func TestBuild_SuccessUnderBracketedRoot(t *testing.T) {
	requireShell(t)
	ws := domain.Workspace{ID: "ws-prod", RootPath: filepath.Join(t.TempDir(), "[prod]")}
	require.NoError(t, os.MkdirAll(ws.RootPath, 0o755))

	res := NewBuilderAdapter().Build(context.Background(),
		target("mkdir -p out && printf artifact > out/app.bin", "out/*.bin"), ws)

	require.True(t, res.Succeeded(), "failure: %+v", res.Failure)
	assert.Equal(t, []byte("artifact"), res.Artifact.Data)
}

func TestResolveArtifact_IgnoresMatchesOutsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "ws")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("x"), 0o644))

	_, err := ResolveArtifact(root, "../*.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matched no files")
}

func TestResolveArtifact_BadPattern(t *testing.T) {
	_, err := ResolveArtifact(t.TempDir(), "[")
	require.Error(t, err)
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))

	s := b.String()
	assert.True(t, strings.HasPrefix(s, "[output truncated]"))
	assert.True(t, strings.HasSuffix(s, "456789ab"))

	small := newTailBuffer(64)
	_, _ = small.Write([]byte("hello"))
	assert.Equal(t, "hello", small.String())
}

func TestTailBuffer_BoundedUnderManySmallWrites(t *testing.T) {
	b := newTailBuffer(4)
	for i := 0; i < 1000; i++ {
		n, err := b.Write([]byte{byte('a' + i%26)})
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.LessOrEqual(t, len(b.buf), 8)
	}
	// the last four writes are 'i' through 'l'
	assert.Equal(t, "[output truncated]\nijkl", b.String())
}

func TestTailBuffer_ExactLimit(t *testing.T) {
	b := newTailBuffer(4)
	_, _ = b.Write([]byte("abcd"))
	assert.Equal(t, "abcd", b.String())
}
