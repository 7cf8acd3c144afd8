package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/melih/ocomp/internal/logfields"
)

// gitSource is a repository requested through the form. ref names a
// branch; tags and commit hashes are not resolved.
type gitSource struct {
	url string
	ref string
}

func (s gitSource) cloneOptions() *git.CloneOptions {
	opts := &git.CloneOptions{
		URL:   s.url,
		Depth: 1,
	}
	if s.ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.ref)
		opts.SingleBranch = true
	}
	return opts
}

// clone shallow clones the repository into dir.
func (s gitSource) clone(ctx context.Context, dir string) error {
	opts := s.cloneOptions()

	slog.Info("Cloning repository into workspace",
		logfields.Repository(s.url),
		logfields.Path(dir))
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("%w %s: %w", ErrCloneFailed, s.url, err)
	}
	return nil
}
