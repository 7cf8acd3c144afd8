package ports

import (
	"context"
	"mime/multipart"

	"github.com/melih/ocomp/internal/core/domain"
)

// WorkspaceService hands out isolated per-request workspaces.
type WorkspaceService interface {
	// Root returns the upload root, or an error before initialization.
	Root() (string, error)
	CreateWorkspace() (domain.Workspace, error)
}

// UploadService stages an incoming multipart stream into a workspace.
type UploadService interface {
	Receive(ctx context.Context, ws domain.Workspace, mr *multipart.Reader) ([]domain.StagedFile, error)
}
