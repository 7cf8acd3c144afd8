// Package upload stages multipart uploads into build workspaces.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/melih/ocomp/internal/core/domain"
	"github.com/melih/ocomp/internal/logfields"
)

// PlaceholderName is used for parts that arrive without a filename. Several
// unnamed parts in one request overwrite each other.
const PlaceholderName = "uploaded_file"

const (
	repositoryField = "repository"
	refField        = "ref"
	maxFieldValue   = 4 << 10
)

var (
	ErrNoFileUploaded       = domain.ErrNoFileUploaded
	ErrMalformedUpload      = domain.ErrMalformedUpload
	ErrWriteFailed          = domain.ErrWriteFailed
	ErrRepositoryNotAllowed = errors.New("repository sources are disabled")
	ErrCloneFailed          = errors.New("failed to clone repository")
)

// Receiver implements ports.UploadService.
type Receiver struct {
	allowRepositories bool
}

// Option customises a Receiver.
type Option func(*Receiver)

// WithRepositories enables the repository form field, which shallow clones
// a git repository into the workspace.
func WithRepositories(allow bool) Option {
	return func(r *Receiver) { r.allowRepositories = allow }
}

// NewReceiver creates a Receiver.
func NewReceiver(opts ...Option) *Receiver {
	r := &Receiver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Receive consumes mr part by part, writing each part to the workspace root.
// The first read or write error aborts the request; files already written
// are left in place. A stream with no parts fails with ErrNoFileUploaded.
func (r *Receiver) Receive(ctx context.Context, ws domain.Workspace, mr *multipart.Reader) ([]domain.StagedFile, error) {
	var (
		staged []domain.StagedFile
		source gitSource
	)

	for {
		if err := ctx.Err(); err != nil {
			return staged, err
		}
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return staged, fmt.Errorf("%w: error reading field: %w", ErrMalformedUpload, err)
		}

		if part.FileName() == "" {
			switch part.FormName() {
			case repositoryField:
				source.url, err = readValue(part)
			case refField:
				source.ref, err = readValue(part)
			default:
				err = r.stage(ws, part, &staged)
			}
		} else {
			err = r.stage(ws, part, &staged)
		}
		_ = part.Close()
		if err != nil {
			return staged, err
		}
	}

	if source.url != "" {
		if !r.allowRepositories {
			return staged, fmt.Errorf("%w: %w", ErrMalformedUpload, ErrRepositoryNotAllowed)
		}
		if err := source.clone(ctx, ws.RootPath); err != nil {
			return staged, err
		}
		return staged, nil
	}

	if len(staged) == 0 {
		return nil, ErrNoFileUploaded
	}
	return staged, nil
}

func (r *Receiver) stage(ws domain.Workspace, part *multipart.Part, staged *[]domain.StagedFile) error {
	name := SafeName(part.FileName())
	path := filepath.Join(ws.RootPath, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrWriteFailed, name, err)
	}
	n, copyErr := io.Copy(f, part)
	closeErr := f.Close()
	if copyErr != nil {
		// The part reader fails on a truncated or malformed body.
		var pathErr *os.PathError
		if errors.As(copyErr, &pathErr) {
			return fmt.Errorf("%w %s: %w", ErrWriteFailed, name, copyErr)
		}
		return fmt.Errorf("%w: error reading file %s: %w", ErrMalformedUpload, name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w %s: %w", ErrWriteFailed, name, closeErr)
	}

	slog.Debug("Staged file",
		logfields.WorkspaceID(ws.ID),
		logfields.File(name),
		logfields.Bytes(n))
	*staged = append(*staged, domain.StagedFile{Name: name, Bytes: n})
	return nil
}

// SafeName reduces a client supplied filename to a single path element so a
// part can never be written outside its workspace.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(filepath.FromSlash(name))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return PlaceholderName
	}
	return name
}

func readValue(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldValue+1))
	if err != nil {
		return "", fmt.Errorf("%w: error reading field %s: %w", ErrMalformedUpload, part.FormName(), err)
	}
	if len(b) > maxFieldValue {
		return "", fmt.Errorf("%w: field %s is too long", ErrMalformedUpload, part.FormName())
	}
	return strings.TrimSpace(string(b)), nil
}
