package domain

import "errors"

// Staging errors. Adapters wrap these so the build service can classify a
// failed upload without knowing which adapter produced it.
var (
	ErrNoFileUploaded  = errors.New("no file uploaded")
	ErrMalformedUpload = errors.New("malformed upload")
	ErrWriteFailed     = errors.New("failed to save file")
)

// FailureKindOf maps a staging error onto a failure kind.
func FailureKindOf(err error) FailureKind {
	switch {
	case errors.Is(err, ErrNoFileUploaded):
		return FailureNoFile
	case errors.Is(err, ErrWriteFailed):
		return FailureWriteFailed
	default:
		return FailureMalformedUpload
	}
}
