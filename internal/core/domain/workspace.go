package domain

import "time"

// Workspace is an isolated, uniquely named directory holding one request's
// uploaded files during a build.
type Workspace struct {
	ID        string
	RootPath  string
	CreatedAt time.Time
}

// StagedFile records one file written into a workspace.
type StagedFile struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
}
