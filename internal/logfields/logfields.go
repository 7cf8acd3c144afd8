// Package logfields holds the canonical slog attribute keys used across the service.
package logfields

import (
	"log/slog"
	"time"
)

const (
	KeyTarget      = "target"
	KeyWorkspaceID = "workspace_id"
	KeyPath        = "path"
	KeyFile        = "file"
	KeyBytes       = "bytes"
	KeyCommand     = "command"
	KeyExitCode    = "exit_code"
	KeyOutcome     = "outcome"
	KeyDurationMS  = "duration_ms"
	KeyVersion     = "version"
	KeyRepository  = "repository"
	KeyAddr        = "addr"
	KeyError       = "error"
)

func Target(name string) slog.Attr    { return slog.String(KeyTarget, name) }
func WorkspaceID(id string) slog.Attr { return slog.String(KeyWorkspaceID, id) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func File(name string) slog.Attr      { return slog.String(KeyFile, name) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func Command(cmd string) slog.Attr    { return slog.String(KeyCommand, cmd) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Repository(url string) slog.Attr { return slog.String(KeyRepository, url) }
func Addr(addr string) slog.Attr      { return slog.String(KeyAddr, addr) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
