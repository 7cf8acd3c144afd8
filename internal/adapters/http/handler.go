package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/ocomp/internal/core/domain"
)

// UsageMessage is returned by GET on a target route.
const UsageMessage = "Please use HTTP POST with a source file to build"

const (
	HeaderWorkspaceID = "X-Workspace-Id"
	HeaderExitCode    = "X-Build-Exit-Code"
)

// BuildRunner runs one build request.
type BuildRunner interface {
	Run(ctx context.Context, target domain.BuildTarget, mr *multipart.Reader) domain.BuildResult
}

type BuildHandler struct {
	runner BuildRunner
	table  *RouteTable
}

func NewBuildHandler(runner BuildRunner, table *RouteTable) *BuildHandler {
	return &BuildHandler{runner: runner, table: table}
}

// Build stages the multipart upload and runs the build of the target bound
// to the matched route.
func (h *BuildHandler) Build(c *fiber.Ctx) error {
	target, ok := h.table.LookupPath(c.Route().Path)
	if !ok {
		return c.Status(fiber.StatusNotFound).SendString("Unknown build target")
	}

	mediaType, params, err := mime.ParseMediaType(c.Get(fiber.HeaderContentType))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return c.Status(fiber.StatusBadRequest).
			SendString("Build failed: \nexpected a multipart/form-data upload")
	}

	var body io.Reader = c.Context().RequestBodyStream()
	if body == nil {
		body = bytes.NewReader(c.Body())
	}

	res := h.runner.Run(c.UserContext(), target, multipart.NewReader(body, params["boundary"]))
	return respond(c, res)
}

// Usage answers GET on a target route.
func (h *BuildHandler) Usage(c *fiber.Ctx) error {
	return c.SendString(UsageMessage)
}

func respond(c *fiber.Ctx, res domain.BuildResult) error {
	if res.WorkspaceID != "" {
		c.Set(HeaderWorkspaceID, res.WorkspaceID)
	}

	if res.Succeeded() {
		c.Set(HeaderExitCode, "0")
		a := res.Artifact
		if wantsArtifact(c) {
			c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", path.Base(a.RelativePath)))
			c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
			return c.Status(fiber.StatusOK).Send(a.Data)
		}
		return c.Status(fiber.StatusOK).
			SendString(fmt.Sprintf("Build success: \n%s (%d bytes)", a.RelativePath, len(a.Data)))
	}

	f := res.Failure
	if f == nil {
		f = &domain.Failure{Kind: domain.FailureSpawn, Reason: "build produced no result", ExitCode: -1}
	}
	if f.ExitCode >= 0 {
		c.Set(HeaderExitCode, strconv.Itoa(f.ExitCode))
	}
	return c.Status(statusFor(f.Kind)).SendString("Build failed: \n" + f.Error())
}

func statusFor(kind domain.FailureKind) int {
	switch kind {
	case domain.FailureNoFile, domain.FailureMalformedUpload:
		return fiber.StatusBadRequest
	case domain.FailureCommandNotFound, domain.FailureNonZeroExit, domain.FailureNoArtifact:
		return fiber.StatusUnprocessableEntity
	case domain.FailureTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func wantsArtifact(c *fiber.Ctx) bool {
	if d := c.Query("download"); d == "1" || d == "true" {
		return true
	}
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEOctetStream)
}
