package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"docgen/internal/model"
	"docgen/internal/processing"
	"docgen/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, docSvc service.DocumentService) {
	app.Get("/health", HealthCheck(docSvc))
	app.Get("/healthz", LivenessProbe())

	app.Get("/documents", ListDocuments(docSvc))
	app.Post("/documents", UploadDocuments(docSvc))
	app.Get("/documents/:id", GetDocument(docSvc))
	app.Delete("/documents/:id", DeleteDocument(docSvc))
	app.Post("/documents/:id/regenerate", RegenerateDocument(docSvc))
	app.Get("/documents/:id/artifact", GetArtifact(docSvc))
}

// uploadResponse is the result of a batch upload.
type uploadResponse struct {
	service.BatchOutcome
	Summary string `json:"summary"`
}

// HealthCheck godoc
// @Summary Readiness check
// @Description Checks that the registry store is reachable.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := docSvc.Health(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe godoc
// @Summary Liveness probe
// @Tags health
// @Success 200
// @Router /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListDocuments godoc
// @Summary List documents
// @Description Filtered, sorted and paginated view of the registry.
// @Tags documents
// @Produce json
// @Param search query string false "case-insensitive match on name or status"
// @Param sort query string false "name, size, date or status"
// @Param dir query string false "asc or desc"
// @Param page query int false "page number, from 1"
// @Param page_size query int false "items per page"
// @Success 200 {object} service.Page
// @Failure 400 {object} errorPayload
// @Router /documents [get]
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := strconv.Atoi(c.Query("page", "1"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "invalid page")
		}
		size, err := strconv.Atoi(c.Query("page_size", strconv.Itoa(service.DefaultPageSize)))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE_SIZE", "invalid page_size")
		}

		res := docSvc.List(c.UserContext(), service.Query{
			Search:   c.Query("search"),
			SortKey:  service.ParseSortKey(c.Query("sort")),
			SortDir:  service.ParseSortDir(c.Query("dir")),
			Page:     page,
			PageSize: size,
		})
		return c.JSON(res)
	}
}

// UploadDocuments godoc
// @Summary Upload a batch of files
// @Description Each file is submitted independently; oversized files are skipped.
// @Tags documents
// @Accept mpfd
// @Produce json
// @Param files formData file true "files to upload (repeatable)"
// @Success 200 {object} uploadResponse
// @Failure 400 {object} errorPayload
// @Router /documents [post]
func UploadDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "at least one file is required")
		}
		headers := append(form.File["files"], form.File["file"]...)
		if len(headers) == 0 {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "at least one file is required")
		}

		files := make([]model.FileCandidate, 0, len(headers))
		for _, fh := range headers {
			files = append(files, candidateFromHeader(fh))
		}

		out := docSvc.UploadBatch(c.UserContext(), files)
		return c.Status(fiber.StatusOK).JSON(uploadResponse{BatchOutcome: out, Summary: out.Summary()})
	}
}

func candidateFromHeader(fh *multipart.FileHeader) model.FileCandidate {
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return model.FileCandidate{
		Name:        fh.Filename,
		SizeBytes:   fh.Size,
		ContentType: ct,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// GetDocument godoc
// @Summary Get a document
// @Tags documents
// @Produce json
// @Param id path string true "document id"
// @Success 200 {object} model.Document
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [get]
func GetDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := docSvc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DeleteDocument godoc
// @Summary Delete a document
// @Description Rejected while the document is generating.
// @Tags documents
// @Param id path string true "document id"
// @Success 204
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /documents/{id} [delete]
func DeleteDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := docSvc.Delete(c.UserContext(), c.Params("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// RegenerateDocument godoc
// @Summary Retry generation
// @Description Only documents in Failed or Upload Failed can be regenerated.
// @Tags documents
// @Produce json
// @Param id path string true "document id"
// @Success 202 {object} map[string]string
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /documents/{id}/regenerate [post]
func RegenerateDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := docSvc.Regenerate(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": id, "status": model.StatusGenerating.String()})
	}
}

// GetArtifact godoc
// @Summary Download the generated blueprint
// @Tags documents
// @Produce application/pdf
// @Param id path string true "document id"
// @Success 200 {file} binary
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /documents/{id}/artifact [get]
func GetArtifact(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view := docSvc.NewArtifactView()
		defer view.Close()

		id := c.Params("id")
		art, err := view.Show(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		// The spool file is removed on Close, so the body is copied before returning.
		data, err := art.Bytes()
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		c.Set(fiber.HeaderContentType, art.MimeType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="blueprint_%s.pdf"`, id))
		if art.Checksum != "" {
			c.Set(fiber.HeaderETag, `"`+art.Checksum+`"`)
		}
		return c.Status(fiber.StatusOK).Send(data)
	}
}

// writeServiceError maps service and processing errors onto the error envelope.
func writeServiceError(c *fiber.Ctx, err error) error {
	var gen *processing.GenerationFailedError
	switch {
	case errors.Is(err, service.ErrIDRequired):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "id is required")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, service.ErrGenerating):
		return writeError(c, fiber.StatusConflict, "GENERATION_IN_PROGRESS", "document is still generating")
	case errors.Is(err, service.ErrNotRetryable):
		return writeError(c, fiber.StatusConflict, "NOT_RETRYABLE", "only failed documents can be regenerated")
	case errors.Is(err, service.ErrArtifactNotReady):
		return writeError(c, fiber.StatusConflict, "ARTIFACT_NOT_READY", "artifact is not ready")
	case errors.Is(err, service.ErrGenerationFailed):
		return writeError(c, fiber.StatusConflict, "GENERATION_FAILED", processing.FailureDetail(err))
	case errors.Is(err, service.ErrTriggerClosed):
		return writeError(c, fiber.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
	case errors.Is(err, processing.ErrEmptyArtifact):
		return writeError(c, fiber.StatusBadGateway, "EMPTY_ARTIFACT", processing.ErrEmptyArtifact.Error())
	case errors.As(err, &gen):
		return writeError(c, fiber.StatusBadGateway, "GENERATION_FAILED", gen.Detail)
	case errors.Is(err, processing.ErrServiceUnreachable):
		return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNREACHABLE", processing.ErrServiceUnreachable.Error())
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
