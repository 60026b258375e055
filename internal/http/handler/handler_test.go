package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"docgen/internal/model"
	"docgen/internal/processing"
	"docgen/internal/service"
	serviceMocks "docgen/internal/service/mocks"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/health", HealthCheck(mockSvc))

	t.Run("healthy", func(t *testing.T) {
		mockSvc.On("Health", mock.Anything).Return(nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		mockSvc.On("Health", mock.Anything).Return(errors.New("redis down")).Once()

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
	mockSvc.AssertExpectations(t)
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListDocuments(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/documents", ListDocuments(mockSvc))

	t.Run("success with query", func(t *testing.T) {
		want := service.Query{Search: "plan", SortKey: service.SortBySize, SortDir: service.SortDesc, Page: 2, PageSize: 5}
		mockSvc.On("List", mock.Anything, want).Return(service.Page{
			Items:      []model.Document{{ID: "doc-1", Name: "plan.pdf", Status: model.StatusSuccess}},
			Page:       2,
			PageSize:   5,
			TotalPages: 2,
			Total:      6,
		}).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents?search=plan&sort=size&dir=desc&page=2&page_size=5", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, float64(6), result["total"])
		assert.Equal(t, float64(2), result["total_pages"])
		items := result["data"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "Success", items[0].(map[string]any)["status"])
		mockSvc.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, service.Query{SortDir: service.SortAsc, Page: 1, PageSize: 10}).
			Return(service.Page{Items: []model.Document{}, Page: 1, PageSize: 10, TotalPages: 1}).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid page", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents?page=abc", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PAGE", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid page size", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents?page_size=x", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PAGE_SIZE", decodeError(t, resp).Error.Code)
	})
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadDocuments(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Post("/documents", UploadDocuments(mockSvc))

	t.Run("success", func(t *testing.T) {
		body, ct := multipartBody(t, "files", map[string]string{"a.pdf": "hello", "b.png": "world!"})

		mockSvc.On("UploadBatch", mock.Anything, mock.MatchedBy(func(files []model.FileCandidate) bool {
			if len(files) != 2 {
				return false
			}
			for _, f := range files {
				rc, err := f.Open()
				if err != nil {
					return false
				}
				data, _ := io.ReadAll(rc)
				rc.Close()
				if int64(len(data)) != f.SizeBytes {
					return false
				}
			}
			return true
		})).Return(service.BatchOutcome{
			Succeeded: []model.DocumentRef{{ID: "id-a", Name: "a.pdf"}},
			Failed:    []model.UploadFailure{{Name: "b.png", Reason: "Unsupported file type"}},
		}).Once()

		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "1 uploaded, 1 failed", result["summary"])
		assert.Len(t, result["succeeded"], 1)
		assert.Len(t, result["failed"], 1)
		mockSvc.AssertExpectations(t)
	})

	t.Run("single file field", func(t *testing.T) {
		body, ct := multipartBody(t, "file", map[string]string{"a.pdf": "hello"})
		mockSvc.On("UploadBatch", mock.Anything, mock.MatchedBy(func(files []model.FileCandidate) bool {
			return len(files) == 1 && files[0].Name == "a.pdf"
		})).Return(service.BatchOutcome{Succeeded: []model.DocumentRef{{ID: "id-a", Name: "a.pdf"}}}).Once()

		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("no file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents", nil)
		// Missing content-type and body
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "FILE_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("form without files", func(t *testing.T) {
		body, ct := multipartBody(t, "other", nil)
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "FILE_REQUIRED", decodeError(t, resp).Error.Code)
	})
}

func TestGetDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/documents/:id", GetDocument(mockSvc))

	t.Run("success", func(t *testing.T) {
		expectedDoc := &model.Document{ID: "doc-1", Name: "plan.pdf", Status: model.StatusFailed, FailureDetail: "rate limited"}
		mockSvc.On("Get", mock.Anything, "doc-1").Return(expectedDoc, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result model.Document
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "doc-1", result.ID)
		assert.Equal(t, model.StatusFailed, result.Status)
		assert.Equal(t, "rate limited", result.FailureDetail)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, "missing").Return(nil, service.ErrNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/missing", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, "doc-2").Return(nil, errors.New("boom")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/doc-2", nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestDeleteDocument(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "success", wantCode: http.StatusNoContent},
		{name: "not found", err: service.ErrNotFound, wantCode: http.StatusNotFound, wantErr: "NOT_FOUND"},
		{name: "generating", err: service.ErrGenerating, wantCode: http.StatusConflict, wantErr: "GENERATION_IN_PROGRESS"},
		{name: "service error", err: errors.New("delete error"), wantCode: http.StatusInternalServerError, wantErr: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDocumentService)
			app := fiber.New()
			app.Delete("/documents/:id", DeleteDocument(mockSvc))
			mockSvc.On("Delete", mock.Anything, "doc-1").Return(tt.err).Once()

			resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil))

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeError(t, resp).Error.Code)
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestRegenerateDocument(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "accepted", wantCode: http.StatusAccepted},
		{name: "not retryable", err: service.ErrNotRetryable, wantCode: http.StatusConflict, wantErr: "NOT_RETRYABLE"},
		{name: "not found", err: service.ErrNotFound, wantCode: http.StatusNotFound, wantErr: "NOT_FOUND"},
		{name: "shutting down", err: service.ErrTriggerClosed, wantCode: http.StatusServiceUnavailable, wantErr: "SHUTTING_DOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDocumentService)
			app := fiber.New()
			app.Post("/documents/:id/regenerate", RegenerateDocument(mockSvc))
			mockSvc.On("Regenerate", mock.Anything, "doc-1").Return(tt.err).Once()

			resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/documents/doc-1/regenerate", nil))

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeError(t, resp).Error.Code)
			} else {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, "Generating", body["status"])
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func spooledArtifact(t *testing.T, id, content string) *model.Artifact {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "handler-*.pdf")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	return model.NewArtifact(id, f, int64(len(content)), "abc123")
}

func TestGetArtifact(t *testing.T) {
	tests := []struct {
		name        string
		setupMocks  func(t *testing.T, v *serviceMocks.MockArtifactViewer)
		wantCode    int
		wantErr     string
		wantMessage string
	}{
		{
			name: "pdf bytes",
			setupMocks: func(t *testing.T, v *serviceMocks.MockArtifactViewer) {
				v.On("Show", mock.Anything, "doc-1").Return(spooledArtifact(t, "doc-1", "%PDF-1.7"), nil)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "empty artifact",
			setupMocks: func(t *testing.T, v *serviceMocks.MockArtifactViewer) {
				v.On("Show", mock.Anything, "doc-1").Return(nil, processing.ErrEmptyArtifact)
			},
			wantCode:    http.StatusBadGateway,
			wantErr:     "EMPTY_ARTIFACT",
			wantMessage: "generated blueprint is empty",
		},
		{
			name: "service detail passed through",
			setupMocks: func(t *testing.T, v *serviceMocks.MockArtifactViewer) {
				v.On("Show", mock.Anything, "doc-1").Return(nil, &processing.GenerationFailedError{StatusCode: 429, Detail: "rate limited"})
			},
			wantCode:    http.StatusBadGateway,
			wantErr:     "GENERATION_FAILED",
			wantMessage: "rate limited",
		},
		{
			name: "unreachable",
			setupMocks: func(t *testing.T, v *serviceMocks.MockArtifactViewer) {
				v.On("Show", mock.Anything, "doc-1").Return(nil, processing.ErrServiceUnreachable)
			},
			wantCode:    http.StatusServiceUnavailable,
			wantErr:     "SERVICE_UNREACHABLE",
			wantMessage: "processing service unreachable",
		},
		{
			name: "failed document shows stored detail",
			setupMocks: func(t *testing.T, v *serviceMocks.MockArtifactViewer) {
				v.On("Show", mock.Anything, "doc-1").Return(nil,
					fmt.Errorf("%w: %w", service.ErrGenerationFailed, &processing.GenerationFailedError{Detail: "rate limited"}))
			},
			wantCode:    http.StatusConflict,
			wantErr:     "GENERATION_FAILED",
			wantMessage: "rate limited",
		},
		{
			name: "failed document with empty-artifact detail",
			setupMocks: func(t *testing.T, v *serviceMocks.MockArtifactViewer) {
				v.On("Show", mock.Anything, "doc-1").Return(nil,
					fmt.Errorf("%w: %w", service.ErrGenerationFailed, &processing.GenerationFailedError{Detail: "generated blueprint is empty"}))
			},
			wantCode:    http.StatusConflict,
			wantErr:     "GENERATION_FAILED",
			wantMessage: "generated blueprint is empty",
		},
		{
			name: "not ready",
			setupMocks: func(t *testing.T, v *serviceMocks.MockArtifactViewer) {
				v.On("Show", mock.Anything, "doc-1").Return(nil, service.ErrArtifactNotReady)
			},
			wantCode: http.StatusConflict,
			wantErr:  "ARTIFACT_NOT_READY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDocumentService)
			viewer := new(serviceMocks.MockArtifactViewer)
			mockSvc.On("NewArtifactView").Return(viewer).Once()
			viewer.On("Close").Return().Once()
			tt.setupMocks(t, viewer)

			app := fiber.New()
			app.Get("/documents/:id/artifact", GetArtifact(mockSvc))

			resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/doc-1/artifact", nil))

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.wantErr != "" {
				body := decodeError(t, resp)
				assert.Equal(t, tt.wantErr, body.Error.Code)
				if tt.wantMessage != "" {
					assert.Equal(t, tt.wantMessage, body.Error.Message)
				}
			} else {
				data, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, "%PDF-1.7", string(data))
				assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
				assert.Equal(t, `"abc123"`, resp.Header.Get("ETag"))
			}
			mockSvc.AssertExpectations(t)
			viewer.AssertExpectations(t)
		})
	}
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})

	mockSvc := new(serviceMocks.MockDocumentService)
	// Register all routes
	RegisterRoutes(app, mockSvc)

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		// Health endpoint only allows GET
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		// Fiber returns 405 by default if route exists but method doesn't match
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})

	t.Run("rate limited error envelope", func(t *testing.T) {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
		app.Get("/x", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTooManyRequests, "slow down") })

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "RATE_LIMITED", decodeError(t, resp).Error.Code)
	})
}
