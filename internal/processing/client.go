// Package processing is the client for the remote Document Processing Service.
package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client submits files and requests generated artifacts.
type Client interface {
	// Upload submits one file and returns the service-assigned document id.
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	// Generate produces the artifact bytes for a previously uploaded document.
	Generate(ctx context.Context, documentID string) ([]byte, error)
}

// HTTPClient implements Client over the service's REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient builds a client rooted at baseURL (e.g. http://localhost:8000/api/v1).
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse processing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("processing base url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

var _ Client = (*HTTPClient)(nil)

type uploadResponse struct {
	DocumentID string `json:"document_id"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

func (c *HTTPClient) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", &UploadRejectedError{Filename: filename, Reason: "cannot read file", Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UploadRejectedError{
			Filename: filename,
			Reason:   ErrServiceUnreachable.Error(),
			Err:      fmt.Errorf("%w: %v", ErrServiceUnreachable, err),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UploadRejectedError{
			Filename:   filename,
			Reason:     ErrServiceUnreachable.Error(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: read body: %v", ErrServiceUnreachable, err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := parseDetail(raw)
		if reason == "" {
			reason = fmt.Sprintf("upload failed with status %d", resp.StatusCode)
		}
		return "", &UploadRejectedError{Filename: filename, Reason: reason, StatusCode: resp.StatusCode}
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.DocumentID) == "" {
		return "", &UploadRejectedError{
			Filename:   filename,
			Reason:     "service returned no document id",
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}
	return out.DocumentID, nil
}

func (c *HTTPClient) Generate(ctx context.Context, documentID string) ([]byte, error) {
	endpoint := c.baseURL + "/generate-blueprint/" + url.PathEscape(documentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrServiceUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := parseDetail(raw)
		if detail == "" {
			detail = genericGenerationDetail(resp.StatusCode)
		}
		return nil, &GenerationFailedError{StatusCode: resp.StatusCode, Detail: detail}
	}
	if len(raw) == 0 {
		return nil, ErrEmptyArtifact
	}
	return raw, nil
}

// parseDetail returns a string "detail" field as sent. Blank or non-string details yield "".
func parseDetail(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err != nil || len(er.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(er.Detail, &s); err != nil {
		return ""
	}
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
